// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package services

import (
	"fmt"

	"github.com/Thermoquad/pusgate/pkg/pus"
)

// Request verification report subservices
const (
	AcceptanceSuccess uint8 = 1
	AcceptanceFailure uint8 = 2
	StartSuccess      uint8 = 3
	StartFailure      uint8 = 4
	ProgressSuccess   uint8 = 5
	ProgressFailure   uint8 = 6
	CompletionSuccess uint8 = 7
	CompletionFailure uint8 = 8
)

// RequestVerification is PUS service 1. It has no telecommand queue; other
// services and handlers call it to acknowledge commands.
type RequestVerification struct {
	service
}

// NewRequestVerification creates the request verification service
func NewRequestVerification(env Env) *RequestVerification {
	return &RequestVerification{
		service: newService(pus.ServiceRequestVerification, "request verification", env, nil),
	}
}

// Enqueue always fails, service 1 has no queue
func (s *RequestVerification) Enqueue(*pus.Packet) error {
	return ErrNoQueue
}

// Process always fails, service 1 has no queue
func (s *RequestVerification) Process() error {
	return ErrNoQueue
}

// Accept reports acceptance of tc if it asks for it
func (s *RequestVerification) Accept(tc *pus.Packet, r Result) error {
	return s.report(tc, pus.AckAcceptance, AcceptanceSuccess, r)
}

// Start reports start of execution of tc if it asks for it
func (s *RequestVerification) Start(tc *pus.Packet, r Result) error {
	return s.report(tc, pus.AckStart, StartSuccess, r)
}

// Progress reports a progress step of tc if it asks for it
func (s *RequestVerification) Progress(tc *pus.Packet, r Result) error {
	return s.report(tc, pus.AckProgress, ProgressSuccess, r)
}

// Complete reports completion of tc if it asks for it
func (s *RequestVerification) Complete(tc *pus.Packet, r Result) error {
	return s.report(tc, pus.AckCompletion, CompletionSuccess, r)
}

// report emits the success subservice, or the failure subservice that
// follows it, with the request ID and on failure the code and detail bytes
func (s *RequestVerification) report(tc *pus.Packet, flag pus.AckFlags, successSubservice uint8, r Result) error {
	if !tc.AckFlags().Has(flag) {
		return nil
	}

	requestID := tc.RequestID()
	payload := requestID[:]
	subservice := successSubservice
	if !r.OK() {
		subservice++
		var err error
		payload, err = s.env.Policy.RequestVerification.FailureCode.Append(payload, uint64(r.Code()))
		if err != nil {
			return fmt.Errorf("failure code %s: %w", r.Code(), err)
		}
		payload = append(payload, r.Data()...)
	}
	return s.emit(subservice, payload)
}
