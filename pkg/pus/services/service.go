// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package services implements PUS services on top of the packet codec.
//
// Each service owns a subservice table and a FIFO of inbound telecommands.
// Process drains the queue, runs the registered handler for every command
// and reports the outcome through the request verification service
// according to the command's acknowledgement flags. Handlers run to
// completion one after the other; callers serialise Enqueue and Process.
package services

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/policy"
)

// ErrNoQueue is returned by Enqueue and Process of the request verification
// service, which only emits reports
var ErrNoQueue = errors.New("request verification service has no telecommand queue")

// Output receives telemetry generated by the services
type Output interface {
	Write(p *pus.Packet) error
}

// Env holds what the services of one application process share
type Env struct {
	Ident  *pus.Ident
	Policy *policy.Policy
	Output Output
	Logger *slog.Logger
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Handler executes one subservice request given its application data
type Handler func(appData []byte) Result

// Service is a PUS service instance
type Service interface {
	Type() uint8
	String() string
	// Accepts reports whether tc is addressed to a registered subservice
	Accepts(tc *pus.Packet) bool
	Enqueue(tc *pus.Packet) error
	Process() error
}

type service struct {
	serviceType  uint8
	name         string
	env          Env
	log          *slog.Logger
	verification *RequestVerification
	subservices  map[uint8]Handler
	queue        []*pus.Packet
}

func newService(serviceType uint8, name string, env Env, verification *RequestVerification) service {
	return service{
		serviceType:  serviceType,
		name:         name,
		env:          env,
		log:          env.logger().With("service", serviceType),
		verification: verification,
		subservices:  make(map[uint8]Handler),
	}
}

func (s *service) register(subservice uint8, h Handler) {
	s.subservices[subservice] = h
}

// Type returns the PUS service type number
func (s *service) Type() uint8 {
	return s.serviceType
}

func (s *service) String() string {
	return fmt.Sprintf("PUS%d %s", s.serviceType, s.name)
}

// Subservices returns the number of registered subservices
func (s *service) Subservices() int {
	return len(s.subservices)
}

// Accepts reports whether tc matches the process APID, this service and a
// registered subservice
func (s *service) Accepts(tc *pus.Packet) bool {
	if tc == nil || !tc.IsTC() || tc.APID() != s.env.Ident.APID() || tc.Service() != s.serviceType {
		return false
	}
	_, ok := s.subservices[tc.Subservice()]
	return ok
}

// Enqueue queues tc for processing. Commands not accepted by the service are
// dropped.
func (s *service) Enqueue(tc *pus.Packet) error {
	if !s.Accepts(tc) {
		s.log.Debug("Dropping telecommand", "packet", tc)
		return nil
	}
	s.queue = append(s.queue, tc)
	return nil
}

// Pending returns the number of queued telecommands
func (s *service) Pending() int {
	return len(s.queue)
}

// Process drains the queue, dispatching every command and emitting the
// acceptance and completion reports it asks for
func (s *service) Process() error {
	var errs []error
	for len(s.queue) > 0 {
		tc := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]

		result := s.dispatch(tc)
		if !result.OK() {
			s.log.Info("Request failed", "subservice", tc.Subservice(), "code", result.Code())
		}
		if s.verification == nil {
			continue
		}
		if err := s.verification.Accept(tc, result); err != nil {
			errs = append(errs, err)
		}
		if err := s.verification.Complete(tc, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *service) dispatch(tc *pus.Packet) (result Result) {
	handler := s.subservices[tc.Subservice()]
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("Subservice handler panicked", "subservice", tc.Subservice(), "panic", r)
			result = Failure(IllegalAppData)
		}
	}()
	return handler(tc.AppData())
}

// emit creates a TM packet of this service and writes it to the output
func (s *service) emit(subservice uint8, data []byte) error {
	ident := s.env.Ident
	tm, err := s.env.Policy.NewTmPacket(ident.APID(), ident.NextSeqCount(), s.serviceType, subservice, data)
	if err != nil {
		return fmt.Errorf("PUS%d: create TM[%d,%d]: %w", s.serviceType, s.serviceType, subservice, err)
	}
	if err := s.env.Output.Write(tm); err != nil {
		return fmt.Errorf("PUS%d: write TM[%d,%d]: %w", s.serviceType, s.serviceType, subservice, err)
	}
	return nil
}

// emitResult converts an emit error into a handler result
func (s *service) emitResult(subservice uint8, data []byte) Result {
	if err := s.emit(subservice, data); err != nil {
		s.log.Warn("Report not emitted", "error", err)
		return Fail()
	}
	return Success()
}
