// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package process wires the PUS services of one application process
// together and runs them from a single goroutine.
package process

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/parameter"
	"github.com/Thermoquad/pusgate/pkg/pus/policy"
	"github.com/Thermoquad/pusgate/pkg/pus/services"
)

// ErrTcPacketRouting is returned for telecommands addressed to another APID
// or to a service or subservice the process does not provide
var ErrTcPacketRouting = errors.New("telecommand routing error")

// DefaultServices are the services enabled when no WithServices option is given
var DefaultServices = []uint8{
	pus.ServiceHousekeeping,
	pus.ServiceEventReporting,
	pus.ServiceFunctionManagement,
	pus.ServiceTest,
	pus.ServiceParameterManagement,
}

// Option configures a Process
type Option func(*options)

type options struct {
	logger   *slog.Logger
	services []uint8
}

// WithLogger sets the logger used by the process and its services
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithServices selects the services to enable. Request verification is
// always enabled.
func WithServices(types ...uint8) Option {
	return func(o *options) {
		o.services = types
	}
}

// Process is one PUS application process
type Process struct {
	ident  *pus.Ident
	policy *policy.Policy
	output services.Output
	log    *slog.Logger
	params parameter.Table

	verification        *services.RequestVerification
	housekeeping        *services.Housekeeping
	eventReporting      *services.EventReporting
	functionManagement  *services.FunctionManagement
	test                *services.Test
	parameterManagement *services.ParameterManagement
	services            map[uint8]services.Service

	actions []*periodic
}

// New creates an application process. The policy is validated and must not
// be changed while the process runs.
func New(apid uint16, output services.Output, pol *policy.Policy, opts ...Option) (*Process, error) {
	o := options{logger: slog.Default(), services: DefaultServices}
	for _, opt := range opts {
		opt(&o)
	}
	if output == nil {
		return nil, errors.New("process needs an output")
	}
	if pol == nil {
		pol = policy.Default()
	}
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	ident, err := pus.NewIdent(apid)
	if err != nil {
		return nil, err
	}

	p := &Process{
		ident:    ident,
		policy:   pol,
		output:   output,
		log:      o.logger.With("apid", apid),
		params:   make(parameter.Table),
		services: make(map[uint8]services.Service),
	}
	env := services.Env{Ident: ident, Policy: pol, Output: output, Logger: p.log}
	p.verification = services.NewRequestVerification(env)

	for _, t := range o.services {
		switch t {
		case pus.ServiceHousekeeping:
			p.housekeeping = services.NewHousekeeping(env, p.verification, p.params)
			p.services[t] = p.housekeeping
			p.Every(pol.Housekeeping.IntervalUnit, p.housekeeping.Collect)
		case pus.ServiceEventReporting:
			p.eventReporting = services.NewEventReporting(env, p.verification, p.params)
			p.services[t] = p.eventReporting
		case pus.ServiceFunctionManagement:
			p.functionManagement = services.NewFunctionManagement(env, p.verification)
			p.services[t] = p.functionManagement
		case pus.ServiceTest:
			p.test = services.NewTest(env, p.verification)
			p.services[t] = p.test
		case pus.ServiceParameterManagement:
			p.parameterManagement = services.NewParameterManagement(env, p.verification, p.params)
			p.services[t] = p.parameterManagement
		case pus.ServiceRequestVerification:
		default:
			return nil, fmt.Errorf("unsupported service %d", t)
		}
	}
	return p, nil
}

// APID returns the process APID
func (p *Process) APID() uint16 {
	return p.ident.APID()
}

// Policy returns the mission policy the process was created with
func (p *Process) Policy() *policy.Policy {
	return p.policy
}

// AddParam registers a parameter under id
func (p *Process) AddParam(id uint64, param parameter.Parameter) error {
	if id > p.policy.Common.ParamID.Max() {
		return fmt.Errorf("%w: parameter ID %d", parameter.ErrRange, id)
	}
	if _, exists := p.params[id]; exists {
		return fmt.Errorf("parameter %d already exists", id)
	}
	p.params[id] = param
	return nil
}

// Param returns the parameter registered under id
func (p *Process) Param(id uint64) (parameter.Parameter, bool) {
	return p.params.Get(id)
}

// AddFunction registers an onboard function with the function management service
func (p *Process) AddFunction(fid uint64, fn services.Function, argTypes ...parameter.Parameter) error {
	if p.functionManagement == nil {
		return errors.New("function management service is not enabled")
	}
	return p.functionManagement.Add(fid, fn, argTypes...)
}

// RequestVerification returns the service 1 instance
func (p *Process) RequestVerification() *services.RequestVerification {
	return p.verification
}

// Housekeeping returns the service 3 instance or nil when it is not enabled
func (p *Process) Housekeeping() *services.Housekeeping {
	return p.housekeeping
}

// EventReporting returns the service 5 instance or nil when it is not enabled
func (p *Process) EventReporting() *services.EventReporting {
	return p.eventReporting
}

// Service returns an enabled service by type
func (p *Process) Service(serviceType uint8) (services.Service, bool) {
	s, ok := p.services[serviceType]
	return s, ok
}

// Forward routes a telecommand to its service queue. A command addressed to
// this APID but to an unknown service or subservice is rejected with a
// failed acceptance report when it asks for one.
func (p *Process) Forward(tc *pus.Packet) error {
	if tc == nil || !tc.IsTC() {
		return fmt.Errorf("%w: not a telecommand", ErrTcPacketRouting)
	}
	if tc.APID() != p.APID() {
		return fmt.Errorf("%w: APID %d, process is %d", ErrTcPacketRouting, tc.APID(), p.APID())
	}

	s, ok := p.services[tc.Service()]
	if !ok {
		p.reject(tc, services.IllegalPacketType)
		return fmt.Errorf("%w: service %d not provided", ErrTcPacketRouting, tc.Service())
	}
	if !s.Accepts(tc) {
		p.reject(tc, services.IllegalPacketSubtype)
		return fmt.Errorf("%w: subservice %d of service %d not provided", ErrTcPacketRouting, tc.Subservice(), tc.Service())
	}
	return s.Enqueue(tc)
}

func (p *Process) reject(tc *pus.Packet, code services.ErrorCode) {
	if err := p.verification.Accept(tc, services.Failure(code)); err != nil {
		p.log.Warn("Rejection not reported", "error", err)
	}
}

// Process drains the queue of every service in service type order
func (p *Process) Process() error {
	var errs []error
	for _, t := range slices.Sorted(maps.Keys(p.services)) {
		if err := p.services[t].Process(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
