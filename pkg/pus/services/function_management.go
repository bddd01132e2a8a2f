// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package services

import (
	"fmt"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/parameter"
)

// Function is an onboard function. args holds one decoded value per
// argument type given when the function was added.
type Function func(args []any) Result

type functionDef struct {
	fn       Function
	argTypes []parameter.Parameter
}

// FunctionManagement is PUS service 8
type FunctionManagement struct {
	service
	functions map[uint64]functionDef
}

// NewFunctionManagement creates the function management service
func NewFunctionManagement(env Env, verification *RequestVerification) *FunctionManagement {
	s := &FunctionManagement{
		service:   newService(pus.ServiceFunctionManagement, "function management", env, verification),
		functions: make(map[uint64]functionDef),
	}
	s.register(1, s.perform)
	return s
}

// Add registers fn under fid. argTypes are prototypes used to decode the
// arguments; their values are not changed. A nil fn reserves the ID and
// fails with Pus8FunctionNotImplemented.
func (s *FunctionManagement) Add(fid uint64, fn Function, argTypes ...parameter.Parameter) error {
	if fid > s.env.Policy.FunctionManagement.FunctionID.Max() {
		return fmt.Errorf("%w: function ID %d", parameter.ErrRange, fid)
	}
	if _, exists := s.functions[fid]; exists {
		return fmt.Errorf("function %d already exists", fid)
	}
	s.functions[fid] = functionDef{fn: fn, argTypes: argTypes}
	return nil
}

// perform handles TC[8,1]: a function ID followed by the typed arguments
func (s *FunctionManagement) perform(appData []byte) Result {
	r := parameter.NewReader(appData)
	fid, err := r.Uint(s.env.Policy.FunctionManagement.FunctionID)
	if err != nil {
		return Failure(Incomplete)
	}
	def, ok := s.functions[fid]
	if !ok {
		return Failure(Pus8InvalidFID)
	}

	args := make([]any, 0, len(def.argTypes))
	for _, argType := range def.argTypes {
		v, err := r.Value(argType)
		if err != nil {
			return Failure(Pus8InvalidArgs)
		}
		args = append(args, v)
	}
	if r.Remaining() != 0 {
		return Failure(Pus8InvalidArgs)
	}
	if def.fn == nil {
		return Failure(Pus8FunctionNotImplemented)
	}
	return def.fn(args)
}
