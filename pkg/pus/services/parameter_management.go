// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package services

import (
	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/parameter"
)

// ParameterValuesReport is the subservice of TM[20,2]
const ParameterValuesReport uint8 = 2

// ParameterManagement is PUS service 20
type ParameterManagement struct {
	service
	params parameter.Table
}

// NewParameterManagement creates the parameter management service
func NewParameterManagement(env Env, verification *RequestVerification, params parameter.Table) *ParameterManagement {
	s := &ParameterManagement{
		service: newService(pus.ServiceParameterManagement, "parameter management", env, verification),
		params:  params,
	}
	s.register(1, s.reportValues)
	s.register(3, s.setValues)
	return s
}

// reportValues answers TC[20,1] with TM[20,2]: N followed by N id/value pairs
func (s *ParameterManagement) reportValues(appData []byte) Result {
	countType := s.env.Policy.ParameterManagement.Count
	idType := s.env.Policy.Common.ParamID
	ids, ok := readIDs(appData, countType, idType)
	if !ok {
		return Failure(Incomplete)
	}
	for _, id := range ids {
		if _, exists := s.params[id]; !exists {
			return Failure(IllegalAppData)
		}
	}

	data, err := countType.Append(nil, uint64(len(ids)))
	if err != nil {
		return Failure(IllegalAppData)
	}
	for _, id := range ids {
		if data, err = idType.Append(data, id); err != nil {
			return Failure(IllegalAppData)
		}
		data = s.params[id].AppendBytes(data)
	}
	return s.emitResult(ParameterValuesReport, data)
}

// setValues handles TC[20,3]. Every value is decoded before any is set, so
// the request either changes all parameters or none.
func (s *ParameterManagement) setValues(appData []byte) Result {
	idType := s.env.Policy.Common.ParamID
	r := parameter.NewReader(appData)
	n, err := r.Uint(s.env.Policy.ParameterManagement.Count)
	if err != nil || n > uint64(r.Remaining()) {
		return Failure(Incomplete)
	}

	type update struct {
		param parameter.Parameter
		value any
	}
	updates := make([]update, 0, n)
	seen := make(map[uint64]struct{}, n)
	for range n {
		id, err := r.Uint(idType)
		if err != nil {
			return Failure(Incomplete)
		}
		p, exists := s.params[id]
		if _, dup := seen[id]; !exists || dup {
			return Failure(IllegalAppData)
		}
		seen[id] = struct{}{}
		v, err := r.Value(p)
		if err != nil {
			return Failure(Incomplete)
		}
		updates = append(updates, update{param: p, value: v})
	}
	if r.Remaining() != 0 {
		return Failure(Incomplete)
	}

	for _, u := range updates {
		if err := u.param.SetValue(u.value); err != nil {
			s.log.Warn("Parameter not set", "error", err)
			return Fail()
		}
	}
	return Success()
}
