// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package services

import "github.com/Thermoquad/pusgate/pkg/pus"

// Test service subservices
const (
	ConnectionTest       uint8 = 1
	ConnectionTestReport uint8 = 2
)

// Test is PUS service 17
type Test struct {
	service
}

// NewTest creates the test service
func NewTest(env Env, verification *RequestVerification) *Test {
	s := &Test{
		service: newService(pus.ServiceTest, "test", env, verification),
	}
	s.register(ConnectionTest, s.connectionTest)
	return s
}

// connectionTest answers TC[17,1] with TM[17,2]
func (s *Test) connectionTest([]byte) Result {
	return s.emitResult(ConnectionTestReport, nil)
}
