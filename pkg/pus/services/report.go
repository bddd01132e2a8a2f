// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package services

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Thermoquad/pusgate/pkg/pus/parameter"
)

var (
	// ErrReportEnabled is returned when modifying the structure of an enabled report
	ErrReportEnabled = errors.New("report is enabled")

	// ErrReportExists is returned when adding a report whose ID is taken
	ErrReportExists = errors.New("report already exists")

	// ErrUnknownReport is returned for a report ID that is not defined
	ErrUnknownReport = errors.New("unknown report")
)

// ParamReport is an ordered set of parameters serialised as
//
//	[report ID][parameter 1][parameter 2]...
//
// The report ID is encoded with the width of the report's ID namespace.
type ParamReport struct {
	id      uint64
	idType  parameter.UnsignedType
	enabled bool
	ids     []uint64
	params  map[uint64]parameter.Parameter
	size    int
}

func newParamReport(id uint64, idType parameter.UnsignedType, enabled bool) ParamReport {
	return ParamReport{
		id:      id,
		idType:  idType,
		enabled: enabled,
		params:  make(map[uint64]parameter.Parameter),
		size:    idType.Size(),
	}
}

// ID returns the report ID
func (r *ParamReport) ID() uint64 {
	return r.id
}

// Enabled reports whether the report is enabled
func (r *ParamReport) Enabled() bool {
	return r.enabled
}

func (r *ParamReport) Enable() {
	r.enabled = true
}

func (r *ParamReport) Disable() {
	r.enabled = false
}

// Len returns the number of parameters in the report
func (r *ParamReport) Len() int {
	return len(r.ids)
}

// ParamIDs returns the parameter IDs in report order
func (r *ParamReport) ParamIDs() []uint64 {
	return slices.Clone(r.ids)
}

// Param returns the parameter stored under id
func (r *ParamReport) Param(id uint64) (parameter.Parameter, bool) {
	p, ok := r.params[id]
	return p, ok
}

// Size returns the serialised length cached when parameters were appended
func (r *ParamReport) Size() int {
	return r.size
}

// Append adds parameters to a disabled report. IDs already in the report
// keep their position.
func (r *ParamReport) Append(ids []uint64, params parameter.Table) error {
	if r.enabled {
		return fmt.Errorf("%w: %d", ErrReportEnabled, r.id)
	}
	r.append(ids, params)
	return nil
}

func (r *ParamReport) append(ids []uint64, params parameter.Table) {
	for _, id := range ids {
		p, ok := params[id]
		if !ok {
			continue
		}
		if _, exists := r.params[id]; !exists {
			r.ids = append(r.ids, id)
		}
		r.params[id] = p
	}
	r.size = r.idType.Size()
	for _, id := range r.ids {
		r.size += r.params[id].Size()
	}
}

// Bytes serialises the report ID and the current parameter values. It fails
// when a parameter cannot be encoded at its declared size.
func (r *ParamReport) Bytes() ([]byte, error) {
	buf, err := r.idType.Append(make([]byte, 0, r.size), r.id)
	if err != nil {
		return nil, fmt.Errorf("report %d: %w", r.id, err)
	}
	for _, id := range r.ids {
		p := r.params[id]
		start := len(buf)
		buf = p.AppendBytes(buf)
		if n := len(buf) - start; n != p.Size() {
			return nil, fmt.Errorf("report %d: parameter %d encoded %d bytes, expected %d", r.id, id, n, p.Size())
		}
	}
	return buf, nil
}

// readIDs parses a count followed by that many IDs and requires the data to
// end there
func readIDs(appData []byte, countType, idType parameter.UnsignedType) ([]uint64, bool) {
	r := parameter.NewReader(appData)
	n, err := r.Uint(countType)
	if err != nil {
		return nil, false
	}
	if n > uint64(r.Remaining()) || uint64(r.Remaining()) != n*uint64(idType.Size()) {
		return nil, false
	}
	ids := make([]uint64, 0, n)
	for range n {
		id, err := r.Uint(idType)
		if err != nil {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

// appendIDs encodes a count followed by the IDs
func appendIDs(dst []byte, countType, idType parameter.UnsignedType, ids []uint64) ([]byte, error) {
	dst, err := countType.Append(dst, uint64(len(ids)))
	if err != nil {
		return dst, err
	}
	for _, id := range ids {
		if dst, err = idType.Append(dst, id); err != nil {
			return dst, err
		}
	}
	return dst, nil
}
