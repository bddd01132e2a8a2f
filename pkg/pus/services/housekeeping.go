// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package services

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/parameter"
)

// Namespace selects one of the two housekeeping report tables. Structure IDs
// are unique within a namespace only.
type Namespace int

const (
	HousekeepingReports Namespace = iota
	DiagnosticReports
)

func (n Namespace) String() string {
	if n == DiagnosticReports {
		return "diagnostic"
	}
	return "housekeeping"
}

// pick returns the subservice number used for this namespace
func (n Namespace) pick(housekeeping, diagnostic uint8) uint8 {
	if n == DiagnosticReports {
		return diagnostic
	}
	return housekeeping
}

// Housekeeping telemetry subservices
const (
	HousekeepingStructureReport  uint8 = 10
	DiagnosticStructureReport    uint8 = 12
	HousekeepingParameterReport  uint8 = 25
	DiagnosticParameterReport    uint8 = 26
	HousekeepingPropertiesReport uint8 = 35
	DiagnosticPropertiesReport   uint8 = 36
)

// HousekeepingReport is a parameter report generated every collection
// interval while enabled
type HousekeepingReport struct {
	ParamReport
	interval uint64
	ticks    uint64
}

// CollectionInterval returns the interval in collection ticks
func (r *HousekeepingReport) CollectionInterval() uint64 {
	return r.interval
}

// SetCollectionInterval changes the interval. Zero stops periodic generation.
func (r *HousekeepingReport) SetCollectionInterval(interval uint64) {
	r.interval = interval
}

// Enable enables the report and restarts its interval
func (r *HousekeepingReport) Enable() {
	r.ticks = 0
	r.ParamReport.Enable()
}

// Housekeeping is PUS service 3
type Housekeeping struct {
	service
	params  parameter.Table
	reports [2]map[uint64]*HousekeepingReport
}

// NewHousekeeping creates the housekeeping service. Reports refer to
// parameters of params by ID.
func NewHousekeeping(env Env, verification *RequestVerification, params parameter.Table) *Housekeeping {
	s := &Housekeeping{
		service: newService(pus.ServiceHousekeeping, "housekeeping", env, verification),
		params:  params,
		reports: [2]map[uint64]*HousekeepingReport{{}, {}},
	}

	for _, ns := range []Namespace{HousekeepingReports, DiagnosticReports} {
		s.register(ns.pick(1, 2), func(d []byte) Result { return s.define(d, ns, false) })
		s.register(ns.pick(3, 4), func(d []byte) Result { return s.delete(d, ns) })
		s.register(ns.pick(5, 7), func(d []byte) Result { return s.toggle(d, ns, true) })
		s.register(ns.pick(6, 8), func(d []byte) Result { return s.toggle(d, ns, false) })
		s.register(ns.pick(9, 11), func(d []byte) Result { return s.requestStructures(d, ns) })
		s.register(ns.pick(27, 28), func(d []byte) Result { return s.requestReports(d, ns) })
		s.register(ns.pick(29, 30), func(d []byte) Result { return s.define(d, ns, true) })
		s.register(ns.pick(31, 32), func(d []byte) Result { return s.modifyIntervals(d, ns) })
		s.register(ns.pick(33, 34), func(d []byte) Result { return s.requestIntervalProperties(d, ns) })
	}
	return s
}

// Add defines a report from the parameters of ids. Unknown parameter IDs
// are skipped.
func (s *Housekeeping) Add(ns Namespace, sid, interval uint64, ids []uint64, enabled bool) (*HousekeepingReport, error) {
	if _, exists := s.reports[ns][sid]; exists {
		return nil, fmt.Errorf("%w: %s report %d", ErrReportExists, ns, sid)
	}
	if sid > s.env.Policy.Housekeeping.StructureID.Max() {
		return nil, fmt.Errorf("%w: structure ID %d", parameter.ErrRange, sid)
	}
	if interval > s.env.Policy.Housekeeping.CollectionInterval.Max() {
		return nil, fmt.Errorf("%w: collection interval %d", parameter.ErrRange, interval)
	}
	r := &HousekeepingReport{
		ParamReport: newParamReport(sid, s.env.Policy.Housekeeping.StructureID, false),
		interval:    interval,
	}
	r.append(ids, s.params)
	if enabled {
		r.Enable()
	}
	s.reports[ns][sid] = r
	return r, nil
}

// Report returns the report with the given structure ID
func (s *Housekeeping) Report(ns Namespace, sid uint64) (*HousekeepingReport, bool) {
	r, ok := s.reports[ns][sid]
	return r, ok
}

// Reports returns the reports of a namespace ordered by structure ID
func (s *Housekeeping) Reports(ns Namespace) []*HousekeepingReport {
	reports := make([]*HousekeepingReport, 0, len(s.reports[ns]))
	for _, sid := range slices.Sorted(maps.Keys(s.reports[ns])) {
		reports = append(reports, s.reports[ns][sid])
	}
	return reports
}

// Collect advances every enabled report by one collection tick and emits
// the reports whose interval has elapsed
func (s *Housekeeping) Collect() error {
	var errs []error
	for _, ns := range []Namespace{HousekeepingReports, DiagnosticReports} {
		for _, r := range s.Reports(ns) {
			if !r.Enabled() || r.interval == 0 {
				continue
			}
			r.ticks++
			if r.ticks < r.interval {
				continue
			}
			r.ticks = 0
			if err := s.emitParameterReport(r, ns); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// define handles report creation and, with appending set, appending
// parameters to an existing disabled report
func (s *Housekeeping) define(appData []byte, ns Namespace, appending bool) Result {
	hk := s.env.Policy.Housekeeping
	r := parameter.NewReader(appData)

	sid, err := r.Uint(hk.StructureID)
	if err != nil {
		return Failure(Incomplete)
	}
	report, exists := s.reports[ns][sid]
	switch {
	case appending && !exists:
		return Failure(Pus3SidNotPresent)
	case appending && report.Enabled():
		return Failure(Pus3CannotModifyEnabledReport)
	case !appending && exists:
		return Failure(Pus3SidAlreadyPresent)
	}

	var interval uint64
	if !appending {
		if interval, err = r.Uint(hk.CollectionInterval); err != nil {
			return Failure(Incomplete)
		}
	}

	n, err := r.Uint(hk.Count)
	if err != nil || n > uint64(r.Remaining()) {
		return Failure(Incomplete)
	}
	ids := make([]uint64, 0, n)
	for range n {
		id, err := r.Uint(s.env.Policy.Common.ParamID)
		if err != nil {
			return Failure(Incomplete)
		}
		ids = append(ids, id)
	}
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return Failure(Pus3ParamDuplication)
		}
		seen[id] = struct{}{}
	}

	nfa, err := r.Uint(hk.Count)
	if err != nil || r.Remaining() != 0 {
		return Failure(Incomplete)
	}
	if nfa != 0 {
		return Failure(Pus3SuperCommutationUnsupported)
	}

	if appending {
		report.append(ids, s.params)
		return Success()
	}
	if _, err := s.Add(ns, sid, interval, ids, false); err != nil {
		s.log.Warn("Report not created", "error", err)
		return Fail()
	}
	return Success()
}

// forEach parses "N report IDs" and runs op for every ID that exists
func (s *Housekeeping) forEach(appData []byte, ns Namespace, op func(r *HousekeepingReport) error) Result {
	hk := s.env.Policy.Housekeeping
	ids, ok := readIDs(appData, hk.Count, hk.StructureID)
	if !ok {
		return Failure(Incomplete)
	}
	var failed bool
	for _, sid := range ids {
		r, exists := s.reports[ns][sid]
		if !exists {
			continue
		}
		if err := op(r); err != nil {
			s.log.Warn("Report operation failed", "sid", sid, "error", err)
			failed = true
		}
	}
	if failed {
		return Fail()
	}
	return Success()
}

func (s *Housekeeping) delete(appData []byte, ns Namespace) Result {
	return s.forEach(appData, ns, func(r *HousekeepingReport) error {
		if !r.Enabled() {
			delete(s.reports[ns], r.ID())
		}
		return nil
	})
}

func (s *Housekeeping) toggle(appData []byte, ns Namespace, enable bool) Result {
	return s.forEach(appData, ns, func(r *HousekeepingReport) error {
		if enable {
			r.Enable()
		} else {
			r.Disable()
		}
		return nil
	})
}

func (s *Housekeeping) requestStructures(appData []byte, ns Namespace) Result {
	return s.forEach(appData, ns, func(r *HousekeepingReport) error {
		return s.emitStructureReport(r, ns)
	})
}

func (s *Housekeeping) requestReports(appData []byte, ns Namespace) Result {
	return s.forEach(appData, ns, func(r *HousekeepingReport) error {
		return s.emitParameterReport(r, ns)
	})
}

func (s *Housekeeping) modifyIntervals(appData []byte, ns Namespace) Result {
	hk := s.env.Policy.Housekeeping
	r := parameter.NewReader(appData)
	n, err := r.Uint(hk.Count)
	if err != nil {
		return Failure(Incomplete)
	}
	entry := uint64(hk.StructureID.Size() + hk.CollectionInterval.Size())
	if n > uint64(r.Remaining()) || n*entry != uint64(r.Remaining()) {
		return Failure(Incomplete)
	}
	for range n {
		sid, _ := r.Uint(hk.StructureID)
		interval, _ := r.Uint(hk.CollectionInterval)
		if report, exists := s.reports[ns][sid]; exists {
			report.SetCollectionInterval(interval)
		}
	}
	return Success()
}

func (s *Housekeeping) requestIntervalProperties(appData []byte, ns Namespace) Result {
	hk := s.env.Policy.Housekeeping
	ids, ok := readIDs(appData, hk.Count, hk.StructureID)
	if !ok {
		return Failure(Incomplete)
	}
	var found []*HousekeepingReport
	for _, sid := range ids {
		if r, exists := s.reports[ns][sid]; exists {
			found = append(found, r)
		}
	}
	data, err := s.propertiesData(found)
	if err != nil {
		s.log.Warn("Interval properties not encoded", "error", err)
		return Fail()
	}
	return s.emitResult(ns.pick(HousekeepingPropertiesReport, DiagnosticPropertiesReport), data)
}

func (s *Housekeeping) propertiesData(reports []*HousekeepingReport) ([]byte, error) {
	hk := s.env.Policy.Housekeeping
	data, err := hk.Count.Append(nil, uint64(len(reports)))
	if err != nil {
		return nil, err
	}
	for _, r := range reports {
		var status uint64
		if r.Enabled() {
			status = 1
		}
		if data, err = hk.StructureID.Append(data, r.ID()); err != nil {
			return nil, err
		}
		if data, err = hk.GenerationStatus.Append(data, status); err != nil {
			return nil, err
		}
		if data, err = hk.CollectionInterval.Append(data, r.interval); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// structureData echoes a report definition: SID, interval, N, parameter IDs
// and a zero count of super commutated arrays
func (s *Housekeeping) structureData(r *HousekeepingReport) ([]byte, error) {
	hk := s.env.Policy.Housekeeping
	data, err := hk.StructureID.Append(nil, r.ID())
	if err != nil {
		return nil, err
	}
	if data, err = hk.CollectionInterval.Append(data, r.interval); err != nil {
		return nil, err
	}
	if data, err = appendIDs(data, hk.Count, s.env.Policy.Common.ParamID, r.ids); err != nil {
		return nil, err
	}
	return hk.Count.Append(data, 0)
}

func (s *Housekeeping) emitStructureReport(r *HousekeepingReport, ns Namespace) error {
	data, err := s.structureData(r)
	if err != nil {
		return err
	}
	return s.emit(ns.pick(HousekeepingStructureReport, DiagnosticStructureReport), data)
}

func (s *Housekeeping) emitParameterReport(r *HousekeepingReport, ns Namespace) error {
	data, err := r.Bytes()
	if err != nil {
		return err
	}
	return s.emit(ns.pick(HousekeepingParameterReport, DiagnosticParameterReport), data)
}
