// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package services

import (
	"fmt"
	"maps"
	"slices"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/parameter"
)

// Severity is the event severity, also the subservice of the event report
type Severity uint8

const (
	Informative    Severity = 1
	LowSeverity    Severity = 2
	MediumSeverity Severity = 3
	HighSeverity   Severity = 4
)

func (s Severity) String() string {
	switch s {
	case Informative:
		return "INFO"
	case LowSeverity:
		return "LOW"
	case MediumSeverity:
		return "MEDIUM"
	case HighSeverity:
		return "HIGH"
	}
	return fmt.Sprintf("SEVERITY_%d", uint8(s))
}

// DisabledEventsReport is the subservice of the disabled event list
const DisabledEventsReport uint8 = 8

type triggerKind int

const (
	onChange triggerKind = iota
	toValue
	fromTo
)

// Trigger is the condition on a parameter change that raises an event. The
// zero value fires on any change.
type Trigger struct {
	kind     triggerKind
	from, to any
}

// OnChange fires on every change of the parameter
func OnChange() Trigger {
	return Trigger{kind: onChange}
}

// ToValue fires when the parameter changes to v
func ToValue(v any) Trigger {
	return Trigger{kind: toValue, to: v}
}

// FromTo fires when the parameter changes from one value directly to another
func FromTo(from, to any) Trigger {
	return Trigger{kind: fromTo, from: from, to: to}
}

// Fires reports whether a change from oldValue to newValue meets the condition
func (t Trigger) Fires(oldValue, newValue any) bool {
	switch t.kind {
	case toValue:
		return parameter.Equal(newValue, t.to)
	case fromTo:
		return parameter.Equal(oldValue, t.from) && parameter.Equal(newValue, t.to)
	}
	return true
}

// EventReport is a parameter report emitted when an event occurs
type EventReport struct {
	ParamReport
	severity Severity
}

// Severity returns the event severity
func (r *EventReport) Severity() Severity {
	return r.severity
}

// EventDefinition describes an event to add to the event reporting service
type EventDefinition struct {
	ID       uint64
	Severity Severity
	// ParamIDs are the parameters carried in the report; unknown IDs are skipped
	ParamIDs []uint64
	Disabled bool

	// TriggerParam raises the event on its changes when set
	TriggerParam parameter.Parameter
	Trigger      Trigger
}

// EventReporting is PUS service 5
type EventReporting struct {
	service
	params  parameter.Table
	reports map[uint64]*EventReport
}

// NewEventReporting creates the event reporting service
func NewEventReporting(env Env, verification *RequestVerification, params parameter.Table) *EventReporting {
	s := &EventReporting{
		service: newService(pus.ServiceEventReporting, "event reporting", env, verification),
		params:  params,
		reports: make(map[uint64]*EventReport),
	}
	s.register(5, func(d []byte) Result { return s.toggle(d, true) })
	s.register(6, func(d []byte) Result { return s.toggle(d, false) })
	s.register(7, s.reportDisabled)
	return s
}

// Add defines an event. With a trigger parameter the event is dispatched
// from that parameter's change notifications.
func (s *EventReporting) Add(def EventDefinition) (*EventReport, error) {
	if _, exists := s.reports[def.ID]; exists {
		return nil, fmt.Errorf("%w: event %d", ErrReportExists, def.ID)
	}
	idType := s.env.Policy.EventReporting.EventDefinitionID
	if def.ID > idType.Max() {
		return nil, fmt.Errorf("%w: event ID %d", parameter.ErrRange, def.ID)
	}
	severity := def.Severity
	if severity == 0 {
		severity = Informative
	}

	r := &EventReport{
		ParamReport: newParamReport(def.ID, idType, !def.Disabled),
		severity:    severity,
	}
	r.append(def.ParamIDs, s.params)
	s.reports[def.ID] = r

	if def.TriggerParam != nil {
		trigger := def.Trigger
		def.TriggerParam.Subscribe(func(oldValue, newValue any) {
			if !r.Enabled() || !trigger.Fires(oldValue, newValue) {
				return
			}
			if err := s.DispatchReport(r); err != nil {
				s.log.Warn("Event not dispatched", "event", r.ID(), "error", err)
			}
		})
	}
	return r, nil
}

// Report returns the event with the given ID
func (s *EventReporting) Report(id uint64) (*EventReport, bool) {
	r, ok := s.reports[id]
	return r, ok
}

// Dispatch emits the event with the given ID unless it is disabled
func (s *EventReporting) Dispatch(id uint64) error {
	r, ok := s.reports[id]
	if !ok {
		return fmt.Errorf("%w: event %d", ErrUnknownReport, id)
	}
	return s.DispatchReport(r)
}

// DispatchReport emits r with its severity as subservice unless it is disabled
func (s *EventReporting) DispatchReport(r *EventReport) error {
	if !r.Enabled() {
		return nil
	}
	data, err := r.Bytes()
	if err != nil {
		return err
	}
	return s.emit(uint8(r.severity), data)
}

// toggle enables or disables the listed events. The request fails without
// changing anything if any ID is unknown.
func (s *EventReporting) toggle(appData []byte, enable bool) Result {
	er := s.env.Policy.EventReporting
	ids, ok := readIDs(appData, er.Count, er.EventDefinitionID)
	if !ok {
		return Failure(Incomplete)
	}
	for _, id := range ids {
		if _, exists := s.reports[id]; !exists {
			return Failure(IllegalAppData)
		}
	}
	for _, id := range ids {
		if enable {
			s.reports[id].Enable()
		} else {
			s.reports[id].Disable()
		}
	}
	return Success()
}

func (s *EventReporting) reportDisabled(appData []byte) Result {
	if len(appData) != 0 {
		return Failure(IllegalAppData)
	}
	var disabled []uint64
	for _, id := range slices.Sorted(maps.Keys(s.reports)) {
		if !s.reports[id].Enabled() {
			disabled = append(disabled, id)
		}
	}
	er := s.env.Policy.EventReporting
	data, err := appendIDs(nil, er.Count, er.EventDefinitionID, disabled)
	if err != nil {
		s.log.Warn("Disabled event list not encoded", "error", err)
		return Fail()
	}
	return s.emitResult(DisabledEventsReport, data)
}
