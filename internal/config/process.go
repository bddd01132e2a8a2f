// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/parameter"
	"github.com/Thermoquad/pusgate/pkg/pus/process"
	"github.com/Thermoquad/pusgate/pkg/pus/services"
)

// ParameterConfig declares an onboard parameter
type ParameterConfig struct {
	ID    uint64 `yaml:"id"`
	Type  string `yaml:"type"`
	Size  int    `yaml:"size"` // octets of an octet string, bits of an enum
	Value any    `yaml:"value"`
}

// HousekeepingConfig declares a report present at start up
type HousekeepingConfig struct {
	SID        uint64   `yaml:"sid"`
	Interval   uint64   `yaml:"interval"`
	Params     []uint64 `yaml:"params"`
	Enabled    bool     `yaml:"enabled"`
	Diagnostic bool     `yaml:"diagnostic"`
}

// EventConfig declares an event. Without toValue the event fires on every
// change of its trigger parameter; with fromValue as well it fires on that
// transition only.
type EventConfig struct {
	ID        uint64   `yaml:"id"`
	Severity  string   `yaml:"severity"`
	Params    []uint64 `yaml:"params"`
	Disabled  bool     `yaml:"disabled"`
	Trigger   *uint64  `yaml:"trigger"`
	FromValue any      `yaml:"fromValue"`
	ToValue   any      `yaml:"toValue"`
}

var severityNames = map[string]services.Severity{
	"":       services.Informative,
	"info":   services.Informative,
	"low":    services.LowSeverity,
	"medium": services.MediumSeverity,
	"high":   services.HighSeverity,
}

func (e EventConfig) severity() (services.Severity, error) {
	s, ok := severityNames[strings.ToLower(e.Severity)]
	if !ok {
		return 0, fmt.Errorf("event %d: unknown severity %q", e.ID, e.Severity)
	}
	return s, nil
}

func (e EventConfig) trigger() services.Trigger {
	switch {
	case e.ToValue == nil:
		return services.OnChange()
	case e.FromValue == nil:
		return services.ToValue(e.ToValue)
	default:
		return services.FromTo(e.FromValue, e.ToValue)
	}
}

// Build creates the parameter with its initial value
func (pc ParameterConfig) Build() (parameter.Parameter, error) {
	var (
		p   parameter.Parameter
		err error
	)
	value := pc.Value
	typ := strings.ToLower(pc.Type)
	switch typ {
	case "bool":
		p = parameter.NewBool(false)
	case "uint8":
		p = parameter.NewUInt8(0)
	case "uint16":
		p = parameter.NewUInt16(0)
	case "uint32":
		p = parameter.NewUInt32(0)
	case "uint64":
		p = parameter.NewUInt64(0)
	case "int8":
		p = parameter.NewInt8(0)
	case "int16":
		p = parameter.NewInt16(0)
	case "int32":
		p = parameter.NewInt32(0)
	case "int64":
		p = parameter.NewInt64(0)
	case "real32", "real64":
		if typ == "real32" {
			p = parameter.NewReal32(0)
		} else {
			p = parameter.NewReal64(0)
		}
		// YAML reads whole numbers as integers
		switch n := value.(type) {
		case int:
			value = float64(n)
		case int64:
			value = float64(n)
		case uint64:
			value = float64(n)
		}
	case "enum":
		p, err = parameter.NewEnum(pc.Size, 0)
	case "octets":
		p, err = parameter.NewOctetString(pc.Size, nil)
	default:
		return nil, fmt.Errorf("parameter %d: unknown type %q", pc.ID, pc.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parameter %d: %w", pc.ID, err)
	}
	if value != nil {
		if err := p.SetValue(value); err != nil {
			return nil, fmt.Errorf("parameter %d: %w", pc.ID, err)
		}
	}
	return p, nil
}

// NewProcess creates the configured application process writing to output
func (c *Config) NewProcess(output services.Output, logger *slog.Logger) (*process.Process, error) {
	pol, err := c.BuildPolicy()
	if err != nil {
		return nil, err
	}
	types, err := c.ServiceTypes()
	if err != nil {
		return nil, err
	}
	p, err := process.New(c.Process.APID, output, pol, process.WithLogger(logger), process.WithServices(types...))
	if err != nil {
		return nil, err
	}

	for _, pc := range c.Process.Parameters {
		param, err := pc.Build()
		if err != nil {
			return nil, err
		}
		if err := p.AddParam(pc.ID, param); err != nil {
			return nil, err
		}
	}

	if len(c.Process.Housekeeping) > 0 {
		hk := p.Housekeeping()
		if hk == nil {
			return nil, fmt.Errorf("housekeeping reports configured but service %d is not enabled", pus.ServiceHousekeeping)
		}
		for _, hc := range c.Process.Housekeeping {
			ns := services.HousekeepingReports
			if hc.Diagnostic {
				ns = services.DiagnosticReports
			}
			if _, err := hk.Add(ns, hc.SID, hc.Interval, hc.Params, hc.Enabled); err != nil {
				return nil, fmt.Errorf("housekeeping report %d: %w", hc.SID, err)
			}
		}
	}

	if len(c.Process.Events) > 0 {
		events := p.EventReporting()
		if events == nil {
			return nil, fmt.Errorf("events configured but service %d is not enabled", pus.ServiceEventReporting)
		}
		for _, ec := range c.Process.Events {
			severity, err := ec.severity()
			if err != nil {
				return nil, err
			}
			def := services.EventDefinition{
				ID:       ec.ID,
				Severity: severity,
				ParamIDs: ec.Params,
				Disabled: ec.Disabled,
				Trigger:  ec.trigger(),
			}
			if ec.Trigger != nil {
				param, ok := p.Param(*ec.Trigger)
				if !ok {
					return nil, fmt.Errorf("event %d: unknown trigger parameter %d", ec.ID, *ec.Trigger)
				}
				def.TriggerParam = param
			}
			if _, err := events.Add(def); err != nil {
				return nil, fmt.Errorf("event %d: %w", ec.ID, err)
			}
		}
	}
	return p, nil
}
