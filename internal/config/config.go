// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the pusgate YAML configuration
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/parameter"
	"github.com/Thermoquad/pusgate/pkg/pus/policy"
	"github.com/Thermoquad/pusgate/pkg/pus/process"
)

// Config is the complete pusgate configuration
type Config struct {
	Process ProcessConfig `yaml:"process"`
	Policy  PolicyConfig  `yaml:"policy"`
	Link    LinkConfig    `yaml:"link"`
	Log     LogConfig     `yaml:"log"`
	Archive ArchiveConfig `yaml:"archive"`
}

// ProcessConfig describes the hosted application process
type ProcessConfig struct {
	APID             uint16        `yaml:"apid"`
	Services         []int         `yaml:"services"`
	HousekeepingTick time.Duration `yaml:"housekeepingTick"`

	Parameters   []ParameterConfig    `yaml:"parameters"`
	Housekeeping []HousekeepingConfig `yaml:"housekeeping"`
	Events       []EventConfig        `yaml:"events"`
}

// PolicyConfig holds the mission conventions
type PolicyConfig struct {
	TcPusVersion     uint8       `yaml:"tcPusVersion"`
	TmPusVersion     uint8       `yaml:"tmPusVersion"`
	AckFlags         []string    `yaml:"ackFlags"`
	TcHasSource      bool        `yaml:"tcHasSource"`
	TmHasMsgCounter  bool        `yaml:"tmHasMsgCounter"`
	TmHasDestination bool        `yaml:"tmHasDestination"`
	HasPEC           bool        `yaml:"hasPec"`
	Time             TimeConfig  `yaml:"time"`
	Widths           WidthConfig `yaml:"widths"`
}

// TimeConfig is the CUC time code layout
type TimeConfig struct {
	BasicLength    int    `yaml:"basicLength"`
	FractionLength int    `yaml:"fractionLength"`
	Preamble       bool   `yaml:"preamble"`
	Epoch          string `yaml:"epoch"` // RFC 3339, empty for TAI
}

// WidthConfig holds the byte widths of ids and counts
type WidthConfig struct {
	ParamID            int `yaml:"paramId"`
	FailureCode        int `yaml:"failureCode"`
	StructureID        int `yaml:"structureId"`
	CollectionInterval int `yaml:"collectionInterval"`
	HousekeepingCount  int `yaml:"housekeepingCount"`
	GenerationStatus   int `yaml:"generationStatus"`
	EventDefinitionID  int `yaml:"eventDefinitionId"`
	EventCount         int `yaml:"eventCount"`
	FunctionID         int `yaml:"functionId"`
	FunctionCount      int `yaml:"functionCount"`
	ParameterCount     int `yaml:"parameterCount"`
}

// LinkConfig selects the serial port or websocket the gateway talks over
type LinkConfig struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"noSslVerify"`
}

// LogConfig configures logging and log file rotation
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

// ArchiveConfig describes packet archives
type ArchiveConfig struct {
	Path            string `yaml:"path"`
	OtherHeaderSize int    `yaml:"otherHeaderSize"`
	Compress        bool   `yaml:"compress"`
	CBOR            string `yaml:"cbor"`
}

var ackFlagNames = map[string]pus.AckFlags{
	"acceptance": pus.AckAcceptance,
	"start":      pus.AckStart,
	"progress":   pus.AckProgress,
	"completion": pus.AckCompletion,
}

// ParseAckFlags combines acknowledgement flag names (acceptance, start,
// progress, completion) into a flag set
func ParseAckFlags(names []string) (pus.AckFlags, error) {
	flags := pus.AckNone
	for _, name := range names {
		flag, ok := ackFlagNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return pus.AckNone, fmt.Errorf("unknown flag %q", name)
		}
		flags |= flag
	}
	return flags, nil
}

// Default returns the configuration used for anything a file leaves out
func Default() Config {
	p := policy.Default()
	var services []int
	for _, t := range process.DefaultServices {
		services = append(services, int(t))
	}
	return Config{
		Process: ProcessConfig{
			APID:             pus.IdleAPID,
			Services:         services,
			HousekeepingTick: p.Housekeeping.IntervalUnit,
		},
		Policy: PolicyConfig{
			TcPusVersion: p.TcPusVersion,
			TmPusVersion: p.TmPusVersion,
			AckFlags:     []string{"acceptance"},
			HasPEC:       p.HasPEC,
			Time: TimeConfig{
				BasicLength:    p.Time.BasicLength,
				FractionLength: p.Time.FractionLength,
				Preamble:       p.Time.Preamble,
			},
			Widths: WidthConfig{
				ParamID:            int(p.Common.ParamID),
				FailureCode:        int(p.RequestVerification.FailureCode),
				StructureID:        int(p.Housekeeping.StructureID),
				CollectionInterval: int(p.Housekeeping.CollectionInterval),
				HousekeepingCount:  int(p.Housekeeping.Count),
				GenerationStatus:   int(p.Housekeeping.GenerationStatus),
				EventDefinitionID:  int(p.EventReporting.EventDefinitionID),
				EventCount:         int(p.EventReporting.Count),
				FunctionID:         int(p.FunctionManagement.FunctionID),
				FunctionCount:      int(p.FunctionManagement.Count),
				ParameterCount:     int(p.ParameterManagement.Count),
			},
		},
		Link: LinkConfig{Baud: 115200},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  25,
			MaxAgeDays: 7,
			MaxBackups: 5,
		},
	}
}

// Load reads the YAML file at path over the defaults. Unknown keys are
// rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	// an empty file keeps the defaults
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields that are not checked by the policy itself
func (c *Config) Validate() error {
	if c.Process.APID > pus.MaxAPID {
		return fmt.Errorf("process.apid %d exceeds %d", c.Process.APID, pus.MaxAPID)
	}
	if _, err := c.ServiceTypes(); err != nil {
		return err
	}
	if c.Process.HousekeepingTick <= 0 {
		return errors.New("process.housekeepingTick must be positive")
	}
	if c.Link.Baud <= 0 {
		return fmt.Errorf("link.baud %d must be positive", c.Link.Baud)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Archive.OtherHeaderSize < 0 {
		return fmt.Errorf("archive.otherHeaderSize %d is negative", c.Archive.OtherHeaderSize)
	}
	if _, err := c.BuildPolicy(); err != nil {
		return err
	}
	for _, pc := range c.Process.Parameters {
		if _, err := pc.Build(); err != nil {
			return err
		}
	}
	for _, ec := range c.Process.Events {
		if _, err := ec.severity(); err != nil {
			return err
		}
	}
	return nil
}

// ServiceTypes returns the configured service types
func (c *Config) ServiceTypes() ([]uint8, error) {
	types := make([]uint8, 0, len(c.Process.Services))
	for _, s := range c.Process.Services {
		supported := s == pus.ServiceRequestVerification ||
			s >= 0 && s <= 255 && slices.Contains(process.DefaultServices, uint8(s))
		if !supported {
			return nil, fmt.Errorf("process.services: unsupported service %d", s)
		}
		types = append(types, uint8(s))
	}
	return types, nil
}

// BuildPolicy converts the policy section into a validated mission policy
func (c *Config) BuildPolicy() (*policy.Policy, error) {
	pc := c.Policy
	p := policy.Default()
	p.TcPusVersion = pc.TcPusVersion
	p.TmPusVersion = pc.TmPusVersion
	ack, err := ParseAckFlags(pc.AckFlags)
	if err != nil {
		return nil, fmt.Errorf("policy.ackFlags: %w", err)
	}
	p.DefaultAckFlags = ack
	p.TcHasSource = pc.TcHasSource
	p.TmHasMsgCounter = pc.TmHasMsgCounter
	p.TmHasDestination = pc.TmHasDestination
	p.HasPEC = pc.HasPEC

	p.Time = pus.CucFormat{
		BasicLength:    pc.Time.BasicLength,
		FractionLength: pc.Time.FractionLength,
		Preamble:       pc.Time.Preamble,
	}
	if pc.Time.Epoch != "" {
		epoch, err := time.Parse(time.RFC3339, pc.Time.Epoch)
		if err != nil {
			return nil, fmt.Errorf("policy.time.epoch: %w", err)
		}
		p.Time.Epoch = epoch.UTC()
	}

	w := pc.Widths
	p.Common.ParamID = parameter.UnsignedType(w.ParamID)
	p.RequestVerification.FailureCode = parameter.UnsignedType(w.FailureCode)
	p.Housekeeping.StructureID = parameter.UnsignedType(w.StructureID)
	p.Housekeeping.CollectionInterval = parameter.UnsignedType(w.CollectionInterval)
	p.Housekeeping.Count = parameter.UnsignedType(w.HousekeepingCount)
	p.Housekeeping.GenerationStatus = parameter.UnsignedType(w.GenerationStatus)
	p.Housekeeping.IntervalUnit = c.Process.HousekeepingTick
	p.EventReporting.EventDefinitionID = parameter.UnsignedType(w.EventDefinitionID)
	p.EventReporting.Count = parameter.UnsignedType(w.EventCount)
	p.FunctionManagement.FunctionID = parameter.UnsignedType(w.FunctionID)
	p.FunctionManagement.Count = parameter.UnsignedType(w.FunctionCount)
	p.ParameterManagement.Count = parameter.UnsignedType(w.ParameterCount)

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	return p, nil
}
