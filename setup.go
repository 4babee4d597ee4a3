// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rigol // import "sbinet.org/x/rigol"

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Setup describes how to configure the instrument for a capture run.
type Setup struct {
	Channel int `yaml:"channel"`

	Vertical struct {
		Scale  float64 `yaml:"scale"`  // volts per division
		Offset float64 `yaml:"offset"` // volts
	} `yaml:"vertical"`

	Timebase struct {
		Scale  float64 `yaml:"scale"`  // seconds per division
		Offset float64 `yaml:"offset"` // seconds
	} `yaml:"timebase"`

	Trigger struct {
		Mode    string        `yaml:"mode"`
		Source  string        `yaml:"source"`
		Slope   string        `yaml:"slope"`
		Level   float64       `yaml:"level"` // volts
		Sweep   string        `yaml:"sweep"`
		Poll    time.Duration `yaml:"poll"`
		Settle  time.Duration `yaml:"settle"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"trigger"`

	Acquire struct {
		Points     string  `yaml:"points"`
		Type       string  `yaml:"type"`
		Mode       string  `yaml:"mode"`
		Memory     string  `yaml:"memory"`
		SampleRate float64 `yaml:"sample_rate"` // required sample rate, Sa/s
	} `yaml:"acquire"`
}

// DefaultSetup returns the HFCLKAUDIO step response setup: signal on
// channel 1, trigger on the rising edge of the external input.
func DefaultSetup() Setup {
	var s Setup
	s.applyDefaults()
	s.Vertical.Scale = 430e-3
	s.Vertical.Offset = -1.58
	s.Timebase.Scale = 20e-9
	// trigger near the beginning of the buffer, but not at the very
	// beginning (8192ns): the first samples are garbage.
	s.Timebase.Offset = 8000e-9
	s.Trigger.Level = 1.2
	return s
}

// LoadSetup reads a YAML setup file.
// Fields missing from the file take their value from DefaultSetup.
func LoadSetup(fname string) (Setup, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return Setup{}, fmt.Errorf("could not read setup file: %w", err)
	}

	s := DefaultSetup()
	err = yaml.Unmarshal(raw, &s)
	if err != nil {
		return Setup{}, fmt.Errorf("could not decode setup file %q: %w", fname, err)
	}
	s.applyDefaults()

	err = s.Validate()
	if err != nil {
		return Setup{}, fmt.Errorf("invalid setup file %q: %w", fname, err)
	}
	return s, nil
}

func (s *Setup) applyDefaults() {
	if s.Channel == 0 {
		s.Channel = 1
	}
	if s.Trigger.Mode == "" {
		s.Trigger.Mode = TriggerEdge
	}
	if s.Trigger.Source == "" {
		s.Trigger.Source = SourceExt
	}
	if s.Trigger.Slope == "" {
		s.Trigger.Slope = SlopePos
	}
	if s.Trigger.Sweep == "" {
		s.Trigger.Sweep = SweepSingle
	}
	if s.Trigger.Poll == 0 {
		s.Trigger.Poll = defaultPoll
	}
	if s.Trigger.Settle == 0 {
		s.Trigger.Settle = defaultSettle
	}
	if s.Acquire.Points == "" {
		s.Acquire.Points = "RAW"
	}
	if s.Acquire.Type == "" {
		s.Acquire.Type = "NORM"
	}
	if s.Acquire.Mode == "" {
		s.Acquire.Mode = "REAL_TIME"
	}
	if s.Acquire.Memory == "" {
		s.Acquire.Memory = "NORMAL"
	}
	if s.Acquire.SampleRate == 0 {
		s.Acquire.SampleRate = 1e9
	}
}

// Validate checks the setup values that the instrument would not reject
// by itself.
func (s Setup) Validate() error {
	if _, err := channel(s.Channel); err != nil {
		return err
	}
	if s.Vertical.Scale <= 0 {
		return fmt.Errorf("invalid vertical scale %g V/div", s.Vertical.Scale)
	}
	if s.Timebase.Scale <= 0 {
		return fmt.Errorf("invalid time scale %g s/div", s.Timebase.Scale)
	}
	if s.Trigger.Sweep != SweepSingle {
		return fmt.Errorf("invalid trigger sweep %q: single-shot captures need %q", s.Trigger.Sweep, SweepSingle)
	}
	if s.Trigger.Poll < 0 || s.Trigger.Settle < 0 || s.Trigger.Timeout < 0 {
		return fmt.Errorf("invalid negative trigger delay")
	}
	return nil
}

// Apply configures the scope according to the setup.
// The other channel is hidden.
func (s Setup) Apply(scope *Scope) error {
	other := 3 - s.Channel
	cmds := []struct {
		name string
		f    func() error
	}{
		{"stop acquisition", scope.Stop},
		{"hide menu", func() error { return scope.SetMenuDisplay(false) }},
		{"display channel", func() error { return scope.SetChannelDisplay(s.Channel, true) }},
		{"hide other channel", func() error { return scope.SetChannelDisplay(other, false) }},
		{"set vertical scale", func() error { return scope.SetVerticalScale(s.Channel, s.Vertical.Scale) }},
		{"set vertical offset", func() error { return scope.SetVerticalOffset(s.Channel, s.Vertical.Offset) }},
		{"set time scale", func() error { return scope.SetTimeScale(s.Timebase.Scale) }},
		{"set time offset", func() error { return scope.SetTimeOffset(s.Timebase.Offset) }},
		{"set trigger mode", func() error { return scope.SetTriggerMode(s.Trigger.Mode) }},
		{"set trigger source", func() error { return scope.SetTriggerSource(s.Trigger.Source) }},
		{"set trigger slope", func() error { return scope.SetTriggerSlope(s.Trigger.Slope) }},
		{"set trigger level", func() error { return scope.SetTriggerLevel(s.Trigger.Level) }},
		{"set trigger sweep", func() error { return scope.SetTriggerSweep(s.Trigger.Sweep) }},
		{"set waveform points mode", func() error { return scope.SetWavePointsMode(s.Acquire.Points) }},
		{"set acquisition type", func() error { return scope.SetAcquireType(s.Acquire.Type) }},
		{"set acquisition mode", func() error { return scope.SetAcquireMode(s.Acquire.Mode) }},
		{"set memory depth", func() error { return scope.SetMemoryDepth(s.Acquire.Memory) }},
	}
	for _, cmd := range cmds {
		err := cmd.f()
		if err != nil {
			return fmt.Errorf("could not %s: %w", cmd.name, err)
		}
	}

	scope.Poll = s.Trigger.Poll
	scope.Settle = s.Trigger.Settle
	scope.Timeout = s.Trigger.Timeout
	return nil
}
