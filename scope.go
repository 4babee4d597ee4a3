// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rigol controls Rigol DS1000E/D series oscilloscopes over a
// USBTMC character device, and captures single-shot waveforms from them.
package rigol // import "sbinet.org/x/rigol"

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	defaultPoll   = 500 * time.Millisecond
	defaultSettle = 500 * time.Millisecond

	waveReadLen = 2000000
)

// Trigger status values reported by :TRIG:STAT?.
const (
	StatusRun  = "RUN"
	StatusStop = "STOP"
	StatusTD   = "T'D"
	StatusWait = "WAIT"
	StatusAuto = "AUTO"
)

// Edge trigger settings.
const (
	TriggerEdge = "EDGE"

	SourceCh1  = "CHAN1"
	SourceCh2  = "CHAN2"
	SourceExt  = "EXT"
	SourceLine = "ACLINE"

	SlopePos = "POS"
	SlopeNeg = "NEG"

	SweepAuto   = "AUTO"
	SweepNormal = "NORMAL"
	SweepSingle = "SING"
)

// Scope is a DS1000E/D oscilloscope.
//
// All the instrument settings (scales, offsets, trigger) live on the
// instrument: getters always query it, nothing is cached locally.
type Scope struct {
	*Device

	// Poll is the delay between two trigger status queries.
	Poll time.Duration
	// Settle is the extra delay after the acquisition reported STOP.
	Settle time.Duration
	// Timeout bounds the trigger wait. Zero means no bound.
	Timeout time.Duration

	warned bool // time axis extrapolation warning
}

// Open opens the scope attached to the USBTMC device at path.
func Open(path string) (*Scope, error) {
	dev, err := OpenDevice(path)
	if err != nil {
		return nil, err
	}
	return New(dev), nil
}

// New creates a scope driver on top of an opened device.
// The scope takes ownership of the device.
func New(dev *Device) *Scope {
	return &Scope{
		Device: dev,
		Poll:   defaultPoll,
		Settle: defaultSettle,
	}
}

// With opens the scope at path, runs f and closes the scope,
// whatever f returned.
func With(path string, f func(scope *Scope) error) (err error) {
	scope, err := Open(path)
	if err != nil {
		return err
	}
	defer func() {
		e := scope.Close()
		if e != nil {
			err = errors.Join(err, e)
		}
	}()

	return f(scope)
}

func channel(ch int) (string, error) {
	if ch < 1 || ch > 2 {
		return "", fmt.Errorf("%w: channel %d not in [1, 2]", ErrRange, ch)
	}
	return fmt.Sprintf("CHAN%d", ch), nil
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}

func (s *Scope) writef(format string, args ...any) error {
	return s.Write(fmt.Sprintf(format, args...))
}

func (s *Scope) SetChannelDisplay(ch int, enabled bool) error {
	c, err := channel(ch)
	if err != nil {
		return err
	}
	return s.writef(":%s:DISP %s", c, onOff(enabled))
}

// VerticalScale returns the vertical scale of channel ch, in volts per division.
func (s *Scope) VerticalScale(ch int) (float64, error) {
	c, err := channel(ch)
	if err != nil {
		return 0, err
	}
	return s.AskFloat(":" + c + ":SCAL?")
}

// SetVerticalScale sets the channel scale, in volts per division.
func (s *Scope) SetVerticalScale(ch int, scale float64) error {
	c, err := channel(ch)
	if err != nil {
		return err
	}
	return s.writef(":%s:SCAL %.12f", c, scale)
}

func (s *Scope) VerticalOffset(ch int) (float64, error) {
	c, err := channel(ch)
	if err != nil {
		return 0, err
	}
	return s.AskFloat(":" + c + ":OFFS?")
}

// SetVerticalOffset sets the channel offset, in volts.
func (s *Scope) SetVerticalOffset(ch int, offset float64) error {
	c, err := channel(ch)
	if err != nil {
		return err
	}
	return s.writef(":%s:OFFS %.12f", c, offset)
}

// Vertical holds the vertical settings of a channel.
type Vertical struct {
	Scale  float64 // volts per division
	Offset float64 // volts
}

// Vertical queries the current vertical settings of channel ch.
func (s *Scope) Vertical(ch int) (Vertical, error) {
	var (
		v   Vertical
		err error
	)
	v.Scale, err = s.VerticalScale(ch)
	if err != nil {
		return v, fmt.Errorf("could not get vertical scale of channel %d: %w", ch, err)
	}
	v.Offset, err = s.VerticalOffset(ch)
	if err != nil {
		return v, fmt.Errorf("could not get vertical offset of channel %d: %w", ch, err)
	}
	return v, nil
}

// TimeScale returns the horizontal scale, in seconds per division.
func (s *Scope) TimeScale() (float64, error) {
	return s.AskFloat(":TIM:SCAL?")
}

// SetTimeScale sets the timebase scale, in seconds per division.
func (s *Scope) SetTimeScale(scale float64) error {
	return s.writef(":TIM:SCAL %.12f", scale)
}

// TimeOffset returns the horizontal offset, in seconds.
func (s *Scope) TimeOffset() (float64, error) {
	return s.AskFloat(":TIM:OFFS?")
}

// SetTimeOffset sets the timebase offset, in seconds.
func (s *Scope) SetTimeOffset(offset float64) error {
	return s.writef(":TIM:OFFS %.12f", offset)
}

// Timebase holds the horizontal settings of the instrument.
type Timebase struct {
	Scale  float64 // seconds per division
	Offset float64 // seconds
}

// Timebase queries the current timebase settings.
func (s *Scope) Timebase() (Timebase, error) {
	var (
		tb  Timebase
		err error
	)
	tb.Scale, err = s.TimeScale()
	if err != nil {
		return tb, fmt.Errorf("could not get time scale: %w", err)
	}
	tb.Offset, err = s.TimeOffset()
	if err != nil {
		return tb, fmt.Errorf("could not get time offset: %w", err)
	}
	return tb, nil
}

// SetTriggerMode selects the trigger mode, e.g. TriggerEdge.
func (s *Scope) SetTriggerMode(mode string) error {
	return s.Write(":TRIG:MODE " + mode)
}

// SetTriggerSource selects the edge trigger source.
func (s *Scope) SetTriggerSource(src string) error {
	return s.Write(":TRIG:EDGE:SOUR " + src)
}

// SetTriggerSlope selects the edge trigger slope.
func (s *Scope) SetTriggerSlope(slope string) error {
	return s.Write(":TRIG:EDGE:SLOPE " + slope)
}

// SetTriggerLevel sets the edge trigger level, in volts.
func (s *Scope) SetTriggerLevel(level float64) error {
	return s.writef(":TRIG:EDGE:LEV %.12f", level)
}

// SetTriggerSweep selects the trigger sweep mode.
func (s *Scope) SetTriggerSweep(sweep string) error {
	return s.Write(":TRIG:EDGE:SWE " + sweep)
}

// SetMenuDisplay shows or hides the on-screen menu.
func (s *Scope) SetMenuDisplay(enabled bool) error {
	return s.Write(":DISP:MNUS " + onOff(enabled))
}

// SetWavePointsMode selects which points :WAV:DATA? returns
// (NORMAL, MAXIMUM or RAW).
func (s *Scope) SetWavePointsMode(mode string) error {
	return s.Write(":WAV:POIN:MODE " + mode)
}

// SetAcquireType selects NORM, AVER or PEAK acquisition.
func (s *Scope) SetAcquireType(typ string) error {
	return s.Write(":ACQ:TYPE " + typ)
}

// SetAcquireMode selects REAL_TIME or EQUAL_TIME sampling.
func (s *Scope) SetAcquireMode(mode string) error {
	return s.Write(":ACQ:MODE " + mode)
}

// SetMemoryDepth selects NORMAL or LONG memory.
func (s *Scope) SetMemoryDepth(depth string) error {
	return s.Write(":ACQ:MEMD " + depth)
}

// SampleRate returns the current sample rate, in samples per second.
func (s *Scope) SampleRate() (float64, error) {
	return s.AskFloat(":ACQ:SAMP?")
}

// CheckSampleRate makes sure the instrument samples at want samples per second.
func (s *Scope) CheckSampleRate(want float64) error {
	got, err := s.SampleRate()
	if err != nil {
		return fmt.Errorf("could not get sample rate: %w", err)
	}
	if got != want {
		return fmt.Errorf("%w: sample rate is %g Sa/s, want %g Sa/s", ErrPrecondition, got, want)
	}
	return nil
}

// LocalMode gives control back to the front panel.
func (s *Scope) LocalMode() error {
	return s.Write(":KEY:FORC")
}

// Run starts an acquisition.
func (s *Scope) Run() error {
	return s.Write(":RUN")
}

// Stop halts the acquisition.
func (s *Scope) Stop() error {
	return s.Write(":STOP")
}

// TriggerStatus returns the acquisition status (RUN, STOP, T'D, WAIT or AUTO).
func (s *Scope) TriggerStatus() (string, error) {
	st, err := s.Ask(":TRIG:STAT?")
	if err != nil {
		return "", fmt.Errorf("could not get trigger status: %w", err)
	}
	return strings.TrimSpace(st), nil
}

// Trigger arms a single acquisition and waits for it to complete.
//
// The trigger sweep must have been set to single beforehand.
// Trigger polls the instrument every s.Poll until it reports STOP,
// then waits s.Settle before stopping the acquisition explicitly.
// If ctx is done or s.Timeout expires first, Trigger stops the
// acquisition and returns an error wrapping ErrTimeout.
func (s *Scope) Trigger(ctx context.Context) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	err := s.Run()
	if err != nil {
		return fmt.Errorf("could not start acquisition: %w", err)
	}

	err = s.waitForStop(ctx)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			err = errors.Join(err, s.Stop())
		}
		return err
	}

	err = s.Stop()
	if err != nil {
		return fmt.Errorf("could not stop acquisition: %w", err)
	}
	return nil
}

func (s *Scope) waitForStop(ctx context.Context) error {
	for {
		st, err := s.TriggerStatus()
		if err != nil {
			return err
		}
		if st == StatusStop {
			break
		}
		err = sleep(ctx, s.Poll)
		if err != nil {
			return fmt.Errorf("%w (last status %q): %w", ErrTimeout, st, err)
		}
	}

	// the status query may report STOP before the record is available.
	time.Sleep(s.Settle)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	tmr := time.NewTimer(d)
	defer tmr.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}

// WaveRaw returns the raw sample codes of channel ch, without the block header.
func (s *Scope) WaveRaw(ch int) ([]byte, error) {
	c, err := channel(ch)
	if err != nil {
		return nil, err
	}

	err = s.Write(":WAV:DATA? " + c)
	if err != nil {
		return nil, fmt.Errorf("could not request waveform of channel %d: %w", ch, err)
	}

	raw, err := s.Read(waveReadLen)
	if err != nil {
		return nil, fmt.Errorf("could not read waveform of channel %d: %w", ch, err)
	}
	if len(raw) < waveHeaderLen {
		return nil, fmt.Errorf(
			"%w: waveform block of channel %d too short (%d bytes)",
			ErrDecode, ch, len(raw),
		)
	}

	return raw[waveHeaderLen:], nil
}

// Wave returns the last acquired waveform of channel ch, in volts.
func (s *Scope) Wave(ch int) ([]float64, error) {
	raw, err := s.WaveRaw(ch)
	if err != nil {
		return nil, err
	}

	v, err := s.Vertical(ch)
	if err != nil {
		return nil, err
	}

	return Decode(raw, v.Scale, v.Offset), nil
}

// WaveTime returns the time axis, in seconds, of a waveform of n samples
// acquired with the current timebase settings.
func (s *Scope) WaveTime(n int) ([]float64, error) {
	rate, err := s.SampleRate()
	if err != nil {
		return nil, fmt.Errorf("could not get sample rate: %w", err)
	}

	offset, err := s.TimeOffset()
	if err != nil {
		return nil, fmt.Errorf("could not get time offset: %w", err)
	}

	if n != RefSamples && !s.warned {
		log.Printf("time axis of %d samples extrapolated from the %d samples formula", n, RefSamples)
		s.warned = true
	}

	return TimeAxis(n, rate, offset), nil
}
