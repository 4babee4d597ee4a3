// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rigol

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"sbinet.org/x/rigol/internal/fakescope"
)

func newTestScope(t *testing.T) (*Scope, *fakescope.Scope) {
	t.Helper()
	fake := fakescope.New()
	scope := New(NewDevice(fake))
	scope.Poll = time.Millisecond
	scope.Settle = time.Millisecond
	t.Cleanup(func() { _ = scope.Close() })
	return scope, fake
}

func TestCommands(t *testing.T) {
	scope, fake := newTestScope(t)

	for _, tc := range []struct {
		f    func() error
		want string
	}{
		{func() error { return scope.SetChannelDisplay(1, true) }, ":CHAN1:DISP ON"},
		{func() error { return scope.SetChannelDisplay(2, false) }, ":CHAN2:DISP OFF"},
		{func() error { return scope.SetVerticalScale(1, 430e-3) }, ":CHAN1:SCAL 0.430000000000"},
		{func() error { return scope.SetVerticalOffset(1, -1.58) }, ":CHAN1:OFFS -1.580000000000"},
		{func() error { return scope.SetTimeScale(20e-9) }, ":TIM:SCAL 0.000000020000"},
		{func() error { return scope.SetTimeOffset(8000e-9) }, ":TIM:OFFS 0.000008000000"},
		{func() error { return scope.SetTriggerMode(TriggerEdge) }, ":TRIG:MODE EDGE"},
		{func() error { return scope.SetTriggerSource(SourceExt) }, ":TRIG:EDGE:SOUR EXT"},
		{func() error { return scope.SetTriggerSlope(SlopePos) }, ":TRIG:EDGE:SLOPE POS"},
		{func() error { return scope.SetTriggerLevel(1.2) }, ":TRIG:EDGE:LEV 1.200000000000"},
		{func() error { return scope.SetTriggerSweep(SweepSingle) }, ":TRIG:EDGE:SWE SING"},
		{func() error { return scope.SetMenuDisplay(false) }, ":DISP:MNUS OFF"},
		{func() error { return scope.SetWavePointsMode("RAW") }, ":WAV:POIN:MODE RAW"},
		{func() error { return scope.SetAcquireType("NORM") }, ":ACQ:TYPE NORM"},
		{func() error { return scope.SetAcquireMode("REAL_TIME") }, ":ACQ:MODE REAL_TIME"},
		{func() error { return scope.SetMemoryDepth("NORMAL") }, ":ACQ:MEMD NORMAL"},
		{scope.LocalMode, ":KEY:FORC"},
		{scope.Reset, "*RST"},
	} {
		err := tc.f()
		if err != nil {
			t.Fatalf("could not send %q: %+v", tc.want, err)
		}
		cmds := fake.Commands()
		if got := cmds[len(cmds)-1]; got != tc.want {
			t.Fatalf("invalid command: got=%q, want=%q", got, tc.want)
		}
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	scope, _ := newTestScope(t)

	for _, f := range []func() error{
		func() error { return scope.SetVerticalScale(2, 0.2) },
		func() error { return scope.SetVerticalOffset(2, -0.5) },
		func() error { return scope.SetTimeScale(20e-9) },
		func() error { return scope.SetTimeOffset(8e-6) },
	} {
		if err := f(); err != nil {
			t.Fatalf("could not configure scope: %+v", err)
		}
	}

	v, err := scope.Vertical(2)
	if err != nil {
		t.Fatalf("could not get vertical settings: %+v", err)
	}
	if got, want := v, (Vertical{Scale: 0.2, Offset: -0.5}); got != want {
		t.Fatalf("invalid vertical settings: got=%+v, want=%+v", got, want)
	}

	tb, err := scope.Timebase()
	if err != nil {
		t.Fatalf("could not get timebase: %+v", err)
	}
	if got, want := tb, (Timebase{Scale: 20e-9, Offset: 8e-6}); got != want {
		t.Fatalf("invalid timebase: got=%+v, want=%+v", got, want)
	}
}

func TestChannelRange(t *testing.T) {
	scope, _ := newTestScope(t)

	for _, ch := range []int{-1, 0, 3} {
		_, err := scope.Wave(ch)
		if !errors.Is(err, ErrRange) {
			t.Errorf("wave(%d): invalid error: got=%+v, want=%v", ch, err, ErrRange)
		}
		err = scope.SetVerticalScale(ch, 1)
		if !errors.Is(err, ErrRange) {
			t.Errorf("scale(%d): invalid error: got=%+v, want=%v", ch, err, ErrRange)
		}
	}

	for _, ch := range []int{1, 2} {
		wave, err := scope.Wave(ch)
		if err != nil {
			t.Errorf("wave(%d): %+v", ch, err)
		}
		if got, want := len(wave), 600; got != want {
			t.Errorf("wave(%d): invalid length: got=%d, want=%d", ch, got, want)
		}
	}
}

func TestTrigger(t *testing.T) {
	for _, polls := range []int{0, 1, 5} {
		scope, fake := newTestScope(t)
		fake.Polls = polls

		err := scope.Trigger(context.Background())
		if err != nil {
			t.Fatalf("polls=%d: could not trigger: %+v", polls, err)
		}

		for _, tc := range []struct {
			cmd  string
			want int
		}{
			{":RUN", 1},
			{":TRIG:STAT?", polls + 1},
			{":STOP", 1},
		} {
			if got := fake.Count(tc.cmd); got != tc.want {
				t.Errorf("polls=%d: invalid number of %q: got=%d, want=%d", polls, tc.cmd, got, tc.want)
			}
		}
		cmds := fake.Commands()
		if got, want := cmds[len(cmds)-1], ":STOP"; got != want {
			t.Errorf("polls=%d: invalid last command: got=%q, want=%q", polls, got, want)
		}
	}
}

func TestTriggerSettle(t *testing.T) {
	scope, fake := newTestScope(t)
	scope.Settle = 50 * time.Millisecond

	start := time.Now()
	err := scope.Trigger(context.Background())
	if err != nil {
		t.Fatalf("could not trigger: %+v", err)
	}
	if got, want := time.Since(start), scope.Settle; got < want {
		t.Fatalf("settle delay not applied: got=%v, want>=%v", got, want)
	}
	if got, want := fake.Count(":TRIG:STAT?"), 1; got != want {
		t.Fatalf("invalid number of status queries: got=%d, want=%d", got, want)
	}
}

func TestTriggerTimeout(t *testing.T) {
	scope, fake := newTestScope(t)
	fake.Never = true
	scope.Timeout = 20 * time.Millisecond

	err := scope.Trigger(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, ErrTimeout)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, context.DeadlineExceeded)
	}
	if got, want := fake.Status(), StatusStop; got != want {
		t.Fatalf("scope left running: got=%q, want=%q", got, want)
	}
	if got := fake.Count(":TRIG:STAT?"); got < 2 {
		t.Fatalf("trigger status not polled: %d", got)
	}
}

func TestTriggerCancel(t *testing.T) {
	scope, fake := newTestScope(t)
	fake.Never = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := scope.Trigger(ctx)
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, context.Canceled) {
		t.Fatalf("invalid error: got=%+v", err)
	}
}

func TestWave(t *testing.T) {
	scope, fake := newTestScope(t)
	fake.Chans[1].Wave = []byte{240, 0, 215, 115}

	err := scope.SetVerticalScale(1, 0.5)
	if err != nil {
		t.Fatalf("could not set scale: %+v", err)
	}

	wave, err := scope.Wave(1)
	if err != nil {
		t.Fatalf("could not get waveform: %+v", err)
	}
	want := []float64{-2.3, 2.5, -1.8, 0.2}
	if len(wave) != len(want) {
		t.Fatalf("invalid length: got=%d, want=%d", len(wave), len(want))
	}
	for i := range want {
		if math.Abs(wave[i]-want[i]) > 1e-12 {
			t.Errorf("v[%d]: got=%g, want=%g", i, wave[i], want[i])
		}
	}

	// scale is queried for each waveform.
	err = scope.SetVerticalScale(1, 1)
	if err != nil {
		t.Fatalf("could not set scale: %+v", err)
	}
	wave, err = scope.Wave(1)
	if err != nil {
		t.Fatalf("could not get waveform: %+v", err)
	}
	if got, want := wave[0], -4.6; math.Abs(got-want) > 1e-12 {
		t.Fatalf("stale vertical scale: got=%g, want=%g", got, want)
	}
}

func TestWaveShortBlock(t *testing.T) {
	scope, fake := newTestScope(t)
	fake.Replies = map[string]string{":WAV:DATA? CHAN1": "#800"}

	_, err := scope.Wave(1)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, ErrDecode)
	}
}

func TestCheckSampleRate(t *testing.T) {
	scope, fake := newTestScope(t)

	err := scope.CheckSampleRate(1e9)
	if err != nil {
		t.Fatalf("invalid sample rate check: %+v", err)
	}

	fake.SampleRate = 500e6
	err = scope.CheckSampleRate(1e9)
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, ErrPrecondition)
	}
}

func TestWaveTime(t *testing.T) {
	buf := new(bytes.Buffer)
	defer log.SetOutput(log.Writer())
	defer log.SetFlags(log.Flags())
	log.SetOutput(buf)
	log.SetFlags(0)

	scope, fake := newTestScope(t)

	for range 2 {
		got, err := scope.WaveTime(RefSamples)
		if err != nil {
			t.Fatalf("could not compute time axis: %+v", err)
		}
		if want := TimeAxis(RefSamples, fake.SampleRate, fake.TimeOffset); !slices.Equal(got, want) {
			t.Fatalf("invalid time axis")
		}
	}
	if buf.Len() != 0 {
		t.Fatalf("unexpected warning for %d samples: %q", RefSamples, buf.String())
	}

	for range 2 {
		got, err := scope.WaveTime(4)
		if err != nil {
			t.Fatalf("could not compute time axis: %+v", err)
		}
		if want := TimeAxis(4, fake.SampleRate, fake.TimeOffset); !slices.Equal(got, want) {
			t.Fatalf("invalid time axis: got=%v, want=%v", got, want)
		}
	}
	if got, want := strings.Count(buf.String(), "extrapolated"), 1; got != want {
		t.Fatalf("invalid number of warnings: got=%d, want=%d
%s", got, want, buf.String())
	}
}

func TestCapture(t *testing.T) {
	scope, fake := newTestScope(t)
	fake.Polls = 2

	setup := DefaultSetup()
	setup.Trigger.Poll = time.Millisecond
	setup.Trigger.Settle = time.Millisecond
	err := setup.Apply(scope)
	if err != nil {
		t.Fatalf("could not apply setup: %+v", err)
	}

	if got, want := fake.Chans[1].Scale, 0.43; got != want {
		t.Fatalf("invalid scale: got=%g, want=%g", got, want)
	}
	if got, want := fake.Chans[1].Offset, -1.58; got != want {
		t.Fatalf("invalid offset: got=%g, want=%g", got, want)
	}
	if fake.Chans[2].Display {
		t.Fatalf("channel 2 still displayed")
	}
	if got, want := fake.Trigger, (fakescope.Trigger{
		Mode: "EDGE", Source: "EXT", Slope: "POS", Level: 1.2, Sweep: "SING",
	}); got != want {
		t.Fatalf("invalid trigger: got=%+v, want=%+v", got, want)
	}

	err = scope.CheckSampleRate(setup.Acquire.SampleRate)
	if err != nil {
		t.Fatalf("invalid sample rate: %+v", err)
	}

	err = scope.Trigger(context.Background())
	if err != nil {
		t.Fatalf("could not trigger: %+v", err)
	}

	vs, err := scope.Wave(1)
	if err != nil {
		t.Fatalf("could not get waveform: %+v", err)
	}
	ts, err := scope.WaveTime(len(vs))
	if err != nil {
		t.Fatalf("could not get time axis: %+v", err)
	}

	if len(ts) != len(vs) {
		t.Fatalf("length mismatch: t=%d, v=%d", len(ts), len(vs))
	}
	for i := 1; i < len(ts); i++ {
		if ts[i] <= ts[i-1] {
			t.Fatalf("time axis not increasing at %d: %g <= %g", i, ts[i], ts[i-1])
		}
	}
}

func TestWith(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "usbtmc0")
	err := os.WriteFile(fname, nil, 0644)
	if err != nil {
		t.Fatalf("could not create fake device: %+v", err)
	}

	var dev *Device
	want := errors.New("boom")
	err = With(fname, func(scope *Scope) error {
		dev = scope.Device
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, want)
	}
	if dev.rwc != nil {
		t.Fatalf("device not closed")
	}

	err = With(fname+".missing", func(*Scope) error { return nil })
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, ErrConnection)
	}
}
