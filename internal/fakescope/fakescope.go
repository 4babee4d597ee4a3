// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakescope simulates a DS1000E oscilloscope behind an
// io.ReadWriteCloser, for tests.
package fakescope // import "sbinet.org/x/rigol/internal/fakescope"

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// ErrNoResponse is returned by Read when no query is pending.
var ErrNoResponse = errors.New("fakescope: no pending response")

type Channel struct {
	Display bool
	Scale   float64
	Offset  float64
	Wave    []byte // raw sample codes
}

type Trigger struct {
	Mode   string
	Source string
	Slope  string
	Level  float64
	Sweep  string
}

// Scope is a simulated instrument.
type Scope struct {
	mu sync.Mutex

	ID         string
	Chans      [3]Channel // indexed by channel id
	TimeScale  float64
	TimeOffset float64
	SampleRate float64
	Trigger    Trigger
	Menu       bool
	Points     string
	AcqType    string
	AcqMode    string
	Memory     string
	Local      bool

	// Polls is the number of status queries answered WAIT after RUN,
	// before the acquisition reports STOP.
	Polls int
	// Never makes the acquisition wait for a trigger forever.
	Never bool
	// Replies overrides the response to the given queries.
	Replies map[string]string
	// ShortWrite makes writes report one byte less than requested.
	ShortWrite bool

	status  string
	left    int
	pending []byte
	cmds    []string
	closed  bool
}

// New returns a stopped scope with a 600 samples waveform on both channels.
func New() *Scope {
	scope := &Scope{
		ID:         "Rigol Technologies,DS1102E,DS1EB000000000,00.04.02.01.00",
		SampleRate: 1e9,
	}
	for i := 1; i < len(scope.Chans); i++ {
		wave := make([]byte, 600)
		for j := range wave {
			wave[j] = byte(j % 256)
		}
		scope.Chans[i].Wave = wave
	}
	scope.reset()
	return scope
}

// reset restores the factory settings, keeping the acquired waveforms.
func (s *Scope) reset() {
	s.TimeScale = 1e-6
	s.TimeOffset = 0
	s.Trigger = Trigger{
		Mode:   "EDGE",
		Source: "CHAN1",
		Slope:  "POS",
		Sweep:  "AUTO",
	}
	s.Menu = true
	s.Points = "NORMAL"
	s.AcqType = "NORM"
	s.AcqMode = "REAL_TIME"
	s.Memory = "NORMAL"
	s.Local = false
	s.status = "STOP"
	for i := 1; i < len(s.Chans); i++ {
		s.Chans[i].Display = true
		s.Chans[i].Scale = 1
		s.Chans[i].Offset = 0
	}
}

// Commands returns the commands received so far.
func (s *Scope) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cmds...)
}

// Count returns how many times cmd was received.
func (s *Scope) Count(cmd string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.cmds {
		if c == cmd {
			n++
		}
	}
	return n
}

// Status returns the acquisition status.
func (s *Scope) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	s.closed = true
	return nil
}

func (s *Scope) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, os.ErrClosed
	}
	if len(s.pending) == 0 {
		return 0, ErrNoResponse
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *Scope) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, os.ErrClosed
	}

	cmd := strings.TrimSpace(string(p))
	s.cmds = append(s.cmds, cmd)

	if reply, ok := s.Replies[cmd]; ok {
		s.pending = []byte(reply)
		return s.written(p), nil
	}

	err := s.exec(cmd)
	if err != nil {
		return 0, err
	}
	return s.written(p), nil
}

func (s *Scope) written(p []byte) int {
	if s.ShortWrite {
		return len(p) - 1
	}
	return len(p)
}

func (s *Scope) reply(v string) {
	s.pending = []byte(v + "\n")
}

func (s *Scope) replyFloat(v float64) {
	s.reply(strconv.FormatFloat(v, 'e', -1, 64))
}

func (s *Scope) exec(cmd string) error {
	name, arg, _ := strings.Cut(cmd, " ")

	if strings.HasPrefix(name, ":CHAN") {
		return s.execChan(name, arg)
	}

	var err error
	switch name {
	case "*IDN?":
		s.reply(s.ID)
	case "*RST":
		s.reset()
	case ":RUN":
		s.status = "WAIT"
		s.left = s.Polls
	case ":STOP":
		s.status = "STOP"
	case ":TRIG:STAT?":
		if s.status == "WAIT" && !s.Never {
			if s.left == 0 {
				s.status = "STOP"
			} else {
				s.left--
			}
		}
		s.reply(s.status)
	case ":TIM:SCAL":
		s.TimeScale, err = parseFloat(arg)
	case ":TIM:SCAL?":
		s.replyFloat(s.TimeScale)
	case ":TIM:OFFS":
		s.TimeOffset, err = parseFloat(arg)
	case ":TIM:OFFS?":
		s.replyFloat(s.TimeOffset)
	case ":ACQ:SAMP?":
		s.replyFloat(s.SampleRate)
	case ":TRIG:MODE":
		s.Trigger.Mode = arg
	case ":TRIG:EDGE:SOUR":
		s.Trigger.Source = arg
	case ":TRIG:EDGE:SLOPE":
		s.Trigger.Slope = arg
	case ":TRIG:EDGE:LEV":
		s.Trigger.Level, err = parseFloat(arg)
	case ":TRIG:EDGE:SWE":
		s.Trigger.Sweep = arg
	case ":DISP:MNUS":
		s.Menu = arg == "ON"
	case ":WAV:POIN:MODE":
		s.Points = arg
	case ":ACQ:TYPE":
		s.AcqType = arg
	case ":ACQ:MODE":
		s.AcqMode = arg
	case ":ACQ:MEMD":
		s.Memory = arg
	case ":KEY:FORC":
		s.Local = true
	case ":WAV:DATA?":
		var ch int
		ch, err = parseChan(arg)
		if err != nil {
			break
		}
		wave := s.Chans[ch].Wave
		s.pending = append([]byte(fmt.Sprintf("#8%08d", len(wave))), wave...)
	default:
		err = fmt.Errorf("unknown command")
	}
	if err != nil {
		return fmt.Errorf("fakescope: command %q: %w", cmd, err)
	}
	return nil
}

func (s *Scope) execChan(name, arg string) error {
	sel, attr, ok := strings.Cut(name[1:], ":")
	if !ok {
		return fmt.Errorf("fakescope: invalid channel command %q", name)
	}
	ch, err := parseChan(sel)
	if err != nil {
		return fmt.Errorf("fakescope: command %q: %w", name, err)
	}

	c := &s.Chans[ch]
	switch attr {
	case "DISP":
		c.Display = arg == "ON"
	case "SCAL":
		c.Scale, err = parseFloat(arg)
	case "SCAL?":
		s.replyFloat(c.Scale)
	case "OFFS":
		c.Offset, err = parseFloat(arg)
	case "OFFS?":
		s.replyFloat(c.Offset)
	default:
		err = fmt.Errorf("unknown command")
	}
	if err != nil {
		return fmt.Errorf("fakescope: command %q: %w", name, err)
	}
	return nil
}

func parseChan(sel string) (int, error) {
	v, ok := strings.CutPrefix(sel, "CHAN")
	if !ok {
		return 0, fmt.Errorf("invalid channel %q", sel)
	}
	ch, err := strconv.Atoi(v)
	if err != nil || ch < 1 || ch > 2 {
		return 0, fmt.Errorf("invalid channel %q", sel)
	}
	return ch, nil
}

func parseFloat(arg string) (float64, error) {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric argument %q", arg)
	}
	return v, nil
}
