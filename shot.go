// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rigol // import "sbinet.org/x/rigol"

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// Shot is a decoded single-shot acquisition.
type Shot struct {
	Index   int       // position of the shot in its run
	Time    time.Time // capture time
	Channel int

	T []float64 // sample times, in seconds
	V []float64 // sample voltages, in volts
}

func (s Shot) Len() int { return len(s.V) }

// PeakToPeak returns the difference between the largest and smallest voltage.
func (s Shot) PeakToPeak() float64 {
	if len(s.V) == 0 {
		return 0
	}
	lo, hi := s.V[0], s.V[0]
	for _, v := range s.V[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}

func (s Shot) String() string {
	o := new(strings.Builder)
	fmt.Fprintf(o, "Shot:        %d\n", s.Index)
	fmt.Fprintf(o, "Time:        %v\n", s.Time.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(o, "Channel:     %d\n", s.Channel)
	fmt.Fprintf(o, "Samples:     %d\n", s.Len())
	if s.Len() > 0 {
		fmt.Fprintf(o, "Window:      [%g, %g] s\n", s.T[0], s.T[len(s.T)-1])
		fmt.Fprintf(o, "Peak-peak:   %g V\n", s.PeakToPeak())
	}
	return o.String()
}

const shotHeaderSize = 8 + 8 + 1 + 4

// BinarySize returns the size of the binary encoding of s.
func (s Shot) BinarySize() int {
	return shotHeaderSize + 16*len(s.V)
}

// Marshal encodes s into p, which must be at least s.BinarySize() long.
func (s Shot) Marshal(p []byte) error {
	if len(s.T) != len(s.V) {
		return fmt.Errorf("rigol: mismatched time (%d) and voltage (%d) samples", len(s.T), len(s.V))
	}
	if len(p) < s.BinarySize() {
		return fmt.Errorf("rigol: buffer too small (%d < %d)", len(p), s.BinarySize())
	}

	var (
		enc = binary.LittleEndian
		n   = len(s.V)
	)
	enc.PutUint64(p[0:], uint64(s.Index))
	enc.PutUint64(p[8:], uint64(s.Time.UTC().UnixNano()))
	p[16] = byte(s.Channel)
	enc.PutUint32(p[17:], uint32(n))

	p = p[shotHeaderSize:]
	for i := range n {
		enc.PutUint64(p[8*i:], math.Float64bits(s.T[i]))
		enc.PutUint64(p[8*(n+i):], math.Float64bits(s.V[i]))
	}
	return nil
}

// Unmarshal decodes s from p.
func (s *Shot) Unmarshal(p []byte) error {
	if len(p) < shotHeaderSize {
		return fmt.Errorf("rigol: shot record too short (%d bytes)", len(p))
	}

	enc := binary.LittleEndian
	s.Index = int(enc.Uint64(p[0:]))
	s.Time = time.Unix(0, int64(enc.Uint64(p[8:]))).UTC()
	s.Channel = int(p[16])
	n := int(enc.Uint32(p[17:]))

	p = p[shotHeaderSize:]
	if len(p) != 16*n {
		return fmt.Errorf("rigol: shot record has %d bytes of samples, want %d", len(p), 16*n)
	}
	s.T = make([]float64, n)
	s.V = make([]float64, n)
	for i := range n {
		s.T[i] = math.Float64frombits(enc.Uint64(p[8*i:]))
		s.V[i] = math.Float64frombits(enc.Uint64(p[8*(n+i):]))
	}
	return nil
}
