// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rigol // import "sbinet.org/x/rigol"

// Waveform encoding of the DS1000E/D series, from "DS1000E-D Data Format".
const (
	// SaturationCode is the sample code of the top of the screen.
	SaturationCode = 240
	// Divisions is the number of sample codes per vertical division.
	Divisions = 25.0
	// CenterOffsetDivisions is the number of divisions between the top of
	// the screen and the channel ground level at zero offset.
	CenterOffsetDivisions = 4.6

	// RefSamples is the waveform length the time axis formula is
	// documented for. Other lengths are an approximation.
	RefSamples = 600

	waveHeaderLen = 10
)

// Decode converts raw sample codes to volts, for a channel with the
// given vertical scale (volts/division) and offset (volts).
func Decode(raw []byte, scale, offset float64) []float64 {
	var (
		out  = make([]float64, len(raw))
		vdiv = scale / Divisions
		zero = offset + scale*CenterOffsetDivisions
	)
	for i, code := range raw {
		out[i] = float64(SaturationCode-int(code))*vdiv - zero
	}
	return out
}

// TimeAxis returns the sample times, in seconds, of a waveform of n samples
// taken at rate samples per second, with the given timebase offset.
func TimeAxis(n int, rate, offset float64) []float64 {
	var (
		out = make([]float64, n)
		mid = float64(n) / 2
	)
	for i := range out {
		out[i] = (float64(i)-mid)/rate + offset
	}
	return out
}
