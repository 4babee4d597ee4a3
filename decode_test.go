// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rigol

import (
	"math"
	"testing"
)

func TestDecode(t *testing.T) {
	for _, tc := range []struct {
		raw    []byte
		scale  float64
		offset float64
		want   []float64
	}{
		{
			raw:   []byte{240, 0},
			scale: 1,
			want:  []float64{-4.6, 5.0},
		},
		{
			raw:   []byte{240, 215, 115},
			scale: 0.5,
			want:  []float64{-2.3, -1.8, 0.2},
		},
		{
			raw:    []byte{240},
			scale:  0.43,
			offset: -1.58,
			want:   []float64{1.58 - 0.43*4.6},
		},
		{
			raw:  nil,
			want: []float64{},
		},
	} {
		got := Decode(tc.raw, tc.scale, tc.offset)
		if len(got) != len(tc.want) {
			t.Fatalf("invalid length: got=%d, want=%d", len(got), len(tc.want))
		}
		for i := range got {
			if math.Abs(got[i]-tc.want[i]) > 1e-12 {
				t.Errorf("raw[%d]=%d: got=%g, want=%g", i, tc.raw[i], got[i], tc.want[i])
			}
		}
	}
}

func TestTimeAxis(t *testing.T) {
	got := TimeAxis(4, 1e9, 0)
	want := []float64{-2e-9, -1e-9, 0, 1e-9}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-21 {
			t.Errorf("t[%d]: got=%g, want=%g", i, got[i], want[i])
		}
	}

	// the formula is only documented for RefSamples samples.
	const offset = 8e-6
	ts := TimeAxis(RefSamples, 1e9, offset)
	if got, want := ts[RefSamples/2], offset; math.Abs(got-want) > 1e-15 {
		t.Errorf("invalid trigger point time: got=%g, want=%g", got, want)
	}
	if got, want := ts[1]-ts[0], 1e-9; math.Abs(got-want) > 1e-15 {
		t.Errorf("invalid sampling period: got=%g, want=%g", got, want)
	}
}
