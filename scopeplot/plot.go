// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scopeplot renders captured shots as PNG images.
package scopeplot // import "sbinet.org/x/rigol/scopeplot"

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"git.sr.ht/~sbinet/epok"
	"go-hep.org/x/hep/hplot"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"sbinet.org/x/rigol"
)

var (
	tcnv epok.UTCUnixTimeConverter
)

// Plots holds the PNG images of a run.
type Plots struct {
	Shots   bytes.Buffer // overlay of all shots
	Last    bytes.Buffer // last shot
	Summary bytes.Buffer // peak-to-peak voltage per shot
}

// Render generates all the plots of a run.
func Render(run string, shots []rigol.Shot) (*Plots, error) {
	if len(shots) == 0 {
		return nil, fmt.Errorf("no shot to plot for run %q", run)
	}

	var (
		out = new(Plots)
		grp errgroup.Group
	)
	grp.Go(func() error {
		err := Overlay(&out.Shots, run, shots)
		if err != nil {
			return fmt.Errorf("could not create overlay plot: %w", err)
		}
		return nil
	})

	grp.Go(func() error {
		last := shots[len(shots)-1]
		err := Overlay(&out.Last, fmt.Sprintf("%s - shot %d", run, last.Index), shots[len(shots)-1:])
		if err != nil {
			return fmt.Errorf("could not create last shot plot: %w", err)
		}
		return nil
	})

	grp.Go(func() error {
		err := Summary(&out.Summary, run, shots)
		if err != nil {
			return fmt.Errorf("could not create summary plot: %w", err)
		}
		return nil
	})

	err := grp.Wait()
	if err != nil {
		return nil, fmt.Errorf("could not create plots: %w", err)
	}

	return out, nil
}

// Overlay draws the voltage versus time of all shots on top of each other.
func Overlay(buf *bytes.Buffer, title string, shots []rigol.Shot) error {
	buf.Reset()

	plt := hplot.New()
	plt.Title.Text = "Run: " + title
	plt.X.Label.Text = "t [µs]"
	plt.Y.Label.Text = "V [V]"

	alpha := uint8(255)
	if len(shots) > 1 {
		alpha = uint8(math.Max(16, 255/math.Sqrt(float64(len(shots)))))
	}

	for _, shot := range shots {
		xs := make([]float64, len(shot.T))
		for i, t := range shot.T {
			xs[i] = t * 1e6
		}

		lin, err := hplot.NewLine(hplot.ZipXY(xs, shot.V))
		if err != nil {
			return fmt.Errorf("could not create line plot for shot %d: %w", shot.Index, err)
		}
		lin.LineStyle.Color = color.NRGBA{B: 255, A: alpha}
		plt.Add(lin)
	}
	plt.Add(hplot.NewGrid())

	return writePNG(buf, plt)
}

// Summary draws the peak-to-peak voltage of each shot versus its capture time.
func Summary(buf *bytes.Buffer, title string, shots []rigol.Shot) error {
	buf.Reset()

	var (
		xs = make([]float64, 0, len(shots))
		ys = make([]float64, 0, len(shots))
	)
	for _, shot := range shots {
		xs = append(xs, tcnv.FromTime(shot.Time))
		ys = append(ys, shot.PeakToPeak())
	}

	plt := hplot.New()
	plt.Title.Text = "Run: " + title
	plt.Y.Label.Text = "Peak-to-peak [V]"
	plt.X.Tick.Marker = epok.Ticks{
		Converter: tcnv,
		Format:    "2006-01-02\n15:04:05",
	}

	sca, err := hplot.NewScatter(hplot.ZipXY(xs, ys))
	if err != nil {
		return fmt.Errorf("could not create scatter plot: %w", err)
	}
	sca.GlyphStyle.Color = color.NRGBA{R: 255, A: 255}
	sca.GlyphStyle.Radius = 2
	sca.GlyphStyle.Shape = draw.CircleGlyph{}

	plt.Add(hplot.NewGrid(), sca)
	if len(shots) > 1 {
		lin, err := plotter.NewLine(hplot.ZipXY(xs, ys))
		if err != nil {
			return fmt.Errorf("could not create line plot: %w", err)
		}
		lin.LineStyle.Color = color.NRGBA{R: 255, A: 38}
		plt.Add(lin)
	}

	return writePNG(buf, plt)
}

func writePNG(buf *bytes.Buffer, plt *hplot.Plot) error {
	const size = 20 * vg.Centimeter
	cnv := vgimg.PngCanvas{
		Canvas: vgimg.New(vg.Length(math.Phi)*size, size),
	}
	plt.Draw(draw.New(cnv))
	_, err := cnv.WriteTo(buf)
	if err != nil {
		return fmt.Errorf("could not encode PNG: %w", err)
	}
	return nil
}
