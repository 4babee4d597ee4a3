// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scopedaq repeatedly captures single-shot waveforms from a scope
// and stores them for offline analysis.
package scopedaq // import "sbinet.org/x/rigol/scopedaq"

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
	"sbinet.org/x/rigol"
)

// Config describes a capture run.
type Config struct {
	Run        string  // run id, also the prefix of .npy files
	Channel    int     // scope channel to capture
	Shots      int     // number of shots to capture. Negative means no limit.
	SampleRate float64 // required sample rate, in Sa/s
	NpyDir     string  // directory of .npy files. Empty disables them.
}

// DAQ runs capture loops.
type DAQ struct {
	scope *rigol.Scope
	db    rigol.DB
	cfg   Config

	metrics *metrics
}

// New creates a DAQ capturing from scope. Shots are stored in db, when
// not nil, and metrics registered with reg, when not nil.
func New(scope *rigol.Scope, db rigol.DB, cfg Config, reg prometheus.Registerer) (*DAQ, error) {
	if cfg.Run == "" {
		return nil, fmt.Errorf("invalid empty run id")
	}
	if db == nil && cfg.NpyDir == "" {
		return nil, fmt.Errorf("no output configured for run %q", cfg.Run)
	}
	if cfg.Channel == 0 {
		cfg.Channel = 1
	}

	m := newMetrics()
	if reg != nil {
		err := m.register(reg)
		if err != nil {
			return nil, fmt.Errorf("could not register metrics: %w", err)
		}
	}

	return &DAQ{scope: scope, db: db, cfg: cfg, metrics: m}, nil
}

// Run captures shots until cfg.Shots have been captured or ctx is done.
//
// Run refuses to start if the scope does not sample at cfg.SampleRate.
// Shots are numbered from 0 or, when the run already exists in the
// database, from its last shot.
func (daq *DAQ) Run(ctx context.Context) error {
	if daq.cfg.SampleRate > 0 {
		err := daq.scope.CheckSampleRate(daq.cfg.SampleRate)
		if err != nil {
			return err
		}
	}

	beg, err := daq.first()
	if err != nil {
		return err
	}

	if daq.cfg.NpyDir != "" {
		err = os.MkdirAll(daq.cfg.NpyDir, 0755)
		if err != nil {
			return fmt.Errorf("could not create output directory: %w", err)
		}
	}

	for i := beg; daq.cfg.Shots < 0 || i < beg+daq.cfg.Shots; i++ {
		shot, err := daq.Capture(ctx, i)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("capture of shot %d interrupted: %v", i, ctx.Err())
				return nil
			}
			daq.metrics.failures.WithLabelValues("capture").Inc()
			return fmt.Errorf("could not capture shot %d: %w", i, err)
		}

		err = daq.store(shot)
		if err != nil {
			daq.metrics.failures.WithLabelValues("store").Inc()
			return fmt.Errorf("could not store shot %d: %w", i, err)
		}
		daq.metrics.shots.Inc()
	}

	return nil
}

func (daq *DAQ) first() (int, error) {
	if daq.db == nil {
		return 0, nil
	}

	err := daq.db.AddRun(daq.cfg.Run)
	switch {
	case err == nil:
		return 0, nil
	case errors.Is(err, rigol.ErrDupRun):
		last, err := daq.db.Last(daq.cfg.Run)
		switch {
		case err == nil:
			log.Printf("resuming run %q after shot %d", daq.cfg.Run, last.Index)
			return last.Index + 1, nil
		case errors.Is(err, rigol.ErrNoData):
			return 0, nil
		default:
			return 0, fmt.Errorf("could not find last shot of run %q: %w", daq.cfg.Run, err)
		}
	default:
		return 0, fmt.Errorf("could not create run %q: %w", daq.cfg.Run, err)
	}
}

// Capture arms the scope, waits for the trigger and returns the decoded
// waveform as shot number i.
func (daq *DAQ) Capture(ctx context.Context, i int) (rigol.Shot, error) {
	log.Printf("capturing shot %d...", i)

	start := time.Now()
	err := daq.scope.Trigger(ctx)
	if err != nil {
		if errors.Is(err, rigol.ErrTimeout) {
			daq.metrics.timeouts.Inc()
		}
		return rigol.Shot{}, fmt.Errorf("could not trigger: %w", err)
	}
	daq.metrics.wait.Observe(time.Since(start).Seconds())

	vs, err := daq.scope.Wave(daq.cfg.Channel)
	if err != nil {
		return rigol.Shot{}, fmt.Errorf("could not fetch waveform: %w", err)
	}
	if len(vs) == 0 {
		return rigol.Shot{}, fmt.Errorf("%w: empty waveform for channel %d", rigol.ErrDecode, daq.cfg.Channel)
	}

	ts, err := daq.scope.WaveTime(len(vs))
	if err != nil {
		return rigol.Shot{}, fmt.Errorf("could not compute time axis: %w", err)
	}

	daq.metrics.samples.Set(float64(len(vs)))
	log.Printf("capturing shot %d... [done] (%d samples)", i, len(vs))

	return rigol.Shot{
		Index:   i,
		Time:    time.Now().UTC(),
		Channel: daq.cfg.Channel,
		T:       ts,
		V:       vs,
	}, nil
}

func (daq *DAQ) store(shot rigol.Shot) error {
	if daq.db != nil {
		err := daq.db.PutShot(daq.cfg.Run, shot)
		if err != nil {
			return err
		}
	}

	if daq.cfg.NpyDir != "" {
		fname := filepath.Join(daq.cfg.NpyDir, fmt.Sprintf("%s_%d.npy", daq.cfg.Run, shot.Index))
		err := WriteNpy(fname, shot)
		if err != nil {
			return err
		}
	}

	return nil
}

// WriteNpy writes shot to fname as a 2xN NumPy array:
// row 0 holds the times and row 1 the voltages.
func WriteNpy(fname string, shot rigol.Shot) error {
	if len(shot.T) != len(shot.V) {
		return fmt.Errorf("mismatched time (%d) and voltage (%d) samples", len(shot.T), len(shot.V))
	}
	if shot.Len() == 0 {
		return fmt.Errorf("could not write npy file %q: %w", fname, rigol.ErrNoData)
	}

	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create npy file: %w", err)
	}
	defer f.Close()

	data := make([]float64, 0, 2*shot.Len())
	data = append(data, shot.T...)
	data = append(data, shot.V...)

	err = npyio.Write(f, mat.NewDense(2, shot.Len(), data))
	if err != nil {
		return fmt.Errorf("could not write npy file %q: %w", fname, err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close npy file %q: %w", fname, err)
	}
	return nil
}
