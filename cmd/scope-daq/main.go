// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command scope-daq repeatedly captures single-shot waveforms from a
// Rigol DS1000E/D oscilloscope and stores them for offline analysis.
//
// Example:
//
//	$> scope-daq -dev /dev/usbtmc0 -run step_100 -npy data/hfclkaudio_step
package main // import "sbinet.org/x/rigol/cmd/scope-daq"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"sbinet.org/x/rigol"
	"sbinet.org/x/rigol/internal/shotdb"
	"sbinet.org/x/rigol/scopedaq"
)

func main() {
	log.SetPrefix("scope-daq: ")
	log.SetFlags(0)

	var (
		dev     = flag.String("dev", "/dev/usbtmc0", "path to the USBTMC device of the scope")
		setup   = flag.String("setup", "", "path to a YAML scope setup file")
		run     = flag.String("run", "step_100", "run id")
		db      = flag.String("db", "", "path to shots DB file (.db for bbolt, .sqlite for SQLite)")
		npy     = flag.String("npy", "", "directory where to write shots as .npy files")
		n       = flag.Int("n", -1, "number of shots to capture (-1: no limit)")
		timeout = flag.Duration("timeout", 0, "maximum trigger wait per shot (0: no limit)")
		metrics = flag.String("metrics", "", "[host]:addr where to serve prometheus metrics")
	)

	flag.Parse()

	if *db == "" && *npy == "" {
		flag.Usage()
		log.Fatalf("missing output (-db and/or -npy)")
	}

	err := xmain(*dev, *setup, *run, *db, *npy, *n, *timeout, *metrics)
	if err != nil {
		log.Fatal(err)
	}
}

func xmain(dev, fsetup, run, fdb, npy string, n int, timeout time.Duration, addr string) error {
	setup := rigol.DefaultSetup()
	if fsetup != "" {
		var err error
		setup, err = rigol.LoadSetup(fsetup)
		if err != nil {
			return fmt.Errorf("could not load scope setup: %w", err)
		}
	}
	if timeout > 0 {
		setup.Trigger.Timeout = timeout
	}

	var db rigol.DB
	if fdb != "" {
		var err error
		db, err = shotdb.Open(fdb)
		if err != nil {
			return fmt.Errorf("could not open shots db: %w", err)
		}
		defer db.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rigol.With(dev, func(scope *rigol.Scope) error {
		name, err := scope.Name()
		if err != nil {
			return err
		}
		log.Printf("instrument: %s", name)

		log.Printf("configuring scope...")
		err = setup.Apply(scope)
		if err != nil {
			return fmt.Errorf("could not configure scope: %w", err)
		}
		log.Printf("configuring scope... [done]")

		reg := prometheus.NewRegistry()
		daq, err := scopedaq.New(scope, db, scopedaq.Config{
			Run:        run,
			Channel:    setup.Channel,
			Shots:      n,
			SampleRate: setup.Acquire.SampleRate,
			NpyDir:     npy,
		}, reg)
		if err != nil {
			return fmt.Errorf("could not create DAQ: %w", err)
		}

		grp, ctx := errgroup.WithContext(ctx)
		if addr != "" {
			srv := &http.Server{
				Addr:    addr,
				Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			}
			grp.Go(func() error {
				log.Printf("serving metrics on %q...", addr)
				err := srv.ListenAndServe()
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("could not serve metrics: %w", err)
				}
				return nil
			})
			grp.Go(func() error {
				<-ctx.Done()
				return srv.Close()
			})
		}

		grp.Go(func() error {
			defer stop()
			return daq.Run(ctx)
		})

		err = grp.Wait()
		if err != nil {
			return err
		}

		return scope.LocalMode()
	})
	if err != nil {
		return fmt.Errorf("could not run capture %q: %w", run, err)
	}

	if db != nil {
		err = db.Close()
		if err != nil {
			return fmt.Errorf("could not close shots db: %w", err)
		}
	}
	return nil
}
