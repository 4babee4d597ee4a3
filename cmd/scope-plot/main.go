// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command scope-plot renders the shots of a capture run as PNG images.
package main // import "sbinet.org/x/rigol/cmd/scope-plot"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"sbinet.org/x/rigol"
	"sbinet.org/x/rigol/internal/shotdb"
	"sbinet.org/x/rigol/scopeplot"
)

func main() {
	log.SetPrefix("scope-plot: ")
	log.SetFlags(0)

	var (
		fdb = flag.String("db", "shots.db", "path to shots DB file")
		run = flag.String("run", "", "run id (default: all runs)")
		out = flag.String("o", ".", "output directory")
	)

	flag.Parse()

	err := xmain(*fdb, *run, *out)
	if err != nil {
		log.Fatal(err)
	}
}

func xmain(fdb, run, out string) error {
	db, err := shotdb.Open(fdb)
	if err != nil {
		return fmt.Errorf("could not open shots db: %w", err)
	}
	defer db.Close()

	runs := []string{run}
	if run == "" {
		runs, err = db.Runs()
		if err != nil {
			return fmt.Errorf("could not list runs: %w", err)
		}
	}

	err = os.MkdirAll(out, 0755)
	if err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}

	for _, run := range runs {
		var shots []rigol.Shot
		for shot, err := range db.Shots(run) {
			if err != nil {
				return fmt.Errorf("could not read shots of run %q: %w", run, err)
			}
			shots = append(shots, shot)
		}
		if len(shots) == 0 {
			log.Printf("run %q: no shot", run)
			continue
		}

		log.Printf("plotting %d shots of run %q...", len(shots), run)
		log.Printf("last shot:\n%v", shots[len(shots)-1])
		plots, err := scopeplot.Render(run, shots)
		if err != nil {
			return fmt.Errorf("could not plot run %q: %w", run, err)
		}

		for name, buf := range map[string][]byte{
			"shots":   plots.Shots.Bytes(),
			"last":    plots.Last.Bytes(),
			"summary": plots.Summary.Bytes(),
		} {
			fname := filepath.Join(out, run+"-"+name+".png")
			err = os.WriteFile(fname, buf, 0644)
			if err != nil {
				return fmt.Errorf("could not write plot %q: %w", fname, err)
			}
		}
	}

	return db.Close()
}
