// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command scope-id displays the identification and current settings of a
// Rigol DS1000E/D oscilloscope.
package main // import "sbinet.org/x/rigol/cmd/scope-id"

import (
	"flag"
	"fmt"
	"log"

	"sbinet.org/x/rigol"
)

func main() {
	log.SetPrefix("scope-id: ")
	log.SetFlags(0)

	var (
		dev   = flag.String("dev", "/dev/usbtmc0", "path to the USBTMC device of the scope")
		local = flag.Bool("local", false, "give control back to the front panel")
		reset = flag.Bool("reset", false, "restore factory settings")
	)

	flag.Parse()

	err := rigol.With(*dev, func(scope *rigol.Scope) error {
		if *reset {
			err := scope.Reset()
			if err != nil {
				return fmt.Errorf("could not reset scope: %w", err)
			}
		}

		name, err := scope.Name()
		if err != nil {
			return err
		}
		fmt.Printf("Instrument:  %s\n", name)

		for _, ch := range []int{1, 2} {
			v, err := scope.Vertical(ch)
			if err != nil {
				return err
			}
			fmt.Printf("Channel %d:   %g V/div, offset %g V\n", ch, v.Scale, v.Offset)
		}

		tb, err := scope.Timebase()
		if err != nil {
			return err
		}
		fmt.Printf("Timebase:    %g s/div, offset %g s\n", tb.Scale, tb.Offset)

		rate, err := scope.SampleRate()
		if err != nil {
			return fmt.Errorf("could not get sample rate: %w", err)
		}
		fmt.Printf("Sample rate: %g Sa/s\n", rate)

		status, err := scope.TriggerStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Status:      %s\n", status)

		if *local {
			return scope.LocalMode()
		}
		return nil
	})
	if err != nil {
		log.Fatalf("could not query scope: %+v", err)
	}
}
