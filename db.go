// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rigol // import "sbinet.org/x/rigol"

import (
	"iter"
)

// DB stores the shots of capture runs.
type DB interface {
	Close() error

	// AddRun declares a new run.
	AddRun(run string) error
	// Runs returns the sorted list of run ids.
	Runs() ([]string, error)

	// PutShot stores a shot for the provided run.
	PutShot(run string, shot Shot) error
	// Shots iterates over the shots of a run, by increasing index.
	Shots(run string) iter.Seq2[Shot, error]
	// Last returns the shot with the largest index of a run,
	// or ErrNoData.
	Last(run string) (Shot, error)
}
