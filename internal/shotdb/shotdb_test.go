// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shotdb

import (
	"errors"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
	"time"

	"sbinet.org/x/rigol"
)

func newShot(i int) rigol.Shot {
	raw := make([]byte, 16)
	for j := range raw {
		raw[j] = byte(10*i + j)
	}
	return rigol.Shot{
		Index:   i,
		Time:    time.Date(2024, 3, 1, 10, 0, i, 0, time.UTC),
		Channel: 1,
		T:       rigol.TimeAxis(len(raw), 1e9, 8e-6),
		V:       rigol.Decode(raw, 0.43, -1.58),
	}
}

func TestDB(t *testing.T) {
	for _, name := range []string{"shots.db", "shots.sqlite"} {
		t.Run(name, func(t *testing.T) {
			fname := filepath.Join(t.TempDir(), name)
			db, err := Open(fname)
			if err != nil {
				t.Fatalf("could not open db: %+v", err)
			}
			defer db.Close()

			const run = "step_100"
			err = db.AddRun(run)
			if err != nil {
				t.Fatalf("could not add run: %+v", err)
			}
			err = db.AddRun(run)
			if !errors.Is(err, rigol.ErrDupRun) {
				t.Fatalf("invalid error: got=%+v, want=%v", err, rigol.ErrDupRun)
			}

			_, err = db.Last(run)
			if !errors.Is(err, rigol.ErrNoData) {
				t.Fatalf("invalid error: got=%+v, want=%v", err, rigol.ErrNoData)
			}

			err = db.PutShot("nope", newShot(0))
			if err == nil {
				t.Fatalf("expected an error storing to an unknown run")
			}

			// out of order on purpose.
			for _, i := range []int{0, 2, 1} {
				err = db.PutShot(run, newShot(i))
				if err != nil {
					t.Fatalf("could not put shot %d: %+v", i, err)
				}
			}

			want := []rigol.Shot{newShot(0), newShot(1), newShot(2)}
			check := func(db rigol.DB) {
				t.Helper()
				var got []rigol.Shot
				for shot, err := range db.Shots(run) {
					if err != nil {
						t.Fatalf("could not read shot: %+v", err)
					}
					got = append(got, shot)
				}
				if !reflect.DeepEqual(got, want) {
					t.Fatalf("invalid shots:\ngot= %v\nwant=%v", got, want)
				}

				last, err := db.Last(run)
				if err != nil {
					t.Fatalf("could not get last shot: %+v", err)
				}
				if got, want := last.Index, 2; got != want {
					t.Fatalf("invalid last shot: got=%d, want=%d", got, want)
				}

				runs, err := db.Runs()
				if err != nil {
					t.Fatalf("could not get runs: %+v", err)
				}
				if got, want := runs, []string{run}; !slices.Equal(got, want) {
					t.Fatalf("invalid runs: got=%q, want=%q", got, want)
				}
			}
			check(db)

			err = db.Close()
			if err != nil {
				t.Fatalf("could not close db: %+v", err)
			}

			db, err = Open(fname)
			if err != nil {
				t.Fatalf("could not re-open db: %+v", err)
			}
			defer db.Close()
			check(db)
		})
	}
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "shots.csv"))
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestDBLastEmptyShot(t *testing.T) {
	for _, name := range []string{"shots.db", "shots.sqlite"} {
		t.Run(name, func(t *testing.T) {
			fname := filepath.Join(t.TempDir(), name)
			db, err := Open(fname)
			if err != nil {
				t.Fatalf("could not open db: %+v", err)
			}
			defer db.Close()

			const run = "r1"
			err = db.AddRun(run)
			if err != nil {
				t.Fatalf("could not add run: %+v", err)
			}

			err = db.PutShot(run, rigol.Shot{Index: 3, Time: time.Unix(0, 0).UTC(), Channel: 1})
			if err != nil {
				t.Fatalf("could not put shot: %+v", err)
			}

			check := func(db rigol.DB) {
				t.Helper()
				last, err := db.Last(run)
				if err != nil {
					t.Fatalf("could not get last shot: %+v", err)
				}
				if got, want := last.Index, 3; got != want {
					t.Fatalf("invalid last shot: got=%d, want=%d", got, want)
				}
				if got, want := last.Len(), 0; got != want {
					t.Fatalf("invalid last shot length: got=%d, want=%d", got, want)
				}
			}
			check(db)

			err = db.Close()
			if err != nil {
				t.Fatalf("could not close db: %+v", err)
			}

			db, err = Open(fname)
			if err != nil {
				t.Fatalf("could not re-open db: %+v", err)
			}
			defer db.Close()
			check(db)
		})
	}
}
