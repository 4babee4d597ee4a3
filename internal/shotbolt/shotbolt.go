// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shotbolt provides an implementation of a shots database, backed by bbolt.
package shotbolt // import "sbinet.org/x/rigol/internal/shotbolt"

import (
	"encoding/binary"
	"fmt"
	"iter"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"sbinet.org/x/rigol"
)

var (
	bucketRoot = []byte("rigol")
	bucketIDs  = []byte("run-ids")
)

type DB struct {
	db *bbolt.DB

	last map[string]*rigol.Shot
}

var _ rigol.DB = (*DB)(nil)

// Open opens and initializes a boltdb-backed shots database.
func Open(fname string) (*DB, error) {
	db, err := bbolt.Open(fname, 0644, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open shots db: %w", err)
	}

	var runs []string
	err = db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(bucketRoot)
		if err != nil {
			return fmt.Errorf("could not create %q bucket: %w", bucketRoot, err)
		}

		ids, err := root.CreateBucketIfNotExists(bucketIDs)
		if err != nil {
			return fmt.Errorf("could not create %q bucket: %w", bucketIDs, err)
		}
		return ids.ForEach(func(k, v []byte) error {
			runs = append(runs, string(k))
			return nil
		})
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not setup shots db buckets: %w", err)
	}

	last := make(map[string]*rigol.Shot, len(runs))
	for _, id := range runs {
		var shot *rigol.Shot
		err = db.View(func(tx *bbolt.Tx) error {
			bkt, err := runBucket(tx, id)
			if err != nil {
				return err
			}

			// keys are big-endian indices: the last key is the last shot.
			k, v := bkt.Cursor().Last()
			if k == nil {
				return nil
			}
			shot = new(rigol.Shot)
			return shot.Unmarshal(v)
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("could not find last shot of run %q: %w", id, err)
		}
		last[id] = shot
	}

	return &DB{db: db, last: last}, nil
}

func runBucket(tx *bbolt.Tx, id string) (*bbolt.Bucket, error) {
	root := tx.Bucket(bucketRoot)
	if root == nil {
		return nil, fmt.Errorf("could not find %q bucket", bucketRoot)
	}

	bkt := root.Bucket([]byte(id))
	if bkt == nil {
		return nil, fmt.Errorf("could not find data bucket for run %q", id)
	}
	return bkt, nil
}

// Close closes a shots database
func (db *DB) Close() error {
	if db.db != nil {
		err := db.db.Close()
		if err != nil {
			return fmt.Errorf("could not close boltdb: %w", err)
		}
		db.db = nil
	}

	return nil
}

// PutShot stores the provided shot for the run id.
// A shot with the same index is replaced.
func (db *DB) PutShot(id string, shot rigol.Shot) error {
	if _, ok := db.last[id]; !ok {
		return fmt.Errorf("no such run %q", id)
	}

	var (
		key = make([]byte, 8)
		buf = make([]byte, shot.BinarySize())
	)
	binary.BigEndian.PutUint64(key, uint64(shot.Index))
	err := shot.Marshal(buf)
	if err != nil {
		return fmt.Errorf("could not marshal shot %d: %w", shot.Index, err)
	}

	err = db.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := runBucket(tx, id)
		if err != nil {
			return err
		}
		return bkt.Put(key, buf)
	})
	if err != nil {
		return fmt.Errorf("could not store shot %d of run %q: %w", shot.Index, id, err)
	}

	if last := db.last[id]; last == nil || last.Index <= shot.Index {
		db.last[id] = &shot
	}
	return nil
}

// Shots iterates over the shots of the run id, by increasing index.
func (db *DB) Shots(id string) iter.Seq2[rigol.Shot, error] {
	return func(yield func(shot rigol.Shot, err error) bool) {
		var rows []rigol.Shot
		err := db.db.View(func(tx *bbolt.Tx) error {
			bkt, err := runBucket(tx, id)
			if err != nil {
				return err
			}

			return bkt.ForEach(func(k, v []byte) error {
				var shot rigol.Shot
				err := shot.Unmarshal(v)
				if err != nil {
					return fmt.Errorf("could not decode shot %d: %w", binary.BigEndian.Uint64(k), err)
				}
				rows = append(rows, shot)
				return nil
			})
		})
		if err != nil {
			_ = yield(rigol.Shot{}, fmt.Errorf("could not read shots: %w", err))
			return
		}

		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Last returns the last shot of the run id
func (db *DB) Last(id string) (rigol.Shot, error) {
	last, ok := db.last[id]
	if !ok {
		return rigol.Shot{}, fmt.Errorf("no such run %q", id)
	}

	if last == nil {
		return rigol.Shot{}, rigol.ErrNoData
	}

	return *last, nil
}

// AddRun declares a new run id
func (db *DB) AddRun(id string) error {
	if _, dup := db.last[id]; dup {
		return rigol.ErrDupRun
	}

	err := db.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketRoot)
		if root == nil {
			return fmt.Errorf("could not access %q bucket", bucketRoot)
		}

		ids := root.Bucket(bucketIDs)
		if ids == nil {
			return fmt.Errorf("could not access %q bucket", bucketIDs)
		}
		err := ids.Put([]byte(id), []byte(id))
		if err != nil {
			return fmt.Errorf("could not store run id %q: %w", id, err)
		}

		_, err = root.CreateBucket([]byte(id))
		if err != nil {
			return fmt.Errorf("could not create data bucket for run %q: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not add run %q: %w", id, err)
	}
	db.last[id] = nil
	return nil
}

// Runs returns the run ids list
func (db *DB) Runs() ([]string, error) {
	runs := make([]string, 0, len(db.last))
	for id := range db.last {
		runs = append(runs, id)
	}
	sort.Strings(runs)
	return runs, nil
}
