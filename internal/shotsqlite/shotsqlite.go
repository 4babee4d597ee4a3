// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shotsqlite provides an implementation of a shots database, backed by SQlite3.
package shotsqlite // import "sbinet.org/x/rigol/internal/shotsqlite"

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
	"sbinet.org/x/rigol"
)

type DB struct {
	db *sql.DB

	last map[string]*rigol.Shot
}

var _ rigol.DB = (*DB)(nil)

// Open opens and initializes a sqlite3-backed shots database.
func Open(fname string) (*DB, error) {
	if _, err := os.Stat(fname); errors.Is(err, fs.ErrNotExist) {
		err = createDB(context.Background(), fname)
		if err != nil {
			return nil, fmt.Errorf("could not create shots db: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fname)
	if err != nil {
		return nil, fmt.Errorf("could not open shots db %q: %w", fname, err)
	}

	store := &DB{
		db:   db,
		last: make(map[string]*rigol.Shot),
	}
	err = store.init()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not setup shots db %q: %w", fname, err)
	}

	return store, nil
}

func createDB(ctx context.Context, fname string) error {
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create shots db %q: %w", fname, err)
	}
	defer f.Close()

	db, err := sql.Open("sqlite", fname)
	if err != nil {
		return fmt.Errorf("could not open shots db %q: %w", fname, err)
	}
	defer db.Close()

	{
		stmt := `CREATE TABLE runs (
        id    TEXT NOT NULL PRIMARY KEY, -- run id
		name  TEXT NOT NULL              -- table name for this run
)
`
		_, err = db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("could not create runs table %q: %w", fname, err)
		}
	}

	// Use Write Ahead Logging which improves SQLite concurrency.
	// Requires SQLite >= 3.7.0
	_, err = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	if err != nil {
		return fmt.Errorf("could not set WAL mode: %w", err)
	}

	var journalMode string
	if err = db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("could not determine sqlite3 journal_mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("could not set sqlite WAL mode")
	}

	return nil
}

func (db *DB) init() error {
	{
		const stmt = `SELECT id FROM runs`
		rows, err := db.db.Query(stmt)
		if err != nil {
			return fmt.Errorf("could not retrieve runs list: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id  string
				err = rows.Scan(&id)
			)
			if err != nil {
				return fmt.Errorf("could not scan run id row: %w", err)
			}
			db.last[id] = nil
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("could not iterate over runs: %w", err)
		}
	}

	ids := make([]string, 0, len(db.last))
	for id := range db.last {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		var blob []byte
		err := db.db.QueryRow(`SELECT data FROM ` + db.table(id) + ` ORDER BY idx DESC LIMIT 1`).Scan(&blob)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			continue
		case err != nil:
			return fmt.Errorf("could not fetch last shot of run %q: %w", id, err)
		}

		var shot rigol.Shot
		err = shot.Unmarshal(blob)
		if err != nil {
			return fmt.Errorf("could not decode last shot of run %q: %w", id, err)
		}
		db.last[id] = &shot
	}

	return nil
}

func (db *DB) table(id string) string {
	sha := sha256.New224()
	_, err := io.Copy(sha, strings.NewReader(id))
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("run_%x", sha.Sum(nil))
}

// Close closes a shots database
func (db *DB) Close() error {
	if db.db != nil {
		err := db.db.Close()
		if err != nil {
			return fmt.Errorf("could not close sqlite db: %w", err)
		}
		db.db = nil
	}

	return nil
}

// PutShot stores the provided shot for the run id.
// A shot with the same index is replaced.
func (db *DB) PutShot(id string, shot rigol.Shot) (err error) {
	last, ok := db.last[id]
	if !ok {
		return fmt.Errorf("no such run %q", id)
	}

	buf := make([]byte, shot.BinarySize())
	err = shot.Marshal(buf)
	if err != nil {
		return fmt.Errorf("could not marshal shot %d: %w", shot.Index, err)
	}

	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("could not create sqlite transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	stmt := `INSERT OR REPLACE INTO ` + db.table(id) + ` (
	idx,
	time,
	channel,
	samples,
	data
) VALUES
(?1, ?2, ?3, ?4, ?5)
`
	_, err = tx.Exec(stmt,
		shot.Index,
		shot.Time.UTC().UnixNano(),
		shot.Channel,
		shot.Len(),
		buf,
	)
	if err != nil {
		return fmt.Errorf("could not insert shot %d: %w", shot.Index, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("could not commit sqlite transaction: %w", err)
	}

	if last == nil || last.Index <= shot.Index {
		db.last[id] = &shot
	}
	return nil
}

// Shots iterates over the shots of the run id, by increasing index.
func (db *DB) Shots(id string) iter.Seq2[rigol.Shot, error] {
	return func(yield func(shot rigol.Shot, err error) bool) {
		if _, ok := db.last[id]; !ok {
			_ = yield(rigol.Shot{}, fmt.Errorf("no such run %q", id))
			return
		}

		rows, err := db.db.Query(`SELECT data FROM ` + db.table(id) + ` ORDER BY idx ASC`)
		if err != nil {
			_ = yield(rigol.Shot{}, fmt.Errorf("could not issue query: %w", err))
			return
		}
		defer rows.Close()

		for i := 0; rows.Next(); i++ {
			var (
				shot rigol.Shot
				blob []byte
			)
			err = rows.Scan(&blob)
			if err != nil {
				_ = yield(shot, fmt.Errorf("could not scan row %d: %w", i, err))
				return
			}
			err = shot.Unmarshal(blob)
			if err != nil {
				_ = yield(shot, fmt.Errorf("could not decode row %d: %w", i, err))
				return
			}
			if !yield(shot, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			_ = yield(rigol.Shot{}, fmt.Errorf("could not iterate over shots: %w", err))
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
func (db *DB) AddRun(id string) (err error) {
	if _, dup := db.last[id]; dup {
		return rigol.ErrDupRun
	}

	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("could not create sqlite transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	name := db.table(id)
	{
		const q = `INSERT INTO runs (id, name) VALUES (?1, ?2)`
		_, err = tx.Exec(q, id, name)
		if err != nil {
			return fmt.Errorf("could not add run %q to runs table: %w", id, err)
		}
	}
	{
		stmt := `CREATE TABLE ` + name + ` (
			idx      INTEGER NOT NULL PRIMARY KEY, -- shot index in the run
			time     INTEGER,                      -- capture time (nanoseconds since epoch UTC)
			channel  INTEGER,                      -- scope channel
			samples  INTEGER,                      -- number of samples
			data     BLOB                          -- encoded shot
)
`
		_, err = tx.Exec(stmt)
		if err != nil {
			return fmt.Errorf("could not create run table for %q: %w", id, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("could not commit sqlite transaction for run %q: %w", id, err)
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
