// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shotdb opens a shots database, selecting its backend from the
// file name extension.
package shotdb // import "sbinet.org/x/rigol/internal/shotdb"

import (
	"fmt"
	"path/filepath"
	"strings"

	"sbinet.org/x/rigol"
	"sbinet.org/x/rigol/internal/shotbolt"
	"sbinet.org/x/rigol/internal/shotsqlite"
)

// Open opens the shots database fname.
// Files ending with .sqlite or .sqlite3 use SQLite, the others bbolt.
func Open(fname string) (rigol.DB, error) {
	switch ext := strings.ToLower(filepath.Ext(fname)); ext {
	case ".sqlite", ".sqlite3":
		db, err := shotsqlite.Open(fname)
		if err != nil {
			return nil, err
		}
		return db, nil
	case ".db", ".bolt", "":
		db, err := shotbolt.Open(fname)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown shots db extension %q", ext)
	}
}
