// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rigol // import "sbinet.org/x/rigol"

import (
	"errors"
)

var (
	ErrConnection   = errors.New("rigol: could not connect to device")
	ErrIO           = errors.New("rigol: i/o error")
	ErrDecode       = errors.New("rigol: invalid response encoding")
	ErrParse        = errors.New("rigol: invalid numeric response")
	ErrRange        = errors.New("rigol: channel out of range")
	ErrPrecondition = errors.New("rigol: precondition failed")

	// ErrTimeout is returned when a trigger wait is cancelled or exceeds
	// its deadline before the acquisition stopped.
	ErrTimeout = errors.New("rigol: timeout waiting for trigger")

	ErrNoData = errors.New("rigol: no data")
	ErrDupRun = errors.New("rigol: duplicate run")
)
