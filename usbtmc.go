// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rigol // import "sbinet.org/x/rigol"

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const defaultReadLen = 4000

// Device is a raw USBTMC channel to an instrument.
//
// A Device is not safe for concurrent use: the response to a query
// is read back on the same channel the query was written to.
type Device struct {
	path string
	rwc  io.ReadWriteCloser
}

// OpenDevice opens the USBTMC character device at path.
func OpenDevice(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrConnection, path, err)
	}
	return &Device{path: path, rwc: f}, nil
}

// NewDevice wraps an already opened channel.
func NewDevice(rwc io.ReadWriteCloser) *Device {
	return &Device{rwc: rwc}
}

// Close releases the underlying channel. Closing twice is a no-op.
func (dev *Device) Close() error {
	if dev.rwc == nil {
		return nil
	}

	err := dev.rwc.Close()
	if err != nil {
		return fmt.Errorf("could not close device %q: %w", dev.path, err)
	}
	dev.rwc = nil
	return nil
}

// Write sends the ASCII command cmd to the instrument.
//
// Some instruments need time to process a command before they accept
// the next one. Write does not wait.
func (dev *Device) Write(cmd string) error {
	if dev.rwc == nil {
		return fmt.Errorf("%w: device closed", ErrIO)
	}

	raw := []byte(cmd)
	n, err := dev.rwc.Write(raw)
	if err != nil {
		return fmt.Errorf("%w: could not write %q: %w", ErrIO, cmd, err)
	}
	if n != len(raw) {
		return fmt.Errorf("%w: short write for %q (%d/%d bytes)", ErrIO, cmd, n, len(raw))
	}
	return nil
}

// Read reads at most n bytes from the instrument.
// The returned slice may be shorter than n.
func (dev *Device) Read(n int) ([]byte, error) {
	if dev.rwc == nil {
		return nil, fmt.Errorf("%w: device closed", ErrIO)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: invalid read length %d", ErrIO, n)
	}

	buf := make([]byte, n)
	n, err := dev.rwc.Read(buf)
	if err != nil && !(err == io.EOF && n > 0) {
		return nil, fmt.Errorf("%w: could not read: %w", ErrIO, err)
	}
	return buf[:n], nil
}

// Ask writes the query cmd and returns the instrument's textual response.
func (dev *Device) Ask(cmd string) (string, error) {
	return dev.AskN(cmd, defaultReadLen)
}

// AskN is like Ask but reads at most n bytes of response.
func (dev *Device) AskN(cmd string, n int) (string, error) {
	err := dev.Write(cmd)
	if err != nil {
		return "", err
	}

	raw, err := dev.Read(n)
	if err != nil {
		return "", fmt.Errorf("could not read response to %q: %w", cmd, err)
	}

	for i, c := range raw {
		if c > 0x7f {
			return "", fmt.Errorf("%w: response to %q has non-ASCII byte 0x%x at %d", ErrDecode, cmd, c, i)
		}
	}
	return string(raw), nil
}

// AskFloat sends the query cmd and parses the response as a float.
func (dev *Device) AskFloat(cmd string) (float64, error) {
	txt, err := dev.Ask(cmd)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(txt), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: response to %q: %w", ErrParse, cmd, err)
	}
	return v, nil
}

// Name returns the instrument identification string.
func (dev *Device) Name() (string, error) {
	name, err := dev.Ask("*IDN?")
	if err != nil {
		return "", fmt.Errorf("could not identify instrument: %w", err)
	}
	return strings.TrimSpace(name), nil
}

// Reset restores the instrument's factory settings.
func (dev *Device) Reset() error {
	return dev.Write("*RST")
}
