// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package candump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

// ErrNotStarted is returned by Poll before Initialize
var ErrNotStarted = errors.New("candump: replay not initialized")

// FilterSlots is the number of emulated acceptance slots
const FilterSlots = 8

// Replay is a thermotap.Controller that yields the frames of a candump log
// in file order and reports io.EOF at the end.
//
// Controller configuration is recorded rather than applied, except for
// acceptance filters, which are honored so that replayed output matches what
// the hardware would have delivered.
type Replay struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int

	filters *thermotap.FilterTable
	flags   thermotap.ErrorFlags

	started    bool
	first      time.Duration
	last       time.Duration
	haveStamp  bool
	initCount  int
	listenOnly bool
	frames     uint64
	filtered   uint64
	eof        bool
}

// NewReplay reads a candump log from r
func NewReplay(r io.Reader) *Replay {
	rp := &Replay{
		scanner: bufio.NewScanner(r),
		filters: thermotap.NewFilterTable(FilterSlots),
	}
	if c, ok := r.(io.Closer); ok {
		rp.closer = c
	}
	return rp
}

// Open opens a candump log file for replay
func Open(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return NewReplay(f), nil
}

// Initialize records the bring-up. The log is not rewound.
func (r *Replay) Initialize(bitrate, clockHz uint32) error {
	r.started = true
	r.initCount++
	r.flags = 0
	return nil
}

// SetListenOnly records the mode change
func (r *Replay) SetListenOnly() error {
	r.listenOnly = true
	return nil
}

// FilterSlots returns the number of emulated acceptance slots
func (r *Replay) FilterSlots() int { return r.filters.Len() }

// ProgramFilter sets one emulated acceptance slot
func (r *Replay) ProgramFilter(slot int, mask, id uint32) error {
	return r.filters.Set(slot, mask, id)
}

// Poll returns the next accepted frame. An error frame in the log is latched
// into the error flags and reported as an idle poll so the health check runs
// immediately. A malformed line is reported once and skipped.
func (r *Replay) Poll() (thermotap.Frame, bool, error) {
	if !r.started {
		return thermotap.Frame{}, false, ErrNotStarted
	}
	for {
		if r.eof {
			return thermotap.Frame{}, false, io.EOF
		}
		if !r.scanner.Scan() {
			r.eof = true
			if err := r.scanner.Err(); err != nil {
				return thermotap.Frame{}, false, fmt.Errorf("candump: read failed: %w", err)
			}
			continue
		}
		r.line++

		text := strings.TrimSpace(r.scanner.Text())
		if text == "" {
			continue
		}
		e, err := ParseLine(text)
		if err != nil {
			return thermotap.Frame{}, false, fmt.Errorf("line %d: %w", r.line, err)
		}
		r.stamp(e.Timestamp)

		if e.IsErrorFrame() {
			r.flags |= e.ErrorFlags()
			return thermotap.Frame{}, false, nil
		}
		if !r.filters.Match(e.Frame.ID()) {
			r.filtered++
			continue
		}
		r.frames++
		return e.Frame, true, nil
	}
}

func (r *Replay) stamp(ts time.Duration) {
	if !r.haveStamp {
		r.first = ts
		r.haveStamp = true
	}
	r.last = ts
}

// ErrorFlags returns the flags latched from error frames and clears them
func (r *Replay) ErrorFlags() (thermotap.ErrorFlags, error) {
	f := r.flags
	r.flags = 0
	return f, nil
}

// Close closes the underlying file, if any
func (r *Replay) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Clock returns the milliseconds elapsed between the first line of the log
// and the most recently read one. Pass it to thermotap.WithClock so records
// carry the capture's own timing.
func (r *Replay) Clock() uint64 {
	if r.last < r.first {
		return 0
	}
	return uint64((r.last - r.first).Milliseconds())
}

// InitCount returns how many times the controller was initialized
func (r *Replay) InitCount() int { return r.initCount }

// ListenOnly reports whether listen-only mode was requested
func (r *Replay) ListenOnly() bool { return r.listenOnly }

// Frames returns the number of data frames delivered
func (r *Replay) Frames() uint64 { return r.frames }

// Filtered returns the number of data frames rejected by the filters
func (r *Replay) Filtered() uint64 { return r.filtered }
