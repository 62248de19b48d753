// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import (
	"errors"
	"fmt"
)

var (
	ErrNamesExhausted  = errors.New("thermotap: no unused log file name left")
	ErrStorageDisabled = errors.New("thermotap: storage logging disabled")
)

// RotationConfig controls log file naming and size
type RotationConfig struct {
	Prefix    string
	Extension string
	MaxIndex  int    // highest sequence number tried, 0..999; 0 allows LOG000 only
	Threshold uint64 // bytes; the file is closed once it reaches this size
	Header    bool   // write CSVHeader at the top of empty files
}

// DefaultRotationConfig returns LOG000.CSV .. LOG999.CSV at 1 MiB each
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		Prefix:    DefaultLogPrefix,
		Extension: DefaultLogExtension,
		MaxIndex:  DefaultMaxLogIndex,
		Threshold: DefaultRotationThreshold,
		Header:    true,
	}
}

// FileName returns the log file name for a sequence index
func (c RotationConfig) FileName(index int) string {
	return fmt.Sprintf("%s%03d%s", c.Prefix, index, c.Extension)
}

// Rotator owns the single open log file and its sequence counter.
//
// Only the poll loop calls into it, so it is not safe for concurrent use.
type Rotator struct {
	storage  Storage
	cfg      RotationConfig
	reporter *Reporter

	file      LogFile
	name      string
	index     int // index of the open file, -1 when none has been opened
	next      int // first index the next scan will try
	size      uint64
	rotations uint64
	disabled  bool
	wbuf      []byte
}

// NewRotator creates a rotator. No file is opened until Start or OpenNext.
func NewRotator(storage Storage, cfg RotationConfig, reporter *Reporter) *Rotator {
	if cfg.MaxIndex < 0 || cfg.MaxIndex > DefaultMaxLogIndex {
		cfg.MaxIndex = DefaultMaxLogIndex
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultRotationThreshold
	}
	return &Rotator{
		storage:  storage,
		cfg:      cfg,
		reporter: reporter,
		index:    -1,
		wbuf:     make([]byte, 0, MaxLineLen+1),
	}
}

// Start opens the first log file. On failure storage logging is disabled
// and reported; the return value tells whether a file is open.
func (r *Rotator) Start() bool {
	if err := r.OpenNext(); err != nil {
		r.disable("storage unavailable, logging to console only: %v", err)
		return false
	}
	r.reporter.Infof("logging to %s", r.name)
	return true
}

// OpenNext opens the lowest unused name at or above the last known index
func (r *Rotator) OpenNext() error {
	if r.storage == nil {
		return ErrStorageDisabled
	}
	if r.file != nil {
		return fmt.Errorf("thermotap: %s is still open", r.name)
	}
	for i := r.next; i <= r.cfg.MaxIndex; i++ {
		name := r.cfg.FileName(i)
		exists, err := r.storage.Exists(name)
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", name, err)
		}
		if exists {
			continue
		}

		f, err := r.storage.OpenAppend(name)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		size, err := f.Size()
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to stat %s: %w", name, err)
		}

		r.file = f
		r.name = name
		r.index = i
		r.next = i + 1
		r.size = uint64(size)

		if r.cfg.Header && r.size == 0 {
			if err := r.append([]byte(CSVHeader)); err != nil {
				r.closeFile()
				return fmt.Errorf("failed to write header to %s: %w", name, err)
			}
		}
		return nil
	}
	r.next = r.cfg.MaxIndex + 1
	return ErrNamesExhausted
}

// Write appends line and a terminator to the open file and syncs it.
// Without an open file it does nothing.
func (r *Rotator) Write(line []byte) error {
	if r.file == nil {
		return nil
	}
	if err := r.append(line); err != nil {
		r.closeFile()
		r.disable("write to log file failed, storage logging disabled: %v", err)
		return err
	}
	return nil
}

// RollIfNeeded closes the file once it reached the threshold and opens the
// next one. When no name is left, storage logging ends.
func (r *Rotator) RollIfNeeded() error {
	if r.file == nil || r.size < r.cfg.Threshold {
		return nil
	}
	prev := r.name
	if err := r.closeFile(); err != nil {
		r.reporter.Warnf("closing %s failed: %v", prev, err)
	}
	r.rotations++

	if err := r.OpenNext(); err != nil {
		r.disable("log rotation after %s failed, storage logging disabled: %v", prev, err)
		return err
	}
	r.reporter.Infof("rolled over %s -> %s", prev, r.name)
	return nil
}

// Close closes the open file, if any
func (r *Rotator) Close() error {
	return r.closeFile()
}

// Active reports whether a log file is open
func (r *Rotator) Active() bool { return r.file != nil }

// Disabled reports whether storage logging has ended
func (r *Rotator) Disabled() bool { return r.disabled }

// FileName returns the name of the open file, or "" when none is open
func (r *Rotator) FileName() string {
	if r.file == nil {
		return ""
	}
	return r.name
}

// Index returns the sequence index of the open file, or -1
func (r *Rotator) Index() int {
	if r.file == nil {
		return -1
	}
	return r.index
}

// Size returns the byte count of the open file
func (r *Rotator) Size() uint64 { return r.size }

// Rotations returns how many times a full file was closed
func (r *Rotator) Rotations() uint64 { return r.rotations }

func (r *Rotator) append(line []byte) error {
	r.wbuf = append(append(r.wbuf[:0], line...), '\n')
	n, err := r.file.Write(r.wbuf)
	r.size += uint64(n)
	if err != nil {
		return err
	}
	return r.file.Sync()
}

func (r *Rotator) closeFile() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.name = ""
	r.size = 0
	return err
}

// disable ends storage logging and reports it once
func (r *Rotator) disable(format string, args ...any) {
	if r.disabled {
		return
	}
	r.disabled = true
	r.reporter.Warnf(format, args...)
}
