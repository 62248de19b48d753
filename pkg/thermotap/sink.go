// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

// DualSink sends every record line to the console and to the rotator
type DualSink struct {
	console Console
	rotator *Rotator
}

// NewDualSink creates a sink. A nil rotator means console-only output.
func NewDualSink(console Console, rotator *Rotator) *DualSink {
	return &DualSink{console: console, rotator: rotator}
}

// Deliver writes line to the console unconditionally, then to storage.
// The returned error is the storage error, if any; the console never fails.
func (s *DualSink) Deliver(line []byte) error {
	if s.console != nil {
		s.console.WriteLine(string(line))
	}
	if s.rotator == nil {
		return nil
	}
	if err := s.rotator.Write(line); err != nil {
		return err
	}
	return s.rotator.RollIfNeeded()
}

// Rotator returns the storage side of the sink, possibly nil
func (s *DualSink) Rotator() *Rotator { return s.rotator }

// storageState returns the open log file, the number of rotations and
// whether storage logging is off. A console-only sink counts as off.
func (s *DualSink) storageState() (name string, rotations uint64, disabled bool) {
	if s.rotator == nil {
		return "", 0, true
	}
	return s.rotator.FileName(), s.rotator.Rotations(), s.rotator.Disabled()
}
