// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks frame counts, fault handling and storage activity.
// It is updated by the poll loop and may be read from other goroutines.
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64
	IgnoredFrames    uint64
	OffTargetFrames  uint64
	InvalidFrames    uint64
	RemoteFrames     uint64
	Records          uint64
	TempRecords      uint64
	FormatErrors     uint64
	DriverErrors     uint64
	FaultsReported   uint64
	BusOffs          uint64
	Recoveries       uint64
	FailedRecoveries uint64
	StorageErrors    uint64
	Rotations        uint64
	DriverDropped    uint64 // input the driver discarded before the poll loop saw it

	// Latest values
	LastTempF       float64
	HasLastTemp     bool
	LastFlags       ErrorFlags
	LogFile         string // open log file, "" when logging to the console only
	StorageDisabled bool

	// Rates (calculated)
	FrameRate  float64 // frames/sec
	RecordRate float64 // records/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

func (s *Statistics) update(fn func()) {
	if s == nil {
		return
	}
	s.mu.Lock()
	fn()
	s.LastUpdateTime = time.Now()
	s.mu.Unlock()
}

func (s *Statistics) frameSeen()      { s.update(func() { s.TotalFrames++ }) }
func (s *Statistics) frameIgnored()   { s.update(func() { s.IgnoredFrames++ }) }
func (s *Statistics) frameOffTarget() { s.update(func() { s.OffTargetFrames++ }) }
func (s *Statistics) frameInvalid()   { s.update(func() { s.InvalidFrames++ }) }
func (s *Statistics) frameRemote()    { s.update(func() { s.RemoteFrames++ }) }
func (s *Statistics) formatError()    { s.update(func() { s.FormatErrors++ }) }
func (s *Statistics) driverError()    { s.update(func() { s.DriverErrors++ }) }
func (s *Statistics) storageError()   { s.update(func() { s.StorageErrors++ }) }

func (s *Statistics) recorded(r Record) {
	s.update(func() {
		s.Records++
		if r.HasTemp {
			s.TempRecords++
			s.LastTempF = r.TempF
			s.HasLastTemp = true
		}
	})
}

func (s *Statistics) storage(name string, rotations uint64, disabled bool) {
	s.update(func() {
		s.LogFile = name
		s.Rotations = rotations
		s.StorageDisabled = disabled
	})
}

func (s *Statistics) driverDropped(n uint64) {
	s.update(func() { s.DriverDropped = n })
}

func (s *Statistics) fault(flags ErrorFlags) {
	s.update(func() {
		s.FaultsReported++
		s.LastFlags = flags
		if flags.BusOff() {
			s.BusOffs++
		}
	})
}

func (s *Statistics) recovery(ok bool) {
	s.update(func() {
		if ok {
			s.Recoveries++
		} else {
			s.FailedRecoveries++
		}
	})
}

// Snapshot returns a copy with rates calculated
func (s *Statistics) Snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return Statistics{
		StartTime:        s.StartTime,
		LastUpdateTime:   s.LastUpdateTime,
		TotalFrames:      s.TotalFrames,
		IgnoredFrames:    s.IgnoredFrames,
		OffTargetFrames:  s.OffTargetFrames,
		InvalidFrames:    s.InvalidFrames,
		RemoteFrames:     s.RemoteFrames,
		Records:          s.Records,
		TempRecords:      s.TempRecords,
		FormatErrors:     s.FormatErrors,
		DriverErrors:     s.DriverErrors,
		FaultsReported:   s.FaultsReported,
		BusOffs:          s.BusOffs,
		Recoveries:       s.Recoveries,
		FailedRecoveries: s.FailedRecoveries,
		StorageErrors:    s.StorageErrors,
		Rotations:        s.Rotations,
		DriverDropped:    s.DriverDropped,
		LastTempF:        s.LastTempF,
		HasLastTemp:      s.HasLastTemp,
		LastFlags:        s.LastFlags,
		LogFile:          s.LogFile,
		StorageDisabled:  s.StorageDisabled,
		FrameRate:        s.FrameRate,
		RecordRate:       s.RecordRate,
	}
}

// calculateRates calculates frame and record rates. Caller holds mu.
func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.RecordRate = float64(s.Records) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	var recordPercent, ignoredPercent, offTargetPercent float64
	if snap.TotalFrames > 0 {
		recordPercent = float64(snap.Records) * 100.0 / float64(snap.TotalFrames)
		ignoredPercent = float64(snap.IgnoredFrames) * 100.0 / float64(snap.TotalFrames)
		offTargetPercent = float64(snap.OffTargetFrames) * 100.0 / float64(snap.TotalFrames)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", snap.TotalFrames)
	result += fmt.Sprintf("Records:         %8d (%.1f%%)\n", snap.Records, recordPercent)
	result += fmt.Sprintf("  With Temp:     %8d\n", snap.TempRecords)
	result += fmt.Sprintf("Ignored:         %8d (%.1f%%)\n", snap.IgnoredFrames, ignoredPercent)
	result += fmt.Sprintf("Off Target:      %8d (%.1f%%)\n", snap.OffTargetFrames, offTargetPercent)

	if snap.InvalidFrames > 0 {
		result += fmt.Sprintf("Invalid Frames:  %8d\n", snap.InvalidFrames)
	}
	if snap.RemoteFrames > 0 {
		result += fmt.Sprintf("Remote Frames:   %8d\n", snap.RemoteFrames)
	}
	if snap.DriverDropped > 0 {
		result += fmt.Sprintf("Driver Dropped:  %8d\n", snap.DriverDropped)
	}
	if snap.FormatErrors > 0 {
		result += fmt.Sprintf("Format Errors:   %8d\n", snap.FormatErrors)
	}
	if snap.DriverErrors > 0 {
		result += fmt.Sprintf("Driver Errors:   %8d\n", snap.DriverErrors)
	}
	if snap.FaultsReported > 0 {
		result += fmt.Sprintf("Faults:          %8d (last flags %s)\n", snap.FaultsReported, snap.LastFlags)
		result += fmt.Sprintf("  Bus-off:          %5d\n", snap.BusOffs)
		result += fmt.Sprintf("  Recovered:        %5d\n", snap.Recoveries)
		if snap.FailedRecoveries > 0 {
			result += fmt.Sprintf("  Failed Recovery:  %5d\n", snap.FailedRecoveries)
		}
	}
	if snap.StorageErrors > 0 {
		result += fmt.Sprintf("Storage Errors:  %8d\n", snap.StorageErrors)
	}
	switch {
	case snap.StorageDisabled:
		result += "Storage:         disabled\n"
	case snap.LogFile != "":
		result += fmt.Sprintf("Log File:        %8s\n", snap.LogFile)
	}
	if snap.Rotations > 0 {
		result += fmt.Sprintf("Rotations:       %8d\n", snap.Rotations)
	}
	if snap.HasLastTemp {
		result += fmt.Sprintf("Last Temp:       %8.1f F\n", snap.LastTempF)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", snap.FrameRate)
	result += fmt.Sprintf("Record Rate:     %8.1f records/sec\n", snap.RecordRate)
	result += "================================\n"

	return result
}
