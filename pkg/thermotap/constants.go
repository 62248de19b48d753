// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package thermotap implements a passive CAN bus temperature logger.
//
// Frames are taken from a listen-only bus controller, filtered down to the
// single identifier that carries the sensor byte, decoded to Fahrenheit and
// written as CSV records to the console and to rotating log files. Controller
// faults are watched on idle polls and bus-off is recovered automatically.
package thermotap

import "time"

// Identifier limits and SocketCAN-style flag bits carried in raw identifiers
const (
	MaxExtendedID = 0x1FFFFFFF
	MaxStandardID = 0x7FF

	FlagExtended = 0x80000000 // EFF
	FlagRemote   = 0x40000000 // RTR
	FlagError    = 0x20000000 // ERR
)

// MaxDataLen is the classical CAN payload limit
const MaxDataLen = 8

// TempByteIndex is the payload position of the raw temperature byte
const TempByteIndex = 3

// Defaults
const (
	DefaultTargetID          = 0x00005D7C
	DefaultBitrate           = 500000
	DefaultClockHz           = 8000000
	DefaultRotationThreshold = 1 << 20 // 1 MiB
	DefaultLogPrefix         = "LOG"
	DefaultLogExtension      = ".CSV"
	DefaultMaxLogIndex       = 999
	DefaultBringUpAttempts   = 3
	DefaultRecoveryAttempts  = 3
	DefaultRetryDelay        = 250 * time.Millisecond
	DefaultPollInterval      = time.Millisecond
)

// Error-flag register bits, as reported on the console
const (
	FlagEWARN  ErrorFlags = 0x01
	FlagRXWAR  ErrorFlags = 0x02
	FlagTXWAR  ErrorFlags = 0x04
	FlagRXEP   ErrorFlags = 0x08
	FlagTXEP   ErrorFlags = 0x10
	FlagTXBO   ErrorFlags = 0x20
	FlagRX0OVR ErrorFlags = 0x40
	FlagRX1OVR ErrorFlags = 0x80

	// ErrorMask selects the bits that count as a general error condition
	ErrorMask ErrorFlags = 0xF8
)

// CSVHeader names the record columns
const CSVHeader = "time_ms,ID,DLC,data0,data1,data2,data3,data4,data5,data6,data7,Temp_F"
