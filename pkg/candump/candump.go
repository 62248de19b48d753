// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package candump reads log files written by `candump -l` and replays them
// through the capture pipeline as if they came from a bus controller.
package candump

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

var (
	ErrBadLine     = errors.New("candump: malformed line")
	ErrUnsupported = errors.New("candump: CAN FD frames are not supported")
)

// Linux error frame classes and controller detail bits (linux/can/error.h)
const (
	errClassController = 0x00000004
	errClassBusOff     = 0x00000040

	ctrlRxOverflow = 0x01
	ctrlTxOverflow = 0x02
	ctrlRxWarning  = 0x04
	ctrlTxWarning  = 0x08
	ctrlRxPassive  = 0x10
	ctrlTxPassive  = 0x20
)

// Entry is one parsed log line
type Entry struct {
	Timestamp time.Duration // since the Unix epoch
	Iface     string
	Frame     thermotap.Frame
}

// IsErrorFrame reports whether the line carried a kernel error frame
func (e Entry) IsErrorFrame() bool {
	return e.Frame.RawID&thermotap.FlagError != 0
}

// ErrorFlags maps an error frame onto error register bits. Data frames map
// to zero.
func (e Entry) ErrorFlags() thermotap.ErrorFlags {
	if !e.IsErrorFrame() {
		return 0
	}
	class := e.Frame.RawID & thermotap.MaxExtendedID
	var f thermotap.ErrorFlags
	if class&errClassBusOff != 0 {
		f |= thermotap.FlagTXBO
	}
	if class&errClassController == 0 || e.Frame.Len < 2 {
		return f
	}
	ctrl := e.Frame.Data[1]
	if ctrl&ctrlRxOverflow != 0 {
		f |= thermotap.FlagRX0OVR
	}
	if ctrl&ctrlTxOverflow != 0 {
		f |= thermotap.FlagRX1OVR
	}
	if ctrl&ctrlRxWarning != 0 {
		f |= thermotap.FlagRXWAR | thermotap.FlagEWARN
	}
	if ctrl&ctrlTxWarning != 0 {
		f |= thermotap.FlagTXWAR | thermotap.FlagEWARN
	}
	if ctrl&ctrlRxPassive != 0 {
		f |= thermotap.FlagRXEP
	}
	if ctrl&ctrlTxPassive != 0 {
		f |= thermotap.FlagTXEP
	}
	return f
}

// ParseLine parses `(sec.usec) iface ID#DATA`.
//
// A 3-digit identifier is standard, an 8-digit one is extended and may carry
// the error flag. `ID#R` marks a remote frame, optionally followed by its
// length digit.
func ParseLine(line string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Entry{}, fmt.Errorf("%w: want 3 fields, got %d", ErrBadLine, len(fields))
	}

	ts, err := parseTimestamp(fields[0])
	if err != nil {
		return Entry{}, err
	}
	f, err := parseFrame(fields[2])
	if err != nil {
		return Entry{}, err
	}
	return Entry{Timestamp: ts, Iface: fields[1], Frame: f}, nil
}

func parseTimestamp(s string) (time.Duration, error) {
	if len(s) < 3 || s[0] != '(' || s[len(s)-1] != ')' {
		return 0, fmt.Errorf("%w: timestamp %q", ErrBadLine, s)
	}
	secStr, usecStr, ok := strings.Cut(s[1:len(s)-1], ".")
	if !ok || len(usecStr) != 6 {
		return 0, fmt.Errorf("%w: timestamp %q", ErrBadLine, s)
	}
	sec, err := strconv.ParseUint(secStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: timestamp %q", ErrBadLine, s)
	}
	usec, err := strconv.ParseUint(usecStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: timestamp %q", ErrBadLine, s)
	}
	return time.Duration(sec)*time.Second + time.Duration(usec)*time.Microsecond, nil
}

func parseFrame(s string) (thermotap.Frame, error) {
	idStr, dataStr, ok := strings.Cut(s, "#")
	if !ok {
		return thermotap.Frame{}, fmt.Errorf("%w: frame %q", ErrBadLine, s)
	}
	if strings.HasPrefix(dataStr, "#") {
		return thermotap.Frame{}, ErrUnsupported
	}

	var f thermotap.Frame
	switch len(idStr) {
	case 3:
		id, err := strconv.ParseUint(idStr, 16, 32)
		if err != nil || id > thermotap.MaxStandardID {
			return thermotap.Frame{}, fmt.Errorf("%w: identifier %q", ErrBadLine, idStr)
		}
		f.RawID = uint32(id)
	case 8:
		id, err := strconv.ParseUint(idStr, 16, 32)
		if err != nil {
			return thermotap.Frame{}, fmt.Errorf("%w: identifier %q", ErrBadLine, idStr)
		}
		if id&thermotap.FlagError != 0 {
			f.RawID = uint32(id)
		} else {
			f.RawID = uint32(id&thermotap.MaxExtendedID) | thermotap.FlagExtended
		}
	default:
		return thermotap.Frame{}, fmt.Errorf("%w: identifier %q", ErrBadLine, idStr)
	}

	if strings.HasPrefix(dataStr, "R") {
		f.RawID |= thermotap.FlagRemote
		switch rest := dataStr[1:]; len(rest) {
		case 0:
		case 1:
			if rest[0] < '0' || rest[0] > '8' {
				return thermotap.Frame{}, fmt.Errorf("%w: remote length %q", ErrBadLine, rest)
			}
			f.Len = rest[0] - '0'
		default:
			return thermotap.Frame{}, fmt.Errorf("%w: remote length %q", ErrBadLine, rest)
		}
		return f, nil
	}

	dataStr = strings.ReplaceAll(dataStr, ".", "")
	if len(dataStr)%2 != 0 || len(dataStr) > 2*thermotap.MaxDataLen {
		return thermotap.Frame{}, fmt.Errorf("%w: data %q", ErrBadLine, dataStr)
	}
	for i := 0; i < len(dataStr); i += 2 {
		b, err := strconv.ParseUint(dataStr[i:i+2], 16, 8)
		if err != nil {
			return thermotap.Frame{}, fmt.Errorf("%w: data %q", ErrBadLine, dataStr)
		}
		f.Data[i/2] = byte(b)
	}
	f.Len = uint8(len(dataStr) / 2)
	return f, nil
}
