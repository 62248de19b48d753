// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package slcan

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

var (
	ErrShortLine = errors.New("slcan: line too short")
	ErrBadLine   = errors.New("slcan: malformed line")
)

// timestampChars is the optional millisecond timestamp some adapters append
const timestampChars = 4

// Lawicel status byte bits (answer to F)
const (
	StatusRxFIFOFull   = 0x01
	StatusTxFIFOFull   = 0x02
	StatusErrorWarning = 0x04
	StatusDataOverrun  = 0x08
	StatusErrorPassive = 0x20
	StatusArbLost      = 0x40
	StatusBusError     = 0x80
)

// ParseFrame decodes a t, T, r or R receive line (without its CR)
func ParseFrame(line []byte) (thermotap.Frame, error) {
	if len(line) == 0 {
		return thermotap.Frame{}, ErrShortLine
	}

	var idLen int
	var extended, remote bool
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen, extended = 8, true
	case 'r':
		idLen, remote = 3, true
	case 'R':
		idLen, extended, remote = 8, true, true
	default:
		return thermotap.Frame{}, fmt.Errorf("%w: unknown type %q", ErrBadLine, line[0])
	}
	if len(line) < 1+idLen+1 {
		return thermotap.Frame{}, ErrShortLine
	}

	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		return thermotap.Frame{}, fmt.Errorf("%w: identifier: %v", ErrBadLine, err)
	}
	if (!extended && id > thermotap.MaxStandardID) || id > thermotap.MaxExtendedID {
		return thermotap.Frame{}, fmt.Errorf("%w: identifier 0x%X out of range", ErrBadLine, id)
	}

	dlc := int(line[1+idLen]) - '0'
	if dlc < 0 || dlc > thermotap.MaxDataLen {
		return thermotap.Frame{}, fmt.Errorf("%w: length %q", ErrBadLine, line[1+idLen])
	}

	f := thermotap.Frame{RawID: uint32(id), Len: uint8(dlc)}
	if extended {
		f.RawID |= thermotap.FlagExtended
	}

	rest := line[1+idLen+1:]
	if remote {
		f.RawID |= thermotap.FlagRemote
	} else {
		if len(rest) < 2*dlc {
			return thermotap.Frame{}, ErrShortLine
		}
		if _, err := hex.Decode(f.Data[:dlc], rest[:2*dlc]); err != nil {
			return thermotap.Frame{}, fmt.Errorf("%w: data: %v", ErrBadLine, err)
		}
		rest = rest[2*dlc:]
	}
	if len(rest) != 0 && len(rest) != timestampChars {
		return thermotap.Frame{}, fmt.Errorf("%w: %d trailing characters", ErrBadLine, len(rest))
	}
	return f, nil
}

// ParseStatus decodes an F answer into error register bits. The adapter
// does not report bus-off, so FlagTXBO is never set.
func ParseStatus(line []byte) (thermotap.ErrorFlags, error) {
	if len(line) != 3 || line[0] != 'F' {
		return 0, fmt.Errorf("%w: status %q", ErrBadLine, line)
	}
	v, err := strconv.ParseUint(string(line[1:]), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: status: %v", ErrBadLine, err)
	}
	return StatusFlags(byte(v)), nil
}

// StatusFlags maps a Lawicel status byte onto error register bits
func StatusFlags(status byte) thermotap.ErrorFlags {
	var f thermotap.ErrorFlags
	if status&StatusRxFIFOFull != 0 {
		f |= thermotap.FlagRX1OVR
	}
	if status&StatusErrorWarning != 0 {
		f |= thermotap.FlagEWARN
	}
	if status&StatusDataOverrun != 0 {
		f |= thermotap.FlagRX0OVR
	}
	if status&StatusErrorPassive != 0 {
		f |= thermotap.FlagRXEP | thermotap.FlagTXEP
	}
	if status&StatusBusError != 0 {
		f |= thermotap.FlagRXWAR
	}
	return f
}
