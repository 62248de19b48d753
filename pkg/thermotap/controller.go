// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import (
	"fmt"
	"strings"
)

// Controller is the bus controller driver the poll loop runs against.
//
// Implementations never transmit. Poll must not block: it returns ok=false
// when no frame is waiting. A driver that has reached the end of its input
// (replay) returns io.EOF from Poll.
type Controller interface {
	// Initialize (re)starts the controller at the given bit rate. clockHz is
	// the oscillator frequency for drivers that derive bit timing from it.
	Initialize(bitrate, clockHz uint32) error

	// SetListenOnly enters the passive receive mode: no ACK, no transmit.
	SetListenOnly() error

	// FilterSlots returns the number of acceptance filter slots
	FilterSlots() int

	// ProgramFilter sets one acceptance slot. A frame passes a slot when
	// (frameID & mask) == (id & mask).
	ProgramFilter(slot int, mask, id uint32) error

	// Poll returns the next received frame, if any
	Poll() (Frame, bool, error)

	// ErrorFlags returns the current error register image
	ErrorFlags() (ErrorFlags, error)

	Close() error
}

// DropCounter is implemented by drivers that discard input before Poll sees
// it: queue overflow or lines that could not be parsed
type DropCounter interface {
	Dropped() uint64
}

// ErrorFlags is an image of the controller's 8-bit error flag register
type ErrorFlags uint8

// HasError reports a general error condition
func (f ErrorFlags) HasError() bool { return f&ErrorMask != 0 }

// BusOff reports the bus-off bit
func (f ErrorFlags) BusOff() bool { return f&FlagTXBO != 0 }

var flagNames = [8]string{"EWARN", "RXWAR", "TXWAR", "RXEP", "TXEP", "TXBO", "RX0OVR", "RX1OVR"}

// String renders the raw byte and the names of the set bits
func (f ErrorFlags) String() string {
	var names []string
	for bit := 0; bit < 8; bit++ {
		if f&(1<<bit) != 0 {
			names = append(names, flagNames[bit])
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("0x%02X", uint8(f))
	}
	return fmt.Sprintf("0x%02X [%s]", uint8(f), strings.Join(names, " "))
}
