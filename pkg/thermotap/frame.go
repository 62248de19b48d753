// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidID  = errors.New("thermotap: invalid identifier")
	ErrInvalidLen = errors.New("thermotap: invalid data length")
)

// Frame is one classical CAN frame as handed over by a controller driver.
//
// RawID is the identifier exactly as the driver reports it and may carry the
// EFF/RTR/ERR flag bits in its top three bits. Use ID for the canonical
// 29-bit identifier.
type Frame struct {
	RawID uint32
	Len   uint8
	Data  [MaxDataLen]byte
}

// NewFrame builds an extended data frame from a canonical identifier
func NewFrame(id uint32, data []byte) (Frame, error) {
	if id > MaxExtendedID {
		return Frame{}, ErrInvalidID
	}
	if len(data) > MaxDataLen {
		return Frame{}, ErrInvalidLen
	}
	f := Frame{RawID: id | FlagExtended, Len: uint8(len(data))}
	copy(f.Data[:], data)
	return f, nil
}

// MustFrame is NewFrame that panics on invalid input. Intended for tests.
func MustFrame(id uint32, data []byte) Frame {
	f, err := NewFrame(id, data)
	if err != nil {
		panic(err)
	}
	return f
}

// ID returns the identifier stripped to its canonical 29-bit width
func (f Frame) ID() uint32 {
	return f.RawID & MaxExtendedID
}

// Extended reports whether the driver flagged the frame as 29-bit
func (f Frame) Extended() bool {
	return f.RawID&FlagExtended != 0
}

// Remote reports whether the frame is a remote transmission request
func (f Frame) Remote() bool {
	return f.RawID&FlagRemote != 0
}

// Payload returns the valid data bytes
func (f Frame) Payload() []byte {
	n := int(f.Len)
	if n > MaxDataLen {
		n = MaxDataLen
	}
	return f.Data[:n]
}

// Validate checks the length and identifier range
func (f Frame) Validate() error {
	if f.Len > MaxDataLen {
		return ErrInvalidLen
	}
	if !f.Extended() && f.ID() > MaxStandardID {
		return ErrInvalidID
	}
	return nil
}

// String renders the frame for debug output, e.g. "00005D7C [3] 01 02 03"
func (f Frame) String() string {
	var b strings.Builder
	if f.Extended() {
		fmt.Fprintf(&b, "%08X", f.ID())
	} else {
		fmt.Fprintf(&b, "%03X", f.ID())
	}
	fmt.Fprintf(&b, " [%d]", f.Len)
	if f.Remote() {
		b.WriteString(" RTR")
		return b.String()
	}
	for _, d := range f.Payload() {
		fmt.Fprintf(&b, " %02X", d)
	}
	return b.String()
}
