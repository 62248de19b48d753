// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import (
	"errors"
	"strconv"
)

// ErrLineOverflow is returned when a record does not fit the line buffer
var ErrLineOverflow = errors.New("thermotap: record exceeds line buffer")

// Worst-case line budget
const (
	maxTimeDigits = 20 // max uint64
	maxTempChars  = 24

	// MaxLineLen covers time, ID, DLC, eight data bytes and the temperature
	// column including every separator
	MaxLineLen = maxTimeDigits + 1 + 8 + 1 + 1 + MaxDataLen*3 + 1 + maxTempChars
)

const hexDigits = "0123456789ABCDEF"

// Record is one decoded observation of the temperature frame
type Record struct {
	TimeMS  uint64
	ID      uint32
	Len     uint8
	Data    [MaxDataLen]byte
	TempF   float64
	HasTemp bool // set only when Len >= 4
}

// NewRecord builds a record from a frame, decoding the temperature byte when
// the payload is long enough to contain it
func NewRecord(f Frame, timeMS uint64, dec TemperatureDecoder) Record {
	r := Record{
		TimeMS: timeMS,
		ID:     f.ID(),
		Len:    uint8(len(f.Payload())),
		Data:   f.Data,
	}
	if int(r.Len) > TempByteIndex && dec != nil {
		r.TempF = dec.Fahrenheit(f.Data[TempByteIndex])
		r.HasTemp = true
	}
	return r
}

// Formatter renders records as CSV lines into a fixed buffer.
//
// The slice returned by Format aliases the buffer and is only valid until
// the next call. A Formatter is not safe for concurrent use.
type Formatter struct {
	buf [MaxLineLen]byte
	n   int
}

// Format renders r as time_ms,ID,DLC,data...[,Temp_F] without a line
// terminator
func (f *Formatter) Format(r Record) ([]byte, error) {
	f.n = 0

	var scratch [maxTempChars]byte
	if !f.put(strconv.AppendUint(scratch[:0], r.TimeMS, 10)) {
		return nil, ErrLineOverflow
	}
	if !f.putByte(',') || !f.putHex(r.ID, 8) || !f.putByte(',') {
		return nil, ErrLineOverflow
	}

	n := int(r.Len)
	if n > MaxDataLen {
		return nil, ErrInvalidLen
	}
	if !f.put(strconv.AppendUint(scratch[:0], uint64(n), 10)) {
		return nil, ErrLineOverflow
	}
	for i := 0; i < n; i++ {
		if !f.putByte(',') || !f.putHex(uint32(r.Data[i]), 2) {
			return nil, ErrLineOverflow
		}
	}

	if r.HasTemp && n > TempByteIndex {
		t := strconv.AppendFloat(scratch[:0], r.TempF, 'f', 1, 64)
		if !f.putByte(',') || !f.put(t) {
			return nil, ErrLineOverflow
		}
	}
	return f.buf[:f.n], nil
}

func (f *Formatter) put(b []byte) bool {
	if f.n+len(b) > len(f.buf) {
		return false
	}
	f.n += copy(f.buf[f.n:], b)
	return true
}

func (f *Formatter) putByte(c byte) bool {
	if f.n >= len(f.buf) {
		return false
	}
	f.buf[f.n] = c
	f.n++
	return true
}

// putHex writes v as exactly digits uppercase hex characters
func (f *Formatter) putHex(v uint32, digits int) bool {
	if f.n+digits > len(f.buf) {
		return false
	}
	for i := digits - 1; i >= 0; i-- {
		f.buf[f.n+i] = hexDigits[v&0xF]
		v >>= 4
	}
	f.n += digits
	return true
}

// FormatRecord is a convenience wrapper that returns a string
func FormatRecord(r Record) (string, error) {
	var f Formatter
	line, err := f.Format(r)
	if err != nil {
		return "", err
	}
	return string(line), nil
}
