// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package slcan drives a Lawicel/SLCAN serial-line CAN adapter as a
// listen-only thermotap controller.
//
// The adapter is reached through any byte stream: a serial port or a
// WebSocket bridge. Commands are CR-terminated ASCII; the adapter answers
// CR for success and BEL for failure. Received frames arrive as t/T/r/R
// lines at any time, including while a command waits for its answer.
package slcan

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

// Protocol bytes
const (
	CR  = 0x0D
	BEL = 0x07
)

// Defaults
const (
	DefaultAckTimeout     = 500 * time.Millisecond
	DefaultStatusInterval = 100 * time.Millisecond
	tokenQueueSize        = 256
	maxLineLen            = 64
)

var (
	ErrClosed             = errors.New("slcan: controller closed")
	ErrNack               = errors.New("slcan: command rejected")
	ErrTimeout            = errors.New("slcan: no answer from adapter")
	ErrUnsupportedBitrate = errors.New("slcan: unsupported bitrate")
	ErrFilterSlot         = errors.New("slcan: adapter has a single filter slot")
)

// bitrateCodes maps bus speeds to the Sn setup command
var bitrateCodes = map[uint32]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// token is one unit read from the adapter: a CR-terminated line (empty for
// a bare acknowledgement), a BEL, or the error that ended the stream
type token struct {
	line []byte
	nack bool
	err  error
}

// Controller implements thermotap.Controller for an SLCAN adapter.
//
// All methods except Close must be called from one goroutine.
type Controller struct {
	rw     io.ReadWriteCloser
	tokens chan token
	done   chan struct{}

	closeOnce sync.Once

	// AckTimeout bounds the wait for a command answer
	AckTimeout time.Duration
	// StatusInterval limits how often ErrorFlags asks for the status byte
	StatusInterval time.Duration

	pending     []thermotap.Frame // frames read while waiting for an answer
	flags       thermotap.ErrorFlags
	lastStatus  time.Time
	open        bool
	readErr     error
	readErrSeen bool
	dropped     uint64
}

// New starts reading from rw. The controller owns rw and closes it on Close.
func New(rw io.ReadWriteCloser) *Controller {
	c := &Controller{
		rw:             rw,
		tokens:         make(chan token, tokenQueueSize),
		done:           make(chan struct{}),
		AckTimeout:     DefaultAckTimeout,
		StatusInterval: DefaultStatusInterval,
	}
	go c.readLoop()
	return c
}

// readLoop splits the byte stream into tokens
func (c *Controller) readLoop() {
	buf := make([]byte, 64)
	line := make([]byte, 0, maxLineLen)
	for {
		n, err := c.rw.Read(buf)
		for _, b := range buf[:n] {
			switch b {
			case CR:
				if !c.emit(token{line: append([]byte(nil), line...)}) {
					return
				}
				line = line[:0]
			case BEL:
				if !c.emit(token{nack: true}) {
					return
				}
				line = line[:0]
			case '\n':
				// some bridges send CRLF
			default:
				if len(line) < maxLineLen {
					line = append(line, b)
				}
			}
		}
		if err != nil {
			c.emit(token{err: err})
			return
		}
	}
}

func (c *Controller) emit(t token) bool {
	select {
	case c.tokens <- t:
		return true
	case <-c.done:
		return false
	}
}

// Initialize closes the channel and selects the bit rate. The adapter
// derives bit timing itself, so clockHz is not used.
func (c *Controller) Initialize(bitrate, clockHz uint32) error {
	code, ok := bitrateCodes[bitrate]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedBitrate, bitrate)
	}

	// C is rejected when the channel is already closed
	if err := c.command("C"); err != nil && !errors.Is(err, ErrNack) {
		return err
	}
	c.open = false
	c.flags = 0
	c.pending = c.pending[:0]

	if err := c.command("S" + string(code)); err != nil {
		return fmt.Errorf("setting bitrate %d: %w", bitrate, err)
	}
	return nil
}

// SetListenOnly opens the channel in listen-only mode
func (c *Controller) SetListenOnly() error {
	if c.open {
		if err := c.command("C"); err != nil && !errors.Is(err, ErrNack) {
			return err
		}
		c.open = false
	}
	if err := c.command("L"); err != nil {
		return err
	}
	c.open = true
	return nil
}

// FilterSlots returns 1: the adapter exposes one SJA1000 acceptance filter
func (c *Controller) FilterSlots() int { return 1 }

// ProgramFilter writes the acceptance code and mask registers. The channel
// is closed while doing so and reopened listen-only if it was open.
func (c *Controller) ProgramFilter(slot int, mask, id uint32) error {
	if slot != 0 {
		return fmt.Errorf("%w: slot %d", ErrFilterSlot, slot)
	}
	code, amr := AcceptanceRegisters(mask, id)

	wasOpen := c.open
	if wasOpen {
		if err := c.command("C"); err != nil {
			return err
		}
		c.open = false
	}
	if err := c.command(fmt.Sprintf("M%08X", code)); err != nil {
		return fmt.Errorf("acceptance code: %w", err)
	}
	if err := c.command(fmt.Sprintf("m%08X", amr)); err != nil {
		return fmt.Errorf("acceptance mask: %w", err)
	}
	if wasOpen {
		return c.SetListenOnly()
	}
	return nil
}

// AcceptanceRegisters converts a match mask and identifier into SJA1000
// single-filter code and mask registers for 29-bit frames. In the mask
// register a set bit means "don't care"; the three low bits (RTR and two
// unused) are always don't-care.
func AcceptanceRegisters(mask, id uint32) (code, amr uint32) {
	mask &= thermotap.MaxExtendedID
	id &= mask
	return id << 3, ^(mask << 3)
}

// Poll returns the next received frame without blocking
func (c *Controller) Poll() (thermotap.Frame, bool, error) {
	if len(c.pending) > 0 {
		f := c.pending[0]
		c.pending = c.pending[1:]
		return f, true, nil
	}
	if c.readErr != nil {
		// the stream is gone: report why once, then end the input
		if c.readErrSeen {
			return thermotap.Frame{}, false, io.EOF
		}
		c.readErrSeen = true
		return thermotap.Frame{}, false, c.readErr
	}

	for {
		select {
		case t := <-c.tokens:
			f, ok, err := c.handle(t)
			if err != nil || ok {
				return f, ok, err
			}
		case <-c.done:
			return thermotap.Frame{}, false, ErrClosed
		default:
			return thermotap.Frame{}, false, nil
		}
	}
}

// ErrorFlags returns the status bits latched since the last call and clears
// them. A status request is sent at most once per StatusInterval; its answer
// is picked up by later polls.
func (c *Controller) ErrorFlags() (thermotap.ErrorFlags, error) {
	if c.readErr != nil {
		return 0, nil
	}
	if c.open && time.Since(c.lastStatus) >= c.StatusInterval {
		c.lastStatus = time.Now()
		if _, err := c.rw.Write([]byte{'F', CR}); err != nil {
			return 0, fmt.Errorf("status request: %w", err)
		}
	}
	flags := c.flags
	c.flags = 0
	return flags, nil
}

// Dropped returns the number of unparseable lines seen
func (c *Controller) Dropped() uint64 { return c.dropped }

// Close closes the channel and the underlying stream
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.rw.Write([]byte{'C', CR})
		close(c.done)
		err = c.rw.Close()
	})
	return err
}

// command writes cmd and waits for its acknowledgement. Frames and status
// replies that arrive meanwhile are kept.
func (c *Controller) command(cmd string) error {
	_, err := c.exchange(cmd, 0)
	return err
}

// Version asks the adapter for its hardware and firmware version, e.g.
// "1013". It works whether or not the channel is open.
func (c *Controller) Version() (string, error) {
	line, err := c.exchange("V", 'V')
	if err != nil {
		return "", err
	}
	return string(line[1:]), nil
}

// exchange writes cmd and waits for its answer: a bare acknowledgement when
// reply is 0, otherwise a line starting with reply
func (c *Controller) exchange(cmd string, reply byte) ([]byte, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	if _, err := c.rw.Write(append([]byte(cmd), CR)); err != nil {
		return nil, fmt.Errorf("writing %q: %w", cmd, err)
	}

	timer := time.NewTimer(c.AckTimeout)
	defer timer.Stop()
	for {
		select {
		case t := <-c.tokens:
			switch {
			case t.err != nil:
				c.readErr = t.err
				return nil, t.err
			case t.nack:
				return nil, fmt.Errorf("%w: %q", ErrNack, cmd)
			case len(t.line) == 0:
				if reply == 0 {
					return nil, nil
				}
				continue
			case reply != 0 && t.line[0] == reply:
				return t.line, nil
			}
			if f, ok, _ := c.handle(t); ok {
				c.pending = append(c.pending, f)
			}
		case <-timer.C:
			return nil, fmt.Errorf("%w: %q", ErrTimeout, cmd)
		case <-c.done:
			return nil, ErrClosed
		}
	}
}

// handle interprets one token outside a command exchange
func (c *Controller) handle(t token) (thermotap.Frame, bool, error) {
	switch {
	case t.err != nil:
		c.readErr = t.err
		c.readErrSeen = true
		return thermotap.Frame{}, false, t.err
	case t.nack, len(t.line) == 0:
		return thermotap.Frame{}, false, nil
	}

	switch t.line[0] {
	case 't', 'T', 'r', 'R':
		f, err := ParseFrame(t.line)
		if err != nil {
			c.dropped++
			return thermotap.Frame{}, false, err
		}
		return f, true, nil
	case 'F':
		flags, err := ParseStatus(t.line)
		if err != nil {
			c.dropped++
			return thermotap.Frame{}, false, err
		}
		c.flags |= flags
	case 'z', 'Z':
		// transmit acknowledgements; never expected in listen-only mode
	default:
		c.dropped++
	}
	return thermotap.Frame{}, false, nil
}
