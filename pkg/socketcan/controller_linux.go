// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package socketcan

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/candevice"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

// device is the netlink side of the interface
type device interface {
	SetUp() error
	SetDown() error
	SetBitrate(bitrate uint32) error
	SetListenOnlyMode(mode bool) error
}

// receiver is the raw socket side of the interface
type receiver interface {
	Receive() bool
	HasErrorFrame() bool
	Frame() can.Frame
	ErrorFrame() socketcan.ErrorFrame
	Err() error
	Close() error
}

// Controller implements thermotap.Controller for a SocketCAN interface
type Controller struct {
	iface string
	opts  Options
	dev   device
	dial  func(ctx context.Context, iface string, opts ...socketcan.DialOption) (receiver, error)

	filterMu sync.Mutex
	filters  *thermotap.FilterTable

	mu      sync.Mutex
	rx      receiver
	frames  chan thermotap.Frame
	errs    chan error
	stop    chan struct{}
	wg      sync.WaitGroup
	closed  bool
	bitrate uint32

	flags   atomic.Uint32 // latched thermotap.ErrorFlags
	dropped atomic.Uint64
}

// New creates a controller for iface, e.g. "can0". Nothing is touched until
// Initialize.
func New(iface string, opts Options) (*Controller, error) {
	c := &Controller{
		iface:   iface,
		opts:    opts,
		dial:    dialReceiver,
		filters: thermotap.NewFilterTable(MaxFilterSlots),
	}
	if opts.ManageDevice {
		d, err := candevice.New(iface)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", iface, err)
		}
		c.dev = d
	}
	return c, nil
}

func dialReceiver(ctx context.Context, iface string, opts ...socketcan.DialOption) (receiver, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, err := socketcan.DialContext(ctx, "can", iface, opts...)
	if err != nil {
		return nil, err
	}
	return socketcan.NewReceiver(conn), nil
}

// Initialize restarts the interface at the given bit rate and opens the
// socket. clockHz is handled by the kernel driver and not used here.
func (c *Controller) Initialize(bitrate, clockHz uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.stopReceiver()
	c.flags.Store(0)
	c.bitrate = bitrate

	if c.dev != nil {
		if err := c.dev.SetDown(); err != nil {
			return fmt.Errorf("failed to set %s down: %w", c.iface, err)
		}
		if err := c.dev.SetBitrate(bitrate); err != nil {
			return fmt.Errorf("failed to set bitrate on %s: %w", c.iface, err)
		}
		if err := c.dev.SetUp(); err != nil {
			return fmt.Errorf("failed to set %s up: %w", c.iface, err)
		}
	}
	return c.startReceiver()
}

// SetListenOnly turns on listen-only mode, which requires a down/up cycle
func (c *Controller) SetListenOnly() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.dev == nil {
		// unmanaged: the interface is expected to be configured listen-only
		return nil
	}

	c.stopReceiver()
	if err := c.dev.SetDown(); err != nil {
		return fmt.Errorf("failed to set %s down: %w", c.iface, err)
	}
	if err := c.dev.SetListenOnlyMode(true); err != nil {
		return fmt.Errorf("failed to enable listen-only on %s: %w", c.iface, err)
	}
	if c.bitrate != 0 {
		if err := c.dev.SetBitrate(c.bitrate); err != nil {
			return fmt.Errorf("failed to set bitrate on %s: %w", c.iface, err)
		}
	}
	if err := c.dev.SetUp(); err != nil {
		return fmt.Errorf("failed to set %s up: %w", c.iface, err)
	}
	return c.startReceiver()
}

// FilterSlots returns the number of software acceptance slots
func (c *Controller) FilterSlots() int { return MaxFilterSlots }

// ProgramFilter sets one acceptance slot. Filtering happens in the receive
// goroutine before frames are queued.
func (c *Controller) ProgramFilter(slot int, mask, id uint32) error {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	return c.filters.Set(slot, mask, id)
}

// Poll returns the next queued frame without blocking
func (c *Controller) Poll() (thermotap.Frame, bool, error) {
	c.mu.Lock()
	frames, errs := c.frames, c.errs
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return thermotap.Frame{}, false, ErrClosed
	}
	if frames == nil {
		return thermotap.Frame{}, false, ErrNotStarted
	}
	select {
	case f := <-frames:
		return f, true, nil
	case err := <-errs:
		return thermotap.Frame{}, false, err
	default:
		return thermotap.Frame{}, false, nil
	}
}

// ErrorFlags returns the bits latched from error frames since the last
// call and clears them
func (c *Controller) ErrorFlags() (thermotap.ErrorFlags, error) {
	return thermotap.ErrorFlags(c.flags.Swap(0)), nil
}

// Dropped returns the number of frames lost to a full queue
func (c *Controller) Dropped() uint64 { return c.dropped.Load() }

// Close stops receiving and takes a managed interface down
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.stopReceiver()
	if c.dev != nil {
		return c.dev.SetDown()
	}
	return nil
}

// startReceiver dials the socket and starts the receive goroutine. Caller
// holds mu.
func (c *Controller) startReceiver() error {
	rx, err := c.dial(context.Background(), c.iface, dialOptions()...)
	if err != nil {
		return fmt.Errorf("failed to open socket on %s: %w", c.iface, err)
	}
	c.rx = rx
	c.frames = make(chan thermotap.Frame, frameQueue)
	c.errs = make(chan error, 1)
	c.stop = make(chan struct{})

	c.wg.Add(1)
	go c.receiveLoop(rx, c.frames, c.errs, c.stop)
	return nil
}

// stopReceiver closes the socket and waits for the goroutine. Caller
// holds mu.
func (c *Controller) stopReceiver() {
	if c.rx == nil {
		return
	}
	close(c.stop)
	c.rx.Close()
	c.wg.Wait()
	c.rx = nil
}

// dialOptions subscribes the socket to kernel error frames. Without them
// no bus-off or error-state change ever reaches the receive loop.
func dialOptions() []socketcan.DialOption {
	return []socketcan.DialOption{socketcan.WithReceiveErrorFrames()}
}

func (c *Controller) receiveLoop(rx receiver, frames chan<- thermotap.Frame, errs chan<- error, stop <-chan struct{}) {
	defer c.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for rx.Receive() {
		if rx.HasErrorFrame() {
			c.latch(ErrorFrameFlags(rx.ErrorFrame()))
			continue
		}
		f := convertFrame(rx.Frame())

		c.filterMu.Lock()
		accept := c.filters.Match(f.ID())
		c.filterMu.Unlock()
		if !accept {
			continue
		}

		select {
		case frames <- f:
		case <-stop:
			return
		default:
			c.dropped.Add(1)
			c.latch(thermotap.FlagRX0OVR)
		}
	}

	select {
	case <-stop:
		// closed by us
	default:
		err := rx.Err()
		if err == nil {
			err = ErrClosed
		}
		// a lost socket is handled like bus-off so that recovery redials
		c.latch(thermotap.FlagTXBO)
		errs <- fmt.Errorf("socketcan: receive on %s: %w", c.iface, err)
	}
}

func (c *Controller) latch(f thermotap.ErrorFlags) {
	for {
		old := c.flags.Load()
		if c.flags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

func convertFrame(cf can.Frame) thermotap.Frame {
	f := thermotap.Frame{RawID: cf.ID, Len: cf.Length, Data: cf.Data}
	if cf.IsExtended {
		f.RawID |= thermotap.FlagExtended
	}
	if cf.IsRemote {
		f.RawID |= thermotap.FlagRemote
	}
	return f
}

// ErrorFrameFlags maps a kernel error frame onto error register bits
func ErrorFrameFlags(ef socketcan.ErrorFrame) thermotap.ErrorFlags {
	var f thermotap.ErrorFlags
	if ef.ErrorClass&socketcan.ErrorClassBusOff != 0 {
		f |= thermotap.FlagTXBO
	}
	if ef.ErrorClass&socketcan.ErrorClassController == 0 {
		return f
	}
	ce := ef.ControllerError
	if ce&socketcan.ControllerErrorRxBufferOverflow != 0 {
		f |= thermotap.FlagRX0OVR
	}
	if ce&socketcan.ControllerErrorTxBufferOverflow != 0 {
		f |= thermotap.FlagRX1OVR
	}
	if ce&socketcan.ControllerErrorRxWarning != 0 {
		f |= thermotap.FlagRXWAR | thermotap.FlagEWARN
	}
	if ce&socketcan.ControllerErrorTxWarning != 0 {
		f |= thermotap.FlagTXWAR | thermotap.FlagEWARN
	}
	if ce&socketcan.ControllerErrorRxPassive != 0 {
		f |= thermotap.FlagRXEP
	}
	if ce&socketcan.ControllerErrorTxPassive != 0 {
		f |= thermotap.FlagTXEP
	}
	return f
}
