// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import (
	"context"
	"errors"
	"io"
	"time"
)

// Config is the runtime configuration of the capture pipeline
type Config struct {
	ObservationMode   bool
	TargetID          uint32
	IgnoreList        IgnoreList
	Calibration       LinearCalibration
	RotationThreshold uint64

	Bitrate          uint32
	ClockHz          uint32
	BringUpAttempts  uint
	RecoveryAttempts uint
	RetryDelay       time.Duration
	PollInterval     time.Duration
}

// DefaultConfig returns production-mode defaults
func DefaultConfig() Config {
	return Config{
		TargetID:          DefaultTargetID,
		Calibration:       DefaultCalibration(),
		RotationThreshold: DefaultRotationThreshold,
		Bitrate:           DefaultBitrate,
		ClockHz:           DefaultClockHz,
		BringUpAttempts:   DefaultBringUpAttempts,
		RecoveryAttempts:  DefaultRecoveryAttempts,
		RetryDelay:        DefaultRetryDelay,
		PollInterval:      DefaultPollInterval,
	}
}

// Filter returns the admission filter implied by the configuration
func (c Config) Filter() AdmissionFilter {
	return AdmissionFilter{ObservationMode: c.ObservationMode, TargetID: c.TargetID}
}

// Poller is the top-level capture loop
type Poller struct {
	cfg      Config
	ctrl     Controller
	decoder  TemperatureDecoder
	sink     *DualSink
	recovery *Recovery
	reporter *Reporter
	stats    *Statistics
	clock    func() uint64

	formatter Formatter
}

// PollerOption customizes a Poller
type PollerOption func(*Poller)

// WithDecoder replaces the calibration-based temperature decoder
func WithDecoder(d TemperatureDecoder) PollerOption {
	return func(p *Poller) { p.decoder = d }
}

// WithClock replaces the elapsed-milliseconds source
func WithClock(clock func() uint64) PollerOption {
	return func(p *Poller) { p.clock = clock }
}

// WithStatistics shares a statistics tracker with the caller
func WithStatistics(s *Statistics) PollerOption {
	return func(p *Poller) { p.stats = s }
}

// NewPoller wires the pipeline together. The elapsed-time clock starts now.
func NewPoller(cfg Config, ctrl Controller, sink *DualSink, reporter *Reporter, opts ...PollerOption) *Poller {
	p := &Poller{
		cfg:      cfg,
		ctrl:     ctrl,
		decoder:  cfg.Calibration,
		sink:     sink,
		reporter: reporter,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.stats == nil {
		p.stats = NewStatistics()
	}
	if p.sink == nil {
		p.sink = NewDualSink(nil, nil)
	}
	if p.clock == nil {
		start := time.Now()
		p.clock = func() uint64 { return uint64(time.Since(start).Milliseconds()) }
	}
	p.recovery = NewRecovery(ctrl, RecoveryConfig{
		Bitrate:          cfg.Bitrate,
		ClockHz:          cfg.ClockHz,
		Filter:           cfg.Filter(),
		BringUpAttempts:  cfg.BringUpAttempts,
		RecoveryAttempts: cfg.RecoveryAttempts,
		RetryDelay:       cfg.RetryDelay,
	}, reporter, p.stats)
	return p
}

// Statistics returns the live statistics tracker
func (p *Poller) Statistics() *Statistics { return p.stats }

// Recovery returns the fault recovery state machine
func (p *Poller) Recovery() *Recovery { return p.recovery }

// Run brings the controller up and polls until ctx is cancelled or the
// controller reports the end of its input. A failed bring-up returns an
// error wrapping ErrBringUp without polling at all.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.recovery.BringUp(ctx); err != nil {
		return err
	}
	p.stats.storage(p.sink.storageState())

	var idle *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		got, err := p.Step(ctx)
		if errors.Is(err, io.EOF) {
			p.reporter.Infof("end of input")
			return nil
		}
		if got || p.cfg.PollInterval <= 0 {
			continue
		}

		if idle == nil {
			idle = time.NewTimer(p.cfg.PollInterval)
			defer idle.Stop()
		} else {
			idle.Reset(p.cfg.PollInterval)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
		}
	}
}

// Step runs one poll iteration. It returns true when a frame was consumed.
// The only error returned is io.EOF from an exhausted controller.
func (p *Poller) Step(ctx context.Context) (bool, error) {
	frame, ok, err := p.ctrl.Poll()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, err
		}
		p.stats.driverError()
		p.reporter.Warnf("controller poll failed: %v", err)
		ok = false
	}
	if !ok {
		p.checkHealth(ctx)
		return false, nil
	}

	p.handleFrame(frame)
	return true, nil
}

func (p *Poller) checkHealth(ctx context.Context) {
	flags, err := p.ctrl.ErrorFlags()
	if err != nil {
		p.stats.driverError()
		p.reporter.Warnf("reading controller error flags failed: %v", err)
		return
	}
	p.recovery.Check(ctx, flags)

	if dc, ok := p.ctrl.(DropCounter); ok {
		p.stats.driverDropped(dc.Dropped())
	}
}

func (p *Poller) handleFrame(frame Frame) {
	p.stats.frameSeen()

	if p.cfg.ObservationMode {
		p.reporter.Infof("RX raw ID 0x%08X", frame.RawID)
	}
	if err := frame.Validate(); err != nil {
		p.stats.frameInvalid()
		p.reporter.Warnf("dropping malformed frame 0x%08X: %v", frame.RawID, err)
		return
	}

	id := frame.ID()
	if p.cfg.IgnoreList.Contains(id) {
		p.stats.frameIgnored()
		return
	}
	if id != p.cfg.TargetID {
		p.stats.frameOffTarget()
		return
	}
	// a remote request has a DLC but no payload
	if frame.Remote() {
		p.stats.frameRemote()
		return
	}

	record := NewRecord(frame, p.clock(), p.decoder)
	line, err := p.formatter.Format(record)
	if err != nil {
		p.stats.formatError()
		p.reporter.Errorf("record for 0x%08X not written: %v", id, err)
		return
	}
	p.stats.recorded(record)

	if err := p.sink.Deliver(line); err != nil {
		p.stats.storageError()
	}
	p.stats.storage(p.sink.storageState())
}
