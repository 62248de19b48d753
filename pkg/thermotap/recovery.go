// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
)

// ErrBringUp marks a failed initial controller bring-up. Nothing can be
// captured without a working controller, so the poll loop does not start.
var ErrBringUp = errors.New("thermotap: controller bring-up failed")

// State is the fault recovery state
type State int32

const (
	StateNormal State = iota
	StateFaulted
	StateRecovering
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateFaulted:
		return "FAULTED"
	case StateRecovering:
		return "RECOVERING"
	default:
		return "UNKNOWN"
	}
}

// RecoveryConfig holds the bring-up parameters that every reinitialization
// repeats unchanged
type RecoveryConfig struct {
	Bitrate          uint32
	ClockHz          uint32
	Filter           AdmissionFilter
	BringUpAttempts  uint
	RecoveryAttempts uint
	RetryDelay       time.Duration
}

// Recovery watches controller error flags and reinitializes the controller
// after bus-off
type Recovery struct {
	ctrl     Controller
	cfg      RecoveryConfig
	reporter *Reporter
	stats    *Statistics
	state    atomic.Int32
}

// NewRecovery creates the state machine in the Normal state
func NewRecovery(ctrl Controller, cfg RecoveryConfig, reporter *Reporter, stats *Statistics) *Recovery {
	if cfg.BringUpAttempts == 0 {
		cfg.BringUpAttempts = 1
	}
	if cfg.RecoveryAttempts == 0 {
		cfg.RecoveryAttempts = 1
	}
	return &Recovery{ctrl: ctrl, cfg: cfg, reporter: reporter, stats: stats}
}

// State returns the current state. Safe to call from any goroutine.
func (r *Recovery) State() State { return State(r.state.Load()) }

func (r *Recovery) setState(s State) { r.state.Store(int32(s)) }

// BringUp performs the initial controller configuration
func (r *Recovery) BringUp(ctx context.Context) error {
	err := r.configure(ctx, r.cfg.BringUpAttempts, "bring-up")
	if err != nil {
		r.setState(StateFaulted)
		r.reporter.Errorf("FATAL: controller bring-up failed, capture halted: %v", err)
		return fmt.Errorf("%w: %v", ErrBringUp, err)
	}
	r.setState(StateNormal)
	r.reporter.Infof("controller up at %d bit/s, listen-only, %s filter", r.cfg.Bitrate, r.cfg.Filter.Mode())
	return nil
}

// Check evaluates an error flag snapshot taken on a poll without a frame
func (r *Recovery) Check(ctx context.Context, flags ErrorFlags) {
	if !flags.HasError() {
		if r.State() == StateFaulted {
			r.setState(StateNormal)
			r.reporter.Infof("controller error flags cleared")
		}
		return
	}

	r.setState(StateFaulted)
	r.stats.fault(flags)
	r.reporter.Warnf("controller error flags %s", flags)

	if !flags.BusOff() {
		return
	}
	r.reporter.Errorf("bus-off detected, reinitializing controller")
	r.Recover(ctx)
}

// Recover reinitializes the controller, restores listen-only mode and
// reapplies the admission filter. Calling it in the Normal state leaves the
// filter configuration unchanged.
func (r *Recovery) Recover(ctx context.Context) error {
	r.setState(StateRecovering)
	if err := r.configure(ctx, r.cfg.RecoveryAttempts, "recovery"); err != nil {
		r.setState(StateFaulted)
		r.stats.recovery(false)
		r.reporter.Errorf("controller recovery failed: %v", err)
		return err
	}
	r.setState(StateNormal)
	r.stats.recovery(true)
	r.reporter.Infof("controller recovered, %s filter reapplied", r.cfg.Filter.Mode())
	return nil
}

func (r *Recovery) configure(ctx context.Context, attempts uint, what string) error {
	return retry.Do(
		func() error {
			if err := r.ctrl.Initialize(r.cfg.Bitrate, r.cfg.ClockHz); err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			if err := r.ctrl.SetListenOnly(); err != nil {
				return fmt.Errorf("listen-only: %w", err)
			}
			return r.cfg.Filter.Apply(r.ctrl)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(r.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.reporter.Warnf("%s attempt #%d failed: %v", what, n+1, err)
		}),
	)
}
