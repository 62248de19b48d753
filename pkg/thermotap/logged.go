// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import (
	"context"
	"log/slog"
)

// LoggedController is a Controller decorator that traces driver calls
// through a slog.Logger. Received frames are logged at level; failures are
// always logged at error level.
type LoggedController struct {
	inner  Controller
	logger *slog.Logger
	level  slog.Level
}

// NewLoggedController wraps inner
func NewLoggedController(inner Controller, logger *slog.Logger, level slog.Level) *LoggedController {
	return &LoggedController{inner: inner, logger: logger, level: level}
}

func (l *LoggedController) log(msg string, args ...any) {
	l.logger.Log(context.Background(), l.level, msg, args...)
}

func (l *LoggedController) fail(msg string, err error, args ...any) {
	l.logger.Log(context.Background(), slog.LevelError, msg, append(args, "error", err)...)
}

func (l *LoggedController) Initialize(bitrate, clockHz uint32) error {
	err := l.inner.Initialize(bitrate, clockHz)
	if err != nil {
		l.fail("controller initialize error", err, "bitrate", bitrate, "clock_hz", clockHz)
	} else {
		l.log("controller initialize", "bitrate", bitrate, "clock_hz", clockHz)
	}
	return err
}

func (l *LoggedController) SetListenOnly() error {
	err := l.inner.SetListenOnly()
	if err != nil {
		l.fail("controller listen-only error", err)
	} else {
		l.log("controller listen-only")
	}
	return err
}

func (l *LoggedController) FilterSlots() int {
	return l.inner.FilterSlots()
}

func (l *LoggedController) ProgramFilter(slot int, mask, id uint32) error {
	err := l.inner.ProgramFilter(slot, mask, id)
	if err != nil {
		l.fail("controller filter error", err, "slot", slot, "mask", mask, "id", id)
	} else {
		l.log("controller filter", "slot", slot, "mask", mask, "id", id)
	}
	return err
}

func (l *LoggedController) Poll() (Frame, bool, error) {
	f, ok, err := l.inner.Poll()
	switch {
	case err != nil:
		l.fail("controller receive error", err)
	case ok:
		l.log("controller receive",
			"raw_id", f.RawID,
			"id", f.ID(),
			"extended", f.Extended(),
			"len", int(f.Len),
			"data", f.Payload(),
			"string", f.String(),
		)
	}
	return f, ok, err
}

func (l *LoggedController) ErrorFlags() (ErrorFlags, error) {
	flags, err := l.inner.ErrorFlags()
	if err != nil {
		l.fail("controller error flags error", err)
	} else if flags != 0 {
		l.log("controller error flags", "flags", flags.String())
	}
	return flags, err
}

// Dropped passes through the inner driver's count, or 0 when it keeps none
func (l *LoggedController) Dropped() uint64 {
	if dc, ok := l.inner.(DropCounter); ok {
		return dc.Dropped()
	}
	return 0
}

func (l *LoggedController) Close() error {
	return l.inner.Close()
}
