// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"log/slog"

	"github.com/Thermoquad/thermotap/pkg/config"
	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

// session is one assembled capture pipeline
type session struct {
	poller   *thermotap.Poller
	rotator  *thermotap.Rotator
	reporter *thermotap.Reporter
}

func newSession(cfg *config.Config, ctrl thermotap.Controller, console thermotap.Console, logger *slog.Logger, opts ...thermotap.PollerOption) *session {
	reporter := thermotap.NewReporter(console, logger)

	var rotator *thermotap.Rotator
	if cfg.Storage.Enabled {
		var storage thermotap.Storage
		dir, err := thermotap.NewDirStorage(cfg.Storage.Dir)
		if err != nil {
			reporter.Warnf("%v", err)
		} else {
			storage = dir
		}
		// a nil storage makes Start report the failure and fall back to
		// console-only output
		rotator = thermotap.NewRotator(storage, cfg.Rotation(), reporter)
		rotator.Start()
	} else {
		reporter.Infof("storage disabled, logging to console only")
	}

	sink := thermotap.NewDualSink(console, rotator)
	return &session{
		poller:   thermotap.NewPoller(cfg.PollerConfig(), ctrl, sink, reporter, opts...),
		rotator:  rotator,
		reporter: reporter,
	}
}

// run polls until ctx ends or the controller runs out of input, then
// closes the open log file
func (s *session) run(ctx context.Context) error {
	err := s.poller.Run(ctx)
	if s.rotator != nil {
		if cerr := s.rotator.Close(); cerr != nil {
			s.reporter.Warnf("closing log file failed: %v", cerr)
		}
	}
	return err
}

func (s *session) statistics() *thermotap.Statistics { return s.poller.Statistics() }
