// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"math"
	"slices"

	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

// MaxCalibration bounds the calibration scale and offset magnitude
const MaxCalibration = 1000.0

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	// ------------------------------------------------------------
	// CAPTURE
	// ------------------------------------------------------------

	if cfg.Capture.TargetID > thermotap.MaxExtendedID {
		return fmt.Errorf("capture: target_id 0x%X exceeds 29 bits", cfg.Capture.TargetID)
	}
	for _, id := range cfg.Capture.IgnoreIDs {
		if id > thermotap.MaxExtendedID {
			return fmt.Errorf("capture: ignore_ids entry 0x%X exceeds 29 bits", id)
		}
	}
	if err := checkCalibration("scale", cfg.Capture.Scale); err != nil {
		return err
	}
	if cfg.Capture.Scale == 0 {
		return fmt.Errorf("capture: scale must not be zero")
	}
	if err := checkCalibration("offset", cfg.Capture.Offset); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// STORAGE
	// ------------------------------------------------------------

	if cfg.Storage.RotateBytes == 0 {
		return fmt.Errorf("storage: rotate_bytes must be greater than zero")
	}
	if cfg.Storage.MaxIndex < 0 || cfg.Storage.MaxIndex > thermotap.DefaultMaxLogIndex {
		return fmt.Errorf("storage: max_index %d out of range (0-%d)", cfg.Storage.MaxIndex, thermotap.DefaultMaxLogIndex)
	}
	if cfg.Storage.Prefix == "" {
		return fmt.Errorf("storage: prefix must not be empty")
	}

	// ------------------------------------------------------------
	// BUS
	// ------------------------------------------------------------

	if !slices.Contains(SupportedBitrates, cfg.Bus.Bitrate) {
		return fmt.Errorf("bus: unsupported bitrate %d", cfg.Bus.Bitrate)
	}
	if cfg.Bus.BringUpAttempts == 0 || cfg.Bus.RecoveryAttempts == 0 {
		return fmt.Errorf("bus: bringup_attempts and recovery_attempts must be at least 1")
	}
	if cfg.Bus.RetryDelayMs < 0 || cfg.Bus.PollIntervalMs < 0 {
		return fmt.Errorf("bus: retry_delay_ms and poll_interval_ms must not be negative")
	}

	// ------------------------------------------------------------
	// TRANSPORT
	// ------------------------------------------------------------

	if cfg.Transport.Port != "" && cfg.Transport.Baud <= 0 {
		return fmt.Errorf("transport: baud must be positive")
	}
	return nil
}

func checkCalibration(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("capture: %s must be finite", name)
	}
	if math.Abs(v) > MaxCalibration {
		return fmt.Errorf("capture: %s %g exceeds %g", name, v, MaxCalibration)
	}
	return nil
}
