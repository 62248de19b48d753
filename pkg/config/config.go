// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads thermotap settings from a YAML file and the
// environment.
//
// Precedence, lowest first: Default, the YAML file, a .env file, THERMOTAP_*
// environment variables. Command-line flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

type Config struct {
	Capture   CaptureConfig   `yaml:"capture"`
	Storage   StorageConfig   `yaml:"storage"`
	Bus       BusConfig       `yaml:"bus"`
	Transport TransportConfig `yaml:"transport"`
}

// ---- CAPTURE ----

type CaptureConfig struct {
	Observation bool     `yaml:"observation"`
	TargetID    uint32   `yaml:"target_id"`
	IgnoreIDs   []uint32 `yaml:"ignore_ids"`
	Scale       float64  `yaml:"scale"`  // degrees C per raw unit
	Offset      float64  `yaml:"offset"` // degrees C
}

// ---- STORAGE ----

type StorageConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	Prefix      string `yaml:"prefix"`
	Extension   string `yaml:"extension"`
	MaxIndex    int    `yaml:"max_index"`
	RotateBytes uint64 `yaml:"rotate_bytes"`
	Header      bool   `yaml:"header"`
}

// ---- BUS ----

type BusConfig struct {
	Bitrate          uint32 `yaml:"bitrate"`
	ClockHz          uint32 `yaml:"clock_hz"`
	BringUpAttempts  uint   `yaml:"bringup_attempts"`
	RecoveryAttempts uint   `yaml:"recovery_attempts"`
	RetryDelayMs     int    `yaml:"retry_delay_ms"`
	PollIntervalMs   int    `yaml:"poll_interval_ms"`
}

// ---- TRANSPORT ----

// TransportConfig selects the controller. Iface wins over URL, URL wins
// over Port.
type TransportConfig struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
	Iface       string `yaml:"iface"`
	ManageIface bool   `yaml:"manage_iface"` // set bitrate and listen-only through netlink
}

// SupportedBitrates are the bus speeds every controller driver can set
var SupportedBitrates = []uint32{10000, 20000, 50000, 100000, 125000, 250000, 500000, 800000, 1000000}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Capture: CaptureConfig{
			TargetID: thermotap.DefaultTargetID,
			Scale:    1.0,
			Offset:   0.0,
		},
		Storage: StorageConfig{
			Enabled:     true,
			Dir:         ".",
			Prefix:      thermotap.DefaultLogPrefix,
			Extension:   thermotap.DefaultLogExtension,
			MaxIndex:    thermotap.DefaultMaxLogIndex,
			RotateBytes: thermotap.DefaultRotationThreshold,
			Header:      true,
		},
		Bus: BusConfig{
			Bitrate:          thermotap.DefaultBitrate,
			ClockHz:          thermotap.DefaultClockHz,
			BringUpAttempts:  thermotap.DefaultBringUpAttempts,
			RecoveryAttempts: thermotap.DefaultRecoveryAttempts,
			RetryDelayMs:     int(thermotap.DefaultRetryDelay / time.Millisecond),
			PollIntervalMs:   int(thermotap.DefaultPollInterval / time.Millisecond),
		},
		Transport: TransportConfig{
			Baud: 115200,
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are an error. An
// empty file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	if err := decode(f, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// PollerConfig returns the poll loop configuration
func (c *Config) PollerConfig() thermotap.Config {
	cfg := thermotap.DefaultConfig()
	cfg.ObservationMode = c.Capture.Observation
	cfg.TargetID = c.Capture.TargetID
	cfg.IgnoreList = append(thermotap.IgnoreList(nil), c.Capture.IgnoreIDs...)
	cfg.Calibration = thermotap.LinearCalibration{Scale: c.Capture.Scale, Offset: c.Capture.Offset}
	cfg.RotationThreshold = c.Storage.RotateBytes
	cfg.Bitrate = c.Bus.Bitrate
	cfg.ClockHz = c.Bus.ClockHz
	cfg.BringUpAttempts = c.Bus.BringUpAttempts
	cfg.RecoveryAttempts = c.Bus.RecoveryAttempts
	cfg.RetryDelay = time.Duration(c.Bus.RetryDelayMs) * time.Millisecond
	cfg.PollInterval = time.Duration(c.Bus.PollIntervalMs) * time.Millisecond
	return cfg
}

// Rotation returns the log file naming and size settings
func (c *Config) Rotation() thermotap.RotationConfig {
	return thermotap.RotationConfig{
		Prefix:    c.Storage.Prefix,
		Extension: c.Storage.Extension,
		MaxIndex:  c.Storage.MaxIndex,
		Threshold: c.Storage.RotateBytes,
		Header:    c.Storage.Header,
	}
}
