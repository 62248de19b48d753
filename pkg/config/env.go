// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv
const EnvPrefix = "THERMOTAP_"

// LookupFunc resolves one environment variable
type LookupFunc func(key string) (string, bool)

// EnvLookup returns a lookup that prefers the process environment and falls
// back to the given .env file. A missing file is not an error.
func EnvLookup(envFile string) (LookupFunc, error) {
	file := map[string]string{}
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			file = vars
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}, nil
}

// ApplyEnv overlays THERMOTAP_* variables onto cfg
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get("TARGET"); ok {
		id, err := ParseID(v)
		if err != nil {
			return fmt.Errorf("%sTARGET: %w", EnvPrefix, err)
		}
		c.Capture.TargetID = id
	}
	if v, ok := get("IGNORE"); ok {
		ids, err := ParseIDList(v)
		if err != nil {
			return fmt.Errorf("%sIGNORE: %w", EnvPrefix, err)
		}
		c.Capture.IgnoreIDs = ids
	}
	if err := envBool(get, "OBSERVATION", &c.Capture.Observation); err != nil {
		return err
	}
	if err := envFloat(get, "SCALE", &c.Capture.Scale); err != nil {
		return err
	}
	if err := envFloat(get, "OFFSET", &c.Capture.Offset); err != nil {
		return err
	}

	if v, ok := get("LOG_DIR"); ok {
		c.Storage.Dir = v
	}
	var noStorage bool
	if err := envBool(get, "NO_STORAGE", &noStorage); err != nil {
		return err
	}
	if noStorage {
		c.Storage.Enabled = false
	}
	if v, ok := get("ROTATE_BYTES"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sROTATE_BYTES: %w", EnvPrefix, err)
		}
		c.Storage.RotateBytes = n
	}
	if v, ok := get("BITRATE"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%sBITRATE: %w", EnvPrefix, err)
		}
		c.Bus.Bitrate = uint32(n)
	}

	if v, ok := get("PORT"); ok {
		c.Transport.Port = v
	}
	if v, ok := get("BAUD"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sBAUD: %w", EnvPrefix, err)
		}
		c.Transport.Baud = n
	}
	if v, ok := get("URL"); ok {
		c.Transport.URL = v
	}
	if v, ok := get("USERNAME"); ok {
		c.Transport.Username = v
	}
	if v, ok := get("IFACE"); ok {
		c.Transport.Iface = v
	}
	if err := envBool(get, "MANAGE_IFACE", &c.Transport.ManageIface); err != nil {
		return err
	}
	return nil
}

func envBool(get func(string) (string, bool), name string, dst *bool) error {
	v, ok := get(name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = b
	return nil
}

func envFloat(get func(string) (string, bool), name string, dst *float64) error {
	v, ok := get(name)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = f
	return nil
}

// ParseID parses a CAN identifier written in hex, with or without 0x
func ParseID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, errors.New("empty identifier")
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier %q: %w", s, err)
	}
	return uint32(v), nil
}

// ParseIDList parses a comma-separated list of hex identifiers
func ParseIDList(s string) ([]uint32, error) {
	var ids []uint32
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := ParseID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
