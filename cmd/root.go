// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Thermoquad/thermotap/pkg/config"
)

var (
	configPath string
	envFile    string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// SocketCAN flags
	canIface    string
	manageIface bool

	// Capture flags
	targetID    string
	ignoreIDs   string
	observation bool
	logDir      string
	noStorage   bool
	scale       float64
	offset      float64
	bitrate     uint32

	debug   bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "thermotap",
	Short: "Passive CAN bus temperature logger",
	Long: `Thermotap - listens to a CAN bus without ever transmitting, picks out the
frames of one temperature sensor and logs them as CSV records.

Records go to the console and to rotating log files (LOG000.CSV, LOG001.CSV,
...). Controller error flags are watched while the bus is idle and the
controller is reinitialized after bus-off.

Controller selection:
  SocketCAN: --iface can0 [--manage-iface]
  SLCAN:     --port /dev/ttyACM0 [--baud 115200]
  SLCAN/WS:  --url ws://host/path [--username user]

Settings are read from defaults, then the --config YAML file, then the .env
file and THERMOTAP_* variables, then flags.

For WebSocket authentication, the password is read from the THERMOTAP_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML configuration file")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file with THERMOTAP_* settings")

	// Serial connection flags
	pf.StringVarP(&portName, "port", "p", "", "Serial port of an SLCAN adapter")
	pf.IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	pf.StringVarP(&wsURL, "url", "u", "", "WebSocket URL of an SLCAN bridge (ws:// or wss://)")
	pf.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	pf.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// SocketCAN flags
	pf.StringVar(&canIface, "iface", "", "SocketCAN interface (Linux)")
	pf.BoolVar(&manageIface, "manage-iface", false, "Set bitrate and listen-only mode on the interface (needs CAP_NET_ADMIN)")

	// Capture flags
	pf.StringVar(&targetID, "target", "", "Target identifier in hex (default 0x5D7C)")
	pf.StringVar(&ignoreIDs, "ignore", "", "Comma-separated identifiers to ignore, in hex")
	pf.BoolVar(&observation, "observation", false, "Accept every identifier and echo raw IDs")
	pf.StringVar(&logDir, "log-dir", "", "Directory for log files")
	pf.BoolVar(&noStorage, "no-storage", false, "Log to the console only")
	pf.Float64Var(&scale, "scale", 1.0, "Calibration scale, degrees C per raw unit")
	pf.Float64Var(&offset, "offset", 0.0, "Calibration offset, degrees C")
	pf.Uint32Var(&bitrate, "bitrate", 0, "Bus bit rate")

	pf.BoolVar(&debug, "debug", false, "Mirror console notices to a structured log on stderr")
	pf.BoolVar(&verbose, "verbose", false, "Log every controller call (implies --debug)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// resolveConfig layers defaults, the config file, the environment and the
// flags that were set explicitly, then validates the result
func resolveConfig(flags *pflag.FlagSet) (*config.Config, error) {
	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		def := config.Default()
		cfg = &def
	}

	lookup, err := config.EnvLookup(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if err := applyFlags(flags, cfg); err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	if flags.Changed("port") {
		cfg.Transport.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Transport.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Transport.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Transport.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Transport.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("iface") {
		cfg.Transport.Iface = canIface
	}
	if flags.Changed("manage-iface") {
		cfg.Transport.ManageIface = manageIface
	}
	if flags.Changed("target") {
		id, err := config.ParseID(targetID)
		if err != nil {
			return fmt.Errorf("--target: %w", err)
		}
		cfg.Capture.TargetID = id
	}
	if flags.Changed("ignore") {
		ids, err := config.ParseIDList(ignoreIDs)
		if err != nil {
			return fmt.Errorf("--ignore: %w", err)
		}
		cfg.Capture.IgnoreIDs = ids
	}
	if flags.Changed("observation") {
		cfg.Capture.Observation = observation
	}
	if flags.Changed("log-dir") {
		cfg.Storage.Dir = logDir
	}
	if flags.Changed("no-storage") {
		cfg.Storage.Enabled = !noStorage
	}
	if flags.Changed("scale") {
		cfg.Capture.Scale = scale
	}
	if flags.Changed("offset") {
		cfg.Capture.Offset = offset
	}
	if flags.Changed("bitrate") {
		cfg.Bus.Bitrate = bitrate
	}
	return nil
}

// newLogger returns the structured diagnostics logger, or nil when neither
// --debug nor --verbose is set
func newLogger() *slog.Logger {
	if !debug && !verbose {
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
