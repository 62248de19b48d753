// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/thermotap/pkg/candump"
	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

var replayCmd = &cobra.Command{
	Use:   "replay <candump.log>",
	Short: "Run a candump log through the capture pipeline",
	Long: `Read a log written by "candump -l" and process it exactly as a live capture
would: ignore list, target filter, temperature decoding, CSV records and log
file rotation.

Record times are taken from the log, relative to its first line. Error frames
in the log are fed to fault handling, so a logged bus-off shows up as a
recovery.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd.Flags())
	if err != nil {
		return err
	}
	// replay never waits for a bus
	cfg.Bus.RetryDelayMs = 0
	cfg.Bus.PollIntervalMs = 0
	logger := newLogger()

	rp, err := candump.Open(args[0])
	if err != nil {
		return err
	}
	defer rp.Close()

	colored := term.IsTerminal(int(os.Stdout.Fd()))
	console := thermotap.NewTextConsole(os.Stdout, colored)
	console.Notice(thermotap.NoticeInfo, "Thermotap - Replay")
	console.Notice(thermotap.NoticeInfo, "Log: "+args[0])

	s := newSession(cfg, wrapController(rp, logger), console, logger, thermotap.WithClock(rp.Clock))
	console.WriteLine(thermotap.CSVHeader)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := s.run(ctx)
	writeStatistics(console, s.statistics())
	return runErr
}
