// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

var statsInterval int

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Log target temperature frames to the console and log files",
	Long: `Bring the controller up in listen-only mode and log every frame of the
target identifier as a CSV record:

  time_ms,ID,DLC,data0..data7,Temp_F

Temp_F is present when the frame carries at least four data bytes. Records
are written to the console and appended to the current log file, which is
rolled over once it reaches the size threshold.

Controller error flags are checked whenever no frame is waiting. Errors are
reported on the console as lines starting with "# ", and bus-off triggers a
full reinitialization.

A statistics summary is printed every --stats-interval seconds (0 disables)
and when capture ends.`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().IntVar(&statsInterval, "stats-interval", 0, "Statistics summary interval (seconds)")
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd.Flags())
	if err != nil {
		return err
	}
	logger := newLogger()

	ctrl, ctrlInfo, err := openController(cfg, logger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	colored := term.IsTerminal(int(os.Stdout.Fd()))
	console := thermotap.NewTextConsole(os.Stdout, colored)

	console.Notice(thermotap.NoticeInfo, "Thermotap - Capture")
	console.Notice(thermotap.NoticeInfo, "Controller: "+ctrlInfo)
	console.Notice(thermotap.NoticeInfo, fmt.Sprintf("Target: 0x%08X | Mode: %s",
		cfg.Capture.TargetID, cfg.PollerConfig().Filter().Mode()))
	console.Notice(thermotap.NoticeInfo, "Press Ctrl+C to exit")

	s := newSession(cfg, ctrl, console, logger)
	console.WriteLine(thermotap.CSVHeader)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if statsInterval > 0 {
		go printStatistics(ctx, console, s.statistics(), time.Duration(statsInterval)*time.Second)
	}

	runErr := s.run(ctx)
	writeStatistics(console, s.statistics())
	return runErr
}

// printStatistics writes a summary every interval until ctx ends
func printStatistics(ctx context.Context, console thermotap.Console, stats *thermotap.Statistics, interval time.Duration) {
	statsTicker := time.NewTicker(interval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-statsTicker.C:
			writeStatistics(console, stats)
		}
	}
}

// writeStatistics prints the summary as notices so it never reads as a record
func writeStatistics(console thermotap.Console, stats *thermotap.Statistics) {
	for _, line := range strings.Split(strings.TrimRight(stats.String(), "\n"), "\n") {
		console.Notice(thermotap.NoticeInfo, line)
	}
}
