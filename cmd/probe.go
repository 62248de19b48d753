// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

var (
	probeTimeout int
	probeCount   int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the bus connection by waiting for frames",
	Long: `Bring the controller up in listen-only mode with every identifier accepted
and wait for frames until timeout. Each frame is printed with its identifier,
and whether it is the target.

Nothing is logged to files. Useful for checking wiring, bit rate and the
target identifier before a capture.

Exit codes:
  0 - --count frames received before timeout
  1 - Timeout reached without receiving --count frames
  2 - Connection or bring-up error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for frames")
	probeCmd.Flags().IntVar(&probeCount, "count", 5, "Number of frames to wait for")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd.Flags())
	if err != nil {
		return err
	}
	logger := newLogger()

	ctrl, ctrlInfo, err := openController(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer ctrl.Close()

	fmt.Printf("Thermotap - Bus Probe\n")
	fmt.Printf("Controller: %s\n", ctrlInfo)
	fmt.Printf("Bit rate: %d\n", cfg.Bus.Bitrate)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for %d frames...\n\n", probeCount)

	pcfg := cfg.PollerConfig()
	reporter := thermotap.NewReporter(thermotap.NewTextConsole(os.Stderr, false), logger)
	recovery := thermotap.NewRecovery(ctrl, thermotap.RecoveryConfig{
		Bitrate:          pcfg.Bitrate,
		ClockHz:          pcfg.ClockHz,
		Filter:           thermotap.AdmissionFilter{ObservationMode: true},
		BringUpAttempts:  pcfg.BringUpAttempts,
		RecoveryAttempts: pcfg.RecoveryAttempts,
		RetryDelay:       pcfg.RetryDelay,
	}, reporter, nil)

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(probeTimeout)*time.Second)
	defer cancel()

	if err := recovery.BringUp(ctx); err != nil {
		os.Exit(2)
	}

	received, err := probeFrames(ctx, ctrl, pcfg.TargetID, probeCount)
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	case received < probeCount:
		fmt.Fprintf(os.Stderr, "TIMEOUT: %d of %d frames received within %d seconds\n",
			received, probeCount, probeTimeout)
		os.Exit(1)
	}

	fmt.Printf("\nSUCCESS: Received %d frames\n", received)
	return nil
}

// probeFrames prints frames until count arrived or ctx ends. Error flags
// are printed as they appear.
func probeFrames(ctx context.Context, ctrl thermotap.Controller, target uint32, count int) (int, error) {
	received := 0
	for received < count {
		if ctx.Err() != nil {
			return received, nil
		}

		f, ok, err := ctrl.Poll()
		if errors.Is(err, io.EOF) {
			return received, nil
		}
		if err != nil {
			return received, err
		}
		if !ok {
			if flags, err := ctrl.ErrorFlags(); err == nil && flags.HasError() {
				fmt.Printf("Error flags: %s\n", flags)
			}
			time.Sleep(time.Millisecond)
			continue
		}

		received++
		mark := ""
		if f.ID() == target {
			mark = "  <- target"
		}
		fmt.Printf("Frame %d: %s%s\n", received, f, mark)
	}
	return received, nil
}
