// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Capture with a live terminal dashboard",
	Long: `Run the same capture pipeline as the capture command, with a terminal UI
showing the controller state, the latest temperature, the open log file,
statistics and the most recent records and events.

Records are still written to the log files exactly as in capture mode.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// teaConsole forwards console output to the TUI
type teaConsole struct {
	program *tea.Program
}

func (c *teaConsole) WriteLine(text string) {
	c.program.Send(recordMsg{line: text})
}

func (c *teaConsole) Notice(level thermotap.NoticeLevel, text string) {
	c.program.Send(noticeMsg{level: level, text: text})
}

func runMonitor(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	m := newMonitorModel(ctrlInfo, cfg.Capture.TargetID, cfg.PollerConfig().Filter().Mode())
	p := tea.NewProgram(m, tea.WithAltScreen())
	console := &teaConsole{program: p}

	// Send blocks until the program runs, so the pipeline is built in the
	// capture goroutine
	done := make(chan error, 1)
	go func() {
		s := newSession(cfg, ctrl, console, logger)
		p.Send(sessionMsg{stats: s.statistics(), recovery: s.poller.Recovery()})
		err := s.run(ctx)
		p.Send(captureDoneMsg{err: err})
		done <- err
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	cancel()
	return <-done
}
