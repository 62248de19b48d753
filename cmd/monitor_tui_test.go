// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{61 * time.Second, "1 minute and 1 second"},
		{2 * time.Hour, "2 hours"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1 day, 2 hours, 3 minutes, and 4 seconds"},
		{1500 * time.Millisecond, "1 second"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatElapsed(tt.d); got != tt.want {
				t.Errorf("formatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func update(t *testing.T, m monitorModel, msg tea.Msg) monitorModel {
	t.Helper()
	next, _ := m.Update(msg)
	mm, ok := next.(monitorModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return mm
}

func TestMonitorModel_RecordsAndEvents(t *testing.T) {
	m := newMonitorModel("SLCAN Serial: /dev/ttyACM0 @ 115200 baud", 0x5D7C, "production")
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = update(t, m, recordMsg{line: "1234,00005D7C,5,01,02,03,46,05,158.0"})
	m = update(t, m, noticeMsg{level: thermotap.NoticeWarning, text: "controller error flags 0x08 [RXEP]"})

	if len(m.records) != 1 || len(m.events) != 1 {
		t.Fatalf("records %d, events %d", len(m.records), len(m.events))
	}

	view := m.View()
	for _, want := range []string{
		"THERMOTAP - MONITOR",
		"Target: 0x00005D7C",
		"1234,00005D7C,5,01,02,03,46,05,158.0",
		"controller error flags 0x08 [RXEP]",
		"STARTING",
		"console only",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestMonitorModel_StorageState(t *testing.T) {
	tests := []struct {
		name  string
		stats func(*thermotap.Statistics)
		want  string
	}{
		{"rotating", func(s *thermotap.Statistics) { s.LogFile = "LOG003.CSV"; s.Rotations = 3 }, "LOG003.CSV (3 rotations)"},
		{"disabled", func(s *thermotap.Statistics) { s.StorageDisabled = true }, "storage disabled, console only"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := thermotap.NewStatistics()
			tt.stats(stats)
			m := newMonitorModel("test", 0x5D7C, "production")
			m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
			m = update(t, m, sessionMsg{stats: stats})
			if view := m.View(); !strings.Contains(view, tt.want) {
				t.Errorf("View() missing %q", tt.want)
			}
		})
	}
}

func TestMonitorModel_RingLimits(t *testing.T) {
	m := newMonitorModel("test", 0x5D7C, "production")
	for i := 0; i < m.maxRecords+10; i++ {
		m = update(t, m, recordMsg{line: fmt.Sprintf("%d", i)})
	}
	for i := 0; i < m.maxLogEntries+5; i++ {
		m = update(t, m, noticeMsg{text: fmt.Sprintf("event %d", i)})
	}
	if len(m.records) != m.maxRecords {
		t.Errorf("records = %d, want %d", len(m.records), m.maxRecords)
	}
	if m.records[0] != "10" {
		t.Errorf("oldest record = %q, want 10", m.records[0])
	}
	if len(m.events) != m.maxLogEntries {
		t.Errorf("events = %d, want %d", len(m.events), m.maxLogEntries)
	}
}

func TestMonitorModel_CaptureDone(t *testing.T) {
	m := newMonitorModel("test", 0x5D7C, "production")
	m = update(t, m, sessionMsg{stats: thermotap.NewStatistics()})
	m = update(t, m, captureDoneMsg{err: errors.New("boom")})

	if !m.finished || m.runErr == nil {
		t.Fatalf("finished %v, err %v", m.finished, m.runErr)
	}
	view := m.View()
	if !strings.Contains(view, "STOPPED") || !strings.Contains(view, "capture stopped: boom") {
		t.Errorf("View() does not show the stopped capture:\n%s", view)
	}
}

func TestMonitorModel_Quit(t *testing.T) {
	m := newMonitorModel("test", 0x5D7C, "production")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("quit key returned no command")
	}
	if !next.(monitorModel).quitting {
		t.Error("model not quitting")
	}
	if got := next.View(); got != "Shutting down...\n" {
		t.Errorf("View() = %q", got)
	}
}
