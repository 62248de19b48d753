// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	level     thermotap.NoticeLevel
}

// TUI model
type monitorModel struct {
	ctrlInfo string
	targetID uint32
	mode     string

	stats    *thermotap.Statistics
	recovery *thermotap.Recovery

	records       []string
	maxRecords    int
	events        []eventLogEntry
	maxLogEntries int
	recordView    viewport.Model

	started  time.Time
	width    int
	height   int
	quitting bool
	finished bool
	runErr   error
}

// Messages
type tickMsg time.Time
type recordMsg struct {
	line string
}
type noticeMsg struct {
	level thermotap.NoticeLevel
	text  string
}
type sessionMsg struct {
	stats    *thermotap.Statistics
	recovery *thermotap.Recovery
}
type captureDoneMsg struct {
	err error
}

// formatElapsed formats a duration as "1 hour, 2 minutes, and 3 seconds"
func formatElapsed(d time.Duration) string {
	seconds := uint64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func newMonitorModel(ctrlInfo string, targetID uint32, mode string) monitorModel {
	return monitorModel{
		ctrlInfo:      ctrlInfo,
		targetID:      targetID,
		mode:          mode,
		records:       make([]string, 0),
		maxRecords:    500,
		events:        make([]eventLogEntry, 0),
		maxLogEntries: 100,
		recordView:    viewport.New(80, 8),
		started:       time.Now(),
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recordView.Width = msg.Width - 4
		m.recordView.Height = m.recordHeight()
		m.recordView.SetContent(strings.Join(m.records, "\n"))

	case tickMsg:
		return m, tickCmd()

	case sessionMsg:
		m.stats = msg.stats
		m.recovery = msg.recovery

	case recordMsg:
		m.addRecord(msg.line)

	case noticeMsg:
		m.addLogEntry(msg.text, msg.level)

	case captureDoneMsg:
		m.finished = true
		m.runErr = msg.err
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("capture stopped: %v", msg.err), thermotap.NoticeError)
		} else {
			m.addLogEntry("capture finished, press 'q' to quit", thermotap.NoticeInfo)
		}
	}

	var cmd tea.Cmd
	m.recordView, cmd = m.recordView.Update(msg)
	return m, cmd
}

// recordHeight splits the window between records and events
func (m monitorModel) recordHeight() int {
	h := (m.height - 16) / 2
	if h < 3 {
		h = 3
	}
	return h
}

func (m *monitorModel) addRecord(line string) {
	m.records = append(m.records, line)
	if len(m.records) > m.maxRecords {
		m.records = m.records[len(m.records)-m.maxRecords:]
	}
	atBottom := m.recordView.AtBottom()
	m.recordView.SetContent(strings.Join(m.records, "\n"))
	if atBottom {
		m.recordView.GotoBottom()
	}
}

func (m *monitorModel) addLogEntry(message string, level thermotap.NoticeLevel) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		level:     level,
	}
	m.events = append(m.events, entry)

	// Keep only last N entries
	if len(m.events) > m.maxLogEntries {
		m.events = m.events[len(m.events)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("THERMOTAP - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Target: 0x%08X | Mode: %s | Press 'q' to quit",
		m.ctrlInfo, m.targetID, m.mode)))
	s.WriteString("\n\n")

	// Controller state
	state := "STARTING"
	stateStyle := warningStyle
	if m.recovery != nil {
		state = m.recovery.State().String()
		switch m.recovery.State() {
		case thermotap.StateNormal:
			stateStyle = valueStyle
		case thermotap.StateFaulted:
			stateStyle = errorStyle
		}
	}
	if m.finished {
		state = "STOPPED"
		stateStyle = warningStyle
	}

	var snap thermotap.Statistics
	if m.stats != nil {
		snap = m.stats.Snapshot()
	}

	temp := headerStyle.Render("--")
	if snap.HasLastTemp {
		temp = valueStyle.Render(fmt.Sprintf("%.1f F", snap.LastTempF))
	}
	logFile := headerStyle.Render("console only")
	switch {
	case snap.LogFile != "":
		logFile = valueStyle.Render(fmt.Sprintf("%s (%d rotations)", snap.LogFile, snap.Rotations))
	case snap.StorageDisabled:
		logFile = warningStyle.Render("storage disabled, console only")
	}

	status := strings.Builder{}
	status.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("State:"), stateStyle.Render(state),
		labelStyle.Render("Temp:"), temp,
		labelStyle.Render("Log:"), logFile,
	))
	status.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", snap.TotalFrames)),
		labelStyle.Render("Records:"), valueStyle.Render(fmt.Sprintf("%d", snap.Records)),
		labelStyle.Render("Ignored:"), valueStyle.Render(fmt.Sprintf("%d", snap.IgnoredFrames+snap.OffTargetFrames)),
	))

	faults := valueStyle.Render("0")
	if snap.FaultsReported > 0 {
		faults = errorStyle.Render(fmt.Sprintf("%d (last %s)", snap.FaultsReported, snap.LastFlags))
	}
	status.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		labelStyle.Render("Faults:"), faults,
		labelStyle.Render("Bus-off/recovered:"), valueStyle.Render(fmt.Sprintf("%d/%d", snap.BusOffs, snap.Recoveries)),
	))
	status.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Frame Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", snap.FrameRate)),
		labelStyle.Render("Running:"), valueStyle.Render(formatElapsed(time.Since(m.started))),
	))

	s.WriteString(boxStyle.Render(status.String()))
	s.WriteString("\n\n")

	// Records
	s.WriteString(labelStyle.Render("Records:"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(thermotap.CSVHeader))
	s.WriteString("\n")
	if len(m.records) == 0 {
		s.WriteString(boxStyle.Width(m.width - 4).Render(headerStyle.Render("  (no records yet)")))
	} else {
		s.WriteString(boxStyle.Width(m.width - 4).Render(m.recordView.View()))
	}
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - m.recordHeight() - 16
	if logHeight < 3 {
		logHeight = 3
	}

	logContent := strings.Builder{}
	startIdx := len(m.events) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.events) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.events); i++ {
			entry := m.events[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			switch entry.level {
			case thermotap.NoticeError:
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
			case thermotap.NoticeWarning:
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp), warningStyle.Render("! "+entry.message)))
			default:
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp), valueStyle.Render("ℹ "+entry.message)))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
