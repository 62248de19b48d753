// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fatih/color"
)

// NoticeLevel classifies console narrative lines
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
	NoticeError
)

// String returns the level name
func (l NoticeLevel) String() string {
	switch l {
	case NoticeInfo:
		return "INFO"
	case NoticeWarning:
		return "WARN"
	case NoticeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l NoticeLevel) slogLevel() slog.Level {
	switch l {
	case NoticeWarning:
		return slog.LevelWarn
	case NoticeError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Console is the interactive output. WriteLine carries CSV records and
// Notice carries the error and recovery narrative.
type Console interface {
	WriteLine(text string)
	Notice(level NoticeLevel, text string)
}

// NoticePrefix keeps narrative lines distinguishable from CSV records
const NoticePrefix = "# "

var (
	infoColor  = color.New(color.FgCyan).SprintFunc()
	warnColor  = color.New(color.FgYellow).SprintFunc()
	errorColor = color.New(color.FgRed, color.Bold).SprintFunc()
)

// TextConsole writes records and notices to a stream, coloring notices
type TextConsole struct {
	mu      sync.Mutex
	w       *bufio.Writer
	colored bool
}

// NewTextConsole wraps w. Colors are applied only when colored is true.
func NewTextConsole(w io.Writer, colored bool) *TextConsole {
	return &TextConsole{w: bufio.NewWriter(w), colored: colored}
}

// WriteLine writes one record line. Errors are dropped; the console is
// best-effort.
func (c *TextConsole) WriteLine(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.WriteString(text)
	c.w.WriteByte('\n')
	c.w.Flush()
}

// Notice writes a prefixed narrative line
func (c *TextConsole) Notice(level NoticeLevel, text string) {
	line := NoticePrefix + text
	if c.colored {
		switch level {
		case NoticeWarning:
			line = warnColor(line)
		case NoticeError:
			line = errorColor(line)
		default:
			line = infoColor(line)
		}
	}
	c.WriteLine(line)
}

// Reporter sends narrative to the console and mirrors it to a structured
// logger. A nil Reporter discards everything.
type Reporter struct {
	console Console
	logger  *slog.Logger
}

// NewReporter creates a reporter. Either argument may be nil.
func NewReporter(console Console, logger *slog.Logger) *Reporter {
	return &Reporter{console: console, logger: logger}
}

func (r *Reporter) report(level NoticeLevel, format string, args ...any) {
	if r == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if r.console != nil {
		r.console.Notice(level, msg)
	}
	if r.logger != nil {
		r.logger.Log(context.Background(), level.slogLevel(), msg)
	}
}

// Infof reports an informational line
func (r *Reporter) Infof(format string, args ...any) { r.report(NoticeInfo, format, args...) }

// Warnf reports a degraded or unexpected condition
func (r *Reporter) Warnf(format string, args ...any) { r.report(NoticeWarning, format, args...) }

// Errorf reports a fault
func (r *Reporter) Errorf(format string, args ...any) { r.report(NoticeError, format, args...) }
