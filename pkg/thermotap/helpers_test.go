// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Fake controller
// ============================================================

type filterEntry struct {
	mask uint32
	id   uint32
}

type fakeController struct {
	frames []Frame
	flags  []ErrorFlags
	eof    bool

	slots        int
	initFailures int // Initialize fails this many times before succeeding
	initErr      error
	listenErr    error
	pollErr      error

	filters     map[int]filterEntry
	calls       []string
	initCount   int
	pollCount   int
	flagReads   int
	listenCount int
}

func newFakeController(frames ...Frame) *fakeController {
	return &fakeController{
		frames:  frames,
		slots:   2,
		filters: make(map[int]filterEntry),
	}
}

func (c *fakeController) Initialize(bitrate, clockHz uint32) error {
	c.initCount++
	c.calls = append(c.calls, fmt.Sprintf("init %d %d", bitrate, clockHz))
	if c.initErr != nil {
		return c.initErr
	}
	if c.initFailures > 0 {
		c.initFailures--
		return errors.New("init failed")
	}
	c.filters = make(map[int]filterEntry)
	return nil
}

func (c *fakeController) SetListenOnly() error {
	c.listenCount++
	c.calls = append(c.calls, "listen-only")
	return c.listenErr
}

func (c *fakeController) FilterSlots() int { return c.slots }

func (c *fakeController) ProgramFilter(slot int, mask, id uint32) error {
	c.calls = append(c.calls, fmt.Sprintf("filter %d %08X %08X", slot, mask, id))
	c.filters[slot] = filterEntry{mask: mask, id: id}
	return nil
}

func (c *fakeController) Poll() (Frame, bool, error) {
	c.pollCount++
	if c.pollErr != nil {
		err := c.pollErr
		c.pollErr = nil
		return Frame{}, false, err
	}
	if len(c.frames) > 0 {
		f := c.frames[0]
		c.frames = c.frames[1:]
		return f, true, nil
	}
	if c.eof {
		return Frame{}, false, io.EOF
	}
	return Frame{}, false, nil
}

func (c *fakeController) ErrorFlags() (ErrorFlags, error) {
	c.flagReads++
	if len(c.flags) == 0 {
		return 0, nil
	}
	f := c.flags[0]
	c.flags = c.flags[1:]
	return f, nil
}

func (c *fakeController) Close() error { return nil }

// ============================================================
// In-memory storage
// ============================================================

type memFile struct {
	name     string
	buf      bytes.Buffer
	closed   bool
	syncs    int
	writeErr error
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, errors.New("write on closed file")
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.buf.Write(p)
}

func (f *memFile) Sync() error          { f.syncs++; return nil }
func (f *memFile) Size() (int64, error) { return int64(f.buf.Len()), nil }
func (f *memFile) Close() error         { f.closed = true; return nil }

type memStorage struct {
	files   map[string]*memFile
	order   []string
	openErr error
}

func newMemStorage(existing ...string) *memStorage {
	s := &memStorage{files: make(map[string]*memFile)}
	for _, name := range existing {
		s.files[name] = &memFile{name: name, closed: true}
	}
	return s
}

func (s *memStorage) Exists(name string) (bool, error) {
	_, ok := s.files[name]
	return ok, nil
}

func (s *memStorage) OpenAppend(name string) (LogFile, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	f, ok := s.files[name]
	if !ok {
		f = &memFile{name: name}
		s.files[name] = f
	}
	f.closed = false
	s.order = append(s.order, name)
	return f, nil
}

func (s *memStorage) lines(name string) []string {
	f, ok := s.files[name]
	if !ok || f.buf.Len() == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(f.buf.String(), "\n"), "\n")
}

// ============================================================
// Recording console and slog handler
// ============================================================

type notice struct {
	level NoticeLevel
	text  string
}

type recordingConsole struct {
	lines   []string
	notices []notice
}

func (c *recordingConsole) WriteLine(text string) { c.lines = append(c.lines, text) }

func (c *recordingConsole) Notice(level NoticeLevel, text string) {
	c.notices = append(c.notices, notice{level: level, text: text})
}

func (c *recordingConsole) hasNotice(level NoticeLevel, substr string) bool {
	for _, n := range c.notices {
		if n.level == level && strings.Contains(n.text, substr) {
			return true
		}
	}
	return false
}

func (c *recordingConsole) countNotices(substr string) int {
	count := 0
	for _, n := range c.notices {
		if strings.Contains(n.text, substr) {
			count++
		}
	}
	return count
}

type recordSink struct {
	records []slog.Record
}

func (s *recordSink) Enabled(context.Context, slog.Level) bool { return true }
func (s *recordSink) Handle(_ context.Context, r slog.Record) error {
	// slog reuses the record during processing
	attrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool { attrs = append(attrs, a); return true })
	nr := slog.Record{Time: r.Time, Level: r.Level, PC: r.PC, Message: r.Message}
	nr.AddAttrs(attrs...)
	s.records = append(s.records, nr)
	return nil
}
func (s *recordSink) WithAttrs(attrs []slog.Attr) slog.Handler { return s }
func (s *recordSink) WithGroup(name string) slog.Handler       { return s }

func hasSlogMsg(records []slog.Record, level slog.Level, msg string) bool {
	for _, r := range records {
		if r.Level == level && r.Message == msg {
			return true
		}
	}
	return false
}

// ============================================================
// Randomized test helpers
// ============================================================

// getFuzzRounds returns the number of rounds from FUZZ_ROUNDS, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng seeds from FUZZ_SEED or the clock and logs the seed
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomFrame(rng *rand.Rand, id uint32) Frame {
	data := make([]byte, rng.Intn(MaxDataLen+1))
	rng.Read(data)
	return MustFrame(id, data)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	cfg.PollInterval = 0
	return cfg
}
