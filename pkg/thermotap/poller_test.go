// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"
)

type pollerHarness struct {
	ctrl    *fakeController
	console *recordingConsole
	storage *memStorage
	rotator *Rotator
	poller  *Poller
}

func newPollerHarness(cfg Config, frames ...Frame) *pollerHarness {
	h := &pollerHarness{
		ctrl:    newFakeController(frames...),
		console: &recordingConsole{},
		storage: newMemStorage(),
	}
	reporter := NewReporter(h.console, nil)
	h.rotator = NewRotator(h.storage, rotationConfig(cfg.RotationThreshold), reporter)
	h.rotator.Start()
	sink := NewDualSink(h.console, h.rotator)
	h.poller = NewPoller(cfg, h.ctrl, sink, reporter, WithClock(func() uint64 { return 1234 }))
	return h
}

// drain steps until the fake controller has no frames left
func (h *pollerHarness) drain(t *testing.T) {
	t.Helper()
	for len(h.ctrl.frames) > 0 {
		if _, err := h.poller.Step(context.Background()); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
	}
}

func TestPoller_TargetFrameEndToEnd(t *testing.T) {
	h := newPollerHarness(testConfig(), MustFrame(0x5D7C, []byte{0x01, 0x02, 0x03, 0x46, 0x05}))
	h.drain(t)

	want := []string{"1234,00005D7C,5,01,02,03,46,05,158.0"}
	if !reflect.DeepEqual(h.console.lines, want) {
		t.Errorf("console lines = %q, want %q", h.console.lines, want)
	}
	if got := h.storage.lines("LOG000.CSV"); !reflect.DeepEqual(got, want) {
		t.Errorf("storage lines = %q, want %q", got, want)
	}
}

func TestPoller_IgnoredFrame(t *testing.T) {
	cfg := testConfig()
	cfg.IgnoreList = IgnoreList{0x100}
	h := newPollerHarness(cfg, MustFrame(0x100, []byte{1, 2, 3, 4}))
	h.drain(t)

	if len(h.console.lines) != 0 || len(h.storage.lines("LOG000.CSV")) != 0 {
		t.Errorf("ignored frame produced output: %q", h.console.lines)
	}
	if h.poller.Statistics().Snapshot().IgnoredFrames != 1 {
		t.Error("ignored frame not counted")
	}
}

func TestPoller_OffTargetFrame(t *testing.T) {
	h := newPollerHarness(testConfig(), MustFrame(0x123, []byte{1, 2, 3, 4}))
	h.drain(t)

	if len(h.console.lines) != 0 || len(h.storage.lines("LOG000.CSV")) != 0 {
		t.Errorf("off-target frame produced output: %q", h.console.lines)
	}
	if h.poller.Statistics().Snapshot().OffTargetFrames != 1 {
		t.Error("off-target frame not counted")
	}
}

func TestPoller_IgnoreListWinsOverTarget(t *testing.T) {
	cfg := testConfig()
	cfg.IgnoreList = IgnoreList{DefaultTargetID}
	h := newPollerHarness(cfg, MustFrame(DefaultTargetID, []byte{1, 2, 3, 4}))
	h.drain(t)

	if len(h.console.lines) != 0 {
		t.Errorf("ignored target produced output: %q", h.console.lines)
	}
}

func TestPoller_ShortTargetFrame(t *testing.T) {
	h := newPollerHarness(testConfig(), MustFrame(0x5D7C, []byte{0x01, 0x02, 0x03}))
	h.drain(t)

	want := []string{"1234,00005D7C,3,01,02,03"}
	if !reflect.DeepEqual(h.console.lines, want) {
		t.Errorf("console lines = %q, want %q", h.console.lines, want)
	}
	snap := h.poller.Statistics().Snapshot()
	if snap.Records != 1 || snap.TempRecords != 0 || snap.HasLastTemp {
		t.Errorf("stats = records %d, temp %d, has temp %v", snap.Records, snap.TempRecords, snap.HasLastTemp)
	}
}

func TestPoller_ObservationMode(t *testing.T) {
	cfg := testConfig()
	cfg.ObservationMode = true
	h := newPollerHarness(cfg,
		MustFrame(0x123, []byte{1}),
		MustFrame(0x5D7C, []byte{0, 0, 0, 0x46}),
	)
	if err := h.poller.Recovery().BringUp(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.filters[0] != (filterEntry{}) {
		t.Errorf("observation filter = %+v, want accept-all", h.ctrl.filters[0])
	}
	h.drain(t)

	if !h.console.hasNotice(NoticeInfo, "RX raw ID 0x80000123") {
		t.Errorf("off-target frame not echoed: %+v", h.console.notices)
	}
	if !h.console.hasNotice(NoticeInfo, "RX raw ID 0x80005D7C") {
		t.Errorf("target frame not echoed: %+v", h.console.notices)
	}
	// observation mode still records only the target
	want := []string{"1234,00005D7C,4,00,00,00,46,158.0"}
	if !reflect.DeepEqual(h.console.lines, want) {
		t.Errorf("console lines = %q, want %q", h.console.lines, want)
	}
}

func TestPoller_InvalidFrameDropped(t *testing.T) {
	bad := Frame{RawID: 0x5D7C | FlagExtended, Len: 12}
	h := newPollerHarness(testConfig(), bad, MustFrame(0x5D7C, []byte{1}))
	h.drain(t)

	if len(h.console.lines) != 1 {
		t.Errorf("console lines = %q, want only the valid frame", h.console.lines)
	}
	if h.poller.Statistics().Snapshot().InvalidFrames != 1 {
		t.Error("invalid frame not counted")
	}
}

func TestPoller_BusOffOnIdlePoll(t *testing.T) {
	h := newPollerHarness(testConfig())
	h.poller.Recovery().BringUp(context.Background())
	h.ctrl.flags = []ErrorFlags{FlagTXBO}

	got, err := h.poller.Step(context.Background())
	if got || err != nil {
		t.Fatalf("Step() = %v, %v", got, err)
	}
	if h.ctrl.initCount != 2 {
		t.Errorf("initCount = %d, want bring-up plus one recovery", h.ctrl.initCount)
	}
	if h.poller.Recovery().State() != StateNormal {
		t.Errorf("State() = %s, want NORMAL", h.poller.Recovery().State())
	}
}

func TestPoller_FlagsNotReadWhileFramesArrive(t *testing.T) {
	h := newPollerHarness(testConfig(), MustFrame(0x5D7C, []byte{1}), MustFrame(0x5D7C, []byte{2}))
	h.drain(t)
	if h.ctrl.flagReads != 0 {
		t.Errorf("flagReads = %d, want 0", h.ctrl.flagReads)
	}
	h.poller.Step(context.Background())
	if h.ctrl.flagReads != 1 {
		t.Errorf("flagReads = %d after idle poll, want 1", h.ctrl.flagReads)
	}
}

func TestPoller_PollErrorIsNotFatal(t *testing.T) {
	h := newPollerHarness(testConfig(), MustFrame(0x5D7C, []byte{1}))
	h.ctrl.pollErr = errors.New("garbled")

	got, err := h.poller.Step(context.Background())
	if got || err != nil {
		t.Fatalf("Step() = %v, %v", got, err)
	}
	if !h.console.hasNotice(NoticeWarning, "garbled") {
		t.Errorf("poll error not reported: %+v", h.console.notices)
	}
	h.drain(t)
	if len(h.console.lines) != 1 {
		t.Errorf("frame after poll error lost: %q", h.console.lines)
	}
	if h.poller.Statistics().Snapshot().DriverErrors != 1 {
		t.Error("driver error not counted")
	}
}

func TestPoller_StorageFailureKeepsConsole(t *testing.T) {
	h := newPollerHarness(testConfig(),
		MustFrame(0x5D7C, []byte{1}),
		MustFrame(0x5D7C, []byte{2}),
		MustFrame(0x5D7C, []byte{3}),
	)
	h.storage.files["LOG000.CSV"].writeErr = errors.New("card removed")
	h.drain(t)

	if len(h.console.lines) != 3 {
		t.Errorf("console lines = %q, want 3", h.console.lines)
	}
	if !h.rotator.Disabled() {
		t.Error("storage not disabled")
	}
	if h.poller.Statistics().Snapshot().StorageErrors != 1 {
		t.Errorf("StorageErrors = %d, want 1", h.poller.Statistics().Snapshot().StorageErrors)
	}
}

func TestPoller_RunUntilEOF(t *testing.T) {
	h := newPollerHarness(testConfig(),
		MustFrame(0x5D7C, []byte{1, 2, 3, 4}),
		MustFrame(0x123, []byte{1}),
		MustFrame(0x5D7C, []byte{5, 6, 7, 8}),
	)
	h.ctrl.eof = true

	if err := h.poller.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.console.lines) != 2 {
		t.Errorf("console lines = %q, want 2", h.console.lines)
	}
	if !h.console.hasNotice(NoticeInfo, "end of input") {
		t.Errorf("end of input not reported: %+v", h.console.notices)
	}
}

func TestPoller_RunBringUpFailure(t *testing.T) {
	h := newPollerHarness(testConfig(), MustFrame(0x5D7C, []byte{1}))
	h.ctrl.initErr = errors.New("no controller")

	err := h.poller.Run(context.Background())
	if !errors.Is(err, ErrBringUp) {
		t.Fatalf("Run() error = %v, want ErrBringUp", err)
	}
	if h.ctrl.pollCount != 0 {
		t.Errorf("pollCount = %d, want 0 after failed bring-up", h.ctrl.pollCount)
	}
	if len(h.console.lines) != 0 {
		t.Errorf("records produced after failed bring-up: %q", h.console.lines)
	}
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = time.Millisecond
	h := newPollerHarness(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.poller.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestPoller_StepReturnsEOF(t *testing.T) {
	h := newPollerHarness(testConfig())
	h.ctrl.eof = true
	if _, err := h.poller.Step(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Step() error = %v, want io.EOF", err)
	}
}

func TestPoller_Statistics(t *testing.T) {
	cfg := testConfig()
	cfg.IgnoreList = IgnoreList{0x100}
	h := newPollerHarness(cfg,
		MustFrame(0x5D7C, []byte{0, 0, 0, 70}),
		MustFrame(0x100, nil),
		MustFrame(0x200, nil),
		MustFrame(0x5D7C, []byte{0, 0, 0, 100}),
	)
	h.drain(t)

	snap := h.poller.Statistics().Snapshot()
	if snap.TotalFrames != 4 || snap.Records != 2 || snap.TempRecords != 2 ||
		snap.IgnoredFrames != 1 || snap.OffTargetFrames != 1 {
		t.Errorf("counters = total %d, records %d, temp %d, ignored %d, off-target %d",
			snap.TotalFrames, snap.Records, snap.TempRecords, snap.IgnoredFrames, snap.OffTargetFrames)
	}
	if !snap.HasLastTemp || snap.LastTempF != 212 {
		t.Errorf("LastTempF = %v, want 212", snap.LastTempF)
	}
	if snap.LogFile != "LOG000.CSV" {
		t.Errorf("LogFile = %q, want LOG000.CSV", snap.LogFile)
	}

	s := h.poller.Statistics().String()
	for _, want := range []string{"Total Frames:", "Records:", "Last Temp:", "212.0 F", "LOG000.CSV"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() missing %q:\n%s", want, s)
		}
	}
}

func TestPoller_StorageStatistics(t *testing.T) {
	cfg := testConfig()
	cfg.RotationThreshold = 1
	h := newPollerHarness(cfg,
		MustFrame(0x5D7C, []byte{0, 0, 0, 70}),
		MustFrame(0x5D7C, []byte{0, 0, 0, 71}),
	)
	h.drain(t)

	snap := h.poller.Statistics().Snapshot()
	if snap.Rotations != 2 || snap.LogFile != "LOG002.CSV" || snap.StorageDisabled {
		t.Errorf("storage = rotations %d, file %q, disabled %v; want 2, LOG002.CSV, false",
			snap.Rotations, snap.LogFile, snap.StorageDisabled)
	}
	if s := h.poller.Statistics().String(); !strings.Contains(s, "Rotations:") {
		t.Errorf("String() missing rotations:\n%s", s)
	}
}

func TestPoller_StorageDisabledStatistics(t *testing.T) {
	ctrl := newFakeController()
	ctrl.eof = true
	console := &recordingConsole{}
	reporter := NewReporter(console, nil)
	rotator := NewRotator(nil, rotationConfig(100), reporter)
	rotator.Start()
	p := NewPoller(testConfig(), ctrl, NewDualSink(console, rotator), reporter)

	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap := p.Statistics().Snapshot()
	if !snap.StorageDisabled || snap.LogFile != "" {
		t.Errorf("StorageDisabled = %v, LogFile = %q", snap.StorageDisabled, snap.LogFile)
	}
	if s := p.Statistics().String(); !strings.Contains(s, "Storage:         disabled") {
		t.Errorf("String() missing storage state:\n%s", s)
	}
}

func TestPoller_RemoteTargetFrame(t *testing.T) {
	remote := Frame{RawID: 0x5D7C | FlagExtended | FlagRemote, Len: 5}
	h := newPollerHarness(testConfig(), remote)
	h.drain(t)

	if len(h.console.lines) != 0 {
		t.Errorf("remote frame produced records %q", h.console.lines)
	}
	if snap := h.poller.Statistics().Snapshot(); snap.RemoteFrames != 1 || snap.Records != 0 {
		t.Errorf("remote %d, records %d; want 1, 0", snap.RemoteFrames, snap.Records)
	}
}

type droppingController struct {
	*fakeController
	dropped uint64
}

func (c *droppingController) Dropped() uint64 { return c.dropped }

func TestPoller_DriverDropped(t *testing.T) {
	ctrl := &droppingController{fakeController: newFakeController(), dropped: 7}
	p := NewPoller(testConfig(), ctrl, nil, nil)
	if _, err := p.Step(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := p.Statistics().Snapshot().DriverDropped; got != 7 {
		t.Errorf("DriverDropped = %d, want 7", got)
	}
	if s := p.Statistics().String(); !strings.Contains(s, "Driver Dropped:") {
		t.Errorf("String() missing dropped count:\n%s", s)
	}

	// the verbose wrapper keeps the count visible
	logged := NewLoggedController(ctrl, slog.New(&recordSink{}), slog.LevelDebug)
	if logged.Dropped() != 7 {
		t.Errorf("LoggedController.Dropped() = %d, want 7", logged.Dropped())
	}
}

func TestPoller_NilSinkAndReporter(t *testing.T) {
	ctrl := newFakeController(MustFrame(0x5D7C, []byte{1, 2, 3, 4}))
	p := NewPoller(testConfig(), ctrl, nil, nil)
	if _, err := p.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if p.Statistics().Snapshot().Records != 1 {
		t.Error("record not counted without a sink")
	}
}

func TestLoggedController(t *testing.T) {
	sink := &recordSink{}
	logger := slog.New(sink)
	ctrl := newFakeController(MustFrame(0x5D7C, []byte{1, 2}))
	logged := NewLoggedController(ctrl, logger, slog.LevelDebug)

	if err := logged.Initialize(DefaultBitrate, DefaultClockHz); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := logged.Poll(); !ok {
		t.Fatal("Poll() returned no frame")
	}
	ctrl.pollErr = errors.New("boom")
	logged.Poll()
	ctrl.flags = []ErrorFlags{FlagRXEP}
	logged.ErrorFlags()

	if !hasSlogMsg(sink.records, slog.LevelDebug, "controller initialize") {
		t.Error("initialize not logged")
	}
	if !hasSlogMsg(sink.records, slog.LevelDebug, "controller receive") {
		t.Error("receive not logged")
	}
	if !hasSlogMsg(sink.records, slog.LevelError, "controller receive error") {
		t.Error("receive error not logged at error level")
	}
	if !hasSlogMsg(sink.records, slog.LevelDebug, "controller error flags") {
		t.Error("error flags not logged")
	}
	if logged.FilterSlots() != ctrl.slots {
		t.Error("FilterSlots() not forwarded")
	}
}

func TestDualSink_ConsoleOnly(t *testing.T) {
	console := &recordingConsole{}
	sink := NewDualSink(console, nil)
	if err := sink.Deliver([]byte(sampleLine)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(console.lines) != 1 || console.lines[0] != sampleLine {
		t.Errorf("console lines = %q", console.lines)
	}
	if sink.Rotator() != nil {
		t.Error("Rotator() != nil for console-only sink")
	}
}
