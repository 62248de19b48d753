// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import "fmt"

// AdmissionFilter decides what the controller's acceptance filters let
// through. Observation mode accepts everything; production mode accepts
// only the target identifier.
//
// The poll loop applies the same checks in software either way, so the
// hardware filter only reduces traffic.
type AdmissionFilter struct {
	ObservationMode bool
	TargetID        uint32
}

// Entry returns the mask and identifier programmed into every slot
func (a AdmissionFilter) Entry() (mask, id uint32) {
	if a.ObservationMode {
		return 0, 0
	}
	return MaxExtendedID, a.TargetID & MaxExtendedID
}

// Accepts reports whether a canonical identifier passes the filter
func (a AdmissionFilter) Accepts(id uint32) bool {
	mask, want := a.Entry()
	return id&mask == want&mask
}

// Apply programs every slot of ctrl. Applying twice yields the same state.
func (a AdmissionFilter) Apply(ctrl Controller) error {
	mask, id := a.Entry()
	for slot := 0; slot < ctrl.FilterSlots(); slot++ {
		if err := ctrl.ProgramFilter(slot, mask, id); err != nil {
			return fmt.Errorf("failed to program filter slot %d: %w", slot, err)
		}
	}
	return nil
}

// Mode names the filter configuration
func (a AdmissionFilter) Mode() string {
	if a.ObservationMode {
		return "observation"
	}
	return "production"
}

// FilterTable emulates acceptance slots for drivers that filter in software
// below the poll loop. The zero value accepts every frame.
type FilterTable struct {
	slots []filterSlot
}

type filterSlot struct {
	set  bool
	mask uint32
	id   uint32
}

// NewFilterTable creates a table with n slots
func NewFilterTable(n int) *FilterTable {
	return &FilterTable{slots: make([]filterSlot, n)}
}

// Len returns the number of slots
func (t *FilterTable) Len() int { return len(t.slots) }

// Set programs one slot
func (t *FilterTable) Set(slot int, mask, id uint32) error {
	if slot < 0 || slot >= len(t.slots) {
		return fmt.Errorf("filter slot %d out of range (0-%d)", slot, len(t.slots)-1)
	}
	t.slots[slot] = filterSlot{set: true, mask: mask, id: id}
	return nil
}

// Match reports whether id passes any programmed slot. With no slot
// programmed every identifier passes.
func (t *FilterTable) Match(id uint32) bool {
	programmed := false
	for _, s := range t.slots {
		if !s.set {
			continue
		}
		programmed = true
		if id&s.mask == s.id&s.mask {
			return true
		}
	}
	return !programmed
}
