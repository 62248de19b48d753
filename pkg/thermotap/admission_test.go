// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import (
	"reflect"
	"testing"
)

func TestAdmissionFilter_Entry(t *testing.T) {
	production := AdmissionFilter{TargetID: 0x5D7C}
	mask, id := production.Entry()
	if mask != 0x1FFFFFFF || id != 0x5D7C {
		t.Errorf("production Entry() = %08X/%08X", mask, id)
	}

	observation := AdmissionFilter{ObservationMode: true, TargetID: 0x5D7C}
	mask, id = observation.Entry()
	if mask != 0 || id != 0 {
		t.Errorf("observation Entry() = %08X/%08X, want accept-all", mask, id)
	}
}

func TestAdmissionFilter_Accepts(t *testing.T) {
	tests := []struct {
		name   string
		filter AdmissionFilter
		id     uint32
		want   bool
	}{
		{"production target", AdmissionFilter{TargetID: 0x5D7C}, 0x5D7C, true},
		{"production other", AdmissionFilter{TargetID: 0x5D7C}, 0x123, false},
		{"production near miss", AdmissionFilter{TargetID: 0x5D7C}, 0x15D7C, false},
		{"observation other", AdmissionFilter{ObservationMode: true, TargetID: 0x5D7C}, 0x123, true},
		{"observation target", AdmissionFilter{ObservationMode: true, TargetID: 0x5D7C}, 0x5D7C, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Accepts(tt.id); got != tt.want {
				t.Errorf("Accepts(0x%X) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestAdmissionFilter_ApplyTwice(t *testing.T) {
	ctrl := newFakeController()
	ctrl.slots = 6
	f := AdmissionFilter{TargetID: 0x5D7C}

	if err := f.Apply(ctrl); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	first := make(map[int]filterEntry, len(ctrl.filters))
	for k, v := range ctrl.filters {
		first[k] = v
	}
	if len(first) != 6 {
		t.Fatalf("programmed %d slots, want 6", len(first))
	}

	if err := f.Apply(ctrl); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !reflect.DeepEqual(first, ctrl.filters) {
		t.Errorf("second Apply() changed filters: %+v -> %+v", first, ctrl.filters)
	}
}

func TestFilterTable(t *testing.T) {
	table := NewFilterTable(2)
	if !table.Match(0x123) {
		t.Error("empty table must accept everything")
	}

	if err := table.Set(0, 0x1FFFFFFF, 0x5D7C); err != nil {
		t.Fatal(err)
	}
	if !table.Match(0x5D7C) || table.Match(0x123) {
		t.Error("exact slot matched wrong identifiers")
	}

	if err := table.Set(1, 0x1FFFFF00, 0x100); err != nil {
		t.Fatal(err)
	}
	if !table.Match(0x1AB) {
		t.Error("second slot not consulted")
	}

	if err := table.Set(2, 0, 0); err == nil {
		t.Error("Set() accepted an out-of-range slot")
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}
}
