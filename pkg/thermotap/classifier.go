// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

// IgnoreList holds identifiers of known filler traffic.
//
// Membership is the only question asked of it; order and duplicates do not
// matter. The list is small, so a linear scan is used.
type IgnoreList []uint32

// Contains reports whether id is one of the ignored identifiers
func (l IgnoreList) Contains(id uint32) bool {
	for _, ignored := range l {
		if ignored == id {
			return true
		}
	}
	return false
}
