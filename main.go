// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Thermotap - passive CAN bus temperature logger
//
// Listens to a CAN bus in listen-only mode, picks out the frames of one
// temperature sensor and logs them as CSV records to the console and to
// rotating log files.

package main

import (
	"os"

	"github.com/Thermoquad/thermotap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
