// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package socketcan drives a Linux SocketCAN interface as a listen-only
// thermotap controller.
//
// The interface is configured through netlink (bit rate, listen-only mode)
// when the process is allowed to, and read through a raw CAN socket. Error
// frames from the kernel are latched into the error register image.
package socketcan

import (
	"errors"
	"time"
)

// MaxFilterSlots is the number of software acceptance slots
const MaxFilterSlots = 8

const (
	dialTimeout = 2 * time.Second
	frameQueue  = 1024
)

var (
	ErrUnsupported = errors.New("socketcan: only available on Linux")
	ErrClosed      = errors.New("socketcan: controller closed")
	ErrNotStarted  = errors.New("socketcan: controller not initialized")
)

// Options configures a Controller
type Options struct {
	// ManageDevice sets bit rate and listen-only mode through netlink.
	// Without it the interface must already be configured and up.
	ManageDevice bool
}
