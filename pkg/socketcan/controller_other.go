// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package socketcan

import "github.com/Thermoquad/thermotap/pkg/thermotap"

// Controller is unavailable outside Linux
type Controller struct{}

// New always fails outside Linux
func New(iface string, opts Options) (*Controller, error) {
	return nil, ErrUnsupported
}

func (c *Controller) Initialize(bitrate, clockHz uint32) error      { return ErrUnsupported }
func (c *Controller) SetListenOnly() error                          { return ErrUnsupported }
func (c *Controller) FilterSlots() int                              { return 0 }
func (c *Controller) ProgramFilter(slot int, mask, id uint32) error { return ErrUnsupported }
func (c *Controller) Poll() (thermotap.Frame, bool, error)          { return thermotap.Frame{}, false, ErrUnsupported }
func (c *Controller) ErrorFlags() (thermotap.ErrorFlags, error)     { return 0, ErrUnsupported }
func (c *Controller) Dropped() uint64                               { return 0 }
func (c *Controller) Close() error                                  { return nil }
