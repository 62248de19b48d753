// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"

	"github.com/Thermoquad/thermotap/pkg/config"
	"github.com/Thermoquad/thermotap/pkg/slcan"
	"github.com/Thermoquad/thermotap/pkg/socketcan"
	"github.com/Thermoquad/thermotap/pkg/thermotap"
)

// openController picks the driver from the transport settings. SocketCAN
// wins over a WebSocket bridge, which wins over a serial port. The driver
// is wrapped for call logging when --verbose is set.
func openController(cfg *config.Config, logger *slog.Logger) (thermotap.Controller, string, error) {
	var (
		ctrl thermotap.Controller
		info string
	)

	if iface := cfg.Transport.Iface; iface != "" {
		sc, err := socketcan.New(iface, socketcan.Options{ManageDevice: cfg.Transport.ManageIface})
		if err != nil {
			return nil, "", err
		}
		ctrl = sc
		info = fmt.Sprintf("SocketCAN: %s", iface)
	} else {
		conn, connInfo, err := OpenConnection(cfg.Transport)
		if err != nil {
			return nil, "", err
		}
		ctrl = slcan.New(conn)
		info = "SLCAN " + connInfo
	}

	if v, ok := ctrl.(versioner); ok {
		if version, err := v.Version(); err == nil {
			info += " (adapter " + version + ")"
		}
	}
	return wrapController(ctrl, logger), info, nil
}

// versioner is implemented by drivers that can report adapter firmware
type versioner interface {
	Version() (string, error)
}

// wrapController adds call logging when --verbose is set
func wrapController(ctrl thermotap.Controller, logger *slog.Logger) thermotap.Controller {
	if !verbose || logger == nil {
		return ctrl
	}
	return thermotap.NewLoggedController(ctrl, logger, slog.LevelDebug)
}
