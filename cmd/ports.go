// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var portsDetailed bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports for SLCAN adapters",
	Long: `List the serial ports present on this machine. With --detailed, USB ports
are shown with their vendor and product IDs, which helps to tell an SLCAN
adapter apart from other devices.

Examples:
  thermotap ports
  thermotap ports --detailed`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsDetailed, "detailed", false, "Show USB vendor and product details")
}

func runPorts(cmd *cobra.Command, args []string) error {
	if portsDetailed {
		details, err := enumerator.GetDetailedPortsList()
		if err != nil {
			return fmt.Errorf("failed to list ports: %w", err)
		}
		if len(details) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, p := range details {
			if p.IsUSB {
				fmt.Printf("%s  USB %s:%s  serial=%s  %s\n", p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
			} else {
				fmt.Printf("%s\n", p.Name)
			}
		}
		return nil
	}

	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("failed to list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}
