// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log"
	"os"

	"github.com/relabs-tech/leader_arm/internal/calibration"
	"github.com/relabs-tech/leader_arm/internal/config"
	"github.com/relabs-tech/leader_arm/internal/sensors"
)

// RunFindPort lists the serial ports, detects the leader arm by unplugging
// it, and saves the result to PORT_FILE.
func RunFindPort(ctx context.Context, cfg *config.Config) error {
	ports, err := sensors.ListPorts()
	if err != nil {
		return err
	}
	log.Printf("find_port: %d serial ports present: %v", len(ports), ports)

	prompter := calibration.NewConsolePrompter(os.Stdin, os.Stdout)
	if _, err := findPort(ctx, cfg, prompter, sensors.ListPorts); err != nil {
		return err
	}
	log.Println("Port detection complete. You can now run the AS5600 sensor tools.")
	return nil
}
