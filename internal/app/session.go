// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/relabs-tech/leader_arm/internal/calibration"
	"github.com/relabs-tech/leader_arm/internal/config"
	"github.com/relabs-tech/leader_arm/internal/sensors"
)

// RunOptions are the command-line switches shared by the tools that own the
// serial session.
type RunOptions struct {
	Mock        bool // synthetic encoder board, no hardware needed
	Recalibrate bool // ignore an existing calibration file
}

// sessionOptions maps the config onto sensors.Options.
func sessionOptions(cfg *config.Config, opts RunOptions, port string, prompter calibration.Prompter) sensors.Options {
	settle := config.Millis(cfg.SerialSettle)
	if opts.Mock {
		settle = 0
	}
	return sensors.Options{
		Port: sensors.PortOptions{
			Name:        port,
			BaudRate:    cfg.SerialBaudRate,
			ReadTimeout: config.Millis(cfg.SerialReadTimeout),
		},
		Mock:                opts.Mock,
		SettleDelay:         settle,
		CalibrationFile:     cfg.CalibrationFile,
		Recalibrate:         opts.Recalibrate,
		Prompter:            prompter,
		CalibrationSamples:  cfg.CalibrationSamples,
		CalibrationInterval: config.Millis(cfg.CalibrationSampleInterval),
		CalibrationDedup:    cfg.CalibrationDedup,
		SamplerDelay:        config.Millis(cfg.SamplerDelay),
		FilterWindow:        cfg.FilterWindow,
	}
}

// openSession resolves the port and opens the sensor session.
func openSession(ctx context.Context, cfg *config.Config, opts RunOptions, prompter calibration.Prompter) (*sensors.Session, error) {
	port := "mock"
	if !opts.Mock {
		var err error
		port, err = resolvePort(ctx, cfg, prompter)
		if err != nil {
			return nil, err
		}
	}

	session, err := sensors.Open(ctx, sessionOptions(cfg, opts, port, prompter))
	if err != nil {
		return nil, err
	}
	log.Println("AS5600 sensor session has been initialized")
	return session, nil
}

// resolvePort returns SERIAL_PORT, else the port saved in PORT_FILE, else runs
// the interactive port detection and saves its result.
func resolvePort(ctx context.Context, cfg *config.Config, prompter calibration.Prompter) (string, error) {
	if cfg.SerialPort != "" {
		return cfg.SerialPort, nil
	}

	port, err := sensors.LoadPortFile(cfg.PortFile)
	if err == nil {
		return port, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	log.Printf("%s not found. Finding port and saving to file.", cfg.PortFile)
	return findPort(ctx, cfg, prompter, nil)
}

func findPort(ctx context.Context, cfg *config.Config, prompter calibration.Prompter, list sensors.PortLister) (string, error) {
	if prompter == nil {
		return "", errors.New("port detection needs an operator prompt")
	}
	log.Println("Finding all available ports for the leader arm.")

	port, err := sensors.DetectPort(ctx, prompter, list)
	if err != nil {
		return "", err
	}
	log.Printf("The port for the leader arm is '%s'", port)

	if err := sensors.SavePortFile(cfg.PortFile, port); err != nil {
		return "", err
	}
	log.Printf("Saved port to %s", cfg.PortFile)

	if err := prompter.Confirm(ctx, "Reconnect the USB cable. Press Enter when done to continue..."); err != nil {
		return "", fmt.Errorf("waiting for reconnect: %w", err)
	}
	// let the device node come back
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(500 * time.Millisecond):
	}
	return port, nil
}
