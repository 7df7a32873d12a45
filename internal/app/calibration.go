// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/relabs-tech/leader_arm/internal/calibration"
	"github.com/relabs-tech/leader_arm/internal/config"
)

// RunCalibration runs the guided two-pose calibration on the console and
// writes CALIBRATION_FILE, replacing any previous calibration.
func RunCalibration(ctx context.Context, cfg *config.Config, opts RunOptions) error {
	fmt.Println("=== Guided Calibration (zero pose + 90° pose) ===")
	fmt.Printf("This workflow will prompt you in the console and store results in %s\n", cfg.CalibrationFile)
	fmt.Printf("Each pose averages %d readings taken every %dms.\n", cfg.CalibrationSamples, cfg.CalibrationSampleInterval)

	opts.Recalibrate = true
	prompter := calibration.NewConsolePrompter(os.Stdin, os.Stdout)
	session, err := openSession(ctx, cfg, opts, prompter)
	if err != nil {
		return err
	}
	defer session.Close()

	printCalibration(os.Stdout, session.Calibration())
	fmt.Printf("\n✓ Calibration data saved to '%s'.\n", cfg.CalibrationFile)
	return nil
}

func printCalibration(w io.Writer, cal calibration.Calibration) {
	fmt.Fprintf(w, "Zero Pose:  %v\n", cal.ZeroPose)
	fmt.Fprintf(w, "90° Pose:   %v\n", cal.Pose90)
	s := cal.Slopes()
	fmt.Fprintf(w, "Slopes:     [%.4f, %.4f, %.4f, %.4f, %.4f, %.4f]\n", s[0], s[1], s[2], s[3], s[4], s[5])
}
