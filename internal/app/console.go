// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/relabs-tech/leader_arm/internal/calibration"
	"github.com/relabs-tech/leader_arm/internal/config"
	"github.com/relabs-tech/leader_arm/internal/joints"
)

// RunConsole prints every new pose of the leader arm to stdout.
func RunConsole(ctx context.Context, cfg *config.Config, opts RunOptions) error {
	prompter := calibration.NewConsolePrompter(os.Stdin, os.Stdout)
	session, err := openSession(ctx, cfg, opts, prompter)
	if err != nil {
		return err
	}
	defer session.Close()

	ticker := time.NewTicker(config.Millis(cfg.ReadInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Exiting gracefully...")
			return nil
		case <-session.Sampler().Done():
			return session.Sampler().Err()
		case <-ticker.C:
			frame, ok := session.Read()
			if !ok {
				continue
			}
			printPose(os.Stdout, frame.Pose)
		}
	}
}

// printPose writes the pose rounded to two decimals, e.g. "[0.00, 45.12, ...]".
func printPose(w io.Writer, p joints.Pose) {
	parts := make([]string, len(p))
	for i, v := range p {
		if v == 0 {
			v = 0 // no "-0.00"
		}
		parts[i] = fmt.Sprintf("%.2f", v)
	}
	fmt.Fprintf(w, "[%s]\n", strings.Join(parts, ", "))
}
