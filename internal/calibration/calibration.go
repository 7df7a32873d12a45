// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration derives the per-channel raw-code to degree mapping of the
// leader arm from two reference poses, and reads/writes the calibration file.
//
// File format (two lines, six comma-separated integers each):
//
//	<zero pose>
//	<90° pose>
package calibration

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/relabs-tech/leader_arm/internal/encoder"
)

var (
	// ErrNotEnoughLines means the calibration file has fewer than two lines.
	ErrNotEnoughLines = errors.New("calibration data does not contain enough lines")

	// ErrFieldCount means a calibration line does not hold six values.
	ErrFieldCount = errors.New("each calibration line must contain 6 values")
)

// Calibration is the averaged raw reading at the zero pose and at the 90° pose.
type Calibration struct {
	ZeroPose encoder.Reading `json:"zero_pose"`
	Pose90   encoder.Reading `json:"pose_90"`
}

// Slopes holds one degrees-per-code factor per channel.
type Slopes [encoder.Channels]float64

// ComputeSlopes returns 90/delta for each channel, where delta is the cyclic
// distance from the zero pose to the 90° pose. A channel that did not move
// between the two poses gets a slope of 0, so it always reads 0°.
func ComputeSlopes(zero, pose90 encoder.Reading) Slopes {
	var s Slopes
	for i := range s {
		d := encoder.SignedDelta(pose90[i], zero[i])
		if d == 0 {
			s[i] = 0.0
			continue
		}
		s[i] = 90.0 / float64(d)
	}
	return s
}

// Slopes is shorthand for ComputeSlopes(c.ZeroPose, c.Pose90).
func (c Calibration) Slopes() Slopes {
	return ComputeSlopes(c.ZeroPose, c.Pose90)
}

// Encode writes c in the two-line file format.
func (c Calibration) Encode(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s\n%s\n", c.ZeroPose, c.Pose90)
	return err
}

// Parse reads a calibration in the two-line file format. Lines after the
// second are ignored.
func Parse(r io.Reader) (Calibration, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() && len(lines) < 2 {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Calibration{}, fmt.Errorf("error reading calibration data: %w", err)
	}
	if len(lines) < 2 {
		return Calibration{}, ErrNotEnoughLines
	}

	zero, err := parseLine(lines[0])
	if err != nil {
		return Calibration{}, fmt.Errorf("zero pose: %w", err)
	}
	pose90, err := parseLine(lines[1])
	if err != nil {
		return Calibration{}, fmt.Errorf("90° pose: %w", err)
	}

	return Calibration{ZeroPose: zero, Pose90: pose90}, nil
}

func parseLine(line string) (encoder.Reading, error) {
	var r encoder.Reading

	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != encoder.Channels {
		return r, fmt.Errorf("got %d values: %w", len(fields), ErrFieldCount)
	}
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return r, fmt.Errorf("invalid value %q: %w", f, err)
		}
		r[i] = v
	}
	return r, nil
}

// Load reads the calibration file at path.
func Load(path string) (Calibration, error) {
	file, err := os.Open(path)
	if err != nil {
		return Calibration{}, fmt.Errorf("failed to open calibration file: %w", err)
	}
	defer file.Close()

	cal, err := Parse(file)
	if err != nil {
		return Calibration{}, fmt.Errorf("%s: %w", path, err)
	}
	return cal, nil
}

// Save writes the calibration file at path, replacing any previous one.
func Save(path string, c Calibration) error {
	var sb strings.Builder
	if err := c.Encode(&sb); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return nil
}
