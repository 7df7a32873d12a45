// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package encoder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Channels is the number of AS5600 encoders on the leader arm:
	// five joints and the gripper.
	Channels = 6

	// CodeRange is the size of the 12-bit cyclic code space (0..4095).
	CodeRange = 4096

	halfRange = CodeRange / 2
)

// ErrFieldCount is returned when a line does not hold exactly Channels integers.
var ErrFieldCount = errors.New("wrong number of fields")

// Reading represents one raw sample: one 12-bit code per channel.
type Reading [Channels]int

// SignedDelta returns the shortest signed distance from ref to raw around
// the 4096-code circle, in [-2048, 2047].
func SignedDelta(raw, ref int) int {
	return mod(raw-ref+halfRange, CodeRange) - halfRange
}

// mod is the modulus with a non-negative result for a positive m.
func mod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// ParseReading decodes one line of the serial stream, e.g. "2048,2051,1990,10,4000,3800".
// Surrounding whitespace (including the line terminator) is ignored.
func ParseReading(line string) (Reading, error) {
	var r Reading

	line = strings.TrimSpace(line)
	if line == "" {
		return r, fmt.Errorf("empty line: %w", ErrFieldCount)
	}

	fields := strings.Split(line, ",")
	if len(fields) != Channels {
		return r, fmt.Errorf("expected %d values, got %d (%q): %w", Channels, len(fields), line, ErrFieldCount)
	}

	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return r, fmt.Errorf("channel %d: %w", i, err)
		}
		r[i] = v
	}
	return r, nil
}

// String formats the reading in the wire/file format: six comma-separated integers.
func (r Reading) String() string {
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
