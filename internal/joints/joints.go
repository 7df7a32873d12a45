// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package joints converts raw encoder codes into calibrated joint angles and
// shapes the filtered angles into the pose consumed by the follower arm.
package joints

import (
	"math"

	"github.com/relabs-tech/leader_arm/internal/calibration"
	"github.com/relabs-tech/leader_arm/internal/encoder"
)

// Angles holds one calibrated angle in degrees per channel.
type Angles [encoder.Channels]float64

// Pose is the final shaped output:
// joint0, |joint1|, |joint2|, joint3, joint4, gripper.
type Pose [encoder.Channels]float64

// Channel indices.
const (
	Joint0 = iota
	Joint1
	Joint2
	Joint3
	Joint4
	Gripper
)

// Gripper remap: absolute degrees in [0, 92] become gripper units in [0, 20].
const (
	gripperInMin  = 0.0
	gripperInMax  = 92.0
	gripperOutMin = 0.0
	gripperOutMax = 20.0

	jointLimit = 90.0
)

// Convert applies a calibration to one raw reading.
func Convert(raw encoder.Reading, cal calibration.Calibration, slopes calibration.Slopes) Angles {
	var a Angles
	for i := range a {
		d := encoder.SignedDelta(raw[i], cal.ZeroPose[i])
		a[i] = float64(d) * slopes[i]
	}
	return a
}

// MapValue linearly remaps x from [inMin, inMax] to [outMin, outMax] and
// clamps the result to [outMin, outMax].
func MapValue(x, inMin, inMax, outMin, outMax float64) float64 {
	v := (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
	return math.Max(outMin, math.Min(outMax, v))
}

// ClipAngle clamps angle to [min, max].
func ClipAngle(angle, min, max float64) float64 {
	return math.Max(math.Min(angle, max), min)
}

// Shape turns filtered angles into the pose sent downstream. The per-channel
// rules are fixed by the arm's mechanics.
func Shape(a Angles) Pose {
	return Pose{
		Joint0:  ClipAngle(a[Joint0], -jointLimit, jointLimit),
		Joint1:  math.Abs(a[Joint1]),
		Joint2:  math.Abs(a[Joint2]),
		Joint3:  ClipAngle(a[Joint3], -jointLimit, jointLimit),
		Joint4:  a[Joint4],
		Gripper: MapValue(math.Abs(a[Gripper]), gripperInMin, gripperInMax, gripperOutMin, gripperOutMax),
	}
}

// Frame is one processed sample, as published on MQTT and the websocket.
type Frame struct {
	Time     string          `json:"time"` // RFC3339Nano
	Seq      uint64          `json:"seq"`
	Raw      encoder.Reading `json:"raw"`
	Angles   Angles          `json:"angles"`   // calibrated, before filtering
	Filtered Angles          `json:"filtered"` // after the circular median
	Pose     Pose            `json:"pose"`
}
