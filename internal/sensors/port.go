// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"io"
	"log"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
)

// PortOptions describes the serial link to the encoder board.
type PortOptions struct {
	Name        string        // e.g. /dev/ttyUSB0, /dev/ttyACM0
	BaudRate    int           // 115200 for the AS5600 board
	ReadTimeout time.Duration // 0 blocks until data arrives
}

// OpenPort opens the serial port 8N1. With a read timeout, an idle read
// returns without data once the timeout elapses.
func OpenPort(opts PortOptions) (io.ReadWriteCloser, error) {
	serialOpts := serial.OpenOptions{
		PortName:        opts.Name,
		BaudRate:        uint(opts.BaudRate),
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	}
	// the driver takes the timeout in whole deciseconds
	if timeout := opts.ReadTimeout.Round(100 * time.Millisecond); timeout > 0 {
		serialOpts.MinimumReadSize = 0
		serialOpts.InterCharacterTimeout = uint(timeout / time.Millisecond)
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %s: %w", opts.Name, err)
	}
	log.Printf("sensors: serial port opened on %s at %d baud", opts.Name, opts.BaudRate)
	return port, nil
}
