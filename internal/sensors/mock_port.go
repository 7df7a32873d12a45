// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/leader_arm/internal/encoder"
)

// MockPort is a stand-in for the encoder board: it emits one line of six
// smoothly changing codes per Period. Channel 0 sweeps across the 4095/0
// boundary. Every GlitchEvery-th line is malformed when GlitchEvery > 0.
type MockPort struct {
	Period      time.Duration
	GlitchEvery int

	start  time.Time
	mu     sync.Mutex
	buf    bytes.Buffer
	lines  int
	closed chan struct{}
	once   sync.Once
}

// NewMockPort creates a mock port emitting a line every period.
func NewMockPort(period time.Duration) *MockPort {
	if period <= 0 {
		period = 20 * time.Millisecond
	}
	return &MockPort{
		Period: period,
		start:  time.Now(),
		closed: make(chan struct{}),
	}
}

// Read blocks until the next line is due, like a serial port with no read timeout.
func (m *MockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.buf.Len() == 0 {
		select {
		case <-m.closed:
			return 0, io.ErrClosedPipe
		case <-time.After(m.Period):
		}
		m.buf.WriteString(m.nextLine())
	}
	return m.buf.Read(p)
}

// Write discards p; the board ignores host input.
func (m *MockPort) Write(p []byte) (int, error) {
	select {
	case <-m.closed:
		return 0, io.ErrClosedPipe
	default:
		return len(p), nil
	}
}

func (m *MockPort) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *MockPort) nextLine() string {
	m.lines++
	if m.GlitchEvery > 0 && m.lines%m.GlitchEvery == 0 {
		return "12,34\n"
	}
	return MockReading(time.Since(m.start)).String() + "\n"
}

// mockCenters are the codes around which each channel oscillates.
var mockCenters = [encoder.Channels]float64{4050, 2048, 2048, 1024, 3072, 2048}

// MockReading is the reading MockPort emits at elapsed time t.
func MockReading(t time.Duration) encoder.Reading {
	s := t.Seconds()
	var r encoder.Reading
	for i := range r {
		amp := 200.0 + 50.0*float64(i)
		v := mockCenters[i] + amp*math.Sin(s*(0.5+0.1*float64(i)))
		r[i] = int(math.Round(v)) % encoder.CodeRange
		if r[i] < 0 {
			r[i] += encoder.CodeRange
		}
	}
	return r
}

// String describes the mock for logs.
func (m *MockPort) String() string {
	return fmt.Sprintf("mock encoder board (%v/line)", m.Period)
}
