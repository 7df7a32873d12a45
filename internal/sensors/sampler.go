// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/leader_arm/internal/encoder"
)

// DefaultSamplerDelay is the pause after each read attempt.
const DefaultSamplerDelay = 10 * time.Millisecond

// Snapshot is the latest published reading.
type Snapshot struct {
	Reading encoder.Reading
	Seq     uint64 // 0 until the first valid line; increments per publication
	At      time.Time
}

// Sampler reads encoder lines in the background and keeps only the most
// recent valid one. Consumers poll it; intermediate readings they do not poll
// in time are dropped.
type Sampler struct {
	r     *bufio.Reader
	delay time.Duration

	mu     sync.Mutex
	latest Snapshot
	err    error

	malformed atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSampler wraps r. A delay <= 0 selects DefaultSamplerDelay.
func NewSampler(r io.Reader, delay time.Duration) *Sampler {
	if delay <= 0 {
		delay = DefaultSamplerDelay
	}
	return &Sampler{r: bufio.NewReader(r), delay: delay}
}

// Start launches the reader goroutine. It runs until ctx is cancelled, Stop is
// called, or the reader fails with an error other than io.EOF. io.EOF is what
// an idle serial port returns once its read timeout elapses, so it only
// pauses the loop.
func (s *Sampler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop cancels the goroutine and waits for it. A read blocked in the
// transport finishes first; close the transport to unblock it.
func (s *Sampler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Done is closed when the goroutine exits.
func (s *Sampler) Done() <-chan struct{} { return s.done }

// Err returns the read error that stopped the sampler, if any.
func (s *Sampler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Malformed counts the lines discarded because they did not decode.
func (s *Sampler) Malformed() uint64 { return s.malformed.Load() }

// Snapshot returns a copy of the latest reading.
func (s *Sampler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Latest returns the latest reading; ok is false before the first valid line.
func (s *Sampler) Latest() (encoder.Reading, bool) {
	snap := s.Snapshot()
	return snap.Reading, snap.Seq > 0
}

// Sample returns the latest reading with its sequence number.
func (s *Sampler) Sample() (encoder.Reading, uint64, bool) {
	snap := s.Snapshot()
	return snap.Reading, snap.Seq, snap.Seq > 0
}

func (s *Sampler) run(ctx context.Context) {
	defer close(s.done)

	var partial strings.Builder
	for ctx.Err() == nil {
		chunk, err := s.r.ReadString('\n')
		partial.WriteString(chunk)

		switch {
		case err == nil:
			s.handleLine(partial.String())
			partial.Reset()
		case errors.Is(err, io.EOF):
			// timeout; keep any partial line for the next read
		default:
			if ctx.Err() == nil {
				log.Printf("sampler: read error: %v", err)
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.delay):
		}
	}
}

func (s *Sampler) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	r, err := encoder.ParseReading(line)
	if err != nil {
		s.malformed.Add(1)
		log.Printf("sampler: %v - data may be malformed or not six integers", err)
		return
	}

	s.mu.Lock()
	s.latest = Snapshot{Reading: r, Seq: s.latest.Seq + 1, At: time.Now()}
	s.mu.Unlock()
}
