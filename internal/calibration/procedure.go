// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/leader_arm/internal/encoder"
)

const (
	DefaultSamples  = 10
	DefaultInterval = 50 * time.Millisecond
)

// Source provides the most recent raw reading together with its sequence
// number. ok is false until a first valid reading exists.
type Source interface {
	Sample() (r encoder.Reading, seq uint64, ok bool)
}

// Prompter blocks until the operator confirms the arm is in position.
type Prompter interface {
	Confirm(ctx context.Context, message string) error
}

// Stage identifies one of the two reference poses.
type Stage int

const (
	StageZero Stage = iota
	StagePose90
)

func (s Stage) String() string {
	switch s {
	case StageZero:
		return "zero pose"
	case StagePose90:
		return "90° pose"
	default:
		return "unknown"
	}
}

func (s Stage) prompt() string {
	switch s {
	case StageZero:
		return "1) Move arm to ZERO pose and press ENTER to start sampling..."
	default:
		return "2) Move arm to 90° pose and press ENTER to start sampling..."
	}
}

// Procedure collects the two reference poses from a live Source.
//
// The source only exposes its latest value, so when Interval is shorter than
// the sensor's line period the same reading is counted more than once and the
// average leans toward whichever reading lasted longest. Dedup skips a reading
// whose sequence number was already used.
type Procedure struct {
	Source   Source
	Prompter Prompter

	Samples  int           // readings averaged per pose (default 10)
	Interval time.Duration // polling interval (default 50ms)
	Dedup    bool
}

// Run executes both stages in order and returns the resulting calibration.
func (p *Procedure) Run(ctx context.Context) (Calibration, error) {
	log.Println("calibration: === CALIBRATION DATA GENERATION ===")

	zero, err := p.RunStage(ctx, StageZero)
	if err != nil {
		return Calibration{}, err
	}
	log.Printf("calibration: zero pose average: %v", zero)

	pose90, err := p.RunStage(ctx, StagePose90)
	if err != nil {
		return Calibration{}, err
	}
	log.Printf("calibration: 90° pose average: %v", pose90)

	return Calibration{ZeroPose: zero, Pose90: pose90}, nil
}

// RunStage waits for operator confirmation, then samples and averages one pose.
func (p *Procedure) RunStage(ctx context.Context, stage Stage) (encoder.Reading, error) {
	if p.Source == nil {
		return encoder.Reading{}, errors.New("calibration: no reading source")
	}
	if p.Prompter != nil {
		if err := p.Prompter.Confirm(ctx, stage.prompt()); err != nil {
			return encoder.Reading{}, fmt.Errorf("%s: %w", stage, err)
		}
	}

	readings, err := p.collect(ctx)
	if err != nil {
		return encoder.Reading{}, fmt.Errorf("%s: %w", stage, err)
	}
	return Average(readings), nil
}

func (p *Procedure) collect(ctx context.Context) ([]encoder.Reading, error) {
	n := p.Samples
	if n <= 0 {
		n = DefaultSamples
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	readings := make([]encoder.Reading, 0, n)
	var lastSeq uint64
	haveSeq := false

	for len(readings) < n {
		r, seq, ok := p.Source.Sample()
		switch {
		case !ok:
		case p.Dedup && haveSeq && seq == lastSeq:
		default:
			log.Printf("calibration: read %v", r)
			readings = append(readings, r)
			lastSeq, haveSeq = seq, true
		}
		if len(readings) == n {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return readings, nil
}

// Average returns the per-channel mean of readings rounded to the nearest
// integer (ties to even). An empty slice averages to the zero reading.
func Average(readings []encoder.Reading) encoder.Reading {
	var avg encoder.Reading
	if len(readings) == 0 {
		return avg
	}

	var sums [encoder.Channels]int64
	for _, r := range readings {
		for i, v := range r {
			sums[i] += int64(v)
		}
	}
	for i, sum := range sums {
		avg[i] = int(math.RoundToEven(float64(sum) / float64(len(readings))))
	}
	return avg
}

// ErrNoOperator means the console input ended before the operator answered.
var ErrNoOperator = errors.New("no operator input")

// ConsolePrompter asks on Out and waits for a line (ENTER) on In. A single
// goroutine reads In, so a Confirm abandoned by its context leaves the next
// line for the following Confirm.
type ConsolePrompter struct {
	In  *bufio.Reader
	Out io.Writer

	once  sync.Once
	lines chan struct{}
	err   error // set before lines is closed
}

// NewConsolePrompter wraps in and out, typically os.Stdin and os.Stdout.
func NewConsolePrompter(in io.Reader, out io.Writer) *ConsolePrompter {
	return &ConsolePrompter{In: bufio.NewReader(in), Out: out}
}

// Confirm returns nil once the operator presses ENTER. Closed input (a
// service, a pipe, /dev/null) is an error wrapping ErrNoOperator and
// io.ErrUnexpectedEOF, never a confirmation.
func (c *ConsolePrompter) Confirm(ctx context.Context, message string) error {
	c.once.Do(func() {
		c.lines = make(chan struct{})
		go c.readLines()
	})

	fmt.Fprintln(c.Out)
	fmt.Fprint(c.Out, message)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-c.lines:
		if ok {
			return nil
		}
		if errors.Is(c.err, io.EOF) {
			return fmt.Errorf("%w: %w", ErrNoOperator, io.ErrUnexpectedEOF)
		}
		return fmt.Errorf("reading operator input: %w", c.err)
	}
}

func (c *ConsolePrompter) readLines() {
	defer close(c.lines)
	for {
		// a final line without a newline is not an answer
		if _, err := c.In.ReadString('\n'); err != nil {
			c.err = err
			return
		}
		c.lines <- struct{}{}
	}
}
