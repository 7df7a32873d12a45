// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/leader_arm/internal/calibration"
	"github.com/relabs-tech/leader_arm/internal/encoder"
	"github.com/relabs-tech/leader_arm/internal/filter"
	"github.com/relabs-tech/leader_arm/internal/joints"
)

// Options configures a leader-arm session.
type Options struct {
	Port        PortOptions
	Mock        bool          // use a MockPort instead of the serial port
	SettleDelay time.Duration // wait after opening; the board resets on connect

	CalibrationFile     string
	Recalibrate         bool // run the procedure even if the file exists
	Prompter            calibration.Prompter
	CalibrationSamples  int
	CalibrationInterval time.Duration
	CalibrationDedup    bool

	SamplerDelay time.Duration
	FilterWindow int
}

// Session turns the encoder stream into filtered joint poses. It owns the
// transport, the background sampler, the calibration and the filter state.
type Session struct {
	port    io.ReadCloser
	sampler *Sampler

	cal    calibration.Calibration
	slopes calibration.Slopes

	mu       sync.Mutex
	bank     *filter.Bank
	lastSeq  uint64
	last     joints.Frame
	haveLast bool

	closeOnce sync.Once
}

// Open connects to the encoder board and prepares the calibration, running
// the two-pose procedure when no calibration file exists. Errors opening the
// port or loading the calibration are fatal; the port is closed on every
// error path.
func Open(ctx context.Context, opts Options) (*Session, error) {
	var port io.ReadCloser
	if opts.Mock {
		mp := NewMockPort(0)
		log.Printf("sensors: using %s", mp)
		port = mp
	} else {
		p, err := OpenPort(opts.Port)
		if err != nil {
			return nil, err
		}
		port = p
	}
	return openOn(ctx, port, opts)
}

// openOn waits out the board reset before reading, so the sampler never sees
// the lines garbled while it restarts.
func openOn(ctx context.Context, port io.ReadCloser, opts Options) (*Session, error) {
	s := newSession(port, opts)

	if err := sleepCtx(ctx, opts.SettleDelay); err != nil {
		s.Close()
		return nil, err
	}
	s.sampler.Start(context.Background())

	cal, err := loadOrGenerate(ctx, opts, s.sampler)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.setCalibration(cal)
	return s, nil
}

// NewSession starts a session on an already open transport with a known
// calibration.
func NewSession(port io.ReadCloser, cal calibration.Calibration, opts Options) *Session {
	s := newSession(port, opts)
	s.sampler.Start(context.Background())
	s.setCalibration(cal)
	return s
}

func newSession(port io.ReadCloser, opts Options) *Session {
	window := opts.FilterWindow
	if window <= 0 {
		window = filter.DefaultWindow
	}
	s := &Session{
		port:    port,
		sampler: NewSampler(port, opts.SamplerDelay),
		bank:    filter.NewBank(encoder.Channels, window),
	}
	return s
}

func (s *Session) setCalibration(cal calibration.Calibration) {
	s.cal = cal
	s.slopes = cal.Slopes()
	log.Printf("sensors: zero pose:  %v", cal.ZeroPose)
	log.Printf("sensors: 90° pose:   %v", cal.Pose90)
	log.Printf("sensors: slopes:     %v", s.slopes)
}

func loadOrGenerate(ctx context.Context, opts Options, src calibration.Source) (calibration.Calibration, error) {
	if !opts.Recalibrate {
		cal, err := calibration.Load(opts.CalibrationFile)
		if err == nil {
			return cal, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return calibration.Calibration{}, err
		}
		log.Printf("sensors: %s not found, running calibration process", opts.CalibrationFile)
	}

	if opts.Prompter == nil {
		return calibration.Calibration{}, errors.New("calibration required but no operator prompt is available")
	}
	proc := &calibration.Procedure{
		Source:   src,
		Prompter: opts.Prompter,
		Samples:  opts.CalibrationSamples,
		Interval: opts.CalibrationInterval,
		Dedup:    opts.CalibrationDedup,
	}
	cal, err := proc.Run(ctx)
	if err != nil {
		return calibration.Calibration{}, fmt.Errorf("calibration: %w", err)
	}
	if err := calibration.Save(opts.CalibrationFile, cal); err != nil {
		return calibration.Calibration{}, err
	}
	log.Printf("sensors: calibration data saved to %s", opts.CalibrationFile)
	return cal, nil
}

// Read processes the newest reading from the sampler. ok is false when there
// is no reading yet or nothing new since the previous Read; the caller should
// keep using its last pose.
func (s *Session) Read() (joints.Frame, bool) {
	snap := s.sampler.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Seq == 0 || snap.Seq == s.lastSeq {
		return joints.Frame{}, false
	}
	s.lastSeq = snap.Seq
	return s.process(snap.Reading, snap.Seq, snap.At), true
}

// Process runs one line through the pipeline synchronously, bypassing the
// sampler. A line that does not decode leaves the filter untouched.
func (s *Session) Process(line string) (joints.Frame, error) {
	r, err := encoder.ParseReading(line)
	if err != nil {
		log.Printf("sensors: error from AS5600: %v", err)
		return joints.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.process(r, 0, time.Now()), nil
}

func (s *Session) process(raw encoder.Reading, seq uint64, at time.Time) joints.Frame {
	angles := joints.Convert(raw, s.cal, s.slopes)

	var filtered joints.Angles
	copy(filtered[:], s.bank.Apply(angles[:]))

	f := joints.Frame{
		Time:     at.Format(time.RFC3339Nano),
		Seq:      seq,
		Raw:      raw,
		Angles:   angles,
		Filtered: filtered,
		Pose:     joints.Shape(filtered),
	}
	s.last = f
	s.haveLast = true
	return f
}

// Last returns the most recent frame, if any.
func (s *Session) Last() (joints.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.haveLast
}

// LastPose returns the most recent pose, the fallback when Read has nothing new.
func (s *Session) LastPose() (joints.Pose, bool) {
	f, ok := s.Last()
	return f.Pose, ok
}

func (s *Session) Calibration() calibration.Calibration { return s.cal }
func (s *Session) Slopes() calibration.Slopes           { return s.slopes }
func (s *Session) Sampler() *Sampler                    { return s.sampler }

// Close stops the sampler and releases the transport. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		started := s.sampler.cancel != nil
		if started {
			s.sampler.cancel()
		}
		err = s.port.Close()
		if started {
			<-s.sampler.Done()
		}
	})
	return err
}
