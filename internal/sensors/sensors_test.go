package sensors

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/leader_arm/internal/calibration"
	"github.com/relabs-tech/leader_arm/internal/encoder"
	"github.com/relabs-tech/leader_arm/internal/joints"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSamplerPublishesLatest(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewSampler(pr, time.Millisecond)
	s.Start(context.Background())
	defer func() {
		pw.Close()
		s.Stop()
	}()

	if _, ok := s.Latest(); ok {
		t.Fatal("expected no reading before the first line")
	}

	io.WriteString(pw, "1,2,3,4,5,6\n")
	waitFor(t, func() bool { _, seq, _ := s.Sample(); return seq == 1 })

	io.WriteString(pw, "7,8,9,10,11,12\n")
	waitFor(t, func() bool { _, seq, _ := s.Sample(); return seq == 2 })

	r, ok := s.Latest()
	if !ok || r != (encoder.Reading{7, 8, 9, 10, 11, 12}) {
		t.Errorf("Latest() = %v, %v", r, ok)
	}
}

func TestSamplerSkipsMalformedLines(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewSampler(pr, time.Millisecond)
	s.Start(context.Background())
	defer func() {
		pw.Close()
		s.Stop()
	}()

	io.WriteString(pw, "1,2,3,4,5,6\n")
	waitFor(t, func() bool { _, ok := s.Latest(); return ok })

	io.WriteString(pw, "1,2,3\n")
	io.WriteString(pw, "a,b,c,d,e,f\n")
	waitFor(t, func() bool { return s.Malformed() == 2 })

	r, seq, _ := s.Sample()
	if seq != 1 || r != (encoder.Reading{1, 2, 3, 4, 5, 6}) {
		t.Errorf("malformed line disturbed the published value: %v (seq %d)", r, seq)
	}
}

func TestSamplerJoinsPartialLines(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewSampler(pr, time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()

	io.WriteString(pw, "10,20,30")
	pw.Close() // EOF acts as an idle timeout
	// the sampler keeps the partial line; nothing is published
	time.Sleep(10 * time.Millisecond)
	if _, ok := s.Latest(); ok {
		t.Error("partial line must not be published")
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestSamplerStopsOnReadError(t *testing.T) {
	boom := errors.New("device unplugged")
	s := NewSampler(failingReader{boom}, time.Millisecond)
	s.Start(context.Background())

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sampler did not stop")
	}
	if !errors.Is(s.Err(), boom) {
		t.Errorf("Err() = %v, want %v", s.Err(), boom)
	}
	s.Stop()
}

func testCalibration() calibration.Calibration {
	return calibration.Calibration{
		ZeroPose: encoder.Reading{2048, 2048, 2048, 2048, 2048, 2048},
		Pose90:   encoder.Reading{2070, 2070, 2070, 2070, 2070, 2070},
	}
}

// pipePort adapts an io.Pipe into the transport of a Session.
type pipePort struct {
	*io.PipeReader
	w *io.PipeWriter
}

func newPipePort() *pipePort {
	pr, pw := io.Pipe()
	return &pipePort{PipeReader: pr, w: pw}
}

func (p *pipePort) Close() error {
	p.w.Close()
	return p.PipeReader.Close()
}

func TestSessionRead(t *testing.T) {
	port := newPipePort()
	s := NewSession(port, testCalibration(), Options{SamplerDelay: time.Millisecond})
	defer s.Close()

	if _, ok := s.Read(); ok {
		t.Fatal("Read() before any data should report no data")
	}
	if _, ok := s.LastPose(); ok {
		t.Fatal("LastPose() before any data should be empty")
	}

	io.WriteString(port.w, "2048,2048,2048,2048,2048,2048\n")
	waitFor(t, func() bool { _, ok := s.Sampler().Latest(); return ok })

	f, ok := s.Read()
	if !ok {
		t.Fatal("expected a frame")
	}
	if f.Pose != (joints.Pose{}) {
		t.Errorf("pose at zero = %v", f.Pose)
	}
	if f.Seq != 1 {
		t.Errorf("seq = %d", f.Seq)
	}

	if _, ok := s.Read(); ok {
		t.Error("second Read() without new data should report no data")
	}
	if pose, ok := s.LastPose(); !ok || pose != (joints.Pose{}) {
		t.Errorf("LastPose() = %v, %v", pose, ok)
	}
}

func TestSessionProcess(t *testing.T) {
	port := newPipePort()
	s := NewSession(port, testCalibration(), Options{})
	defer s.Close()

	var f joints.Frame
	var err error
	for i := 0; i < 10; i++ {
		f, err = s.Process("2048,2048,2048,2048,2048,2048\n")
		if err != nil {
			t.Fatal(err)
		}
	}
	if f.Pose != (joints.Pose{}) {
		t.Errorf("pose = %v, want zeros", f.Pose)
	}

	if _, err := s.Process("2048,2048\n"); !errors.Is(err, encoder.ErrFieldCount) {
		t.Errorf("Process(short line) error = %v", err)
	}
	if pose, ok := s.LastPose(); !ok || pose != (joints.Pose{}) {
		t.Errorf("decode error changed the last pose: %v", pose)
	}

	// 22 codes past zero is 90°; the gripper maps 90° of [0, 92] onto [0, 20].
	for i := 0; i < 10; i++ {
		f, err = s.Process("2070,2070,2070,2070,2070,2070")
		if err != nil {
			t.Fatal(err)
		}
	}
	want := joints.Pose{90, 90, 90, 90, 90, 90 * 20.0 / 92}
	for i := range want {
		if math.Abs(f.Pose[i]-want[i]) > 1e-9 {
			t.Errorf("pose[%d] = %v, want %v", i, f.Pose[i], want[i])
		}
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	s := NewSession(newPipePort(), testCalibration(), Options{})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOpenMockWithCalibrationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Calibration_Data.txt")
	if err := calibration.Save(path, testCalibration()); err != nil {
		t.Fatal(err)
	}

	s, err := Open(context.Background(), Options{Mock: true, CalibrationFile: path, SamplerDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.Calibration() != testCalibration() {
		t.Errorf("calibration = %+v", s.Calibration())
	}
	waitFor(t, func() bool { _, ok := s.Read(); return ok })
}

func TestOpenRequiresPrompterWithoutFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.txt")
	_, err := Open(context.Background(), Options{Mock: true, CalibrationFile: path})
	if err == nil {
		t.Fatal("expected an error without calibration file or prompter")
	}
}

func TestOpenRejectsMalformedCalibration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Calibration_Data.txt")
	if err := os.WriteFile(path, []byte("1,2,3,4,5,6\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(context.Background(), Options{Mock: true, CalibrationFile: path})
	if !errors.Is(err, calibration.ErrNotEnoughLines) {
		t.Errorf("Open() error = %v, want ErrNotEnoughLines", err)
	}
}

type enterPrompter struct{ calls int }

func (p *enterPrompter) Confirm(context.Context, string) error {
	p.calls++
	return nil
}

func TestOpenRunsCalibration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Calibration_Data.txt")
	prompter := &enterPrompter{}

	s, err := Open(context.Background(), Options{
		Mock:                true,
		CalibrationFile:     path,
		Prompter:            prompter,
		CalibrationSamples:  2,
		CalibrationInterval: 5 * time.Millisecond,
		SamplerDelay:        time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if prompter.calls != 2 {
		t.Errorf("operator confirmations = %d, want 2", prompter.calls)
	}
	saved, err := calibration.Load(path)
	if err != nil {
		t.Fatalf("calibration file not written: %v", err)
	}
	if saved != s.Calibration() {
		t.Errorf("saved %+v, session has %+v", saved, s.Calibration())
	}
}

func TestOpenWithoutOperatorWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Calibration_Data.txt")

	_, err := Open(context.Background(), Options{
		Mock:                true,
		CalibrationFile:     path,
		Prompter:            calibration.NewConsolePrompter(strings.NewReader(""), io.Discard),
		CalibrationSamples:  2,
		CalibrationInterval: 5 * time.Millisecond,
		SamplerDelay:        time.Millisecond,
	})
	if !errors.Is(err, calibration.ErrNoOperator) {
		t.Fatalf("Open() error = %v, want ErrNoOperator", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("calibration file written without an operator (stat err = %v)", err)
	}
}

// firstReadPort records when it is first read and blocks until closed.
type firstReadPort struct {
	mu     sync.Mutex
	first  time.Time
	closed chan struct{}
	once   sync.Once
}

func (p *firstReadPort) Read([]byte) (int, error) {
	p.mu.Lock()
	if p.first.IsZero() {
		p.first = time.Now()
	}
	p.mu.Unlock()
	<-p.closed
	return 0, io.ErrClosedPipe
}

func (p *firstReadPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *firstReadPort) firstRead() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.first
}

func TestOpenReadsAfterSettle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Calibration_Data.txt")
	if err := calibration.Save(path, testCalibration()); err != nil {
		t.Fatal(err)
	}

	const settle = 50 * time.Millisecond
	port := &firstReadPort{closed: make(chan struct{})}
	opened := time.Now()
	s, err := openOn(context.Background(), port, Options{SettleDelay: settle, CalibrationFile: path})
	if err != nil {
		t.Fatalf("openOn: %v", err)
	}
	defer s.Close()

	waitFor(t, func() bool { return !port.firstRead().IsZero() })
	if d := port.firstRead().Sub(opened); d < settle {
		t.Errorf("first read %v after opening, want at least %v", d, settle)
	}
}

func TestOpenCancelledDuringSettle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	port := &firstReadPort{closed: make(chan struct{})}
	if _, err := openOn(ctx, port, Options{SettleDelay: time.Second}); !errors.Is(err, context.Canceled) {
		t.Fatalf("openOn() error = %v, want context.Canceled", err)
	}
	select {
	case <-port.closed:
	default:
		t.Error("port left open")
	}
	if !port.firstRead().IsZero() {
		t.Error("port read before the settle delay finished")
	}
}

func TestDetectPort(t *testing.T) {
	tests := []struct {
		name   string
		before []string
		after  []string
		want   string
		err    error
	}{
		{"one removed", []string{"/dev/ttyS0", "/dev/ttyUSB0"}, []string{"/dev/ttyS0"}, "/dev/ttyUSB0", nil},
		{"none removed", []string{"/dev/ttyS0"}, []string{"/dev/ttyS0"}, "", ErrPortNotFound},
		{"two removed", []string{"/dev/ttyACM0", "/dev/ttyUSB0"}, nil, "", ErrAmbiguousPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			list := func() ([]string, error) {
				calls++
				if calls == 1 {
					return tt.before, nil
				}
				return tt.after, nil
			}

			got, err := DetectPort(context.Background(), &enterPrompter{}, list)
			if !errors.Is(err, tt.err) {
				t.Fatalf("DetectPort() error = %v, want %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("DetectPort() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leader_port.txt")
	if _, err := LoadPortFile(path); err == nil {
		t.Fatal("expected error for missing port file")
	}
	if err := SavePortFile(path, "/dev/ttyUSB0"); err != nil {
		t.Fatal(err)
	}
	got, err := LoadPortFile(path)
	if err != nil || got != "/dev/ttyUSB0" {
		t.Errorf("LoadPortFile() = %q, %v", got, err)
	}
}

func TestMockReading(t *testing.T) {
	for ms := 0; ms < 20000; ms += 37 {
		r := MockReading(time.Duration(ms) * time.Millisecond)
		for i, v := range r {
			if v < 0 || v >= encoder.CodeRange {
				t.Fatalf("t=%dms channel %d code %d out of range", ms, i, v)
			}
		}
	}
}

func TestMockPortLines(t *testing.T) {
	m := NewMockPort(time.Millisecond)
	m.GlitchEvery = 3
	defer m.Close()

	s := NewSampler(m, time.Millisecond)
	s.Start(context.Background())
	waitFor(t, func() bool { _, seq, _ := s.Sample(); return seq >= 4 })
	waitFor(t, func() bool { return s.Malformed() >= 1 })
	m.Close()
	s.Stop()

	if !strings.Contains(m.String(), "mock") {
		t.Errorf("String() = %q", m.String())
	}
}
