package encoder

import (
	"errors"
	"strconv"
	"testing"
)

func TestSignedDelta(t *testing.T) {
	tests := []struct {
		raw, ref int
		want     int
	}{
		{0, 0, 0},
		{2048, 2048, 0},
		{4095, 0, -1},
		{0, 4095, 1},
		{2070, 2048, 22},
		{2048, 2070, -22},
		{10, 4000, 106},
		{4000, 10, -106},
		{2048, 0, -2048},
		{0, 2048, -2048},
		{2047, 0, 2047},
	}

	for _, tt := range tests {
		if got := SignedDelta(tt.raw, tt.ref); got != tt.want {
			t.Errorf("SignedDelta(%d, %d) = %d, want %d", tt.raw, tt.ref, got, tt.want)
		}
	}
}

func TestSignedDeltaRange(t *testing.T) {
	for raw := 0; raw < CodeRange; raw += 7 {
		for ref := 0; ref < CodeRange; ref += 13 {
			d := SignedDelta(raw, ref)
			if d < -2048 || d > 2047 {
				t.Fatalf("SignedDelta(%d, %d) = %d out of range", raw, ref, d)
			}
		}
		if d := SignedDelta(raw, raw); d != 0 {
			t.Fatalf("SignedDelta(%d, %d) = %d, want 0", raw, raw, d)
		}
	}
}

func TestParseReading(t *testing.T) {
	r, err := ParseReading("2048,2051,1990,10,4000,3800\r\n")
	if err != nil {
		t.Fatalf("ParseReading: %v", err)
	}
	want := Reading{2048, 2051, 1990, 10, 4000, 3800}
	if r != want {
		t.Errorf("got %v, want %v", r, want)
	}
	if s := r.String(); s != "2048,2051,1990,10,4000,3800" {
		t.Errorf("String() = %q", s)
	}
}

func TestParseReadingErrors(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		fieldCount bool
	}{
		{"empty", "", true},
		{"too few", "1,2,3,4,5", true},
		{"too many", "1,2,3,4,5,6,7", true},
		{"not a number", "1,2,x,4,5,6", false},
		{"blank field", "1,2,,4,5,6", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReading(tt.line)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrFieldCount); got != tt.fieldCount {
				t.Errorf("errors.Is(err, ErrFieldCount) = %v, want %v (err: %v)", got, tt.fieldCount, err)
			}
			if !tt.fieldCount {
				var numErr *strconv.NumError
				if !errors.As(err, &numErr) {
					t.Errorf("expected *strconv.NumError, got %v", err)
				}
			}
		})
	}
}
