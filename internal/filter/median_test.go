package filter

import (
	"math"
	"testing"
)

const eps = 1e-9

func TestCircularMedianConstant(t *testing.T) {
	for _, angle := range []float64{0, 45, -90, 179, -179.5, 12.25} {
		f := NewCircularMedian(DefaultWindow)
		var got float64
		for i := 0; i < 2*DefaultWindow; i++ {
			got = f.Update(angle)
		}
		if math.Abs(got-angle) > eps {
			t.Errorf("constant %v: got %v", angle, got)
		}
		if f.Len() != DefaultWindow {
			t.Errorf("window length = %d, want %d", f.Len(), DefaultWindow)
		}
	}
}

func TestCircularMedianWrapBoundary(t *testing.T) {
	f := NewCircularMedian(DefaultWindow)
	var got float64
	for i := 0; i < 25; i++ {
		a := 179.0
		if i%2 == 1 {
			a = -179.0
		}
		got = f.Update(a)
		if math.Abs(math.Abs(got)-179) > 1+eps {
			t.Fatalf("sample %d: got %v, want near ±179", i, got)
		}
	}

	// A plain median over the same degree values would be 0.
	plain := Median([]float64{179, -179, 179, -179})
	if math.Abs(plain) > eps {
		t.Fatalf("plain median = %v, expected 0 for comparison", plain)
	}
}

func TestCircularMedianRejectsSpike(t *testing.T) {
	f := NewCircularMedian(5)
	for _, a := range []float64{10, 10, 10, 10} {
		f.Update(a)
	}
	if got := f.Update(90); math.Abs(got-10) > eps {
		t.Errorf("spike leaked through: %v", got)
	}
}

func TestCircularMedianEvictsOldest(t *testing.T) {
	f := NewCircularMedian(3)
	f.Update(0)
	f.Update(0)
	f.Update(0)
	f.Update(30)
	if got := f.Update(30); math.Abs(got-30) > eps {
		t.Errorf("got %v, want 30 once zeros are evicted", got)
	}
	f.Reset()
	if f.Len() != 0 {
		t.Errorf("Len after Reset = %d", f.Len())
	}
}

func TestUnwrap(t *testing.T) {
	in := []float64{3.0, -3.0, 3.0, 0.5}
	got := Unwrap(in)
	want := []float64{3.0, -3.0 + 2*math.Pi, 3.0, 0.5}
	for i := range want {
		if math.Abs(got[i]-want[i]) > eps {
			t.Errorf("Unwrap[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if len(Unwrap(nil)) != 0 {
		t.Error("Unwrap(nil) should be empty")
	}
}

func TestUnwrapHalfTurnSteps(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"step of +pi kept", []float64{0, math.Pi}, []float64{0, math.Pi}},
		{"step of -pi kept", []float64{0, -math.Pi}, []float64{0, -math.Pi}},
		{"step of +3pi folds to +pi", []float64{0, 3 * math.Pi}, []float64{0, math.Pi}},
		{"step of -3pi folds to -pi", []float64{0, -3 * math.Pi}, []float64{0, -math.Pi}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unwrap(tt.in)
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > eps {
					t.Errorf("Unwrap(%v)[%d] = %v, want %v", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{[]float64{3}, 3},
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
	}
	for _, tt := range tests {
		if got := Median(tt.in); got != tt.want {
			t.Errorf("Median(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if !math.IsNaN(Median(nil)) {
		t.Error("Median(nil) should be NaN")
	}
}

func TestWrapDegrees(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{179, 179},
		{180, -180},
		{-180, -180},
		{181, -179},
		{-181, 179},
		{360, 0},
		{725, 5},
	}
	for _, tt := range tests {
		if got := WrapDegrees(tt.in); math.Abs(got-tt.want) > eps {
			t.Errorf("WrapDegrees(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBank(t *testing.T) {
	b := NewBank(3, 4)
	var out []float64
	for i := 0; i < 4; i++ {
		out = b.Apply([]float64{0, 90, -179})
	}
	want := []float64{0, 90, -179}
	for i := range want {
		if math.Abs(out[i]-want[i]) > eps {
			t.Errorf("channel %d = %v, want %v", i, out[i], want[i])
		}
	}
	b.Reset()
	if got := b.Apply([]float64{5, 5, 5}); math.Abs(got[0]-5) > eps {
		t.Errorf("after reset got %v", got)
	}
}
