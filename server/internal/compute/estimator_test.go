package compute

import (
	"math"
	"testing"
)

// almostEqual returns true if a and b are within epsilon of each other.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestEstimator_ColdStartReturnsInput(t *testing.T) {
	for _, alpha := range []float64{0.01, 0.25, 0.5, 0.99} {
		e := NewEstimator(alpha)
		if got := e.Update("CP1", 7); got != 7 {
			t.Errorf("alpha=%v: first Update = %v, want 7", alpha, got)
		}
	}
}

func TestEstimator_Recurrence(t *testing.T) {
	e := NewEstimator(0.25)
	e.Update("CP1", 4)
	// 0.25*8 + 0.75*4 = 5
	if got := e.Update("CP1", 8); !almostEqual(got, 5, 1e-12) {
		t.Errorf("second Update = %v, want 5", got)
	}
	// 0.25*0 + 0.75*5 = 3.75
	if got := e.Update("CP1", 0); !almostEqual(got, 3.75, 1e-12) {
		t.Errorf("third Update = %v, want 3.75", got)
	}
}

func TestEstimator_BoundedByInputs(t *testing.T) {
	inputs := []float64{3, 0, 12, 5, 5, 1, 9, 0, 0, 20, 2}
	for _, alpha := range []float64{0.1, 0.25, 0.75} {
		e := NewEstimator(alpha)
		lo, hi := math.Inf(1), math.Inf(-1)
		for i, x := range inputs {
			lo, hi = math.Min(lo, x), math.Max(hi, x)
			v := e.Update("CP1", x)
			if v < lo || v > hi {
				t.Fatalf("alpha=%v step %d: value %v outside [%v, %v]", alpha, i, v, lo, hi)
			}
		}
	}
}

func TestEstimator_CheckpointsIndependent(t *testing.T) {
	e := NewEstimator(0.5)
	e.Update("CP1", 10)
	if got := e.Update("CP2", 2); got != 2 {
		t.Errorf("CP2 first Update = %v, want 2", got)
	}
	if got := e.Update("CP3", 7); got != 7 {
		t.Errorf("CP3 first Update = %v, want 7 (cold start)", got)
	}
	// 0.5*0 + 0.5*10 = 5
	if got := e.Update("CP1", 0); got != 5 {
		t.Errorf("CP1 second Update = %v, want 5", got)
	}
}
