package estimate_test

import (
	"math"
	"sort"
	"testing"

	"github.com/lanecast/lanecast/pkg/estimate"
)

func TestDeviation_Sigma(t *testing.T) {
	dev := estimate.Deviation{Min: 0.1, Max: 0.9, Default: 0.5}

	tests := []struct {
		confidence float64
		want       float64
	}{
		{0, 0.5},
		{-10, 0.5},
		{100, 0.1},
		{150, 0.1},
		{50, 0.5},
		{25, 0.7},
	}

	for _, tt := range tests {
		got := dev.Sigma(tt.confidence)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Sigma(%v) = %v, want %v", tt.confidence, got, tt.want)
		}
	}
}

func TestDeviation_HigherConfidenceIsTighter(t *testing.T) {
	dev := estimate.DefaultDeviation
	prev := math.Inf(1)
	for c := 10.0; c <= 100; c += 10 {
		s := dev.Sigma(c)
		if s > prev {
			t.Fatalf("sigma increased from %v to %v at confidence %v", prev, s, c)
		}
		prev = s
	}
}

func TestFixed(t *testing.T) {
	f := estimate.Fixed(3)
	r := estimate.TrialRand(1, 0)
	for i := 0; i < 10; i++ {
		if got := f.Resample(r); got != 3 {
			t.Fatalf("expected 3, got %v", got)
		}
	}
	if f.Deterministic() != 3 {
		t.Errorf("expected deterministic 3, got %v", f.Deterministic())
	}
}

func TestFromConfidence_FullConfidenceIsFixed(t *testing.T) {
	e := estimate.FromConfidence(4, 100, estimate.DefaultDeviation)
	if _, ok := e.(estimate.Fixed); !ok {
		t.Fatalf("expected Fixed estimator at confidence 100, got %T", e)
	}
}

func TestLogNormal_MedianAndPositivity(t *testing.T) {
	e := estimate.LogNormal{Median: 5, Sigma: 0.5}
	r := estimate.TrialRand(7, 3)

	samples := make([]float64, 4001)
	for i := range samples {
		samples[i] = e.Resample(r)
		if samples[i] <= 0 {
			t.Fatalf("expected positive sample, got %v", samples[i])
		}
	}
	sort.Float64s(samples)
	median := samples[len(samples)/2]
	if math.Abs(median-5) > 0.5 {
		t.Errorf("expected sample median near 5, got %v", median)
	}
}

func TestLogNormal_ZeroEffortStaysZero(t *testing.T) {
	e := estimate.LogNormal{Median: 0, Sigma: 1}
	if got := e.Resample(estimate.TrialRand(1, 1)); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestTrialRand_Reproducible(t *testing.T) {
	a := estimate.TrialRand(99, 12)
	b := estimate.TrialRand(99, 12)
	c := estimate.TrialRand(99, 13)

	x, y, z := a.Float64(), b.Float64(), c.Float64()
	if x != y {
		t.Errorf("same seed and trial should match: %v != %v", x, y)
	}
	if x == z {
		t.Errorf("different trials should differ: %v == %v", x, z)
	}
}

func TestRandomSeed_NonZero(t *testing.T) {
	for i := 0; i < 100; i++ {
		if estimate.RandomSeed() == 0 {
			t.Fatal("expected non-zero seed")
		}
	}
}
