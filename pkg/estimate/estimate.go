// Package estimate turns point estimates and confidence scores into effort samplers.
//
// An Estimator has a deterministic effort (the point estimate, in days) and
// draws a fresh stochastic effort each time Resample is called. Callers pass
// the RNG in so that concurrent trials never share random state.
package estimate

import (
	"math"
	"math/rand/v2"
)

// Estimator yields deterministic and resampled effort in days
type Estimator interface {
	Deterministic() float64
	Resample(r *rand.Rand) float64
}

// Deviation maps a 0-100 confidence score to a log-normal sigma
type Deviation struct {
	Min     float64 // sigma at confidence 100
	Max     float64 // sigma just above confidence 0
	Default float64 // sigma for zero or missing confidence
}

// DefaultDeviation is used when a plan has no estimation section
var DefaultDeviation = Deviation{Min: 0, Max: 1, Default: 0.4}

// Sigma returns the deviation for a confidence score. Higher confidence gives a
// tighter distribution; scores outside (0, 100] are clamped, 0 falls back to Default.
func (d Deviation) Sigma(confidence float64) float64 {
	if confidence <= 0 || math.IsNaN(confidence) {
		return d.Default
	}
	if confidence > 100 {
		confidence = 100
	}
	return d.Max - (d.Max-d.Min)*confidence/100
}

// LogNormal samples effort as Median * exp(Sigma * N(0,1))
type LogNormal struct {
	Median float64
	Sigma  float64
}

// Deterministic returns the median effort
func (l LogNormal) Deterministic() float64 {
	return l.Median
}

// Resample draws one effort sample
func (l LogNormal) Resample(r *rand.Rand) float64 {
	if l.Sigma <= 0 || l.Median <= 0 {
		return l.Median
	}
	return l.Median * math.Exp(l.Sigma*r.NormFloat64())
}

// Fixed is a zero-variance estimator
type Fixed float64

// Deterministic returns the fixed effort
func (f Fixed) Deterministic() float64 {
	return float64(f)
}

// Resample always returns the fixed effort
func (f Fixed) Resample(*rand.Rand) float64 {
	return float64(f)
}

// FromConfidence builds the reference log-normal estimator for an item
func FromConfidence(effortDays, confidence float64, dev Deviation) Estimator {
	sigma := dev.Sigma(confidence)
	if sigma <= 0 {
		return Fixed(effortDays)
	}
	return LogNormal{Median: effortDays, Sigma: sigma}
}

// TrialRand returns the RNG for one trial. The stream depends only on the run
// seed and the trial index, so results do not depend on which worker ran the trial.
func TrialRand(seed uint64, trial int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(trial)))
}

// RandomSeed returns a seed for runs that did not ask for reproducibility
func RandomSeed() uint64 {
	for {
		if s := rand.Uint64(); s != 0 {
			return s
		}
	}
}
