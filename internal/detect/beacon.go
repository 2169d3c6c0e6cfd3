// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package detect

import "math"

// Tracker keeps a running mean and variance via Welford's online
// algorithm, so callers can score beaconing-interval regularity without
// retaining full interval history.
type Tracker struct {
	Count int64
	Mean  float64
	M2    float64
}

// Update folds newValue into the running statistics.
func (t *Tracker) Update(newValue float64) {
	t.Count++
	delta := newValue - t.Mean
	t.Mean += delta / float64(t.Count)
	delta2 := newValue - t.Mean
	t.M2 += delta * delta2
}

// Variance returns the sample variance, or 0 with fewer than 2 samples.
func (t *Tracker) Variance() float64 {
	if t.Count < 2 {
		return 0.0
	}
	return t.M2 / float64(t.Count-1)
}

// StdDev returns the sample standard deviation.
func (t *Tracker) StdDev() float64 { return math.Sqrt(t.Variance()) }

// CoefficientOfVariation returns σ/μ, or 0 if the mean is 0.
func (t *Tracker) CoefficientOfVariation() float64 {
	if t.Mean == 0 {
		return 0
	}
	return t.StdDev() / t.Mean
}

// BeaconCVThreshold is the default coefficient-of-variation ceiling
// below which an interval sequence is declared beaconing.
const BeaconCVThreshold = 0.15

// BeaconCVFallback is used by call sites that want a looser bound, e.g.
// when fewer high-confidence samples are available.
const BeaconCVFallback = 0.5

// MinBeaconSamples is the minimum number of timestamps (≥5) needed to
// evaluate beaconing
const MinBeaconSamples = 5

// BeaconResult is the outcome of evaluating a sequence of connection
// timestamps to a single destination.
type BeaconResult struct {
	IsBeacon   bool
	MeanIntervalSeconds float64
	CV         float64
	Confidence float64
}

// EvaluateBeacon computes the mean inter-arrival interval and
// coefficient of variation for a strictly increasing sequence of
// connection timestamps (Unix seconds) to one destination, and applies
// the CV threshold from its Confidence is 1−CV, bumped by 0.1
// (capped at 1.0) when the mean interval falls in the canonical 30–300
// second beaconing band.
func EvaluateBeacon(timestampsSec []float64, cvThreshold float64) BeaconResult {
	if cvThreshold <= 0 {
		cvThreshold = BeaconCVThreshold
	}
	if len(timestampsSec) < MinBeaconSamples {
		return BeaconResult{}
	}

	var tr Tracker
	for i := 1; i < len(timestampsSec); i++ {
		interval := timestampsSec[i] - timestampsSec[i-1]
		if interval < 0 {
			interval = 0
		}
		tr.Update(interval)
	}

	cv := tr.CoefficientOfVariation()
	isBeacon := cv < cvThreshold

	confidence := 1 - cv
	if confidence < 0 {
		confidence = 0
	}
	if tr.Mean >= 30 && tr.Mean <= 300 {
		confidence += 0.1
		if confidence > 1.0 {
			confidence = 1.0
		}
	}

	return BeaconResult{
		IsBeacon:            isBeacon,
		MeanIntervalSeconds: tr.Mean,
		CV:                  cv,
		Confidence:          confidence,
	}
}
