// Package confidence implements the Confidence Model (spec §4.10): a
// weighted geometric mean of per-run signals, always in [0,1] and defined
// even when a signal is zero.
package confidence

import "math"

// Factors are the five per-run signals spec §4.10 names.
type Factors struct {
	JoinCompleteness float64 // fraction of join keys matched
	NullRate         float64 // in the metric column; lower is better
	FilterCoverage   float64 // rows after filter / rows before
	DataFreshness    float64 // exponential decay over age, already in [0,1]
	SamplingRatio    float64 // 1.0 if no sampling
}

// Weights are the per-factor weights of the geometric mean. They need not
// sum to 1; Score normalises by their sum so arbitrary weight sets still
// produce a score in [0,1].
type Weights struct {
	JoinCompleteness float64
	NullRate         float64
	FilterCoverage   float64
	DataFreshness    float64
	SamplingRatio    float64
}

// DefaultWeights gives join completeness and data freshness the largest
// share, matching the factors an RCA consumer most directly trusts the
// metric's accuracy on.
func DefaultWeights() Weights {
	return Weights{
		JoinCompleteness: 0.3,
		NullRate:         0.2,
		FilterCoverage:   0.15,
		DataFreshness:    0.25,
		SamplingRatio:    0.1,
	}
}

// Score computes confidence as a weighted geometric mean of f's components
// (spec §4.10: "Output ∈ [0, 1] as a weighted geometric mean with
// per-factor weights"). null_rate is inverted (1 - null_rate) since a
// higher null rate should lower confidence, not raise it. Every component
// is clamped to [epsilon, 1] first so a zero signal never forces the whole
// geometric mean to zero and the result stays defined for empty inputs
// (spec: "defined even for empty/zero inputs (no division by zero)").
func Score(f Factors, w Weights) float64 {
	const epsilon = 1e-6

	components := []struct {
		value  float64
		weight float64
	}{
		{clamp(f.JoinCompleteness, epsilon), w.JoinCompleteness},
		{clamp(1-f.NullRate, epsilon), w.NullRate},
		{clamp(f.FilterCoverage, epsilon), w.FilterCoverage},
		{clamp(f.DataFreshness, epsilon), w.DataFreshness},
		{clamp(f.SamplingRatio, epsilon), w.SamplingRatio},
	}

	var weightSum float64
	for _, c := range components {
		weightSum += c.weight
	}
	if weightSum <= 0 {
		return 0
	}

	var logSum float64
	for _, c := range components {
		logSum += (c.weight / weightSum) * math.Log(c.value)
	}
	score := math.Exp(logSum)
	return clamp(score, 0)
}

func clamp(v, min float64) float64 {
	if v < min {
		return min
	}
	if v > 1 {
		return 1
	}
	return v
}

// Freshness converts an age into a decayed [0,1] freshness score using
// exponential decay with the given half-life (spec §4.10: "data_freshness
// (exponential decay over age)").
func Freshness(ageSeconds, halfLifeSeconds float64) float64 {
	if halfLifeSeconds <= 0 {
		return 1
	}
	if ageSeconds <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * ageSeconds / halfLifeSeconds)
}
