package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_PerfectInputsApproachOne(t *testing.T) {
	f := Factors{JoinCompleteness: 1, NullRate: 0, FilterCoverage: 1, DataFreshness: 1, SamplingRatio: 1}
	s := Score(f, DefaultWeights())
	assert.InDelta(t, 1.0, s, 1e-3)
}

func TestScore_AlwaysInUnitInterval(t *testing.T) {
	cases := []Factors{
		{},
		{JoinCompleteness: 1, NullRate: 1, FilterCoverage: 1, DataFreshness: 1, SamplingRatio: 1},
		{JoinCompleteness: 0.5, NullRate: 0.5, FilterCoverage: 0.5, DataFreshness: 0.5, SamplingRatio: 0.5},
	}
	for _, f := range cases {
		s := Score(f, DefaultWeights())
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestScore_ZeroWeightsDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Score(Factors{}, Weights{})
	})
}

func TestScore_HigherNullRateLowersConfidence(t *testing.T) {
	low := Score(Factors{JoinCompleteness: 1, NullRate: 0.9, FilterCoverage: 1, DataFreshness: 1, SamplingRatio: 1}, DefaultWeights())
	high := Score(Factors{JoinCompleteness: 1, NullRate: 0.0, FilterCoverage: 1, DataFreshness: 1, SamplingRatio: 1}, DefaultWeights())
	assert.Less(t, low, high)
}

func TestFreshness_DecaysWithAge(t *testing.T) {
	fresh := Freshness(0, 3600)
	old := Freshness(7200, 3600)
	assert.Equal(t, 1.0, fresh)
	assert.InDelta(t, 0.25, old, 1e-6)
}
