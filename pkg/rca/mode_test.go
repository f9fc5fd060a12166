package rca

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModeSelector_SelectFromQuery(t *testing.T) {
	var s ModeSelector
	assert.Equal(t, ModeForensic, s.SelectFromQuery("can you prove this for the regulator?"))
	assert.Equal(t, ModeDeep, s.SelectFromQuery("show me the exact rows that differ"))
	assert.Equal(t, ModeFast, s.SelectFromQuery("why is balance off"))
}

func TestModeSelector_ShouldEscalate_LowConfidence(t *testing.T) {
	var s ModeSelector
	cfg := Fast()
	mode, escalate := s.ShouldEscalate(0.3, 0, cfg)
	assert.True(t, escalate)
	assert.Equal(t, ModeDeep, mode)
}

func TestModeSelector_ShouldEscalate_LargeMismatch(t *testing.T) {
	var s ModeSelector
	cfg := Fast()
	mode, escalate := s.ShouldEscalate(0.9, 5000, cfg)
	assert.True(t, escalate)
	assert.Equal(t, ModeDeep, mode)
}

func TestModeSelector_ShouldNotEscalate_WithinThresholds(t *testing.T) {
	var s ModeSelector
	cfg := Fast()
	_, escalate := s.ShouldEscalate(0.9, 10, cfg)
	assert.False(t, escalate)
}

func TestForensicConfig_AlwaysInvestigates(t *testing.T) {
	cfg := Forensic()
	assert.True(t, cfg.StoreEvidence)
	assert.True(t, cfg.EnableReplay)
	assert.Equal(t, 0.0, cfg.MismatchThreshold)
	assert.True(t, cfg.ShouldTraceRules())
}

func TestDeepConfig_HasNoSampling(t *testing.T) {
	cfg := Deep()
	assert.False(t, cfg.ShouldSample())
	assert.True(t, cfg.UseDeterministicDiff())
	assert.True(t, cfg.ShouldTraceJoins())
	assert.False(t, cfg.ShouldTraceRules())
}

func TestFastConfig_Samples(t *testing.T) {
	cfg := Fast()
	assert.True(t, cfg.ShouldSample())
	assert.False(t, cfg.UseDeterministicDiff())
}
