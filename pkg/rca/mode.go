// Package rca supplements the spec with progressive execution modes
// recovered from original_source/rust/core/rca/mode.rs: Fast (sampled
// triage), Deep (full deterministic diff), and Forensic (full lineage +
// evidence retention + deterministic replay). It refines C2 (mode selection
// from query text) and C10 (escalation on low confidence) rather than
// introducing a new pipeline stage.
package rca

import "strings"

// Mode is the execution mode for one reconciliation run.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeDeep     Mode = "deep"
	ModeForensic Mode = "forensic"
)

// LineageLevel controls how much of the plan's execution is traced.
type LineageLevel string

const (
	LineageNone            LineageLevel = "none"
	LineageJoinsAndFilters LineageLevel = "joins_and_filters"
	LineageFull            LineageLevel = "full"
)

// SamplingStrategy names how Fast mode selects its sample.
type SamplingStrategy string

const (
	SamplingRandom     SamplingStrategy = "random"
	SamplingTopN       SamplingStrategy = "top_n"
	SamplingStratified SamplingStrategy = "stratified"
)

// SamplingConfig configures Fast mode's reduced-volume scan.
type SamplingConfig struct {
	Strategy   SamplingStrategy
	SampleSize int
	TopN       int
	OrderBy    string
	Column     string // stratification column, when Strategy == SamplingStratified
}

// Config is the full mode configuration threaded through the orchestrator.
type Config struct {
	Mode                Mode
	Sampling            *SamplingConfig // nil in Deep/Forensic
	LineageLevel        LineageLevel
	StoreEvidence       bool
	EnableReplay        bool
	ConfidenceThreshold float64
	MismatchThreshold   float64
}

// Fast returns the default Fast-mode configuration: sampled, heuristic,
// cheapest to run, and the default for a bare query.
func Fast() Config {
	return Config{
		Mode:                ModeFast,
		Sampling:            &SamplingConfig{Strategy: SamplingRandom, SampleSize: 10000},
		LineageLevel:        LineageNone,
		ConfidenceThreshold: 0.6,
		MismatchThreshold:   1000.0,
	}
}

// Deep returns the Deep-mode configuration: full deterministic diff with
// join/filter lineage, no sampling.
func Deep() Config {
	return Config{
		Mode:                ModeDeep,
		LineageLevel:        LineageJoinsAndFilters,
		ConfidenceThreshold: 0.7,
		MismatchThreshold:   100.0,
	}
}

// Forensic returns the Forensic-mode configuration: full rule lineage,
// evidence retention, and deterministic replay enabled. MismatchThreshold
// is zero — Forensic mode always investigates, it never skips a cell as
// too small to matter.
func Forensic() Config {
	return Config{
		Mode:                ModeForensic,
		LineageLevel:        LineageFull,
		StoreEvidence:       true,
		EnableReplay:        true,
		ConfidenceThreshold: 0.9,
		MismatchThreshold:   0.0,
	}
}

// ShouldTraceJoins reports whether join/filter steps should be traced.
func (c Config) ShouldTraceJoins() bool {
	return c.LineageLevel == LineageJoinsAndFilters || c.LineageLevel == LineageFull
}

// ShouldTraceRules reports whether rule-level lineage should be captured —
// only Forensic mode retains this (spec §9's deterministic replay
// testable property depends on it).
func (c Config) ShouldTraceRules() bool {
	return c.LineageLevel == LineageFull
}

// ShouldSample reports whether the executor should scan a reduced sample
// rather than the full table.
func (c Config) ShouldSample() bool {
	return c.Sampling != nil
}

// UseDeterministicDiff reports whether the grain diff engine (C7) should
// run its full deterministic diff rather than a cheaper hash-based
// presence check. Deep and Forensic both require it; only Fast mode may
// substitute a hash diff for triage.
func (c Config) UseDeterministicDiff() bool {
	return c.Mode == ModeDeep || c.Mode == ModeForensic
}

// ModeSelector chooses and escalates RCA modes.
type ModeSelector struct{}

// SelectFromQuery inspects the free-text query for explicit mode signals
// (spec supplement, original_source's ModeSelector::select_from_query):
// "prove"/"audit"/"regulator"/"court" escalate straight to Forensic,
// "which rows"/"exact rows"/"show me" select Deep, everything else
// defaults to Fast.
func (ModeSelector) SelectFromQuery(query string) Mode {
	lower := strings.ToLower(query)
	switch {
	case containsAny(lower, "prove", "audit", "regulator", "court"):
		return ModeForensic
	case containsAny(lower, "which rows", "exact rows", "show me"):
		return ModeDeep
	default:
		return ModeFast
	}
}

// ShouldEscalate reports whether a Fast-mode result should be re-run in
// Deep mode: confidence fell below the configured threshold, or the
// mismatch magnitude exceeded it. Returns the mode to escalate to and
// whether escalation is warranted at all.
func (ModeSelector) ShouldEscalate(confidence, mismatchMagnitude float64, cfg Config) (Mode, bool) {
	if confidence < cfg.ConfidenceThreshold {
		return ModeDeep, true
	}
	if mismatchMagnitude > cfg.MismatchThreshold {
		return ModeDeep, true
	}
	return "", false
}

// ShouldEscalateToForensic reports whether a Deep-mode result warrants a
// further escalation to Forensic — either the caller explicitly asked for
// one, or the explanation quality (e.g. classification confidence) was
// too low to stand on its own.
func (ModeSelector) ShouldEscalateToForensic(explanationQuality float64, userRequested bool) bool {
	return userRequested || explanationQuality < 0.7
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
