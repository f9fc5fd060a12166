// Package classify implements the Classification Engine (spec §4.9):
// deterministic, first-match-wins rules producing exactly one Classification
// per diff cell.
package classify

import (
	"time"

	"github.com/reconciliation-rca/engine/pkg/catalog"
	"github.com/reconciliation-rca/engine/pkg/diff"
)

// Kind is the classification taxonomy (spec §4.9).
type Kind string

const (
	KindMissingPopulation Kind = "missing_population"
	KindLogicDifference   Kind = "logic_difference"
	KindGrainMismatch     Kind = "grain_mismatch"
	KindFreshness         Kind = "freshness"
	KindValueMismatch     Kind = "value_mismatch"
	KindUnknown           Kind = "unknown"
)

// Classification is the class assigned to one diff cell, plus the evidence
// gap reason when classification fell through to Unknown (spec §4.9 rule 6).
type Classification struct {
	GrainValue      string
	Kind            Kind
	Reason          string
	MissingEvidence string
}

// Input bundles the context the classifier needs beyond the raw diff cell:
// the rules that produced each side (to detect a logic delta) and the
// tables involved (to look up freshness via the registry's time rules).
type Input struct {
	Difference diff.Difference
	RuleA      *catalog.Rule
	RuleB      *catalog.Rule
	TableA     string
	TableB     string
	// CardinalityRatio is the observed ratio between the finer and coarser
	// grain row counts for this cell, when the entity graph shows one side
	// rolled up from the other's finer grain (spec §4.9 rule 3). A zero
	// value means "not applicable / not computed".
	CardinalityRatio float64
	ExpectedFanout   int
}

// Classifier applies the C9 decision chain in order, first match wins.
type Classifier struct {
	registry           *catalog.Registry
	freshnessThreshold time.Duration
}

// NewClassifier constructs a Classifier bound to a registry and the
// freshness staleness threshold (spec §4.9 rule 4).
func NewClassifier(registry *catalog.Registry, freshnessThreshold time.Duration) *Classifier {
	return &Classifier{registry: registry, freshnessThreshold: freshnessThreshold}
}

// Classify applies the rules of spec §4.9 in order and returns exactly one
// Classification (spec §8 invariant 6: "Classification is total").
func (c *Classifier) Classify(in Input) Classification {
	d := in.Difference

	// Rule 1: missing_right / missing_left → missing_population.
	if d.Kind == diff.KindMissingRight || d.Kind == diff.KindMissingLeft {
		return Classification{GrainValue: d.GrainValue, Kind: KindMissingPopulation, Reason: string(d.Kind)}
	}

	if d.Kind != diff.KindMismatch {
		return Classification{GrainValue: d.GrainValue, Kind: KindUnknown, MissingEvidence: "diff cell is neither a mismatch nor a missing-side case"}
	}

	// Rule 2: a known logic delta — different formulas for the same metric
	// on the two systems.
	if in.RuleA != nil && in.RuleB != nil && in.RuleA.Formula != in.RuleB.Formula {
		return Classification{GrainValue: d.GrainValue, Kind: KindLogicDifference, Reason: "formulas differ: " + in.RuleA.Formula + " vs " + in.RuleB.Formula}
	}

	// Rule 3: one side is a rolled-up aggregate of the other's finer grain,
	// and the cardinality ratio is not an integer multiple of the expected
	// fan-out.
	if in.CardinalityRatio > 0 && in.ExpectedFanout > 0 {
		remainder := in.CardinalityRatio - float64(int64(in.CardinalityRatio/float64(in.ExpectedFanout)))*float64(in.ExpectedFanout)
		if remainder > 1e-9 {
			return Classification{GrainValue: d.GrainValue, Kind: KindGrainMismatch, Reason: "cardinality ratio is not an integer multiple of the expected fan-out"}
		}
	}

	// Rule 4: one side's last_updated is older than the freshness threshold.
	if c.isStale(in.TableA) || c.isStale(in.TableB) {
		return Classification{GrainValue: d.GrainValue, Kind: KindFreshness, Reason: "source table is older than the freshness threshold"}
	}

	// Rule 5: otherwise, a plain value mismatch.
	return Classification{GrainValue: d.GrainValue, Kind: KindValueMismatch}
}

func (c *Classifier) isStale(table string) bool {
	if c.registry == nil || table == "" {
		return false
	}
	rule, ok := c.registry.TimeRule(table)
	if !ok || rule.LastUpdated.IsZero() {
		return false
	}
	return time.Since(rule.LastUpdated) > c.freshnessThreshold
}
