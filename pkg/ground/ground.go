// Package ground implements the Task Grounder (spec §4.3): it turns an
// IntentSpec into a GroundedTask by ranking candidate tables against the
// registry. The grounder never executes anything — it only shortlists.
package ground

import (
	"sort"
	"strings"

	"github.com/reconciliation-rca/engine/pkg/catalog"
	"github.com/reconciliation-rca/engine/pkg/intent"
)

// CandidateTable is one ranked shortlist entry.
type CandidateTable struct {
	TableName  string
	System     string
	Confidence float64
}

// GroundedTask is the grounder's output (spec §4.3).
type GroundedTask struct {
	CandidateTables []CandidateTable
	RequiredGrain   []string
	// RequiredEntity is the entity that owns RequiredGrain's columns — the
	// entity whose id C5's grain resolver rebases a rule's natural grain
	// onto (spec §4.5). It's derived from whichever candidate table's
	// primary key matches RequiredGrain exactly; empty when no candidate
	// operates at that grain, which leaves rebasing to the caller's own
	// fallback (typically the rule's own natural entity, i.e. a no-op
	// rebase).
	RequiredEntity   string
	UnresolvedFields []string
}

// Weights controls the signal blend used to rank candidate tables.
// The zero value is invalid; use DefaultWeights.
type Weights struct {
	SystemMatch      float64
	EntityMatch      float64
	ColumnCoverage   float64
	GrainAlignment   float64
	SemanticTagMatch float64
}

// DefaultWeights mirrors the confidence model's style of a fixed, documented
// blend (spec §4.3: "weighted sum of those four signals, normalised to [0,1]"),
// plus a fifth signal read from the jq-evaluable column metadata filter
// (spec §3's semantic tags) rather than spec.TargetMetrics lexical matching.
func DefaultWeights() Weights {
	return Weights{SystemMatch: 0.25, EntityMatch: 0.25, ColumnCoverage: 0.2, GrainAlignment: 0.15, SemanticTagMatch: 0.15}
}

// Grounder ranks candidate tables for an IntentSpec against a registry.
type Grounder struct {
	registry *catalog.Registry
	weights  Weights
}

// New constructs a Grounder using DefaultWeights.
func New(registry *catalog.Registry) *Grounder {
	return &Grounder{registry: registry, weights: DefaultWeights()}
}

// WithWeights returns a copy of the Grounder using the given signal weights.
func (g *Grounder) WithWeights(w Weights) *Grounder {
	cp := *g
	cp.weights = w
	return &cp
}

// Ground produces a GroundedTask for the given spec. It never returns an
// error: an intent that resolves to no usable table simply yields an empty
// CandidateTables slice plus the fields that couldn't be resolved, which
// callers (the orchestrator) turn into a grounding failure if they choose to.
func (g *Grounder) Ground(spec *intent.IntentSpec) *GroundedTask {
	var candidates []CandidateTable
	var unresolved []string

	systems := spec.Systems
	if len(systems) == 0 {
		systems = g.registry.AllSystems()
		unresolved = append(unresolved, "systems")
	}

	for _, sys := range systems {
		for _, table := range g.registry.TablesForSystem(sys) {
			conf := g.score(table, spec)
			if conf <= 0 {
				continue
			}
			candidates = append(candidates, CandidateTable{
				TableName:  table.Name,
				System:     table.System,
				Confidence: conf,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].TableName < candidates[j].TableName
	})

	if len(spec.Grain) == 0 {
		unresolved = append(unresolved, "grain")
	}

	return &GroundedTask{
		CandidateTables:  candidates,
		RequiredGrain:    spec.Grain,
		RequiredEntity:   g.requiredEntity(candidates, spec.Grain),
		UnresolvedFields: unresolved,
	}
}

// requiredEntity finds the entity that owns requiredGrain by looking for a
// ranked candidate table whose primary key is exactly that grain (ignoring
// order) — the table a rule at that grain would actually read from.
func (g *Grounder) requiredEntity(candidates []CandidateTable, requiredGrain []string) string {
	if len(requiredGrain) == 0 {
		return ""
	}
	for _, c := range candidates {
		table, ok := g.registry.Table(c.TableName)
		if !ok {
			continue
		}
		if sameColumns(table.PrimaryKey, requiredGrain) {
			return table.Entity
		}
	}
	return ""
}

// sameColumns reports whether two column-name sets are identical, ignoring
// order.
func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string{}, a...)
	sb := append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// score blends five ranking signals (system match, entity match, column
// coverage, grain alignment, semantic-tag match) into one [0,1] value.
func (g *Grounder) score(table catalog.Table, spec *intent.IntentSpec) float64 {
	var total float64

	if systemMatches(table, spec.Systems) {
		total += g.weights.SystemMatch
	}
	if entityMatches(table, spec.Entities) {
		total += g.weights.EntityMatch
	}
	total += g.weights.ColumnCoverage * columnCoverage(g.registry, table, spec)
	total += g.weights.GrainAlignment * grainAlignment(table, spec.Grain)
	total += g.weights.SemanticTagMatch * semanticTagMatch(table)

	return clamp01(total)
}

// semanticTagMatch reports whether the table carries a column semantically
// tagged fact/amount, found via the jq metadata filter in
// catalog.Table.ColumnsMatching. Unlike columnCoverage's lexical tokenising
// of the rule formula, this reads the schema's own declared semantics, so a
// table whose fact column happens not to share a token with the formula
// still gets credit for materialising a metric. Tables with no tagged
// columns (the common case for metadata the loader didn't annotate) score
// zero here and fall back entirely on the other four signals.
func semanticTagMatch(table catalog.Table) float64 {
	matched, err := table.ColumnsMatching(`.tags[]? == "fact/amount"`)
	if err != nil || len(matched) == 0 {
		return 0
	}
	return 1.0
}

func systemMatches(table catalog.Table, systems []string) bool {
	if len(systems) == 0 {
		return true
	}
	for _, s := range systems {
		if s == table.System {
			return true
		}
	}
	return false
}

func entityMatches(table catalog.Table, entities []string) bool {
	if len(entities) == 0 {
		return true
	}
	for _, e := range entities {
		if e == table.Entity {
			return true
		}
	}
	return false
}

// columnCoverage is the fraction of the rules for this table's system and
// the spec's target metrics whose formula names at least one of the table's
// columns (see formulaCoversTable). It is 0.5 when the spec names no target
// metric, and 0 when no such rule exists.
func columnCoverage(reg *catalog.Registry, table catalog.Table, spec *intent.IntentSpec) float64 {
	if len(spec.TargetMetrics) == 0 {
		return 0.5
	}
	var matched, total int
	for _, metric := range spec.TargetMetrics {
		for _, rule := range reg.RulesForSystemMetric(table.System, metric) {
			total++
			if formulaCoversTable(rule.Formula, table) {
				matched++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

// formulaCoversTable is a coarse lexical check: every column-shaped token in
// the formula that also matches a column name on the table counts as
// covered. This avoids depending on the expr-lang parser just to rank
// candidates — the rule compiler (C4) is the authority on whether a formula
// actually resolves.
func formulaCoversTable(formula string, table catalog.Table) bool {
	if formula == "" {
		return false
	}
	for _, tok := range strings.FieldsFunc(formula, func(r rune) bool {
		return !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) {
		if table.HasColumn(tok) {
			return true
		}
	}
	return false
}

func grainAlignment(table catalog.Table, requiredGrain []string) float64 {
	if len(requiredGrain) == 0 {
		return 0.5
	}
	var present int
	for _, g := range requiredGrain {
		if table.HasColumn(g) {
			present++
		}
	}
	return float64(present) / float64(len(requiredGrain))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
