package trace

import "github.com/reconciliation-rca/engine/pkg/planner"

// ForensicBundle extends an ExecutionTrace with the evidence Forensic mode
// retains beyond Fast/Deep mode's summary trace: the fully-resolved
// LogicalPlan for each side, so a request can be replayed byte-for-byte
// without re-deriving the join path or grain rebasing (original_source
// rust/core/rca/mode.rs's Forensic mode: full evidence retention for audit).
type ForensicBundle struct {
	Trace *ExecutionTrace
	PlanA *planner.LogicalPlan
	PlanB *planner.LogicalPlan
}

// NewForensicBundle packages a trace with both sides' resolved plans,
// enabling deterministic replay (spec §9's replay design note).
func NewForensicBundle(t *ExecutionTrace, planA, planB *planner.LogicalPlan) *ForensicBundle {
	return &ForensicBundle{Trace: t, PlanA: planA, PlanB: planB}
}
