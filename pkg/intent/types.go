// Package intent implements the Intent Compiler (spec §4.2): free text plus
// optional session context, turned into a validated IntentSpec.
package intent

// TaskType is the kind of analysis the user is asking for.
type TaskType string

const (
	TaskRCA           TaskType = "RCA"
	TaskMetricQuery   TaskType = "metric_query"
	TaskGrainAnalysis TaskType = "grain_analysis"
)

// IntentSpec is the compiler's output (spec §4.2).
type IntentSpec struct {
	TaskType            TaskType `json:"task_type" validate:"required,oneof=RCA metric_query grain_analysis"`
	Systems             []string `json:"systems" validate:"required,min=1,max=2,dive,required"`
	TargetMetrics       []string `json:"target_metrics" validate:"required,min=1,dive,required"`
	Entities            []string `json:"entities"`
	Constraints         []string `json:"constraints"`
	Grain               []string `json:"grain"`
	TimeScope           string   `json:"time_scope,omitempty"`
	ValidationConstraint string  `json:"validation_constraint,omitempty"`

	// LowConfidence marks specs produced by the heuristic fallback parser
	// rather than the LLM (spec §4.2 "Fallback").
	LowConfidence bool `json:"-"`
}

// SessionContext carries prior-turn state an interactive caller may supply
// to disambiguate a follow-up query. Nil is a valid zero value.
type SessionContext struct {
	PreviousSystems []string
	PreviousMetrics []string
}
