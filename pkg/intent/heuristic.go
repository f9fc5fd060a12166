package intent

import "strings"

// compileHeuristic implements spec §4.2's fallback parser: keyword matches
// against registry ids, flagged low_confidence since there's no semantic
// understanding behind the match — just substring presence.
func (c *Compiler) compileHeuristic(text string, sess *SessionContext) *IntentSpec {
	lower := strings.ToLower(text)

	spec := &IntentSpec{
		TaskType:      classifyTaskType(lower),
		Systems:       matchKnown(lower, c.registry.AllSystems()),
		TargetMetrics: matchKnown(lower, metricIDs(c.registry)),
		LowConfidence: true,
	}

	if len(spec.Systems) == 0 && sess != nil {
		spec.Systems = sess.PreviousSystems
	}
	if len(spec.TargetMetrics) == 0 && sess != nil {
		spec.TargetMetrics = sess.PreviousMetrics
	}
	return spec
}

func classifyTaskType(lower string) TaskType {
	switch {
	case strings.Contains(lower, "why") || strings.Contains(lower, "root cause") || strings.Contains(lower, "mismatch"):
		return TaskRCA
	case strings.Contains(lower, "grain") || strings.Contains(lower, "granularity"):
		return TaskGrainAnalysis
	default:
		return TaskMetricQuery
	}
}

// matchKnown returns every candidate id that appears as a substring of the
// query text, preserving the registry's own ordering.
func matchKnown(lower string, candidates []string) []string {
	var out []string
	for _, cand := range candidates {
		if cand == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(cand)) {
			out = append(out, cand)
		}
	}
	return out
}
