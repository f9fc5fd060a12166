package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/reconciliation-rca/engine/pkg/catalog"
	"github.com/reconciliation-rca/engine/pkg/llmclient"
	"github.com/reconciliation-rca/engine/pkg/rcerrors"
)

// promptTemplate is the bounded prompt sent to the LLM — it is grounded
// entirely in registry ids, never in row data (spec §4.2, §9 "The engine
// never sends raw data rows to the LLM").
const promptTemplate = `You compile a user's reconciliation question into JSON.
Known systems: %s
Known metrics: %s

Respond with ONLY a JSON object of this shape, no prose:
{"task_type":"RCA|metric_query|grain_analysis","systems":["..."],"target_metrics":["..."],"entities":["..."],"constraints":["..."],"grain":["..."],"time_scope":"..."}

User question: %s`

// Compiler turns free text into a validated IntentSpec.
type Compiler struct {
	registry  *catalog.Registry
	completer llmclient.Completer
	validate  *validator.Validate
	maxTokens int
	deadline  time.Duration
}

// New constructs a Compiler. completer may be nil, in which case every call
// goes straight to the heuristic fallback (spec §4.2 "if the LLM is
// unavailable ... a heuristic parser ... produces a best-effort spec").
func New(registry *catalog.Registry, completer llmclient.Completer) *Compiler {
	return &Compiler{
		registry:  registry,
		completer: completer,
		validate:  validator.New(),
		maxTokens: 512,
		deadline:  8 * time.Second,
	}
}

// Compile produces an IntentSpec from free text and optional session
// context. It never returns a partially-validated spec: either the spec
// passes structural validation and every system and target metric it names
// resolves against the registry (see groundAgainstRegistry), or an error
// classifying as ambiguous_intent or metadata is returned.
func (c *Compiler) Compile(ctx context.Context, text string, sess *SessionContext) (*IntentSpec, error) {
	spec, err := c.compileWithLLM(ctx, text)
	if err != nil {
		spec = c.compileHeuristic(text, sess)
	}
	if spec == nil {
		spec = c.compileHeuristic(text, sess)
	}

	if verr := c.validate.Struct(spec); verr != nil {
		return nil, fmt.Errorf("intent spec failed structural validation: %w: %s", rcerrors.ErrAmbiguousIntent, verr.Error())
	}
	if err := c.groundAgainstRegistry(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

func (c *Compiler) compileWithLLM(ctx context.Context, text string) (*IntentSpec, error) {
	if c.completer == nil {
		return nil, fmt.Errorf("intent: no LLM completer configured")
	}
	prompt := fmt.Sprintf(promptTemplate,
		strings.Join(c.registry.AllSystems(), ", "),
		strings.Join(metricIDs(c.registry), ", "),
		text,
	)
	raw, err := c.completer.Complete(ctx, prompt, c.maxTokens, c.deadline)
	if err != nil {
		return nil, fmt.Errorf("intent: LLM completion failed: %w", err)
	}

	var spec IntentSpec
	if err := json.Unmarshal([]byte(extractJSON(raw)), &spec); err != nil {
		return nil, fmt.Errorf("intent: could not parse LLM response as JSON: %w", err)
	}
	return &spec, nil
}

// extractJSON trims any leading/trailing prose the model added despite being
// asked not to — LLM output is never treated as authoritative (spec §9), and
// parsing defensively here is cheaper than a second round trip.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func metricIDs(r *catalog.Registry) []string {
	metrics := r.AllMetrics()
	ids := make([]string, 0, len(metrics))
	for _, m := range metrics {
		ids = append(ids, m.ID)
	}
	return ids
}

// groundAgainstRegistry validates every system and metric named in the spec
// exists in the registry (spec §4.2 errors: "missing_metadata"), and that
// each named system has at least one rule for each named metric. It does not
// check for ambiguity: a system/metric pair with several candidate rules is
// accepted as is.
func (c *Compiler) groundAgainstRegistry(spec *IntentSpec) error {
	known := map[string]bool{}
	for _, s := range c.registry.AllSystems() {
		known[s] = true
	}
	for _, s := range spec.Systems {
		if !known[s] {
			return fmt.Errorf("intent: unknown system %q: %w", s, rcerrors.ErrMetadataNotFound)
		}
	}

	metricKnown := map[string]bool{}
	for _, m := range c.registry.AllMetrics() {
		metricKnown[m.ID] = true
	}
	for _, m := range spec.TargetMetrics {
		if !metricKnown[m] {
			return fmt.Errorf("intent: unknown metric %q: %w", m, rcerrors.ErrMetadataNotFound)
		}
	}

	for _, sys := range spec.Systems {
		for _, m := range spec.TargetMetrics {
			if len(c.registry.RulesForSystemMetric(sys, m)) == 0 {
				return fmt.Errorf("intent: no rule materialises metric %q for system %q: %w", m, sys, rcerrors.ErrMetadataNotFound)
			}
		}
	}
	return nil
}
