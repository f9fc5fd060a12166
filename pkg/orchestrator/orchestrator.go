// Package orchestrator wires C2 through C11 into the single top-level task
// described in spec §5: one request maps to one task, the two sides'
// plans run concurrently and join at the diff step.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/reconciliation-rca/engine/pkg/attribution"
	"github.com/reconciliation-rca/engine/pkg/catalog"
	"github.com/reconciliation-rca/engine/pkg/classify"
	"github.com/reconciliation-rca/engine/pkg/confidence"
	"github.com/reconciliation-rca/engine/pkg/diff"
	"github.com/reconciliation-rca/engine/pkg/exec"
	"github.com/reconciliation-rca/engine/pkg/grain"
	"github.com/reconciliation-rca/engine/pkg/ground"
	"github.com/reconciliation-rca/engine/pkg/intent"
	"github.com/reconciliation-rca/engine/pkg/llmclient"
	"github.com/reconciliation-rca/engine/pkg/planner"
	"github.com/reconciliation-rca/engine/pkg/rca"
	"github.com/reconciliation-rca/engine/pkg/rcerrors"
	"github.com/reconciliation-rca/engine/pkg/safety"
	"github.com/reconciliation-rca/engine/pkg/trace"
)

// Request is one reconciliation query (spec §6 POST /rca body).
type Request struct {
	Query     string
	SessionID string
}

// Classified pairs one attributed difference with its root-cause
// classification — the per-cell shape the /rca response names.
type Classified struct {
	attribution.Attributed
	Classification classify.Classification
}

// Response is the reconciliation result (spec §6 POST /rca response).
type Response struct {
	Query          string
	SystemA        string
	SystemB        string
	Metric         string
	PopulationDiff diff.Result
	DataDiff       []Classified
	Confidence     float64
	TraceID        string
	Mode           rca.Mode
}

// Orchestrator owns one instance of every component and runs requests end
// to end. It holds no per-request state — every field is either read-only
// (the registry) or itself safe for concurrent use.
type Orchestrator struct {
	registry      *catalog.Registry
	intentC       *intent.Compiler
	grounder      *ground.Grounder
	ruleCompiler  *planner.RuleCompiler
	resolver      *grain.Resolver
	limits        safety.Limits
	diffEngine    *diff.Engine
	attribution   *attribution.Engine
	classifier    *classify.Classifier
	confWeights   confidence.Weights
	modeSelector  rca.ModeSelector
	traceCapacity int
}

// New wires every component against a shared registry. completer may be nil
// (the intent compiler then always falls back to its heuristic parser).
func New(registry *catalog.Registry, completer llmclient.Completer, limits safety.Limits) *Orchestrator {
	return &Orchestrator{
		registry:      registry,
		intentC:       intent.New(registry, completer),
		grounder:      ground.New(registry),
		ruleCompiler:  planner.NewRuleCompiler(registry),
		resolver:      grain.NewResolver(registry, int(limits.MaxJoinFanout)),
		limits:        limits,
		diffEngine:    diff.NewEngine(25),
		attribution:   attribution.NewEngine(3),
		classifier:    classify.NewClassifier(registry, 24*time.Hour),
		confWeights:   confidence.DefaultWeights(),
		traceCapacity: 256,
	}
}

// Run executes the full C2→C11 pipeline for one request (spec §5's single
// top-level task). On success it returns a Response and the run's trace;
// on failure the trace is still returned so the caller can inspect partial
// progress (spec §5 "on expiry it returns timeout with the partial trace").
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, *trace.ExecutionTrace, error) {
	requestID := uuid.NewString()
	tr := trace.NewExecutionTrace(requestID, o.traceCapacity)
	mode := rca.ModeSelector{}.SelectFromQuery(req.Query)

	spec, err := o.intentC.Compile(ctx, req.Query, nil)
	if err != nil {
		return nil, tr, fmt.Errorf("compiling intent: %w", err)
	}
	if len(spec.Systems) < 2 {
		return nil, tr, fmt.Errorf("reconciliation requires two systems, got %v: %w", spec.Systems, rcerrors.ErrAmbiguousIntent)
	}
	if len(spec.TargetMetrics) == 0 {
		return nil, tr, fmt.Errorf("no target metric resolved: %w", rcerrors.ErrAmbiguousIntent)
	}
	systemA, systemB := spec.Systems[0], spec.Systems[1]
	metric := spec.TargetMetrics[0]

	grounded := o.grounder.Ground(spec)
	tr.SetGrainResolutionPath(grounded.RequiredGrain)

	ruleA, err := o.pickRule(systemA, metric)
	if err != nil {
		return nil, tr, err
	}
	ruleB, err := o.pickRule(systemB, metric)
	if err != nil {
		return nil, tr, err
	}

	requiredGrain := grounded.RequiredGrain
	if len(requiredGrain) == 0 {
		requiredGrain = ruleA.TargetGrain
	}
	requiredEntity := grounded.RequiredEntity

	var resA, resB *exec.ExecutionResult
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		resA, err = o.runSide(egctx, tr, ruleA, requiredGrain, requiredEntity)
		return err
	})
	eg.Go(func() error {
		var err error
		resB, err = o.runSide(egctx, tr, ruleB, requiredGrain, requiredEntity)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, tr, fmt.Errorf("running plans: %w", err)
	}

	metricObj, _ := o.registry.Metric(metric)
	tol := diff.Tolerance{}
	if metricObj != nil {
		tol = diff.Tolerance{AbsTolerance: metricObj.AbsTolerance, RelTolerance: metricObj.RelTolerance}
	}

	diffResult, err := o.diffEngine.Diff(resA, resB, ruleA.Metric, ruleB.Metric, tol)
	if err != nil {
		return nil, tr, fmt.Errorf("diffing grain populations: %w", err)
	}

	attributed := o.attribution.Attribute(diffResult, resA, resB)
	classified := make([]Classified, 0, len(attributed))
	for _, a := range attributed {
		cls := o.classifier.Classify(classify.Input{
			Difference: a.Difference,
			RuleA:      ruleA,
			RuleB:      ruleB,
			TableA:     seedTableName(o.registry, ruleA),
			TableB:     seedTableName(o.registry, ruleB),
		})
		classified = append(classified, Classified{Attributed: a, Classification: cls})
	}

	score := o.scoreConfidence(resA, resB)
	tr.RecordConfidence(score)

	resp := &Response{
		Query:          req.Query,
		SystemA:        systemA,
		SystemB:        systemB,
		Metric:         metric,
		PopulationDiff: *diffResult,
		DataDiff:       classified,
		Confidence:     score,
		TraceID:        requestID,
		Mode:           mode,
	}

	if mode == rca.ModeFast {
		selector := rca.ModeSelector{}
		maxImpact := 0.0
		for _, d := range diffResult.Differences {
			if d.Impact > maxImpact {
				maxImpact = d.Impact
			}
		}
		if escalateTo, should := selector.ShouldEscalate(score, maxImpact, rca.Fast()); should {
			resp.Mode = escalateTo
		}
	}

	return resp, tr, nil
}

func (o *Orchestrator) pickRule(system, metric string) (*catalog.Rule, error) {
	rules := o.registry.RulesForSystemMetric(system, metric)
	if len(rules) == 0 {
		return nil, fmt.Errorf("no rule materialises metric %q for system %q: %w", metric, system, rcerrors.ErrMetadataNotFound)
	}
	return rules[0], nil
}

func (o *Orchestrator) runSide(ctx context.Context, tr *trace.ExecutionTrace, rule *catalog.Rule, requiredGrain []string, requiredEntity string) (*exec.ExecutionResult, error) {
	start := time.Now()
	plan, err := o.ruleCompiler.Compile(rule.ID)
	if err != nil {
		return nil, fmt.Errorf("compiling rule %q: %w", rule.ID, err)
	}

	naturalEntity := rule.SourceEntities[0]
	// grounded.RequiredEntity is only populated when a candidate table
	// actually operates at requiredGrain. It is empty otherwise, both when
	// requiredGrain came from the rule's own target grain and when no
	// candidate table is keyed at the requested grain; rebasing then targets
	// the rule's own entity, so no join is added.
	targetEntity := requiredEntity
	if targetEntity == "" {
		targetEntity = naturalEntity
	}
	plan, err = o.resolver.Resolve(plan, naturalEntity, targetEntity, requiredGrain)
	if err != nil {
		return nil, fmt.Errorf("resolving grain for rule %q: %w", rule.ID, err)
	}

	executor := exec.NewExecutor(o.registry, o.limits)
	result, err := executor.Execute(ctx, plan)
	tr.RecordNode(trace.NodeExecution{
		NodeID:    rule.ID,
		NodeType:  "plan",
		StartTime: start,
		EndTime:   time.Now(),
		Duration:  time.Since(start),
		Success:   err == nil,
		Error:     errString(err),
	})
	if err != nil {
		return nil, fmt.Errorf("executing rule %q: %w", rule.ID, err)
	}
	if result.RowCount > 0 {
		tr.RecordNode(trace.NodeExecution{NodeID: rule.ID, NodeType: "rows", RowsProcessed: result.RowCount, Success: true})
	}
	return result, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// scoreConfidence blends both sides' ExecutionMetadata into the five
// signals C10 scores over; each factor is the average of the two sides.
func (o *Orchestrator) scoreConfidence(a, b *exec.ExecutionResult) float64 {
	f := confidence.Factors{
		JoinCompleteness: avg(joinCompleteness(a), joinCompleteness(b)),
		NullRate:         avg(nullRate(a), nullRate(b)),
		FilterCoverage:   avg(filterCoverage(a), filterCoverage(b)),
		DataFreshness:    1.0,
		SamplingRatio:    avg(a.Metadata.SamplingRatio, b.Metadata.SamplingRatio),
	}
	return confidence.Score(f, o.confWeights)
}

func joinCompleteness(r *exec.ExecutionResult) float64 {
	if r.Metadata.JoinTotalRows == 0 {
		return 1.0
	}
	return float64(r.Metadata.JoinMatchedRows) / float64(r.Metadata.JoinTotalRows)
}

func nullRate(r *exec.ExecutionResult) float64 {
	if r.RowCount == 0 {
		return 0
	}
	return float64(r.Metadata.NullMetricRows) / float64(r.RowCount)
}

func filterCoverage(r *exec.ExecutionResult) float64 {
	if r.Metadata.RowsBeforeFilter == 0 {
		return 1.0
	}
	return float64(r.Metadata.RowsAfterFilter) / float64(r.Metadata.RowsBeforeFilter)
}

func avg(x, y float64) float64 { return (x + y) / 2 }

func seedTableName(reg *catalog.Registry, rule *catalog.Rule) string {
	if len(rule.SourceEntities) == 0 {
		return ""
	}
	for _, t := range reg.TablesForSystem(rule.System) {
		if t.Entity == rule.SourceEntities[0] {
			return t.Name
		}
	}
	return ""
}
