package restapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reconciliation-rca/engine/pkg/catalog"
	"github.com/reconciliation-rca/engine/pkg/freshness"
	"github.com/reconciliation-rca/engine/pkg/orchestrator"
)

// ReconcileHandlers serves spec §6's single reconciliation endpoint.
type ReconcileHandlers struct {
	orch *orchestrator.Orchestrator
}

func NewReconcileHandlers(orch *orchestrator.Orchestrator) *ReconcileHandlers {
	return &ReconcileHandlers{orch: orch}
}

type rcaRequestBody struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id"`
}

type comparisonBody struct {
	PopulationDiff any `json:"population_diff"`
	DataDiff       any `json:"data_diff"`
}

type rcaResponseBody struct {
	Query          string  `json:"query"`
	SystemA        string  `json:"system_a"`
	SystemB        string  `json:"system_b"`
	Metric         string  `json:"metric"`
	Comparison     comparisonBody `json:"comparison"`
	Classifications any    `json:"classifications"`
	Confidence     float64 `json:"confidence"`
	TraceID        string  `json:"trace_id"`
	Mode           string  `json:"mode"`
}

// HandleRCA implements POST /rca (spec §6): one query in, one reconciliation
// result out. Errors are translated through rcerrors' taxonomy so the HTTP
// status always matches the kind of failure the pipeline hit.
func (h *ReconcileHandlers) HandleRCA(c *gin.Context) {
	var body rcaRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apiErr := NewAPIError("INVALID_JSON", err.Error(), http.StatusBadRequest)
		c.JSON(apiErr.HTTPStatus, apiErr)
		return
	}

	resp, tr, err := h.orch.Run(c.Request.Context(), orchestrator.Request{
		Query:     body.Query,
		SessionID: body.SessionID,
	})
	if err != nil {
		apiErr := TranslateError(err)
		// A partial trace is still useful to the caller on timeout / data_too_large
		// (spec §7): surface it alongside the error rather than discarding it.
		if tr != nil {
			c.Header("X-Trace-ID", tr.RequestID)
		}
		c.JSON(apiErr.HTTPStatus, apiErr)
		return
	}

	c.JSON(http.StatusOK, rcaResponseBody{
		Query:   resp.Query,
		SystemA: resp.SystemA,
		SystemB: resp.SystemB,
		Metric:  resp.Metric,
		Comparison: comparisonBody{
			PopulationDiff: resp.PopulationDiff,
			DataDiff:       resp.DataDiff,
		},
		Classifications: resp.DataDiff,
		Confidence:      resp.Confidence,
		TraceID:         resp.TraceID,
		Mode:             string(resp.Mode),
	})
}

// HealthHandlers serves spec §6's liveness endpoint.
type HealthHandlers struct {
	registry  *catalog.Registry
	freshness *freshness.Monitor
	startedAt time.Time
}

func NewHealthHandlers(registry *catalog.Registry, monitor *freshness.Monitor) *HealthHandlers {
	return &HealthHandlers{registry: registry, freshness: monitor, startedAt: time.Now()}
}

func (h *HealthHandlers) HandleHealth(c *gin.Context) {
	body := gin.H{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"systems":        len(h.registry.AllSystems()),
		"metrics":        len(h.registry.AllMetrics()),
	}
	if h.freshness != nil {
		stale, checkedAt := h.freshness.Snapshot()
		body["stale_tables"] = len(stale)
		if !checkedAt.IsZero() {
			body["freshness_checked_at"] = checkedAt.UTC().Format(time.RFC3339)
		}
	}
	c.JSON(http.StatusOK, body)
}

// SearchHandlers serves spec §6's free-text lookup against registry labels.
type SearchHandlers struct {
	registry *catalog.Registry
}

func NewSearchHandlers(registry *catalog.Registry) *SearchHandlers {
	return &SearchHandlers{registry: registry}
}

type searchResult struct {
	Kind string `json:"kind"` // "system" | "metric"
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HandleSearch implements GET /search?q=... — a case-insensitive substring
// match over system ids and metric ids/display names, the minimal lookup
// the front-end needs to offer autocomplete without exposing row data.
func (h *SearchHandlers) HandleSearch(c *gin.Context) {
	q := strings.ToLower(strings.TrimSpace(c.Query("q")))
	results := make([]searchResult, 0)

	for _, sys := range h.registry.AllSystems() {
		if q == "" || strings.Contains(strings.ToLower(sys), q) {
			results = append(results, searchResult{Kind: "system", ID: sys, Name: sys})
		}
	}
	for _, m := range h.registry.AllMetrics() {
		if q == "" || strings.Contains(strings.ToLower(m.ID), q) || strings.Contains(strings.ToLower(m.DisplayName), q) {
			results = append(results, searchResult{Kind: "metric", ID: m.ID, Name: m.DisplayName})
		}
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}
