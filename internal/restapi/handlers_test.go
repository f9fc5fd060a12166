package restapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconciliation-rca/engine/pkg/catalog"
	"github.com/reconciliation-rca/engine/pkg/orchestrator"
	"github.com/reconciliation-rca/engine/pkg/safety"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req, _ := http.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func writeCSV(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func fixtureRegistry(t *testing.T) *catalog.Registry {
	t.Helper()
	dir := t.TempDir()
	ledgerPath := writeCSV(t, dir, "ledger.csv", "loan_id,balance\nL1,100\nL2,50\n")
	billingPath := writeCSV(t, dir, "billing.csv", "loan_id,balance\nL1,100\nL2,40\n")

	entities := []catalog.Entity{{ID: "loan", Name: "Loan"}}
	tables := []catalog.Table{
		{
			Name: "ledger.loans", System: "ledger", Entity: "loan", PhysicalPath: ledgerPath,
			Columns: []catalog.Column{
				{Name: "loan_id", Type: catalog.DataTypeString},
				{Name: "balance", Type: catalog.DataTypeFloat64},
			},
			PrimaryKey: []string{"loan_id"},
		},
		{
			Name: "billing.loans", System: "billing", Entity: "loan", PhysicalPath: billingPath,
			Columns: []catalog.Column{
				{Name: "loan_id", Type: catalog.DataTypeString},
				{Name: "balance", Type: catalog.DataTypeFloat64},
			},
			PrimaryKey: []string{"loan_id"},
		},
	}
	rules := []catalog.Rule{
		{ID: "ledger.balance", System: "ledger", Metric: "balance", SourceEntities: []string{"loan"}, Formula: "balance", TargetGrain: []string{"loan_id"}},
		{ID: "billing.balance", System: "billing", Metric: "balance", SourceEntities: []string{"loan"}, Formula: "balance", TargetGrain: []string{"loan_id"}},
	}
	metrics := []catalog.Metric{{ID: "balance", DisplayName: "Balance", DefaultAggregation: "sum"}}

	reg, err := catalog.FromMemory(entities, tables, rules, metrics, nil, nil)
	require.NoError(t, err)
	return reg
}

func newRouter(orch *orchestrator.Orchestrator, registry *catalog.Registry) *gin.Engine {
	router := gin.New()
	reconcileHandlers := NewReconcileHandlers(orch)
	healthHandlers := NewHealthHandlers(registry, nil)
	searchHandlers := NewSearchHandlers(registry)
	router.GET("/health", healthHandlers.HandleHealth)
	router.GET("/search", searchHandlers.HandleSearch)
	router.POST("/rca", reconcileHandlers.HandleRCA)
	return router
}

func TestHandleRCA_ReturnsClassifiedDifferences(t *testing.T) {
	reg := fixtureRegistry(t)
	orch := orchestrator.New(reg, nil, safety.DefaultLimits())
	router := newRouter(orch, reg)

	w := performRequest(router, http.MethodPost, "/rca", rcaRequestBody{Query: "why does ledger balance differ from billing balance"})

	require.Equal(t, http.StatusOK, w.Code)
	var body rcaResponseBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "balance", body.Metric)
	assert.NotEmpty(t, body.TraceID)
}

func TestHandleRCA_TranslatesAmbiguousIntentTo422(t *testing.T) {
	reg := fixtureRegistry(t)
	orch := orchestrator.New(reg, nil, safety.DefaultLimits())
	router := newRouter(orch, reg)

	w := performRequest(router, http.MethodPost, "/rca", rcaRequestBody{Query: "ledger balance query"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestHandleRCA_RejectsMissingQueryField(t *testing.T) {
	reg := fixtureRegistry(t)
	orch := orchestrator.New(reg, nil, safety.DefaultLimits())
	router := newRouter(orch, reg)

	w := performRequest(router, http.MethodPost, "/rca", rcaRequestBody{SessionID: "s1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHealth_ReportsRegistryCounts(t *testing.T) {
	reg := fixtureRegistry(t)
	orch := orchestrator.New(reg, nil, safety.DefaultLimits())
	router := newRouter(orch, reg)

	w := performRequest(router, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 2, body["systems"])
	assert.EqualValues(t, 1, body["metrics"])
	assert.NotContains(t, body, "stale_tables")
}

func TestHandleSearch_MatchesSystemsAndMetricsCaseInsensitively(t *testing.T) {
	reg := fixtureRegistry(t)
	orch := orchestrator.New(reg, nil, safety.DefaultLimits())
	router := newRouter(orch, reg)

	w := performRequest(router, http.MethodGet, "/search?q=LEDGER", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Results []searchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "ledger", body.Results[0].ID)
}

func TestHandleSearch_EmptyQueryReturnsEverything(t *testing.T) {
	reg := fixtureRegistry(t)
	orch := orchestrator.New(reg, nil, safety.DefaultLimits())
	router := newRouter(orch, reg)

	w := performRequest(router, http.MethodGet, "/search", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Results []searchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Results, 3) // 2 systems + 1 metric
}
