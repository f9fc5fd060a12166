package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearRCAEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		key, _, ok := strings.Cut(e, "=")
		if ok && strings.HasPrefix(key, "RCA_") {
			os.Unsetenv(key)
		}
	}
}

func TestLoad_AppliesDefaultsWhenEnvIsUnset(t *testing.T) {
	clearRCAEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "flatfile", cfg.Catalog.Mode)
	assert.Equal(t, "./catalog", cfg.Catalog.FlatFileDir)
	assert.Equal(t, 25, cfg.Reconcile.TopN)
	assert.Equal(t, int64(5_000_000), cfg.Safety.MaxInFlightRows)
}

func TestLoad_ReadsOverridesFromEnvironment(t *testing.T) {
	clearRCAEnv(t)
	t.Setenv("RCA_PORT", "9090")
	t.Setenv("RCA_CATALOG_MODE", "relational")
	t.Setenv("RCA_CATALOG_DATABASE_URL", "postgres://localhost/rca")
	t.Setenv("RCA_TOP_N", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "relational", cfg.Catalog.Mode)
	assert.Equal(t, 50, cfg.Reconcile.TopN)
}

func TestValidate_RejectsOutOfRangePort(t *testing.T) {
	cfg := &Config{
		Catalog:   CatalogConfig{Mode: "flatfile", FlatFileDir: "./catalog"},
		Reconcile: ReconcileConfig{TopN: 1, MappingFanoutCeiling: 1},
		Safety:    SafetyConfig{MaxInFlightRows: 1, MaxJoinFanout: 1},
	}
	cfg.Server.Port = 70000

	err := cfg.Validate()
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "server.port", ve.Field)
}

func TestValidate_RequiresDatabaseURLForRelationalMode(t *testing.T) {
	cfg := &Config{
		Catalog:   CatalogConfig{Mode: "relational"},
		Reconcile: ReconcileConfig{TopN: 1, MappingFanoutCeiling: 1},
		Safety:    SafetyConfig{MaxInFlightRows: 1, MaxJoinFanout: 1},
	}
	cfg.Server.Port = 8080

	err := cfg.Validate()
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "catalog.database_url", ve.Field)
}

func TestValidate_RejectsUnknownCatalogMode(t *testing.T) {
	cfg := &Config{Catalog: CatalogConfig{Mode: "xml"}}
	cfg.Server.Port = 8080

	err := cfg.Validate()
	require.Error(t, err)
}
