// reconcile is an ad-hoc query CLI for the reconciliation engine: it runs
// one natural-language request through the same orchestrator the server
// exposes over HTTP, printing the result to stdout for scripting or local
// debugging.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reconciliation-rca/engine/internal/config"
	"github.com/reconciliation-rca/engine/internal/logger"
	"github.com/reconciliation-rca/engine/pkg/catalog"
	"github.com/reconciliation-rca/engine/pkg/llmclient"
	"github.com/reconciliation-rca/engine/pkg/orchestrator"
	"github.com/reconciliation-rca/engine/pkg/safety"
)

var (
	cfgFile     string
	catalogDir  string
	queryText   string
	sessionID   string
	outputJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run a one-off reconciliation query against the metadata catalog",
	Long: `reconcile drives the same intent→plan→diff→classify pipeline the
HTTP server exposes, without standing up a server — useful for scripting
ad-hoc investigations or verifying a catalog change reproduces a known
mismatch.`,
	RunE: runQuery,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, read into viper only; settings still come from env vars (see internal/config)")
	rootCmd.Flags().StringVar(&catalogDir, "catalog-dir", "", "flat-file catalog directory (overrides RCA_CATALOG_DIR)")
	rootCmd.Flags().StringVarP(&queryText, "query", "q", "", "natural-language reconciliation query (required)")
	rootCmd.Flags().StringVar(&sessionID, "session", "", "session id, for multi-turn context")
	rootCmd.Flags().BoolVar(&outputJSON, "json", false, "print the result as JSON instead of a human-readable summary")
	_ = rootCmd.MarkFlagRequired("query")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
	}
	viper.SetEnvPrefix("RCA")
	viper.AutomaticEnv()
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if catalogDir != "" {
		cfg.Catalog.FlatFileDir = catalogDir
		cfg.Catalog.Mode = "flatfile"
	}

	appLogger := logger.New(cfg.Logging)

	registry, err := loadRegistry(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("loading metadata registry: %w", err)
	}

	var completer llmclient.Completer
	if cfg.LLM.Provider != "" {
		completer, err = llmclient.New(llmclient.Config{
			Provider:  cfg.LLM.Provider,
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Deadline:  cfg.LLM.Deadline,
		})
		if err != nil {
			appLogger.Warn("LLM provider unavailable, running heuristic-only", "error", err)
			completer = nil
		}
	}

	limits := safety.Limits{
		WallClockDeadline:  cfg.Safety.RequestDeadline,
		MaxInFlightRows:    cfg.Safety.MaxInFlightRows,
		MaxPeakMemoryMB:    cfg.Safety.MaxPeakMemoryMB,
		MaxJoinFanout:      cfg.Safety.MaxJoinFanout,
		ScanRetryAttempts:  cfg.Safety.ScanRetryAttempts,
		ScanRetryBaseDelay: cfg.Safety.ScanRetryBaseDelay,
	}
	orch := orchestrator.New(registry, completer, limits)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Safety.RequestDeadline)
	defer cancel()

	resp, tr, err := orch.Run(ctx, orchestrator.Request{Query: queryText, SessionID: sessionID})
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		if tr != nil {
			fmt.Fprintf(os.Stderr, "trace %s recorded %d node(s) before failure\n", tr.RequestID, len(tr.Snapshot()))
		}
		return err
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Printf("query:      %s\n", resp.Query)
	fmt.Printf("systems:    %s vs %s\n", resp.SystemA, resp.SystemB)
	fmt.Printf("metric:     %s\n", resp.Metric)
	fmt.Printf("mode:       %s\n", resp.Mode)
	fmt.Printf("confidence: %.2f\n", resp.Confidence)
	fmt.Printf("trace id:   %s\n", resp.TraceID)
	fmt.Printf("population: agreeing=%d mismatched=%d missing_right=%d missing_left=%d\n",
		resp.PopulationDiff.AgreeingCount, resp.PopulationDiff.MismatchCount,
		resp.PopulationDiff.MissingRightCount, resp.PopulationDiff.MissingLeftCount)
	fmt.Printf("differences (top %d):\n", len(resp.DataDiff))
	for _, d := range resp.DataDiff {
		fmt.Printf("  grain=%-20s impact=%12.4f class=%s\n", d.GrainValue, d.Difference.Impact, d.Classification.Kind)
	}
	return nil
}

func loadRegistry(cfg config.CatalogConfig) (*catalog.Registry, error) {
	switch cfg.Mode {
	case "relational":
		db, err := catalog.OpenBunDB(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening relational catalog: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return catalog.LoadRelational(ctx, db)
	default:
		return catalog.LoadFlatFile(cfg.FlatFileDir)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(3)
	}
}
