// Reconciliation RCA engine server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reconciliation-rca/engine/internal/config"
	"github.com/reconciliation-rca/engine/internal/logger"
	"github.com/reconciliation-rca/engine/internal/restapi"
	"github.com/reconciliation-rca/engine/pkg/catalog"
	"github.com/reconciliation-rca/engine/pkg/freshness"
	"github.com/reconciliation-rca/engine/pkg/llmclient"
	"github.com/reconciliation-rca/engine/pkg/orchestrator"
	"github.com/reconciliation-rca/engine/pkg/safety"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	appLogger.Info("starting reconciliation engine", "port", cfg.Server.Port, "catalog_mode", cfg.Catalog.Mode)

	registry, err := loadRegistry(cfg.Catalog)
	if err != nil {
		appLogger.Error("failed to load metadata registry", "error", err)
		os.Exit(2)
	}
	appLogger.Info("metadata registry loaded", "systems", len(registry.AllSystems()), "metrics", len(registry.AllMetrics()))

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
			appLogger.Warn("LLM provider unavailable, falling back to heuristic intent parsing", "error", err)
			completer = nil
		} else {
			appLogger.Info("LLM completer initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
		}
	} else {
		appLogger.Info("no LLM provider configured, intent compiler runs heuristic-only")
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

	freshnessMonitor := freshness.NewMonitor(registry, cfg.Reconcile.FreshnessThreshold, appLogger)
	if err := freshnessMonitor.Start("0 */5 * * * *"); err != nil {
		appLogger.Warn("freshness monitor failed to start", "error", err)
	} else {
		defer freshnessMonitor.Stop()
		appLogger.Info("freshness monitor started", "interval", "5m")
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	recoveryMW := restapi.NewRecoveryMiddleware(appLogger)
	loggingMW := restapi.NewLoggingMiddleware(appLogger)
	router.Use(recoveryMW.Recovery())
	router.Use(loggingMW.RequestLogger())

	reconcileHandlers := restapi.NewReconcileHandlers(orch)
	healthHandlers := restapi.NewHealthHandlers(registry, freshnessMonitor)
	searchHandlers := restapi.NewSearchHandlers(registry)

	router.GET("/health", healthHandlers.HandleHealth)
	router.GET("/search", searchHandlers.HandleSearch)
	router.POST("/rca", reconcileHandlers.HandleRCA)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("http server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			appLogger.Error("server error", "error", err)
			os.Exit(3)
		}
	case sig := <-shutdown:
		appLogger.Info("shutdown initiated", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error("graceful shutdown failed", "error", err)
			if err := server.Close(); err != nil {
				appLogger.Error("server close failed", "error", err)
			}
		}
		appLogger.Info("server stopped")
	}
}

// loadRegistry builds the metadata registry (C1) from whichever source the
// catalog config names — a flat-file directory or a relational schema —
// following spec §6's "either/or, keys are stable string ids" contract.
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
