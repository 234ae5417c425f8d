package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go-reconcile-pipeline/docs"
	"go-reconcile-pipeline/internal/api"
	"go-reconcile-pipeline/internal/api/handler"
	"go-reconcile-pipeline/internal/broker"
	"go-reconcile-pipeline/internal/config"
	"go-reconcile-pipeline/internal/pipeline"
	"go-reconcile-pipeline/internal/store"
	"go-reconcile-pipeline/pkg/router"
	"go-reconcile-pipeline/pkg/utils"

	"go.uber.org/zap"
)

// @title Reconcile Pipeline API
// @version 1.0
// @description Starts reconciliation runs and reads back their status, stage progress, logs and reports.
// @BasePath /api/v1
func main() {
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	if err := serve(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Init DB
	db, err := store.Open(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	dialer, err := broker.NewDialer(cfg.BrokerURL, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := pipeline.NewRunner(cfg.RunnerConfig(), dialer, db, logger)
	h := handler.New(ctx, runner, db, utils.ParseDuration(cfg.RunTimeout, 10*time.Minute), logger)

	// Create router
	r := router.New(logger)

	// Register API routes
	api.RegisterRoutes(r, h)

	logger.Info("pipeline api", zap.String("addr", cfg.HTTPAddr), zap.String("broker", broker.Redact(cfg.BrokerURL)))
	err = r.Start(ctx, cfg.HTTPAddr)

	// Runs in flight see the cancelled context; wait so the ledger closes after them.
	h.Wait()
	return err
}
