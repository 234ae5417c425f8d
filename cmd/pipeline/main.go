package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go-reconcile-pipeline/internal/broker"
	"go-reconcile-pipeline/internal/config"
	"go-reconcile-pipeline/internal/model"
	"go-reconcile-pipeline/internal/pipeline"
	"go-reconcile-pipeline/internal/store"
	"go-reconcile-pipeline/pkg/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	cfg        config.Config
	logger     *zap.Logger

	runDate   string
	strict    bool
	noLedger  bool
	printJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Reconcile daily customer, order and item extracts and publish the results",
	Long: `pipeline loads the three date-stamped CSV extracts of a day, joins items
to their orders and customers, and publishes one summary message per
customer and one error message per defect to two durable queues.

Settings come from built-in defaults, then --config, then PIPELINE_*
environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = utils.NewLogger(cfg.LogLevel)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one reconciliation run",
	Long: `Runs every stage once: ingestion, reconciliation, aggregation, message
building and publishing. Exits non-zero when any stage fails fatally.

Example:
  pipeline run --date 16102026 --strict`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

var queueCmd = &cobra.Command{
	Use:   "queue [queue-name]",
	Short: "Print the messages stored in a sqlite:// broker queue",
	Args:  cobra.ExactArgs(1),
	RunE:  printQueue,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")

	runCmd.Flags().StringVar(&runDate, "date", "", "Run date as DDMMYYYY (default: today)")
	runCmd.Flags().BoolVar(&strict, "strict", false, "Report item and order references missing from orders and customers")
	runCmd.Flags().BoolVar(&noLedger, "no-ledger", false, "Do not record the run in the sqlite ledger")
	runCmd.Flags().BoolVar(&printJSON, "json", false, "Print the run result as JSON")

	rootCmd.AddCommand(runCmd, queueCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer, err := broker.NewDialer(cfg.BrokerURL, logger)
	if err != nil {
		return err
	}

	var ledger pipeline.Ledger
	if !noLedger && cfg.LedgerPath != "" {
		db, err := store.Open(cfg.LedgerPath)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer db.Close()
		ledger = db
	}

	logger.Info("broker", zap.String("url", broker.Redact(cfg.BrokerURL)))
	runner := pipeline.NewRunner(cfg.RunnerConfig(), dialer, ledger, logger)
	spec := model.RunSpec{RunDate: runDate}
	if cmd.Flags().Changed("strict") {
		spec.StrictReferences = &strict
	}
	result, err := runner.Run(ctx, "", spec)
	if printJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return encErr
		}
	}
	if err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			logger.Error("run failed", zap.String("run_id", result.RunID), zap.String("stage", stageErr.Stage), zap.Error(stageErr.Err))
		}
		return err
	}

	logger.Info("run completed",
		zap.String("run_id", result.RunID),
		zap.Int("customers", len(result.Summaries)),
		zap.Int("customer_messages", result.Metrics.CustomerMessages),
		zap.Int("error_messages", result.Metrics.ErrorMessages),
		zap.String("report", result.ReportPath),
	)
	return nil
}

func printQueue(cmd *cobra.Command, args []string) error {
	u, err := url.Parse(cfg.BrokerURL)
	if err != nil || !strings.HasPrefix(u.Scheme, "sqlite") {
		return fmt.Errorf("broker %q is not a sqlite:// queue", broker.Redact(cfg.BrokerURL))
	}
	path := strings.TrimPrefix(cfg.BrokerURL, u.Scheme+"://")

	msgs, err := broker.ReadSQLiteQueue(cmd.Context(), path, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, m := range msgs {
		fmt.Fprintf(out, "%s %s %s\n", m.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), m.Type, m.Body)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
