package pipeline

import (
	"context"
	"time"

	"go-reconcile-pipeline/internal/broker"
	"go-reconcile-pipeline/internal/model"
	"go-reconcile-pipeline/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunnerConfig holds everything a run needs besides its RunSpec
type RunnerConfig struct {
	Defaults  model.RunSpec     // fills empty RunSpec fields
	Read      ReadOptions
	Retry     model.RetryConfig // broker dial retry
	ReportDir string            // empty disables run reports
}

// RunResult is what a finished (or failed) run produced
type RunResult struct {
	RunID      string                  `json:"run_id"`
	Spec       model.RunSpec           `json:"spec"`
	Summaries  []model.CustomerSummary `json:"summaries"`
	Streams    Streams                 `json:"-"`
	Published  PublishResult           `json:"published"`
	Metrics    model.RunMetrics        `json:"metrics"`
	Errors     []model.ErrorDetail     `json:"errors,omitempty"`
	ReportPath string                  `json:"report_path,omitempty"`
}

// Runner executes reconciliation runs against one broker and ledger
type Runner struct {
	cfg     RunnerConfig
	dialer  broker.Dialer
	ledger  Ledger
	logger  *zap.Logger
	outputs *utils.OutputManager
	now     func() time.Time
}

// NewRunner creates a runner. A nil ledger disables run persistence.
func NewRunner(cfg RunnerConfig, dialer broker.Dialer, ledger Ledger, logger *zap.Logger) *Runner {
	if ledger == nil {
		ledger = noopLedger{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{cfg: cfg, dialer: dialer, ledger: ledger, logger: logger, now: time.Now}
	if cfg.ReportDir != "" {
		r.outputs = utils.NewOutputManager(cfg.ReportDir)
	}
	return r
}

// Outputs returns the report layout, or nil when reports are disabled.
func (r *Runner) Outputs() *utils.OutputManager {
	return r.outputs
}

// Resolve applies the runner defaults to spec and validates it.
func (r *Runner) Resolve(spec model.RunSpec) (model.RunSpec, error) {
	spec = spec.WithDefaults(r.cfg.Defaults)
	return spec, spec.Validate()
}

// Run executes one batch: load the three extracts, reconcile, aggregate,
// build both message streams and publish them. When runID is empty a
// new run is created in the ledger; otherwise the run must already exist.
//
// Fatal errors are returned as *StageError. The result is never nil and
// carries whatever the run produced before failing.
func (r *Runner) Run(ctx context.Context, runID string, spec model.RunSpec) (*RunResult, error) {
	spec, err := r.Resolve(spec)
	if err != nil {
		return &RunResult{RunID: runID, Spec: spec}, &StageError{Stage: model.StageIngestion, Err: err}
	}

	if runID == "" {
		runID = uuid.NewString()
		if err := r.ledger.SaveRun(runID, spec); err != nil {
			r.logger.Warn("ledger: save run", zap.String("run_id", runID), zap.Error(err))
		}
	}

	logger := r.logger.With(zap.String("run_id", runID))
	tracker := NewTracker(runID, r.ledger, r.logger, r.now)
	result := &RunResult{RunID: runID, Spec: spec}

	fail := func(stage string, err error) (*RunResult, error) {
		tracker.FailStage(stage, err)
		result.Metrics = tracker.Fail()
		result.Errors = tracker.Errors()
		return result, &StageError{Stage: stage, Err: err}
	}

	tracker.SetStatus(model.RunStatusRunning)

	// --- INGESTION STAGE ---
	tracker.SetStatus(model.RunStatusIngesting)
	tracker.StartStage(model.StageIngestion)

	date, err := spec.Date(r.now())
	if err != nil {
		return fail(model.StageIngestion, err)
	}
	result.Spec.RunDate = date.Format(model.RunDateLayout)
	spec = result.Spec

	logger.Info("starting run",
		zap.String("run_date", spec.RunDate),
		zap.String("data_dir", spec.DataDir),
		zap.Bool("strict_references", spec.Strict()),
	)

	extracts, err := LoadExtracts(ctx, spec.Sources(date), r.cfg.Read, logger)
	if err != nil {
		return fail(model.StageIngestion, err)
	}
	tracker.Update(func(m *model.RunMetrics) {
		m.CustomersRead = len(extracts.Customers)
		m.OrdersRead = len(extracts.Orders)
		m.ItemsRead = len(extracts.Items)
	})
	tracker.EndStage(model.StageIngestion, len(extracts.Customers)+len(extracts.Orders)+len(extracts.Items), 0, map[string]interface{}{
		"customers": len(extracts.Customers),
		"orders":    len(extracts.Orders),
		"items":     len(extracts.Items),
	})

	// --- RECONCILIATION STAGE ---
	tracker.StartStage(model.StageReconciliation)
	rec := Reconcile(extracts.Customers, extracts.Orders, extracts.Items, ReconcileOptions{
		StrictReferences: spec.Strict(),
	})
	tracker.EndStage(model.StageReconciliation, len(rec.Rows),
		len(rec.MissingCustomer)+len(rec.UnknownOrders)+len(rec.UnknownCustomers),
		map[string]interface{}{
			"missing_customer":  len(rec.MissingCustomer),
			"unknown_orders":    len(rec.UnknownOrders),
			"unknown_customers": len(rec.UnknownCustomers),
			"strict_references": spec.Strict(),
		})

	// --- AGGREGATION STAGE ---
	tracker.StartStage(model.StageAggregation)
	eligible := rec.AggregationRows()
	result.Summaries = Aggregate(eligible)
	tracker.EndStage(model.StageAggregation, len(eligible), 0, map[string]interface{}{
		"customers": len(result.Summaries),
	})

	// --- MESSAGE STAGE ---
	tracker.StartStage(model.StageMessages)
	result.Streams = BuildMessages(extracts.Items, result.Summaries, rec)
	tracker.Update(func(m *model.RunMetrics) {
		m.CustomerMessages = len(result.Streams.Customers)
		m.ErrorMessages = len(result.Streams.Errors)
	})
	tracker.EndStage(model.StageMessages, len(result.Streams.Customers)+len(result.Streams.Errors), len(result.Streams.Errors), nil)

	// --- PUBLISH STAGE ---
	tracker.SetStatus(model.RunStatusPublishing)
	tracker.StartStage(model.StagePublish)
	publisher := NewPublisher(r.dialer, r.cfg.Retry, logger)
	published, err := publisher.Publish(ctx,
		QueueBatch{Queue: spec.CustomerQueue, Messages: result.Streams.Customers},
		QueueBatch{Queue: spec.ErrorQueue, Messages: result.Streams.Errors},
	)
	result.Published = published
	tracker.Update(func(m *model.RunMetrics) {
		for queue, n := range published {
			m.Published[queue] = n
		}
	})
	if err != nil {
		return fail(model.StagePublish, err)
	}
	tracker.EndStage(model.StagePublish, published[spec.CustomerQueue]+published[spec.ErrorQueue], 0, map[string]interface{}{
		spec.CustomerQueue: published[spec.CustomerQueue],
		spec.ErrorQueue:    published[spec.ErrorQueue],
	})

	// --- REPORT STAGE ---
	// a report failure does not fail the run
	if r.outputs != nil {
		tracker.StartStage(model.StageReport)
		report := NewRunReport(runID, spec, result.Streams, tracker.Metrics(), r.now())
		path, err := WriteRunReport(r.outputs, report)
		if err != nil {
			tracker.FailStage(model.StageReport, err)
		} else {
			result.ReportPath = path
			tracker.EndStage(model.StageReport, len(report.CustomerMessages)+len(report.ErrorMessages), 0, map[string]interface{}{
				"path": path,
			})
		}
	}

	result.Metrics = tracker.Complete()
	result.Errors = tracker.Errors()
	return result, nil
}
