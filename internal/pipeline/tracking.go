package pipeline

import (
	"maps"
	"sync"
	"time"

	"go-reconcile-pipeline/internal/model"

	"go.uber.org/zap"
)

// Ledger persists the progress of runs. *store.DB implements it.
type Ledger interface {
	SaveRun(runID string, spec model.RunSpec) error
	UpdateRunStatus(runID, status string) error
	SaveRunError(runID string, err error) error
	SaveStageProgress(runID, stage, status string, startedAt, endedAt *time.Time, records, errorCount int) error
	SavePipelineLog(runID, stage, level, message string, details map[string]interface{}) error
}

type noopLedger struct{}

func (noopLedger) SaveRun(string, model.RunSpec) error  { return nil }
func (noopLedger) UpdateRunStatus(string, string) error { return nil }
func (noopLedger) SaveRunError(string, error) error     { return nil }
func (noopLedger) SavePipelineLog(string, string, string, string, map[string]interface{}) error {
	return nil
}
func (noopLedger) SaveStageProgress(string, string, string, *time.Time, *time.Time, int, int) error {
	return nil
}

// Tracker records stage timings and counts for one run, mirrors them to
// the ledger and the log, and assembles the final RunMetrics. Ledger
// failures are logged and never fail the run.
type Tracker struct {
	runID  string
	ledger Ledger
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	started time.Time
	metrics model.RunMetrics
	errors  []model.ErrorDetail
}

// NewTracker starts tracking a run. A nil ledger discards progress.
func NewTracker(runID string, ledger Ledger, logger *zap.Logger, now func() time.Time) *Tracker {
	if ledger == nil {
		ledger = noopLedger{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		runID:   runID,
		ledger:  ledger,
		logger:  logger.With(zap.String("run_id", runID)),
		now:     now,
		started: now(),
		metrics: model.RunMetrics{
			Published:    make(map[string]int),
			StageMetrics: make(map[string]model.StageMetrics),
		},
	}
}

// SetStatus moves the run to a new status.
func (t *Tracker) SetStatus(status string) {
	if err := t.ledger.UpdateRunStatus(t.runID, status); err != nil {
		t.logger.Warn("ledger: update run status", zap.String("status", status), zap.Error(err))
	}
}

// StartStage marks the start of a pipeline stage
func (t *Tracker) StartStage(stage string) {
	t.mu.Lock()
	start := t.now()
	t.metrics.StageMetrics[stage] = model.StageMetrics{
		StageName: stage,
		StartTime: start,
		Status:    "running",
	}
	t.mu.Unlock()

	t.logger.Info("stage started", zap.String("stage", stage))
	if err := t.ledger.SaveStageProgress(t.runID, stage, "started", &start, nil, 0, 0); err != nil {
		t.logger.Warn("ledger: save stage progress", zap.String("stage", stage), zap.Error(err))
	}
}

// EndStage marks the end of a pipeline stage. errorCount counts defects
// or other non-fatal problems found by the stage.
func (t *Tracker) EndStage(stage string, records, errorCount int, details map[string]interface{}) {
	sm := t.finishStage(stage, "completed", records, errorCount)

	t.logger.Info("stage completed",
		zap.String("stage", stage),
		zap.Int("records", records),
		zap.Int("errors", errorCount),
		zap.Duration("duration", sm.Duration),
	)

	logDetails := map[string]interface{}{
		"records":     records,
		"errors":      errorCount,
		"duration_ms": sm.Duration.Milliseconds(),
	}
	maps.Copy(logDetails, details)
	t.persistStage(stage, sm, "info", "stage completed", logDetails)
}

// FailStage marks a stage as failed with a fatal error.
func (t *Tracker) FailStage(stage string, err error) {
	sm := t.finishStage(stage, "failed", 0, 1)

	t.mu.Lock()
	t.errors = append(t.errors, model.ErrorDetail{Stage: stage, Message: err.Error(), Timestamp: sm.EndTime})
	t.mu.Unlock()

	t.logger.Error("stage failed", zap.String("stage", stage), zap.Error(err))
	t.persistStage(stage, sm, "error", "stage failed", map[string]interface{}{"error": err.Error()})
	if lerr := t.ledger.SaveRunError(t.runID, &StageError{Stage: stage, Err: err}); lerr != nil {
		t.logger.Warn("ledger: save run error", zap.Error(lerr))
	}
}

func (t *Tracker) finishStage(stage, status string, records, errorCount int) model.StageMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := t.now()
	sm, ok := t.metrics.StageMetrics[stage]
	if !ok {
		sm = model.StageMetrics{StageName: stage, StartTime: end}
	}
	sm.EndTime = end
	sm.Duration = end.Sub(sm.StartTime)
	sm.RecordsProcessed = records
	sm.ErrorCount = errorCount
	sm.Status = status
	t.metrics.StageMetrics[stage] = sm
	return sm
}

func (t *Tracker) persistStage(stage string, sm model.StageMetrics, level, message string, details map[string]interface{}) {
	if err := t.ledger.SaveStageProgress(t.runID, stage, sm.Status, &sm.StartTime, &sm.EndTime, sm.RecordsProcessed, sm.ErrorCount); err != nil {
		t.logger.Warn("ledger: save stage progress", zap.String("stage", stage), zap.Error(err))
	}
	if err := t.ledger.SavePipelineLog(t.runID, stage, level, message, details); err != nil {
		t.logger.Warn("ledger: save pipeline log", zap.String("stage", stage), zap.Error(err))
	}
}

// Update applies fn to the run counters under the tracker's lock.
func (t *Tracker) Update(fn func(*model.RunMetrics)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.metrics)
}

// Complete marks the run as completed and returns its final metrics.
func (t *Tracker) Complete() model.RunMetrics {
	m := t.close()
	t.SetStatus(model.RunStatusCompleted)
	t.logger.Info("run completed",
		zap.Int("customer_messages", m.CustomerMessages),
		zap.Int("error_messages", m.ErrorMessages),
		zap.Duration("duration", m.ProcessingTime),
	)
	return m
}

// Fail marks the run as failed and returns the metrics gathered so far.
func (t *Tracker) Fail() model.RunMetrics {
	m := t.close()
	t.SetStatus(model.RunStatusFailed)
	t.logger.Error("run failed", zap.Duration("duration", m.ProcessingTime))
	return m
}

// Errors returns the fatal errors recorded so far.
func (t *Tracker) Errors() []model.ErrorDetail {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.ErrorDetail(nil), t.errors...)
}

// Metrics returns a copy of the current metrics.
func (t *Tracker) Metrics() model.RunMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *Tracker) close() model.RunMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.ProcessingTime = t.now().Sub(t.started)
	return t.snapshot()
}

func (t *Tracker) snapshot() model.RunMetrics {
	m := t.metrics
	m.Published = maps.Clone(t.metrics.Published)
	m.StageMetrics = maps.Clone(t.metrics.StageMetrics)
	return m
}
