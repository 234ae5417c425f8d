package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go-reconcile-pipeline/internal/model"
	"go-reconcile-pipeline/internal/pipeline"
	"go-reconcile-pipeline/internal/store"
	"go-reconcile-pipeline/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const runsPrefix = "/api/v1/runs/"

// Handler serves the run API on top of a runner and its ledger
type Handler struct {
	runner     *pipeline.Runner
	db         *store.DB
	outputs    *utils.OutputManager // nil when reports are disabled
	logger     *zap.Logger
	runTimeout time.Duration

	baseCtx context.Context
	wg      sync.WaitGroup
}

// New creates a handler. Runs started over HTTP derive from ctx, so
// cancelling it stops them. Reports are served from wherever runner writes them.
func New(ctx context.Context, runner *pipeline.Runner, db *store.DB, runTimeout time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		runner:     runner,
		db:         db,
		outputs:    runner.Outputs(),
		logger:     logger,
		runTimeout: runTimeout,
		baseCtx:    ctx,
	}
}

// Wait blocks until every run started by CreateRun has returned.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// CreateRun starts a reconciliation run
// @Summary Start a run
// @Description Resolve the run spec against the configured defaults and start the run asynchronously
// @Tags runs
// @Accept json
// @Produce json
// @Param run body model.RunSpec false "Run overrides"
// @Success 202 {object} map[string]interface{} "Run accepted"
// @Failure 400 {object} map[string]interface{} "Invalid run spec"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [post]
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var spec model.RunSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	spec, err := h.runner.Resolve(spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Pin the date now so the stored spec names the files that will be read.
	date, err := spec.Date(time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spec.RunDate = date.Format(model.RunDateLayout)

	runID := uuid.New().String()
	if err := h.db.SaveRun(runID, spec); err != nil {
		h.logger.Error("save run", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save run")
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(h.baseCtx, h.runTimeout)
		defer cancel()
		if _, err := h.runner.Run(ctx, runID, spec); err != nil {
			h.logger.Warn("run failed", zap.String("run_id", runID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":   "Run started",
		"runID":     runID,
		"status":    model.RunStatusPending,
		"spec":      spec,
		"createdAt": time.Now().UTC(),
	})
}

// ListRuns lists all runs
// @Summary List runs
// @Description Get every run with its current status, newest first
// @Tags runs
// @Produce json
// @Success 200 {array} map[string]interface{} "List of runs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.db.ListRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns one run
// @Summary Get run
// @Description Retrieve the spec and status of a run, with its report URL once written
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run details"
// @Failure 400 {object} map[string]interface{} "Invalid run ID"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(w, r.URL.Path, "")
	if !ok {
		return
	}

	run, err := h.db.GetRun(runID)
	if err != nil {
		h.storeError(w, err, "Failed to fetch run")
		return
	}
	if h.outputs != nil {
		if _, err := h.outputs.LookupOutputFile(runID, pipeline.ReportFileName); err == nil {
			run["reportUrl"] = h.outputs.GetDownloadURL(runID, pipeline.ReportFileName)
		}
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRunErrors returns the fatal errors of a run
// @Summary Get run errors
// @Description Retrieve the fatal errors recorded while the run executed
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run errors"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs/{id}/errors [get]
func (h *Handler) GetRunErrors(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.existingRun(w, r, "/errors")
	if !ok {
		return
	}
	errs, err := h.db.GetRunErrors(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch run errors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runID":  runID,
		"errors": errs,
		"count":  len(errs),
	})
}

// GetRunProgress returns the stage transitions of a run
// @Summary Get run progress
// @Description Retrieve the start and end of every stage of the run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Stage progress"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs/{id}/progress [get]
func (h *Handler) GetRunProgress(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.existingRun(w, r, "/progress")
	if !ok {
		return
	}
	progress, err := h.db.GetStageProgress(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch run progress")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runID":    runID,
		"progress": progress,
	})
}

// GetRunLogs returns the stage logs of a run
// @Summary Get run logs
// @Description Retrieve the stage log lines of a run, oldest first
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Param limit query int false "Maximum number of lines" default(100)
// @Success 200 {object} map[string]interface{} "Run logs"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs/{id}/logs [get]
func (h *Handler) GetRunLogs(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.existingRun(w, r, "/logs")
	if !ok {
		return
	}

	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	logs, err := h.db.GetPipelineLogs(runID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch run logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runID": runID,
		"logs":  logs,
		"limit": limit,
	})
}

// GetRunReport downloads the JSON report of a finished run
// @Summary Download run report
// @Description Download the report written when the run completed
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {file} file "Run report"
// @Failure 404 {object} map[string]interface{} "Report not found"
// @Router /runs/{id}/report.json [get]
func (h *Handler) GetRunReport(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(w, r.URL.Path, "/"+pipeline.ReportFileName)
	if !ok {
		return
	}
	if h.outputs == nil {
		writeError(w, http.StatusNotFound, "Reports are disabled")
		return
	}
	path, err := h.outputs.LookupOutputFile(runID, pipeline.ReportFileName)
	if err != nil {
		writeError(w, http.StatusNotFound, "Report not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, path)
}

// DeleteRun removes a run and its report
// @Summary Delete run
// @Description Delete a run with its errors, progress and logs, and remove its report directory
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run deleted"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs/{id} [delete]
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(w, r.URL.Path, "")
	if !ok {
		return
	}
	if err := h.db.DeleteRun(runID); err != nil {
		h.storeError(w, err, "Failed to delete run")
		return
	}

	filesDeleted := false
	if h.outputs != nil {
		dir := h.outputs.RunDir(runID)
		if _, err := os.Stat(dir); err == nil {
			if err := os.RemoveAll(dir); err != nil {
				h.logger.Warn("remove run outputs", zap.String("run_id", runID), zap.Error(err))
			} else {
				filesDeleted = true
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Run deleted",
		"runID":        runID,
		"filesDeleted": filesDeleted,
	})
}

// existingRun extracts the run id and answers 404 for unknown runs.
func (h *Handler) existingRun(w http.ResponseWriter, r *http.Request, suffix string) (string, bool) {
	runID, ok := runIDFromPath(w, r.URL.Path, suffix)
	if !ok {
		return "", false
	}
	if _, err := h.db.GetRun(runID); err != nil {
		h.storeError(w, err, "Failed to fetch run")
		return "", false
	}
	return runID, true
}

func (h *Handler) storeError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	h.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

// runIDFromPath cuts /api/v1/runs/{id}<suffix> down to the id.
func runIDFromPath(w http.ResponseWriter, path, suffix string) (string, bool) {
	if !strings.HasPrefix(path, runsPrefix) || !strings.HasSuffix(path, suffix) {
		writeError(w, http.StatusBadRequest, "Invalid path")
		return "", false
	}
	runID := strings.TrimSuffix(strings.TrimPrefix(path, runsPrefix), suffix)
	if runID == "" || strings.Contains(runID, "/") {
		writeError(w, http.StatusBadRequest, "Run ID is required")
		return "", false
	}
	return runID, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}
