package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go-reconcile-pipeline/internal/model"
	"go-reconcile-pipeline/pkg/utils"
)

// ReportFileName is the name of the run report inside a run's output directory.
const ReportFileName = "report.json"

// NewRunReport collects both streams of a run into one document.
func NewRunReport(runID string, spec model.RunSpec, streams Streams, metrics model.RunMetrics, generatedAt time.Time) model.RunReport {
	report := model.RunReport{
		RunID:            runID,
		RunDate:          spec.RunDate,
		CustomerQueue:    spec.CustomerQueue,
		ErrorQueue:       spec.ErrorQueue,
		CustomerMessages: make([]model.CustomerMessage, 0, len(streams.Customers)),
		ErrorMessages:    make([]model.ErrorMessage, 0, len(streams.Errors)),
		Metrics:          metrics,
		GeneratedAt:      generatedAt.UTC(),
	}
	for _, msg := range streams.Customers {
		if m, ok := msg.(model.CustomerMessage); ok {
			report.CustomerMessages = append(report.CustomerMessages, m)
		}
	}
	for _, msg := range streams.Errors {
		if m, ok := msg.(model.ErrorMessage); ok {
			report.ErrorMessages = append(report.ErrorMessages, m)
		}
	}
	return report
}

// WriteRunReport writes report as <base>/<run_id>/report.json and
// returns the file path.
func WriteRunReport(om *utils.OutputManager, report model.RunReport) (string, error) {
	path, err := om.GetOutputFilePath(report.RunID, ReportFileName)
	if err != nil {
		return "", err
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	return path, nil
}
