package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// OutputManager lays out per-run output files under one base directory
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// CreateRunOutputDir creates the directory holding a run's outputs
func (om *OutputManager) CreateRunOutputDir(runID string) (string, error) {
	runDir := om.RunDir(runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run output directory: %w", err)
	}
	return runDir, nil
}

// RunDir returns the output directory of a run without creating it.
func (om *OutputManager) RunDir(runID string) string {
	return filepath.Join(om.BaseOutputDir, filepath.Base(runID))
}

// GetOutputFilePath generates a full path for an output file, creating the run directory
func (om *OutputManager) GetOutputFilePath(runID, fileName string) (string, error) {
	runDir, err := om.CreateRunOutputDir(runID)
	if err != nil {
		return "", err
	}

	// Clean the filename to remove any path separators
	return filepath.Join(runDir, filepath.Base(fileName)), nil
}

// LookupOutputFile returns the path of an existing output file.
func (om *OutputManager) LookupOutputFile(runID, fileName string) (string, error) {
	path := filepath.Join(om.RunDir(runID), filepath.Base(fileName))
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// GetDownloadURL generates the API path a file can be fetched from
func (om *OutputManager) GetDownloadURL(runID, fileName string) string {
	return fmt.Sprintf("/api/v1/runs/%s/%s", runID, filepath.Base(fileName))
}
