package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 2*time.Minute, ParseDuration("2m", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("soon", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("-1s", time.Minute))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = NewLogger("chatty")
	assert.Error(t, err)
}

func TestOutputManager(t *testing.T) {
	om := NewOutputManager(t.TempDir())

	path, err := om.GetOutputFilePath("run-1", "../report.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(om.BaseOutputDir, "run-1", "report.json"), path)

	_, err = om.LookupOutputFile("run-1", "report.json")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	found, err := om.LookupOutputFile("run-1", "report.json")
	require.NoError(t, err)
	assert.Equal(t, path, found)

	assert.Equal(t, om.RunDir("run-1"), om.RunDir("../../run-1"), "run ids cannot escape the base dir")
	assert.Equal(t, "/api/v1/runs/run-1/report.json", om.GetDownloadURL("run-1", "report.json"))
}
