package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "customer_messages", cfg.CustomerQueue)
	assert.Equal(t, "error_messages", cfg.ErrorQueue)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
data_dir: /srv/extracts
broker_url: sqlite:///var/lib/pipeline/queues.db
customer_queue: customers
strict_references: true
delimiter: ";"
retry:
  max_attempts: 5
  initial_delay: 250ms
`)
	t.Setenv("PIPELINE_CUSTOMER_QUEUE", "customers_v2")
	t.Setenv("PIPELINE_DIAL_MAX_DELAY", "2s")
	t.Setenv("PIPELINE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/extracts", cfg.DataDir)
	assert.Equal(t, "sqlite:///var/lib/pipeline/queues.db", cfg.BrokerURL)
	assert.Equal(t, "customers_v2", cfg.CustomerQueue, "env wins over file")
	assert.Equal(t, "error_messages", cfg.ErrorQueue, "default kept")
	assert.True(t, cfg.StrictReferences)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, "debug", cfg.LogLevel)

	rc := cfg.RunnerConfig()
	assert.Equal(t, ';', rc.Read.Comma)
	assert.True(t, rc.Defaults.Strict())
	assert.Equal(t, "customers_v2", rc.Defaults.CustomerQueue)
	assert.Equal(t, 5, rc.Retry.MaxAttempts)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "unknown key", yaml: "queue_name: x\n"},
		{name: "same queues", yaml: "customer_queue: q\nerror_queue: q\n"},
		{name: "bad run date", env: map[string]string{"PIPELINE_RUN_DATE": "2026-10-16"}},
		{name: "bad log level", env: map[string]string{"PIPELINE_LOG_LEVEL": "loud"}},
		{name: "no attempts", yaml: "retry:\n  max_attempts: 0\n"},
		{name: "long delimiter", yaml: "delimiter: '||'\n"},
		{name: "bad env duration", env: map[string]string{"PIPELINE_DIAL_INITIAL_DELAY": "soon"}},
		{name: "bad run timeout", yaml: "run_timeout: forever\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeConfig(t, tt.yaml)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, "\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestRunnerConfig_TrimsReportDir(t *testing.T) {
	cfg := Default()
	cfg.ReportDir = "  reports \n"
	assert.Equal(t, "reports", cfg.RunnerConfig().ReportDir)
}
