package common

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t, "DB_URL", "PIPELINE_BATCH_SIZE", "PIPELINE_IDLE_DELAY", "BACKLOG_SNAPSHOT_INTERVAL",
		"RULES_REFRESH_INTERVAL", "RULES_REFRESH_CRON", "RULES_MIN_OCCURRENCES", "OCR_ENGINE", "LOG_LEVEL",
		"PIPELINE_RETRY_MAX_ATTEMPTS")

	cfg := LoadConfig()
	assert.Empty(t, cfg.Database.DSN)
	assert.Equal(t, 5, cfg.Pipeline.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.IdleDelay)
	assert.Equal(t, 0, cfg.Pipeline.RetryMaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Backlog.SnapshotInterval)
	assert.Equal(t, 30*time.Minute, cfg.Rules.RefreshInterval)
	assert.Equal(t, 3, cfg.Rules.MinOccurrences)
	assert.Equal(t, constants.EngineTesseract, cfg.OCR.Engine)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/receipts")
	t.Setenv("PIPELINE_BATCH_SIZE", "12")
	t.Setenv("PIPELINE_IDLE_DELAY", "250ms")
	t.Setenv("DB_MAX_CONNS", "7")
	t.Setenv("BACKLOG_PENDING_JOB_MINUTES", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, "postgres://localhost/receipts", cfg.Database.DSN)
	assert.Equal(t, 12, cfg.Pipeline.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.IdleDelay)
	assert.Equal(t, int32(7), cfg.Database.MaxConns)
	// unparseable values fall back to the default
	assert.Equal(t, 20, cfg.Backlog.PendingJobMinutes)
}

func TestLoadConfigFile_Overlay(t *testing.T) {
	t.Setenv("DB_URL", "postgres://env/receipts")
	clearEnv(t, "PIPELINE_BATCH_SIZE", "RULES_MIN_OCCURRENCES")

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	body := `
pipeline:
  batch_size: 9
  idle_delay: 2s
rules:
  refresh_cron: "*/15 * * * *"
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/receipts", cfg.Database.DSN)
	assert.Equal(t, 9, cfg.Pipeline.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.IdleDelay)
	assert.Equal(t, "*/15 * * * *", cfg.Rules.RefreshCron)
	assert.Equal(t, 3, cfg.Rules.MinOccurrences)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFile_Errors(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFIG_ERROR", appErr.Code)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: [unclosed"), 0o600))
	_, err = LoadConfigFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestLoadConfigFile_EmptyPath(t *testing.T) {
	clearEnv(t, "PIPELINE_BATCH_SIZE")
	cfg, err := LoadConfigFile("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Pipeline.BatchSize)
}

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{DSN: "sqlite::memory:"},
		Pipeline: PipelineConfig{BatchSize: 5, IdleDelay: time.Second},
		Backlog:  BacklogConfig{SnapshotInterval: time.Minute},
		Rules:    RulesConfig{RefreshInterval: time.Minute, MinOccurrences: 3},
		OCR:      OCRConfig{Engine: constants.EngineTesseract},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing dsn", mutate: func(c *Config) { c.Database.DSN = "" }, wantErr: "DB_URL is required"},
		{name: "zero batch", mutate: func(c *Config) { c.Pipeline.BatchSize = 0 }, wantErr: "PIPELINE_BATCH_SIZE"},
		{name: "zero idle delay", mutate: func(c *Config) { c.Pipeline.IdleDelay = 0 }, wantErr: "PIPELINE_IDLE_DELAY"},
		{name: "negative retry", mutate: func(c *Config) { c.Pipeline.RetryMaxAttempts = -1 }, wantErr: "retry settings"},
		{name: "zero snapshot interval", mutate: func(c *Config) { c.Backlog.SnapshotInterval = 0 }, wantErr: "BACKLOG_SNAPSHOT_INTERVAL"},
		{name: "negative threshold", mutate: func(c *Config) { c.Backlog.PendingJobMinutes = -5 }, wantErr: "backlog thresholds"},
		{name: "bad cron", mutate: func(c *Config) { c.Rules.RefreshCron = "every tuesday" }, wantErr: "RULES_REFRESH_CRON"},
		{
			name: "cron replaces interval",
			mutate: func(c *Config) {
				c.Rules.RefreshCron = "0 3 * * *"
				c.Rules.RefreshInterval = 0
			},
		},
		{name: "zero interval", mutate: func(c *Config) { c.Rules.RefreshInterval = 0 }, wantErr: "RULES_REFRESH_INTERVAL"},
		{name: "min occurrences", mutate: func(c *Config) { c.Rules.MinOccurrences = 0 }, wantErr: "RULES_MIN_OCCURRENCES"},
		{name: "unknown engine", mutate: func(c *Config) { c.OCR.Engine = "abbyy" }, wantErr: "unknown OCR_ENGINE"},
		{name: "gemini without key", mutate: func(c *Config) { c.OCR.Engine = constants.EngineGemini }, wantErr: "GEMINI_API_KEY"},
		{
			name: "gemini with key",
			mutate: func(c *Config) {
				c.OCR.Engine = constants.EngineGemini
				c.Vision.GeminiAPIKey = "k"
			},
		},
		{name: "anthropic without key", mutate: func(c *Config) { c.OCR.Engine = constants.EngineAnthropic }, wantErr: "ANTHROPIC_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_SlogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	} {
		cfg := &Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), in)
	}
}

func TestParseCron(t *testing.T) {
	sched, err := ParseCron("30 2 * * *")
	require.NoError(t, err)
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 1, 2, 30, 0, 0, time.UTC), sched.Next(from))

	_, err = ParseCron("* * * * * *")
	assert.Error(t, err)
}
