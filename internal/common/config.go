package common

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Backlog  BacklogConfig  `yaml:"backlog"`
	Rules    RulesConfig    `yaml:"rules"`
	OCR      OCRConfig      `yaml:"ocr"`
	Vision   VisionConfig   `yaml:"vision"`
	LogLevel string         `yaml:"log_level"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

// PipelineConfig controls batch claiming and idle backoff.
type PipelineConfig struct {
	BatchSize int           `yaml:"batch_size"`
	IdleDelay time.Duration `yaml:"idle_delay"`

	// RetryMaxAttempts > 1 turns on automatic re-enqueue after a failure.
	RetryMaxAttempts int           `yaml:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
}

// BacklogConfig controls the backlog monitor.
type BacklogConfig struct {
	SnapshotInterval      time.Duration `yaml:"snapshot_interval"`
	PendingReceiptMinutes int           `yaml:"pending_receipt_minutes"`
	PendingJobMinutes     int           `yaml:"pending_job_minutes"`
	ProcessingJobMinutes  int           `yaml:"processing_job_minutes"`
	SlackBotToken         string        `yaml:"slack_bot_token"`
	SlackAlertChannel     string        `yaml:"slack_alert_channel"`
}

// RulesConfig controls the suggestion rule refresher.
type RulesConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// RefreshCron, when set, replaces RefreshInterval (standard 5-field cron).
	RefreshCron    string `yaml:"refresh_cron"`
	MinOccurrences int    `yaml:"min_occurrences"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine        string        `yaml:"engine"`
	MagickBin     string        `yaml:"magick_bin"`
	TesseractBin  string        `yaml:"tesseract_bin"`
	TesseractLang string        `yaml:"tesseract_lang"`
	TessdataDir   string        `yaml:"tessdata_dir"`
	Timeout       time.Duration `yaml:"timeout"`
}

// VisionConfig holds configuration for vision-model text extraction.
type VisionConfig struct {
	GeminiAPIKey      string        `yaml:"gemini_api_key"`
	GeminiModel       string        `yaml:"gemini_model"`
	AnthropicAPIKey   string        `yaml:"anthropic_api_key"`
	AnthropicModel    string        `yaml:"anthropic_model"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":9090"),
			HTTPAddr: getEnv("HTTP_ADDR", ":8081"),
		},
		Pipeline: PipelineConfig{
			BatchSize:        getEnvAsInt("PIPELINE_BATCH_SIZE", 5),
			IdleDelay:        getEnvAsDuration("PIPELINE_IDLE_DELAY", 5*time.Second),
			RetryMaxAttempts: getEnvAsInt("PIPELINE_RETRY_MAX_ATTEMPTS", 0),
			RetryBaseDelay:   getEnvAsDuration("PIPELINE_RETRY_BASE_DELAY", time.Minute),
		},
		Backlog: BacklogConfig{
			SnapshotInterval:      getEnvAsDuration("BACKLOG_SNAPSHOT_INTERVAL", 5*time.Minute),
			PendingReceiptMinutes: getEnvAsInt("BACKLOG_PENDING_RECEIPT_MINUTES", 30),
			PendingJobMinutes:     getEnvAsInt("BACKLOG_PENDING_JOB_MINUTES", 20),
			ProcessingJobMinutes:  getEnvAsInt("BACKLOG_PROCESSING_JOB_MINUTES", 10),
			SlackBotToken:         getEnv("SLACK_BOT_TOKEN", ""),
			SlackAlertChannel:     getEnv("SLACK_ALERT_CHANNEL", ""),
		},
		Rules: RulesConfig{
			RefreshInterval: getEnvAsDuration("RULES_REFRESH_INTERVAL", 30*time.Minute),
			RefreshCron:     getEnv("RULES_REFRESH_CRON", ""),
			MinOccurrences:  getEnvAsInt("RULES_MIN_OCCURRENCES", 3),
		},
		OCR: OCRConfig{
			Engine:        getEnv("OCR_ENGINE", constants.EngineTesseract),
			MagickBin:     getEnv("MAGICK_BIN", "magick"),
			TesseractBin:  getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			Timeout:       getEnvAsDuration("OCR_TIMEOUT", 2*time.Minute),
		},
		Vision: VisionConfig{
			GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
			GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:    getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
			RequestsPerMinute: getEnvAsInt("VISION_REQUESTS_PER_MINUTE", 30),
			Timeout:           getEnvAsDuration("VISION_TIMEOUT", 60*time.Second),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// LoadConfigFile loads env configuration and overlays the YAML file at path.
// Keys absent from the file keep their env/default values.
func LoadConfigFile(path string) (*Config, error) {
	cfg := LoadConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, NewAppError("CONFIG_ERROR", "read config file", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("parse config file %s", path), err)
	}
	return cfg, nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// SlogLevel maps LogLevel onto a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Pipeline.BatchSize <= 0 {
		return NewAppError("CONFIG_ERROR", "PIPELINE_BATCH_SIZE must be positive", ErrInvalidInput)
	}
	if c.Pipeline.IdleDelay <= 0 {
		return NewAppError("CONFIG_ERROR", "PIPELINE_IDLE_DELAY must be positive", ErrInvalidInput)
	}
	if c.Pipeline.RetryMaxAttempts < 0 || c.Pipeline.RetryBaseDelay < 0 {
		return NewAppError("CONFIG_ERROR", "retry settings must not be negative", ErrInvalidInput)
	}
	if c.Backlog.SnapshotInterval <= 0 {
		return NewAppError("CONFIG_ERROR", "BACKLOG_SNAPSHOT_INTERVAL must be positive", ErrInvalidInput)
	}
	if c.Backlog.PendingReceiptMinutes < 0 || c.Backlog.PendingJobMinutes < 0 || c.Backlog.ProcessingJobMinutes < 0 {
		return NewAppError("CONFIG_ERROR", "backlog thresholds must not be negative", ErrInvalidInput)
	}
	if c.Rules.RefreshCron != "" {
		if _, err := ParseCron(c.Rules.RefreshCron); err != nil {
			return NewAppError("CONFIG_ERROR", "RULES_REFRESH_CRON is invalid", err)
		}
	} else if c.Rules.RefreshInterval <= 0 {
		return NewAppError("CONFIG_ERROR", "RULES_REFRESH_INTERVAL must be positive", ErrInvalidInput)
	}
	if c.Rules.MinOccurrences < 1 {
		return NewAppError("CONFIG_ERROR", "RULES_MIN_OCCURRENCES must be at least 1", ErrInvalidInput)
	}
	switch c.OCR.Engine {
	case constants.EngineTesseract:
	case constants.EngineGemini:
		if c.Vision.GeminiAPIKey == "" {
			return NewAppError("CONFIG_ERROR", "GEMINI_API_KEY is required for the gemini engine", ErrInvalidInput)
		}
	case constants.EngineAnthropic:
		if c.Vision.AnthropicAPIKey == "" {
			return NewAppError("CONFIG_ERROR", "ANTHROPIC_API_KEY is required for the anthropic engine", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown OCR_ENGINE %q", c.OCR.Engine), ErrInvalidInput)
	}
	return nil
}

// ParseCron parses a standard 5-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}
