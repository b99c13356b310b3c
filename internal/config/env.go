package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// EngineConfig bounds the work the optimization engine does per job.
type EngineConfig struct {
	Profile            string
	PageBatchSize      int
	SampleCap          int
	TextThreshold      int
	AnalysisMaxPixel   int
	TileRows           int
	TileCols           int
	RasterHandles      int
	DocumentWorkers    int
	ImageWorkers       int
	DocumentMaxRetries int
	ImageMaxRetries    int
	TempDir            string
}

// BackupConfig configures where originals go before an in-place rewrite.
type BackupConfig struct {
	Dir      string
	S3Bucket string
	S3Prefix string
	// S3Region and the static keys are optional; the default AWS chain is used otherwise.
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	Password    string
}

// StatusConfig defines the optional Redis status sink.
type StatusConfig struct {
	RedisURL     string
	Namespace    string
	PollInterval time.Duration
}

// HistoryConfig defines the job history database.
type HistoryConfig struct {
	Path string
}

// MetricsConfig defines the Prometheus listener.
type MetricsConfig struct {
	Addr string
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Engine  EngineConfig
	Backup  BackupConfig
	Status  StatusConfig
	History HistoryConfig
	Metrics MetricsConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/docshrink.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_docshrink",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Engine = EngineConfig{
		Profile:            getEnv("SHRINK_PROFILE", "balanced"),
		PageBatchSize:      parseInt(getEnv("PAGE_BATCH_SIZE", "4"), 4),
		SampleCap:          parseInt(getEnv("SAMPLE_CAP", "15"), 15),
		TextThreshold:      parseInt(getEnv("TEXT_THRESHOLD", "50"), 50),
		AnalysisMaxPixel:   parseInt(getEnv("ANALYSIS_MAX_PIXEL", "1024"), 1024),
		TileRows:           parseInt(getEnv("TILE_ROWS", "8"), 8),
		TileCols:           parseInt(getEnv("TILE_COLS", "8"), 8),
		RasterHandles:      parseInt(getEnv("RASTER_HANDLES", "2"), 2),
		DocumentWorkers:    parseInt(getEnv("DOCUMENT_WORKERS", "1"), 1),
		ImageWorkers:       parseInt(getEnv("IMAGE_WORKERS", "3"), 3),
		DocumentMaxRetries: clampRetries(parseInt(getEnv("DOCUMENT_MAX_RETRIES", "2"), 2)),
		ImageMaxRetries:    clampRetries(parseInt(getEnv("IMAGE_MAX_RETRIES", "1"), 1)),
		TempDir:            getEnv("SHRINK_TEMP_DIR", ""),
	}
	if cfg.Engine.PageBatchSize <= 0 {
		cfg.Engine.PageBatchSize = 4
	}
	if cfg.Engine.DocumentWorkers <= 0 {
		cfg.Engine.DocumentWorkers = 1
	}
	if cfg.Engine.ImageWorkers <= 0 {
		cfg.Engine.ImageWorkers = 3
	}

	cfg.Backup = BackupConfig{
		Dir:         getEnv("BACKUP_DIR", ".docshrink/backup"),
		S3Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
		S3Prefix:    getEnv("BACKUP_S3_PREFIX", "originals/"),
		S3Region:    getEnv("BACKUP_S3_REGION", ""),
		S3AccessKey: getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		S3SecretKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		Password:    getEnv("BACKUP_PASSWORD", ""),
	}

	cfg.Status = StatusConfig{
		RedisURL:     getEnv("REDIS_URL", ""),
		Namespace:    getEnv("STATUS_NAMESPACE", "shrink"),
		PollInterval: parseDuration(getEnv("CANCEL_POLL_INTERVAL", "500ms"), 500*time.Millisecond),
	}

	cfg.History = HistoryConfig{
		Path: getEnv("HISTORY_DB", ".docshrink/history.db"),
	}

	cfg.Metrics = MetricsConfig{
		Addr: getEnv("METRICS_ADDR", ""),
	}

	return cfg
}

// clampRetries keeps the retry ceiling in the supported 1..2 range.
func clampRetries(n int) int {
	if n < 1 {
		return 1
	}
	if n > 2 {
		return 2
	}
	return n
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
