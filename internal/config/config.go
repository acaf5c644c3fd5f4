// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Ledger and job queue backends.
const (
	BackendMemory   = "memory"
	BackendBigQuery = "bigquery"
	BackendSQLite   = "sqlite"
	BackendAMQP     = "amqp"
)

type Config struct {
	// HTTP server
	Port string

	// Gemini
	GeminiAPIKey string
	GeminiModel  string

	// Storage
	LedgerBackend string
	BQProjectID   string
	BQDataset     string
	SQLitePath    string
	GCSBucket     string

	// Scan jobs
	JobsBackend  string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Scanning
	DisplayCurrency string
	ScanParallelism int
	ScanTimeout     time.Duration
	ScanWorkers     int

	LogLevel string
}

// Load reads an optional .env file and then the environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		GeminiAPIKey: firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		LedgerBackend: getEnv("LEDGER_BACKEND", BackendMemory),
		BQProjectID:   getEnv("BQ_PROJECT_ID", ""),
		BQDataset:     getEnv("BQ_DATASET", "receipts"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/receipts.db"),
		GCSBucket:     getEnv("GCS_BUCKET", ""),

		JobsBackend:  getEnv("JOBS_BACKEND", BackendMemory),
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "receipts"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "scan_jobs"),

		DisplayCurrency: strings.ToUpper(getEnv("DISPLAY_CURRENCY", "INR")),
		ScanParallelism: getEnvInt("SCAN_PARALLELISM", 1),
		ScanTimeout:     getEnvDuration("SCAN_TIMEOUT", 30*time.Second),
		ScanWorkers:     getEnvInt("SCAN_WORKERS", 2),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.LedgerBackend {
	case BackendMemory:
	case BackendBigQuery:
		if c.BQProjectID == "" {
			problems = append(problems, "BQ_PROJECT_ID is required when LEDGER_BACKEND=bigquery")
		}
		if c.BQDataset == "" {
			problems = append(problems, "BQ_DATASET cannot be empty when LEDGER_BACKEND=bigquery")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			problems = append(problems, "SQLITE_PATH is required when LEDGER_BACKEND=sqlite")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid ledger backend '%s': must be one of [%s %s %s]", c.LedgerBackend, BackendMemory, BackendBigQuery, BackendSQLite))
	}

	switch c.JobsBackend {
	case BackendMemory:
	case BackendAMQP:
		if c.AMQPURL == "" {
			problems = append(problems, "AMQP_URL is required when JOBS_BACKEND=amqp")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP_QUEUE cannot be empty when JOBS_BACKEND=amqp")
		}
		if c.SQLitePath == "" {
			problems = append(problems, "SQLITE_PATH is required when JOBS_BACKEND=amqp (job state is shared through it)")
		}
		if c.LedgerBackend == BackendMemory {
			problems = append(problems, "JOBS_BACKEND=amqp needs a shared ledger: set LEDGER_BACKEND to sqlite or bigquery")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid jobs backend '%s': must be one of [%s %s]", c.JobsBackend, BackendMemory, BackendAMQP))
	}

	if c.ScanParallelism < 1 {
		problems = append(problems, fmt.Sprintf("SCAN_PARALLELISM must be at least 1, got %d", c.ScanParallelism))
	}
	if c.ScanWorkers < 1 {
		problems = append(problems, fmt.Sprintf("SCAN_WORKERS must be at least 1, got %d", c.ScanWorkers))
	}
	if c.ScanTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("SCAN_TIMEOUT must be positive, got %s", c.ScanTimeout))
	}
	if strings.TrimSpace(c.DisplayCurrency) == "" {
		problems = append(problems, "DISPLAY_CURRENCY cannot be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// CanScan reports whether a Gemini credential is configured.
func (c *Config) CanScan() bool {
	return c.GeminiAPIKey != ""
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := getEnv(k, ""); v != "" {
			return v
		}
	}
	return ""
}

func getEnvInt(key string, def int) int {
	if v := getEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := getEnv(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
