// Package config provides configuration loading for the pipeline.
//
// Configuration is read from environment variables, with an optional local
// .env file loaded first via godotenv. There is no settings database in this
// system — every value that matters to a run is either in the environment or
// in the providers.json-style ProviderSpec list below.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProviderSpec describes one configured data provider and its declared
// rate limits and capabilities, as read from PIPELINE_PROVIDERS.
type ProviderSpec struct {
	Name          string
	Priority      int
	RatePerMinute int
	RatePerDay    int
	Capabilities  []string
}

// Config holds application configuration for one pipeline run or one
// long-lived scheduler process.
type Config struct {
	DataDir  string // base directory for the sqlite database and run logs
	LogDir   string // directory for rotating per-run text logs
	LogLevel string

	DailyAPIBudget             int     // total provider calls allowed per day (default 1000)
	APIBudgetReservePct        float64 // fraction held back for backfill (default 0.2)
	PriceBatchSize             int     // max symbols per quote_batch call (default 100)
	InterBatchDelayMs          int     // delay between price batches (default 1000)
	WorkerCount                int     // bounded worker pool size per phase (default 5)
	RunDeadlineSeconds         int     // global run deadline (default 3600)
	MinimumHistoryDays         int     // backfill target (default 100)
	RateLimitWaitThresholdSecs int     // max time a worker waits on a rate limiter before deferring (default 300)

	MarketCloseUTC string // HH:MM; scheduler triggers this + 1h (default "21:00")

	Providers []ProviderSpec
}

// Load reads configuration from environment variables, loading a local .env
// file first if one is present.
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("PIPELINE_DATA_DIR", "./data")
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logDir := getEnv("PIPELINE_LOG_DIR", filepath.Join(absDataDir, "logs"))
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	cfg := &Config{
		DataDir:                    absDataDir,
		LogDir:                     logDir,
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		DailyAPIBudget:             getEnvAsInt("PIPELINE_DAILY_API_BUDGET", 1000),
		APIBudgetReservePct:        getEnvAsFloat("PIPELINE_API_BUDGET_RESERVE_PCT", 0.2),
		PriceBatchSize:             getEnvAsInt("PIPELINE_PRICE_BATCH_SIZE", 100),
		InterBatchDelayMs:          getEnvAsInt("PIPELINE_INTER_BATCH_DELAY_MS", 1000),
		WorkerCount:                getEnvAsInt("PIPELINE_WORKER_COUNT", 5),
		RunDeadlineSeconds:         getEnvAsInt("PIPELINE_RUN_DEADLINE_SECONDS", 3600),
		MinimumHistoryDays:         getEnvAsInt("PIPELINE_MINIMUM_HISTORY_DAYS", 100),
		RateLimitWaitThresholdSecs: getEnvAsInt("PIPELINE_RATE_LIMIT_WAIT_THRESHOLD_SECONDS", 300),
		MarketCloseUTC:             getEnv("PIPELINE_MARKET_CLOSE_UTC", "21:00"),
		Providers:                  parseProviders(getEnv("PIPELINE_PROVIDERS", "")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime errors deep inside the orchestrator.
func (c *Config) Validate() error {
	if c.DailyAPIBudget <= 0 {
		return fmt.Errorf("daily API budget must be positive, got %d", c.DailyAPIBudget)
	}
	if c.APIBudgetReservePct < 0 || c.APIBudgetReservePct >= 1 {
		return fmt.Errorf("API budget reserve percentage must be in [0,1), got %f", c.APIBudgetReservePct)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.WorkerCount)
	}
	if c.RateLimitWaitThresholdSecs <= 0 {
		return fmt.Errorf("rate limit wait threshold must be positive, got %d", c.RateLimitWaitThresholdSecs)
	}
	return nil
}

// RunDeadline returns the configured global run deadline as a duration.
func (c *Config) RunDeadline() time.Duration {
	return time.Duration(c.RunDeadlineSeconds) * time.Second
}

// InterBatchDelay returns the configured inter-batch delay as a duration.
func (c *Config) InterBatchDelay() time.Duration {
	return time.Duration(c.InterBatchDelayMs) * time.Millisecond
}

// RateLimitWaitThreshold returns the configured per-phase backpressure
// threshold as a duration: the longest a worker will block on a provider's
// rate limiter before the Router defers that call and the phase ends early,
// per §5's backpressure rule.
func (c *Config) RateLimitWaitThreshold() time.Duration {
	return time.Duration(c.RateLimitWaitThresholdSecs) * time.Second
}

// parseProviders parses a compact provider spec string of the form
// "name:priority:ratePerMin:ratePerDay:cap1|cap2;..." — one entry per
// provider, separated by semicolons. This keeps provider configuration in a
// single environment variable without requiring a JSON/YAML dependency for a
// handful of fields.
func parseProviders(raw string) []ProviderSpec {
	if raw == "" {
		return nil
	}
	var specs []ProviderSpec
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ":")
		if len(fields) != 5 {
			continue
		}
		priority, _ := strconv.Atoi(fields[1])
		ratePerMin, _ := strconv.Atoi(fields[2])
		ratePerDay, _ := strconv.Atoi(fields[3])
		specs = append(specs, ProviderSpec{
			Name:          fields[0],
			Priority:      priority,
			RatePerMinute: ratePerMin,
			RatePerDay:    ratePerDay,
			Capabilities:  strings.Split(fields[4], "|"),
		})
	}
	return specs
}

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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
