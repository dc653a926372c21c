package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"crypto-analyzer/internal/model"

	"github.com/joho/godotenv"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration loaded from environment
// variables (optionally seeded from a .env file).
type Config struct {
	// Infrastructure
	SQLitePath    string
	RedisAddr     string // empty disables the Redis cache layer
	RedisPassword string
	MetricsAddr   string
	WebhookURL    string // empty disables pattern webhooks

	// Instruments definition file (YAML)
	InstrumentsFile string

	// Enabled candle intervals, shortest first
	Intervals []model.Interval

	// Job cadences
	SyncEvery     time.Duration
	AnalysisEvery time.Duration
	BacktestEvery time.Duration

	// Strategy parameters
	DCABaseAmount float64
	DCACadence    int // daily candles between buys
	BacktestYears int

	// Live websocket ingest for the shortest interval
	LiveStream bool

	LogLevel string
}

// Load reads configuration from the environment with sensible defaults.
// Invalid values are rejected here, before any job schedules.
func Load() (*Config, error) {
	// .env is optional; real env vars win over file entries.
	_ = godotenv.Load()

	cfg := &Config{
		SQLitePath:      getEnv("SQLITE_PATH", "data/candles.db"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:     getEnv("METRICS_ADDR", ":9090"),
		WebhookURL:      getEnv("WEBHOOK_URL", ""),
		InstrumentsFile: getEnv("INSTRUMENTS_FILE", "config/instruments.yaml"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LiveStream:      getEnv("LIVE_STREAM", "false") == "true",
	}

	var err error
	if cfg.Intervals, err = parseIntervals(getEnv("ENABLED_INTERVALS", "4h,1d,1w")); err != nil {
		return nil, err
	}
	if cfg.SyncEvery, err = getEnvDuration("SYNC_EVERY", "5m"); err != nil {
		return nil, err
	}
	if cfg.AnalysisEvery, err = getEnvDuration("ANALYSIS_EVERY", "4h"); err != nil {
		return nil, err
	}
	if cfg.BacktestEvery, err = getEnvDuration("BACKTEST_EVERY", "1d"); err != nil {
		return nil, err
	}
	if cfg.DCABaseAmount, err = getEnvFloat("DCA_BASE_AMOUNT", 100); err != nil {
		return nil, err
	}
	if cfg.DCACadence, err = getEnvInt("DCA_CADENCE_DAYS", 7); err != nil {
		return nil, err
	}
	if cfg.BacktestYears, err = getEnvInt("BACKTEST_YEARS", 2); err != nil {
		return nil, err
	}

	if cfg.DCABaseAmount <= 0 {
		return nil, &model.ConfigError{Field: "DCA_BASE_AMOUNT", Reason: "must be positive"}
	}
	if cfg.DCACadence <= 0 {
		return nil, &model.ConfigError{Field: "DCA_CADENCE_DAYS", Reason: "must be positive"}
	}
	if cfg.BacktestYears <= 0 {
		return nil, &model.ConfigError{Field: "BACKTEST_YEARS", Reason: "must be positive"}
	}
	return cfg, nil
}

// InstrumentConfig drives which instruments the collector polls, in which
// source order, and how deep the initial backfill goes. Read-only after
// load; reloading produces a fresh list, never in-place mutation.
type InstrumentConfig struct {
	Symbol        string   `yaml:"symbol"`
	Enabled       bool     `yaml:"enabled"`
	Sources       []string `yaml:"sources"`
	BackfillYears int      `yaml:"backfill_years"`
}

type instrumentsFile struct {
	Instruments []InstrumentConfig `yaml:"instruments"`
}

// LoadInstruments parses and validates the instruments YAML file.
// knownSources is the set of collector source names available at runtime.
func LoadInstruments(path string, knownSources []string) ([]InstrumentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruments file: %w", err)
	}

	var f instrumentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &model.ConfigError{Field: "instruments", Reason: err.Error()}
	}
	if len(f.Instruments) == 0 {
		return nil, &model.ConfigError{Field: "instruments", Reason: "no instruments defined"}
	}

	known := make(map[string]bool, len(knownSources))
	for _, s := range knownSources {
		known[s] = true
	}

	seen := make(map[string]bool, len(f.Instruments))
	for i, inst := range f.Instruments {
		field := fmt.Sprintf("instruments[%d]", i)
		if inst.Symbol == "" {
			return nil, &model.ConfigError{Field: field, Reason: "empty symbol"}
		}
		if seen[inst.Symbol] {
			return nil, &model.ConfigError{Field: field, Reason: "duplicate symbol " + inst.Symbol}
		}
		seen[inst.Symbol] = true
		if len(inst.Sources) == 0 {
			return nil, &model.ConfigError{Field: field, Reason: "empty source list for " + inst.Symbol}
		}
		for _, s := range inst.Sources {
			if !known[s] {
				return nil, &model.ConfigError{Field: field, Reason: "unknown source " + s}
			}
		}
		if inst.BackfillYears <= 0 {
			return nil, &model.ConfigError{Field: field, Reason: "backfill_years must be positive"}
		}
	}
	return f.Instruments, nil
}

func parseIntervals(s string) ([]model.Interval, error) {
	parts := strings.Split(s, ",")
	ivs := make([]model.Interval, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		iv, err := model.ParseInterval(p)
		if err != nil {
			return nil, err
		}
		ivs = append(ivs, iv)
	}
	if len(ivs) == 0 {
		return nil, &model.ConfigError{Field: "ENABLED_INTERVALS", Reason: "no valid intervals"}
	}
	return ivs, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvDuration(key, fallback string) (time.Duration, error) {
	v := getEnv(key, fallback)
	d, err := str2duration.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, &model.ConfigError{Field: key, Reason: fmt.Sprintf("invalid duration %q", v)}
	}
	return d, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &model.ConfigError{Field: key, Reason: fmt.Sprintf("invalid number %q", v)}
	}
	return f, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid integer for %s: %q", key, v)
		return 0, &model.ConfigError{Field: key, Reason: fmt.Sprintf("invalid integer %q", v)}
	}
	return n, nil
}
