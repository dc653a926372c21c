package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"crypto-analyzer/internal/model"
)

var knownSources = []string{"binance", "okx", "kraken"}

func writeInstruments(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instruments.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write instruments file: %v", err)
	}
	return path
}

func TestLoadInstrumentsValid(t *testing.T) {
	path := writeInstruments(t, `
instruments:
  - symbol: BTC
    enabled: true
    sources: [binance, okx]
    backfill_years: 4
  - symbol: ETH
    enabled: false
    sources: [kraken]
    backfill_years: 2
`)
	insts, err := LoadInstruments(path, knownSources)
	if err != nil {
		t.Fatalf("LoadInstruments: %v", err)
	}
	if len(insts) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(insts))
	}
	if insts[0].Symbol != "BTC" || !insts[0].Enabled || insts[0].BackfillYears != 4 {
		t.Errorf("unexpected first instrument: %+v", insts[0])
	}
	if insts[1].Enabled {
		t.Errorf("ETH should be disabled")
	}
}

func TestLoadInstrumentsRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"empty list", `instruments: []`},
		{"duplicate symbol", `
instruments:
  - {symbol: BTC, enabled: true, sources: [binance], backfill_years: 1}
  - {symbol: BTC, enabled: true, sources: [okx], backfill_years: 1}
`},
		{"no sources", `
instruments:
  - {symbol: BTC, enabled: true, sources: [], backfill_years: 1}
`},
		{"unknown source", `
instruments:
  - {symbol: BTC, enabled: true, sources: [bitfinex], backfill_years: 1}
`},
		{"non-positive backfill", `
instruments:
  - {symbol: BTC, enabled: true, sources: [binance], backfill_years: 0}
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeInstruments(t, tc.yaml)
			_, err := LoadInstruments(path, knownSources)
			if err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
			var cfgErr *model.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigError, got %T: %v", err, err)
			}
		})
	}
}

func TestLoadRejectsBadStrategyParams(t *testing.T) {
	t.Setenv("DCA_BASE_AMOUNT", "-50")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative DCA amount")
	}
	t.Setenv("DCA_BASE_AMOUNT", "100")
	t.Setenv("BACKTEST_YEARS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero backtest horizon")
	}
}

func TestLoadParsesIntervalsAndDurations(t *testing.T) {
	t.Setenv("ENABLED_INTERVALS", "4h,1d,1w")
	t.Setenv("SYNC_EVERY", "10m")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Intervals) != 3 {
		t.Fatalf("expected 3 intervals, got %d", len(cfg.Intervals))
	}
	if cfg.Intervals[2] != model.Interval1w {
		t.Errorf("expected 1w last, got %s", cfg.Intervals[2])
	}
	if cfg.SyncEvery.Minutes() != 10 {
		t.Errorf("expected 10m sync cadence, got %v", cfg.SyncEvery)
	}
}
