package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"forecaster/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forecaster.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL", "ALPACA_DATA_URL", "ALPACA_BASE_URL",
		"FORECASTER_TICKER", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/forecaster/data"
  sqlite_path: "/tmp/forecaster/forecaster.db"
prices:
  provider: "alpaca"
  cache: true
  start_date: "2016-01-01"
  retry_delay: 2s
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  data_url: "https://data.alpaca.markets"
logging:
  level: "debug"
  format: "text"
pipeline:
  ticker: "SPY"
  horizon: 1
  features: [1, 2, 3]
  start: "2017-01-03"
  end: "2020-12-31"
  train_fraction: 0.7
  step_size: 5
  position_size: 0
classifier:
  name: "logistic"
  epochs: 200
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/forecaster/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/forecaster/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/forecaster/forecaster.db" {
		t.Errorf("Storage.SQLitePath = %q", cfg.Storage.SQLitePath)
	}

	// -- Prices --
	if cfg.Prices.Provider != "alpaca" || !cfg.Prices.Cache {
		t.Errorf("Prices = %+v, want alpaca with cache", cfg.Prices)
	}
	if cfg.Prices.RetryDelay != 2*time.Second {
		t.Errorf("Prices.RetryDelay = %s, want 2s", cfg.Prices.RetryDelay)
	}
	if cfg.Prices.RetryAttempts != 3 {
		t.Errorf("Prices.RetryAttempts = %d, want default 3", cfg.Prices.RetryAttempts)
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" || cfg.Alpaca.APISecret != "test-secret" {
		t.Errorf("Alpaca credentials = %q/%q", cfg.Alpaca.APIKey, cfg.Alpaca.APISecret)
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	// -- Pipeline --
	p := cfg.Pipeline
	if p.Ticker != "SPY" || p.Horizon != 1 || p.Label != "binary" {
		t.Errorf("Pipeline = %+v", p)
	}
	if len(p.Features) != 3 || p.Features[2] != 3 {
		t.Errorf("Pipeline.Features = %v, want [1 2 3]", p.Features)
	}
	if p.TrainFraction == nil || *p.TrainFraction != 0.7 {
		t.Errorf("Pipeline.TrainFraction = %v, want 0.7", p.TrainFraction)
	}
	if p.StepSize == nil || *p.StepSize != 5 {
		t.Errorf("Pipeline.StepSize = %v, want 5", p.StepSize)
	}
	// An explicit zero position size must survive as zero, not as unset.
	if p.PositionSize == nil || *p.PositionSize != 0 {
		t.Errorf("Pipeline.PositionSize = %v, want explicit 0", p.PositionSize)
	}

	// -- Classifier --
	if cfg.Classifier.Name != "logistic" || cfg.Classifier.Epochs != 200 {
		t.Errorf("Classifier = %+v", cfg.Classifier)
	}
	if cfg.Classifier.MaxDepth != 3 {
		t.Errorf("Classifier.MaxDepth = %d, want default 3", cfg.Classifier.MaxDepth)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
pipeline:
  ticker: "BBDC4.SA"
`)

	t.Setenv("APCA_API_KEY_ID", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("FORECASTER_TICKER", "SPY")
	t.Setenv("ALPACA_BASE_URL", "https://paper-api.alpaca.markets")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Pipeline.Ticker != "SPY" {
		t.Errorf("Pipeline.Ticker = %q, want %q (env override)", cfg.Pipeline.Ticker, "SPY")
	}
	if cfg.Pipeline.PositionSize != nil {
		t.Errorf("Pipeline.PositionSize = %v, want unset", *cfg.Pipeline.PositionSize)
	}
	if cfg.Alpaca.BaseURL != "https://paper-api.alpaca.markets" {
		t.Errorf("Alpaca.BaseURL = %q, want env override", cfg.Alpaca.BaseURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() of a missing file should fail")
	}
}

func TestPath(t *testing.T) {
	t.Setenv("FORECASTER_CONFIG", "")
	if got := Path(""); got != DefaultPath {
		t.Errorf("Path(\"\") = %q, want %q", got, DefaultPath)
	}
	t.Setenv("FORECASTER_CONFIG", "/etc/forecaster.yaml")
	if got := Path(""); got != "/etc/forecaster.yaml" {
		t.Errorf("Path(\"\") = %q, want env value", got)
	}
	if got := Path("cli.yaml"); got != "cli.yaml" {
		t.Errorf("Path(flag) = %q, want flag value", got)
	}
}

func TestValidate(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	n := func(v int) *int { return &v }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing ticker", func(c *Config) { c.Pipeline.Ticker = "" }, true},
		{"zero horizon", func(c *Config) { c.Pipeline.Horizon = 0 }, true},
		{"bad start", func(c *Config) { c.Pipeline.Start = "2020/01/01" }, true},
		{"fraction zero", func(c *Config) { c.Pipeline.TrainFraction = f(0) }, true},
		{"fraction one", func(c *Config) { c.Pipeline.TrainFraction = f(1) }, true},
		{"fraction ok", func(c *Config) { c.Pipeline.TrainFraction = f(0.3) }, false},
		{"step zero", func(c *Config) { c.Pipeline.StepSize = n(0) }, true},
		{"step negative", func(c *Config) { c.Pipeline.StepSize = n(-2) }, true},
		{"csv without path", func(c *Config) { c.Prices.CSVPath = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Pipeline.Ticker = "SPY"
			cfg.Prices.CSVPath = "prices.csv"
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("Validate() error = %v, want ErrConfiguration", err)
			}
		})
	}
}
