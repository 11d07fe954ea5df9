package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"forecaster/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the forecaster tools.
type Config struct {
	Logging    Logging    `yaml:"logging"`
	Storage    Storage    `yaml:"storage"`
	Prices     Prices     `yaml:"prices"`
	Alpaca     Alpaca     `yaml:"alpaca"`
	Pipeline   Pipeline   `yaml:"pipeline"`
	Classifier Classifier `yaml:"classifier"`
	Report     Report     `yaml:"report"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Prices selects and tunes the price source.
type Prices struct {
	Provider        string        `yaml:"provider"`
	CSVPath         string        `yaml:"csv_path"`
	Cache           bool          `yaml:"cache"`
	StartDate       string        `yaml:"start_date"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs. BaseURL is
// the trading API, used for the market calendar; DataURL is market data.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Pipeline describes one backtest run. Start and End are YYYY-MM-DD dates;
// empty means the first and last date of the fetched series.
type Pipeline struct {
	Ticker        string   `yaml:"ticker"`
	Horizon       int      `yaml:"horizon"`
	Label         string   `yaml:"label"`
	Features      []int    `yaml:"features"`
	Start         string   `yaml:"start"`
	End           string   `yaml:"end"`
	TrainFraction *float64 `yaml:"train_fraction"`
	StepSize      *int     `yaml:"step_size"`
	PositionSize  *float64 `yaml:"position_size"`
}

// Classifier selects the model and its hyperparameters.
type Classifier struct {
	Name         string  `yaml:"name"`
	Criterion    string  `yaml:"criterion"`
	MaxDepth     int     `yaml:"max_depth"`
	LearningRate float64 `yaml:"learning_rate"`
	Epochs       int     `yaml:"epochs"`
}

// Report controls where run artifacts are written.
type Report struct {
	ExportImpacts bool   `yaml:"export_impacts"`
	MetricsPath   string `yaml:"metrics_path"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// DefaultPath is used when neither -config nor FORECASTER_CONFIG is given.
const DefaultPath = "config/forecaster.yaml"

// Path resolves the configuration file path: flag value first, then the
// FORECASTER_CONFIG environment variable, then DefaultPath.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("FORECASTER_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, loads an optional .env file and then applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// .env is optional; a missing file is not an error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns a Config populated with the values used when a key is
// absent from the YAML file.
func Default() *Config {
	return &Config{
		Logging: Logging{Level: "info", Format: "json"},
		Storage: Storage{DataDir: "data", SQLitePath: "data/forecaster.db"},
		Prices: Prices{
			Provider:        "csv",
			RateLimitPerMin: 200,
			RetryAttempts:   3,
			RetryDelay:      time.Second,
		},
		Alpaca:   Alpaca{Feed: "sip"},
		Pipeline: Pipeline{Horizon: 1, Label: "binary", Features: []int{1, 2}},
		Classifier: Classifier{
			Name:         "decision_tree",
			Criterion:    "gini",
			MaxDepth:     3,
			LearningRate: 0.1,
			Epochs:       500,
		},
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("FORECASTER_TICKER"); v != "" {
		cfg.Pipeline.Ticker = v
	}

	// Standard Alpaca env vars, the canonical names used by the SDK.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks the fields every tool depends on. Domain-specific checks
// (known label kinds, feature ids, classifier names) happen where those
// registries live.
func (c *Config) Validate() error {
	p := c.Pipeline
	if strings.TrimSpace(p.Ticker) == "" {
		return fmt.Errorf("%w: pipeline.ticker is required", domain.ErrConfiguration)
	}
	if p.Horizon <= 0 {
		return fmt.Errorf("%w: pipeline.horizon must be positive, got %d", domain.ErrConfiguration, p.Horizon)
	}
	for _, s := range []string{p.Start, p.End} {
		if s == "" {
			continue
		}
		if _, err := domain.ParseDate(s); err != nil {
			return err
		}
	}
	if p.TrainFraction != nil && (*p.TrainFraction <= 0 || *p.TrainFraction >= 1) {
		return fmt.Errorf("%w: pipeline.train_fraction must be in (0, 1), got %v",
			domain.ErrConfiguration, *p.TrainFraction)
	}
	if p.StepSize != nil && *p.StepSize <= 0 {
		return fmt.Errorf("%w: pipeline.step_size must be positive, got %d", domain.ErrConfiguration, *p.StepSize)
	}
	if c.Prices.Provider == "csv" && c.Prices.CSVPath == "" {
		return fmt.Errorf("%w: prices.csv_path is required for the csv provider", domain.ErrConfiguration)
	}
	return nil
}
