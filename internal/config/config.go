package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the environment-driven settings. Strategy weights and risk
// profiles live in a JSON profile file (see strategy.LoadProfiles); the
// environment only carries connection and run parameters.
type Config struct {
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Exchange struct {
		APIKey    string `envconfig:"BYBIT_API_KEY"`
		APISecret string `envconfig:"BYBIT_API_SECRET"`
		Testnet   bool   `envconfig:"BYBIT_TESTNET" default:"true"`
		Category  string `envconfig:"BYBIT_CATEGORY" default:"linear"`
	}

	Trading struct {
		Symbol     string  `envconfig:"TRADING_SYMBOL" default:"BTCUSDT"`
		Interval   string  `envconfig:"TRADING_INTERVAL" default:"60"`
		WindowSize int     `envconfig:"WINDOW_SIZE" default:"50"`
		Leverage   float64 `envconfig:"LEVERAGE" default:"1"`
	}

	ProfileFile string `envconfig:"PROFILE_FILE"`
	ModelPath   string `envconfig:"REGIME_MODEL_PATH"`

	Monitoring struct {
		PrometheusPort int `envconfig:"PROMETHEUS_PORT" default:"8080"`
	}
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may be set by the runtime.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return &cfg, nil
}
