// Package config содержит логику чтения конфигурации портала аренды.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress     = "localhost:8080"
	defaultAPIURL         = "http://localhost:5000"
	defaultPollInterval   = 3 * time.Second
	defaultMaxPolls       = 20
	defaultAPIRetryMax    = 3
	defaultSessionIdleTTL = 30 * time.Minute
)

// Config содержит параметры конфигурации портала аренды.
type Config struct {
	RunAddress     string        `env:"RUN_ADDRESS"`
	APIURL         string        `env:"API_URL"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	SessionSecret  string        `env:"SESSION_SECRET"`
	PollInterval   time.Duration `env:"POLL_INTERVAL"`
	MaxPolls       int           `env:"MAX_POLLS"`
	APIRetryMax    int           `env:"API_RETRY_MAX"`
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения, в том числе из файла .env, имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	envCfg := Config{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.APIURL, "u", defaultAPIURL, "rental platform API address")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI for the payment attempt journal")
	flag.StringVar(&cfg.SessionSecret, "s", "", "session cookie signing secret")
	flag.DurationVar(&cfg.PollInterval, "i", defaultPollInterval, "payment status poll interval")
	flag.IntVar(&cfg.MaxPolls, "m", defaultMaxPolls, "maximum automatic payment status polls")
	flag.IntVar(&cfg.APIRetryMax, "r", defaultAPIRetryMax, "retries for idempotent API reads")
	flag.DurationVar(&cfg.SessionIdleTTL, "t", defaultSessionIdleTTL, "idle session lifetime")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.APIURL != "" {
		cfg.APIURL = envCfg.APIURL
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.SessionSecret != "" {
		cfg.SessionSecret = envCfg.SessionSecret
	}
	if envCfg.PollInterval > 0 {
		cfg.PollInterval = envCfg.PollInterval
	}
	if envCfg.MaxPolls > 0 {
		cfg.MaxPolls = envCfg.MaxPolls
	}
	if envCfg.APIRetryMax > 0 {
		cfg.APIRetryMax = envCfg.APIRetryMax
	}
	if envCfg.SessionIdleTTL > 0 {
		cfg.SessionIdleTTL = envCfg.SessionIdleTTL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.MaxPolls <= 0 {
		return nil, fmt.Errorf("max polls must be positive, got %d", cfg.MaxPolls)
	}

	return cfg, nil
}
