// Package config loads marketgov's YAML configuration file and layers
// environment overrides on top of it, the way the teacher's
// internal/config/guards.go loads a YAML profile and the way
// aristath-sentinel and ChoSanghyuk-blackholedex load a .env file
// before reading os.Getenv for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config is the resolved runtime configuration for every subsystem in
// SPEC_FULL.md §0.
type Config struct {
	RedisURL string `yaml:"redis_url"`

	KIS struct {
		AppKey    string `yaml:"app_key"`
		AppSecret string `yaml:"app_secret"`
		BaseURL   string `yaml:"base_url"`
	} `yaml:"kis"`

	Upbit struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"upbit"`

	KRX struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"krx"`

	USScreen struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"us_screen"`

	Scrape struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"scrape"`

	DART struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"dart"`

	CoinGecko struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"coingecko"`

	HTTP struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"http"`

	Screening struct {
		EnrichmentConcurrency int           `yaml:"enrichment_concurrency"`
		EnrichmentTimeout     time.Duration `yaml:"enrichment_timeout"`
	} `yaml:"screening"`

	Crypto struct {
		TopByVolume  int     `yaml:"top_by_volume"`
		DropThreshold float64 `yaml:"drop_threshold"`
		MarketPanic   float64 `yaml:"market_panic"`
	} `yaml:"crypto"`

	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the documented defaults from SPEC_FULL.md / spec.md §6.
func Default() *Config {
	c := &Config{
		RedisURL: "redis://localhost:6379/0",
		LogLevel: "info",
	}
	c.KIS.BaseURL = "https://openapi.koreainvestment.com:9443"
	c.Upbit.BaseURL = "https://api.upbit.com"
	c.KRX.BaseURL = "https://data.krx.co.kr"
	c.USScreen.BaseURL = "https://query1.finance.yahoo.com"
	c.Scrape.BaseURL = "https://finance.naver.com"
	c.DART.BaseURL = "https://opendart.fss.or.kr"
	c.CoinGecko.BaseURL = "https://api.coingecko.com"
	c.HTTP.Host = "127.0.0.1"
	c.HTTP.Port = 8080
	c.Screening.EnrichmentConcurrency = 10
	c.Screening.EnrichmentTimeout = 30 * time.Second
	c.Crypto.TopByVolume = 100
	c.Crypto.DropThreshold = -0.30
	c.Crypto.MarketPanic = -0.10
	return c
}

// Load reads a YAML file (if it exists) over the defaults, then applies
// MARKETGOV_* environment variables, loading a .env file first when
// present so local development matches production secret plumbing.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MARKETGOV_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("MARKETGOV_KIS_APP_KEY"); v != "" {
		cfg.KIS.AppKey = v
	}
	if v := os.Getenv("MARKETGOV_KIS_APP_SECRET"); v != "" {
		cfg.KIS.AppSecret = v
	}
	if v := os.Getenv("MARKETGOV_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("MARKETGOV_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MARKETGOV_ENRICHMENT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Screening.EnrichmentConcurrency = n
		}
	}
	if v := os.Getenv("MARKETGOV_ENRICHMENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Screening.EnrichmentTimeout = d
		}
	}
	if v := os.Getenv("MARKETGOV_CRYPTO_TOP_BY_VOLUME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Crypto.TopByVolume = n
		}
	}
	if v := os.Getenv("MARKETGOV_DART_API_KEY"); v != "" {
		cfg.DART.APIKey = v
	}
	if v := os.Getenv("MARKETGOV_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = n
		}
	}
}
