package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	ListenAddr     string        `mapstructure:"LISTEN_ADDR"`
	DBURL          string        `mapstructure:"DB_URL"`
	GithubToken    string        `mapstructure:"GITHUB_TOKEN"`
	NLPBaseURL     string        `mapstructure:"NLP_BASE_URL"`
	MaxRepos       int           `mapstructure:"MAX_REPOS"`
	DeepScanBudget int           `mapstructure:"DEEP_SCAN_BUDGET"`
	ScanCacheSize  int           `mapstructure:"SCAN_CACHE_SIZE"`
	StaleAfter     time.Duration `mapstructure:"STALE_AFTER"`
	WorkerSchedule string        `mapstructure:"WORKER_SCHEDULE"`
	HTTPTimeout    time.Duration `mapstructure:"HTTP_TIMEOUT"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LISTEN_ADDR", ":8080")
	viper.SetDefault("MAX_REPOS", 100)
	viper.SetDefault("DEEP_SCAN_BUDGET", 35)
	viper.SetDefault("SCAN_CACHE_SIZE", 600)
	viper.SetDefault("STALE_AFTER", "5m")
	viper.SetDefault("WORKER_SCHEDULE", "@every 30s")
	viper.SetDefault("HTTP_TIMEOUT", "30s")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.NLPBaseURL == "" {
		return nil, errors.New("NLP_BASE_URL is a required configuration field")
	}
	if cfg.MaxRepos <= 0 || cfg.MaxRepos > 100 {
		return nil, errors.New("MAX_REPOS must be between 1 and 100")
	}

	return &cfg, nil
}
