// Package config loads application configuration and initializes logging.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Blob    BlobConfig    `yaml:"blob" mapstructure:"blob"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Review  ReviewConfig  `yaml:"review" mapstructure:"review"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Worker  WorkerConfig  `yaml:"worker" mapstructure:"worker"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BlobConfig configures image storage.
type BlobConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// ExtractConfig configures the entity-extraction service.
type ExtractConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	ProcessorID string `yaml:"processor_id" mapstructure:"processor_id"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-call extraction timeout.
func (c ExtractConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ReviewConfig configures the AI quality-review pass.
type ReviewConfig struct {
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-call review timeout.
func (c ReviewConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// GeocodeConfig configures address validation.
type GeocodeConfig struct {
	GoogleAPIKey string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-call geocoding timeout.
func (c GeocodeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// WorkerConfig configures the job processing loop.
type WorkerConfig struct {
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	IdleSleepSecs    int     `yaml:"idle_sleep_secs" mapstructure:"idle_sleep_secs"`
	JobTimeoutSecs   int     `yaml:"job_timeout_secs" mapstructure:"job_timeout_secs"`
	CropMarginExpand float64 `yaml:"crop_margin_expand" mapstructure:"crop_margin_expand"`
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CARDCAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "cardcapture.db")
	v.SetDefault("blob.root", "./data/images")
	v.SetDefault("extract.timeout_secs", 60)
	v.SetDefault("review.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("review.max_tokens", 4096)
	v.SetDefault("review.timeout_secs", 90)
	v.SetDefault("geocode.rate_limit_rps", 10)
	v.SetDefault("geocode.timeout_secs", 15)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.idle_sleep_secs", 1)
	v.SetDefault("worker.job_timeout_secs", 300)
	v.SetDefault("worker.crop_margin_expand", 0.5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
