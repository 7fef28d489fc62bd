// Package config loads application configuration from a yaml file and the
// DOCAUDIT_* environment, and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ledgerline/docaudit/internal/rules"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RulesConfig holds the detection and validation thresholds. Values here are
// the config-file layer; stored business-rule versions override them at
// startup.
type RulesConfig struct {
	DateVarianceDays       float64 `yaml:"date_variance_days" mapstructure:"date_variance_days"`
	AmountVariancePercent  float64 `yaml:"amount_variance_percent" mapstructure:"amount_variance_percent"`
	DuplicateSimilarity    float64 `yaml:"duplicate_similarity_threshold" mapstructure:"duplicate_similarity_threshold"`
	LeasePaymentVariance   float64 `yaml:"lease_payment_variance_percent" mapstructure:"lease_payment_variance_percent"`
	POAmountVariance       float64 `yaml:"po_amount_variance_percent" mapstructure:"po_amount_variance_percent"`
	ScheduleMissTolerance  float64 `yaml:"schedule_miss_tolerance_days" mapstructure:"schedule_miss_tolerance_days"`
	SurplusPaymentPercent  float64 `yaml:"surplus_payment_threshold_percent" mapstructure:"surplus_payment_threshold_percent"`
	MissedPaymentGraceDays float64 `yaml:"missed_payment_grace_days" mapstructure:"missed_payment_grace_days"`
	AutoApproveThreshold   float64 `yaml:"auto_approve_threshold" mapstructure:"auto_approve_threshold"`
	MaxWorkers             int     `yaml:"max_workers" mapstructure:"max_workers"`
}

// Rules converts the config layer into an immutable rule set.
func (rc RulesConfig) Rules() (rules.Rules, error) {
	merged, err := rules.Defaults().Merge(map[string]float64{
		rules.KeyDateVarianceDays:       rc.DateVarianceDays,
		rules.KeyAmountVariancePercent:  rc.AmountVariancePercent,
		rules.KeyDuplicateSimilarity:    rc.DuplicateSimilarity,
		rules.KeyLeasePaymentVariance:   rc.LeasePaymentVariance,
		rules.KeyPOAmountVariance:       rc.POAmountVariance,
		rules.KeyScheduleMissTolerance:  rc.ScheduleMissTolerance,
		rules.KeySurplusPaymentPercent:  rc.SurplusPaymentPercent,
		rules.KeyMissedPaymentGraceDays: rc.MissedPaymentGraceDays,
		rules.KeyAutoApproveThreshold:   rc.AutoApproveThreshold,
		rules.KeyMaxWorkers:             float64(rc.MaxWorkers),
	})
	if err != nil {
		return rules.Rules{}, eris.Wrap(err, "config: invalid rules")
	}
	return merged, nil
}

// AnthropicConfig holds the semantic-analysis API settings. An empty key
// disables semantic analysis.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ExtractionConfig points at the external field-extraction service.
type ExtractionConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Key     string `yaml:"key" mapstructure:"key"`
}

// CacheConfig bounds the in-process contract-context cache.
type CacheConfig struct {
	Capacity int `yaml:"capacity" mapstructure:"capacity"`
	TTLHours int `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// ServerConfig configures the webhook server.
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
	v.SetEnvPrefix("DOCAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "docaudit.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("cache.capacity", 256)
	v.SetDefault("cache.ttl_hours", 1)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.requests_per_second", 2)
	v.SetDefault("rules.date_variance_days", 30)
	v.SetDefault("rules.amount_variance_percent", 5)
	v.SetDefault("rules.duplicate_similarity_threshold", 0.8)
	v.SetDefault("rules.lease_payment_variance_percent", 3)
	v.SetDefault("rules.po_amount_variance_percent", 15)
	v.SetDefault("rules.schedule_miss_tolerance_days", 5)
	v.SetDefault("rules.surplus_payment_threshold_percent", 10)
	v.SetDefault("rules.missed_payment_grace_days", 10)
	v.SetDefault("rules.auto_approve_threshold", 0.85)
	v.SetDefault("rules.max_workers", 3)

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

// InitLogger builds the global zap logger from the log config.
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
