// Package config loads application configuration from an optional YAML
// file and SPLITPILOT_* environment variables, and bootstraps the global
// zap logger.
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
	DB       DBConfig       `yaml:"db" mapstructure:"db"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Analyzer AnalyzerConfig `yaml:"analyzer" mapstructure:"analyzer"`
	Stats    StatsConfig    `yaml:"stats" mapstructure:"stats"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DBConfig configures the SQLite backend.
type DBConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port       int     `yaml:"port" mapstructure:"port"`
	AdminToken string  `yaml:"admin_token" mapstructure:"admin_token"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst  int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// AnalyzerConfig controls the periodic significance sweep.
type AnalyzerConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// StatsConfig carries the test-design defaults applied to every experiment.
type StatsConfig struct {
	MinimumDetectableEffect float64 `yaml:"minimum_detectable_effect" mapstructure:"minimum_detectable_effect"`
	Power                   float64 `yaml:"power" mapstructure:"power"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from the given file (optional) plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("splitpilot")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SPLITPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("db.path", "./splitpilot.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 100.0)
	v.SetDefault("server.rate_burst", 200)
	v.SetDefault("analyzer.enabled", true)
	v.SetDefault("analyzer.interval", time.Minute)
	v.SetDefault("stats.minimum_detectable_effect", 0.10)
	v.SetDefault("stats.power", 0.80)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
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
