// Package config loads the application configuration from file and
// environment, and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Lists   ListsConfig   `yaml:"lists" mapstructure:"lists"`
	Scrape  ScrapeConfig  `yaml:"scrape" mapstructure:"scrape"`
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the backend HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// ListsConfig configures list persistence.
type ListsConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir"`
	CacheDB string `yaml:"cache_db" mapstructure:"cache_db"`
}

// ScrapeConfig configures the upstream search client.
type ScrapeConfig struct {
	Lang     string  `yaml:"lang" mapstructure:"lang"`
	ProxyURL string  `yaml:"proxy_url" mapstructure:"proxy_url"`
	Zoom     int     `yaml:"zoom" mapstructure:"zoom"`
	RPS      float64 `yaml:"rps" mapstructure:"rps"`
}

// BackendConfig configures the client side (TUI and headless commands).
type BackendConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("leadtap")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/leadtap")

	v.SetEnvPrefix("LEADTAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("lists.dir", "liste")
	v.SetDefault("lists.cache_db", "places_cache.db")
	v.SetDefault("scrape.lang", "it")
	v.SetDefault("scrape.zoom", 17)
	v.SetDefault("scrape.rps", 2.0)
	v.SetDefault("backend.base_url", "http://127.0.0.1:8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
