// Package config loads the application configuration from a YAML file with
// environment overrides, so deployments can tune the pool without rebuilding.
// Overrides use the QAFORGE_ prefix: QAFORGE_LOG_LEVEL=debug takes precedence
// over logging.level from the file.
package config

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/qaforge/qaforge/pkg/pool"
	"github.com/qaforge/qaforge/pkg/qaerrors"
)

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development" json:"development"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"service_name" json:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
}

// AppConfig is the full application configuration.
type AppConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
	Pool    pool.Config   `yaml:"pool" json:"pool"`
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	return &AppConfig{
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090"},
		Tracing: TracingConfig{ServiceName: "qaforge"},
		Pool:    pool.DefaultConfig(),
	}
}

// envBindings maps configuration keys to their override variables.
var envBindings = map[string]string{
	"logging.level":              "QAFORGE_LOG_LEVEL",
	"metrics.addr":               "QAFORGE_METRICS_ADDR",
	"pool.global_max_agents":     "QAFORGE_GLOBAL_MAX_AGENTS",
	"pool.health_check_interval": "QAFORGE_HEALTH_CHECK_INTERVAL",
}

// Load reads the configuration file at path (defaults when empty), applies
// environment overrides, and validates the result.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, qaerrors.Wrap(err, qaerrors.ErrorTypeConfig, "reading config file").
				WithDetail("path", path)
		}
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, qaerrors.Wrap(err, qaerrors.ErrorTypeConfig, "binding environment override")
		}
	}

	// Struct fields carry yaml tags; tell the decoder to use them so file
	// keys and struct fields line up.
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return nil, qaerrors.Wrap(err, qaerrors.ErrorTypeConfig, "decoding configuration")
	}

	if err := cfg.Pool.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Dump renders the effective configuration as YAML.
func (c *AppConfig) Dump() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", qaerrors.Wrap(err, qaerrors.ErrorTypeConfig, "encoding configuration")
	}
	return string(out), nil
}
