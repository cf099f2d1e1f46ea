package pool

import (
	"time"

	"github.com/qaforge/qaforge/pkg/qaerrors"
)

// WarmupStrategy controls whether Warmup proactively initializes the
// instances it creates.
type WarmupStrategy string

const (
	// WarmupEager initializes warmed instances for types that request
	// pre-initialization.
	WarmupEager WarmupStrategy = "eager"
	// WarmupLazy defers all initialization to first acquisition.
	WarmupLazy WarmupStrategy = "lazy"
)

// DefaultAcquireTimeout bounds how long an acquire waits in the queue when no
// explicit timeout is given.
const DefaultAcquireTimeout = 5 * time.Second

// TypePoolConfig is the sizing and eviction policy for one agent type.
type TypePoolConfig struct {
	// MinSize is the floor the pool replenishes back up to after disposals.
	MinSize int `yaml:"min_size" json:"min_size"`
	// MaxSize caps how many instances of this type may exist at once.
	MaxSize int `yaml:"max_size" json:"max_size"`
	// WarmupCount is how many instances Warmup pre-creates.
	WarmupCount int `yaml:"warmup_count" json:"warmup_count"`
	// PreInitialize runs the expensive initialization step during warmup
	// instead of deferring it to first acquisition.
	PreInitialize bool `yaml:"pre_initialize" json:"pre_initialize"`
	// IdleTTL is the maximum unused time before an available instance
	// becomes eligible for eviction.
	IdleTTL time.Duration `yaml:"idle_ttl" json:"idle_ttl"`
	// GrowthIncrement bounds how many instances a replenishment pass creates
	// in one batch.
	GrowthIncrement int `yaml:"growth_increment" json:"growth_increment"`
}

// Config is the global pool configuration.
type Config struct {
	// Types maps agent types to their sub-pool policies. Types not listed
	// here fall back to Default.
	Types map[string]TypePoolConfig `yaml:"types" json:"types"`
	// Default applies to any agent type without an explicit entry in Types.
	Default TypePoolConfig `yaml:"default" json:"default"`
	// GlobalMaxAgents is a hard ceiling on instances summed across all
	// types. Zero means unbounded.
	GlobalMaxAgents int `yaml:"global_max_agents" json:"global_max_agents"`
	// WarmupStrategy selects eager or lazy initialization during warmup.
	WarmupStrategy WarmupStrategy `yaml:"warmup_strategy" json:"warmup_strategy"`
	// HealthCheckInterval is the period of the background sweep that evicts
	// idle and unhealthy instances. Zero disables the sweep.
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultTypePoolConfig returns the per-type policy used when none is
// configured.
func DefaultTypePoolConfig() TypePoolConfig {
	return TypePoolConfig{
		MinSize:         1,
		MaxSize:         4,
		WarmupCount:     1,
		PreInitialize:   false,
		IdleTTL:         5 * time.Minute,
		GrowthIncrement: 1,
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Types:               make(map[string]TypePoolConfig),
		Default:             DefaultTypePoolConfig(),
		GlobalMaxAgents:     32,
		WarmupStrategy:      WarmupEager,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.GlobalMaxAgents < 0 {
		return qaerrors.New(qaerrors.ErrorTypeConfig, "global_max_agents cannot be negative")
	}
	if c.WarmupStrategy != WarmupEager && c.WarmupStrategy != WarmupLazy {
		return qaerrors.Newf(qaerrors.ErrorTypeConfig, "unknown warmup_strategy %q", c.WarmupStrategy)
	}
	if c.HealthCheckInterval < 0 {
		return qaerrors.New(qaerrors.ErrorTypeConfig, "health_check_interval cannot be negative")
	}
	if err := c.Default.validate("default"); err != nil {
		return err
	}
	for agentType, tc := range c.Types {
		if err := tc.validate(agentType); err != nil {
			return err
		}
	}
	return nil
}

func (tc *TypePoolConfig) validate(name string) error {
	if tc.MinSize < 0 {
		return qaerrors.Newf(qaerrors.ErrorTypeConfig, "%s: min_size cannot be negative", name)
	}
	if tc.MaxSize <= 0 {
		return qaerrors.Newf(qaerrors.ErrorTypeConfig, "%s: max_size must be positive", name)
	}
	if tc.MinSize > tc.MaxSize {
		return qaerrors.Newf(qaerrors.ErrorTypeConfig, "%s: min_size exceeds max_size", name)
	}
	if tc.WarmupCount < 0 || tc.WarmupCount > tc.MaxSize {
		return qaerrors.Newf(qaerrors.ErrorTypeConfig, "%s: warmup_count must be between 0 and max_size", name)
	}
	if tc.IdleTTL < 0 {
		return qaerrors.Newf(qaerrors.ErrorTypeConfig, "%s: idle_ttl cannot be negative", name)
	}
	if tc.GrowthIncrement < 1 {
		return qaerrors.Newf(qaerrors.ErrorTypeConfig, "%s: growth_increment must be at least 1", name)
	}
	return nil
}

// typeConfig resolves the policy for an agent type, falling back to Default.
func (c *Config) typeConfig(agentType string) TypePoolConfig {
	if tc, ok := c.Types[agentType]; ok {
		return tc
	}
	return c.Default
}

// configuredTypes returns the explicitly configured agent types.
func (c *Config) configuredTypes() []string {
	types := make([]string, 0, len(c.Types))
	for t := range c.Types {
		types = append(types, t)
	}
	return types
}
