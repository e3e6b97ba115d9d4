// Package config loads and validates the miner's persisted YAML
// configuration: pool list, CPU/thread layout, retry policy, and donation
// level. Struct shape and load/validate split are ported from
// coopmine/config/config.go.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cnrx/miner/internal/algorithm"
)

// Config is the top-level persisted configuration.
type Config struct {
	Pools       []PoolConfig `yaml:"pools"`
	CPU         CPUConfig    `yaml:"cpu"`
	Retries     int          `yaml:"retries"`
	RetryPause  int          `yaml:"retry-pause"`
	DonateLevel int          `yaml:"donate-level"`
	API         APIConfig    `yaml:"api"`
	Logging     LoggingConfig `yaml:"logging"`
}

// PoolConfig describes one configured upstream work provider. Only the
// derived (algorithm, variant) pair reaches the core; every other field is
// JobSource-layer transport configuration.
type PoolConfig struct {
	URL       string `yaml:"url"`
	User      string `yaml:"user"`
	Pass      string `yaml:"pass"`
	Keepalive bool   `yaml:"keepalive"`
	Nicehash  bool   `yaml:"nicehash"`
	TLS       bool   `yaml:"tls"`
	Enabled   bool   `yaml:"enabled"`
	RigID     string `yaml:"rig-id"`
	Daemon    bool   `yaml:"daemon"`
	Algo      string `yaml:"algo"`
	Variant   string `yaml:"variant"`
}

// ResolvedAlgorithm parses this pool's algo/variant strings into the
// core's closed (family, variant) enum, the only form the dispatcher
// understands.
func (p PoolConfig) ResolvedAlgorithm() algorithm.Algorithm {
	a := algorithm.ParseAlgorithm(p.Algo)
	if p.Variant != "" {
		a.Variant = algorithm.ParseVariant(p.Variant)
	}
	return a
}

// CPUConfig lays out the worker pool: Threads entries, each naming its own
// multiway batch size (N), translating the original's per-thread affinity
// list into the runtime-parameterized worker model.
type CPUConfig struct {
	Threads     []int `yaml:"threads"`
	HugePages   bool  `yaml:"huge-pages"`
	Affinity    []int `yaml:"affinity"`
}

// APIConfig configures the HTTP introspection server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Token   string `yaml:"token"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a baseline configuration with safe defaults, filled in
// before a persisted file is unmarshaled on top of it — the same
// defaults-then-overlay pattern coopmine/config/config.go uses.
func Default() *Config {
	return &Config{
		CPU: CPUConfig{
			Threads:   []int{1},
			HugePages: true,
		},
		Retries:     5,
		RetryPause:  5,
		DonateLevel: 1,
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:4068",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses path into a Config, overlaying it on Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every numeric bound and reference spec.md §7 names
// (ConfigError): invalid algorithm/variant pair, pool URL, or numeric
// bound — reported at startup, aborts.
func (c *Config) Validate() error {
	if len(c.Pools) == 0 {
		return fmt.Errorf("config: at least one pool is required")
	}
	for i, p := range c.Pools {
		if p.URL == "" {
			return fmt.Errorf("config: pool[%d]: url is required", i)
		}
		a := p.ResolvedAlgorithm()
		if !a.IsValid() {
			return fmt.Errorf("config: pool[%d]: invalid algorithm/variant pair %q/%q", i, p.Algo, p.Variant)
		}
	}
	if c.Retries < 1 || c.Retries > 1000 {
		return fmt.Errorf("config: retries must be in [1,1000], got %d", c.Retries)
	}
	if c.RetryPause < 1 || c.RetryPause > 3600 {
		return fmt.Errorf("config: retry-pause must be in [1,3600], got %d", c.RetryPause)
	}
	if c.DonateLevel < 0 || c.DonateLevel > 99 {
		return fmt.Errorf("config: donate-level must be in [0,99], got %d", c.DonateLevel)
	}
	if len(c.CPU.Threads) == 0 {
		return fmt.Errorf("config: cpu.threads must list at least one worker")
	}
	for i, n := range c.CPU.Threads {
		if n < 1 || n > 5 {
			return fmt.Errorf("config: cpu.threads[%d]: multiway batch size must be in [1,5], got %d", i, n)
		}
	}
	return nil
}

// RetryPauseDuration converts RetryPause (seconds) to a time.Duration for
// the JobSource's reconnect backoff.
func (c *Config) RetryPauseDuration() time.Duration {
	return time.Duration(c.RetryPause) * time.Second
}
