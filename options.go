package gotdd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEPS is the default absolute tolerance used to quantize weights.
const DefaultEPS = 1e-6

// Config holds engine parameters.
// All fields are exported to allow inspection after construction.
type Config struct {
	// EPS is the absolute tolerance per complex component used to quantize
	// weights for hashing and equality. Canonical forms are unique only up
	// to this tolerance.
	EPS float64 `yaml:"eps"`

	// Workers specifies the number of goroutines used by Construct.
	// A value of 1 disables parallelism.
	Workers int `yaml:"workers"`

	// Timeout bounds each top-level operation. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`

	// SharedSumCache keeps the sum cache alive across operations until
	// ClearCache or Reset is called.
	SharedSumCache bool `yaml:"shared_sum_cache"`

	// Logger receives engine diagnostics. Nil means slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

// Option configures an Engine using the functional options pattern.
// Options are applied in the order they are provided to NewEngine.
type Option func(*Config)

// WithEPS sets the quantization tolerance. Non-positive values are ignored.
func WithEPS(eps float64) Option {
	return func(c *Config) {
		if eps > 0 {
			c.EPS = eps
		}
	}
}

// WithParallel sets the number of worker goroutines used by Construct.
//
// If workers <= 0, defaults to runtime.NumCPU().
// If workers == 1, construction runs sequentially without goroutine overhead.
func WithParallel(workers int) Option {
	return func(c *Config) {
		if workers <= 0 {
			c.Workers = runtime.NumCPU()
		} else {
			c.Workers = workers
		}
	}
}

// WithTimeout sets the maximum duration of each top-level operation.
//
// If duration <= 0, no timeout is enforced. Otherwise operations fail with
// context.DeadlineExceeded when it is exceeded.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithLogger sets the logger used for engine diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithSharedSumCache makes the engine reuse one sum cache across
// operations, amortizing repeated sub-sums of a simulation loop.
func WithSharedSumCache(enabled bool) Option {
	return func(c *Config) {
		c.SharedSumCache = enabled
	}
}

// WithConfig copies every field of cfg, typically one read by LoadConfig.
func WithConfig(cfg *Config) Option {
	return func(c *Config) {
		if cfg != nil {
			*c = *cfg
		}
	}
}

// newConfig creates a new configuration with sensible defaults and applies
// the provided options in order.
//
// Default values:
//   - EPS: 1e-6
//   - Workers: 1 (sequential construction)
//   - Timeout: 0 (no timeout)
func newConfig(opts ...Option) *Config {
	cfg := &Config{
		EPS:     DefaultEPS,
		Workers: 1,
		Timeout: 0,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.EPS <= 0 {
		cfg.EPS = DefaultEPS
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// ParseConfig decodes a YAML document into a Config.
//
// Missing fields keep their defaults. Example:
//
//	eps: 1.0e-8
//	workers: 4
//	timeout: 30s
//	shared_sum_cache: true
func ParseConfig(data []byte) (*Config, error) {
	cfg := newConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.EPS <= 0 || cfg.EPS >= 1 {
		return nil, fmt.Errorf("%w: eps %g must be in (0, 1)", ErrInvalidConfig, cfg.EPS)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: workers %d must not be negative", ErrInvalidConfig, cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: timeout %s must not be negative", ErrInvalidConfig, cfg.Timeout)
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}
