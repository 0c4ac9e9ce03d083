package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/bulwark/resilience"
)

// Configuration errors.
var (
	// ErrUnknownPipeline indicates a pipeline name not present in the config.
	ErrUnknownPipeline = errors.New("config: unknown pipeline")

	// ErrInvalidKind indicates an unknown failure kind name in a handle list.
	ErrInvalidKind = errors.New("config: invalid failure kind")
)

// Duration wraps time.Duration with YAML support for strings like "100ms".
type Duration time.Duration

// UnmarshalYAML parses a duration from its YAML string form.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the root of a pipeline configuration file.
type Config struct {
	// Defaults applies to every pipeline. A pipeline's own strategy block
	// replaces the default block wholesale, not field by field.
	Defaults PipelineConfig `yaml:"defaults"`

	// Pipelines maps pipeline names to their strategy definitions.
	Pipelines map[string]PipelineConfig `yaml:"pipelines"`
}

// PipelineConfig declares the strategies a pipeline carries. Nil blocks mean
// the strategy is absent.
type PipelineConfig struct {
	Retry          *RetryConfig     `yaml:"retry"`
	CircuitBreaker *BreakerConfig   `yaml:"circuit_breaker"`
	Timeout        *TimeoutConfig   `yaml:"timeout"`
	RateLimit      *RateLimitConfig `yaml:"rate_limit"`
}

// RetryConfig declares a retry strategy.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`

	// Handle lists the failure kinds the strategy acts on. Empty means the
	// default handled set (transient and timeout).
	Handle []string `yaml:"handle"`
}

// BreakerConfig declares a circuit breaker strategy.
type BreakerConfig struct {
	FailureRatio      float64  `yaml:"failure_ratio"`
	SamplingDuration  Duration `yaml:"sampling_duration"`
	MinimumThroughput int      `yaml:"minimum_throughput"`
	BreakDuration     Duration `yaml:"break_duration"`
	Handle            []string `yaml:"handle"`
}

// TimeoutConfig declares a timeout strategy.
type TimeoutConfig struct {
	Duration Duration `yaml:"duration"`
}

// RateLimitConfig declares a sliding-window rate limiter strategy.
type RateLimitConfig struct {
	PermitLimit int      `yaml:"permit_limit"`
	Window      Duration `yaml:"window"`
	Segments    int      `yaml:"segments"`
	QueueLimit  int      `yaml:"queue_limit"`
}

// Valid failure kind names for handle lists.
var validKinds = map[string]resilience.Kind{
	"transient":    resilience.KindTransient,
	"timeout":      resilience.KindTimeout,
	"rate_limited": resilience.KindRateLimited,
	"circuit_open": resilience.KindCircuitOpen,
}

// Load reads and parses a pipeline configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses a pipeline configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Defaults.validate("defaults"); err != nil {
		return err
	}
	for name, pc := range c.Pipelines {
		if name == "" {
			return errors.New("config: pipeline name is required")
		}
		if err := pc.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (p PipelineConfig) validate(name string) error {
	if r := p.Retry; r != nil {
		if r.MaxAttempts < 0 {
			return fmt.Errorf("config: pipeline %q: max_attempts must not be negative", name)
		}
		if r.BaseDelay < 0 || r.MaxDelay < 0 {
			return fmt.Errorf("config: pipeline %q: retry delays must not be negative", name)
		}
		if err := validateKinds(name, r.Handle); err != nil {
			return err
		}
	}
	if b := p.CircuitBreaker; b != nil {
		if b.FailureRatio < 0 || b.FailureRatio > 1 {
			return fmt.Errorf("config: pipeline %q: failure_ratio must be between 0.0 and 1.0", name)
		}
		if b.SamplingDuration < 0 || b.BreakDuration < 0 {
			return fmt.Errorf("config: pipeline %q: breaker durations must not be negative", name)
		}
		if b.MinimumThroughput < 0 {
			return fmt.Errorf("config: pipeline %q: minimum_throughput must not be negative", name)
		}
		if err := validateKinds(name, b.Handle); err != nil {
			return err
		}
	}
	if t := p.Timeout; t != nil {
		if t.Duration < 0 {
			return fmt.Errorf("config: pipeline %q: timeout duration must not be negative", name)
		}
	}
	if rl := p.RateLimit; rl != nil {
		if rl.PermitLimit < 0 || rl.Segments < 0 || rl.QueueLimit < 0 {
			return fmt.Errorf("config: pipeline %q: rate limit values must not be negative", name)
		}
		if rl.Window < 0 {
			return fmt.Errorf("config: pipeline %q: rate limit window must not be negative", name)
		}
	}
	return nil
}

func validateKinds(name string, kinds []string) error {
	for _, k := range kinds {
		if _, ok := validKinds[k]; !ok {
			return fmt.Errorf("%w: pipeline %q: %q", ErrInvalidKind, name, k)
		}
	}
	return nil
}

// Options compiles the named pipeline's definition into pipeline options.
// Strategy blocks absent from the pipeline fall back to the defaults block.
func (c *Config) Options(name string) ([]resilience.PipelineOption, error) {
	pc, ok := c.Pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipeline, name)
	}

	merged := pc.withDefaults(c.Defaults)

	opts := []resilience.PipelineOption{resilience.WithName(name)}
	if r := merged.Retry; r != nil {
		opts = append(opts, resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts: r.MaxAttempts,
			BaseDelay:   time.Duration(r.BaseDelay),
			MaxDelay:    time.Duration(r.MaxDelay),
			HandleIf:    handlePredicate(r.Handle),
		})))
	}
	if b := merged.CircuitBreaker; b != nil {
		opts = append(opts, resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureRatio:      b.FailureRatio,
			SamplingDuration:  time.Duration(b.SamplingDuration),
			MinimumThroughput: b.MinimumThroughput,
			BreakDuration:     time.Duration(b.BreakDuration),
			HandleIf:          handlePredicate(b.Handle),
		})))
	}
	if t := merged.Timeout; t != nil {
		opts = append(opts, resilience.WithTimeout(resilience.NewTimeout(resilience.TimeoutConfig{
			Timeout: time.Duration(t.Duration),
		})))
	}
	if rl := merged.RateLimit; rl != nil {
		opts = append(opts, resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
			PermitLimit: rl.PermitLimit,
			Window:      time.Duration(rl.Window),
			Segments:    rl.Segments,
			QueueLimit:  rl.QueueLimit,
		})))
	}
	return opts, nil
}

// Build constructs the named pipeline. Extra options (shared sink, clock)
// are appended after the configured ones.
func (c *Config) Build(name string, extra ...resilience.PipelineOption) (*resilience.Pipeline, error) {
	opts, err := c.Options(name)
	if err != nil {
		return nil, err
	}
	return resilience.NewPipeline(append(opts, extra...)...), nil
}

// Names returns the configured pipeline names.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Pipelines))
	for name := range c.Pipelines {
		names = append(names, name)
	}
	return names
}

func (p PipelineConfig) withDefaults(d PipelineConfig) PipelineConfig {
	if p.Retry == nil {
		p.Retry = d.Retry
	}
	if p.CircuitBreaker == nil {
		p.CircuitBreaker = d.CircuitBreaker
	}
	if p.Timeout == nil {
		p.Timeout = d.Timeout
	}
	if p.RateLimit == nil {
		p.RateLimit = d.RateLimit
	}
	return p
}

// handlePredicate maps a handle list to a failure predicate. An empty list
// keeps the strategy's default handled set.
func handlePredicate(names []string) func(error) bool {
	if len(names) == 0 {
		return nil
	}
	kinds := make([]resilience.Kind, 0, len(names))
	for _, n := range names {
		if k, ok := validKinds[n]; ok {
			kinds = append(kinds, k)
		}
	}
	return resilience.HandledKinds(kinds...)
}
