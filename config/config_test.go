package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/bulwark/resilience"
)

const sampleConfig = `
defaults:
  timeout:
    duration: 5s
pipelines:
  payments:
    retry:
      max_attempts: 3
      base_delay: 100ms
      max_delay: 2s
    circuit_breaker:
      failure_ratio: 0.5
      sampling_duration: 30s
      minimum_throughput: 10
      break_duration: 10s
  bulk-import:
    rate_limit:
      permit_limit: 50
      window: 1s
      segments: 4
      queue_limit: 10
    timeout:
      duration: 30s
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(cfg.Pipelines) != 2 {
		t.Fatalf("got %d pipelines, want 2", len(cfg.Pipelines))
	}

	payments := cfg.Pipelines["payments"]
	if payments.Retry == nil {
		t.Fatal("payments retry block missing")
	}
	if payments.Retry.MaxAttempts != 3 {
		t.Errorf("max_attempts = %d, want 3", payments.Retry.MaxAttempts)
	}
	if time.Duration(payments.Retry.BaseDelay) != 100*time.Millisecond {
		t.Errorf("base_delay = %v, want 100ms", time.Duration(payments.Retry.BaseDelay))
	}
	if payments.CircuitBreaker == nil || payments.CircuitBreaker.FailureRatio != 0.5 {
		t.Errorf("circuit_breaker block = %+v, want failure_ratio 0.5", payments.CircuitBreaker)
	}

	if time.Duration(cfg.Defaults.Timeout.Duration) != 5*time.Second {
		t.Errorf("defaults timeout = %v, want 5s", time.Duration(cfg.Defaults.Timeout.Duration))
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	_, err := Parse([]byte(`
pipelines:
  broken:
    timeout:
      duration: fast
`))
	if err == nil {
		t.Fatal("expected error for unparseable duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v, want invalid duration", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("pipelines: [unbalanced"))
	if err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestValidate_FailureRatioRange(t *testing.T) {
	_, err := Parse([]byte(`
pipelines:
  broken:
    circuit_breaker:
      failure_ratio: 1.5
`))
	if err == nil {
		t.Fatal("expected error for failure_ratio out of range")
	}
	if !strings.Contains(err.Error(), "failure_ratio") {
		t.Errorf("error = %v, want failure_ratio complaint", err)
	}
}

func TestValidate_NegativeAttempts(t *testing.T) {
	_, err := Parse([]byte(`
pipelines:
  broken:
    retry:
      max_attempts: -1
`))
	if err == nil {
		t.Fatal("expected error for negative max_attempts")
	}
}

func TestValidate_UnknownHandleKind(t *testing.T) {
	_, err := Parse([]byte(`
pipelines:
  broken:
    retry:
      max_attempts: 2
      handle: [transient, flaky]
`))
	if !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("Parse() error = %v, want ErrInvalidKind", err)
	}
}

func TestOptions_UnknownPipeline(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	_, err = cfg.Options("missing")
	if !errors.Is(err, ErrUnknownPipeline) {
		t.Errorf("Options() error = %v, want ErrUnknownPipeline", err)
	}
}

func TestBuild_CompilesStrategies(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	p, err := cfg.Build("payments")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if p.Name() != "payments" {
		t.Errorf("Name() = %q, want payments", p.Name())
	}

	cb := p.CircuitBreaker()
	if cb == nil {
		t.Fatal("circuit breaker missing from built pipeline")
	}
	got := cb.Config()
	if got.FailureRatio != 0.5 || got.BreakDuration != 10*time.Second {
		t.Errorf("breaker config = %+v, want ratio 0.5 / break 10s", got)
	}
	if got.MinimumThroughput != 10 {
		t.Errorf("MinimumThroughput = %d, want 10", got.MinimumThroughput)
	}
}

func TestBuild_RetryBehavior(t *testing.T) {
	cfg, err := Parse([]byte(`
pipelines:
  flaky:
    retry:
      max_attempts: 2
      base_delay: 1us
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	p, err := cfg.Build("flaky")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	calls := 0
	execErr := p.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return resilience.Transient(errors.New("transient failure"))
	})
	if execErr == nil {
		t.Fatal("expected the final failure to surface")
	}
	if calls != 3 {
		t.Errorf("operation invoked %d times, want 3 (initial + 2 retries)", calls)
	}
}

func TestBuild_HandleListRestrictsRetries(t *testing.T) {
	cfg, err := Parse([]byte(`
pipelines:
  strict:
    retry:
      max_attempts: 3
      base_delay: 1us
      handle: [rate_limited]
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	p, err := cfg.Build("strict")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	calls := 0
	_ = p.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		// Transient failures are outside the configured handle list.
		return resilience.Transient(errors.New("transient failure"))
	})
	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1", calls)
	}
}

func TestBuild_DefaultsApplyToPipelinesWithoutOverride(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// payments has no timeout block of its own; the defaults timeout applies.
	opts, err := cfg.Options("payments")
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}
	// name + retry + breaker + default timeout
	if len(opts) != 4 {
		t.Errorf("got %d options, want 4", len(opts))
	}

	// bulk-import overrides the timeout wholesale.
	p, err := cfg.Build("bulk-import")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	rl := p.RateLimiter()
	if rl == nil {
		t.Fatal("rate limiter missing from built pipeline")
	}
	if got := rl.Config(); got.PermitLimit != 50 || got.QueueLimit != 10 {
		t.Errorf("limiter config = %+v, want 50 permits / queue 10", got)
	}
}

func TestBuild_ExtraOptionsAppended(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	p, err := cfg.Build("payments", resilience.WithName("payments-eu"))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if p.Name() != "payments-eu" {
		t.Errorf("Name() = %q, want the extra option to win", p.Name())
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipelines.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Pipelines) != 2 {
		t.Errorf("got %d pipelines, want 2", len(cfg.Pipelines))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNames(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	names := cfg.Names()
	if len(names) != 2 {
		t.Fatalf("got %d names, want 2", len(names))
	}
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	if !seen["payments"] || !seen["bulk-import"] {
		t.Errorf("Names() = %v, want payments and bulk-import", names)
	}
}

func TestDuration_Roundtrip(t *testing.T) {
	d := Duration(1500 * time.Millisecond)
	out, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error = %v", err)
	}
	if out != "1.5s" {
		t.Errorf("MarshalYAML() = %v, want 1.5s", out)
	}
}
