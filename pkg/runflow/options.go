package runflow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/runflow/pkg/runflow/config"
	"github.com/randalmurphal/runflow/pkg/runflow/expr"
	"github.com/randalmurphal/runflow/pkg/runflow/observability"
)

// Evaluator decides conditional edges. Both expr.Evaluator and
// expr.CELEvaluator satisfy it.
type Evaluator interface {
	Evaluate(expr string, vars map[string]any) (bool, error)
}

// execConfig holds executor configuration.
type execConfig struct {
	maxSteps  int
	stepPause time.Duration
	poolSize  int
	truncate  bool

	logger    *slog.Logger
	evaluator Evaluator

	metricsEnabled bool
	tracingEnabled bool
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
}

func defaultExecConfig() execConfig {
	d := config.Defaults()
	return execConfig{
		maxSteps:  d.MaxSteps,
		stepPause: d.StepPause,
		poolSize:  d.PoolSize,
		logger:    slog.Default(),
		evaluator: expr.New(),
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
	}
}

// Option configures an Executor.
type Option func(*execConfig)

// WithMaxSteps sets the number of node visits after which a run stops.
// Default: 1000
func WithMaxSteps(n int) Option {
	return func(c *execConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithStepPause sets the pause between node visits. Zero disables it.
// Default: 10ms
func WithStepPause(d time.Duration) Option {
	return func(c *execConfig) {
		if d >= 0 {
			c.stepPause = d
		}
	}
}

// WithPoolSize sets the number of workers available to blocking nodes.
// Default: 64
func WithPoolSize(n int) Option {
	return func(c *execConfig) {
		if n > 0 {
			c.poolSize = n
		}
	}
}

// WithTruncatedStatus makes runs stopped by the step ceiling settle as
// StatusTruncated instead of StatusFinished.
func WithTruncatedStatus(enabled bool) Option {
	return func(c *execConfig) {
		c.truncate = enabled
	}
}

// WithLogger sets the logger for execution.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(c *execConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEvaluator sets the condition evaluator.
// Default: expr.New()
func WithEvaluator(ev Evaluator) Option {
	return func(c *execConfig) {
		if ev != nil {
			c.evaluator = ev
		}
	}
}

// WithMetrics enables OpenTelemetry metrics using the global meter provider.
//
// Example:
//
//	otel.SetMeterProvider(provider)
//	exec, err := runflow.NewExecutor(graphs, ledger, funcs, runflow.WithMetrics(true))
func WithMetrics(enabled bool) Option {
	return func(c *execConfig) {
		c.metricsEnabled = enabled
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry spans using the global tracer provider.
func WithTracing(enabled bool) Option {
	return func(c *execConfig) {
		c.tracingEnabled = enabled
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// FromSettings converts engine settings into executor options.
func FromSettings(s config.Settings) ([]Option, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	opts := []Option{
		WithMaxSteps(s.MaxSteps),
		WithStepPause(s.StepPause),
		WithPoolSize(s.PoolSize),
		WithTruncatedStatus(s.TruncateStatus),
		WithLogger(s.Logger()),
		WithMetrics(s.Metrics),
		WithTracing(s.Tracing),
	}
	if s.ConditionLanguage == config.ConditionCEL {
		ev, err := expr.NewCEL()
		if err != nil {
			return nil, fmt.Errorf("cel evaluator: %w", err)
		}
		opts = append(opts, WithEvaluator(ev))
	}
	return opts, nil
}
