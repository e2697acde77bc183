package loader

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/ctxload/resource"
	"github.com/randalmurphal/ctxload/tokens"
)

// Options control a single LoadWithBudget call.
type Options struct {
	// AllowTruncation lets mandatory resources that do not fit be truncated
	// instead of failing the load.
	AllowTruncation bool `json:"allow_truncation" yaml:"allow_truncation"`
}

// Option configures a Loader.
type Option func(*Loader)

// WithCounter sets the token counter. The loader takes ownership: Close
// releases it if it implements io.Closer.
func WithCounter(counter tokens.Counter) Option {
	return func(l *Loader) {
		l.counter = counter
	}
}

// WithReader sets the reader used to fetch resource content.
func WithReader(reader resource.Reader) Option {
	return func(l *Loader) {
		l.reader = reader
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithMetrics records load outcomes to m.
func WithMetrics(m *Metrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// WithTracerProvider sets the provider used to create load spans.
// Default is the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Loader) {
		l.tracer = tp.Tracer(tracerName)
	}
}
