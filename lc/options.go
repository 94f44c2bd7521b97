package lc

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const tracerName = "github.com/bronystylecrazy/tiered/lc"

type options struct {
	name         string
	logger       *zap.Logger
	tracer       trace.Tracer
	metrics      *Metrics
	startTimeout time.Duration
	stopTimeout  time.Duration
}

type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		name:   "Centre",
		logger: zap.NewNop(),
		tracer: noop.NewTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithName sets the display name of a Centre.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithStartTimeout bounds how long a level may wait for its services to reach
// the running state. Zero waits indefinitely.
func WithStartTimeout(d time.Duration) Option {
	return func(o *options) {
		o.startTimeout = d
	}
}

// WithStopTimeout bounds how long a level may wait for its services to
// terminate. Zero waits indefinitely.
func WithStopTimeout(d time.Duration) Option {
	return func(o *options) {
		o.stopTimeout = d
	}
}
