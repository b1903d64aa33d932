package nodekit

import (
	"go.uber.org/zap"
)

// Option configures a Service
type Option func(*Options)

// Options contains the settings of a Service
type Options struct {
	// Logger receives debug logs for every operation. Defaults to a no-op
	// logger.
	Logger *zap.Logger

	// Metrics records operation counts and durations. Nil disables metrics.
	Metrics *Metrics

	// ArchiveLimits bounds every Unzip unless overridden per call.
	ArchiveLimits ArchiveLimits
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithDefaultArchiveLimits sets the limits applied to every Unzip
func WithDefaultArchiveLimits(l ArchiveLimits) Option {
	return func(o *Options) {
		o.ArchiveLimits = l
	}
}

func processOptions(opts ...Option) *Options {
	o := &Options{Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
