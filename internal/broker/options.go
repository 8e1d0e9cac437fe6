package broker

import (
	"time"

	"portal-bus/internal/logger"
	"portal-bus/internal/metrics"
	"portal-bus/internal/stats"
	"portal-bus/internal/topic"
)

// DefaultRetryDelay is the fixed delay between connection attempts
const DefaultRetryDelay = time.Second

type options struct {
	logger     *logger.Logger
	metrics    *metrics.Metrics
	stats      *stats.StatsCollector
	binding    topic.Binding
	perHandle  bool
	scheduler  Scheduler
	retryDelay time.Duration
}

// Option configures a Registry or a Session
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:     logger.Nop(),
		stats:      stats.NewStatsCollector(),
		binding:    topic.Generic,
		scheduler:  SystemScheduler,
		retryDelay: DefaultRetryDelay,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics enables prometheus instrumentation
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithStats sets the stats collector
func WithStats(s *stats.StatsCollector) Option {
	return func(o *options) {
		if s != nil {
			o.stats = s
		}
	}
}

// WithBinding sets the dialect application code uses for filters and topics
func WithBinding(b topic.Binding) Option {
	return func(o *options) {
		o.binding = b
	}
}

// WithPerHandleTransport issues one transport subscribe and unsubscribe per
// handle instead of sharing them between handles with the same filter.
func WithPerHandleTransport() Option {
	return func(o *options) {
		o.perHandle = true
	}
}

// WithScheduler sets the scheduler used for reconnection timers
func WithScheduler(s Scheduler) Option {
	return func(o *options) {
		if s != nil {
			o.scheduler = s
		}
	}
}

// WithRetryDelay sets the delay between connection attempts
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

func (o *options) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if o.metrics != nil {
		fn(o.metrics)
	}
}
