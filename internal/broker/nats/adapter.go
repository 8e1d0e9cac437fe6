// Package nats implements broker.Adapter for the "*"/">" wildcard dialect on
// top of NATS, including durable queue bindings through JetStream.
package nats

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"portal-bus/config"
	"portal-bus/internal/broker"
	"portal-bus/internal/logger"
	"portal-bus/internal/metrics"
	"portal-bus/internal/topic"
)

// heldSub is one subject subscription shared by every Subscribe call for the
// same wire filter.
type heldSub struct {
	sub     Subscription
	subject string
	seq     uint64
	refs    int
}

// Adapter connects without client-side reconnection; broker.Session drives
// retries and replays subscriptions.
type Adapter struct {
	urls           []string
	clientID       string
	tls            *config.TLSConfig
	connectTimeout time.Duration
	dial           Dialer

	logger  *logger.Logger
	metrics *metrics.Metrics

	mu           sync.Mutex
	conn         Conn
	state        broker.ConnectionState
	attempt      uint64
	subs         map[string]*heldSub
	nextSeq      uint64
	pending      map[string][]*pendingCopies
	queue        *queueState
	handler      broker.RawMessageHandler
	errorHandler broker.ErrorHandler
}

// Option configures an Adapter
type Option func(*Adapter)

// WithDialer replaces Dial
func WithDialer(d Dialer) Option {
	return func(a *Adapter) {
		a.dial = d
	}
}

// NewAdapter creates a disconnected adapter from the broker section of the
// configuration.
func NewAdapter(cfg *config.BrokerConfig, log *logger.Logger, m *metrics.Metrics, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("broker config cannot be nil")
	}
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("no NATS server URLs provided")
	}
	if log == nil {
		log = logger.Nop()
	}

	a := &Adapter{
		urls:           cfg.URLs,
		clientID:       cfg.ClientID,
		tls:            cfg.TLS,
		connectTimeout: cfg.ConnectTimeoutDuration(),
		dial:           Dial,
		logger:         log.With("adapter", "nats"),
		metrics:        m,
		state:          broker.StateDisconnected,
	}
	a.resetSubsLocked()

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

func (a *Adapter) Name() string {
	return "nats"
}

func (a *Adapter) Binding() topic.Binding {
	return topic.NATS
}

func (a *Adapter) State() broker.ConnectionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) TranslateFilterOut(filter string) string {
	return ToNATSSubject(filter)
}

func (a *Adapter) TranslateTopicIn(wireTopic string) string {
	return ToGenericTopic(wireTopic)
}

func (a *Adapter) SetMessageHandler(h broker.RawMessageHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

func (a *Adapter) SetErrorHandler(h broker.ErrorHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errorHandler = h
}

func (a *Adapter) serverList() string {
	return strings.Join(a.urls, ",")
}

func (a *Adapter) reportError(err error) {
	a.mu.Lock()
	h := a.errorHandler
	a.mu.Unlock()

	a.logger.Error("nats operation failed", "error", err)
	if h != nil {
		h(err)
	}
}

func (a *Adapter) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if a.metrics != nil {
		fn(a.metrics)
	}
}
