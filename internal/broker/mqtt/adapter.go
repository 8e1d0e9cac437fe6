// Package mqtt implements broker.Adapter on top of the Eclipse Paho client.
package mqtt

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"portal-bus/config"
	"portal-bus/internal/broker"
	"portal-bus/internal/logger"
	"portal-bus/internal/metrics"
	"portal-bus/internal/topic"
)

const (
	defaultOperationTimeout = 10 * time.Second
	disconnectQuiesce       = 250 // milliseconds
)

// Adapter speaks MQTT 3.1.1. Reconnection is left to broker.Session, so the
// paho client runs with auto-reconnect disabled and a persistent session.
type Adapter struct {
	urls           []string
	clientID       string
	tlsConfig      *tls.Config
	connectTimeout time.Duration
	opTimeout      time.Duration
	newClient      ClientFactory

	logger  *logger.Logger
	metrics *metrics.Metrics

	mu           sync.Mutex
	client       paho.Client
	state        broker.ConnectionState
	attempt      uint64
	handler      broker.RawMessageHandler
	errorHandler broker.ErrorHandler
}

// Option configures an Adapter
type Option func(*Adapter)

// WithClientFactory replaces paho.NewClient
func WithClientFactory(f ClientFactory) Option {
	return func(a *Adapter) {
		a.newClient = f
	}
}

// WithOperationTimeout bounds how long subscribe, unsubscribe and publish
// acknowledgements are awaited.
func WithOperationTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.opTimeout = d
	}
}

// NewAdapter creates a disconnected MQTT adapter from the broker section of
// the configuration.
func NewAdapter(cfg *config.BrokerConfig, log *logger.Logger, m *metrics.Metrics, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("broker config cannot be nil")
	}
	if log == nil {
		log = logger.Nop()
	}

	a := &Adapter{
		urls:           cfg.URLs,
		clientID:       cfg.ClientID,
		connectTimeout: cfg.ConnectTimeoutDuration(),
		opTimeout:      defaultOperationTimeout,
		newClient:      paho.NewClient,
		logger:         log.With("adapter", "mqtt"),
		metrics:        m,
		state:          broker.StateDisconnected,
	}

	if cfg.TLS != nil && cfg.TLS.Enable {
		tlsConfig, err := newTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		a.tlsConfig = tlsConfig
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

func (a *Adapter) Name() string {
	return "mqtt"
}

func (a *Adapter) Binding() topic.Binding {
	return topic.MQTT
}

func (a *Adapter) State() broker.ConnectionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) TranslateFilterOut(filter string) string {
	return topic.Translate(filter, topic.Generic, topic.MQTT)
}

func (a *Adapter) TranslateTopicIn(wireTopic string) string {
	return topic.Translate(wireTopic, topic.MQTT, topic.Generic)
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

// connectedClient returns the client when the adapter is connected
func (a *Adapter) connectedClient() (paho.Client, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != broker.StateConnected || a.client == nil {
		return nil, false
	}
	return a.client, true
}

func (a *Adapter) reportError(err error) {
	a.mu.Lock()
	h := a.errorHandler
	a.mu.Unlock()

	a.logger.Error("mqtt operation failed", "error", err)
	if h != nil {
		h(err)
	}
}

// await waits for token completion off the calling goroutine; paho delivers
// acknowledgements on the same goroutine that runs message handlers.
func (a *Adapter) await(token paho.Token, op, target string) {
	go func() {
		var err error
		if !token.WaitTimeout(a.opTimeout) {
			err = fmt.Errorf("%w: %s %s timed out", broker.ErrTransport, op, target)
		} else if tokenErr := token.Error(); tokenErr != nil {
			err = fmt.Errorf("%w: %s %s: %v", broker.ErrTransport, op, target, tokenErr)
		}
		if err == nil {
			return
		}

		a.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncTransportOps(op + "_error")
		})
		a.reportError(err)
	}()
}

func (a *Adapter) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if a.metrics != nil {
		fn(a.metrics)
	}
}
