package broker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"portal-bus/internal/metrics"
	"portal-bus/internal/topic"
)

// Session owns an adapter, its registry and dispatcher, and drives the
// connection state machine. Connection attempts are retried after a fixed
// delay until Disconnect is called.
type Session struct {
	adapter    Adapter
	registry   *Registry
	dispatcher *Dispatcher
	opts       options

	mu          sync.Mutex
	state       ConnectionState
	lastErr     error
	gen         uint64
	creds       Credentials
	events      ConnectionEvents
	timer       Timer
	connectedAt time.Time
}

// NewSession wires a registry and a dispatcher to adapter. The session
// starts disconnected.
func NewSession(adapter Adapter, opts ...Option) *Session {
	o := buildOptions(opts)
	registry := newRegistry(adapter, o)

	s := &Session{
		adapter:    adapter,
		registry:   registry,
		dispatcher: NewDispatcher(registry, adapter),
		opts:       o,
		state:      StateDisconnected,
	}

	adapter.SetMessageHandler(s.dispatcher.HandleRawMessage)
	adapter.SetErrorHandler(s.handleTransportError)

	return s
}

// Registry returns the session's subscription registry
func (s *Session) Registry() *Registry {
	return s.registry
}

// Adapter returns the protocol adapter
func (s *Session) Adapter() Adapter {
	return s.adapter
}

// State returns the current connection state
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error behind the last failed attempt or lost connection
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ConnectedAt returns when the current connection was established
func (s *Session) ConnectedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedAt
}

// Connect starts connecting with creds. events are invoked for every attempt,
// including retries. Calling Connect on an active session restarts it.
func (s *Session) Connect(creds Credentials, events ConnectionEvents) {
	s.mu.Lock()
	s.stopTimerLocked()
	s.creds = creds
	s.events = events
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	s.mu.Unlock()

	s.opts.logger.Info("connecting", "adapter", s.adapter.Name())
	s.dial(gen, creds)
}

// Disconnect cancels any pending retry and closes the connection. Callbacks
// from attempts started before the call are dropped.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.gen++
	wasActive := s.state != StateDisconnected
	s.state = StateDisconnected
	s.registry.Suspend()
	s.mu.Unlock()

	s.adapter.Disconnect()

	if wasActive {
		s.opts.logger.Info("disconnected", "adapter", s.adapter.Name())
		s.opts.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.SetConnectionStatus(false)
		})
	}
}

// Subscribe registers handler for filter, expressed in the session binding
func (s *Session) Subscribe(qos byte, filter string, handler MessageHandler) (Handle, error) {
	return s.registry.Subscribe(qos, filter, handler)
}

// Unsubscribe removes the subscription identified by h
func (s *Session) Unsubscribe(h Handle) error {
	return s.registry.Unsubscribe(h)
}

// Publish JSON-encodes message and sends it to topicName, expressed in the
// session binding.
func (s *Session) Publish(topicName string, message interface{}, opts PublishOptions) error {
	if opts.QoS > 2 {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, opts.QoS)
	}

	if s.opts.binding.HasWildcard(topicName) {
		return fmt.Errorf("%w: cannot publish to wildcard topic %q", topic.ErrInvalidTopic, topicName)
	}
	t, err := topic.ParseTopic(topicName, s.opts.binding)
	if err != nil {
		return err
	}

	if s.State() != StateConnected {
		return fmt.Errorf("publish to %s: %w", topicName, ErrNotConnected)
	}

	return s.adapter.Publish(t.Format(topic.Generic), message, opts)
}

func (s *Session) dial(gen uint64, creds Credentials) {
	s.adapter.Connect(creds, ConnectionEvents{
		OnConnect: func() {
			s.handleConnect(gen)
		},
		OnConnectError: func(err error) {
			s.handleConnectError(gen, err)
		},
		OnDisconnect: func(err error) {
			s.handleDisconnect(gen, err)
		},
	})
}

func (s *Session) handleConnect(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = StateConnected
	s.lastErr = nil
	s.connectedAt = time.Now()
	s.registry.Resume()
	cb := s.events.OnConnect
	s.mu.Unlock()

	s.opts.logger.Info("connected", "adapter", s.adapter.Name())
	s.opts.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(true)
	})

	if cb != nil {
		cb()
	}
}

func (s *Session) handleConnectError(gen uint64, err error) {
	err = asTransportError(err)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.lastErr = err
	s.scheduleRetryLocked()
	cb := s.events.OnConnectError
	s.mu.Unlock()

	s.opts.logger.Error("connection attempt failed",
		"adapter", s.adapter.Name(),
		"retryIn", s.opts.retryDelay.String(),
		"error", err)

	if cb != nil {
		cb(err)
	}
}

func (s *Session) handleDisconnect(gen uint64, err error) {
	if err != nil {
		err = asTransportError(err)
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.lastErr = err
	s.registry.Suspend()
	s.scheduleRetryLocked()
	cb := s.events.OnDisconnect
	s.mu.Unlock()

	s.opts.logger.Warn("connection lost",
		"adapter", s.adapter.Name(),
		"retryIn", s.opts.retryDelay.String(),
		"error", err)
	s.opts.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(false)
	})

	if cb != nil {
		cb(err)
	}
}

func (s *Session) retry(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.gen++
	next := s.gen
	s.state = StateConnecting
	creds := s.creds
	s.mu.Unlock()

	s.opts.logger.Info("reconnecting", "adapter", s.adapter.Name())
	s.opts.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncReconnects()
	})

	s.dial(next, creds)
}

func (s *Session) scheduleRetryLocked() {
	s.stopTimerLocked()
	gen := s.gen
	s.timer = s.opts.scheduler.AfterFunc(s.opts.retryDelay, func() {
		s.retry(gen)
	})
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) handleTransportError(err error) {
	s.opts.logger.Error("transport error",
		"adapter", s.adapter.Name(),
		"error", asTransportError(err))
}

func asTransportError(err error) error {
	if err == nil || errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
