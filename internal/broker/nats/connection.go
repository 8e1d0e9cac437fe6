package nats

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"portal-bus/internal/broker"
	"portal-bus/internal/metrics"
)

// Connect dials in the background and reports the outcome through events
func (a *Adapter) Connect(creds broker.Credentials, events broker.ConnectionEvents) {
	a.mu.Lock()
	a.attempt++
	attempt := a.attempt
	a.state = broker.StateConnecting
	a.mu.Unlock()

	opts := a.connectOptions(creds, attempt, events)

	a.logger.Info("connecting to NATS server", "urls", a.urls)

	go func() {
		conn, err := a.dial(a.serverList(), opts...)
		a.handleConnectResult(attempt, conn, err, events)
	}()
}

// Disconnect closes the connection; callbacks from it are dropped
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.attempt++
	a.state = broker.StateDisconnected
	a.resetSubsLocked()
	q := a.queue
	a.queue = nil
	a.mu.Unlock()

	if q != nil && q.events.OnDown != nil {
		q.events.OnDown(nil)
	}

	if conn != nil {
		a.logger.Info("disconnecting from NATS server")
		conn.Close()
	}
}

func (a *Adapter) connectOptions(creds broker.Credentials, attempt uint64, events broker.ConnectionEvents) []nats.Option {
	opts := []nats.Option{
		nats.Name(a.clientID),
		nats.NoReconnect(),
		nats.Timeout(a.connectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			a.handleConnectionLost(attempt, err, events)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			a.reportError(fmt.Errorf("%w: subject %q: %v", broker.ErrTransport, subject, err))
		}),
	}

	// Add authentication if configured
	if creds.Username != "" {
		opts = append(opts, nats.UserInfo(creds.Username, creds.Password))
	}

	if a.tls != nil && a.tls.Enable {
		opts = append(opts, nats.ClientCert(a.tls.CertFile, a.tls.KeyFile))
		if a.tls.CAFile != "" {
			opts = append(opts, nats.RootCAs(a.tls.CAFile))
		}
	}

	return opts
}

func (a *Adapter) handleConnectResult(attempt uint64, conn Conn, err error, events broker.ConnectionEvents) {
	a.mu.Lock()
	if attempt != a.attempt {
		a.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		a.state = broker.StateFailed
		a.mu.Unlock()

		err = fmt.Errorf("%w: failed to connect to NATS server: %v", broker.ErrTransport, err)
		a.logger.Error("nats connection attempt failed", "error", err)
		if events.OnConnectError != nil {
			events.OnConnectError(err)
		}
		return
	}
	a.conn = conn
	a.state = broker.StateConnected
	a.resetSubsLocked()
	a.mu.Unlock()

	a.logger.Info("connected to NATS server", "url", conn.ConnectedUrl())
	if events.OnConnect != nil {
		events.OnConnect()
	}
}

func (a *Adapter) handleConnectionLost(attempt uint64, err error, events broker.ConnectionEvents) {
	a.mu.Lock()
	if attempt != a.attempt || a.state != broker.StateConnected {
		a.mu.Unlock()
		return
	}
	a.state = broker.StateDisconnected
	a.conn = nil
	a.resetSubsLocked()
	q := a.queue
	a.queue = nil
	a.mu.Unlock()

	if err == nil {
		err = nats.ErrConnectionClosed
	}
	err = fmt.Errorf("%w: %v", broker.ErrTransport, err)

	a.logger.Error("disconnected from NATS server", "error", err)
	a.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncTransportOps("connection_lost")
	})

	if q != nil && q.events.OnDown != nil {
		q.events.OnDown(err)
	}
	if events.OnDisconnect != nil {
		events.OnDisconnect(err)
	}
}
