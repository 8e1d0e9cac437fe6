package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	paho "github.com/eclipse/paho.mqtt.golang"

	"portal-bus/internal/broker"
)

// Connect starts an asynchronous connection attempt with a fresh client.
// events.OnConnect or events.OnConnectError is invoked once the CONNACK
// arrives or the attempt fails.
func (a *Adapter) Connect(creds broker.Credentials, events broker.ConnectionEvents) {
	a.mu.Lock()
	if a.client != nil {
		a.client.Disconnect(0)
	}
	a.attempt++
	attempt := a.attempt
	a.state = broker.StateConnecting

	opts := a.clientOptions(creds, attempt, events)
	client := a.newClient(opts)
	a.client = client
	a.mu.Unlock()

	a.logger.Info("connecting to mqtt broker", "urls", a.urls, "clientId", a.clientID)

	token := client.Connect()
	go func() {
		var err error
		if !token.WaitTimeout(a.connectTimeout) {
			err = fmt.Errorf("%w: connect timed out after %s", broker.ErrTransport, a.connectTimeout)
		} else if tokenErr := token.Error(); tokenErr != nil {
			err = fmt.Errorf("%w: %v", broker.ErrTransport, tokenErr)
		}
		a.handleConnectResult(attempt, err, events)
	}()
}

// Disconnect closes the current client, if any. Callbacks belonging to it
// are dropped.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.attempt++
	a.state = broker.StateDisconnected
	a.mu.Unlock()

	if client != nil {
		a.logger.Info("disconnecting from mqtt broker")
		client.Disconnect(disconnectQuiesce)
	}
}

func (a *Adapter) clientOptions(creds broker.Credentials, attempt uint64, events broker.ConnectionEvents) *paho.ClientOptions {
	opts := paho.NewClientOptions()
	for _, url := range a.urls {
		opts.AddBroker(url)
	}

	opts.SetClientID(a.clientID).
		SetUsername(creds.Username).
		SetPassword(creds.Password).
		SetCleanSession(false).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(a.connectTimeout).
		SetOrderMatters(true).
		SetDefaultPublishHandler(a.handleMessage)

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		a.handleConnectionLost(attempt, err, events)
	})

	if a.tlsConfig != nil {
		opts.SetTLSConfig(a.tlsConfig)
	}

	return opts
}

func (a *Adapter) handleConnectResult(attempt uint64, err error, events broker.ConnectionEvents) {
	a.mu.Lock()
	if attempt != a.attempt {
		a.mu.Unlock()
		return
	}
	if err != nil {
		a.state = broker.StateFailed
	} else {
		a.state = broker.StateConnected
	}
	a.mu.Unlock()

	if err != nil {
		a.logger.Error("mqtt connection attempt failed", "error", err)
		if events.OnConnectError != nil {
			events.OnConnectError(err)
		}
		return
	}

	a.logger.Info("mqtt client connected", "clientId", a.clientID)
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
	a.mu.Unlock()

	a.logger.Error("mqtt connection lost", "error", err)
	if events.OnDisconnect != nil {
		events.OnDisconnect(fmt.Errorf("%w: %v", broker.ErrTransport, err))
	}
}

// newTLSConfig creates a new TLS configuration
func newTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
