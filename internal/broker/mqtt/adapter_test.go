package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-bus/config"
	"portal-bus/internal/broker"
	"portal-bus/internal/logger"
)

const waitFor = time.Second

func testConfig() *config.BrokerConfig {
	return &config.BrokerConfig{
		Protocol:       config.ProtocolMQTT,
		URLs:           []string{"tcp://localhost:1883"},
		ClientID:       "portal-test",
		ConnectTimeout: "2s",
	}
}

func newTestAdapter(t *testing.T, factory *mockFactory) *Adapter {
	t.Helper()
	a, err := NewAdapter(testConfig(), logger.Nop(), nil, WithClientFactory(factory.newClient))
	require.NoError(t, err)
	return a
}

type connectResult struct {
	connected chan struct{}
	failed    chan error
	lost      chan error
}

func newConnectResult() *connectResult {
	return &connectResult{
		connected: make(chan struct{}, 1),
		failed:    make(chan error, 1),
		lost:      make(chan error, 1),
	}
}

func (r *connectResult) events() broker.ConnectionEvents {
	return broker.ConnectionEvents{
		OnConnect:      func() { r.connected <- struct{}{} },
		OnConnectError: func(err error) { r.failed <- err },
		OnDisconnect:   func(err error) { r.lost <- err },
	}
}

func connect(t *testing.T, a *Adapter) *connectResult {
	t.Helper()
	res := newConnectResult()
	a.Connect(broker.Credentials{Username: "user", Password: "pass"}, res.events())
	select {
	case <-res.connected:
	case err := <-res.failed:
		t.Fatalf("connect failed: %v", err)
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for connect")
	}
	return res
}

func TestNewAdapter(t *testing.T) {
	_, err := NewAdapter(nil, logger.Nop(), nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.TLS = &config.TLSConfig{Enable: true, CertFile: "missing.crt", KeyFile: "missing.key", CAFile: "missing.ca"}
	_, err = NewAdapter(cfg, logger.Nop(), nil)
	assert.Error(t, err)

	a, err := NewAdapter(testConfig(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "mqtt", a.Name())
	assert.Equal(t, broker.StateDisconnected, a.State())
}

func TestTranslationIsIdentity(t *testing.T) {
	a := newTestAdapter(t, &mockFactory{})

	for _, filter := range []string{"a/b", "a/+/c", "a/#", "#"} {
		assert.Equal(t, filter, a.TranslateFilterOut(filter))
		assert.Equal(t, filter, a.TranslateTopicIn(filter))
	}
}

func TestConnectConfiguresClient(t *testing.T) {
	factory := &mockFactory{}
	a := newTestAdapter(t, factory)

	connect(t, a)
	assert.Equal(t, broker.StateConnected, a.State())

	opts := factory.last().opts
	assert.Equal(t, "portal-test", opts.ClientID)
	assert.Equal(t, "user", opts.Username)
	assert.Equal(t, "pass", opts.Password)
	assert.False(t, opts.CleanSession)
	assert.False(t, opts.AutoReconnect)
	assert.Equal(t, 2*time.Second, opts.ConnectTimeout)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "localhost:1883", opts.Servers[0].Host)
}

func TestConnectError(t *testing.T) {
	factory := &mockFactory{connectErr: errors.New("not authorized")}
	a := newTestAdapter(t, factory)

	res := newConnectResult()
	a.Connect(broker.Credentials{}, res.events())

	select {
	case err := <-res.failed:
		assert.ErrorIs(t, err, broker.ErrTransport)
		assert.Contains(t, err.Error(), "not authorized")
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for connect error")
	}
	assert.Equal(t, broker.StateFailed, a.State())
}

func TestSubscribeWhileDisconnected(t *testing.T) {
	a := newTestAdapter(t, &mockFactory{})

	assert.NoError(t, a.Subscribe("a/b", 1))
	assert.NoError(t, a.Unsubscribe("a/b"))
	assert.ErrorIs(t, a.Publish("a/b", "x", broker.PublishOptions{}), broker.ErrNotConnected)
}

func TestSubscribeUsesDefaultHandler(t *testing.T) {
	factory := &mockFactory{}
	a := newTestAdapter(t, factory)
	connect(t, a)

	require.NoError(t, a.Subscribe("sensors/+/temp", 1))
	require.NoError(t, a.Unsubscribe("sensors/+/temp"))

	client := factory.last()
	calls := client.subscribeCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "sensors/+/temp", calls[0].filter)
	assert.Equal(t, byte(1), calls[0].qos)
	assert.Nil(t, calls[0].callback)
	assert.Equal(t, []string{"sensors/+/temp"}, client.unsubscribeCalls())
}

func TestSubscribeFailureReported(t *testing.T) {
	factory := &mockFactory{}
	a := newTestAdapter(t, factory)

	errs := make(chan error, 1)
	a.SetErrorHandler(func(err error) { errs <- err })
	connect(t, a)

	factory.last().subscribeErr = errors.New("subscription rejected")
	require.NoError(t, a.Subscribe("a/b", 0))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, broker.ErrTransport)
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for error")
	}
}

func TestAcknowledgementTimeoutReported(t *testing.T) {
	a := newTestAdapter(t, &mockFactory{})

	errs := make(chan error, 1)
	a.SetErrorHandler(func(err error) { errs <- err })

	a.await(pendingToken{}, "subscribe", "a/b")

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, broker.ErrTransport)
		assert.Contains(t, err.Error(), "timed out")
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for error")
	}
}

func TestInboundMessages(t *testing.T) {
	factory := &mockFactory{}
	a := newTestAdapter(t, factory)

	type received struct {
		topic   string
		payload string
	}
	var got []received
	a.SetMessageHandler(func(topic string, payload []byte) {
		got = append(got, received{topic, string(payload)})
	})
	connect(t, a)

	handler := factory.last().opts.DefaultPublishHandler
	require.NotNil(t, handler)
	handler(factory.last(), &MockMessage{topic: "a/b", payload: []byte(`{"x":1}`)})

	assert.Equal(t, []received{{"a/b", `{"x":1}`}}, got)
}

func TestConnectionLost(t *testing.T) {
	factory := &mockFactory{}
	a := newTestAdapter(t, factory)
	res := connect(t, a)

	client := factory.last()
	client.opts.OnConnectionLost(client, errors.New("EOF"))

	select {
	case err := <-res.lost:
		assert.ErrorIs(t, err, broker.ErrTransport)
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for disconnect")
	}
	assert.Equal(t, broker.StateDisconnected, a.State())
}

func TestDisconnectDropsStaleCallbacks(t *testing.T) {
	factory := &mockFactory{}
	a := newTestAdapter(t, factory)
	res := connect(t, a)

	client := factory.last()
	a.Disconnect()
	assert.Equal(t, 1, client.disconnects)
	assert.Equal(t, broker.StateDisconnected, a.State())

	client.opts.OnConnectionLost(client, errors.New("EOF"))
	select {
	case <-res.lost:
		t.Fatal("stale disconnect delivered")
	default:
	}

	assert.NotPanics(t, a.Disconnect)
}

func TestPublish(t *testing.T) {
	factory := &mockFactory{}
	a := newTestAdapter(t, factory)
	connect(t, a)

	err := a.Publish("alerts/fire", map[string]string{"level": "high"}, broker.PublishOptions{
		QoS:     1,
		Retain:  true,
		TraceID: "ignored",
	})
	require.NoError(t, err)

	calls := factory.last().publishCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "alerts/fire", calls[0].topic)
	assert.Equal(t, byte(1), calls[0].qos)
	assert.True(t, calls[0].retained)
	assert.JSONEq(t, `{"level":"high"}`, string(calls[0].payload))

	assert.Error(t, a.Publish("alerts/fire", make(chan int), broker.PublishOptions{}))
}
