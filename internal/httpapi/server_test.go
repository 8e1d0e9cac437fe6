package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-bus/internal/broker"
	"portal-bus/internal/broker/brokertest"
	"portal-bus/internal/metrics"
	"portal-bus/internal/stats"
	"portal-bus/internal/topic"
)

type fixture struct {
	server  *Server
	session *broker.Session
	adapter *brokertest.Adapter
	stats   *stats.StatsCollector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(reg)
	require.NoError(t, err)

	st := stats.NewStatsCollector()
	adapter := brokertest.NewAdapter(topic.Generic)
	session := broker.NewSession(adapter,
		broker.WithScheduler(brokertest.NewScheduler()),
		broker.WithStats(st),
		broker.WithMetrics(m))

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return &fixture{
		server:  NewServer(session, st, nil, "/metrics", handler),
		session: session,
		adapter: adapter,
		stats:   st,
	}
}

func (f *fixture) connect() {
	f.session.Connect(broker.Credentials{}, broker.ConnectionEvents{})
	f.adapter.AcceptConnect()
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "disconnected", body["status"])
	assert.Equal(t, "fake", body["adapter"])

	f.connect()
	w, body = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "connected", body["status"])
	assert.Contains(t, body, "connectedAt")
}

func TestSubscriptions(t *testing.T) {
	f := newFixture(t)
	noop := func(string, []byte, interface{}) error { return nil }

	_, err := f.session.Subscribe(1, "sensors/+/temp", noop)
	require.NoError(t, err)
	_, err = f.session.Subscribe(0, "sensors/+/temp", noop)
	require.NoError(t, err)
	_, err = f.session.Subscribe(0, "alerts/#", noop)
	require.NoError(t, err)

	w, body := f.do(t, http.MethodGet, "/subscriptions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["handles"])
	assert.Equal(t, float64(2), body["filters"])

	subs, ok := body["subscriptions"].([]interface{})
	require.True(t, ok)
	require.Len(t, subs, 2)

	first := subs[0].(map[string]interface{})
	assert.Equal(t, "alerts/#", first["filter"])
	assert.Equal(t, "prefix", first["kind"])

	second := subs[1].(map[string]interface{})
	assert.Equal(t, "sensors/+/temp", second["filter"])
	assert.Equal(t, float64(1), second["qos"])
	assert.Equal(t, float64(2), second["refCount"])
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.connect()

	_, err := f.session.Subscribe(0, "a/b", func(string, []byte, interface{}) error { return nil })
	require.NoError(t, err)
	f.adapter.Deliver("a/b", []byte(`{"v":1}`))

	w, body := f.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["messages_received"])
	assert.Equal(t, float64(1), body["deliveries"])
	assert.Contains(t, body, "dispatch_rate")
}

func TestPublish(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		body      interface{}
		wantCode  int
	}{
		{
			name:      "accepted",
			connected: true,
			body:      map[string]interface{}{"topic": "orders/eu/created", "payload": map[string]int{"id": 7}, "qos": 1, "color": "blue"},
			wantCode:  http.StatusAccepted,
		},
		{
			name:      "not connected",
			connected: false,
			body:      map[string]interface{}{"topic": "orders/eu/created"},
			wantCode:  http.StatusServiceUnavailable,
		},
		{
			name:      "wildcard topic",
			connected: true,
			body:      map[string]interface{}{"topic": "orders/+"},
			wantCode:  http.StatusBadRequest,
		},
		{
			name:      "invalid qos",
			connected: true,
			body:      map[string]interface{}{"topic": "orders", "qos": 3},
			wantCode:  http.StatusBadRequest,
		},
		{
			name:      "missing topic",
			connected: true,
			body:      map[string]interface{}{"payload": 1},
			wantCode:  http.StatusBadRequest,
		},
		{
			name:      "malformed body",
			connected: true,
			body:      "{not json",
			wantCode:  http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.connected {
				f.connect()
			}

			w, _ := f.do(t, http.MethodPost, "/publish", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())

			if tt.wantCode == http.StatusAccepted {
				published := f.adapter.Published()
				require.Len(t, published, 1)
				assert.Equal(t, "orders/eu/created", published[0].Topic)
				assert.JSONEq(t, `{"id":7}`, string(published[0].Payload))
				assert.Equal(t, byte(1), published[0].Options.QoS)
				assert.Equal(t, "blue", published[0].Options.Color)
			} else {
				assert.Empty(t, f.adapter.Published())
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.connect()

	w, _ := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "portal_bus_")
}

func TestStartAndShutdown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.server.Start("127.0.0.1:0"))

	resp, err := http.Get(fmt.Sprintf("http://%s/stats", f.server.Addr().String()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, f.server.Shutdown(context.Background()))
}
