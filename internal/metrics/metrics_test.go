package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	assert.NoError(t, err)
	assert.NotNil(t, m)

	// registering twice on the same registry fails
	_, err = NewMetrics(reg)
	assert.Error(t, err)

	m, err = NewMetrics(nil)
	assert.NoError(t, err)
	assert.NotNil(t, m)
}

func TestMetricsCounters(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.IncMessagesTotal("received")
	m.IncMessagesTotal("received")
	m.IncMessagesTotal("decode_error")
	m.IncDeliveries()
	m.IncHandlerErrors()
	m.IncTransportOps("subscribe")
	m.IncReconnects()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesTotal.WithLabelValues("received")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesTotal.WithLabelValues("decode_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveriesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handlerErrorsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transportOpsTotal.WithLabelValues("subscribe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnectsTotal))
}

func TestMetricsSetConnectionStatus(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)

	m.SetConnectionStatus(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionStatus))
	m.SetConnectionStatus(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connectionStatus))
}

func TestCollector(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)

	c := NewCollector(m, func() (int, int) { return 3, 2 }, time.Hour)
	c.Start()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.subscriptions) == 3 && testutil.ToFloat64(m.filters) == 2
	}, time.Second, 10*time.Millisecond)

	c.Stop()
	c.Stop()
}
