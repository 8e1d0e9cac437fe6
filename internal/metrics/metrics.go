// Package metrics exposes prometheus instrumentation for a portal-bus session.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "portal_bus"

// Metrics holds the collectors of one session
type Metrics struct {
	messagesTotal      *prometheus.CounterVec
	deliveriesTotal    prometheus.Counter
	handlerErrorsTotal prometheus.Counter
	transportOpsTotal  *prometheus.CounterVec
	reconnectsTotal    prometheus.Counter
	connectionStatus   prometheus.Gauge
	subscriptions      prometheus.Gauge
	filters            prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by status (received, dispatched, decode_error)",
		}, []string{"status"}),
		deliveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Handler invocations",
		}),
		handlerErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Handler invocations that returned an error or panicked",
		}),
		transportOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_ops_total",
			Help:      "Transport level operations by kind (subscribe, unsubscribe, replay, publish)",
		}, []string{"op"}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Scheduled reconnection attempts",
		}),
		connectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "1 when the session is connected",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "Live subscription handles",
		}),
		filters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "filters_active",
			Help:      "Distinct live filters",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.messagesTotal,
			m.deliveriesTotal,
			m.handlerErrorsTotal,
			m.transportOpsTotal,
			m.reconnectsTotal,
			m.connectionStatus,
			m.subscriptions,
			m.filters,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) IncMessagesTotal(status string) {
	m.messagesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncDeliveries() {
	m.deliveriesTotal.Inc()
}

func (m *Metrics) IncHandlerErrors() {
	m.handlerErrorsTotal.Inc()
}

func (m *Metrics) IncTransportOps(op string) {
	m.transportOpsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) IncReconnects() {
	m.reconnectsTotal.Inc()
}

func (m *Metrics) SetConnectionStatus(connected bool) {
	if connected {
		m.connectionStatus.Set(1)
		return
	}
	m.connectionStatus.Set(0)
}

func (m *Metrics) SetSubscriptions(handles, filters int) {
	m.subscriptions.Set(float64(handles))
	m.filters.Set(float64(filters))
}

// Sampler reports the current number of handles and distinct filters
type Sampler func() (handles, filters int)

// Collector periodically refreshes the subscription gauges
type Collector struct {
	metrics  *Metrics
	sample   Sampler
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

func NewCollector(m *Metrics, sample Sampler, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:  m,
		sample:   sample,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (c *Collector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stop:
				return
			}
		}
	}()
}

func (c *Collector) Stop() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}

func (c *Collector) collect() {
	handles, filters := c.sample()
	c.metrics.SetSubscriptions(handles, filters)
}
