package broker

import "portal-bus/internal/metrics"

// Dispatcher feeds inbound wire messages into a Registry
type Dispatcher struct {
	registry *Registry
	adapter  Adapter
}

// NewDispatcher creates a dispatcher that translates topics with adapter and
// delivers through registry.
func NewDispatcher(registry *Registry, adapter Adapter) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		adapter:  adapter,
	}
}

// HandleRawMessage is installed as the adapter's RawMessageHandler. Delivery
// is synchronous; it returns once every matching handler has run.
func (d *Dispatcher) HandleRawMessage(wireTopic string, payload []byte) {
	opts := &d.registry.opts
	opts.stats.IncReceived()
	opts.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal("received")
	})

	generic := d.adapter.TranslateTopicIn(wireTopic)
	n := d.registry.Dispatch(generic, payload)

	opts.logger.Debug("message dispatched",
		"adapter", d.adapter.Name(),
		"wireTopic", wireTopic,
		"topic", generic,
		"deliveries", n)
}
