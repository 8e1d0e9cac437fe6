package mqtt

import (
	"fmt"

	"portal-bus/internal/broker"
)

// Publish JSON-encodes message and publishes it with the QoS and retain flag
// from opts. Trace, color and partition options have no MQTT 3.1.1 encoding
// and are ignored. Delivery failures after the PUBLISH is queued are
// reported to the error handler.
func (a *Adapter) Publish(topicName string, message interface{}, opts broker.PublishOptions) error {
	client, ok := a.connectedClient()
	if !ok {
		return fmt.Errorf("publish to %s: %w", topicName, broker.ErrNotConnected)
	}

	payload, err := broker.EncodePayload(message)
	if err != nil {
		return err
	}

	wire := a.TranslateFilterOut(topicName)
	a.await(client.Publish(wire, opts.QoS, opts.Retain, payload), "publish", wire)

	a.logger.Debug("published message",
		"topic", wire,
		"qos", opts.QoS,
		"retain", opts.Retain,
		"payloadSize", len(payload))

	return nil
}
