package nats

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"portal-bus/internal/broker"
	"portal-bus/internal/metrics"
)

const (
	headerTraceParent  = "traceparent"
	headerColor        = "color"
	headerPartitionKey = "partition-key"
)

// Publish JSON-encodes message and publishes it to the subject for topicName.
// Trace context, color and partition key travel as message headers.
func (a *Adapter) Publish(topicName string, message interface{}, opts broker.PublishOptions) error {
	a.mu.Lock()
	conn := a.conn
	connected := a.state == broker.StateConnected
	a.mu.Unlock()

	if !connected || conn == nil {
		return fmt.Errorf("publish to %s: %w", topicName, broker.ErrNotConnected)
	}

	payload, err := broker.EncodePayload(message)
	if err != nil {
		return err
	}

	subject := ToNATSSubject(topicName)
	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set(headerTraceParent, broker.TraceParent(opts.TraceID, opts.ParentID))
	if opts.Color != "" {
		msg.Header.Set(headerColor, opts.Color)
	}
	if opts.PartitionKey != "" {
		msg.Header.Set(headerPartitionKey, opts.PartitionKey)
	}

	if err := conn.PublishMsg(msg); err != nil {
		a.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncTransportOps("publish_error")
		})
		a.logger.Error("failed to publish message",
			"error", err,
			"topic", topicName,
			"subject", subject)
		return fmt.Errorf("%w: publish %s: %v", broker.ErrTransport, subject, err)
	}

	a.logger.Debug("published message",
		"topic", topicName,
		"subject", subject,
		"payloadSize", len(payload))

	return nil
}
