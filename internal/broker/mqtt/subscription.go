package mqtt

import (
	paho "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe sends SUBSCRIBE for wireFilter. Messages arrive through the
// default publish handler so overlapping filters yield one delivery per
// PUBLISH. The acknowledgement is awaited in the background and failures go
// to the error handler.
func (a *Adapter) Subscribe(wireFilter string, qos byte) error {
	client, ok := a.connectedClient()
	if !ok {
		a.logger.Debug("skipping subscribe while disconnected", "filter", wireFilter)
		return nil
	}

	a.logger.Debug("subscribing", "filter", wireFilter, "qos", qos)
	a.await(client.Subscribe(wireFilter, qos, nil), "subscribe", wireFilter)
	return nil
}

// Unsubscribe sends UNSUBSCRIBE for wireFilter
func (a *Adapter) Unsubscribe(wireFilter string) error {
	client, ok := a.connectedClient()
	if !ok {
		a.logger.Debug("skipping unsubscribe while disconnected", "filter", wireFilter)
		return nil
	}

	a.logger.Debug("unsubscribing", "filter", wireFilter)
	a.await(client.Unsubscribe(wireFilter), "unsubscribe", wireFilter)
	return nil
}

// handleMessage is the client's default publish handler
func (a *Adapter) handleMessage(_ paho.Client, msg paho.Message) {
	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()

	a.logger.Debug("message received",
		"topic", msg.Topic(),
		"payloadSize", len(msg.Payload()),
		"duplicate", msg.Duplicate())

	if h != nil {
		h(msg.Topic(), msg.Payload())
	}
}
