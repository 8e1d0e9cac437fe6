// Package broker provides the subscription registry, the dispatcher and the
// session state machine that sit between application code and a protocol
// adapter (MQTT or the "*"/">" dialect).
package broker

import (
	"errors"

	"portal-bus/internal/topic"
)

var (
	// ErrNotFound is returned for unknown or already removed subscription handles
	ErrNotFound = errors.New("subscription not found")
	// ErrTransport wraps every failure reported by a protocol adapter
	ErrTransport = errors.New("transport error")
	// ErrNotConnected is returned by adapters asked to publish without a session
	ErrNotConnected = errors.New("not connected")
	// ErrInvalidQoS is returned for QoS values outside 0..2
	ErrInvalidQoS = errors.New("invalid qos")
)

// ConnectionState represents the current state of a broker connection
type ConnectionState string

const (
	// StateDisconnected indicates the broker is not connected
	StateDisconnected ConnectionState = "disconnected"
	// StateConnecting indicates a connection attempt is in flight
	StateConnecting ConnectionState = "connecting"
	// StateConnected indicates the broker is connected
	StateConnected ConnectionState = "connected"
	// StateFailed indicates the last connection attempt failed
	StateFailed ConnectionState = "failed"
)

// Credentials authenticate a connection attempt
type Credentials struct {
	Username string
	Password string
}

// ConnectionEvents are invoked by an adapter for one connection attempt.
// Exactly one of OnConnect or OnConnectError is called per attempt, and
// OnDisconnect at most once after OnConnect.
type ConnectionEvents struct {
	OnConnect      func()
	OnConnectError func(err error)
	OnDisconnect   func(err error)
}

// PublishOptions carry per-message metadata. Adapters map what their wire
// format supports and ignore the rest.
type PublishOptions struct {
	QoS          byte
	Retain       bool
	TraceID      string
	ParentID     string
	PartitionKey string
	Color        string
}

// RawMessageHandler receives inbound messages as delivered by the wire
type RawMessageHandler func(wireTopic string, payload []byte)

// ErrorHandler receives asynchronous transport failures
type ErrorHandler func(err error)

// MessageHandler is invoked for every matching subscription. parsed is the
// JSON-decoded payload, or nil when the payload is not valid JSON.
type MessageHandler func(topic string, raw []byte, parsed interface{}) error

// Handle identifies one subscription
type Handle string

// Adapter is the capability interface implemented once per protocol. Filters
// and topics handed to Subscribe, Unsubscribe and Publish are in the wire
// dialect for Subscribe/Unsubscribe (see TranslateFilterOut) and in the
// generic dialect for Publish.
type Adapter interface {
	// Name identifies the protocol in logs
	Name() string

	// Binding returns the wire wildcard dialect
	Binding() topic.Binding

	// State returns the state of the physical connection
	State() ConnectionState

	// Connect starts an asynchronous connection attempt
	Connect(creds Credentials, events ConnectionEvents)

	// Disconnect closes the connection; safe to call at any time
	Disconnect()

	// TranslateFilterOut converts a generic filter into the wire dialect
	TranslateFilterOut(filter string) string

	// TranslateTopicIn converts a wire topic into the generic dialect
	TranslateTopicIn(wireTopic string) string

	// Subscribe issues a transport subscribe; a no-op while disconnected
	Subscribe(wireFilter string, qos byte) error

	// Unsubscribe issues a transport unsubscribe; a no-op while disconnected
	Unsubscribe(wireFilter string) error

	// Publish JSON-encodes message and sends it to topic
	Publish(topic string, message interface{}, opts PublishOptions) error

	// SetMessageHandler installs the inbound message callback
	SetMessageHandler(h RawMessageHandler)

	// SetErrorHandler installs the asynchronous error callback
	SetErrorHandler(h ErrorHandler)
}

// SubscriptionInfo describes one handle
type SubscriptionInfo struct {
	Handle Handle     `json:"handle"`
	Filter string     `json:"filter"`
	Kind   topic.Kind `json:"-"`
	QoS    byte       `json:"qos"`
}

// FilterInfo describes one distinct filter and the handles sharing it
type FilterInfo struct {
	Filter   string `json:"filter"`
	Kind     string `json:"kind"`
	QoS      byte   `json:"qos"`
	RefCount int    `json:"refCount"`
}
