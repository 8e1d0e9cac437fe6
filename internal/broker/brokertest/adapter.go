// Package brokertest provides an in-memory Adapter and a manual Scheduler
// for exercising broker sessions without a network.
package brokertest

import (
	"sync"

	"portal-bus/internal/broker"
	"portal-bus/internal/topic"
)

// Call is one transport operation recorded by Adapter
type Call struct {
	Op     string
	Filter string
	QoS    byte
}

// Published is one message handed to Adapter.Publish
type Published struct {
	Topic   string
	Payload []byte
	Options broker.PublishOptions
}

// Adapter is a broker.Adapter whose connection lifecycle is driven by the
// test through AcceptConnect, RejectConnect and Drop.
type Adapter struct {
	binding topic.Binding

	mu           sync.Mutex
	state        broker.ConnectionState
	events       broker.ConnectionEvents
	creds        broker.Credentials
	connects     int
	calls        []Call
	published    []Published
	handler      broker.RawMessageHandler
	errorHandler broker.ErrorHandler
	subscribeErr error
}

// NewAdapter creates a disconnected fake speaking the b wire dialect
func NewAdapter(b topic.Binding) *Adapter {
	return &Adapter{
		binding: b,
		state:   broker.StateDisconnected,
	}
}

func (a *Adapter) Name() string { return "fake" }

func (a *Adapter) Binding() topic.Binding { return a.binding }

func (a *Adapter) State() broker.ConnectionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) Connect(creds broker.Credentials, events broker.ConnectionEvents) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = broker.StateConnecting
	a.creds = creds
	a.events = events
	a.connects++
}

func (a *Adapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = broker.StateDisconnected
	a.calls = append(a.calls, Call{Op: "disconnect"})
}

func (a *Adapter) TranslateFilterOut(filter string) string {
	return topic.Translate(filter, topic.Generic, a.binding)
}

func (a *Adapter) TranslateTopicIn(wireTopic string) string {
	return topic.Translate(wireTopic, a.binding, topic.Generic)
}

func (a *Adapter) Subscribe(wireFilter string, qos byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Op: "subscribe", Filter: wireFilter, QoS: qos})
	return a.subscribeErr
}

func (a *Adapter) Unsubscribe(wireFilter string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Op: "unsubscribe", Filter: wireFilter})
	return nil
}

func (a *Adapter) Publish(topicName string, message interface{}, opts broker.PublishOptions) error {
	payload, err := broker.EncodePayload(message)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != broker.StateConnected {
		return broker.ErrNotConnected
	}
	a.published = append(a.published, Published{Topic: topicName, Payload: payload, Options: opts})
	return nil
}

func (a *Adapter) SetMessageHandler(h broker.RawMessageHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

func (a *Adapter) SetErrorHandler(h broker.ErrorHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errorHandler = h
}

// FailSubscribes makes every later Subscribe return err
func (a *Adapter) FailSubscribes(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribeErr = err
}

// AcceptConnect completes the pending attempt successfully
func (a *Adapter) AcceptConnect() {
	a.mu.Lock()
	a.state = broker.StateConnected
	cb := a.events.OnConnect
	a.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// RejectConnect fails the pending attempt with err
func (a *Adapter) RejectConnect(err error) {
	a.mu.Lock()
	a.state = broker.StateFailed
	cb := a.events.OnConnectError
	a.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

// Drop simulates losing an established connection
func (a *Adapter) Drop(err error) {
	a.mu.Lock()
	a.state = broker.StateDisconnected
	cb := a.events.OnDisconnect
	a.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

// Deliver hands a wire message to the installed message handler
func (a *Adapter) Deliver(wireTopic string, payload []byte) {
	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()

	if h != nil {
		h(wireTopic, payload)
	}
}

// ReportError hands err to the installed error handler
func (a *Adapter) ReportError(err error) {
	a.mu.Lock()
	h := a.errorHandler
	a.mu.Unlock()

	if h != nil {
		h(err)
	}
}

// Calls returns a copy of the recorded transport operations
func (a *Adapter) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// CountCalls returns how many recorded operations are op
func (a *Adapter) CountCalls(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded operations
func (a *Adapter) ResetCalls() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = nil
}

// Published returns a copy of the published messages
func (a *Adapter) Published() []Published {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Published, len(a.published))
	copy(out, a.published)
	return out
}

// Connects returns how many attempts were started
func (a *Adapter) Connects() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connects
}

// Credentials returns the credentials of the last attempt
func (a *Adapter) Credentials() broker.Credentials {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.creds
}
