package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// MockToken implements paho.Token for testing
type MockToken struct {
	err  error
	done chan struct{}
}

func NewMockToken(err error) *MockToken {
	done := make(chan struct{})
	close(done)
	return &MockToken{err: err, done: done}
}

func (t *MockToken) Wait() bool                       { return true }
func (t *MockToken) WaitTimeout(d time.Duration) bool { return true }
func (t *MockToken) Error() error                     { return t.err }
func (t *MockToken) Done() <-chan struct{}            { return t.done }

// pendingToken never completes
type pendingToken struct{}

func (pendingToken) Wait() bool                       { return false }
func (pendingToken) WaitTimeout(d time.Duration) bool { return false }
func (pendingToken) Error() error                     { return nil }
func (pendingToken) Done() <-chan struct{}            { return make(chan struct{}) }

type subscribeCall struct {
	filter   string
	qos      byte
	callback paho.MessageHandler
}

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// MockClient implements paho.Client for testing
type MockClient struct {
	opts *paho.ClientOptions

	connectErr   error
	subscribeErr error

	mu           sync.Mutex
	subscribes   []subscribeCall
	unsubscribes []string
	publishes    []publishCall
	disconnects  int
}

func (m *MockClient) Connect() paho.Token { return NewMockToken(m.connectErr) }

func (m *MockClient) Disconnect(quiesce uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishes = append(m.publishes, publishCall{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return NewMockToken(nil)
}

func (m *MockClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribes = append(m.subscribes, subscribeCall{filter: topic, qos: qos, callback: callback})
	return NewMockToken(m.subscribeErr)
}

func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	return NewMockToken(nil)
}

func (m *MockClient) Unsubscribe(topics ...string) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribes = append(m.unsubscribes, topics...)
	return NewMockToken(nil)
}

func (m *MockClient) AddRoute(topic string, callback paho.MessageHandler) {}
func (m *MockClient) IsConnected() bool                                 { return true }
func (m *MockClient) IsConnectionOpen() bool                            { return true }
func (m *MockClient) OptionsReader() paho.ClientOptionsReader           { return paho.ClientOptionsReader{} }

func (m *MockClient) subscribeCalls() []subscribeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]subscribeCall(nil), m.subscribes...)
}

func (m *MockClient) publishCalls() []publishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishCall(nil), m.publishes...)
}

func (m *MockClient) unsubscribeCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.unsubscribes...)
}

// MockMessage implements paho.Message for testing
type MockMessage struct {
	topic   string
	payload []byte
}

func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 0 }
func (m *MockMessage) Retained() bool    { return false }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) MessageID() uint16 { return 1 }
func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Ack()              {}

// mockFactory hands out MockClients and remembers the options of each
type mockFactory struct {
	mu         sync.Mutex
	clients    []*MockClient
	connectErr error
}

func (f *mockFactory) newClient(opts *paho.ClientOptions) paho.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &MockClient{opts: opts, connectErr: f.connectErr}
	f.clients = append(f.clients, c)
	return c
}

func (f *mockFactory) last() *MockClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[len(f.clients)-1]
}
