package nats

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"portal-bus/internal/broker"
)

// Subscription is a live subscription on a Conn
type Subscription interface {
	Unsubscribe() error
}

// Conn is the subset of *nats.Conn used by the adapter
type Conn interface {
	Subscribe(subject string, cb nats.MsgHandler) (Subscription, error)
	// SubscribeDurable attaches to a durable JetStream consumer with manual acks
	SubscribeDurable(subject, durable string, cb nats.MsgHandler) (Subscription, error)
	PublishMsg(msg *nats.Msg) error
	ConnectedUrl() string
	Close()
}

// Dialer opens a connection to the comma separated server list in urls
type Dialer func(urls string, opts ...nats.Option) (Conn, error)

var _ broker.Adapter = (*Adapter)(nil)

// natsConn adapts *nats.Conn to Conn
type natsConn struct {
	*nats.Conn
}

// Dial connects with nats.Connect
func Dial(urls string, opts ...nats.Option) (Conn, error) {
	nc, err := nats.Connect(urls, opts...)
	if err != nil {
		return nil, err
	}
	return &natsConn{Conn: nc}, nil
}

func (c *natsConn) Subscribe(subject string, cb nats.MsgHandler) (Subscription, error) {
	sub, err := c.Conn.Subscribe(subject, cb)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *natsConn) SubscribeDurable(subject, durable string, cb nats.MsgHandler) (Subscription, error) {
	js, err := c.Conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream unavailable: %w", err)
	}

	sub, err := js.Subscribe(subject, cb,
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.DeliverAll())
	if err != nil {
		return nil, err
	}
	return sub, nil
}
