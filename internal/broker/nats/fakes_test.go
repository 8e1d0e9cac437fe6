package nats

import (
	"errors"
	"sync"

	"github.com/nats-io/nats.go"
)

type fakeSub struct {
	conn    *fakeConn
	subject string
	cb      nats.MsgHandler
	durable string
	closed  bool
}

func (s *fakeSub) Unsubscribe() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.closed {
		return errors.New("invalid subscription")
	}
	s.closed = true
	return nil
}

// fakeConn records subscriptions and publishes; deliver simulates the server
// handing a message to every open subscription matching the subject.
type fakeConn struct {
	mu        sync.Mutex
	subs      []*fakeSub
	published []*nats.Msg
	closed    bool
}

func (c *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &fakeSub{conn: c, subject: subject, cb: cb}
	c.subs = append(c.subs, s)
	return s, nil
}

func (c *fakeConn) SubscribeDurable(subject, durable string, cb nats.MsgHandler) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &fakeSub{conn: c, subject: subject, cb: cb, durable: durable}
	c.subs = append(c.subs, s)
	return s, nil
}

func (c *fakeConn) PublishMsg(msg *nats.Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nats.ErrConnectionClosed
	}
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeConn) ConnectedUrl() string { return "nats://fake:4222" }

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) openSubs() []*fakeSub {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeSub
	for _, s := range c.subs {
		if !s.closed {
			out = append(out, s)
		}
	}
	return out
}

// deliver hands msg to the callbacks of the given subscriptions, the way the
// server sends one copy per matching subscription.
func (c *fakeConn) deliver(subject string, data []byte, to ...*fakeSub) {
	for _, s := range to {
		s.cb(&nats.Msg{Subject: subject, Data: data})
	}
}

// fakeDialer returns conn (or err) and keeps the options of the last dial
type fakeDialer struct {
	mu   sync.Mutex
	conn *fakeConn
	err  error
	opts nats.Options
	urls string
}

func (d *fakeDialer) dial(urls string, opts ...nats.Option) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	o := nats.GetDefaultOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	d.opts = o
	d.urls = urls

	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *fakeDialer) options() nats.Options {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opts
}
