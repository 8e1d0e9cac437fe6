package nats

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"portal-bus/internal/broker"
)

// QueueBinding names a durable consumer and the subject it consumes, the
// subject in the generic dialect.
type QueueBinding struct {
	Name    string
	Subject string
}

// QueueEvents report the lifecycle of a queue binding
type QueueEvents struct {
	OnUp    func()
	OnDown  func(err error)
	OnError func(err error)
}

type queueState struct {
	binding QueueBinding
	sub     Subscription
	events  QueueEvents
}

// BindQueue attaches to the durable consumer described by b. Messages go
// through the raw message handler and are acknowledged once it returns. The
// binding is dropped when the connection is lost and has to be bound again
// after reconnecting.
func (a *Adapter) BindQueue(b QueueBinding, events QueueEvents) error {
	if b.Name == "" || b.Subject == "" {
		return fmt.Errorf("queue binding requires name and subject")
	}

	a.mu.Lock()
	if a.state != broker.StateConnected || a.conn == nil {
		a.mu.Unlock()
		return fmt.Errorf("bind queue %s: %w", b.Name, broker.ErrNotConnected)
	}
	if a.queue != nil {
		name := a.queue.binding.Name
		a.mu.Unlock()
		return fmt.Errorf("queue %s is already bound", name)
	}

	subject := ToNATSSubject(b.Subject)
	sub, err := a.conn.SubscribeDurable(subject, b.Name, func(msg *nats.Msg) {
		a.handleQueueMessage(msg, events)
	})
	if err == nil {
		a.queue = &queueState{binding: b, sub: sub, events: events}
	}
	a.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("%w: bind queue %s: %v", broker.ErrTransport, b.Name, err)
		if events.OnError != nil {
			events.OnError(err)
		}
		return err
	}

	a.logger.Info("queue bound", "queue", b.Name, "subject", subject)
	if events.OnUp != nil {
		events.OnUp()
	}
	return nil
}

// UnbindQueue detaches from the bound queue, leaving the durable consumer in
// place on the server.
func (a *Adapter) UnbindQueue() error {
	a.mu.Lock()
	q := a.queue
	a.queue = nil
	a.mu.Unlock()

	if q == nil {
		return nil
	}

	err := q.sub.Unsubscribe()
	if err != nil {
		err = fmt.Errorf("%w: unbind queue %s: %v", broker.ErrTransport, q.binding.Name, err)
	}

	a.logger.Info("queue unbound", "queue", q.binding.Name)
	if q.events.OnDown != nil {
		q.events.OnDown(err)
	}
	return err
}

func (a *Adapter) handleQueueMessage(msg *nats.Msg, events QueueEvents) {
	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()

	if h != nil {
		h(msg.Subject, msg.Data)
	}

	if err := msg.Ack(); err != nil {
		err = fmt.Errorf("%w: ack on %s: %v", broker.ErrTransport, msg.Subject, err)
		a.logger.Warn("failed to acknowledge queue message", "error", err)
		if events.OnError != nil {
			events.OnError(err)
		}
	}
}
