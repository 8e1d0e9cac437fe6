package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"portal-bus/internal/broker"
	"portal-bus/internal/topic"
)

// pendingWindow bounds how long copies of a forwarded message are awaited
// from the other subscriptions that matched it.
const pendingWindow = 5 * time.Second

// pendingCopies tracks one forwarded message: the held subscriptions (by seq)
// whose copy of it has not arrived yet.
type pendingCopies struct {
	expected map[uint64]struct{}
	at       time.Time
}

// Subscribe subscribes to wireFilter. Repeated calls for the same filter share
// one subject subscription. QoS has no NATS equivalent and is ignored.
func (a *Adapter) Subscribe(wireFilter string, qos byte) error {
	f, err := topic.Classify(wireFilter, topic.NATS)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != broker.StateConnected || a.conn == nil {
		a.logger.Debug("skipping subscribe while disconnected", "subject", wireFilter)
		return nil
	}

	if held, ok := a.subs[wireFilter]; ok {
		held.refs++
		return nil
	}

	a.nextSeq++
	held := &heldSub{subject: wireFilter, seq: a.nextSeq, refs: 1}

	sub, err := a.conn.Subscribe(wireFilter, func(msg *nats.Msg) {
		a.handleMessage(held, msg)
	})
	if err != nil {
		return fmt.Errorf("%w: subscribe %s: %v", broker.ErrTransport, wireFilter, err)
	}
	held.sub = sub
	a.subs[wireFilter] = held

	a.logger.Debug("subscribed to subject", "subject", wireFilter, "kind", f.Kind.String())
	return nil
}

// Unsubscribe drops one reference to wireFilter
func (a *Adapter) Unsubscribe(wireFilter string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != broker.StateConnected {
		a.logger.Debug("skipping unsubscribe while disconnected", "subject", wireFilter)
		return nil
	}

	held, ok := a.subs[wireFilter]
	if !ok {
		return nil
	}
	held.refs--
	if held.refs > 0 {
		return nil
	}
	delete(a.subs, wireFilter)
	a.forgetLocked(held.seq)

	if err := held.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("%w: unsubscribe %s: %v", broker.ErrTransport, wireFilter, err)
	}

	a.logger.Debug("unsubscribed from subject", "subject", wireFilter)
	return nil
}

// handleMessage forwards the first copy of a message and drops the copies
// NATS delivers to the other held subscriptions matching the same subject.
func (a *Adapter) handleMessage(via *heldSub, msg *nats.Msg) {
	if !a.firstCopy(via, msg) {
		return
	}

	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()

	if h != nil {
		h(msg.Subject, msg.Data)
	}
}

// firstCopy reports whether msg, received through via, has to be forwarded.
// A forwarded message records every other live subscription the server
// routes its subject to; a later copy received through one of them is a
// duplicate. Removing a subscription clears it from every record, so a copy
// that will never arrive does not hold back the next identical message.
func (a *Adapter) firstCopy(via *heldSub, msg *nats.Msg) bool {
	key := copyKey(msg)
	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if current, ok := a.subs[via.subject]; !ok || current != via {
		return false
	}

	a.expireLocked(now)

	for i, p := range a.pending[key] {
		if _, ok := p.expected[via.seq]; !ok {
			continue
		}
		delete(p.expected, via.seq)
		if len(p.expected) == 0 {
			a.dropPendingLocked(key, i)
		}
		return false
	}

	expected := make(map[uint64]struct{})
	for _, held := range a.subs {
		if held != via && subjectMatches(held.subject, msg.Subject) {
			expected[held.seq] = struct{}{}
		}
	}
	if len(expected) > 0 {
		a.pending[key] = append(a.pending[key], &pendingCopies{expected: expected, at: now})
	}
	return true
}

// forgetLocked stops waiting for copies from the subscription with seq
func (a *Adapter) forgetLocked(seq uint64) {
	for key, list := range a.pending {
		for i := len(list) - 1; i >= 0; i-- {
			delete(list[i].expected, seq)
			if len(list[i].expected) == 0 {
				a.dropPendingLocked(key, i)
			}
		}
	}
}

// expireLocked drops records older than pendingWindow; their missing copies
// were lost by the server.
func (a *Adapter) expireLocked(now time.Time) {
	for key, list := range a.pending {
		for i := len(list) - 1; i >= 0; i-- {
			if now.Sub(list[i].at) > pendingWindow {
				a.dropPendingLocked(key, i)
			}
		}
	}
}

func (a *Adapter) dropPendingLocked(key string, i int) {
	list := append(a.pending[key][:i], a.pending[key][i+1:]...)
	if len(list) == 0 {
		delete(a.pending, key)
		return
	}
	a.pending[key] = list
}

// resetSubsLocked forgets every held subscription after the connection goes
func (a *Adapter) resetSubsLocked() {
	a.subs = make(map[string]*heldSub)
	a.pending = make(map[string][]*pendingCopies)
}

// copyKey identifies the copies of one published message. The traceparent
// header differs between publishes, so identical payloads published twice
// only share a key when the publisher sent no trace context.
func copyKey(msg *nats.Msg) string {
	return msg.Subject + "\x00" + msg.Header.Get(headerTraceParent) + "\x00" + string(msg.Data)
}
