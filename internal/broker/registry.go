package broker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"portal-bus/internal/metrics"
	"portal-bus/internal/topic"
)

type subscription struct {
	handle  Handle
	filter  topic.Filter
	qos     byte
	handler MessageHandler
}

// filterEntry is shared by every handle subscribed with the same filter
// string; its refcount is len(handles).
type filterEntry struct {
	filter  topic.Filter
	handles []Handle
}

type target struct {
	handle  Handle
	filter  string
	handler MessageHandler
}

// Registry assigns subscription handles, keeps the classified filter index,
// reference counts shared filters and forwards transport subscribes to the
// adapter while the session is live.
type Registry struct {
	adapter Adapter
	opts    options

	mu      sync.Mutex
	subs    map[Handle]*subscription
	entries map[string]*filterEntry
	index   *topic.Index
	live    bool

	// serializes Dispatch so messages are delivered in arrival order
	dispatchMu sync.Mutex
}

// NewRegistry creates a registry bound to adapter
func NewRegistry(adapter Adapter, opts ...Option) *Registry {
	return newRegistry(adapter, buildOptions(opts))
}

func newRegistry(adapter Adapter, o options) *Registry {
	return &Registry{
		adapter: adapter,
		opts:    o,
		subs:    make(map[Handle]*subscription),
		entries: make(map[string]*filterEntry),
		index:   topic.NewIndex(),
	}
}

// Subscribe classifies filter and registers handler for it. The call succeeds
// locally while disconnected; the transport subscribe is replayed on Resume.
func (r *Registry) Subscribe(qos byte, filter string, handler MessageHandler) (Handle, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}
	if qos > 2 {
		return "", fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}

	f, err := topic.Classify(filter, r.opts.binding)
	if err != nil {
		return "", err
	}

	h := Handle(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[filter]
	if !exists {
		entry = &filterEntry{filter: f}
		r.entries[filter] = entry
		r.index.Add(f)
	}
	entry.handles = append(entry.handles, h)

	r.subs[h] = &subscription{
		handle:  h,
		filter:  f,
		qos:     qos,
		handler: handler,
	}

	r.opts.logger.Debug("subscription added",
		"handle", h,
		"filter", filter,
		"kind", f.Kind.String(),
		"refCount", len(entry.handles))

	// A shared filter that is already live keeps the QoS it was subscribed
	// with; a higher QoS from this handle takes effect on the next Resume.
	// Subscribing again would add a transport reference that only one
	// Unsubscribe releases on adapters that refcount per wire filter.
	if r.live && (len(entry.handles) == 1 || r.opts.perHandle) {
		r.issueSubscribe(filter, qos)
	}

	r.updateGauges()
	return h, nil
}

// Unsubscribe removes the subscription identified by h. The transport
// unsubscribe is issued when the last handle sharing the filter goes away.
func (r *Registry) Unsubscribe(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[h]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, h)
	}
	delete(r.subs, h)

	raw := sub.filter.Raw
	entry := r.entries[raw]
	for i, other := range entry.handles {
		if other == h {
			entry.handles = append(entry.handles[:i], entry.handles[i+1:]...)
			break
		}
	}

	last := len(entry.handles) == 0
	if last {
		delete(r.entries, raw)
		r.index.Remove(raw)
	}

	r.opts.logger.Debug("subscription removed",
		"handle", h,
		"filter", raw,
		"refCount", len(entry.handles))

	if r.live && (last || r.opts.perHandle) {
		r.issueUnsubscribe(raw)
	}

	r.updateGauges()
	return nil
}

// GetSubscription returns the filter and QoS registered under h
func (r *Registry) GetSubscription(h Handle) (SubscriptionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[h]
	if !ok {
		return SubscriptionInfo{}, fmt.Errorf("%w: %s", ErrNotFound, h)
	}

	return SubscriptionInfo{
		Handle: h,
		Filter: sub.filter.Raw,
		Kind:   sub.filter.Kind,
		QoS:    sub.qos,
	}, nil
}

// Subscriptions returns every distinct filter sorted by filter string
func (r *Registry) Subscriptions() []FilterInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]FilterInfo, 0, len(r.entries))
	for raw, entry := range r.entries {
		infos = append(infos, FilterInfo{
			Filter:   raw,
			Kind:     entry.filter.Kind.String(),
			QoS:      r.effectiveQoS(entry),
			RefCount: len(entry.handles),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Filter < infos[j].Filter
	})
	return infos
}

// Counts returns the number of live handles and distinct filters
func (r *Registry) Counts() (handles, filters int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs), len(r.entries)
}

// Binding returns the dialect filters and topics are expressed in
func (r *Registry) Binding() topic.Binding {
	return r.opts.binding
}

// Resume marks the transport as live and replays one subscribe per distinct
// filter at the highest QoS requested for it.
func (r *Registry) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.live = true

	r.opts.logger.Info("replaying subscriptions",
		"adapter", r.adapter.Name(),
		"filters", len(r.entries))

	for raw, entry := range r.entries {
		if r.opts.perHandle {
			for _, h := range entry.handles {
				r.issueSubscribe(raw, r.subs[h].qos)
			}
		} else {
			r.issueSubscribe(raw, r.effectiveQoS(entry))
		}
		r.opts.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncTransportOps("replay")
		})
	}
}

// Suspend stops transport calls until the next Resume
func (r *Registry) Suspend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = false
}

// Dispatch delivers a message on a generic-dialect topic to every handle of
// every matching filter. Handler errors and panics are logged and do not
// affect other handlers. A handle unsubscribed by an earlier handler of the
// same message is skipped. It returns the number of handler invocations.
func (r *Registry) Dispatch(topicName string, raw []byte) int {
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()

	t, err := topic.ParseTopic(topicName, topic.Generic)
	if err != nil {
		r.opts.logger.Warn("dropping message", "topic", topicName, "error", err)
		return 0
	}

	parsed, ok := decodePayload(raw)
	if !ok {
		r.opts.stats.IncDecodeFailures()
		r.opts.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncMessagesTotal("decode_error")
		})
		r.opts.logger.Debug("payload is not json", "topic", topicName, "payloadSize", len(raw))
	}

	r.mu.Lock()
	var targets []target
	for _, f := range r.index.Matching(t) {
		for _, h := range r.entries[f.Raw].handles {
			targets = append(targets, target{
				handle:  h,
				filter:  f.Raw,
				handler: r.subs[h].handler,
			})
		}
	}
	r.mu.Unlock()

	local := topic.Translate(t.String(), topic.Generic, r.opts.binding)
	delivered := 0
	for _, tg := range targets {
		// an earlier handler may have unsubscribed this one
		if !r.subscribed(tg.handle) {
			continue
		}
		r.deliver(tg, local, raw, parsed)
		delivered++
	}

	r.opts.stats.IncDispatched()
	r.opts.stats.AddDeliveries(delivered)
	r.opts.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal("dispatched")
	})

	return delivered
}

func (r *Registry) subscribed(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[h]
	return ok
}

func (r *Registry) deliver(tg target, topicName string, raw []byte, parsed interface{}) {
	defer func() {
		if rec := recover(); rec != nil {
			r.handlerFailed(tg, topicName, fmt.Errorf("handler panicked: %v", rec))
		}
	}()

	r.opts.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncDeliveries()
	})

	if err := tg.handler(topicName, raw, parsed); err != nil {
		r.handlerFailed(tg, topicName, err)
	}
}

func (r *Registry) handlerFailed(tg target, topicName string, err error) {
	r.opts.stats.IncHandlerErrors()
	r.opts.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncHandlerErrors()
	})
	r.opts.logger.Error("message handler failed",
		"handle", tg.handle,
		"filter", tg.filter,
		"topic", topicName,
		"error", err)
}

// wireFilter converts a filter from the application dialect to the adapter's.
// A filter already in the adapter's dialect is passed through untouched so
// literal characters that are wildcards elsewhere survive.
func (r *Registry) wireFilter(raw string) string {
	if r.opts.binding == r.adapter.Binding() {
		return raw
	}
	return r.adapter.TranslateFilterOut(topic.Translate(raw, r.opts.binding, topic.Generic))
}

func (r *Registry) issueSubscribe(raw string, qos byte) {
	wire := r.wireFilter(raw)
	if err := r.adapter.Subscribe(wire, qos); err != nil {
		r.opts.logger.Error("transport subscribe failed",
			"adapter", r.adapter.Name(),
			"filter", raw,
			"wireFilter", wire,
			"error", err)
		return
	}
	r.opts.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncTransportOps("subscribe")
	})
}

func (r *Registry) issueUnsubscribe(raw string) {
	wire := r.wireFilter(raw)
	if err := r.adapter.Unsubscribe(wire); err != nil {
		r.opts.logger.Error("transport unsubscribe failed",
			"adapter", r.adapter.Name(),
			"filter", raw,
			"wireFilter", wire,
			"error", err)
		return
	}
	r.opts.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncTransportOps("unsubscribe")
	})
}

func (r *Registry) effectiveQoS(entry *filterEntry) byte {
	var qos byte
	for _, h := range entry.handles {
		if q := r.subs[h].qos; q > qos {
			qos = q
		}
	}
	return qos
}

func (r *Registry) updateGauges() {
	r.opts.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetSubscriptions(len(r.subs), len(r.entries))
	})
}
