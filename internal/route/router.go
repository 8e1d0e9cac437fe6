package route

import (
	"encoding/json"
	"fmt"

	"portal-bus/internal/broker"
	"portal-bus/internal/logger"
	"portal-bus/internal/topic"
)

// Subscriber is the part of broker.Session routes are applied to
type Subscriber interface {
	Subscribe(qos byte, filter string, handler broker.MessageHandler) (broker.Handle, error)
	Unsubscribe(h broker.Handle) error
	Publish(topic string, message interface{}, opts broker.PublishOptions) error
}

// Router installs routes on a Subscriber
type Router struct {
	sub     Subscriber
	binding topic.Binding
	logger  *logger.Logger
}

// NewRouter creates a router for routes written in the dialect of b
func NewRouter(sub Subscriber, b topic.Binding, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Nop()
	}
	return &Router{
		sub:     sub,
		binding: b,
		logger:  log,
	}
}

// Apply validates every enabled route and subscribes them. Nothing is
// subscribed when any route is invalid.
func (r *Router) Apply(routes []Route) ([]broker.Handle, error) {
	enabled := make([]Route, 0, len(routes))
	for i := range routes {
		if !routes[i].Enabled {
			continue
		}
		if err := Validate(&routes[i], r.binding); err != nil {
			return nil, fmt.Errorf("route %d (%s): %w", i, routes[i].Filter, err)
		}
		enabled = append(enabled, routes[i])
	}

	handles := make([]broker.Handle, 0, len(enabled))
	for _, rt := range enabled {
		h, err := r.sub.Subscribe(rt.QoS, rt.Filter, r.handler(rt))
		if err != nil {
			r.Remove(handles)
			return nil, fmt.Errorf("failed to subscribe route %s: %w", rt.Filter, err)
		}
		handles = append(handles, h)

		r.logger.Info("route installed",
			"filter", rt.Filter,
			"qos", rt.QoS,
			"description", rt.Description,
			"forward", rt.Forward != nil)
	}

	return handles, nil
}

// Remove unsubscribes previously applied routes
func (r *Router) Remove(handles []broker.Handle) {
	for _, h := range handles {
		if err := r.sub.Unsubscribe(h); err != nil {
			r.logger.Warn("failed to remove route", "handle", h, "error", err)
		}
	}
}

func (r *Router) handler(rt Route) broker.MessageHandler {
	return func(topicName string, raw []byte, parsed interface{}) error {
		values, _ := parsed.(map[string]interface{})

		if !evaluateConditions(rt.Conditions, values) {
			r.logger.Debug("route conditions not met", "filter", rt.Filter, "topic", topicName)
			return nil
		}

		r.logger.Info("route matched",
			"filter", rt.Filter,
			"topic", topicName,
			"payloadSize", len(raw))

		if rt.Forward == nil {
			return nil
		}

		target := render(rt.Forward.Topic, topicName, values)
		opts := broker.PublishOptions{
			QoS:          rt.Forward.QoS,
			Retain:       rt.Forward.Retain,
			Color:        rt.Forward.Color,
			PartitionKey: render(rt.Forward.PartitionKey, topicName, values),
		}

		if err := r.sub.Publish(target, forwardPayload(raw), opts); err != nil {
			return fmt.Errorf("failed to forward %s to %s: %w", topicName, target, err)
		}

		r.logger.Debug("message forwarded", "from", topicName, "to", target)
		return nil
	}
}

// forwardPayload keeps JSON payloads verbatim and wraps anything else as a
// JSON string.
func forwardPayload(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	return string(raw)
}
