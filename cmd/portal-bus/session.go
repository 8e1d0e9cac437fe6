package main

import (
	"fmt"

	"portal-bus/config"
	"portal-bus/internal/broker"
	"portal-bus/internal/broker/mqtt"
	"portal-bus/internal/broker/nats"
	"portal-bus/internal/logger"
	"portal-bus/internal/metrics"
	"portal-bus/internal/stats"
)

// newAdapter picks the protocol adapter named by the broker configuration
func newAdapter(cfg *config.BrokerConfig, log *logger.Logger, m *metrics.Metrics) (broker.Adapter, error) {
	switch cfg.Protocol {
	case config.ProtocolMQTT:
		return mqtt.NewAdapter(cfg, log, m)
	case config.ProtocolNATS:
		return nats.NewAdapter(cfg, log, m)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", cfg.Protocol)
	}
}

// newSession builds a session whose filters and topics are written in the
// native dialect of the configured protocol.
func newSession(cfg *config.Config, log *logger.Logger, m *metrics.Metrics, st *stats.StatsCollector) (*broker.Session, error) {
	adapter, err := newAdapter(&cfg.Broker, log, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", cfg.Broker.Protocol, err)
	}

	opts := []broker.Option{
		broker.WithLogger(log),
		broker.WithMetrics(m),
		broker.WithStats(st),
		broker.WithBinding(adapter.Binding()),
		broker.WithRetryDelay(cfg.Broker.RetryDelayDuration()),
	}
	if cfg.Registry.SharePolicy == config.SharePolicyHandle {
		opts = append(opts, broker.WithPerHandleTransport())
	}

	return broker.NewSession(adapter, opts...), nil
}

func credentials(cfg *config.BrokerConfig) broker.Credentials {
	return broker.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(brokerURL, clientID, "", "", 0)
	return cfg, nil
}
