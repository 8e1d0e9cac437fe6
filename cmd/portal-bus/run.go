package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"portal-bus/config"
	"portal-bus/internal/broker"
	"portal-bus/internal/broker/nats"
	"portal-bus/internal/httpapi"
	"portal-bus/internal/logger"
	"portal-bus/internal/metrics"
	"portal-bus/internal/route"
	"portal-bus/internal/stats"
	"portal-bus/internal/topic"
)

func newRunCommand() *cobra.Command {
	var (
		routesDir  string
		apiAddr    string
		retryDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the broker and serve the configured routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.ApplyOverrides("", "", apiAddr, routesDir, retryDelay)
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&routesDir, "routes", "", "override routes directory (empty = use config)")
	cmd.Flags().StringVar(&apiAddr, "api-addr", "", "override admin api address, enables the api (empty = use config)")
	cmd.Flags().DurationVar(&retryDelay, "retry-delay", 0, "override delay between connection attempts (0 = use config)")

	return cmd
}

func run(cfg *config.Config) error {
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	var (
		metricsService *metrics.Metrics
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			return fmt.Errorf("failed to create metrics service: %w", err)
		}
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		})
	}

	st := stats.NewStatsCollector()
	session, err := newSession(cfg, log, metricsService, st)
	if err != nil {
		return err
	}

	if metricsService != nil {
		interval, _ := time.ParseDuration(cfg.Metrics.UpdateInterval)
		collector := metrics.NewCollector(metricsService, session.Registry().Counts, interval)
		collector.Start()
		defer collector.Stop()
	}

	var routes []route.Route
	if cfg.Routes.Directory != "" {
		routes, err = route.NewLoader(log).LoadFromDirectory(cfg.Routes.Directory)
		if err != nil {
			return fmt.Errorf("failed to load routes: %w", err)
		}
	}

	router := route.NewRouter(session, session.Registry().Binding(), log)
	handles, err := router.Apply(routes)
	if err != nil {
		return fmt.Errorf("failed to apply routes: %w", err)
	}

	var api *httpapi.Server
	if cfg.API.Enabled {
		api = httpapi.NewServer(session, st, log, cfg.Metrics.Path, metricsHandler)
		if err := api.Start(cfg.API.Address); err != nil {
			return err
		}
	} else if cfg.Metrics.Enabled {
		log.Warn("metrics are enabled but the admin api that serves them is not")
	}

	session.Connect(credentials(&cfg.Broker), broker.ConnectionEvents{
		OnConnect: func() {
			bindQueue(cfg, session, log)
		},
		OnConnectError: func(err error) {
			log.Warn("connection attempt failed, retrying",
				"retryDelay", cfg.Broker.RetryDelay,
				"error", err)
		},
		OnDisconnect: func(err error) {
			log.Warn("connection lost, retrying",
				"retryDelay", cfg.Broker.RetryDelay,
				"error", err)
		},
	})

	log.Info("portal-bus started",
		"protocol", cfg.Broker.Protocol,
		"urls", cfg.Broker.URLs,
		"sharePolicy", cfg.Registry.SharePolicy,
		"routesCount", len(handles),
		"metricsEnabled", cfg.Metrics.Enabled,
		"apiEnabled", cfg.API.Enabled)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			log.Info("received SIGHUP, flushing logs")
			log.Sync()
		case syscall.SIGINT, syscall.SIGTERM:
			log.Info("shutting down...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			if api != nil {
				if err := api.Shutdown(shutdownCtx); err != nil {
					log.Error("failed to shutdown admin api", "error", err)
				}
			}

			router.Remove(handles)
			session.Disconnect()
			return nil
		}
	}
}

// bindQueue attaches the configured durable queue after every connect; the
// adapter drops the binding whenever the connection goes away.
func bindQueue(cfg *config.Config, session *broker.Session, log *logger.Logger) {
	if cfg.Broker.Queue == nil {
		return
	}
	adapter, ok := session.Adapter().(*nats.Adapter)
	if !ok {
		return
	}

	binding := nats.QueueBinding{
		Name:    cfg.Broker.Queue.Name,
		Subject: topic.Translate(cfg.Broker.Queue.Subject, topic.NATS, topic.Generic),
	}
	err := adapter.BindQueue(binding, nats.QueueEvents{
		OnUp: func() {
			log.Info("queue up", "queue", binding.Name)
		},
		OnDown: func(err error) {
			log.Warn("queue down", "queue", binding.Name, "error", err)
		},
		OnError: func(err error) {
			log.Error("queue error", "queue", binding.Name, "error", err)
		},
	})
	if err != nil {
		log.Error("failed to bind queue", "queue", binding.Name, "error", err)
	}
}
