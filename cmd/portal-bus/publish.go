package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"portal-bus/internal/broker"
	"portal-bus/internal/logger"
	"portal-bus/internal/stats"
)

func newPublishCommand() *cobra.Command {
	var (
		qos          uint8
		retain       bool
		traceID      string
		parentID     string
		color        string
		partitionKey string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "publish <topic> <json-payload>",
		Short: "Publish a single message and exit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := json.RawMessage(args[1])
			if !json.Valid(payload) {
				return fmt.Errorf("payload is not valid json")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			log, err := logger.NewLogger(&cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer log.Sync()

			session, err := newSession(cfg, log, nil, stats.NewStatsCollector())
			if err != nil {
				return err
			}
			defer session.Disconnect()

			connected := make(chan struct{}, 1)
			session.Connect(credentials(&cfg.Broker), broker.ConnectionEvents{
				OnConnect: func() {
					select {
					case connected <- struct{}{}:
					default:
					}
				},
			})

			select {
			case <-connected:
			case <-time.After(timeout):
				return fmt.Errorf("not connected after %s: %v", timeout, session.Err())
			}

			err = session.Publish(args[0], payload, broker.PublishOptions{
				QoS:          qos,
				Retain:       retain,
				TraceID:      traceID,
				ParentID:     parentID,
				Color:        color,
				PartitionKey: partitionKey,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published to %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().Uint8Var(&qos, "qos", 0, "quality of service (0, 1 or 2)")
	cmd.Flags().BoolVar(&retain, "retain", false, "retain the message (mqtt only)")
	cmd.Flags().StringVar(&traceID, "trace-id", "", "32 hex digit trace id (random when empty)")
	cmd.Flags().StringVar(&parentID, "parent-id", "", "16 hex digit parent span id (random when empty)")
	cmd.Flags().StringVar(&color, "color", "", "message color header (nats only)")
	cmd.Flags().StringVar(&partitionKey, "partition-key", "", "partition key header (nats only)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the connection")

	return cmd
}
