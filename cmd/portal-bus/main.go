package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	brokerURL  string
	clientID   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portal-bus",
		Short: "Topic-filter message bus over MQTT and NATS",
		Long: `portal-bus connects to an MQTT or NATS broker, keeps a registry of
topic-filter subscriptions across reconnects and dispatches every inbound
message to the routes whose filters match it.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&brokerURL, "url", "", "override broker url (empty = use config)")
	rootCmd.PersistentFlags().StringVar(&clientID, "client-id", "", "override client id (empty = use config)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newPublishCommand())
	rootCmd.AddCommand(newClassifyCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
