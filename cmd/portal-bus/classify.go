package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"portal-bus/internal/topic"
)

func newClassifyCommand() *cobra.Command {
	var dialect string

	cmd := &cobra.Command{
		Use:   "classify <filter> [topic...]",
		Short: "Show how a filter is classified and which topics it matches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var b topic.Binding
			switch strings.ToLower(dialect) {
			case "mqtt":
				b = topic.MQTT
			case "nats":
				b = topic.NATS
			default:
				return fmt.Errorf("unknown dialect: %s", dialect)
			}

			f, err := topic.Classify(args[0], b)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "filter:  %s\n", f.Raw)
			fmt.Fprintf(out, "kind:    %s\n", f.Kind)
			switch f.Kind {
			case topic.KindExact:
				fmt.Fprintf(out, "topic:   %s\n", f.Pattern)
			case topic.KindPrefix:
				fmt.Fprintf(out, "prefix:  %s\n", f.Prefix)
			case topic.KindSegment:
				tokens := make([]string, len(f.Tokens))
				for i, tok := range f.Tokens {
					tokens[i] = tok.String()
				}
				fmt.Fprintf(out, "tokens:  %s\n", strings.Join(tokens, " "))
			}

			for _, name := range args[1:] {
				t, err := topic.ParseTopic(name, b)
				if err != nil {
					fmt.Fprintf(out, "%s: %v\n", name, err)
					continue
				}
				fmt.Fprintf(out, "%s: %t\n", name, topic.Match(t, f))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", "mqtt", "wildcard dialect of the filter (mqtt or nats)")
	return cmd
}
