package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTopicsCommand() *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List the topics clients can watch",
		Long: `List every registered topic with its subscriber count.
A topic is active while at least one client watches it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTopics(cmd, activeOnly)
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only show topics with subscribers")

	return cmd
}

func runTopics(cmd *cobra.Command, activeOnly bool) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	resp, err := client.Topics(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📋 Topics:\n")
	shown := 0
	for _, topic := range resp.Topics {
		if activeOnly && !topic.Active {
			continue
		}
		shown++
		marker := "⚪"
		if topic.Active {
			marker = "🟢"
		}
		fmt.Fprintf(out, "   %s %s (%d subscriber(s))\n", marker, topic.Name, topic.Subscribers)
	}

	fmt.Fprintf(out, "\n📊 %d of %d topic(s)\n", shown, len(resp.Topics))
	return nil
}
