package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/shellwatch/pkg/httpclient"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
)

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin commands (requires admin privileges)",
		Long:  "Administrative commands for inspecting the broker and driving the shell",
	}

	cmd.AddCommand(newAdminClientsCommand())
	cmd.AddCommand(newAdminStatsCommand())
	cmd.AddCommand(newAdminEmitCommand())
	cmd.AddCommand(newAdminShellCommand())

	return cmd
}

func newAdminClientsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List subscribed clients",
		Long:  "List every client holding a subscription, with its topic set",
		RunE:  runAdminClients,
	}
}

func newAdminStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dispatch statistics",
		Long:  "Display published, delivered and dropped record counts",
		RunE:  runAdminStats,
	}
}

func newAdminEmitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "emit EVENT [key=value ...]",
		Short: "Publish a record to the subscribers of a topic",
		Long: `Publish a record built from key=value pairs. Values are decoded as
JSON when possible and kept as strings otherwise.`,
		Example: `  shellwatch-cli admin emit custom-event message=hello count=3`,
		Args:    cobra.MinimumNArgs(1),
		RunE:    runAdminEmit,
	}
}

func newAdminShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell ACTION [key=value ...]",
		Short: "Apply a shell command",
		Long: `Apply a command to the shell model, e.g. map a view or add an output.
Values are decoded as JSON when possible and kept as strings otherwise.`,
		Example: `  shellwatch-cli admin shell add-output name=DP-2
  shellwatch-cli admin shell map-view output=1 appId=foot title=Terminal
  shellwatch-cli admin shell set-geometry view=1 'geometry={"x":0,"y":0,"width":800,"height":600}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAdminShell,
	}
}

// parseFields turns key=value arguments into a field map
func parseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", arg)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			decoded = value
		}
		fields[key] = decoded
	}
	return fields, nil
}

func runAdminClients(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	if err := requireAuthentication(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Fetching subscribed clients...")

	response, err := client.AdminListClients(ctx)
	if err != nil {
		return err
	}

	if len(response.Clients) == 0 {
		fmt.Fprintln(out, "No clients currently subscribed")
		return nil
	}

	fmt.Fprintf(out, "\nFound %d subscribed client(s):\n\n", len(response.Clients))
	for i, info := range response.Clients {
		fmt.Fprintf(out, "%d. Client ID: %s\n", i+1, info.ID)
		fmt.Fprintf(out, "   Since: %s\n", info.Since.Format("2006-01-02 15:04:05"))
		if info.Wildcard {
			fmt.Fprintf(out, "   Topics: * (wildcard)\n")
		} else {
			fmt.Fprintf(out, "   Topics: %s\n", strings.Join(info.Topics, ", "))
		}
		if i < len(response.Clients)-1 {
			fmt.Fprintln(out)
		}
	}

	return nil
}

func runAdminStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	if err := requireAuthentication(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Fetching dispatch statistics...")

	stats, err := client.AdminGetStats(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n📊 shellwatch Statistics:\n\n")
	fmt.Fprintf(out, "Subscribed Clients: %d\n", stats.Clients)
	fmt.Fprintf(out, "Topics: %d (%d active)\n", stats.TotalTopics, stats.ActiveTopics)
	fmt.Fprintf(out, "Outputs: %d\n", stats.Scopes)
	fmt.Fprintf(out, "Records Published: %d\n", stats.Published)
	fmt.Fprintf(out, "Records Delivered: %d\n", stats.Delivered)
	fmt.Fprintf(out, "Records Dropped: %d\n", stats.Dropped)

	if len(stats.PerTopic) > 0 {
		names := make([]string, 0, len(stats.PerTopic))
		for name := range stats.PerTopic {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(out, "\nPer topic:\n")
		for _, name := range names {
			t := stats.PerTopic[name]
			fmt.Fprintf(out, "   %s: published=%d delivered=%d dropped=%d\n", name, t.Published, t.Delivered, t.Dropped)
		}
	}

	return nil
}

func runAdminEmit(cmd *cobra.Command, args []string) error {
	fields, err := parseFields(args[1:])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	if err := requireAuthentication(ctx); err != nil {
		return err
	}

	resp, err := client.AdminEmit(ctx, record.NewWithFields(args[0], fields))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Emitted %s to %d subscriber(s)\n", resp.Event, resp.Delivered)
	return nil
}

func runAdminShell(cmd *cobra.Command, args []string) error {
	fields, err := parseFields(args[1:])
	if err != nil {
		return err
	}
	command := httpclient.ShellCommand(fields)
	command["action"] = args[0]

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	if err := requireAuthentication(ctx); err != nil {
		return err
	}

	resp, err := client.AdminShell(ctx, command)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ %s applied\n", resp.Action)
	if resp.Result != nil {
		data, err := json.MarshalIndent(resp.Result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", data)
	}
	return nil
}
