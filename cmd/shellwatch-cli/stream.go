package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/shellwatch/pkg/httpclient"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
)

// eventFlags selects the watched topics shared by stream and watch
type eventFlags struct {
	events   []string
	wildcard bool
	pretty   bool
	limit    int
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.events, "events", nil, "Topics to watch (default: every topic known when the stream opens)")
	cmd.Flags().BoolVar(&f.wildcard, "wildcard", false, "Receive every record, including topics registered later")
	cmd.Flags().BoolVar(&f.pretty, "pretty", false, "Pretty print records")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Stop after this many records (0 = unlimited)")
	cmd.MarkFlagsMutuallyExclusive("events", "wildcard")
}

// selection returns the topic list to request: nil for all known topics,
// empty for the wildcard
func (f *eventFlags) selection() []string {
	if f.wildcard {
		return []string{}
	}
	return f.events
}

func (f *eventFlags) describe() string {
	switch {
	case f.wildcard:
		return "wildcard"
	case f.events == nil:
		return "all known topics"
	default:
		return strings.Join(f.events, ", ")
	}
}

func newStreamCommand() *cobra.Command {
	var (
		flags      eventFlags
		bufferSize int
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream event records over Server-Sent Events",
		Long: `Stream event records in real-time using Server-Sent Events.
The stream reconnects automatically. Press Ctrl+C to stop streaming.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(cmd, flags, bufferSize)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&bufferSize, "buffer-size", 100, "Record buffer size")

	return cmd
}

func newWatchCommand() *cobra.Command {
	var flags eventFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch event records over the WebSocket method channel",
		Long: `Subscribe through the WebSocket method channel, the same request
protocol the Unix socket speaks. Press Ctrl+C to stop watching.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, flags)
		},
	}

	flags.register(cmd)

	return cmd
}

// signalContext ends on Ctrl+C
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runStream(cmd *cobra.Command, flags eventFlags, bufferSize int) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🌊 Starting event stream from %s (%s)...\n", serverURL, flags.describe())
	fmt.Fprintln(out, "Press Ctrl+C to stop streaming")

	streamClient, err := client.Stream(ctx, httpclient.StreamConfig{
		Events:     flags.selection(),
		BufferSize: bufferSize,
	})
	if err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}
	defer streamClient.Close()

	count := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "\n✅ Stream stopped. Received %d records.\n", count)
			return nil

		case rec, ok := <-streamClient.Records():
			if !ok {
				fmt.Fprintf(out, "\n🔌 Stream closed. Received %d records.\n", count)
				return nil
			}
			count++
			printRecord(out, rec, count, flags.pretty)
			if flags.limit > 0 && count >= flags.limit {
				return nil
			}

		case err, ok := <-streamClient.Errors():
			if ok {
				// Errors are non-fatal; the stream reconnects.
				fmt.Fprintf(out, "❌ Stream error: %v\n", err)
			}
		}
	}
}

func runWatch(cmd *cobra.Command, flags eventFlags) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "👀 Watching %s (%s)...\n", serverURL, flags.describe())

	watcher, err := client.Watch(ctx, flags.selection())
	if err != nil {
		return err
	}
	defer watcher.Close()

	count := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "\n✅ Watch stopped. Received %d records.\n", count)
			return nil

		case rec, ok := <-watcher.Records():
			if !ok {
				fmt.Fprintf(out, "\n🔌 Connection closed. Received %d records.\n", count)
				return watcher.Err()
			}
			count++
			printRecord(out, rec, count, flags.pretty)
			if flags.limit > 0 && count >= flags.limit {
				return nil
			}
		}
	}
}

func printRecord(out io.Writer, rec *record.Record, count int, pretty bool) {
	fmt.Fprintf(out, "📨 #%d %s\n", count, rec.Event())

	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(rec, "   ", "  ")
	} else {
		data, err = json.Marshal(rec)
	}
	if err != nil {
		fmt.Fprintf(out, "   %v\n", rec)
		return
	}
	fmt.Fprintf(out, "   %s\n", data)
}
