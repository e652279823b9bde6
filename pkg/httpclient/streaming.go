package httpclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
)

// StreamClient handles Server-Sent Events streaming
type StreamClient struct {
	client *Client
	events chan *record.Record
	errors chan error
	done   chan struct{}
	cancel context.CancelFunc
}

// StreamConfig configures the streaming client
type StreamConfig struct {
	// Events selects the topics to watch. Nil watches every topic known
	// when the stream opens; an empty, non-nil list watches everything.
	Events []string

	// BufferSize for the record channel
	BufferSize int

	// ReconnectDelay for automatic reconnection
	ReconnectDelay time.Duration

	// MaxReconnectAttempts (0 = infinite)
	MaxReconnectAttempts int
}

// SetDefaults sets reasonable default values for StreamConfig
func (sc *StreamConfig) SetDefaults() {
	if sc.BufferSize == 0 {
		sc.BufferSize = 100
	}
	if sc.ReconnectDelay == 0 {
		sc.ReconnectDelay = 2 * time.Second
	}
}

// Stream opens an SSE stream of records. The stream reconnects until ctx
// is cancelled, Close is called or MaxReconnectAttempts is exceeded.
func (c *Client) Stream(ctx context.Context, config StreamConfig) (*StreamClient, error) {
	config.SetDefaults()

	streamCtx, cancel := context.WithCancel(ctx)
	streamClient := &StreamClient{
		client: c,
		events: make(chan *record.Record, config.BufferSize),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go streamClient.startStreaming(streamCtx, config)

	return streamClient, nil
}

// Records returns the channel for receiving records
func (sc *StreamClient) Records() <-chan *record.Record {
	return sc.events
}

// Errors returns the channel for receiving errors
func (sc *StreamClient) Errors() <-chan error {
	return sc.errors
}

// Done returns a channel that's closed when streaming ends
func (sc *StreamClient) Done() <-chan struct{} {
	return sc.done
}

// Close stops the streaming client and waits for it to finish
func (sc *StreamClient) Close() error {
	sc.cancel()
	<-sc.done
	return nil
}

// startStreaming handles the SSE streaming loop with reconnection
func (sc *StreamClient) startStreaming(ctx context.Context, config StreamConfig) {
	defer close(sc.done)
	defer close(sc.events)
	defer close(sc.errors)

	attempts := 0
	for {
		err := sc.connectAndStream(ctx, config)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			sc.reportError(fmt.Errorf("streaming error: %w", err))
		}

		if config.MaxReconnectAttempts > 0 && attempts >= config.MaxReconnectAttempts {
			sc.reportError(fmt.Errorf("max reconnect attempts (%d) exceeded", config.MaxReconnectAttempts))
			return
		}
		attempts++

		select {
		case <-time.After(config.ReconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

// reportError never blocks the stream; errors are dropped when nobody reads them
func (sc *StreamClient) reportError(err error) {
	select {
	case sc.errors <- err:
	default:
	}
}

// streamURL builds the stream endpoint for the configured topic set
func (sc *StreamClient) streamURL(config StreamConfig) *url.URL {
	u := sc.client.baseURL.ResolveReference(&url.URL{Path: "/api/v1/events/stream"})
	if config.Events != nil {
		values := url.Values{}
		values.Set("events", strings.Join(config.Events, ","))
		u.RawQuery = values.Encode()
	}
	return u
}

// connectAndStream establishes SSE connection and processes records
func (sc *StreamClient) connectAndStream(ctx context.Context, config StreamConfig) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.streamURL(config).String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create streaming request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if sc.client.token != "" {
		req.Header.Set("Authorization", "Bearer "+sc.client.token)
	}

	// The shared client's timeout would cut the stream short.
	httpClient := *sc.client.httpClient
	httpClient.Timeout = 0
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("streaming failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return sc.processSSEStream(ctx, resp.Body)
}

// processSSEStream reads data lines and decodes each as a record.
// Comments (keepalives) and other SSE fields are skipped.
func (sc *StreamClient) processSSEStream(ctx context.Context, reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		rec, err := record.Parse([]byte(strings.TrimPrefix(line, "data: ")))
		if err != nil {
			sc.reportError(fmt.Errorf("failed to parse record: %w", err))
			continue
		}

		select {
		case sc.events <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}
