package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rmacdonaldsmith/shellwatch/internal/broker"
	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
)

// StreamEvents handles GET /api/v1/events/stream.
//
// Without an "events" query parameter the stream subscribes to every topic
// known at subscribe time. "events=a,b" subscribes to the listed topics; an
// empty value is an empty explicit list.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	req := parseEventsQuery(r)
	client := broker.NewConnection(h.config.ClientBuffer)
	logger := h.logger.With("client", client.ID(), "transport", "sse")

	var (
		subscribed []string
		watchErr   error
	)
	if err := h.host.Loop.Call(r.Context(), func() {
		subscribed, watchErr = h.host.Broker.Watch(client, req)
	}); err != nil {
		// Watch did not run, so there is nothing to release
		client.Close()
		writeError(w, "Event loop unavailable", http.StatusServiceUnavailable)
		return
	}
	if watchErr != nil {
		client.Close()
		writeError(w, brokerpkg.ErrorMessage(watchErr), http.StatusServiceUnavailable)
		return
	}

	defer func() {
		// The request context is already done here.
		if err := h.host.Repo.Disconnect(context.Background(), client); err != nil {
			logger.Warn("failed to process disconnect", "error", err)
		}
		client.Close()
		logger.Debug("stream closed")
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Client-ID", client.ID())
	w.WriteHeader(http.StatusOK)

	if len(subscribed) == 0 {
		fmt.Fprint(w, ": watching all topics\n\n")
	} else {
		fmt.Fprintf(w, ": watching %s\n\n", strings.Join(subscribed, ","))
	}
	flusher.Flush()
	logger.Debug("stream opened", "topics", subscribed)

	h.streamWithKeepalive(r.Context(), w, flusher, client.Records())
}

// streamWithKeepalive copies records to w until the request ends or the
// server shuts down
func (h *Handlers) streamWithKeepalive(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, records <-chan *record.Record) {
	var tick <-chan time.Time
	if h.config.Keepalive > 0 {
		ticker := time.NewTicker(h.config.Keepalive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-tick:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case rec, ok := <-records:
			if !ok {
				return
			}
			if err := writeSSEMessage(w, rec); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEMessage writes one record as an SSE data message
func writeSSEMessage(w http.ResponseWriter, rec *record.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// parseEventsQuery builds a watch request from the "events" query parameter
func parseEventsQuery(r *http.Request) brokerpkg.WatchRequest {
	query := r.URL.Query()
	if !query.Has(brokerpkg.EventsField) {
		return brokerpkg.WatchAll()
	}

	var names []string
	for _, value := range query[brokerpkg.EventsField] {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}
	return brokerpkg.WatchTopics(names...)
}
