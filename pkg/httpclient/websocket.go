package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
)

// watchMethod is the method name of the subscribe call
const watchMethod = "events/watch"

// ErrWatchRejected wraps the message of a refused watch call
var ErrWatchRejected = errors.New("watch rejected")

type wsRequest struct {
	Method string `json:"method"`
	Data   any    `json:"data,omitempty"`
}

// Watcher is a WebSocket subscription opened with Watch
type Watcher struct {
	conn      *websocket.Conn
	records   chan *record.Record
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Watch opens the WebSocket method channel and subscribes to events.
// Nil events watches every topic known at subscribe time; an empty list
// watches everything.
func (c *Client) Watch(ctx context.Context, events []string) (*Watcher, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: "/api/v1/ipc"})
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	req := wsRequest{Method: watchMethod}
	if events != nil {
		req.Data = map[string]any{brokerpkg.EventsField: events}
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send watch request: %w", err)
	}

	var resp brokerpkg.Response
	if err := conn.ReadJSON(&resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read watch response: %w", err)
	}
	if !resp.IsOK() {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrWatchRejected, resp.Message())
	}

	w := &Watcher{
		conn:    conn,
		records: make(chan *record.Record, 64),
		done:    make(chan struct{}),
	}
	go w.readLoop()
	return w, nil
}

func (w *Watcher) readLoop() {
	defer close(w.done)
	defer close(w.records)

	for {
		_, payload, err := w.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				w.err = err
			}
			return
		}

		// Only records follow the watch response; anything without an
		// event field is skipped.
		var frame map[string]any
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		rec, err := record.FromMap(frame)
		if err != nil {
			continue
		}
		w.records <- rec
	}
}

// Records returns the channel of received records. It is closed when the
// connection ends.
func (w *Watcher) Records() <-chan *record.Record {
	return w.records
}

// Err returns the error that ended the connection, if any. It is valid
// once Records is closed.
func (w *Watcher) Err() error {
	<-w.done
	return w.err
}

// Close sends a close frame and waits for the reader to finish
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		_ = w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = w.conn.Close()
		for range w.records {
		}
		<-w.done
	})
	return err
}
