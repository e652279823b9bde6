package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
)

// ErrClientClosed is returned by calls on a closed or broken client
var ErrClientClosed = errors.New("ipc client is closed")

// Client talks to a Server. Messages carrying an "event" field are event
// records and go to Events; everything else answers the pending Call.
// Events must be drained, or reading stalls.
type Client struct {
	conn net.Conn

	callMu    sync.Mutex
	responses chan brokerpkg.Response
	events    chan *record.Record

	closing chan struct{}
	done    chan struct{}
	errMu   sync.Mutex
	readErr error
	close   sync.Once
}

// Dial connects to the server socket at path
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	c := &Client{
		conn:      conn,
		responses: make(chan brokerpkg.Response, 1),
		events:    make(chan *record.Record, 256),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer close(c.done)

	for {
		payload, err := ReadFrame(c.conn, 0)
		if err != nil {
			c.setErr(err)
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.setErr(fmt.Errorf("failed to decode message: %w", err))
			return
		}

		if _, isEvent := msg[record.EventField]; isEvent {
			rec, err := record.FromMap(msg)
			if err != nil {
				continue
			}
			select {
			case c.events <- rec:
			case <-c.closing:
				return
			}
			continue
		}
		select {
		case c.responses <- brokerpkg.Response(msg):
		case <-c.closing:
			return
		}
	}
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr == nil {
		c.readErr = err
	}
}

// Err returns the error that ended the read loop, if any
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

// Call sends a request and waits for its response. Calls are serialized.
func (c *Client) Call(ctx context.Context, method string, data any) (brokerpkg.Response, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	req := map[string]any{"method": method}
	if data != nil {
		req["data"] = data
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if err := WriteFrame(c.conn, payload); err != nil {
		return nil, err
	}

	select {
	case resp := <-c.responses:
		return resp, nil
	case <-c.done:
		return nil, ErrClientClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Watch subscribes to events; nil events means every topic
func (c *Client) Watch(ctx context.Context, events []string) error {
	var data any
	if events != nil {
		data = map[string]any{brokerpkg.EventsField: events}
	}
	resp, err := c.Call(ctx, MethodWatch, data)
	if err != nil {
		return err
	}
	if !resp.IsOK() {
		return fmt.Errorf("watch failed: %s", resp.Message())
	}
	return nil
}

// Events returns received event records; it is closed when the connection ends
func (c *Client) Events() <-chan *record.Record {
	return c.events
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close hangs up
func (c *Client) Close() error {
	var err error
	c.close.Do(func() {
		close(c.closing)
		err = c.conn.Close()
	})
	return err
}
