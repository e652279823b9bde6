package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rmacdonaldsmith/shellwatch/internal/broker"
	"github.com/rmacdonaldsmith/shellwatch/internal/ipc"
	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
)

// writeWait bounds a single WebSocket write
const writeWait = 10 * time.Second

// ServeIPC handles GET /api/v1/ipc. After the upgrade every text frame is a
// {"method", "data"} request answered through the method repository;
// responses and event records are written back as text frames.
func (h *Handlers) ServeIPC(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	if !h.track(conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	defer h.untrack(conn)

	h.serveSession(conn)
}

func (h *Handlers) serveSession(conn *websocket.Conn) {
	defer conn.Close()

	client := broker.NewConnection(h.config.ClientBuffer)
	logger := h.logger.With("client", client.ID(), "transport", "websocket")
	logger.Debug("client connected")

	var writeMu sync.Mutex
	write := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for rec := range client.Records() {
			if err := write(rec); err != nil {
				logger.Debug("failed to deliver record", "error", err)
			}
		}
	}()

	conn.SetReadLimit(h.config.MaxMessageSize)
	ctx := context.Background()
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				logger.Debug("read failed", "error", err)
			}
			break
		}
		if msgType != websocket.TextMessage {
			if err := write(brokerpkg.Error("Only text messages are supported")); err != nil {
				break
			}
			continue
		}

		var req ipc.Request
		var resp brokerpkg.Response
		if err := json.Unmarshal(payload, &req); err != nil {
			resp = brokerpkg.Error("Malformed request: " + err.Error())
		} else {
			resp = h.host.Repo.Call(ctx, client, req.Method, req.Data)
		}
		if err := write(resp); err != nil {
			logger.Debug("failed to write response", "error", err)
			break
		}
	}

	if err := h.host.Repo.Disconnect(ctx, client); err != nil {
		logger.Warn("failed to process disconnect", "error", err)
	}
	client.Close()
	<-writerDone
	logger.Debug("client disconnected")
}
