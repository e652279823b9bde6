package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rmacdonaldsmith/shellwatch/internal/shell"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
)

// maxBodySize bounds JSON request bodies of the REST endpoints
const maxBodySize = 1 << 20

// Handlers contains all HTTP request handlers
type Handlers struct {
	config  *Config
	host    Host
	jwtAuth *JWTAuth
	logger  *slog.Logger

	upgrader websocket.Upgrader

	// done is closed when the server shuts down, ending every stream
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	sessions map[*websocket.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewHandlers creates a new handlers instance
func NewHandlers(config *Config, host Host, jwtAuth *JWTAuth) *Handlers {
	return &Handlers{
		config:  config,
		host:    host,
		jwtAuth: jwtAuth,
		logger:  config.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		done:     make(chan struct{}),
		sessions: make(map[*websocket.Conn]struct{}),
	}
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" {
		writeError(w, "clientId is required", http.StatusBadRequest)
		return
	}
	if req.AdminKey != "" && !h.jwtAuth.CheckAdminKey(req.AdminKey) {
		writeError(w, "Invalid admin key", http.StatusUnauthorized)
		return
	}

	isAdmin := req.AdminKey != ""
	token, expiresAt, err := h.jwtAuth.GenerateToken(req.ClientID, isAdmin)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	h.logger.Info("client logged in", "client", req.ClientID, "admin", isAdmin)
	writeJSON(w, AuthResponse{
		Token:     token,
		ClientID:  req.ClientID,
		IsAdmin:   isAdmin,
		ExpiresAt: expiresAt,
	}, http.StatusOK)
}

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	var resp HealthResponse
	err := h.host.Loop.Call(r.Context(), func() {
		status := h.host.Broker.Health()
		resp = HealthResponse{
			Healthy:      status.Healthy,
			Clients:      status.Clients,
			ActiveTopics: status.ActiveTopics,
			Scopes:       status.Scopes,
			Message:      status.Message,
		}
	})
	if err != nil {
		writeJSON(w, HealthResponse{Message: "event loop unavailable: " + err.Error()}, http.StatusServiceUnavailable)
		return
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, resp, status)
}

// Topics handles GET /api/v1/topics
func (h *Handlers) Topics(w http.ResponseWriter, r *http.Request) {
	var resp TopicsResponse
	if err := h.host.Loop.Call(r.Context(), func() {
		resp.Topics = h.host.Broker.Topics()
	}); err != nil {
		writeError(w, "Event loop unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, resp, http.StatusOK)
}

// AdminListClients handles GET /api/v1/admin/clients
func (h *Handlers) AdminListClients(w http.ResponseWriter, r *http.Request) {
	var resp AdminClientsResponse
	if err := h.host.Loop.Call(r.Context(), func() {
		resp.Clients = h.host.Broker.Clients()
	}); err != nil {
		writeError(w, "Event loop unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, resp, http.StatusOK)
}

// AdminGetStats handles GET /api/v1/admin/stats
func (h *Handlers) AdminGetStats(w http.ResponseWriter, r *http.Request) {
	var resp AdminStatsResponse
	if err := h.host.Loop.Call(r.Context(), func() {
		resp.Stats = h.host.Broker.Stats()
		resp.Scopes = h.host.Broker.Health().Scopes
	}); err != nil {
		writeError(w, "Event loop unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, resp, http.StatusOK)
}

// AdminEmit handles POST /api/v1/admin/emit. The body is a raw record
// object and must carry a string "event" field.
func (h *Handlers) AdminEmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	rec, err := record.Parse(body)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var delivered int
	if err := h.host.Loop.Call(r.Context(), func() {
		delivered = h.host.Broker.Publish(rec)
	}); err != nil {
		writeError(w, "Event loop unavailable", http.StatusServiceUnavailable)
		return
	}

	h.logger.Debug("record emitted", "event", rec.Event(), "delivered", delivered, "by", GetClientID(r))
	writeJSON(w, EmitResponse{Event: rec.Event(), Delivered: delivered}, http.StatusOK)
}

// AdminShell handles POST /api/v1/admin/shell
func (h *Handlers) AdminShell(w http.ResponseWriter, r *http.Request) {
	if h.host.Core == nil {
		writeError(w, "No shell attached", http.StatusServiceUnavailable)
		return
	}

	var cmd shell.Command
	if err := decodeJSON(r, &cmd); err != nil {
		writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	var (
		result   map[string]any
		applyErr error
	)
	if err := h.host.Loop.Call(r.Context(), func() {
		result, applyErr = h.host.Core.Apply(cmd)
	}); err != nil {
		writeError(w, "Event loop unavailable", http.StatusServiceUnavailable)
		return
	}
	if applyErr != nil {
		writeError(w, applyErr.Error(), shellErrorStatus(applyErr))
		return
	}

	writeJSON(w, ShellResponse{Action: cmd.Action, Result: result}, http.StatusOK)
}

// shellErrorStatus maps shell errors to HTTP status codes
func shellErrorStatus(err error) int {
	switch {
	case errors.Is(err, shell.ErrNoSuchView),
		errors.Is(err, shell.ErrNoSuchOutput),
		errors.Is(err, shell.ErrNoSuchWorkspaceSet):
		return http.StatusNotFound
	case errors.Is(err, shell.ErrWorkspaceSetInUse):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// track registers a WebSocket session; it returns false after shutdown
func (h *Handlers) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[conn] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Handlers) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.sessions, conn)
	h.mu.Unlock()
	h.wg.Done()
}

// shutdown ends SSE streams and hangs up WebSocket sessions
func (h *Handlers) shutdown() {
	h.stopOnce.Do(func() {
		close(h.done)
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.sessions {
		conn.Close()
	}
}

// wait blocks until every WebSocket session has been cleaned up
func (h *Handlers) wait() {
	h.wg.Wait()
}

// decodeJSON decodes a bounded request body into v
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	return dec.Decode(v)
}

// writeError writes an error response as JSON
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// writeJSON writes data as a JSON response
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
