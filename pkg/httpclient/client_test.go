package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{ServerURL: server.URL, ClientID: "test-client"})
	require.NoError(t, err)
	return client
}

func TestNewClient(t *testing.T) {
	t.Run("valid_config", func(t *testing.T) {
		client, err := NewClient(Config{ServerURL: "http://127.0.0.1:8080", ClientID: "test-client"})
		require.NoError(t, err)
		assert.Equal(t, "test-client", client.config.ClientID)
		assert.Equal(t, 30*time.Second, client.config.Timeout)
		assert.False(t, client.IsAuthenticated())
	})

	t.Run("missing_server_url", func(t *testing.T) {
		_, err := NewClient(Config{ClientID: "test-client"})
		assert.ErrorContains(t, err, "ServerURL is required")
	})

	t.Run("missing_client_id", func(t *testing.T) {
		_, err := NewClient(Config{ServerURL: "http://127.0.0.1:8080"})
		assert.ErrorContains(t, err, "ClientID is required")
	})

	t.Run("invalid_server_url", func(t *testing.T) {
		_, err := NewClient(Config{ServerURL: "://invalid-url", ClientID: "test-client"})
		assert.ErrorContains(t, err, "invalid ServerURL")
	})
}

func TestClient_Authenticate(t *testing.T) {
	t.Run("sends_admin_key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req AuthRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-client", req.ClientID)
			assert.Equal(t, "admin-key", req.AdminKey)

			json.NewEncoder(w).Encode(AuthResponse{Token: "mock-token", ClientID: req.ClientID, IsAdmin: true})
		}))
		defer server.Close()

		client, err := NewClient(Config{ServerURL: server.URL, ClientID: "test-client", AdminKey: "admin-key"})
		require.NoError(t, err)

		resp, err := client.Authenticate(context.Background())
		require.NoError(t, err)
		assert.True(t, resp.IsAdmin)
		assert.True(t, client.IsAuthenticated())
		assert.Equal(t, "mock-token", client.GetToken())
	})

	t.Run("authentication_failure", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(ErrorResponse{Error: "Unauthorized", Message: "Invalid admin key", Code: 401})
		})

		_, err := client.Authenticate(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "authentication failed")
		assert.Contains(t, err.Error(), "Invalid admin key")

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.False(t, client.IsAuthenticated())
	})
}

func TestClient_GetHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/health", r.URL.Path)
			json.NewEncoder(w).Encode(HealthResponse{Healthy: true, Clients: 2, ActiveTopics: 3})
		})

		health, err := client.GetHealth(context.Background())
		require.NoError(t, err)
		assert.True(t, health.Healthy)
		assert.Equal(t, 2, health.Clients)
	})

	t.Run("unhealthy_is_not_an_error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(HealthResponse{Healthy: false, Message: "event loop stopped"})
		})

		health, err := client.GetHealth(context.Background())
		require.NoError(t, err)
		assert.False(t, health.Healthy)
		assert.Equal(t, "event loop stopped", health.Message)
	})
}

func TestClient_Topics(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/topics", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(TopicsResponse{Topics: []brokerpkg.TopicState{
			{Name: "view-mapped", Subscribers: 1, Active: true},
			{Name: "view-unmapped"},
		}})
	})

	resp, err := client.Topics(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Topics, 2)
	assert.Equal(t, "view-mapped", resp.Topics[0].Name)
	assert.True(t, resp.Topics[0].Active)
}

func TestClient_AdminMethods(t *testing.T) {
	t.Run("require_authentication", func(t *testing.T) {
		client, err := NewClient(Config{ServerURL: "http://127.0.0.1:8080", ClientID: "test-client"})
		require.NoError(t, err)

		ctx := context.Background()
		_, err = client.AdminListClients(ctx)
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		_, err = client.AdminGetStats(ctx)
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		_, err = client.AdminEmit(ctx, record.New("custom"))
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		_, err = client.AdminShell(ctx, ShellCommand{"action": "list-views"})
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("clients_and_stats", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
			switch r.URL.Path {
			case "/api/v1/admin/clients":
				json.NewEncoder(w).Encode(AdminClientsResponse{Clients: []brokerpkg.ClientInfo{
					{ID: "conn-1", Topics: []string{"view-mapped"}},
				}})
			case "/api/v1/admin/stats":
				json.NewEncoder(w).Encode(AdminStatsResponse{
					Stats:  brokerpkg.Stats{Clients: 1, Published: 5, Delivered: 4, Dropped: 1},
					Scopes: 2,
				})
			default:
				http.NotFound(w, r)
			}
		})
		client.SetToken("admin-token")

		clients, err := client.AdminListClients(context.Background())
		require.NoError(t, err)
		require.Len(t, clients.Clients, 1)
		assert.Equal(t, "conn-1", clients.Clients[0].ID)

		stats, err := client.AdminGetStats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(5), stats.Published)
		assert.Equal(t, int64(1), stats.Dropped)
		assert.Equal(t, 2, stats.Scopes)
	})

	t.Run("emit_sends_flat_record", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/admin/emit", r.URL.Path)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "custom", body["event"])
			assert.Equal(t, "hello", body["message"])
			json.NewEncoder(w).Encode(EmitResponse{Event: "custom", Delivered: 3})
		})
		client.SetToken("admin-token")

		resp, err := client.AdminEmit(context.Background(), record.New("custom").With("message", "hello"))
		require.NoError(t, err)
		assert.Equal(t, 3, resp.Delivered)
	})

	t.Run("shell_error_status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/admin/shell", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(ErrorResponse{Error: "Not Found", Message: "no such view", Code: 404})
		})
		client.SetToken("admin-token")

		_, err := client.AdminShell(context.Background(), ShellCommand{"action": "map-view", "view": 42})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Contains(t, apiErr.Message, "no such view")
	})
}
