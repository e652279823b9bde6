package httpclient

import (
	"fmt"
	"time"

	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
)

// Config holds client configuration
type Config struct {
	// ServerURL is the base URL of the shellwatch HTTP API (e.g., "http://127.0.0.1:8080")
	ServerURL string

	// ClientID is the identifier presented at login
	ClientID string

	// AdminKey is exchanged for an admin token at login (optional)
	AdminKey string

	// Timeout for non-streaming HTTP requests
	Timeout time.Duration
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// AuthRequest represents a login request
type AuthRequest struct {
	ClientID string `json:"clientId"`
	AdminKey string `json:"adminKey,omitempty"`
}

// AuthResponse represents the response from authentication
type AuthResponse struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"clientId"`
	IsAdmin   bool      `json:"isAdmin"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TopicsResponse lists the registered topics
type TopicsResponse struct {
	Topics []brokerpkg.TopicState `json:"topics"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Healthy      bool   `json:"healthy"`
	Clients      int    `json:"clients"`
	ActiveTopics int    `json:"activeTopics"`
	Scopes       int    `json:"scopes"`
	Message      string `json:"message,omitempty"`
}

// AdminClientsResponse represents admin view of subscribed connections
type AdminClientsResponse struct {
	Clients []brokerpkg.ClientInfo `json:"clients"`
}

// AdminStatsResponse represents dispatch statistics
type AdminStatsResponse struct {
	brokerpkg.Stats
	Scopes int `json:"scopes"`
}

// EmitResponse reports how many subscribers accepted an emitted record
type EmitResponse struct {
	Event     string `json:"event"`
	Delivered int    `json:"delivered"`
}

// ShellCommand is a shell control command, e.g.
// {"action": "map-view", "view": 3}
type ShellCommand map[string]any

// ShellResponse carries the description returned by a shell command
type ShellResponse struct {
	Action string         `json:"action"`
	Result map[string]any `json:"result,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// APIError is returned for responses with a 4xx or 5xx status
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}
