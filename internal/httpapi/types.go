package httpapi

import (
	"time"

	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
)

// Request/Response types for the HTTP API

// AuthRequest represents a login request
type AuthRequest struct {
	ClientID string `json:"clientId"`
	AdminKey string `json:"adminKey,omitempty"`
}

// AuthResponse represents a login response
type AuthResponse struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"clientId"`
	IsAdmin   bool      `json:"isAdmin"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TopicsResponse lists every registered topic with its subscriber count
type TopicsResponse struct {
	Topics []brokerpkg.TopicState `json:"topics"`
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

// ShellResponse carries the description returned by a shell command
type ShellResponse struct {
	Action string         `json:"action"`
	Result map[string]any `json:"result,omitempty"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Healthy      bool   `json:"healthy"`
	Clients      int    `json:"clients"`
	ActiveTopics int    `json:"activeTopics"`
	Scopes       int    `json:"scopes"`
	Message      string `json:"message,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
