package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
)

// ErrNotAuthenticated is returned by calls that need a token before
// Authenticate has succeeded
var ErrNotAuthenticated = errors.New("client not authenticated - call Authenticate() first")

// Client provides HTTP client for the shellwatch API
type Client struct {
	config     Config
	httpClient *http.Client
	token      string
	baseURL    *url.URL
}

// NewClient creates a new shellwatch HTTP client
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("ClientID is required")
	}

	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    baseURL,
	}, nil
}

// Authenticate logs in and stores the returned token
func (c *Client) Authenticate(ctx context.Context) (*AuthResponse, error) {
	req := AuthRequest{
		ClientID: c.config.ClientID,
		AdminKey: c.config.AdminKey,
	}

	var resp AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", req, &resp, false); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	c.token = resp.Token
	return &resp, nil
}

// GetHealth returns the health status of the server. An unhealthy server
// answers 503 with a body; that is reported as a response, not an error.
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp, false)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		if json.Unmarshal(apiErr.Body, &resp) == nil {
			return &resp, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get health status: %w", err)
	}
	return &resp, nil
}

// Topics lists the registered topics with their subscriber counts
func (c *Client) Topics(ctx context.Context) (*TopicsResponse, error) {
	var resp TopicsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/topics", nil, &resp, false); err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return &resp, nil
}

// Admin Methods (require admin token)

// AdminListClients returns all subscribed connections (admin only)
func (c *Client) AdminListClients(ctx context.Context) (*AdminClientsResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp AdminClientsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/admin/clients", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return &resp, nil
}

// AdminGetStats returns dispatch statistics (admin only)
func (c *Client) AdminGetStats(ctx context.Context) (*AdminStatsResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp AdminStatsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/admin/stats", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &resp, nil
}

// AdminEmit publishes a record to the subscribers of its topic (admin only)
func (c *Client) AdminEmit(ctx context.Context, rec *record.Record) (*EmitResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}
	if rec == nil {
		return nil, fmt.Errorf("record cannot be nil")
	}

	var resp EmitResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/admin/emit", rec, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to emit record: %w", err)
	}
	return &resp, nil
}

// AdminShell applies a shell command (admin only)
func (c *Client) AdminShell(ctx context.Context, cmd ShellCommand) (*ShellResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp ShellResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/admin/shell", cmd, &resp, true); err != nil {
		return nil, fmt.Errorf("shell command failed: %w", err)
	}
	return &resp, nil
}

// doRequest performs an HTTP request with optional authentication
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any, respBody any, requireAuth bool) error {
	fullURL := c.baseURL.ResolveReference(&url.URL{Path: path})

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requireAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(bodyBytes), Body: bodyBytes}
		var errResp ErrorResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Message != "" {
			apiErr.Message = errResp.Error + " - " + errResp.Message
		}
		return apiErr
	}

	if respBody != nil {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// IsAuthenticated returns whether the client has a token
func (c *Client) IsAuthenticated() bool {
	return c.token != ""
}

// GetToken returns the current authentication token
func (c *Client) GetToken() string {
	return c.token
}

// SetToken sets the authentication token (useful for testing or token reuse)
func (c *Client) SetToken(token string) {
	c.token = token
}
