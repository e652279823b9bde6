package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/shellwatch/internal/config"
	"github.com/rmacdonaldsmith/shellwatch/internal/daemon"
	"github.com/rmacdonaldsmith/shellwatch/pkg/httpclient"
)

const testAdminKey = "cli-admin-key"

// startNode runs a daemon serving only HTTP and returns its base URL
func startNode(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.IPC.Enabled = false
	cfg.HTTP.Enabled = true
	cfg.HTTP.Address = "127.0.0.1:0"
	cfg.HTTP.AdminKey = testAdminKey
	cfg.Shell.Outputs = []config.OutputConfig{{Name: "DP-1", Width: 1920, Height: 1080}}

	node, err := daemon.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, node.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = node.Stop(ctx)
	})
	return "http://" + node.Transports()["http"]
}

// execute runs the CLI with args and returns its output
func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SHELLWATCH_TOKEN", "")
	t.Setenv("SHELLWATCH_ADMIN_KEY", "")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestParseFields(t *testing.T) {
	fields, err := parseFields([]string{"view=3", "title=Terminal", `geometry={"x":1}`, "flag=true", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"view":     float64(3),
		"title":    "Terminal",
		"geometry": map[string]any{"x": float64(1)},
		"flag":     true,
		"empty":    "",
	}, fields)

	_, err = parseFields([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseFields([]string{"=value"})
	assert.Error(t, err)
}

func TestEventFlags_Selection(t *testing.T) {
	assert.Nil(t, (&eventFlags{}).selection())
	assert.Equal(t, []string{}, (&eventFlags{wildcard: true}).selection())
	assert.Equal(t, []string{"a"}, (&eventFlags{events: []string{"a"}}).selection())
}

func TestCLI_HealthAndTopics(t *testing.T) {
	server := startNode(t)
	ctx := context.Background()

	out, err := execute(t, ctx, "--server", server, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server is healthy")
	assert.Contains(t, out, "Outputs: 1")

	out, err = execute(t, ctx, "--server", server, "topics")
	require.NoError(t, err)
	assert.Contains(t, out, "view-mapped")
	assert.Contains(t, out, "output-added")

	out, err = execute(t, ctx, "--server", server, "topics", "--active")
	require.NoError(t, err)
	assert.NotContains(t, out, "view-mapped")
}

func TestCLI_Auth(t *testing.T) {
	server := startNode(t)
	ctx := context.Background()

	out, err := execute(t, ctx, "--server", server, "--admin-key", testAdminKey, "auth")
	require.NoError(t, err)
	assert.Contains(t, out, "Authentication successful")
	assert.Contains(t, out, "Admin access granted")

	_, err = execute(t, ctx, "--server", server, "--admin-key", "wrong", "auth")
	assert.Error(t, err)
}

func TestCLI_AdminRequiresCredentials(t *testing.T) {
	server := startNode(t)

	_, err := execute(t, context.Background(), "--server", server, "admin", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authenticated")
}

func TestCLI_AdminCommands(t *testing.T) {
	server := startNode(t)
	ctx := context.Background()
	admin := []string{"--server", server, "--admin-key", testAdminKey, "admin"}

	out, err := execute(t, ctx, append(admin, "shell", "map-view", "output=1", "appId=foot", "title=Terminal")...)
	require.NoError(t, err)
	assert.Contains(t, out, "map-view applied")
	assert.Contains(t, out, `"app-id": "foot"`)

	_, err = execute(t, ctx, append(admin, "shell", "unmap-view", "view=999")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	out, err = execute(t, ctx, append(admin, "emit", "custom-event", "message=hello")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Emitted custom-event to 0 subscriber(s)")

	out, err = execute(t, ctx, append(admin, "stats")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Records Published:")

	out, err = execute(t, ctx, append(admin, "clients")...)
	require.NoError(t, err)
	assert.Contains(t, out, "No clients currently subscribed")
}

func TestCLI_WatchReceivesRecords(t *testing.T) {
	server := startNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		root := newRootCommand()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"--server", server, "watch", "--events", "output-added", "--limit", "1"})
		err := root.ExecuteContext(ctx)
		done <- result{out.String(), err}
	}()

	// The CLI globals belong to the watch command now, so drive the
	// server with a separate client.
	admin, err := httpclient.NewClient(httpclient.Config{ServerURL: server, ClientID: "test", AdminKey: testAdminKey})
	require.NoError(t, err)
	_, err = admin.Authenticate(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		clients, err := admin.AdminListClients(ctx)
		return err == nil && len(clients.Clients) == 1
	}, 5*time.Second, 20*time.Millisecond)

	_, err = admin.AdminShell(ctx, httpclient.ShellCommand{"action": "add-output", "name": "HDMI-A-1"})
	require.NoError(t, err)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Contains(t, r.out, "📨 #1 output-added")
		assert.Contains(t, r.out, "HDMI-A-1")
	case <-ctx.Done():
		t.Fatal("watch did not receive the record")
	}
}
