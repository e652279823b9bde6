package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/shellwatch/internal/config"
	"github.com/rmacdonaldsmith/shellwatch/internal/logging"
)

// syncBuffer is a bytes.Buffer safe for the logger and the test to share
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve a port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"-version"}, &stdout, &stdout); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := stdout.String(); got != "shellwatch v0.1.0\n" {
		t.Errorf("Expected version line, got %q", got)
	}
}

func TestRun_InvalidFlags(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-no-ipc"}, &out, &out); err == nil {
		t.Error("Expected error when every transport is disabled")
	}
}

// TestHTTPIntegration tests that the daemon serves the HTTP API until its
// context is cancelled
func TestHTTPIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	addr := freeAddr(t)
	socket := filepath.Join(t.TempDir(), "shellwatch.sock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var logs syncBuffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, []string{"-http", addr, "-socket", socket, "-log-format", "json"}, &logs, &logs)
	}()

	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		resp, err = http.Get("http://" + addr + "/")
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Failed to connect to HTTP API: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var apiInfo map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&apiInfo); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
	if version, ok := apiInfo["version"].(string); !ok || version == "" {
		t.Errorf("Expected non-empty version, got %v", apiInfo["version"])
	}

	if _, err := os.Stat(socket); err != nil {
		t.Errorf("Expected IPC socket to exist, got %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Daemon did not stop")
	}

	if !strings.Contains(logs.String(), "stopped") {
		t.Errorf("Expected shutdown to be logged, got %s", logs.String())
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Errorf("Expected IPC socket to be removed, got %v", err)
	}
}

func TestApplyConfig(t *testing.T) {
	var out bytes.Buffer
	level := new(slog.LevelVar)
	logger, err := logging.New(logging.Options{Level: level, Output: &out})
	if err != nil {
		t.Fatal(err)
	}

	current := config.Default()
	next := config.Default()
	next.Log.Level = "debug"

	applyConfig(logger, level, current, next)
	if level.Level() != slog.LevelDebug {
		t.Errorf("Expected level debug, got %v", level.Level())
	}
	if strings.Contains(out.String(), "restart") {
		t.Errorf("Expected no restart warning for a level change, got %s", out.String())
	}

	next = config.Default()
	next.Log.Level = "debug"
	next.HTTP.Enabled = true
	applyConfig(logger, level, current, next)
	if !strings.Contains(out.String(), "take effect on restart") {
		t.Errorf("Expected restart warning, got %s", out.String())
	}
}
