package daemon

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rmacdonaldsmith/shellwatch/internal/config"
	"github.com/rmacdonaldsmith/shellwatch/internal/ipc"
	"github.com/rmacdonaldsmith/shellwatch/internal/shell"
	"github.com/rmacdonaldsmith/shellwatch/internal/shellevents"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.Default()
	c.IPC.Socket = filepath.Join(t.TempDir(), "shellwatch.sock")
	c.HTTP.Enabled = true
	c.HTTP.Address = "127.0.0.1:0"
	c.GRPC.Enabled = true
	c.GRPC.Address = "127.0.0.1:0"
	c.Shell.Outputs = []config.OutputConfig{{Name: "DP-1", Width: 1920, Height: 1080}}
	return c
}

// TestNode_StartStop tests the lifecycle methods
func TestNode_StartStop(t *testing.T) {
	node, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("Expected no error creating node, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := node.Start(ctx); err != nil {
		t.Fatalf("Expected no error starting node, got %v", err)
	}
	if err := node.Start(ctx); err != nil {
		t.Errorf("Expected no error from idempotent Start(), got %v", err)
	}

	transports := node.Transports()
	for _, name := range []string{"ipc", "http", "grpc"} {
		if transports[name] == "" {
			t.Errorf("Expected %s transport to be listed, got %v", name, transports)
		}
	}
	if _, ok := transports["mqtt"]; ok {
		t.Error("Expected mqtt transport to be disabled")
	}

	health, err := node.GetHealth(ctx)
	if err != nil {
		t.Fatalf("Expected no error getting health, got %v", err)
	}
	if !health.Healthy {
		t.Errorf("Expected healthy node, got %+v", health)
	}
	if health.Scopes != 1 {
		t.Errorf("Expected the seeded output to be tracked, got %d scopes", health.Scopes)
	}

	resp, err := http.Get("http://" + transports["http"] + "/api/v1/health")
	if err != nil {
		t.Fatalf("Expected HTTP API to answer, got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if err := node.Stop(ctx); err != nil {
		t.Fatalf("Expected no error stopping node, got %v", err)
	}
	if err := node.Stop(ctx); err != nil {
		t.Errorf("Expected no error from idempotent Stop(), got %v", err)
	}
	select {
	case <-node.Done():
	default:
		t.Error("Expected event loop to be stopped")
	}

	if err := node.Start(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed restarting a stopped node, got %v", err)
	}
}

// TestNode_DeliversOverIPC drives the shell and reads the record from a
// socket client
func TestNode_DeliversOverIPC(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.Enabled = false
	cfg.GRPC.Enabled = false

	node, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("Expected no error creating node, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := node.Start(ctx); err != nil {
		t.Fatalf("Expected no error starting node, got %v", err)
	}
	defer node.Stop(context.Background())

	client, err := ipc.Dial(ctx, cfg.IPC.Socket)
	if err != nil {
		t.Fatalf("Expected no error dialing socket, got %v", err)
	}
	defer client.Close()

	if err := client.Watch(ctx, []string{shellevents.ViewMapped}); err != nil {
		t.Fatalf("Expected no error watching, got %v", err)
	}

	var applyErr error
	err = node.Loop().Call(ctx, func() {
		output := node.Core().Outputs()[0].ID()
		_, applyErr = node.Core().Apply(shell.Command{Action: shell.ActionMapView, Output: &output, AppID: "foot"})
	})
	if err != nil || applyErr != nil {
		t.Fatalf("Expected view to be mapped, got %v / %v", err, applyErr)
	}

	select {
	case rec := <-client.Events():
		if rec.Event() != shellevents.ViewMapped {
			t.Errorf("Expected %s record, got %s", shellevents.ViewMapped, rec.Event())
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for record")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("Expected error for nil config")
	}

	cfg := config.Default()
	cfg.IPC.Enabled = false
	if _, err := New(cfg, nil); !errors.Is(err, config.ErrNoTransport) {
		t.Errorf("Expected ErrNoTransport, got %v", err)
	}
}

// refusingClient is an MQTT client whose broker never accepts the connection
type refusingClient struct {
	mqtt.Client
}

type refusedToken struct{ mqtt.Token }

func (refusedToken) WaitTimeout(time.Duration) bool { return true }
func (refusedToken) Error() error                   { return errors.New("connection refused") }

func (refusingClient) IsConnected() bool       { return false }
func (refusingClient) Connect() mqtt.Token     { return refusedToken{} }
func (refusingClient) Disconnect(quiesce uint) {}

func TestNode_StartFailureStopsEverything(t *testing.T) {
	cfg := testConfig(t)
	cfg.MQTT.Enabled = true
	cfg.MQTT.Broker = "tcp://127.0.0.1:1883"

	node, err := New(cfg, nil, WithMQTTClient(refusingClient{}))
	if err != nil {
		t.Fatalf("Expected no error creating node, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = node.Start(ctx)
	if err == nil {
		t.Fatal("Expected start to fail when the MQTT broker refuses")
	}

	select {
	case <-node.Done():
	default:
		t.Error("Expected event loop to be stopped after a failed start")
	}
	if _, err := ipc.Dial(ctx, cfg.IPC.Socket); err == nil {
		t.Error("Expected IPC socket to be closed after a failed start")
	}
}
