package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rmacdonaldsmith/shellwatch/internal/ipc"
	"github.com/rmacdonaldsmith/shellwatch/internal/rpcwatch"
	"github.com/rmacdonaldsmith/shellwatch/internal/shellevents"
	"github.com/rmacdonaldsmith/shellwatch/pkg/httpclient"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
)

// TestSingleNodeIntegration subscribes one client per transport and checks
// they all receive the same record
func TestSingleNodeIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testConfig(t)
	node, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, node.Start(ctx))
	defer node.Stop(context.Background())

	transports := node.Transports()
	events := []string{shellevents.ViewMapped}
	received := make(map[string]<-chan *record.Record)

	// Unix socket
	ipcClient, err := ipc.Dial(ctx, cfg.IPC.Socket)
	require.NoError(t, err)
	defer ipcClient.Close()
	require.NoError(t, ipcClient.Watch(ctx, events))
	received["ipc"] = ipcClient.Events()

	// WebSocket and SSE
	httpClient, err := httpclient.NewClient(httpclient.Config{ServerURL: "http://" + transports["http"], ClientID: "integration"})
	require.NoError(t, err)

	watcher, err := httpClient.Watch(ctx, events)
	require.NoError(t, err)
	defer watcher.Close()
	received["websocket"] = watcher.Records()

	stream, err := httpClient.Stream(ctx, httpclient.StreamConfig{Events: events})
	require.NoError(t, err)
	defer stream.Close()
	received["sse"] = stream.Records()

	// gRPC
	conn, err := grpc.NewClient(transports["grpc"], grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	rpcStream, err := rpcwatch.Watch(ctx, conn, events)
	require.NoError(t, err)
	rpcRecords := make(chan *record.Record, 1)
	go func() {
		rec, err := rpcStream.Recv()
		if err == nil {
			rpcRecords <- rec
		}
	}()
	received["grpc"] = rpcRecords

	// The SSE stream subscribes in the background.
	require.Eventually(t, func() bool {
		health, err := node.GetHealth(ctx)
		return err == nil && health.Clients == len(received)
	}, 5*time.Second, 20*time.Millisecond)

	var (
		viewID int
		mapErr error
	)
	require.NoError(t, node.Loop().Call(ctx, func() {
		output := node.Core().Outputs()[0]
		view, err := node.Core().MapView("foot", "Terminal", output.ID(), output.Geometry())
		if err != nil {
			mapErr = err
			return
		}
		viewID = view.ID()
	}))
	require.NoError(t, mapErr)

	for name, records := range received {
		select {
		case rec := <-records:
			require.NotNil(t, rec, name)
			assert.Equal(t, shellevents.ViewMapped, rec.Event(), name)
			view, ok := rec.Get("view")
			require.True(t, ok, name)
			assert.EqualValues(t, viewID, view.(map[string]any)["id"], name)
		case <-ctx.Done():
			t.Fatalf("%s client did not receive the record", name)
		}
	}
}
