package ipc

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rmacdonaldsmith/shellwatch/internal/broker"
	"github.com/rmacdonaldsmith/shellwatch/internal/eventloop"
	"github.com/rmacdonaldsmith/shellwatch/internal/shell"
	"github.com/rmacdonaldsmith/shellwatch/internal/shellevents"
	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
	"github.com/rmacdonaldsmith/shellwatch/pkg/subscription"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stack is a running loop with a shell host, broker and repository
type stack struct {
	loop   *eventloop.Loop
	core   *shell.Core
	broker *broker.ShellBroker
	repo   *Repository
}

func newStack(t *testing.T) *stack {
	t.Helper()
	loop := eventloop.New(0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = loop.Run(ctx)
	}()

	core := shell.NewCore()
	b, err := broker.New(broker.NewConfig(), core, shellevents.NewCatalogue(core, nil))
	require.NoError(t, err)

	repo := NewRepository(loop, nil)
	RegisterBrokerMethods(repo, b)
	RegisterShellMethods(repo, core)

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return &stack{loop: loop, core: core, broker: b, repo: repo}
}

func (s *stack) do(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, s.loop.Call(context.Background(), fn))
}

func newServer(t *testing.T, s *stack) *Server {
	t.Helper()
	dir, err := os.MkdirTemp("", "shellwatch")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	server, err := NewServer(&Config{SocketPath: filepath.Join(dir, "ipc.sock"), ClientBuffer: 32}, s.repo)
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func receive(t *testing.T, events <-chan *record.Record) *record.Record {
	t.Helper()
	select {
	case rec, ok := <-events:
		require.True(t, ok, "event channel closed")
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestRepository_UnknownMethod(t *testing.T) {
	s := newStack(t)
	resp := s.repo.Call(context.Background(), broker.NewConnection(1), "nope/nothing", nil)
	assert.False(t, resp.IsOK())
	assert.Equal(t, NoSuchMethod, resp.Message())
}

func TestRepository_RegisterUnregister(t *testing.T) {
	s := newStack(t)
	s.repo.Register("test/echo", func(_ subscription.Subscriber, data []byte) brokerpkg.Response {
		return brokerpkg.OK().With("data", string(data))
	})
	s.repo.Register("test/nil", func(subscription.Subscriber, []byte) brokerpkg.Response { return nil })
	assert.Contains(t, s.repo.Methods(), "test/echo")
	assert.Contains(t, s.repo.Methods(), MethodWatch)

	client := broker.NewConnection(1)
	resp := s.repo.Call(context.Background(), client, "test/echo", []byte(`{"x":1}`))
	assert.Equal(t, `{"x":1}`, resp["data"])
	assert.True(t, s.repo.Call(context.Background(), client, "test/nil", nil).IsOK())

	s.repo.Unregister("test/echo")
	resp = s.repo.Call(context.Background(), client, "test/echo", nil)
	assert.Equal(t, NoSuchMethod, resp.Message())
}

func TestRepository_WatchErrors(t *testing.T) {
	s := newStack(t)
	client := broker.NewConnection(1)

	resp := s.repo.Call(context.Background(), client, MethodWatch, []byte(`{"events":"view-mapped"}`))
	assert.Equal(t, "Event list is not an array!", resp.Message())

	resp = s.repo.Call(context.Background(), client, MethodWatch, []byte(`{"events":null}`))
	assert.Equal(t, "Event list is not an array!", resp.Message())

	resp = s.repo.Call(context.Background(), client, MethodWatch, []byte(`{"events":["view-mapped",3]}`))
	assert.Equal(t, "Event list contains non-string entries!", resp.Message())

	var clients int
	s.do(t, func() { clients = len(s.broker.Clients()) })
	assert.Zero(t, clients, "failed requests change nothing")
}

func TestRepository_DisconnectReleasesSubscriptions(t *testing.T) {
	s := newStack(t)
	client := broker.NewConnection(4)

	resp := s.repo.Call(context.Background(), client, MethodWatch, []byte(`{"events":["view-mapped"]}`))
	require.True(t, resp.IsOK())

	require.NoError(t, s.repo.Disconnect(context.Background(), client))
	var states []brokerpkg.TopicState
	s.do(t, func() { states = s.broker.Topics() })
	for _, st := range states {
		assert.Zero(t, st.Subscribers, st.Name)
	}
}

func TestShellMethods(t *testing.T) {
	s := newStack(t)
	var view *shell.View
	var output *shell.Output
	s.do(t, func() {
		output = s.core.AddOutput("DP-1", shell.Geometry{Width: 100, Height: 100})
		view, _ = s.core.MapView("foot", "shell", output.ID(), shell.Geometry{Width: 10, Height: 10})
	})
	client := broker.NewConnection(1)
	call := func(method, data string) brokerpkg.Response {
		return s.repo.Call(context.Background(), client, method, []byte(data))
	}

	resp := call(MethodListViews, "")
	require.True(t, resp.IsOK())
	assert.Len(t, resp["views"], 1)

	resp = call(MethodViewInfo, `{"id":`+itoa(view.ID())+`}`)
	require.True(t, resp.IsOK())
	assert.Equal(t, "foot", resp["info"].(map[string]any)["app-id"])

	resp = call(MethodViewInfo, `{}`)
	assert.Equal(t, `Missing "id"`, resp.Message())

	resp = call(MethodViewInfo, `{"id":999}`)
	assert.False(t, resp.IsOK())

	resp = call(MethodOutputInfo, `{"id":`+itoa(output.ID())+`}`)
	require.True(t, resp.IsOK())
	assert.Equal(t, "DP-1", resp["info"].(map[string]any)["name"])

	resp = call(MethodListOutputs, "")
	assert.Len(t, resp["outputs"], 1)

	resp = call(MethodViewSetGeometry, `{"id":`+itoa(view.ID())+`,"geometry":{"x":1,"y":2,"width":3,"height":4}}`)
	require.True(t, resp.IsOK(), resp.Message())
	var g shell.Geometry
	s.do(t, func() { g = view.Geometry() })
	assert.Equal(t, shell.Geometry{X: 1, Y: 2, Width: 3, Height: 4}, g)

	resp = call(MethodViewSetGeometry, `{"id":`+itoa(view.ID())+`}`)
	assert.Equal(t, `Missing "geometry"`, resp.Message())
}

func TestServer_WatchOverSocket(t *testing.T) {
	s := newStack(t)
	server := newServer(t, s)
	ctx := context.Background()

	client, err := Dial(ctx, server.Addr())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Watch(ctx, []string{"view-mapped", "output-added", "bogus"}))

	resp, err := client.Call(ctx, "does/not-exist", nil)
	require.NoError(t, err)
	assert.Equal(t, NoSuchMethod, resp.Message())

	s.do(t, func() {
		o := s.core.AddOutput("DP-1", shell.Geometry{})
		_, _ = s.core.MapView("foot", "shell", o.ID(), shell.Geometry{})
		_ = s.core.SetTitle(1, "ignored")
	})

	added := receive(t, client.Events())
	assert.Equal(t, "output-added", added.Event())
	mapped := receive(t, client.Events())
	assert.Equal(t, "view-mapped", mapped.Event())
	view, ok := mapped.Get("view")
	require.True(t, ok)
	assert.Equal(t, "foot", view.(map[string]any)["app-id"])

	require.NoError(t, client.Close())
	assert.Eventually(t, func() bool {
		var n int
		_ = s.loop.Call(ctx, func() { n = len(s.broker.Clients()) })
		return n == 0
	}, 2*time.Second, 10*time.Millisecond, "hangup releases the subscription")
}

func TestServer_MalformedRequest(t *testing.T) {
	s := newStack(t)
	server := newServer(t, s)

	client, err := Dial(context.Background(), server.Addr())
	require.NoError(t, err)
	defer client.Close()

	// bypass Call to send a frame that is not a request object
	client.callMu.Lock()
	require.NoError(t, WriteFrame(client.conn, []byte(`[1,2`)))
	client.callMu.Unlock()

	select {
	case resp := <-client.responses:
		assert.False(t, resp.IsOK())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestServer_CloseHangsUpClients(t *testing.T) {
	s := newStack(t)
	server := newServer(t, s)

	client, err := Dial(context.Background(), server.Addr())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Watch(context.Background(), nil))

	require.NoError(t, server.Close())
	require.NoError(t, server.Close())

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client was not hung up")
	}
	_, err = os.Stat(server.Addr())
	assert.True(t, os.IsNotExist(err))
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
