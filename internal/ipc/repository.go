// Package ipc dispatches client method calls onto the host event loop and
// serves them over a Unix socket.
package ipc

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/rmacdonaldsmith/shellwatch/internal/eventloop"
	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
	"github.com/rmacdonaldsmith/shellwatch/pkg/subscription"
)

// NoSuchMethod is the error message for calls to unregistered methods
const NoSuchMethod = "No such method found!"

// Handler serves one method. It runs on the event loop; data is the raw
// JSON of the request's "data" field and may be empty.
type Handler func(client subscription.Subscriber, data []byte) brokerpkg.Response

// Repository maps method names to handlers and fans client disconnects out
// to interested components.
type Repository struct {
	loop   *eventloop.Loop
	logger *slog.Logger

	mu           sync.RWMutex
	methods      map[string]Handler
	onDisconnect []func(client subscription.Subscriber)
}

// NewRepository creates an empty repository dispatching onto loop
func NewRepository(loop *eventloop.Loop, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Repository{
		loop:    loop,
		logger:  logger,
		methods: make(map[string]Handler),
	}
}

// Register adds or replaces a method
func (r *Repository) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[name] = h
}

// Unregister removes a method
func (r *Repository) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.methods, name)
}

// Methods returns the registered method names, sorted
func (r *Repository) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OnDisconnect registers fn to run on the event loop whenever a client
// goes away
func (r *Repository) OnDisconnect(fn func(client subscription.Subscriber)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDisconnect = append(r.onDisconnect, fn)
}

// Call runs a method for client on the event loop and waits for its response
func (r *Repository) Call(ctx context.Context, client subscription.Subscriber, method string, data []byte) brokerpkg.Response {
	r.mu.RLock()
	h, ok := r.methods[method]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("unknown method", "method", method, "client", client.ID())
		return brokerpkg.Error(NoSuchMethod)
	}

	var resp brokerpkg.Response
	if err := r.loop.Call(ctx, func() { resp = h(client, data) }); err != nil {
		r.logger.Error("method call failed", "method", method, "client", client.ID(), "error", err)
		return brokerpkg.Error(err.Error())
	}
	if resp == nil {
		resp = brokerpkg.OK()
	}
	return resp
}

// Disconnect notifies every disconnect hook about client on the event loop.
// The hooks have run when Disconnect returns without error.
func (r *Repository) Disconnect(ctx context.Context, client subscription.Subscriber) error {
	r.mu.RLock()
	hooks := append([]func(subscription.Subscriber){}, r.onDisconnect...)
	r.mu.RUnlock()

	return r.loop.Call(ctx, func() {
		for _, fn := range hooks {
			fn(client)
		}
	})
}
