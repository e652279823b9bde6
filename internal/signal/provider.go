// Package signal implements the host's typed signal system.
//
// A Provider emits signals; a Connection[T] holds a callback for signal type
// T and may be connected to any number of providers at once. Disconnecting a
// connection detaches it from every provider; closing a provider detaches
// every connection from it. Either side may go away first without leaving a
// dangling registration, and neither operation is ever applied twice.
//
// Providers and connections are confined to the host's event loop.
package signal

import "reflect"

// Source is implemented by anything that embeds a Provider
type Source interface {
	SignalProvider() *Provider
}

type handler interface {
	detach(p *Provider)
}

// Provider emits typed signals to connected callbacks.
// The zero value is ready to use.
type Provider struct {
	handlers map[reflect.Type][]handler
	closed   bool
}

// SignalProvider returns p, so types embedding a Provider satisfy Source
func (p *Provider) SignalProvider() *Provider {
	return p
}

// Len returns the number of connections attached to the provider
func (p *Provider) Len() int {
	n := 0
	for _, hs := range p.handlers {
		n += len(hs)
	}
	return n
}

// Closed reports whether Close has been called
func (p *Provider) Closed() bool {
	return p.closed
}

// Close detaches every connection from the provider.
// A closed provider ignores further Connect calls.
func (p *Provider) Close() {
	if p.closed {
		return
	}
	p.closed = true
	for t, hs := range p.handlers {
		for _, h := range hs {
			h.detach(p)
		}
		delete(p.handlers, t)
	}
}

func (p *Provider) add(t reflect.Type, h handler) {
	if p.handlers == nil {
		p.handlers = make(map[reflect.Type][]handler)
	}
	p.handlers[t] = append(p.handlers[t], h)
}

func (p *Provider) remove(t reflect.Type, h handler) {
	hs := p.handlers[t]
	for i, existing := range hs {
		if existing == h {
			hs = append(hs[:i:i], hs[i+1:]...)
			break
		}
	}
	if len(hs) == 0 {
		delete(p.handlers, t)
		return
	}
	p.handlers[t] = hs
}

// Connection holds a callback for signals of type T
type Connection[T any] struct {
	callback  func(*T)
	providers map[*Provider]struct{}
}

// NewConnection creates a disconnected connection for callback
func NewConnection[T any](callback func(*T)) *Connection[T] {
	return &Connection[T]{
		callback:  callback,
		providers: make(map[*Provider]struct{}),
	}
}

// Connected reports whether the connection is attached to any provider
func (c *Connection[T]) Connected() bool {
	return len(c.providers) > 0
}

// ConnectedTo reports whether the connection is attached to src
func (c *Connection[T]) ConnectedTo(src Source) bool {
	_, ok := c.providers[src.SignalProvider()]
	return ok
}

// Disconnect detaches the connection from every provider
func (c *Connection[T]) Disconnect() {
	t := typeOf[T]()
	for p := range c.providers {
		p.remove(t, c)
	}
	clear(c.providers)
}

// detach is called by a closing provider
func (c *Connection[T]) detach(p *Provider) {
	delete(c.providers, p)
}

// Connect attaches c to src. Connecting twice to the same provider is a no-op.
func Connect[T any](src Source, c *Connection[T]) {
	p := src.SignalProvider()
	if p.closed {
		return
	}
	if _, ok := c.providers[p]; ok {
		return
	}
	c.providers[p] = struct{}{}
	p.add(typeOf[T](), c)
}

// Emit calls every connection of type T attached to src.
// Connections detached while emitting are skipped.
func Emit[T any](src Source, ev *T) {
	p := src.SignalProvider()
	hs := p.handlers[typeOf[T]()]
	if len(hs) == 0 {
		return
	}

	snapshot := make([]handler, len(hs))
	copy(snapshot, hs)
	for _, h := range snapshot {
		c := h.(*Connection[T])
		if _, ok := c.providers[p]; !ok {
			continue
		}
		c.callback(ev)
	}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}
