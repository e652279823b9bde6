package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type pinged struct{ n int }

type ponged struct{}

type host struct {
	Provider
}

func TestConnectEmitDisconnect(t *testing.T) {
	h := &host{}
	var got []int
	conn := NewConnection(func(ev *pinged) { got = append(got, ev.n) })

	Emit(h, &pinged{n: 1})
	assert.Empty(t, got, "disconnected callback must not run")

	Connect(h, conn)
	Connect(h, conn)
	assert.Equal(t, 1, h.Len(), "double connect is a no-op")
	assert.True(t, conn.Connected())
	assert.True(t, conn.ConnectedTo(h))

	Emit(h, &pinged{n: 2})
	Emit(h, &ponged{})
	assert.Equal(t, []int{2}, got)

	conn.Disconnect()
	assert.False(t, conn.Connected())
	assert.Equal(t, 0, h.Len())

	Emit(h, &pinged{n: 3})
	assert.Equal(t, []int{2}, got)

	conn.Disconnect()
}

func TestConnectionAcrossProviders(t *testing.T) {
	a, b := &host{}, &host{}
	calls := 0
	conn := NewConnection(func(*pinged) { calls++ })

	Connect(a, conn)
	Connect(b, conn)
	Emit(a, &pinged{})
	Emit(b, &pinged{})
	assert.Equal(t, 2, calls)

	conn.Disconnect()
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, 0, b.Len())
}

func TestProviderCloseDetachesConnections(t *testing.T) {
	a, b := &host{}, &host{}
	calls := 0
	conn := NewConnection(func(*pinged) { calls++ })
	Connect(a, conn)
	Connect(b, conn)

	a.Close()
	assert.True(t, a.Closed())
	assert.False(t, conn.ConnectedTo(a))
	assert.True(t, conn.ConnectedTo(b))

	Connect(a, conn)
	assert.False(t, conn.ConnectedTo(a), "closed provider ignores connect")

	// Disconnect after the provider went away must only touch b.
	conn.Disconnect()
	assert.Equal(t, 0, b.Len())

	Emit(b, &pinged{})
	assert.Equal(t, 0, calls)
}

func TestDisconnectDuringEmit(t *testing.T) {
	h := &host{}
	var second *Connection[pinged]
	firstCalls, secondCalls := 0, 0

	first := NewConnection(func(*pinged) {
		firstCalls++
		second.Disconnect()
	})
	second = NewConnection(func(*pinged) { secondCalls++ })

	Connect(h, first)
	Connect(h, second)
	Emit(h, &pinged{})

	assert.Equal(t, 1, firstCalls)
	assert.Equal(t, 0, secondCalls)
	assert.Equal(t, 1, h.Len())
}
