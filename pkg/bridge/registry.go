package bridge

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxClients bounds the registry when no limit is configured.
const DefaultMaxClients = 10

// ErrConnectionLimit is returned by Registry.Add when the registry is
// full. The connection is rejected, never queued; the server keeps
// serving its existing clients.
var ErrConnectionLimit = errors.New("connection limit exceeded")

// ClientConn is one connected TCP peer.
type ClientConn struct {
	// ID is the unique connection identifier.
	ID string

	// Conn is the underlying socket.
	Conn net.Conn

	// RemoteAddr is the peer address.
	RemoteAddr net.Addr

	// JoinedAt is when the connection was registered.
	JoinedAt time.Time
}

// Registry is a bounded, thread-safe set of connected TCP peers with
// fan-out write. A single lock guards membership; writes go against a
// snapshot so a stalled peer never holds the lock.
type Registry struct {
	mu    sync.Mutex
	max   int
	conns map[string]*ClientConn
}

// NewRegistry creates a registry bounded to max connections
// (DefaultMaxClients if max <= 0).
func NewRegistry(max int) *Registry {
	if max <= 0 {
		max = DefaultMaxClients
	}
	return &Registry{
		max:   max,
		conns: make(map[string]*ClientConn),
	}
}

// Add registers a connection. Returns ErrConnectionLimit when the
// registry is full; the caller is responsible for closing the rejected
// socket.
func (r *Registry) Add(conn net.Conn) (*ClientConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.conns) >= r.max {
		return nil, ErrConnectionLimit
	}

	cc := &ClientConn{
		ID:         uuid.New().String(),
		Conn:       conn,
		RemoteAddr: conn.RemoteAddr(),
		JoinedAt:   time.Now(),
	}
	r.conns[cc.ID] = cc
	return cc, nil
}

// Remove deregisters a connection. Safe to call on absent IDs.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Snapshot returns the current members. The slice is a copy; members
// may disconnect concurrently.
func (r *Registry) Snapshot() []*ClientConn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*ClientConn, 0, len(r.conns))
	for _, cc := range r.conns {
		out = append(out, cc)
	}
	return out
}

// Broadcast writes p to every registered connection. A failed write
// removes and closes only that connection; delivery to the rest
// continues. Returns the IDs of connections dropped by this broadcast.
// A client added mid-broadcast may miss this cycle.
func (r *Registry) Broadcast(p []byte) []string {
	var dropped []string
	for _, cc := range r.Snapshot() {
		if _, err := cc.Conn.Write(p); err != nil {
			r.Remove(cc.ID)
			cc.Conn.Close()
			dropped = append(dropped, cc.ID)
		}
	}
	return dropped
}

// CloseAll closes and removes every connection. Returns the number
// closed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	for id, cc := range r.conns {
		_ = cc.Conn.Close()
		delete(r.conns, id)
		closed++
	}
	return closed
}
