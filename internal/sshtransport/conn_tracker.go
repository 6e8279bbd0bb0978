package sshtransport

import (
	"net"
	"sync"
	"sync/atomic"
)

// connTracker manages active connections with thread-safe tracking and
// counting, the same reusable shape the teacher's socks5.Server uses for
// both its TCP and WebSocket listeners.
type connTracker struct {
	mu          sync.Mutex
	connections map[net.Conn]struct{}
	connCount   atomic.Int64
}

func newConnTracker() *connTracker {
	return &connTracker{connections: make(map[net.Conn]struct{})}
}

func (t *connTracker) add(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connections[conn] = struct{}{}
	t.connCount.Add(1)
}

func (t *connTracker) remove(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.connections[conn]; exists {
		delete(t.connections, conn)
		t.connCount.Add(-1)
	}
}

func (t *connTracker) count() int64 {
	return t.connCount.Load()
}

func (t *connTracker) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for conn := range t.connections {
		conn.Close()
	}
	t.connections = make(map[net.Conn]struct{})
	t.connCount.Store(0)
}
