package http

import (
	"context"
	"sync"
)

// Connection is one active chat stream, over NDJSON or WebSocket
type Connection struct {
	ID     string
	Kind   string
	cancel context.CancelFunc
}

// ConnectionManager tracks active chat streams so shutdown can cancel them
type ConnectionManager struct {
	mu          sync.Mutex
	connections map[string]*Connection
	closed      bool
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
	}
}

// Register tracks a stream. After CloseAll, the stream is cancelled immediately
// and false is returned.
func (cm *ConnectionManager) Register(id, kind string, cancel context.CancelFunc) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		cancel()
		return false
	}
	cm.connections[id] = &Connection{ID: id, Kind: kind, cancel: cancel}
	return true
}

// Unregister removes a stream
func (cm *ConnectionManager) Unregister(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, id)
}

// Cancel cancels one stream and reports whether it was active
func (cm *ConnectionManager) Cancel(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.connections[id]
	cm.mu.Unlock()

	if ok {
		conn.cancel()
	}
	return ok
}

// Count returns the number of active streams
func (cm *ConnectionManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.connections)
}

// CloseAll cancels every active stream and rejects new ones
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.closed = true
	for id, conn := range cm.connections {
		conn.cancel()
		delete(cm.connections, id)
	}
}
