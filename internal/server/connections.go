package server

import (
	"sync"

	"github.com/coder/websocket"
)

// ConnectionManager maps session ids to live sockets. It owns the transport
// side of a session: entries are created on accept and destroyed on
// disconnect. Group membership lives in the registry, keyed by the same id.
type ConnectionManager struct {
	connections map[string]*websocket.Conn // sessionID → socket
	mu          sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
	}
}

func (cm *ConnectionManager) AddConnection(sessionID string, conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[sessionID] = conn
}

func (cm *ConnectionManager) RemoveConnection(sessionID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, sessionID)
}

// GetConnection returns the socket for a session, or nil if it is gone.
func (cm *ConnectionManager) GetConnection(sessionID string) *websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.connections[sessionID]
}

// SessionIDs returns the ids of all live connections.
func (cm *ConnectionManager) SessionIDs() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	ids := make([]string, 0, len(cm.connections))
	for id := range cm.connections {
		ids = append(ids, id)
	}
	return ids
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return len(cm.connections)
}
