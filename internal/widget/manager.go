package widget

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/ashureev/wealth-widget/internal/metrics"
)

// ConnectionManager tracks open widget sockets per visitor and tab.
type ConnectionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewConnectionManager creates an empty registry.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the socket for a visitor tab, or nil.
func (m *ConnectionManager) GetActive(visitorID, tabID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tabs, ok := m.active[visitorID]; ok {
		return tabs[tabID]
	}
	return nil
}

// Count returns the number of registered sockets.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, tabs := range m.active {
		n += len(tabs)
	}
	return n
}

// Register adds a socket, closing any previous socket for the same tab.
func (m *ConnectionManager) Register(visitorID, tabID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[visitorID]; !exists {
		m.active[visitorID] = make(map[string]*websocket.Conn)
	}

	existing, exists := m.active[visitorID][tabID]
	if exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	if !exists {
		metrics.ActiveConnections.Inc()
	}

	m.active[visitorID][tabID] = conn
	slog.Info("Widget socket registered", "visitor_id", visitorID, "session_id", tabID)
}

// Unregister removes a socket if it is still the current one for its tab.
func (m *ConnectionManager) Unregister(visitorID, tabID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tabs, ok := m.active[visitorID]; ok {
		if current, exists := tabs[tabID]; exists && current == conn {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(m.active, visitorID)
			}
			metrics.ActiveConnections.Dec()
			slog.Info("Widget socket unregistered", "visitor_id", visitorID, "session_id", tabID)
		}
	}
}

// CloseTab closes the socket for one tab.
func (m *ConnectionManager) CloseTab(visitorID, tabID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tabs, ok := m.active[visitorID]
	if !ok {
		return
	}
	conn, ok := tabs[tabID]
	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	delete(tabs, tabID)
	if len(tabs) == 0 {
		delete(m.active, visitorID)
	}
	metrics.ActiveConnections.Dec()
	slog.Info("Widget socket closed", "visitor_id", visitorID, "session_id", tabID)
}

// CloseKey closes the socket addressed by a visitorID:tabID session key.
func (m *ConnectionManager) CloseKey(key string) {
	visitorID, tabID, ok := strings.Cut(key, ":")
	if !ok {
		return
	}
	m.CloseTab(visitorID, tabID)
}

// CloseVisitor closes every socket a visitor has open.
func (m *ConnectionManager) CloseVisitor(visitorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tabs, ok := m.active[visitorID]
	if !ok {
		return
	}

	for tab, conn := range tabs {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
		metrics.ActiveConnections.Dec()
		slog.Info("Widget socket closed", "visitor_id", visitorID, "session_id", tab)
	}
	delete(m.active, visitorID)
}
