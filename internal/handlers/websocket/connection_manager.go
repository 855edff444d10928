package websocket

import (
	"context"
	"sync"

	"github.com/xpanvictor/voxline/pkg/Logger"
)

// ConnectionManager tracks the live sockets by session id.
type ConnectionManager struct {
	logger *Logger.Logger
	mutex  sync.RWMutex
	conns  map[string]*Connection
	wg     sync.WaitGroup
}

func NewConnectionManager(logger *Logger.Logger) *ConnectionManager {
	return &ConnectionManager{logger: logger, conns: make(map[string]*Connection)}
}

// RegisterConnection tracks c until UnregisterConnection.
func (cm *ConnectionManager) RegisterConnection(c *Connection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.conns[c.SessionID] = c
	cm.wg.Add(1)
	cm.logger.Infof("connection registered for session %s (%s/%s)", c.SessionID, c.Namespace, c.Project)
}

// UnregisterConnection forgets c. A newer connection for the same session
// is left alone.
func (cm *ConnectionManager) UnregisterConnection(c *Connection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if cur, ok := cm.conns[c.SessionID]; ok && cur == c {
		delete(cm.conns, c.SessionID)
	}
	cm.wg.Done()
	cm.logger.Infof("connection closed for session %s", c.SessionID)
}

// GetConnection finds the live connection of a session.
func (cm *ConnectionManager) GetConnection(sessionID string) (*Connection, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	c, ok := cm.conns[sessionID]
	return c, ok
}

// GetConnectionCount returns the number of live connections.
func (cm *ConnectionManager) GetConnectionCount() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.conns)
}

// GetStats lists every live connection.
func (cm *ConnectionManager) GetStats() []ConnectionInfo {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	out := make([]ConnectionInfo, 0, len(cm.conns))
	for _, c := range cm.conns {
		out = append(out, c.Info())
	}
	return out
}

// Close cancels every connection and waits for their handlers to finish
// or ctx to end.
func (cm *ConnectionManager) Close(ctx context.Context) error {
	cm.mutex.RLock()
	for _, c := range cm.conns {
		c.Close()
	}
	cm.mutex.RUnlock()

	done := make(chan struct{})
	go func() {
		cm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
