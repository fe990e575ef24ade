package internal

import (
	"context"
	"sync"
)

// ConnectionManager guards the bot's first credential exchange. Concurrent
// callers wait for the attempt in flight. Unlike sync.Once, a failed attempt
// leaves the manager unconnected so the next caller tries again.
type ConnectionManager struct {
	mu        sync.Mutex
	connected bool
}

// NewConnectionManager creates a new ConnectionManager instance ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{}
}

// Connect runs fn unless a previous call already succeeded.
func (cm *ConnectionManager) Connect(ctx context.Context, fn func(context.Context) error) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.connected {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return err
	}
	cm.connected = true
	return nil
}

// IsConnected reports whether a Connect call has succeeded.
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.connected
}
