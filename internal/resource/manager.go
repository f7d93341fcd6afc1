package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jeeftor/qmp-macro/internal/logging"
	"github.com/jeeftor/qmp-macro/internal/qmp"
)

// ErrClosed is returned after CleanupAll has run
var ErrClosed = errors.New("resource manager is closed")

// ResourceManager tracks QMP connections and cleanup hooks for one process
type ResourceManager struct {
	mu           sync.Mutex
	connections  map[string]*qmp.Client
	cleanupFuncs []func() error
	closed       bool
}

// NewResourceManager creates an empty resource manager
func NewResourceManager() *ResourceManager {
	return &ResourceManager{connections: make(map[string]*qmp.Client)}
}

func connectionKey(vmid, socketPath string) string {
	return fmt.Sprintf("%s:%s", vmid, socketPath)
}

// Connect returns the open connection for a VM, dialing it on first use
func (rm *ResourceManager) Connect(ctx context.Context, vmid string, socketPath string) (*qmp.Client, error) {
	key := connectionKey(vmid, socketPath)

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		return nil, ErrClosed
	}
	if client, ok := rm.connections[key]; ok {
		logging.Debug("Reusing existing QMP connection", "vmid", vmid, "socket_path", socketPath)
		return client, nil
	}

	var client *qmp.Client
	if socketPath != "" {
		client = qmp.NewWithSocketPath(vmid, socketPath)
	} else {
		client = qmp.New(vmid)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to VM %s: %w", vmid, err)
	}

	rm.connections[key] = client
	logging.Debug("Created new QMP connection", "vmid", vmid, "socket_path", client.SocketPath())
	return client, nil
}

// AddCleanupFunc registers a hook run by CleanupAll, newest first
func (rm *ResourceManager) AddCleanupFunc(fn func() error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.cleanupFuncs = append(rm.cleanupFuncs, fn)
}

// CleanupAll runs the cleanup hooks and closes every connection. Later calls are no-ops.
func (rm *ResourceManager) CleanupAll() error {
	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return nil
	}
	rm.closed = true
	funcs := rm.cleanupFuncs
	conns := rm.connections
	rm.cleanupFuncs = nil
	rm.connections = make(map[string]*qmp.Client)
	rm.mu.Unlock()

	var errs []error
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			errs = append(errs, err)
		}
	}
	for key, client := range conns {
		if err := client.Close(); err != nil {
			logging.Warn("Error closing QMP connection", "connection", key, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats reports what is being tracked
func (rm *ResourceManager) Stats() map[string]interface{} {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return map[string]interface{}{
		"connections":   len(rm.connections),
		"cleanup_funcs": len(rm.cleanupFuncs),
		"closed":        rm.closed,
	}
}
