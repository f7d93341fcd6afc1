package resource

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jeeftor/qmp-macro/internal/logging"
)

// ContextManager owns the process root context. The first SIGINT/SIGTERM
// cancels it, which stops any run in progress; a second one exits.
type ContextManager struct {
	rootContext    context.Context
	cancelFunc     context.CancelFunc
	resourceMgr    *ResourceManager
	cleanupTimeout time.Duration
	mu             sync.RWMutex

	signals chan os.Signal
	stop    chan struct{}
	once    sync.Once
}

// NewContextManager creates a new context manager with signal handling
func NewContextManager() *ContextManager {
	cm := newContextManager()
	signal.Notify(cm.signals, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	return cm
}

func newContextManager() *ContextManager {
	rootCtx, cancel := context.WithCancel(context.Background())
	cm := &ContextManager{
		rootContext:    rootCtx,
		cancelFunc:     cancel,
		cleanupTimeout: 10 * time.Second,
		resourceMgr:    NewResourceManager(),
		signals:        make(chan os.Signal, 2),
		stop:           make(chan struct{}),
	}
	go cm.handleSignals()
	return cm
}

// GetContext returns the root context for operations
func (cm *ContextManager) GetContext() context.Context {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.rootContext
}

// GetResourceManager returns the resource manager
func (cm *ContextManager) GetResourceManager() *ResourceManager {
	return cm.resourceMgr
}

// WithTimeout creates a context with timeout. A non-positive timeout only adds cancellation.
func (cm *ContextManager) WithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(cm.rootContext)
	}
	return context.WithTimeout(cm.rootContext, timeout)
}

func (cm *ContextManager) handleSignals() {
	select {
	case sig := <-cm.signals:
		logging.Warn("Received shutdown signal, stopping", "signal", sig.String())
		cm.cancelFunc()
	case <-cm.stop:
		return
	}

	select {
	case sig := <-cm.signals:
		logging.Error("Received second signal, exiting", "signal", sig.String())
		cm.cleanup()
		os.Exit(130)
	case <-cm.stop:
	}
}

// Shutdown cancels the root context and releases every tracked resource
func (cm *ContextManager) Shutdown() error {
	var err error
	cm.once.Do(func() {
		signal.Stop(cm.signals)
		close(cm.stop)

		cm.mu.Lock()
		cm.cancelFunc()
		cm.mu.Unlock()

		err = cm.cleanup()
	})
	return err
}

// cleanup runs CleanupAll bounded by the cleanup timeout
func (cm *ContextManager) cleanup() error {
	done := make(chan error, 1)
	go func() {
		done <- cm.resourceMgr.CleanupAll()
	}()

	select {
	case err := <-done:
		if err != nil {
			logging.Error("Resource cleanup completed with errors", "error", err)
		}
		return err
	case <-time.After(cm.cleanupTimeout):
		logging.Warn("Resource cleanup timed out", "timeout", cm.cleanupTimeout)
		return context.DeadlineExceeded
	}
}

// IsActive returns whether the root context is still live
func (cm *ContextManager) IsActive() bool {
	select {
	case <-cm.rootContext.Done():
		return false
	default:
		return true
	}
}
