package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jeeftor/qmp-macro/internal/constants"
	"github.com/jeeftor/qmp-macro/internal/logging"
	"github.com/jeeftor/qmp-macro/internal/macro"
)

// ErrRunActive is returned when a run is started while another is in progress
var ErrRunActive = errors.New("a macro run is already active")

// Runner starts runs on a worker goroutine and allows one active run at a time
type Runner struct {
	engine     *Engine
	bufferSize int

	mu     sync.Mutex
	active *Run
}

// NewRunner creates a runner. bufferSize is the event channel capacity.
func NewRunner(e *Engine, bufferSize int) *Runner {
	if bufferSize <= 0 {
		bufferSize = constants.EventBufferSize
	}
	return &Runner{engine: e, bufferSize: bufferSize}
}

// Run is a handle to a run in progress
type Run struct {
	ID    string
	Entry string

	events  chan Event
	done    chan struct{}
	cancel  context.CancelFunc
	outcome Outcome
	dropped atomic.Int64
	state   atomic.Int32
}

// Events delivers progress events. The channel is closed when the run ends.
// Events are dropped, not queued, when the consumer falls behind; Wait is authoritative.
func (r *Run) Events() <-chan Event { return r.events }

// Done is closed once the run has reached a terminal state
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel requests cooperative cancellation. The run stops before its next
// step or as soon as the current provider call returns.
func (r *Run) Cancel() { r.cancel() }

// Wait blocks until the run ends and returns its outcome
func (r *Run) Wait() Outcome {
	<-r.done
	return r.outcome
}

// State returns the run's current lifecycle state
func (r *Run) State() State { return State(r.state.Load()) }

// Dropped returns how many events could not be delivered
func (r *Run) Dropped() int64 { return r.dropped.Load() }

// Start validates the entry function and launches a run. The program is
// snapshotted before Start returns.
func (rn *Runner) Start(ctx context.Context, program *macro.Program, entry string) (*Run, error) {
	steps, ok := program.Steps(entry)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, entry)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyFunction, entry)
	}

	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.active != nil {
		return nil, fmt.Errorf("%w (%s)", ErrRunActive, rn.active.ID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		ID:     rn.engine.newID(),
		Entry:  entry,
		events: make(chan Event, rn.bufferSize),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	run.state.Store(int32(Running))
	rn.active = run

	snapshot := program.Snapshot()
	go func() {
		defer cancel()
		out := rn.engine.run(runCtx, run.ID, snapshot, entry, run.send)

		if n := run.dropped.Load(); n > 0 {
			logging.Warn("Run events dropped", "run_id", run.ID, "dropped", n)
		}
		run.outcome = out
		run.state.Store(int32(out.State))

		rn.mu.Lock()
		rn.active = nil
		rn.mu.Unlock()

		close(run.events)
		close(run.done)
	}()
	return run, nil
}

// Active returns the run in progress, if any
func (rn *Runner) Active() *Run {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.active
}

func (r *Run) send(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
	}
}
