package engine

import (
	"time"

	"github.com/jeeftor/qmp-macro/internal/macro"
)

// State is the lifecycle state of a run
type State int

const (
	Ready State = iota
	Running
	Completed
	Failed
	Aborted
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a run
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Aborted
}

// EventType classifies run events
type EventType int

const (
	// EventStatus carries a human-readable status line
	EventStatus EventType = iota
	// EventStep reports a finished step and its outcome
	EventStep
	// EventFinished is the last event of a run
	EventFinished
)

// Event is delivered to the host while a run progresses
type Event struct {
	RunID    string
	Type     EventType
	Time     time.Time
	Function string
	Index    int
	Depth    int
	Kind     macro.Kind
	OK       bool
	Message  string
	State    State
}

// Outcome is the terminal result of a run
type Outcome struct {
	RunID     string
	Entry     string
	State     State
	Err       error
	Steps     int
	Duration  time.Duration
	Variables map[string]string
}

// StepResult is the internal result of dispatching one step. OK drives branch
// resolution. Err is set only for fatal conditions that end the run; Degraded
// explains a soft failure that was folded into OK=false.
type StepResult struct {
	OK       bool
	Err      error
	Degraded string
}

func success() StepResult { return StepResult{OK: true} }

func degraded(reason string) StepResult { return StepResult{Degraded: reason} }

func fatal(err error) StepResult { return StepResult{Err: err} }
