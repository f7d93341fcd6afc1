// Package engine interprets macro programs: it walks a function's step list,
// dispatches each step to a Provider or the variable store, and resolves the
// next step from the per-step success and failure branch targets.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jeeftor/qmp-macro/internal/constants"
	"github.com/jeeftor/qmp-macro/internal/logging"
	"github.com/jeeftor/qmp-macro/internal/macro"
	"github.com/jeeftor/qmp-macro/internal/vars"
)

var (
	// ErrUnknownFunction is reported when a function name does not resolve
	ErrUnknownFunction = errors.New("unknown function")

	// ErrCallDepth is reported when nested calls exceed the configured limit
	ErrCallDepth = errors.New("call depth limit exceeded")

	// ErrEmptyFunction is returned when starting a run on a function without steps
	ErrEmptyFunction = errors.New("function has no steps")
)

// Config tunes the interpreter
type Config struct {
	// MaxCallDepth bounds nested CallFunction steps. The entry function is depth 0.
	MaxCallDepth int
}

// DefaultConfig returns the interpreter defaults
func DefaultConfig() Config {
	return Config{MaxCallDepth: constants.DefaultMaxCallDepth}
}

// Engine executes programs against a Provider. An Engine holds no per-run
// state and may be reused; each Run gets a fresh variable store.
type Engine struct {
	provider Provider
	config   Config
	newID    func() string
}

// New creates an engine
func New(provider Provider, config Config) *Engine {
	if config.MaxCallDepth <= 0 {
		config.MaxCallDepth = constants.DefaultMaxCallDepth
	}
	return &Engine{provider: provider, config: config, newID: uuid.NewString}
}

// run is the state of one top-level Run, shared by nested calls
type run struct {
	id       string
	ctx      context.Context
	program  *macro.Program
	store    *vars.Store
	provider Provider
	config   Config
	emit     func(Event)
	logger   *logging.ContextualLogger
	steps    int
	bodies   map[string][]macro.Step
}

// Run executes entry to termination and returns the outcome. The program is
// snapshotted first, so edits made while the run is in progress are not seen.
// sink, if non-nil, receives events synchronously on the calling goroutine.
func (e *Engine) Run(ctx context.Context, program *macro.Program, entry string, sink func(Event)) Outcome {
	return e.run(ctx, e.newID(), program.Snapshot(), entry, sink)
}

func (e *Engine) run(ctx context.Context, id string, snapshot *macro.Program, entry string, sink func(Event)) (out Outcome) {
	start := time.Now()
	r := &run{
		id:       id,
		ctx:      ctx,
		program:  snapshot,
		store:    vars.NewStore(),
		provider: e.provider,
		config:   e.config,
		logger:   logging.NewContextualLogger(id, "engine"),
		bodies:   make(map[string][]macro.Step),
	}
	r.emit = func(ev Event) {
		if sink == nil {
			return
		}
		ev.RunID = id
		ev.Time = time.Now()
		sink(ev)
	}

	r.logger.Info("Starting macro run", "entry", entry, "max_call_depth", e.config.MaxCallDepth)

	out = Outcome{RunID: id, Entry: entry}
	defer func() {
		if p := recover(); p != nil {
			out.State = Failed
			out.Err = fmt.Errorf("run panicked: %v", p)
		}
		out.Steps = r.steps
		out.Duration = time.Since(start)
		out.Variables = r.store.Snapshot()

		var msg string
		switch out.State {
		case Completed:
			msg = "Macro completed."
			r.logger.Info("Macro run completed", "steps", out.Steps, "duration", out.Duration)
		case Aborted:
			msg = fmt.Sprintf("Macro aborted: %v", out.Err)
			r.logger.Warn("Macro run aborted", "steps", out.Steps, "error", out.Err)
		default:
			msg = fmt.Sprintf("Error: %v", out.Err)
			r.logger.Error("Macro run failed", "steps", out.Steps, "error", out.Err)
		}
		r.emit(Event{Type: EventFinished, Function: entry, State: out.State, OK: out.State == Completed, Message: msg})
	}()

	if !snapshot.Has(entry) {
		out.State = Failed
		out.Err = fmt.Errorf("%w: %q", ErrUnknownFunction, entry)
		return out
	}

	err := r.execFunction(entry, 0)
	switch {
	case err == nil:
		out.State = Completed
	case isCancellation(err):
		out.State = Aborted
		out.Err = err
	default:
		out.State = Failed
		out.Err = err
	}
	return out
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *run) body(name string) ([]macro.Step, bool) {
	if steps, ok := r.bodies[name]; ok {
		return steps, true
	}
	steps, ok := r.program.Steps(name)
	if ok {
		r.bodies[name] = steps
	}
	return steps, ok
}

// execFunction walks one function's step list with its own index.
// A nil return means the loop ran off the end of the list.
func (r *run) execFunction(name string, depth int) error {
	steps, ok := r.body(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}

	index := 1
	for index >= 1 && index <= len(steps) {
		if err := r.ctx.Err(); err != nil {
			return err
		}

		step := steps[index-1]
		r.logger.Debug("Dispatching step", "function", name, "index", index, "kind", step.Kind(), "depth", depth)

		res := r.dispatch(name, index, depth, step)
		r.steps++
		if res.Err != nil {
			return fmt.Errorf("%s step %d (%s): %w", name, index, step.Kind(), res.Err)
		}
		if res.Degraded != "" {
			r.logger.Debug("Step degraded", "function", name, "index", index, "reason", res.Degraded)
		}
		r.emit(Event{Type: EventStep, Function: name, Index: index, Depth: depth, Kind: step.Kind(), OK: res.OK, Message: res.Degraded})

		target := step.NextOnFailure
		if res.OK {
			target = step.NextOnSuccess
		}
		if next, jump := target.Index(); jump {
			index = next
			continue
		}
		index++
	}
	return nil
}

func (r *run) status(name string, index, depth int, kind macro.Kind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Debug(msg, "function", name, "index", index)
	r.emit(Event{Type: EventStatus, Function: name, Index: index, Depth: depth, Kind: kind, Message: msg})
}

func (r *run) dispatch(name string, index, depth int, step macro.Step) StepResult {
	kind := step.Kind()
	switch a := step.Action.(type) {
	case macro.ClickImage:
		r.status(name, index, depth, kind, "[%d] Click image: %s", index, filepath.Base(a.Pattern))
		return r.click(a.ImageTarget)

	case macro.WaitDisappear:
		r.status(name, index, depth, kind, "[%d] Wait disappear: %s", index, filepath.Base(a.Pattern))
		return r.wait(a.ImageTarget, false)

	case macro.WaitAppear:
		r.status(name, index, depth, kind, "[%d] Wait appear: %s", index, filepath.Base(a.Pattern))
		return r.wait(a.ImageTarget, true)

	case macro.CallFunction:
		r.status(name, index, depth, kind, "[%d] Call function: %s", index, a.Callee)
		return r.call(a.Callee, depth)

	case macro.SetVariable:
		msg, err := r.store.Assign(a.Name, a.Value, a.Type)
		switch {
		case errors.Is(err, vars.ErrEmptyName):
			return degraded(err.Error())
		case err != nil:
			return fatal(err)
		}
		r.status(name, index, depth, kind, "%s", msg)
		return success()

	case macro.IfCondition:
		result := r.store.Evaluate(a.Name, a.Op, a.Value, a.Type)
		r.status(name, index, depth, kind, "If: %s %s %s → %t", a.Name, a.Op, vars.Parse(a.Value, a.Type), result)
		return StepResult{OK: result}

	case macro.Unknown:
		r.status(name, index, depth, kind, "[%d] Unknown op: %s", index, a.Op)
		return degraded("unrecognized op " + a.Op)

	default:
		r.status(name, index, depth, kind, "[%d] Unknown op: %s", index, kind)
		return degraded("step has no action")
	}
}

func (r *run) click(t macro.ImageTarget) StepResult {
	var (
		region Region
		found  bool
	)
	err := guard("locate", func() (err error) {
		region, found, err = r.provider.Locate(r.ctx, t.Pattern, t.Confidence)
		return err
	})
	if err != nil {
		return fatal(err)
	}
	if !found {
		return degraded("pattern not found")
	}

	if err := guard("click", func() error { return r.provider.Click(r.ctx, region) }); err != nil {
		return fatal(err)
	}
	if err := sleep(r.ctx, t.MoveDuration); err != nil {
		return fatal(err)
	}
	return success()
}

func (r *run) wait(t macro.ImageTarget, appear bool) StepResult {
	var ok bool
	err := guard("wait", func() (err error) {
		ok, err = r.provider.WaitFor(r.ctx, t.Pattern, t.Timeout, t.PollInterval, t.Confidence, appear)
		return err
	})
	if err != nil {
		return fatal(err)
	}
	if !ok {
		return degraded("timed out")
	}
	return success()
}

// call runs callee to completion on the shared store. Reaching the end of the
// callee is success whatever branches it took; failures inside it are absorbed.
// Only cancellation escapes.
func (r *run) call(callee string, depth int) StepResult {
	if !r.program.Has(callee) {
		return degraded(fmt.Sprintf("%v: %q", ErrUnknownFunction, callee))
	}
	if depth+1 > r.config.MaxCallDepth {
		r.logger.Warn("Call depth limit reached", "callee", callee, "limit", r.config.MaxCallDepth)
		return degraded(fmt.Sprintf("%v (%d)", ErrCallDepth, r.config.MaxCallDepth))
	}

	err := r.execFunction(callee, depth+1)
	switch {
	case err == nil:
		return success()
	case isCancellation(err):
		return fatal(err)
	default:
		r.logger.Warn("Called function failed", "callee", callee, "error", err)
		return degraded(err.Error())
	}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
