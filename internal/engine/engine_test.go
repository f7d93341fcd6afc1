package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeftor/qmp-macro/internal/macro"
	"github.com/jeeftor/qmp-macro/internal/vars"
)

// fakeProvider answers from a fixed set of visible patterns
type fakeProvider struct {
	mu       sync.Mutex
	visible  map[string]bool
	clicks   []Region
	waits    []string
	clickErr error
	locErr   error
	panicOn  string
	onWait   func(ctx context.Context) error
}

func newFakeProvider(visible ...string) *fakeProvider {
	f := &fakeProvider{visible: make(map[string]bool)}
	for _, p := range visible {
		f.visible[p] = true
	}
	return f
}

func (f *fakeProvider) Locate(ctx context.Context, pattern string, confidence *float64) (Region, bool, error) {
	if f.panicOn == pattern {
		panic("boom")
	}
	if f.locErr != nil {
		return Region{}, false, f.locErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.visible[pattern] {
		return Region{}, false, nil
	}
	return Region{X: 10, Y: 20, Width: 30, Height: 40}, true, nil
}

func (f *fakeProvider) Click(ctx context.Context, region Region) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, region)
	return f.clickErr
}

func (f *fakeProvider) WaitFor(ctx context.Context, pattern string, timeout, poll time.Duration, confidence *float64, appear bool) (bool, error) {
	f.mu.Lock()
	f.waits = append(f.waits, pattern)
	visible := f.visible[pattern]
	hook := f.onWait
	f.mu.Unlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return false, err
		}
	}
	return visible == appear, nil
}

func imageStep(kind macro.Kind, pattern string) macro.Action {
	t := macro.NewImageTarget(pattern)
	t.MoveDuration = 0
	switch kind {
	case macro.KindClickImage:
		return macro.ClickImage{ImageTarget: t}
	case macro.KindWaitAppear:
		return macro.WaitAppear{ImageTarget: t}
	default:
		return macro.WaitDisappear{ImageTarget: t}
	}
}

func set(name, value string) macro.Action {
	return macro.SetVariable{Name: name, Type: vars.Int, Value: value}
}

// buildProgram creates functions in order, each with the given steps
func buildProgram(t *testing.T, fns map[string][]macro.Step, order ...string) *macro.Program {
	t.Helper()
	p := macro.NewProgram()
	for _, name := range order {
		if name != macro.DefaultFunctionName {
			require.NoError(t, p.CreateFunction(name))
		} else {
			require.NoError(t, p.SetCurrent(name))
		}
		for _, s := range fns[name] {
			_, err := p.AddStep(s)
			require.NoError(t, err)
		}
	}
	return p
}

// trace records the step events of a run as "Function:index" entries
type trace struct {
	steps  []string
	status []string
}

func (tr *trace) sink(ev Event) {
	switch ev.Type {
	case EventStep:
		tr.steps = append(tr.steps, ev.Function+":"+strconv.Itoa(ev.Index))
	case EventStatus:
		tr.status = append(tr.status, ev.Message)
	}
}

func TestRunSequential(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: set("a", "1")},
			{Action: set("b", "2")},
			{Action: set("c", "3")},
		},
	}, "Main")

	var tr trace
	out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", tr.sink)

	require.Equal(t, Completed, out.State)
	assert.NoError(t, out.Err)
	assert.Equal(t, []string{"Main:1", "Main:2", "Main:3"}, tr.steps)
	assert.Equal(t, 3, out.Steps)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, out.Variables)
	assert.Equal(t, []string{"a = 1", "b = 2", "c = 3"}, tr.status)
}

func TestRunJumpOnSuccess(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: set("a", "1"), NextOnSuccess: macro.At(3)},
			{Action: set("skipped", "1")},
			{Action: set("c", "3")},
		},
	}, "Main")

	var tr trace
	out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", tr.sink)

	require.Equal(t, Completed, out.State)
	assert.Equal(t, []string{"Main:1", "Main:3"}, tr.steps)
	assert.NotContains(t, out.Variables, "skipped")
}

func TestRunTargetPastEndTerminates(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: set("a", "1"), NextOnSuccess: macro.At(99)},
			{Action: set("b", "2")},
		},
	}, "Main")

	var tr trace
	out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", tr.sink)

	require.Equal(t, Completed, out.State)
	assert.Equal(t, []string{"Main:1"}, tr.steps)
}

func TestRunNonNumericTargetFallsThrough(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: set("a", "1"), NextOnSuccess: "done"},
			{Action: set("b", "2"), NextOnSuccess: "0"},
			{Action: set("c", "3"), NextOnSuccess: "-2"},
		},
	}, "Main")

	var tr trace
	out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", tr.sink)

	require.Equal(t, Completed, out.State)
	assert.Equal(t, []string{"Main:1", "Main:2", "Main:3"}, tr.steps)
}

func TestRunNonPositiveConditionTargetFallsThrough(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: macro.IfCondition{Name: "x", Type: vars.Bool, Op: vars.OpNotEqual, Value: "true"}, NextOnSuccess: "-1"},
			{Action: macro.IfCondition{Name: "x", Type: vars.Bool, Op: vars.OpEqual, Value: "true"}, NextOnFailure: "0"},
			{Action: set("y", "1")},
		},
	}, "Main")

	var tr trace
	out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", tr.sink)

	require.Equal(t, Completed, out.State)
	assert.Equal(t, []string{"Main:1", "Main:2", "Main:3"}, tr.steps)
	assert.Equal(t, "1", out.Variables["y"])
	assert.Contains(t, tr.status, "If: x != true → true")
	assert.Contains(t, tr.status, "If: x == true → false")
}

func TestRunLoopWithCondition(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: set("n", "+=1")},
			{Action: macro.IfCondition{Name: "n", Type: vars.Int, Op: vars.OpNotEqual, Value: "3"}, NextOnSuccess: macro.At(1)},
		},
	}, "Main")

	var tr trace
	out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", tr.sink)

	require.Equal(t, Completed, out.State)
	assert.Equal(t, "3", out.Variables["n"])
	assert.Equal(t, 6, out.Steps)
	assert.Contains(t, tr.status, "If: n != 3 → false")
}

func TestRunWaitTimeoutBranches(t *testing.T) {
	wait := imageStep(macro.KindWaitAppear, "P")
	click := imageStep(macro.KindClickImage, "P")
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: wait, NextOnFailure: macro.At(3)},
			{Action: click, NextOnSuccess: macro.At(4)},
			{Action: set("x", "0")},
		},
	}, "Main")

	t.Run("pattern never appears", func(t *testing.T) {
		var tr trace
		fp := newFakeProvider()
		out := New(fp, DefaultConfig()).Run(context.Background(), p, "Main", tr.sink)

		require.Equal(t, Completed, out.State)
		assert.Equal(t, []string{"Main:1", "Main:3"}, tr.steps)
		assert.Equal(t, map[string]string{"x": "0"}, out.Variables)
		assert.Empty(t, fp.clicks)
	})

	t.Run("pattern appears and click succeeds", func(t *testing.T) {
		var tr trace
		fp := newFakeProvider("P")
		out := New(fp, DefaultConfig()).Run(context.Background(), p, "Main", tr.sink)

		require.Equal(t, Completed, out.State)
		assert.Equal(t, []string{"Main:1", "Main:2"}, tr.steps)
		assert.Empty(t, out.Variables)
		require.Len(t, fp.clicks, 1)
		x, y := fp.clicks[0].Center()
		assert.Equal(t, 25, x)
		assert.Equal(t, 40, y)
		assert.Equal(t, "[1] Wait appear: P", tr.status[0])
		assert.Equal(t, "[2] Click image: P", tr.status[1])
	})
}

func TestRunWaitDisappear(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: imageStep(macro.KindWaitDisappear, "gone.png"), NextOnSuccess: macro.At(3)},
			{Action: set("failed", "1")},
			{Action: set("ok", "1")},
		},
	}, "Main")

	out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", nil)
	require.Equal(t, Completed, out.State)
	assert.Equal(t, map[string]string{"ok": "1"}, out.Variables)
}

func TestRunCallFunction(t *testing.T) {
	t.Run("callee failure still succeeds", func(t *testing.T) {
		p := buildProgram(t, map[string][]macro.Step{
			"Main": {
				{Action: macro.CallFunction{Callee: "Sub"}, NextOnSuccess: macro.At(3), NextOnFailure: macro.At(2)},
				{Action: set("call_failed", "1")},
				{Action: set("after", "1")},
			},
			"Sub": {
				{Action: imageStep(macro.KindClickImage, "missing.png")},
				{Action: set("inner", "7")},
			},
		}, "Main", "Sub")

		var tr trace
		out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", tr.sink)

		require.Equal(t, Completed, out.State)
		assert.Equal(t, []string{"Sub:1", "Sub:2", "Main:1", "Main:3"}, tr.steps)
		assert.Equal(t, map[string]string{"inner": "7", "after": "1"}, out.Variables)
		assert.Contains(t, tr.status, "[1] Call function: Sub")
	})

	t.Run("unknown callee fails the step", func(t *testing.T) {
		p := buildProgram(t, map[string][]macro.Step{
			"Main": {
				{Action: macro.CallFunction{Callee: "Nope"}, NextOnFailure: macro.At(3)},
				{Action: set("reached", "1")},
				{Action: set("failed", "1")},
			},
		}, "Main")

		out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", nil)
		require.Equal(t, Completed, out.State)
		assert.Equal(t, map[string]string{"failed": "1"}, out.Variables)
	})

	t.Run("callee shares the store", func(t *testing.T) {
		p := buildProgram(t, map[string][]macro.Step{
			"Main": {
				{Action: set("n", "5")},
				{Action: macro.CallFunction{Callee: "Inc"}},
				{Action: macro.CallFunction{Callee: "Inc"}},
			},
			"Inc": {
				{Action: set("n", "+=1")},
			},
		}, "Main", "Inc")

		out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", nil)
		require.Equal(t, Completed, out.State)
		assert.Equal(t, "7", out.Variables["n"])
	})
}

func TestRunCallDepthLimit(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{
		"Loop": {
			{Action: set("depth", "+=1")},
			{Action: macro.CallFunction{Callee: "Loop"}},
		},
	}, "Loop")

	out := New(newFakeProvider(), Config{MaxCallDepth: 4}).Run(context.Background(), p, "Loop", nil)

	require.Equal(t, Completed, out.State)
	assert.Equal(t, "5", out.Variables["depth"])
}

func TestRunIncrementNonIntegerFails(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: macro.SetVariable{Name: "s", Type: vars.String, Value: "hello"}},
			{Action: set("s", "+=1")},
			{Action: set("after", "1")},
		},
	}, "Main")

	out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", nil)

	require.Equal(t, Failed, out.State)
	assert.ErrorIs(t, out.Err, vars.ErrNotInteger)
	assert.NotContains(t, out.Variables, "after")
}

func TestRunIncrementNonIntegerInsideCallee(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: macro.SetVariable{Name: "s", Type: vars.String, Value: "hello"}},
			{Action: macro.CallFunction{Callee: "Bad"}},
			{Action: set("after", "1")},
		},
		"Bad": {
			{Action: set("s", "+=1")},
		},
	}, "Main", "Bad")

	out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", nil)

	require.Equal(t, Completed, out.State)
	assert.Equal(t, "1", out.Variables["after"])
}

func TestRunEmptyVariableNameFailsStep(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: set("", "1"), NextOnFailure: macro.At(3)},
			{Action: set("reached", "1")},
			{Action: set("failed", "1")},
		},
	}, "Main")

	out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", nil)
	require.Equal(t, Completed, out.State)
	assert.Equal(t, map[string]string{"failed": "1"}, out.Variables)
}

func TestRunProviderErrorFails(t *testing.T) {
	fp := newFakeProvider("P")
	fp.clickErr = errors.New("socket closed")
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {{Action: imageStep(macro.KindClickImage, "P")}},
	}, "Main")

	var finished Event
	out := New(fp, DefaultConfig()).Run(context.Background(), p, "Main", func(ev Event) {
		if ev.Type == EventFinished {
			finished = ev
		}
	})

	require.Equal(t, Failed, out.State)
	assert.ErrorContains(t, out.Err, "socket closed")
	assert.Equal(t, Failed, finished.State)
	assert.True(t, strings.HasPrefix(finished.Message, "Error: "))
}

func TestRunProviderPanicFails(t *testing.T) {
	fp := newFakeProvider()
	fp.panicOn = "bad.png"
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {{Action: imageStep(macro.KindClickImage, "bad.png")}},
	}, "Main")

	out := New(fp, DefaultConfig()).Run(context.Background(), p, "Main", nil)

	require.Equal(t, Failed, out.State)
	var pe *ProviderPanicError
	require.ErrorAs(t, out.Err, &pe)
	assert.Equal(t, "locate", pe.Op)
}

func TestRunUnknownOp(t *testing.T) {
	doc := macro.Document{
		CurrentFunc: "Main",
		Functions: macro.FunctionTable{{
			Name: "Main",
			Steps: []macro.StepRecord{
				{Op: "DoSomethingNew", NextFail: macro.At(3)},
				{Op: "SetVariable"},
				{Op: "SetVariable", VarName: ptr("marker"), VarValue: ptr("1"), VarType: "int"},
			},
		}},
	}
	p := macro.FromDocument(doc)

	var tr trace
	out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), p, "Main", tr.sink)

	require.Equal(t, Completed, out.State)
	assert.Equal(t, []string{"Main:1", "Main:3"}, tr.steps)
	assert.Equal(t, "[1] Unknown op: DoSomethingNew", tr.status[0])
}

func TestRunUnknownEntry(t *testing.T) {
	out := New(newFakeProvider(), DefaultConfig()).Run(context.Background(), macro.NewProgram(), "Missing", nil)
	assert.Equal(t, Failed, out.State)
	assert.ErrorIs(t, out.Err, ErrUnknownFunction)
}

func TestRunCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := buildProgram(t, map[string][]macro.Step{
		"Main": {{Action: set("a", "1")}},
	}, "Main")

	out := New(newFakeProvider(), DefaultConfig()).Run(ctx, p, "Main", nil)
	assert.Equal(t, Aborted, out.State)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Empty(t, out.Variables)
}

func TestRunCancelInsideCalleeAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fp := newFakeProvider()
	fp.onWait = func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: macro.CallFunction{Callee: "Sub"}},
			{Action: set("after", "1")},
		},
		"Sub": {{Action: imageStep(macro.KindWaitAppear, "P")}},
	}, "Main", "Sub")

	out := New(fp, DefaultConfig()).Run(ctx, p, "Main", nil)
	assert.Equal(t, Aborted, out.State)
	assert.NotContains(t, out.Variables, "after")
}

func TestRunUsesSnapshot(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: macro.CallFunction{Callee: "Edit"}},
			{Action: set("a", "1")},
		},
		"Edit": {},
	}, "Main", "Edit")

	e := New(newFakeProvider(), DefaultConfig())
	var once sync.Once
	out := e.Run(context.Background(), p, "Main", func(ev Event) {
		once.Do(func() {
			require.NoError(t, p.SetCurrent("Main"))
			p.ClearSteps()
		})
	})

	require.Equal(t, Completed, out.State)
	assert.Equal(t, "1", out.Variables["a"])
	steps, _ := p.Steps("Main")
	assert.Empty(t, steps)
}

func ptr(s string) *string { return &s }
