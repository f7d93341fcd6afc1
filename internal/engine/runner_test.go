package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeeftor/qmp-macro/internal/macro"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunnerStartAndWait(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: set("a", "1")},
			{Action: set("b", "2")},
		},
	}, "Main")

	rn := NewRunner(New(newFakeProvider(), DefaultConfig()), 0)
	run, err := rn.Start(context.Background(), p, "Main")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	var events []Event
	for ev := range run.Events() {
		events = append(events, ev)
	}
	out := run.Wait()

	require.Equal(t, Completed, out.State)
	assert.Equal(t, run.ID, out.RunID)
	assert.Equal(t, Completed, run.State())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventFinished, last.Type)
	assert.Equal(t, "Macro completed.", last.Message)
	for _, ev := range events {
		assert.Equal(t, run.ID, ev.RunID)
	}
	assert.Nil(t, rn.Active())
}

func TestRunnerRejectsSecondRun(t *testing.T) {
	release := make(chan struct{})
	fp := newFakeProvider("P")
	fp.onWait = func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {{Action: imageStep(macro.KindWaitAppear, "P")}},
	}, "Main")

	rn := NewRunner(New(fp, DefaultConfig()), 0)
	first, err := rn.Start(context.Background(), p, "Main")
	require.NoError(t, err)

	_, err = rn.Start(context.Background(), p, "Main")
	assert.ErrorIs(t, err, ErrRunActive)
	assert.Same(t, first, rn.Active())

	close(release)
	assert.Equal(t, Completed, first.Wait().State)

	second, err := rn.Start(context.Background(), p, "Main")
	require.NoError(t, err)
	assert.Equal(t, Completed, second.Wait().State)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRunnerCancel(t *testing.T) {
	started := make(chan struct{})
	fp := newFakeProvider()
	fp.onWait = func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	p := buildProgram(t, map[string][]macro.Step{
		"Main": {
			{Action: imageStep(macro.KindWaitAppear, "P")},
			{Action: set("after", "1")},
		},
	}, "Main")

	rn := NewRunner(New(fp, DefaultConfig()), 0)
	run, err := rn.Start(context.Background(), p, "Main")
	require.NoError(t, err)

	<-started
	run.Cancel()

	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	out := run.Wait()
	assert.Equal(t, Aborted, out.State)
	assert.NotContains(t, out.Variables, "after")
}

func TestRunnerStartValidation(t *testing.T) {
	p := buildProgram(t, map[string][]macro.Step{"Empty": {}}, "Empty")
	rn := NewRunner(New(newFakeProvider(), DefaultConfig()), 0)

	_, err := rn.Start(context.Background(), p, "Empty")
	assert.ErrorIs(t, err, ErrEmptyFunction)

	_, err = rn.Start(context.Background(), p, "Missing")
	assert.ErrorIs(t, err, ErrUnknownFunction)

	assert.Nil(t, rn.Active())
}

func TestRunnerDropsEventsWhenFull(t *testing.T) {
	steps := make([]macro.Step, 20)
	for i := range steps {
		steps[i] = macro.Step{Action: set("n", "+=1")}
	}
	p := buildProgram(t, map[string][]macro.Step{"Main": steps}, "Main")

	rn := NewRunner(New(newFakeProvider(), DefaultConfig()), 1)
	run, err := rn.Start(context.Background(), p, "Main")
	require.NoError(t, err)

	out := run.Wait()
	assert.Equal(t, Completed, out.State)
	assert.Equal(t, "20", out.Variables["n"])
	assert.Positive(t, run.Dropped())

	for range run.Events() {
	}
}
