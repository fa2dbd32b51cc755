package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticedb/resolver/internal/schema"
)

func TestDispatchRunsCallbacksInPriorityOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.Register(&Plugin{
		Name:     "second",
		Priority: 10,
		Callbacks: map[Phase]map[string]Callback{
			OnCreation: {"User": func(ctx context.Context, evt *Event) error {
				order = append(order, "second")
				return nil
			}},
		},
	})
	d.Register(&Plugin{
		Name:     "first",
		Priority: 1,
		Callbacks: map[Phase]map[string]Callback{
			OnCreation: {"User": func(ctx context.Context, evt *Event) error {
				order = append(order, "first")
				return nil
			}},
		},
	})

	err := d.Dispatch(context.Background(), OnCreation, "User", &Event{Table: "User"})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatchStopsOnFirstError(t *testing.T) {
	d := NewDispatcher()
	var ran bool

	d.Register(&Plugin{
		Name: "fails", Priority: 0,
		Callbacks: map[Phase]map[string]Callback{
			OnCreation: {"User": func(ctx context.Context, evt *Event) error {
				return errors.New("boom")
			}},
		},
	})
	d.Register(&Plugin{
		Name: "never runs", Priority: 1,
		Callbacks: map[Phase]map[string]Callback{
			OnCreation: {"User": func(ctx context.Context, evt *Event) error {
				ran = true
				return nil
			}},
		},
	})

	err := d.Dispatch(context.Background(), OnCreation, "User", &Event{Table: "User"})
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestDispatchIgnoresPluginsWithoutMatchingCallback(t *testing.T) {
	d := NewDispatcher()
	d.Register(&Plugin{Name: "irrelevant"})

	err := d.Dispatch(context.Background(), OnCreation, "User", &Event{Table: "User"})
	assert.NoError(t, err)
}

func TestCallbackMayMutateRequestInPlace(t *testing.T) {
	d := NewDispatcher()
	d.Register(&Plugin{
		Name: "handshake",
		Callbacks: map[Phase]map[string]Callback{
			OnProcessing: {"User": func(ctx context.Context, evt *Event) error {
				evt.Request["invited"] = "mutated"
				return nil
			}},
		},
	})

	evt := &Event{Table: "User", Request: map[string]any{"invited": "original"}}
	require.NoError(t, d.Dispatch(context.Background(), OnProcessing, "User", evt))
	assert.Equal(t, "mutated", evt.Request["invited"])
}

func TestRunOnErrorNeverPropagatesHookFailure(t *testing.T) {
	d := NewDispatcher()
	d.Register(&Plugin{
		Name: "logger",
		OnError: func(ctx context.Context, failure error, meta RequestMeta) error {
			return errors.New("hook itself failed")
		},
	})

	assert.NotPanics(t, func() {
		d.RunOnError(context.Background(), errors.New("original failure"), RequestMeta{})
	})
}

func TestRunOnSuccessAbortsOnHookError(t *testing.T) {
	d := NewDispatcher()
	d.Register(&Plugin{
		Name: "validator",
		OnSuccess: func(ctx context.Context, results map[string]any, meta RequestMeta) error {
			return errors.New("postcondition failed")
		},
	})

	err := d.RunOnSuccess(context.Background(), map[string]any{}, RequestMeta{})
	assert.Error(t, err)
}

func TestRunPreRequisitesStopsAtFirstFailure(t *testing.T) {
	d := NewDispatcher()
	var secondRan bool
	d.Register(&Plugin{
		Name:         "a",
		PreRequisite: func(tables schema.DeclaredSchema) error { return errors.New("missing table") },
	})
	d.Register(&Plugin{
		Name: "b",
		PreRequisite: func(tables schema.DeclaredSchema) error {
			secondRan = true
			return nil
		},
	})

	err := d.RunPreRequisites(schema.DeclaredSchema{})
	assert.Error(t, err)
	assert.False(t, secondRan)
}
