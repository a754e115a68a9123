package jobtree

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect_onJoin(t *testing.T) {
	t.Parallel()

	t.Run("first completion wins", func(t *testing.T) {
		t.Parallel()

		a := mustNew(t)
		b := mustNew(t)

		sel := NewSelect()
		var winner string
		a.OnJoin(sel, func() { winner = "a" })
		b.OnJoin(sel, func() { winner = "b" })

		b.Complete()
		require.NoError(t, sel.Wait(context.Background()))
		assert.Equal(t, "b", winner)

		// The losing clause's later completion is dropped.
		a.Complete()
		assert.Equal(t, "b", winner)
	})

	t.Run("already terminal selects immediately", func(t *testing.T) {
		t.Parallel()

		a := mustNew(t)
		a.Cancel(nil)

		sel := NewSelect()
		var won bool
		a.OnJoin(sel, func() { won = true })

		require.NoError(t, sel.Wait(context.Background()))
		assert.True(t, won)
	})

	t.Run("ctx abandons the select", func(t *testing.T) {
		t.Parallel()

		a := mustNew(t) // never completes
		sel := NewSelect()
		a.OnJoin(sel, func() { t.Error("clause fired after abandon") })

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := sel.Wait(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		// Late completion must not run the action.
		a.Complete()
		time.Sleep(10 * time.Millisecond)
	})
}

func TestSelect_onAwait(t *testing.T) {
	t.Parallel()

	t.Run("value delivered", func(t *testing.T) {
		t.Parallel()

		d := mustNewDeferred[int](t)
		other := mustNew(t)

		sel := NewSelect()
		var got int
		var gotErr error
		d.OnAwait(sel, func(v int, err error) { got, gotErr = v, err })
		other.OnJoin(sel, func() { t.Error("wrong clause selected") })

		d.Complete(5)
		require.NoError(t, sel.Wait(context.Background()))
		require.NoError(t, gotErr)
		assert.Equal(t, 5, got)
	})

	t.Run("failure delivered", func(t *testing.T) {
		t.Parallel()

		d := mustNewDeferred[int](t)
		sel := NewSelect()
		var gotErr error
		d.OnAwait(sel, func(_ int, err error) { gotErr = err })

		d.CompleteExceptionally(errFailure)
		require.NoError(t, sel.Wait(context.Background()))
		assert.Equal(t, errFailure, gotErr)
	})
}

func TestSelect_startsLazyJobs(t *testing.T) {
	t.Parallel()

	var started int
	j := mustNew(t, WithLazyStart(true), WithHooks(Hooks{OnStart: func() { started++ }}))

	sel := NewSelect()
	j.OnJoin(sel, func() {})
	assert.Equal(t, 1, started)

	j.Complete()
	require.NoError(t, sel.Wait(context.Background()))
}
