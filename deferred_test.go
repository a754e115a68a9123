package jobtree

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNewDeferred[T any](t *testing.T, opts ...JobOption) *Deferred[T] {
	t.Helper()
	d, err := NewDeferred[T](opts...)
	if err != nil {
		t.Fatalf("NewDeferred: %v", err)
	}
	return d
}

func TestDeferred_await(t *testing.T) {
	t.Parallel()

	t.Run("value", func(t *testing.T) {
		t.Parallel()

		d := mustNewDeferred[string](t)
		go func() {
			time.Sleep(10 * time.Millisecond)
			d.Complete("success")
		}()

		got, err := d.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "success", got)
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()

		d := mustNewDeferred[string](t)
		require.True(t, d.CompleteExceptionally(errFailure))

		got, err := d.Await(context.Background())
		assert.Equal(t, errFailure, err)
		assert.Zero(t, got)
	})

	t.Run("cancellation", func(t *testing.T) {
		t.Parallel()

		d := mustNewDeferred[int](t)
		d.Cancel(nil)

		_, err := d.Await(context.Background())
		var ce *CancelledError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("abandoned wait", func(t *testing.T) {
		t.Parallel()

		d := mustNewDeferred[int](t)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := d.Await(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, d.IsCompleted())
	})
}

// TestDeferred_awaitFanOut: every concurrent waiter observes the value.
func TestDeferred_awaitFanOut(t *testing.T) {
	t.Parallel()

	d := mustNewDeferred[int](t)

	const numWaiters = 10
	var wg sync.WaitGroup
	wg.Add(numWaiters)
	results := make([]int, numWaiters)

	for i := 0; i < numWaiters; i++ {
		go func(idx int) {
			defer wg.Done()
			v, err := d.Await(context.Background())
			if err != nil {
				t.Errorf("waiter %d: %v", idx, err)
				return
			}
			results[idx] = v
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	require.True(t, d.Complete(42))
	wg.Wait()

	for i, v := range results {
		if v != 42 {
			t.Errorf("waiter %d got %d", i, v)
		}
	}
}

// TestDeferred_lateBinding: awaiting after completion returns immediately.
func TestDeferred_lateBinding(t *testing.T) {
	t.Parallel()

	d := mustNewDeferred[string](t)
	require.True(t, d.Complete("late"))

	got, err := d.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", got)
}

func TestDeferred_result(t *testing.T) {
	t.Parallel()

	d := mustNewDeferred[int](t)

	_, err := d.Result()
	assert.ErrorIs(t, err, ErrIncomplete)

	require.True(t, d.Complete(7))
	got, err := d.Result()
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	// First completion wins.
	assert.False(t, d.Complete(8))
	got, _ = d.Result()
	assert.Equal(t, 7, got)
}

func TestDeferred_completeAfterCancel(t *testing.T) {
	t.Parallel()

	d := mustNewDeferred[int](t)
	d.Cancel(nil)
	require.True(t, d.IsCancelled())

	assert.False(t, d.Complete(1))
	_, err := d.Result()
	require.Error(t, err)
}

func TestDeferred_structuredCompletion(t *testing.T) {
	t.Parallel()

	d := mustNewDeferred[int](t)
	child := mustNew(t, WithParent(&d.Job))

	require.True(t, d.Complete(9))
	assert.False(t, d.IsCompleted(), "deferred completed before its child")

	// The value is not observable until the children are done.
	_, err := d.Result()
	assert.ErrorIs(t, err, ErrIncomplete)

	require.True(t, child.Complete())
	got, err := d.Result()
	require.NoError(t, err)
	assert.Equal(t, 9, got)
}
