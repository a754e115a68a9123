package jobtree

import (
	"sync"
	"testing"
)

// Test_stateCell_CAS tests the compare-and-swap discipline of the state
// cell.
func Test_stateCell_CAS(t *testing.T) {
	t.Parallel()

	t.Run("successful transition", func(t *testing.T) {
		t.Parallel()

		var c stateCell
		c.init(stateEmptyNew)

		h := c.load()
		if h.s != jobState(stateEmptyNew) {
			t.Fatalf("unexpected initial state: %v", h.s)
		}
		if !c.compareAndSwap(h, stateEmptyActive) {
			t.Fatal("CAS failed with current holder")
		}
		if c.load().s != jobState(stateEmptyActive) {
			t.Errorf("state not installed: %v", c.load().s)
		}
	})

	t.Run("stale holder loses", func(t *testing.T) {
		t.Parallel()

		var c stateCell
		c.init(stateEmptyNew)

		stale := c.load()
		if !c.compareAndSwap(stale, stateEmptyActive) {
			t.Fatal("first CAS failed")
		}
		if c.compareAndSwap(stale, stateEmptyNew) {
			t.Error("stale CAS succeeded")
		}
		if c.load().s != jobState(stateEmptyActive) {
			t.Errorf("state changed by stale CAS: %v", c.load().s)
		}
	})

	t.Run("exactly one concurrent winner", func(t *testing.T) {
		t.Parallel()

		var c stateCell
		c.init(stateEmptyNew)
		h := c.load()

		const numGoroutines = 100
		var wg sync.WaitGroup
		wg.Add(numGoroutines)
		wins := make(chan int, numGoroutines)

		for i := 0; i < numGoroutines; i++ {
			go func(i int) {
				defer wg.Done()
				if c.compareAndSwap(h, stateEmptyActive) {
					wins <- i
				}
			}(i)
		}

		wg.Wait()
		close(wins)

		var n int
		for range wins {
			n++
		}
		if n != 1 {
			t.Errorf("expected exactly 1 CAS winner, got %d", n)
		}
	})
}

func Test_jobState_String(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		state jobState
		want  string
	}{
		{stateEmptyNew, "New"},
		{stateEmptyActive, "Active"},
		{&inactiveList{list: newNodeList()}, "New"},
		{newNodeList(), "Active"},
		{newFinishing(newNodeList(), false, nil), "Active"},
		{newFinishing(newNodeList(), true, nil), "Completing"},
		{newFinishing(newNodeList(), false, &CancelledError{}), "Cancelling"},
		{&completedNormally{}, "Completed"},
		{&completedExceptionally{cause: &CancelledError{}}, "Cancelled"},
		{&completedExceptionally{cause: errFailure}, "Failed"},
	} {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("%T: got %q, want %q", tc.state, got, tc.want)
		}
	}
}

// Test_emptyState_singletons verifies the sentinel identity relied upon by
// the fast paths.
func Test_emptyState_singletons(t *testing.T) {
	t.Parallel()

	if stateEmptyNew.active() {
		t.Error("stateEmptyNew must be inactive")
	}
	if !stateEmptyActive.active() {
		t.Error("stateEmptyActive must be active")
	}
	if stateEmptyNew.nodes() != nil || stateEmptyActive.nodes() != nil {
		t.Error("empty states must not carry a list")
	}
}

func Test_stateCancellationCause(t *testing.T) {
	t.Parallel()

	cause := &CancelledError{Message: "test"}

	if got := stateCancellationCause(stateEmptyActive); got != nil {
		t.Errorf("empty state: got %v", got)
	}
	if got := stateCancellationCause(newFinishing(newNodeList(), false, cause)); got != cause {
		t.Errorf("finishing: got %v, want root cause", got)
	}
	if got := stateCancellationCause(newFinishing(newNodeList(), true, nil)); got != nil {
		t.Errorf("completing without cause: got %v", got)
	}
	if got := stateCancellationCause(&completedExceptionally{cause: cause}); got != cause {
		t.Errorf("terminal: got %v, want cause", got)
	}
	if got := stateCancellationCause(&completedNormally{value: 1}); got != nil {
		t.Errorf("completed normally: got %v", got)
	}
}
