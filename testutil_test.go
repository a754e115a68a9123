package jobtree

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errFailure = errors.New("boom")

// counter is a concurrency-safe invocation recorder for completion
// handlers.
type counter struct {
	mu     sync.Mutex
	count  int
	causes []error
}

func (c *counter) handler(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	c.causes = append(c.causes, cause)
}

func (c *counter) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *counter) cause(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.causes[i]
}

// waitCompleted polls until the job reaches a terminal state, failing the
// test after a generous deadline.
func waitCompleted(t *testing.T, j *Job) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !j.IsCompleted() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %v to complete", j)
		}
		time.Sleep(time.Millisecond)
	}
}

func mustNew(t *testing.T, opts ...JobOption) *CompletableJob {
	t.Helper()
	j, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return j
}
