package jobtree

import (
	"context"
	"sync"
	"sync/atomic"
)

// Select arbitrates between multiple job events: the first clause to fire
// claims the select, every later notification is dropped, and the losing
// clauses' listeners are disposed once the winner is consumed.
//
// Clauses are registered via [Job.OnJoin] and [Deferred.OnAwait], then the
// outcome is consumed with [Select.Wait]:
//
//	sel := jobtree.NewSelect()
//	a.OnJoin(sel, func() { fmt.Println("a finished first") })
//	b.OnJoin(sel, func() { fmt.Println("b finished first") })
//	if err := sel.Wait(ctx); err != nil {
//	    return err
//	}
//
// A Select is single-shot; create a new one per wait.
type Select struct {
	claimed atomic.Bool
	ch      chan func()
	mu      sync.Mutex
	handles []DisposableHandle
}

// NewSelect creates an empty Select.
func NewSelect() *Select {
	return &Select{ch: make(chan func(), 1)}
}

// trySelect attempts to claim the select for action. Only the first claim
// succeeds; the channel send cannot block, as the claim excludes every
// other sender.
func (s *Select) trySelect(action func()) bool {
	if !s.claimed.CompareAndSwap(false, true) {
		return false
	}
	s.ch <- action
	return true
}

func (s *Select) register(h DisposableHandle) {
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
}

// dispose unregisters every clause listener.
func (s *Select) dispose() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()
	for _, h := range handles {
		h.Dispose()
	}
}

// Wait blocks until a clause claims the select, runs the winning action on
// the calling goroutine, and disposes the rest. If ctx is done first the
// select is claimed for nobody, so in-flight notifications are dropped.
func (s *Select) Wait(ctx context.Context) error {
	select {
	case action := <-s.ch:
		s.dispose()
		action()
		return nil
	case <-ctx.Done():
		s.claimed.Store(true)
		s.dispose()
		return ctx.Err()
	}
}

// OnJoin registers a select clause that fires when the job completes,
// starting the job if necessary.
func (j *Job) OnJoin(s *Select, action func()) {
	j.Start()
	h := j.invokeOnCompletionInternal(false, true, &node{job: j, handler: func(error) {
		s.trySelect(action)
	}})
	s.register(h)
}

// OnAwait registers a select clause that fires when the deferred completes,
// delivering the completion value or failure to action.
func (d *Deferred[T]) OnAwait(s *Select, action func(value T, err error)) {
	d.Start()
	h := d.invokeOnCompletionInternal(false, true, &node{job: &d.Job, handler: func(error) {
		value, err := d.Result()
		s.trySelect(func() { action(value, err) })
	}})
	s.register(h)
}
