// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jobtree

import (
	"sync"
	"sync/atomic"
)

// sealedMarker is the terminal value of finishing.exceptions: once sealed,
// no further exceptions may be recorded.
type sealedMarker struct{}

var exceptionsSealed = &sealedMarker{}

// errorHolder boxes an error for atomic publication of the root cause.
type errorHolder struct{ err error }

// finishing is the state of a job that is cancelling and/or completing. It
// aggregates every failure observed until finalization seals the record.
//
// Mutations of rootCause and exceptions are serialized on mu, held only for
// O(1) work; rootCause is additionally published atomically so state
// queries (active, cancelled) stay lock-free.
type finishing struct {
	list *nodeList

	mu sync.Mutex
	// rootCause is the first recorded failure; non-nil means the job is
	// cancelling. Written under mu, read via loadRootCause.
	rootCause atomic.Pointer[errorHolder]
	// completing transitions false→true exactly once, under mu; only the
	// goroutine that set it proceeds to finalize.
	completing atomic.Bool
	// exceptions accumulates failures beyond the root cause:
	// nil | error | []error | exceptionsSealed. Guarded by mu.
	exceptions any
}

func newFinishing(list *nodeList, completing bool, rootCause error) *finishing {
	f := &finishing{list: list}
	f.completing.Store(completing)
	if rootCause != nil {
		f.rootCause.Store(&errorHolder{err: rootCause})
	}
	return f
}

// finishing is an incomplete state: active until a root cause is recorded.
func (f *finishing) active() bool     { return f.loadRootCause() == nil }
func (f *finishing) nodes() *nodeList { return f.list }

func (f *finishing) String() string {
	switch {
	case f.isCancelling():
		return "Cancelling"
	case f.completing.Load():
		return "Completing"
	default:
		return "Active"
	}
}

func (f *finishing) loadRootCause() error {
	if h := f.rootCause.Load(); h != nil {
		return h.err
	}
	return nil
}

// isCancelling reports whether a root cause has been recorded.
func (f *finishing) isCancelling() bool {
	return f.loadRootCause() != nil
}

// isSealedLocked reports whether the record no longer accepts exceptions.
// Call with mu held.
func (f *finishing) isSealedLocked() bool {
	return f.exceptions == exceptionsSealed
}

// addExceptionLocked records a failure: the first becomes the root cause,
// the rest accumulate, skipping duplicate identity. Call with mu held, on
// an unsealed record.
func (f *finishing) addExceptionLocked(err error) {
	cause := f.loadRootCause()
	if cause == nil {
		f.rootCause.Store(&errorHolder{err: err})
		return
	}
	if err == cause {
		return
	}
	switch cur := f.exceptions.(type) {
	case nil:
		f.exceptions = err
	case error:
		if err == cur {
			return
		}
		f.exceptions = []error{cur, err}
	case []error:
		for _, e := range cur {
			if e == err {
				return
			}
		}
		f.exceptions = append(cur, err)
	}
}

// sealLocked closes the record and returns the full ordered exception list:
// root cause first, then the accumulated rest, then proposed if distinct.
// Call with mu held; must be called at most once.
func (f *finishing) sealLocked(proposed error) []error {
	var out []error
	if cause := f.loadRootCause(); cause != nil {
		out = append(out, cause)
	}
	switch cur := f.exceptions.(type) {
	case error:
		out = append(out, cur)
	case []error:
		out = append(out, cur...)
	}
	f.exceptions = exceptionsSealed
	if proposed != nil {
		dup := false
		for _, e := range out {
			if e == proposed {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, proposed)
		}
	}
	return out
}
