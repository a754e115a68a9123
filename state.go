// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jobtree

import (
	"sync/atomic"
)

// jobState is the content of a [Job]'s single atomic state cell.
//
// State Machine:
//
//	emptyNew ─────────────→ emptyActive          [Start]
//	emptyNew ─────────────→ inactiveList         [listener registered]
//	inactiveList ─────────→ *nodeList            [Start]
//	emptyActive ──────────→ *node                [single listener registered]
//	*node / emptyActive ──→ *nodeList            [list promotion]
//	any incomplete ───────→ *finishing           [cancel / complete]
//	any incomplete ───────→ terminal             [fast-path complete]
//	*finishing ───────────→ terminal             [finalize]
//
// State Transition Rules:
//   - The cell changes ONLY via compareAndSwap (single-word CAS on a fresh
//     holder allocation; no ABA)
//   - A terminal state (completedNormally, completedExceptionally) never
//     transitions further
//   - The listener list identity is preserved across promotion into
//     *finishing; handlers registered before cancellation keep their
//     registration order
type jobState interface {
	// String returns a human-readable representation of the state.
	String() string
}

// incomplete is implemented by every non-terminal state variant.
type incomplete interface {
	jobState
	// active reports whether the job is running work (or may start to).
	// A finishing state counts as active until a root cause is recorded.
	active() bool
	// nodes returns the attached listener list, or nil if the state holds
	// at most one listener.
	nodes() *nodeList
}

// stateHolder boxes a jobState so heterogeneous variants can live in one
// atomic pointer. Each CAS installs a fresh holder, making holder identity a
// unique witness of the observed state.
type stateHolder struct{ s jobState }

// stateCell is the lock-free state machine cell.
//
// PERFORMANCE: Pure atomic pointer operations, no mutex. Reads are acquire,
// writes are release (sync/atomic semantics).
type stateCell struct {
	v atomic.Pointer[stateHolder]
}

func (c *stateCell) init(s jobState) {
	c.v.Store(&stateHolder{s: s})
}

// load returns the current holder; holder.s is the observed state.
func (c *stateCell) load() *stateHolder {
	return c.v.Load()
}

// compareAndSwap installs s if the cell still holds old.
func (c *stateCell) compareAndSwap(old *stateHolder, s jobState) bool {
	return c.v.CompareAndSwap(old, &stateHolder{s: s})
}

// emptyState is an incomplete state with no listeners. The two variants are
// package-level singletons; the fast paths CAS directly between them and the
// terminal states without allocating an empty state per job (each CAS still
// installs a fresh stateHolder).
type emptyState struct {
	isActive bool
}

var (
	// stateEmptyNew: created, not started, no listeners.
	stateEmptyNew = &emptyState{isActive: false}
	// stateEmptyActive: started, no listeners.
	stateEmptyActive = &emptyState{isActive: true}
)

func (s *emptyState) active() bool     { return s.isActive }
func (s *emptyState) nodes() *nodeList { return nil }

func (s *emptyState) String() string {
	if s.isActive {
		return "Active"
	}
	return "New"
}

// inactiveList holds a listener list for a job that has not been started.
// Once a list exists the state can never go back to emptyNew; Start swaps
// the wrapper out for the list itself.
type inactiveList struct {
	list *nodeList
}

func (s *inactiveList) active() bool     { return false }
func (s *inactiveList) nodes() *nodeList { return s.list }
func (s *inactiveList) String() string   { return "New" }

// completedNormally is the terminal success state.
type completedNormally struct {
	value any
}

func (s *completedNormally) String() string { return "Completed" }

// completedExceptionally is the terminal failure state, covering both
// cancellation and error. It doubles as the "proposed update" carrier while
// a completion is in flight.
type completedExceptionally struct {
	cause error
	// suppressed holds additional failures aggregated during finalization,
	// deduplicated by identity, cancellations excluded.
	suppressed []error
	// handled records whether the cause was accepted by a parent or by the
	// job exception hook.
	handled atomic.Bool
}

func (s *completedExceptionally) String() string {
	if isCancellation(s.cause) {
		return "Cancelled"
	}
	return "Failed"
}

// stateCancellationCause extracts the recorded cancellation cause of a
// state, or nil: the root cause for a cancelling finishing record, the
// terminal cause for completedExceptionally.
func stateCancellationCause(s jobState) error {
	switch v := s.(type) {
	case *finishing:
		return v.loadRootCause()
	case *completedExceptionally:
		return v.cause
	}
	return nil
}
