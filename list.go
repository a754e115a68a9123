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

// Phase-closure bits of a nodeList. Appends name the bits that must still be
// clear; closing a phase atomically rejects the corresponding appends while
// traversal remains safe.
const (
	// listBitCompletion is set when terminal-phase notification begins.
	listBitCompletion uint32 = 1 << iota
	// listBitChildren is set when the completion protocol stops accepting
	// new descendants to wait for.
	listBitChildren
	// listBitCancellation is set when cancelling-phase notification begins.
	listBitCancellation
)

// CompletionHandler is invoked with the job's completion cause: nil for
// normal completion, the cancellation or failure cause otherwise.
//
// Handlers must be fast, non-blocking, and must not panic; a panicking
// handler does not prevent the remaining handlers from running, but its
// panic is wrapped in a [CompletionHandlerError] and routed to the
// handler-panic hook on the notifying goroutine.
type CompletionHandler func(cause error)

// node is a single registered listener. It is simultaneously:
//   - a list element of a nodeList
//   - the SingleListener state variant (a job with exactly one listener
//     holds the node directly in its state cell)
//   - the [DisposableHandle] returned to the registrant
//
// A node with a non-nil child is a child handle: instead of a generic
// handler it delivers a typed parent-cancelled notification to the child,
// and it additionally implements [ChildHandle].
type node struct {
	job     *Job
	handler CompletionHandler
	child   *Job

	// list, prev, next, removed are guarded by list.mu once appended.
	list *nodeList
	prev *node
	next *node

	// invoked claims the node: a listener fires at most once across its
	// lifetime, whichever phase gets to it first.
	invoked atomic.Bool

	removed bool
	// onCancelling selects the phase: true fires on entry to the cancelling
	// phase, false on the terminal phase. Either kind fires on the terminal
	// phase if its own phase never happened (normal completion).
	onCancelling bool
}

// node is the SingleListener state.
func (n *node) active() bool     { return true }
func (n *node) nodes() *nodeList { return nil }

func (n *node) String() string { return "Active" }

// invoke claims and fires the node. Safe to call multiple times and from
// multiple goroutines; only the first call runs the handler.
//
// A child handle translates the cause through the owning job's
// child-cancellation rule and cancels the child; a nil cause (the parent is
// past the point of adopting children) still cancels, with a synthesized
// cause.
func (n *node) invoke(cause error) {
	if !n.invoked.CompareAndSwap(false, true) {
		return
	}
	if n.child != nil {
		n.child.parentCancelled(n.job.childCancellationCause(cause))
		return
	}
	n.handler(cause)
}

// Dispose unregisters the listener. Idempotent; disposing an
// already-invoked node is a no-op.
func (n *node) Dispose() {
	n.job.removeNode(n)
}

// ChildCancelled reports a child's failure to the owning (parent) job,
// returning whether the parent accepted responsibility for it. Only
// meaningful on nodes returned from [Job.AttachChild].
func (n *node) ChildCancelled(cause error) bool {
	return n.job.childCancelled(cause)
}

// nodeList is the listener list of a job: insertion-ordered, supporting
// append-at-tail, unlink-in-place, and phase closure.
//
// Structural mutation (append, unlink, close) is serialized on a small
// mutex held for O(1) work; traversal snapshots the membership under the
// mutex and invokes handlers outside it, so handlers may freely re-enter
// the list (dispose themselves, register more). The per-node invoked claim
// keeps notification at-most-once even when a snapshot races a dispose.
//
// This trades the original op-descriptor-free lock-free list for a simpler
// mutex-guarded structure; the state cell itself remains CAS-only.
type nodeList struct {
	mu   sync.Mutex
	bits atomic.Uint32
	head node // sentinel; head.job/handler are never set
}

// nodeList is the ListActive state.
func (l *nodeList) active() bool     { return true }
func (l *nodeList) nodes() *nodeList { return l }

func (l *nodeList) String() string { return "Active" }

func newNodeList() *nodeList {
	l := &nodeList{}
	l.head.next = &l.head
	l.head.prev = &l.head
	return l
}

// addLast appends n at the tail, provided none of the forbid bits are
// closed. Returns false, leaving n untouched, if the phase gate rejects the
// append.
func (l *nodeList) addLast(n *node, forbid uint32) bool {
	l.mu.Lock()
	if l.bits.Load()&forbid != 0 {
		l.mu.Unlock()
		return false
	}
	n.list = l
	n.prev = l.head.prev
	n.next = &l.head
	l.head.prev.next = n
	l.head.prev = n
	l.mu.Unlock()
	return true
}

// closePhase closes the given phase bit. Appends requiring the bit clear
// fail from this point on; traversal and removal are unaffected.
func (l *nodeList) closePhase(bit uint32) {
	l.mu.Lock()
	l.bits.Store(l.bits.Load() | bit)
	l.mu.Unlock()
}

func (l *nodeList) closed(bit uint32) bool {
	return l.bits.Load()&bit != 0
}

// remove unlinks n in place. The unlinked node keeps its forward pointer so
// an in-progress child cursor holding it can still advance.
func (l *nodeList) remove(n *node) {
	l.mu.Lock()
	if !n.removed && n.list == l {
		n.removed = true
		n.prev.next = n.next
		n.next.prev = n.prev
	}
	l.mu.Unlock()
}

// snapshot collects the current membership in insertion order.
func (l *nodeList) snapshot() []*node {
	l.mu.Lock()
	var out []*node
	for n := l.head.next; n != &l.head; n = n.next {
		out = append(out, n)
	}
	l.mu.Unlock()
	return out
}

// childAfter walks forward from the given node (or from the head, if from
// is nil), skipping non-child and removed nodes, and returns the next child
// handle, or nil once the sentinel is reached.
func (l *nodeList) childAfter(from *node) *node {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := from
	if cur == nil {
		cur = &l.head
	}
	for cur = cur.next; cur != &l.head; cur = cur.next {
		if cur.child != nil && !cur.removed {
			return cur
		}
	}
	return nil
}
