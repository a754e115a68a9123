// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jobtree

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// childHandleBox boxes the parent handle for atomic publication.
type childHandleBox struct{ h ChildHandle }

// completingOutcome is the result of one attempt to drive the completion
// protocol.
type completingOutcome uint8

const (
	// completingAlready: another completion is in progress, or the job is
	// no longer incomplete.
	completingAlready completingOutcome = iota
	// completingWaitingChildren: this call owns the completion, and is now
	// waiting for children; a child's completion continues the protocol.
	completingWaitingChildren
	// completingRetry: CAS lost, re-read the state.
	completingRetry
	// completingTooLate: the finishing record is sealed (or the job is
	// terminal); the cause can no longer be recorded.
	completingTooLate
	// completingDone: the job reached a terminal state in this call.
	completingDone
)

// Job is a cancelable unit of asynchronous work in a parent/child tree.
// Create instances via [New], [NewSupervisor], or [NewDeferred]; the zero
// value is not usable.
//
// A job's lifecycle is: new (optional, see [WithLazyStart]) → active →
// cancelling (on failure or cancellation) → completing (waiting for
// children) → terminal. The public status accessors [Job.IsActive],
// [Job.IsCompleted] and [Job.IsCancelled] derive from the current state.
//
// All methods are safe for concurrent use.
type Job struct {
	state        stateCell
	parentHandle atomic.Pointer[childHandleBox]
	logger       *logiface.Logger[logiface.Event]
	hooks        Hooks
	done         chan struct{}

	scoped           bool
	handlesException bool
	onCancelComplete bool
}

// init prepares an embedded Job in place; the factories in this package
// call it exactly once, before the enclosing value escapes.
func (j *Job) init(cfg *jobOptions) {
	j.logger = cfg.logger
	j.hooks = cfg.hooks
	j.done = make(chan struct{})
	j.scoped = cfg.scoped
	j.handlesException = cfg.handlesException
	j.onCancelComplete = cfg.onCancelComplete == nil || *cfg.onCancelComplete
	if cfg.lazy {
		j.state.init(stateEmptyNew)
	} else {
		j.state.init(stateEmptyActive)
	}
	j.initParentJob(cfg.parent)
}

// initParentJob attaches this job to its parent, once, immediately after
// construction. The parent is started so it cannot discard children while
// lazy, and the returned handle is retained until this job is terminal.
func (j *Job) initParentJob(parent *Job) {
	if parent == nil {
		return
	}
	parent.Start()
	handle := parent.AttachChild(j)
	j.parentHandle.Store(&childHandleBox{h: handle})
	if j.IsCompleted() {
		handle.Dispose()
		j.parentHandle.Store(&childHandleBox{h: NonDisposableHandle})
	}
}

func (j *Job) loadParentHandle() ChildHandle {
	if box := j.parentHandle.Load(); box != nil {
		return box.h
	}
	return nil
}

// String returns a human-readable representation of the job and its state.
func (j *Job) String() string {
	return fmt.Sprintf("Job{%v}@%p", j.state.load().s, j)
}

// --- status ---

// IsActive reports whether the job has been started and has not yet
// completed nor begun cancelling.
func (j *Job) IsActive() bool {
	if inc, ok := j.state.load().s.(incomplete); ok {
		return inc.active()
	}
	return false
}

// IsCompleted reports whether the job has reached a terminal state.
func (j *Job) IsCompleted() bool {
	_, ok := j.state.load().s.(incomplete)
	return !ok
}

// IsCancelled reports whether the job completed exceptionally, or has a
// recorded cancellation cause while still finishing.
func (j *Job) IsCancelled() bool {
	switch s := j.state.load().s.(type) {
	case *completedExceptionally:
		return true
	case *finishing:
		return s.isCancelling()
	}
	return false
}

// Err returns nil while the job is neither cancelling nor failed, and the
// cancellation cause otherwise, always in cancellation form: a failure
// cause is wrapped in a [CancelledError] so the result is suitable for
// cooperative-cancellation checks. Analogous to [context.Context.Err].
func (j *Job) Err() error {
	switch s := j.state.load().s.(type) {
	case *finishing:
		if cause := s.loadRootCause(); cause != nil {
			return j.toCancellation(cause, "job is cancelling")
		}
	case *completedExceptionally:
		return j.toCancellation(s.cause, "job was cancelled")
	}
	return nil
}

func (j *Job) toCancellation(cause error, message string) error {
	if isCancellation(cause) {
		return cause
	}
	return &CancelledError{Message: message, Cause: cause, job: j}
}

// Done returns a channel that is closed once the job reaches a terminal
// state, after terminal-phase listeners have been notified.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Children returns a snapshot of the currently attached child jobs, in
// attachment order.
func (j *Job) Children() []*Job {
	switch s := j.state.load().s.(type) {
	case *node:
		if s.child != nil {
			return []*Job{s.child}
		}
	case incomplete:
		if list := s.nodes(); list != nil {
			var out []*Job
			for _, n := range list.snapshot() {
				if n.child != nil {
					out = append(out, n.child)
				}
			}
			return out
		}
	}
	return nil
}

// --- start ---

// Start transitions the job from new to active, invoking the OnStart hook
// exactly once. Returns true if this call performed the transition; false
// if the job was already active or is past that point.
func (j *Job) Start() bool {
	for {
		h := j.state.load()
		switch s := h.s.(type) {
		case *emptyState:
			if s.isActive {
				return false
			}
			if j.state.compareAndSwap(h, stateEmptyActive) {
				j.onStart()
				return true
			}
		case *inactiveList:
			if j.state.compareAndSwap(h, s.list) {
				j.onStart()
				return true
			}
		default:
			return false
		}
	}
}

func (j *Job) onStart() {
	j.logger.Trace().Stringer("job", j).Log("job started")
	if j.hooks.OnStart != nil {
		j.hooks.OnStart()
	}
}

// --- cancellation ---

// Cancel requests cancellation of the job with an optional cause. A nil
// cause records a default [CancelledError]. Once the job's finishing record
// is sealed the call is a no-op.
func (j *Job) Cancel(cause error) {
	j.cancelImpl(cause)
}

// CancelAndJoin cancels the job and waits for it to reach a terminal state.
func (j *Job) CancelAndJoin(ctx context.Context) error {
	j.cancelImpl(nil)
	return j.Join(ctx)
}

// cancelImpl is the shared entry point for external cancellation and
// parent-induced cancellation. Returns false if the cause arrived too late
// to be recorded.
func (j *Job) cancelImpl(cause error) bool {
	if j.onCancelComplete {
		// A job with no body completes directly with the cancellation
		// cause.
		outcome, _ := j.cancelMakeCompleting(cause)
		switch outcome {
		case completingWaitingChildren, completingDone:
			return true
		}
	}
	outcome, _ := j.makeCancelling(cause)
	return outcome != completingTooLate
}

func (j *Job) cancelMakeCompleting(cause error) (completingOutcome, jobState) {
	for {
		h := j.state.load()
		inc, ok := h.s.(incomplete)
		if !ok || !inc.active() {
			return completingAlready, nil
		}
		proposed := &completedExceptionally{cause: j.createCauseException(cause)}
		outcome, finalState := j.tryMakeCompleting(h, proposed)
		if outcome != completingRetry {
			return outcome, finalState
		}
	}
}

// makeCancelling records the cause and, on the first transition into the
// cancelling phase, runs cancellation notifications.
func (j *Job) makeCancelling(cause error) (completingOutcome, jobState) {
	var causeException error
	ensureCause := func() error {
		if causeException == nil {
			causeException = j.createCauseException(cause)
		}
		return causeException
	}
	for {
		h := j.state.load()
		switch s := h.s.(type) {
		case *finishing:
			s.mu.Lock()
			if s.isSealedLocked() {
				s.mu.Unlock()
				return completingTooLate, nil
			}
			wasCancelling := s.isCancelling()
			if cause != nil || !wasCancelling {
				s.addExceptionLocked(ensureCause())
			}
			var notifyRootCause error
			if !wasCancelling {
				notifyRootCause = s.loadRootCause()
			}
			s.mu.Unlock()
			if notifyRootCause != nil {
				j.notifyCancelling(s.list, notifyRootCause)
			}
			return completingAlready, nil
		case incomplete:
			if s.active() {
				if j.tryMakeCancelling(h, s, ensureCause()) {
					return completingAlready, nil
				}
				continue
			}
			// Not started: transition straight to terminal, the job will
			// never run.
			outcome, finalState := j.tryMakeCompleting(h, &completedExceptionally{cause: ensureCause()})
			if outcome == completingRetry {
				continue
			}
			return outcome, finalState
		default:
			// Terminal.
			return completingTooLate, nil
		}
	}
}

// tryMakeCancelling attempts the CAS into the cancelling phase. state must
// be active. Returns false to signal a re-read.
func (j *Job) tryMakeCancelling(h *stateHolder, state incomplete, rootCause error) bool {
	list := j.getOrPromoteCancellingList(h, state)
	if list == nil {
		return false
	}
	cancelling := newFinishing(list, false, rootCause)
	if !j.state.compareAndSwap(h, cancelling) {
		return false
	}
	j.notifyCancelling(list, rootCause)
	return true
}

// getOrPromoteCancellingList returns the state's listener list, promoting
// the empty and single-listener variants first. A nil return means a
// promotion CAS was attempted and the caller must re-read the state.
func (j *Job) getOrPromoteCancellingList(h *stateHolder, state incomplete) *nodeList {
	if list := state.nodes(); list != nil {
		return list
	}
	switch s := state.(type) {
	case *emptyState:
		if s.isActive {
			j.state.compareAndSwap(h, newNodeList())
		} else {
			j.state.compareAndSwap(h, &inactiveList{list: newNodeList()})
		}
	case *node:
		j.promoteSingleToList(h, s)
	}
	return nil
}

func (j *Job) promoteSingleToList(h *stateHolder, n *node) {
	list := newNodeList()
	list.addLast(n, 0)
	j.state.compareAndSwap(h, list)
}

// createCauseException resolves a possibly-nil cancellation cause.
func (j *Job) createCauseException(cause error) error {
	if cause == nil {
		return &CancelledError{Message: "job was cancelled", job: j}
	}
	return cause
}

// childCancellationCause derives the cause delivered to a child when this
// job cancels it: cancellations pass through unchanged, failures are
// wrapped so the child observes a cancellation (and does not re-report the
// failure as its own).
func (j *Job) childCancellationCause(cause error) error {
	if cause == nil {
		return &CancelledError{Message: "parent job completed", job: j}
	}
	if isCancellation(cause) {
		return cause
	}
	return &CancelledError{Message: "parent job is cancelling", Cause: cause, job: j}
}

// notifyCancelling runs the cancelling phase: the OnCancelling hook, phase
// closure, cancellation listeners in registration order, then parent
// notification.
func (j *Job) notifyCancelling(list *nodeList, cause error) {
	j.logger.Debug().Stringer("job", j).Err(cause).Log("job cancelling")
	if j.hooks.OnCancelling != nil {
		j.hooks.OnCancelling(cause)
	}
	list.closePhase(listBitCancellation)
	j.notifyHandlers(list, cause, true)
	j.cancelParent(cause)
}

// notifyHandlers invokes the snapshot of list in registration order,
// restricted to cancellation listeners during the cancelling phase. A
// panicking handler does not stop the pass: panics are aggregated onto a
// [CompletionHandlerError] and routed to the handler-panic hook afterwards.
func (j *Job) notifyHandlers(list *nodeList, cause error, cancellingPhase bool) {
	var panics *CompletionHandlerError
	for _, n := range list.snapshot() {
		if cancellingPhase && !n.onCancelling {
			continue
		}
		if err := j.invokeNode(n, cause); err != nil {
			if panics == nil {
				panics = &CompletionHandlerError{Cause: err}
			} else {
				panics.Suppressed = append(panics.Suppressed, err)
			}
		}
	}
	if panics != nil {
		j.handleCompletionHandlerPanic(panics)
	}
}

// invokeNode claims and runs a single listener, converting a panic to an
// error return.
func (j *Job) invokeNode(n *node, cause error) (panicked error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = asError(r)
		}
	}()
	n.invoke(cause)
	return nil
}

func (j *Job) handleCompletionHandlerPanic(err error) {
	if b := j.logger.Warning(); b.Enabled() {
		b.Stringer("job", j).Err(err).Log("completion handler panicked")
	}
	if j.hooks.HandleCompletionHandlerPanic != nil {
		j.hooks.HandleCompletionHandlerPanic(err)
		return
	}
	panic(err)
}

// cancelParent reports this job's demise upward, returning whether the
// parent (or the scoped-job contract) accepted responsibility for the
// exception. Cancellations are always "accepted": they are a normal way to
// finish and are never reported as unhandled.
func (j *Job) cancelParent(cause error) bool {
	if j.scoped {
		return true
	}
	isCancel := isCancellation(cause)
	parent := j.loadParentHandle()
	if parent == nil || parent == NonDisposableHandle {
		return isCancel
	}
	return parent.ChildCancelled(cause) || isCancel
}

// childCancelled applies this job's policy to a child's failure: accept
// cancellations silently, take a real failure as this job's own
// cancellation cause. The [Hooks.ChildCancelled] override (see
// [NewSupervisor]) replaces the policy wholesale.
func (j *Job) childCancelled(cause error) bool {
	if j.hooks.ChildCancelled != nil {
		return j.hooks.ChildCancelled(cause)
	}
	if isCancellation(cause) {
		return true
	}
	return j.cancelImpl(cause) && j.handlesException
}

// parentCancelled is the typed notification a child receives when its
// parent cancels: cause is already in cancellation form.
func (j *Job) parentCancelled(cause error) {
	j.cancelImpl(cause)
}

// --- completion ---

// makeCompleting attempts to move the job to a terminal state with the
// proposed update. Returns false if another completion already owns the
// transition.
func (j *Job) makeCompleting(proposed any) bool {
	for {
		h := j.state.load()
		outcome, _ := j.tryMakeCompleting(h, proposed)
		switch outcome {
		case completingAlready:
			return false
		case completingRetry:
			continue
		default:
			return true
		}
	}
}

// tryMakeCompleting performs one attempt of the completion protocol
// described by the finishing record: claim the completing flag, record the
// proposed exception, notify cancellation if this is the first cause, then
// wait for children before finalizing.
func (j *Job) tryMakeCompleting(h *stateHolder, proposed any) (completingOutcome, jobState) {
	state, ok := h.s.(incomplete)
	if !ok {
		return completingAlready, nil
	}

	// Fast path: no listener list, nothing exceptional proposed, and not a
	// child handle occupying the cell. A single CAS reaches terminal.
	if _, exceptional := proposed.(*completedExceptionally); !exceptional {
		simple := false
		switch s := state.(type) {
		case *emptyState:
			simple = true
		case *node:
			simple = s.child == nil
		}
		if simple {
			if finalState, ok := j.tryFinalizeSimpleState(h, state, proposed); ok {
				return completingDone, finalState
			}
			return completingRetry, nil
		}
	}

	list := j.getOrPromoteCancellingList(h, state)
	if list == nil {
		return completingRetry, nil
	}
	fin, wasFinishing := state.(*finishing)
	if !wasFinishing {
		fin = newFinishing(list, false, nil)
	}

	var notifyRootCause error
	fin.mu.Lock()
	if fin.completing.Load() {
		fin.mu.Unlock()
		return completingAlready, nil
	}
	fin.completing.Store(true)
	if !wasFinishing && !j.state.compareAndSwap(h, fin) {
		fin.mu.Unlock()
		return completingRetry, nil
	}
	wasCancelling := fin.isCancelling()
	if ce, ok := proposed.(*completedExceptionally); ok {
		fin.addExceptionLocked(ce.cause)
	}
	if !wasCancelling {
		notifyRootCause = fin.loadRootCause()
	}
	fin.mu.Unlock()

	if notifyRootCause != nil {
		j.notifyCancelling(list, notifyRootCause)
	}

	if child := list.childAfter(nil); child != nil && j.tryWaitForChild(fin, child, proposed) {
		return completingWaitingChildren, nil
	}
	list.closePhase(listBitChildren)
	// Children that sneaked in before the phase closed are re-detected and
	// waited for; the close/re-check window is the acknowledged
	// non-linearizable corner of the protocol.
	if child := list.childAfter(nil); child != nil && j.tryWaitForChild(fin, child, proposed) {
		return completingWaitingChildren, nil
	}
	return completingDone, j.finalizeFinishingState(fin, proposed)
}

// tryFinalizeSimpleState is the single-CAS completion of a job with at most
// one (non-child) listener and no recorded failure.
func (j *Job) tryFinalizeSimpleState(h *stateHolder, state incomplete, proposed any) (jobState, bool) {
	finalState := &completedNormally{value: proposed}
	if !j.state.compareAndSwap(h, finalState) {
		return nil, false
	}
	if j.hooks.OnCancelling != nil {
		j.hooks.OnCancelling(nil)
	}
	j.onCompletionInternal(proposed, nil)
	j.completeStateFinalization(state, finalState)
	return finalState, true
}

// tryWaitForChild registers a one-shot continuation on the next incomplete
// child. Returns true once a registration succeeds; false when every
// remaining child is already complete.
func (j *Job) tryWaitForChild(fin *finishing, child *node, proposed any) bool {
	for child != nil {
		childJob := child.child
		lastChild := child
		cont := &node{job: childJob, handler: func(error) {
			j.continueCompleting(fin, lastChild, proposed)
		}}
		if childJob.invokeOnCompletionInternal(false, false, cont) != NonDisposableHandle {
			return true
		}
		child = fin.list.childAfter(child)
	}
	return false
}

// continueCompleting resumes the completion protocol after a child
// completes.
func (j *Job) continueCompleting(fin *finishing, lastChild *node, proposed any) {
	if next := fin.list.childAfter(lastChild); next != nil && j.tryWaitForChild(fin, next, proposed) {
		return
	}
	fin.list.closePhase(listBitChildren)
	if next := fin.list.childAfter(lastChild); next != nil && j.tryWaitForChild(fin, next, proposed) {
		return
	}
	j.finalizeFinishingState(fin, proposed)
}

// finalizeFinishingState seals the record, aggregates the accumulated
// exceptions, hands the final exception off to the parent or the job
// exception hook, and installs the terminal state. The completing flag
// guarantees exclusivity: exactly one goroutine per job gets here.
func (j *Job) finalizeFinishingState(fin *finishing, proposed any) jobState {
	proposedCE, _ := proposed.(*completedExceptionally)
	var proposedException error
	if proposedCE != nil {
		proposedException = proposedCE.cause
	}

	fin.mu.Lock()
	wasCancelling := fin.isCancelling()
	exceptions := fin.sealLocked(proposedException)
	finalException := finalRootCause(j, exceptions, wasCancelling)
	var suppressed []error
	if finalException != nil {
		suppressed = suppressedExceptions(finalException, exceptions)
	}
	fin.mu.Unlock()

	var finalState jobState
	switch {
	case finalException == nil:
		finalState = &completedNormally{value: proposed}
	case proposedCE != nil && finalException == proposedCE.cause:
		proposedCE.suppressed = suppressed
		finalState = proposedCE
	default:
		finalState = &completedExceptionally{cause: finalException, suppressed: suppressed}
	}

	if finalException != nil {
		handled := j.cancelParent(finalException) || j.handleJobException(finalException)
		if handled {
			finalState.(*completedExceptionally).handled.Store(true)
		}
	}
	if !wasCancelling && j.hooks.OnCancelling != nil {
		j.hooks.OnCancelling(finalException)
	}
	if ce, ok := finalState.(*completedExceptionally); ok {
		j.onCompletionInternal(nil, ce.cause)
	} else {
		j.onCompletionInternal(proposed, nil)
	}

	// The CAS cannot fail: the completing flag excludes every other
	// transition out of fin.
	h := j.state.load()
	j.state.compareAndSwap(h, finalState)

	j.completeStateFinalization(fin, finalState)
	return finalState
}

// finalRootCause picks the job's final exception from the sealed list:
// failures beat cancellations, a detailed timeout beats the generic one
// that fired first, and a cancelling job with no recorded exception gets a
// default cancellation.
func finalRootCause(j *Job, exceptions []error, wasCancelling bool) error {
	if len(exceptions) == 0 {
		if wasCancelling {
			return &CancelledError{Message: "job was cancelled", job: j}
		}
		return nil
	}
	for _, e := range exceptions {
		if !isCancellation(e) {
			return e
		}
	}
	first := exceptions[0]
	if _, ok := first.(*TimeoutError); ok {
		for _, e := range exceptions[1:] {
			if _, ok := e.(*TimeoutError); ok && e != first {
				return e
			}
		}
	}
	return first
}

// suppressedExceptions collects the non-root, non-cancellation exceptions,
// deduplicated by identity.
func suppressedExceptions(rootCause error, exceptions []error) []error {
	if len(exceptions) <= 1 {
		return nil
	}
	var out []error
	for _, e := range exceptions {
		if e == rootCause || isCancellation(e) {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen == e {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, e)
		}
	}
	return out
}

func (j *Job) handleJobException(cause error) bool {
	if j.hooks.HandleJobException != nil {
		return j.hooks.HandleJobException(cause)
	}
	if b := j.logger.Err(); b.Enabled() {
		b.Stringer("job", j).Err(cause).Log("unhandled job exception")
	}
	return false
}

func (j *Job) onCompletionInternal(value any, cause error) {
	if j.hooks.OnCompletionInternal != nil {
		j.hooks.OnCompletionInternal(value, cause)
	}
}

// completeStateFinalization runs the terminal phase: dispose the parent
// handle (detaching this job from the parent's wait set), notify
// terminal-phase listeners in registration order, then release Done.
func (j *Job) completeStateFinalization(state incomplete, finalState jobState) {
	// Done must release even if a terminal-phase listener panics.
	defer close(j.done)

	if handle := j.loadParentHandle(); handle != nil {
		handle.Dispose()
		j.parentHandle.Store(&childHandleBox{h: NonDisposableHandle})
	}

	var cause error
	if ce, ok := finalState.(*completedExceptionally); ok {
		cause = ce.cause
	}

	if n, ok := state.(*node); ok {
		if err := j.invokeNode(n, cause); err != nil {
			j.handleCompletionHandlerPanic(&CompletionHandlerError{Cause: err})
		}
	} else if list := state.nodes(); list != nil {
		list.closePhase(listBitCompletion)
		j.notifyHandlers(list, cause, false)
	}

	j.logger.Debug().Stringer("job", j).Err(cause).Log("job completed")
}

// --- listener registration ---

// InvokeOnCompletion registers handler to run once, on the terminal phase,
// with the job's completion cause (nil for normal completion). If the job
// is already terminal the handler runs synchronously before the method
// returns. The returned handle unregisters the handler; disposal after
// invocation is a no-op.
func (j *Job) InvokeOnCompletion(handler CompletionHandler) DisposableHandle {
	return j.invokeOnCompletionInternal(false, true, &node{job: j, handler: handler})
}

// InvokeOnCancelling registers handler to fire on entry to the cancelling
// phase with the root cause, or once on the terminal phase with a nil cause
// if the job completes without ever cancelling. If cancellation has already
// begun the handler runs synchronously with the root cause.
func (j *Job) InvokeOnCancelling(handler CompletionHandler) DisposableHandle {
	return j.invokeOnCompletionInternal(true, true, &node{job: j, handler: handler})
}

func (j *Job) invokeOnCompletionInternal(onCancelling, invokeImmediately bool, n *node) DisposableHandle {
	n.onCancelling = onCancelling
	for {
		h := j.state.load()
		switch s := h.s.(type) {
		case *emptyState:
			if s.isActive {
				if j.state.compareAndSwap(h, n) {
					return n
				}
			} else {
				j.state.compareAndSwap(h, &inactiveList{list: newNodeList()})
			}
		case *node:
			j.promoteSingleToList(h, s)
		case incomplete:
			list := s.nodes()
			if onCancelling {
				var rootCause error
				if f, ok := h.s.(*finishing); ok {
					rootCause = f.loadRootCause()
				}
				if rootCause != nil {
					// Cancellation already happened; this listener can only
					// be told about it right now.
					if invokeImmediately {
						n.invoke(rootCause)
					}
					return NonDisposableHandle
				}
				if list.addLast(n, listBitCancellation|listBitCompletion) {
					return n
				}
			} else if list.addLast(n, listBitCompletion) {
				return n
			}
			// A phase closed between the state read and the append; the
			// next read observes the cause of the closure.
		default:
			// Terminal.
			if invokeImmediately {
				var cause error
				if ce, ok := h.s.(*completedExceptionally); ok {
					cause = ce.cause
				}
				n.invoke(cause)
			}
			return NonDisposableHandle
		}
	}
}

// removeNode detaches a disposed listener: a single-listener state swings
// back to empty-active, a listed node unlinks in place.
func (j *Job) removeNode(n *node) {
	for {
		h := j.state.load()
		switch s := h.s.(type) {
		case *node:
			if s != n {
				return
			}
			if j.state.compareAndSwap(h, stateEmptyActive) {
				return
			}
		case incomplete:
			if list := s.nodes(); list != nil {
				list.remove(n)
			}
			return
		default:
			return
		}
	}
}

// AttachChild registers child as a dependent of this job: this job will not
// complete before child does, and cancellation of this job cancels child.
//
// The attachment is honored even when it races cancellation: a child that
// arrives after the cancelling phase began is still added to the wait set,
// but is immediately cancelled with this job's root cause. A parent that no
// longer accepts children (it has stopped waiting for new children while
// finalizing, or it is terminal) refuses the attachment (returning
// [NonDisposableHandle]), in which case the child is cancelled with the
// parent's current cause, or a synthesized cancellation if there is none.
//
// The returned handle must be disposed (it is, automatically, by children
// constructed via [WithParent]) once the child completes.
func (j *Job) AttachChild(child *Job) ChildHandle {
	n := &node{job: j, child: child, onCancelling: true}
	for {
		h := j.state.load()
		switch s := h.s.(type) {
		case *emptyState:
			if s.isActive {
				if j.state.compareAndSwap(h, n) {
					return n
				}
			} else {
				j.state.compareAndSwap(h, &inactiveList{list: newNodeList()})
			}
		case *node:
			j.promoteSingleToList(h, s)
		case incomplete:
			list := s.nodes()
			if list.addLast(n, listBitCancellation|listBitChildren|listBitCompletion) {
				return n
			}
			// Cancellation or completion began first. Joining just the
			// wait set keeps the structured-completion guarantee; either
			// way the child learns the current cause immediately.
			added := list.addLast(n, listBitChildren|listBitCompletion)
			n.invoke(stateCancellationCause(j.state.load().s))
			if added {
				return n
			}
			return NonDisposableHandle
		default:
			// Terminal.
			var cause error
			if ce, ok := h.s.(*completedExceptionally); ok {
				cause = ce.cause
			}
			n.invoke(cause)
			return NonDisposableHandle
		}
	}
}

// --- join ---

// Join starts the job if necessary and blocks until it reaches a terminal
// state, or until ctx is done (in which case the wait's listener is
// disposed and ctx's error returned). Join does not propagate the job's own
// failure; inspect [Job.Err] for that.
func (j *Job) Join(ctx context.Context) error {
	j.Start()
	ch := make(chan struct{})
	handle := j.invokeOnCompletionInternal(false, true, &node{job: j, handler: func(error) { close(ch) }})
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		handle.Dispose()
		select {
		case <-ch:
			return nil
		default:
		}
		return ctx.Err()
	}
}
