// Package jobtree implements the core of a structured-concurrency runtime
// for Go: a cancelable, observable [Job] organized into a parent/child tree,
// where a parent never completes before its children.
//
// # Architecture
//
// Each [Job] is a lock-free state machine built around a single atomic state
// cell. Transitions happen exclusively via compare-and-swap, with contention
// resolved by retry loops. Listeners (completion handlers, cancellation
// handlers, and child handles) live in an insertion-ordered list attached to
// the state, and are notified in well-defined phases:
//
//  1. Cancelling phase: entered at most once, when a root cause is first
//     recorded. Cancellation handlers and children are notified, then the
//     parent is informed.
//  2. Terminal phase: entered exactly once, after all children have
//     completed. Remaining handlers are notified and the job's parent handle
//     is disposed.
//
// Cancellation propagates down the tree (a cancelled parent cancels its
// children) and failures propagate up (a failed child cancels its parent,
// unless the parent is a supervisor). Multiple failures observed while a job
// is completing are aggregated: the first non-cancellation failure becomes
// the root cause, the rest are retained as suppressed errors.
//
// # Job Variants
//
//   - [New] creates a [CompletableJob], a job with no body of its own whose
//     completion is driven by [CompletableJob.Complete] and
//     [CompletableJob.CompleteExceptionally].
//   - [NewSupervisor] creates a supervisor: a parent that is not cancelled
//     by the failure of one of its children.
//   - [NewDeferred] creates a [Deferred], a completable job carrying a typed
//     result retrievable via [Deferred.Await].
//
// # Thread Safety
//
// All operations are safe to call from any goroutine:
//   - State transitions are single CAS operations on the state cell
//   - Exception aggregation is serialized on a record-local mutex held for
//     O(1) work
//   - [Job.Join] and [Deferred.Await] block the calling goroutine only; the
//     wait is cancellable via [context.Context], and an abandoned wait
//     disposes its listener
//
// # Usage
//
//	parent, err := jobtree.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	child, err := jobtree.New(jobtree.WithParent(&parent.Job))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	child.InvokeOnCompletion(func(cause error) {
//	    log.Printf("child done: %v", cause)
//	})
//
//	parent.Cancel(nil) // cancels child, then parent
//	_ = parent.Join(context.Background())
//
// # Error Types
//
// The package distinguishes cancellation from failure:
//   - [CancelledError]: a "normal" termination signal; never reported as an
//     unhandled failure
//   - [TimeoutError]: a typed cancellation carrying deadline identity
//   - [CompletionHandlerError]: wraps a panic raised by a completion
//     handler; never becomes the job's own cause (multi-error, Go 1.20+
//     compatible)
//   - [PanicError]: wraps non-error panic values recovered from handlers
//
// All error types implement the standard [error] interface and expose their
// causes to [errors.Is] and [errors.As] via Unwrap ([CompletionHandlerError]
// uses the multi-error form). [CancelledError], [TimeoutError] and
// [CompletionHandlerError] also match by type via Is().
package jobtree
