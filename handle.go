package jobtree

// DisposableHandle is a registration that can be undone. Disposal is
// idempotent, and a handle whose listener already fired disposes to a
// no-op.
type DisposableHandle interface {
	// Dispose unregisters the underlying listener.
	Dispose()
}

// ChildHandle is the parent-side registration of an attached child. The
// child retains it for the duration of its lifetime: disposal (at the
// child's terminal state) detaches the child from the parent's wait set,
// and ChildCancelled is the back-edge used to report the child's failure
// upward.
type ChildHandle interface {
	DisposableHandle
	// ChildCancelled reports the child's failure to the parent, returning
	// whether the parent accepted responsibility for the exception.
	ChildCancelled(cause error) bool
}

// nonDisposable is returned from registrations that never happened (the job
// was already terminal) or that can no longer be undone.
type nonDisposable struct{}

func (nonDisposable) Dispose() {}

func (nonDisposable) ChildCancelled(cause error) bool { return false }

// NonDisposableHandle is the inert handle: Dispose does nothing, and as a
// [ChildHandle] it never accepts an exception.
var NonDisposableHandle ChildHandle = nonDisposable{}
