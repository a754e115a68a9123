package jobtree

// NewSupervisor creates a supervisor: a [CompletableJob] whose children
// fail independently. A child's failure is ignored by the supervisor (it
// does not cancel the supervisor or, through it, the child's siblings);
// cancellation of a child is accepted silently, as for any parent.
//
// Failures must therefore be handled inside each child (the failing child
// still reports the exception through its own last-resort hook).
// Cancelling the supervisor itself still cancels all of its children.
//
// A [Hooks.ChildCancelled] override provided via [WithHooks] is replaced by
// the supervisor policy.
func NewSupervisor(opts ...JobOption) (*CompletableJob, error) {
	cfg, err := resolveJobOptions(opts)
	if err != nil {
		return nil, err
	}
	cfg.hooks.ChildCancelled = isCancellation
	j := &CompletableJob{}
	j.Job.init(cfg)
	return j, nil
}
