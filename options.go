// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jobtree

import (
	"github.com/joeycumines/logiface"
)

// Hooks is the extension vtable of a [Job]. Every field is optional; nil
// fields fall back to the documented default. Hooks are invoked on whatever
// goroutine drives the corresponding transition.
type Hooks struct {
	// OnStart runs exactly once, when the job transitions from new to
	// active.
	OnStart func()

	// OnCancelling runs exactly once, with the root cause on entry to the
	// cancelling phase, or with nil during finalization of a job that
	// completed without ever cancelling.
	OnCancelling func(cause error)

	// OnCompletionInternal runs once during finalization: before the
	// terminal state is installed when the job went through the finishing
	// record, and just after it on the single-CAS fast path of a job with at
	// most one plain listener completing normally. value is the completion
	// value (nil
	// unless completing a deferred normally); cause is the final exception,
	// nil for normal completion.
	OnCompletionInternal func(value any, cause error)

	// HandleJobException is the last-resort consumer of a failure that no
	// parent accepted. Returning true marks the exception handled.
	// Default: log via the job's logger, report unhandled (false).
	HandleJobException func(cause error) bool

	// HandleCompletionHandlerPanic consumes a [CompletionHandlerError]
	// produced by a panicking listener. Default: re-panic on the notifying
	// goroutine.
	HandleCompletionHandlerPanic func(err error)

	// ChildCancelled overrides the policy applied when a child reports a
	// failure. Returning true accepts the exception without affecting this
	// job. Default: cancellations are accepted silently, failures cancel
	// this job. Supervisors install an override that ignores failures.
	ChildCancelled func(cause error) bool
}

// jobOptions holds configuration for Job creation.
type jobOptions struct {
	parent           *Job
	logger           *logiface.Logger[logiface.Event]
	hooks            Hooks
	lazy             bool
	scoped           bool
	handlesException bool
	onCancelComplete *bool
}

// JobOption configures a job produced by [New], [NewSupervisor], or
// [NewDeferred].
type JobOption interface {
	applyJob(*jobOptions) error
}

// jobOptionImpl implements JobOption.
type jobOptionImpl struct {
	applyJobFunc func(*jobOptions) error
}

func (o *jobOptionImpl) applyJob(opts *jobOptions) error {
	return o.applyJobFunc(opts)
}

// WithParent attaches the new job as a child of parent. The parent is
// started if it was lazy, and will wait for this job before completing;
// cancellation of the parent cancels this job. A terminal parent cancels
// the new job immediately.
func WithParent(parent *Job) JobOption {
	return &jobOptionImpl{func(opts *jobOptions) error {
		opts.parent = parent
		return nil
	}}
}

// WithLogger sets the structured logger. When nil (the default), and a
// parent is configured, the parent's logger is inherited.
func WithLogger(logger *logiface.Logger[logiface.Event]) JobOption {
	return &jobOptionImpl{func(opts *jobOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithHooks installs the extension vtable. See [Hooks].
func WithHooks(hooks Hooks) JobOption {
	return &jobOptionImpl{func(opts *jobOptions) error {
		opts.hooks = hooks
		return nil
	}}
}

// WithLazyStart creates the job unstarted: it stays inert (inactive) until
// [Job.Start] or [Job.Join] transitions it to active. The default is to
// create jobs active.
func WithLazyStart(lazy bool) JobOption {
	return &jobOptionImpl{func(opts *jobOptions) error {
		opts.lazy = lazy
		return nil
	}}
}

// WithScoped marks the job as scoped: its failures are rethrown to the
// enclosing caller rather than reported through the parent's exception
// path.
func WithScoped(scoped bool) JobOption {
	return &jobOptionImpl{func(opts *jobOptions) error {
		opts.scoped = scoped
		return nil
	}}
}

// WithHandlesException declares that this job makes its failures visible by
// some means of its own (e.g. a consumer awaits it), which suppresses
// last-resort reporting when a child's failure is absorbed here.
func WithHandlesException(handles bool) JobOption {
	return &jobOptionImpl{func(opts *jobOptions) error {
		opts.handlesException = handles
		return nil
	}}
}

// WithOnCancelComplete selects how cancellation finishes the job. When true
// (the default for the factories in this package, which build jobs with no
// body of their own), cancellation immediately drives the completion
// protocol with the cancellation cause. When false, cancellation only
// enters the cancelling phase; the job stays there until
// [CompletableJob.Complete] or [CompletableJob.CompleteExceptionally]
// reports the body finished.
func WithOnCancelComplete(onCancelComplete bool) JobOption {
	return &jobOptionImpl{func(opts *jobOptions) error {
		opts.onCancelComplete = &onCancelComplete
		return nil
	}}
}

// resolveJobOptions applies JobOption instances to jobOptions.
func resolveJobOptions(opts []JobOption) (*jobOptions, error) {
	cfg := &jobOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyJob(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil && cfg.parent != nil {
		cfg.logger = cfg.parent.logger
	}
	return cfg, nil
}
