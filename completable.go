// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jobtree

import (
	"context"
	"errors"
)

// ErrIncomplete is returned when a completed-only accessor is used on a job
// that has not yet reached a terminal state.
var ErrIncomplete = errors.New("jobtree: job has not completed")

// CompletableJob is a [Job] whose completion is driven externally, via
// [CompletableJob.Complete] and [CompletableJob.CompleteExceptionally],
// rather than by a body of its own.
type CompletableJob struct {
	Job
}

// New creates a CompletableJob.
//
// By default the job is created active and cancellation completes it
// immediately with the cancellation cause (see [WithOnCancelComplete] to
// model a job with a running body instead, which stays in the cancelling
// phase until completed).
func New(opts ...JobOption) (*CompletableJob, error) {
	cfg, err := resolveJobOptions(opts)
	if err != nil {
		return nil, err
	}
	j := &CompletableJob{}
	j.Job.init(cfg)
	return j, nil
}

// Complete finishes the job normally, once every attached child has
// completed. Returns true if this call initiated the completion; false if
// the job was already completing or complete.
func (j *CompletableJob) Complete() bool {
	return j.makeCompleting(nil)
}

// CompleteExceptionally finishes the job with the given failure, cancelling
// its children and notifying its parent. Returns true if this call
// initiated the completion.
func (j *CompletableJob) CompleteExceptionally(cause error) bool {
	return j.makeCompleting(&completedExceptionally{cause: cause})
}

// Deferred is a [CompletableJob] carrying a typed result.
type Deferred[T any] struct {
	CompletableJob
}

// NewDeferred creates a Deferred.
func NewDeferred[T any](opts ...JobOption) (*Deferred[T], error) {
	cfg, err := resolveJobOptions(opts)
	if err != nil {
		return nil, err
	}
	d := &Deferred[T]{}
	d.Job.init(cfg)
	return d, nil
}

// Complete fulfills the deferred with value. Returns true if this call
// initiated the completion.
func (d *Deferred[T]) Complete(value T) bool {
	return d.makeCompleting(value)
}

// Await starts the deferred if necessary and blocks until it completes,
// returning the completion value, the completion failure, or ctx's error if
// the wait is abandoned first (disposing the wait's listener).
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	d.Start()
	ch := make(chan struct{})
	handle := d.invokeOnCompletionInternal(false, true, &node{job: &d.Job, handler: func(error) { close(ch) }})
	select {
	case <-ch:
	case <-ctx.Done():
		handle.Dispose()
		select {
		case <-ch:
		default:
			var zero T
			return zero, ctx.Err()
		}
	}
	return d.Result()
}

// Result returns the completion value or failure of the deferred without
// waiting. Returns [ErrIncomplete] if the deferred has not completed.
func (d *Deferred[T]) Result() (T, error) {
	var zero T
	switch s := d.state.load().s.(type) {
	case *completedNormally:
		if s.value == nil {
			return zero, nil
		}
		return s.value.(T), nil
	case *completedExceptionally:
		return zero, s.cause
	}
	return zero, ErrIncomplete
}
