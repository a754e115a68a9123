package jobtree

import (
	"context"
)

// Context derives a [context.Context] that is cancelled when the job enters
// its cancelling phase, carrying the root cause as the context cause
// (see [context.Cause]), or when the job completes normally.
//
// This is the bridge from the job tree to conventional Go code: a job's
// body can select on the returned context to observe cancellation
// cooperatively.
//
//	job, _ := jobtree.New(jobtree.WithOnCancelComplete(false))
//	ctx := job.Context(context.Background())
//	go func() {
//	    defer job.Complete()
//	    for {
//	        select {
//	        case <-ctx.Done():
//	            return
//	        case work := <-queue:
//	            handle(work)
//	        }
//	    }
//	}()
func (j *Job) Context(parent context.Context) context.Context {
	ctx, cancel := context.WithCancelCause(parent)
	j.invokeOnCompletionInternal(true, true, &node{job: j, handler: func(cause error) {
		cancel(cause)
	}})
	return ctx
}
