package jobtree_test

import (
	"context"
	"errors"
	"fmt"

	jobtree "github.com/joeycumines/go-jobtree"
)

// Demonstrates downward cancellation: cancelling the parent cancels every
// descendant before the parent itself completes.
func ExampleJob_Cancel() {
	parent, _ := jobtree.New()
	child, _ := jobtree.New(jobtree.WithParent(&parent.Job))

	child.InvokeOnCompletion(func(cause error) {
		fmt.Println("child done, cancelled:", cause != nil)
	})
	parent.InvokeOnCompletion(func(cause error) {
		fmt.Println("parent done, cancelled:", cause != nil)
	})

	parent.Cancel(nil)
	_ = parent.Join(context.Background())

	// Output:
	// child done, cancelled: true
	// parent done, cancelled: true
}

// Demonstrates upward failure propagation: a failing child cancels its
// parent, and the failure becomes the parent's completion cause.
func ExampleCompletableJob_CompleteExceptionally() {
	parent, _ := jobtree.New()
	child, _ := jobtree.New(jobtree.WithParent(&parent.Job))

	child.CompleteExceptionally(errors.New("disk full"))
	_ = parent.Join(context.Background())

	fmt.Println("parent cancelled:", parent.IsCancelled())
	fmt.Println("cause:", errors.Unwrap(parent.Err()))

	// Output:
	// parent cancelled: true
	// cause: disk full
}

// Demonstrates a supervisor: one child's failure leaves its siblings (and
// the supervisor itself) running.
func ExampleNewSupervisor() {
	supervisor, _ := jobtree.NewSupervisor()
	failing, _ := jobtree.New(jobtree.WithParent(&supervisor.Job))
	sibling, _ := jobtree.New(jobtree.WithParent(&supervisor.Job))

	failing.CompleteExceptionally(errors.New("boom"))

	fmt.Println("supervisor cancelled:", supervisor.IsCancelled())
	fmt.Println("sibling active:", sibling.IsActive())

	// Output:
	// supervisor cancelled: false
	// sibling active: true
}

// Demonstrates awaiting a typed result.
func ExampleDeferred() {
	d, _ := jobtree.NewDeferred[int]()

	go d.Complete(6 * 7)

	v, err := d.Await(context.Background())
	fmt.Println(v, err)

	// Output:
	// 42 <nil>
}

// Demonstrates bridging a job to conventional context-based code: the
// job's body observes cancellation through a derived context and signals
// its own completion.
func ExampleJob_Context() {
	job, _ := jobtree.New(jobtree.WithOnCancelComplete(false))
	ctx := job.Context(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done() // cooperative cancellation point
		fmt.Println("body stopping:", context.Cause(ctx) != nil)
		job.Complete()
	}()

	job.Cancel(nil)
	_ = job.Join(context.Background())
	<-done

	// Output:
	// body stopping: true
}
