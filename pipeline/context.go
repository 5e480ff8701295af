package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/fdupoux/fsarchiver-go/errors"
)

// Context is the supervisor state threaded through one pipeline run: the
// cancellation pair (abort, stop-fill-queue), the first recorded error,
// and the run's statistics. It is an explicit parameter to every role
// rather than process-wide state.
//
// Context implements context.Context; Abort cancels it. Stopping the
// fill is softer than aborting: the producer stops feeding, but
// transformers and the consumer keep draining what is already queued.
type Context struct {
	context.Context
	cancel   context.CancelFunc
	stopFill atomic.Bool
	errs     errors.Once
	Stats    *Stats
}

// NewContext derives a pipeline Context from ctx.
func NewContext(ctx context.Context) *Context {
	c := &Context{Stats: &Stats{}}
	c.Context, c.cancel = context.WithCancel(ctx)
	return c
}

// Abort cancels the run: every blocked queue operation returns promptly
// with a Canceled error.
func (c *Context) Abort() { c.cancel() }

// Aborted reports whether the run has been aborted.
func (c *Context) Aborted() bool { return c.Context.Err() != nil }

// StopFillQueue tells the producer to stop feeding the queue.
func (c *Context) StopFillQueue() { c.stopFill.Store(true) }

// FillQueueStopped reports whether the producer should stop feeding.
// Producers must check it between enqueues.
func (c *Context) FillQueueStopped() bool { return c.stopFill.Load() || c.Aborted() }

// Fail records err as the run's error, if it is the first, and stops the
// queue fill. EndOfQueue and Canceled are normal terminal signals, not
// failures, and are dropped.
func (c *Context) Fail(err error) {
	if err == nil || errors.Is(errors.EndOfQueue, err) || errors.Is(errors.Canceled, err) {
		return
	}
	if err == context.Canceled || err == context.DeadlineExceeded {
		return
	}
	c.errs.Set(err)
	c.StopFillQueue()
}

// FirstErr returns the first failure recorded by Fail, or nil.
func (c *Context) FirstErr() error { return c.errs.Err() }
