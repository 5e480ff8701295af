package pipeline

import (
	"context"
	"sync"

	"github.com/fdupoux/fsarchiver-go/queue"
)

// A Producer feeds the queue. On archive creation it is the filesystem
// reader emitting headers and raw TODO blocks; on restore it is the
// archive reader emitting framed items in archive order. Produce returns
// once there is nothing more to feed, or on error; it must check
// pctx.FillQueueStopped between enqueues. Run closes the queue when
// Produce returns, whatever the outcome.
type Producer interface {
	Produce(pctx *Context, q *queue.Queue) error
}

// A Consumer drains the queue in strict insertion order. On archive
// creation it writes finished items to the archive; on restore it
// applies them to the target filesystem. Consume returns nil once the
// queue reports end-of-queue.
type Consumer interface {
	Consume(pctx *Context, q *queue.Queue) error
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func(pctx *Context, q *queue.Queue) error

func (f ProducerFunc) Produce(pctx *Context, q *queue.Queue) error { return f(pctx, q) }

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(pctx *Context, q *queue.Queue) error

func (f ConsumerFunc) Consume(pctx *Context, q *queue.Queue) error { return f(pctx, q) }

// Run executes one pipeline: it starts the transformer pool and the
// consumer, runs the producer on the calling goroutine, closes the
// queue when the producer is done, and waits for the drain. It returns
// the run's statistics and the first failure, if any.
//
// Shutdown follows the queue state: the producer stops when it has
// nothing left or sees FillQueueStopped, then the queue is closed;
// transformers drain remaining TODO blocks and exit; the consumer
// drains remaining DONE items and exits. A transformer failure stops
// the fill and closes the queue; the other transformers finish the
// remaining TODO blocks, and the run is then aborted because the failed
// block stays IN_PROGRESS. A consumer failure or a canceled ctx aborts
// the run outright.
func Run(ctx context.Context, opts Options, dir Direction, producer Producer, consumer Consumer) (*Stats, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	pctx := NewContext(ctx)
	defer pctx.Abort()
	q := queue.New(pctx, opts.MaxInFlightBlocks)

	var transformers sync.WaitGroup
	for i := 0; i < opts.NumTransformers; i++ {
		transformers.Add(1)
		go func() {
			defer transformers.Done()
			transformLoop(pctx, &opts, dir, q)
		}()
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Consume(pctx, q); err != nil {
			pctx.Fail(err)
			// Without a consumer nothing drains the queue, so a soft
			// stop could leave the producer blocked on backpressure.
			pctx.Abort()
		}
	}()

	if err := producer.Produce(pctx, q); err != nil {
		pctx.Fail(err)
	}
	q.Close()

	transformers.Wait()
	if pctx.FirstErr() != nil {
		// A failed block stays IN_PROGRESS; wake the consumer so it
		// does not wait on it forever.
		pctx.Abort()
	}
	<-consumerDone

	return pctx.Stats, pctx.FirstErr()
}
