package pipeline

import (
	"io"

	"github.com/fdupoux/fsarchiver-go/errors"
	"github.com/fdupoux/fsarchiver-go/framing"
	"github.com/fdupoux/fsarchiver-go/queue"
)

// ArchiveWriteConsumer is the Consumer for archive creation: it dequeues
// finished items in insertion order and frames them into the archive.
type ArchiveWriteConsumer struct {
	W *framing.Writer
}

func (c ArchiveWriteConsumer) Consume(pctx *Context, q *queue.Queue) error {
	for {
		kind, head, block, _, err := q.DequeueAny()
		if err != nil {
			if errors.Is(errors.EndOfQueue, err) {
				return nil
			}
			return err
		}
		switch kind {
		case queue.KindBlock:
			err = c.W.WriteBlock(block)
		case queue.KindHeader:
			err = c.W.WriteHeader(head)
		}
		if err != nil {
			return err
		}
	}
}

// ArchiveReadProducer is the Producer for restore: it parses framed
// items out of the archive and enqueues them in archive order. Blocks
// enter the queue TODO, for the transformer pool to decipher and
// decode.
type ArchiveReadProducer struct {
	R *framing.Reader
}

func (p ArchiveReadProducer) Produce(pctx *Context, q *queue.Queue) error {
	for !pctx.FillQueueStopped() {
		kind, head, block, err := p.R.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch kind {
		case queue.KindBlock:
			_, err = q.EnqueueBlock(block)
		case queue.KindHeader:
			_, err = q.EnqueueHeader(head)
		}
		if err != nil {
			if errors.Is(errors.EndOfQueue, err) || errors.Is(errors.Canceled, err) {
				return nil
			}
			return err
		}
	}
	return nil
}
