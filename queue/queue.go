// Package queue implements the bounded ordered mailbox that connects the
// producer, transformers and consumer: a FIFO-by-itemnum list of BLOCK
// and HEADER items, where blocks move through the
// TODO/IN_PROGRESS/DONE lifecycle and headers are born DONE.
//
// Every operation is guarded by one mutex and one condition variable.
// Cancellation is cooperative: callers pass a context.Context at
// construction, and a single watcher goroutine per Queue broadcasts
// when that context is done, waking every blocked waiter to recheck
// its predicate.
package queue

import (
	"context"
	"sync"

	"github.com/fdupoux/fsarchiver-go/cipher"
	"github.com/fdupoux/fsarchiver-go/codec"
	"github.com/fdupoux/fsarchiver-go/dico"
	"github.com/fdupoux/fsarchiver-go/errors"
)

// Kind distinguishes the two item kinds a Queue can hold.
type Kind uint8

const (
	KindBlock Kind = iota
	KindHeader
)

// Status is a BLOCK item's position in its TODO -> IN_PROGRESS -> DONE
// lifecycle. HEADER items are always Done.
type Status uint8

const (
	StatusTodo Status = iota
	StatusInProgress
	StatusDone
)

// BlockInfo is a unit of file payload flowing through the pipeline.
type BlockInfo struct {
	Data      []byte
	RealSize  uint64
	CompSize  uint64
	ArSize    uint64
	Offset    uint64
	CompAlgo  codec.Algo
	CryptAlgo cipher.Algo
	Checksum  uint32
}

// HeadInfo is a framed metadata item.
type HeadInfo struct {
	Magic [8]byte
	FSID  uint16
	Dico  *dico.Dico
}

type item struct {
	itemnum int64
	kind    Kind
	status  Status
	block   BlockInfo
	head    HeadInfo
	next    *item
}

// Queue is the shared, mutex-protected state described in the data model:
// an ordered list of items, counters, a soft cap on in-flight blocks and
// a terminal end-of-queue flag.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	head     *item
	tail     *item
	curItem  int64
	items    int64
	blocks   int64
	blkMax   int64
	closed   bool
	canceled bool
}

// New creates a Queue with the given soft cap on in-flight blocks. The
// supplied context scopes the Queue's lifetime: canceling it wakes every
// blocked call with a Canceled error. Callers should always eventually
// cancel ctx, exactly as with any other context.Context, to let the
// watcher goroutine exit.
func New(ctx context.Context, blkMax int64) *Queue {
	q := &Queue{curItem: 1, blkMax: blkMax}
	q.cond = sync.NewCond(&q.mu)
	go func() {
		<-ctx.Done()
		q.mu.Lock()
		q.canceled = true
		q.mu.Unlock()
		q.cond.Broadcast()
	}()
	return q
}

func (q *Queue) appendLocked(it *item) {
	if q.head == nil {
		q.head = it
	} else {
		q.tail.next = it
	}
	q.tail = it
}

func (q *Queue) popHeadLocked() {
	q.head = q.head.next
	if q.head == nil {
		q.tail = nil
	}
}

func (q *Queue) isDrainedLocked() bool {
	return q.items < 1 && q.closed
}

// IsDrained reports whether the queue is empty and closed.
func (q *Queue) IsDrained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isDrainedLocked()
}

// Close marks the queue as end-of-queue. Idempotent: calling it more than
// once has no additional effect.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

var errCanceled = func() error { return errors.E(errors.Canceled, "queue: operation canceled") }
var errEndOfQueue = func() error { return errors.E(errors.EndOfQueue, "queue: end of queue") }

// EnqueueBlock appends a BLOCK item with status TODO. It blocks while the
// in-flight block count exceeds blkMax and the queue is not yet closed;
// header items never count against blkMax so they flow freely even when
// the block budget is exhausted.
func (q *Queue) EnqueueBlock(b BlockInfo) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, errEndOfQueue()
	}
	for q.blocks > q.blkMax && !q.closed {
		if q.canceled {
			return 0, errCanceled()
		}
		q.cond.Wait()
	}
	if q.closed {
		return 0, errEndOfQueue()
	}
	if q.canceled {
		return 0, errCanceled()
	}
	it := &item{kind: KindBlock, status: StatusTodo, block: b}
	q.appendLocked(it)
	q.blocks++
	q.items++
	it.itemnum = q.curItem
	q.curItem++
	q.cond.Broadcast()
	return it.itemnum, nil
}

// EnqueueHeader appends a HEADER item, created DONE.
func (q *Queue) EnqueueHeader(h HeadInfo) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, errEndOfQueue()
	}
	it := &item{kind: KindHeader, status: StatusDone, head: h}
	q.appendLocked(it)
	q.items++
	it.itemnum = q.curItem
	q.curItem++
	q.cond.Broadcast()
	return it.itemnum, nil
}

// ClaimNextTodoBlock scans head-to-tail for the first BLOCK with status
// TODO, flips it to IN_PROGRESS and returns a snapshot for the caller to
// transform. Multiple transformers racing for work each claim the
// earliest unclaimed TODO block. Once the queue is closed and no TODO
// block remains, it returns an EndOfQueue error.
func (q *Queue) ClaimNextTodoBlock() (int64, BlockInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for cur := q.head; cur != nil; cur = cur.next {
			if cur.kind == KindBlock && cur.status == StatusTodo {
				cur.status = StatusInProgress
				q.cond.Broadcast()
				return cur.itemnum, cur.block, nil
			}
		}
		if q.closed {
			return 0, BlockInfo{}, errEndOfQueue()
		}
		if q.canceled {
			return 0, BlockInfo{}, errCanceled()
		}
		q.cond.Wait()
	}
}

// CompleteBlock locates the BLOCK with the given itemnum, replaces its
// payload and marks it DONE. Returns a NotFound error if the item has
// already been removed, which can happen if the consumer discarded it
// during shutdown.
func (q *Queue) CompleteBlock(itemnum int64, b BlockInfo) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for cur := q.head; cur != nil; cur = cur.next {
		if cur.itemnum == itemnum {
			cur.status = StatusDone
			cur.block = b
			q.cond.Broadcast()
			return nil
		}
	}
	return errors.E(errors.NotFound, "queue: complete_block: itemnum not found")
}

// DequeueAny waits until the head item is DONE, removes it and returns
// its kind and payload. Preserves strict itemnum order.
func (q *Queue) DequeueAny() (kind Kind, head HeadInfo, block BlockInfo, itemnum int64, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if cur := q.head; cur != nil && cur.status == StatusDone {
			kind, head, block, itemnum = cur.kind, cur.head, cur.block, cur.itemnum
			if kind == KindBlock {
				q.blocks--
			}
			q.popHeadLocked()
			q.items--
			q.cond.Broadcast()
			return kind, head, block, itemnum, nil
		}
		if q.isDrainedLocked() {
			return 0, HeadInfo{}, BlockInfo{}, 0, errEndOfQueue()
		}
		if q.canceled {
			return 0, HeadInfo{}, BlockInfo{}, 0, errCanceled()
		}
		q.cond.Wait()
	}
}

// DequeueBlockHead is like DequeueAny but fails with a WrongType error if
// the ready head is a HEADER item instead of a BLOCK.
func (q *Queue) DequeueBlockHead() (int64, BlockInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		cur := q.head
		if cur != nil && cur.status == StatusDone {
			if cur.kind != KindBlock {
				return 0, BlockInfo{}, errors.E(errors.WrongType, "queue: dequeue_block_head: head is a header")
			}
			itemnum, block := cur.itemnum, cur.block
			q.blocks--
			q.popHeadLocked()
			q.items--
			q.cond.Broadcast()
			return itemnum, block, nil
		}
		if q.isDrainedLocked() {
			return 0, BlockInfo{}, errEndOfQueue()
		}
		if q.canceled {
			return 0, BlockInfo{}, errCanceled()
		}
		q.cond.Wait()
	}
}

// DequeueHeaderHead is like DequeueAny but fails with a WrongType error if
// the ready head is a BLOCK item instead of a HEADER.
func (q *Queue) DequeueHeaderHead() (int64, HeadInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		cur := q.head
		if cur != nil && cur.status == StatusDone {
			if cur.kind != KindHeader {
				return 0, HeadInfo{}, errors.E(errors.WrongType, "queue: dequeue_header_head: head is a block")
			}
			itemnum, head := cur.itemnum, cur.head
			q.popHeadLocked()
			q.items--
			q.cond.Broadcast()
			return itemnum, head, nil
		}
		if q.isDrainedLocked() {
			return 0, HeadInfo{}, errEndOfQueue()
		}
		if q.canceled {
			return 0, HeadInfo{}, errCanceled()
		}
		q.cond.Wait()
	}
}

// PeekHeadKind waits until the head is DONE and reports its kind (and
// magic, for a header) without removing it.
func (q *Queue) PeekHeadKind() (Kind, [8]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		cur := q.head
		if cur != nil && cur.status == StatusDone {
			var magic [8]byte
			if cur.kind == KindHeader {
				magic = cur.head.Magic
			}
			return cur.kind, magic, nil
		}
		if q.isDrainedLocked() {
			return 0, [8]byte{}, errEndOfQueue()
		}
		if q.canceled {
			return 0, [8]byte{}, errCanceled()
		}
		q.cond.Wait()
	}
}

// DiscardHead waits until the head is not IN_PROGRESS, then removes it
// without returning its payload. Used to unwind the queue on abort.
func (q *Queue) DiscardHead() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		cur := q.head
		if cur != nil && cur.status != StatusInProgress {
			if cur.kind == KindBlock {
				q.blocks--
			}
			q.popHeadLocked()
			q.items--
			q.cond.Broadcast()
			return nil
		}
		if q.isDrainedLocked() {
			return errEndOfQueue()
		}
		if q.canceled {
			return errCanceled()
		}
		q.cond.Wait()
	}
}

// CountItemsTodo returns the number of BLOCK items not yet DONE.
func (q *Queue) CountItemsTodo() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for cur := q.head; cur != nil; cur = cur.next {
		if cur.kind == KindBlock && cur.status != StatusDone {
			n++
		}
	}
	return n
}

// Blocks returns the number of BLOCK items currently queued, the count
// the blkMax backpressure threshold applies to.
func (q *Queue) Blocks() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.blocks
}

// Count returns the total number of items currently queued.
func (q *Queue) Count() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items
}
