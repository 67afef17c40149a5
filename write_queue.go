package rangeindex

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// writeOpKind distinguishes the two mutations a WriteQueue applies.
type writeOpKind int

const (
	opAdd writeOpKind = iota
	opDelete
)

func (k writeOpKind) String() string {
	if k == opAdd {
		return "add"
	}
	return "delete"
}

// writeOp is one queued mutation: index docID's value for fieldID, or
// remove it.
type writeOp struct {
	kind    writeOpKind
	docID   uint32
	fieldID uint32
}

// WriteQueue decouples the user-visible Add/Delete calls on MultiFieldIndex
// from the actual FieldIndex mutation, following the same
// enqueue-then-single-consumer shape as the teacher's flushWorker in
// storage.go: one background goroutine drains ops, using select with a
// timeout channel so shutdown is noticed even when idle.
type WriteQueue struct {
	ops         chan writeOp
	apply       func(writeOp) error
	enqueueWait time.Duration
	log         zerolog.Logger
	metrics     *Metrics

	closeCh chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

// NewWriteQueue creates a write queue with the given capacity and per-
// enqueue wait budget, and starts its consumer goroutine. apply is called
// once per dequeued op, from the single consumer goroutine only, so it
// never needs to be safe for concurrent invocation with itself.
func NewWriteQueue(capacity int, enqueueWait time.Duration, apply func(writeOp) error, metrics *Metrics) *WriteQueue {
	q := &WriteQueue{
		ops:         make(chan writeOp, capacity),
		apply:       apply,
		enqueueWait: enqueueWait,
		log:         log.With().Str("component", "write_queue").Logger(),
		metrics:     metrics,
		closeCh:     make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue submits op, waiting up to q.enqueueWait for room before returning
// ErrEnqueueFull. Enqueue on a closed queue returns ErrClosed.
func (q *WriteQueue) Enqueue(op writeOp) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}

	timer := time.NewTimer(q.enqueueWait)
	defer timer.Stop()
	select {
	case q.ops <- op:
		if q.metrics != nil {
			q.metrics.WritesEnqueued.WithLabelValues(op.kind.String()).Inc()
		}
		return nil
	case <-timer.C:
		if q.metrics != nil {
			q.metrics.WritesDropped.WithLabelValues("enqueue_full").Inc()
		}
		q.log.Warn().Str("op", op.kind.String()).Uint32("doc_id", op.docID).Msg("write queue full, dropping op")
		return ErrEnqueueFull
	}
}

func (q *WriteQueue) run() {
	defer q.wg.Done()
	for {
		select {
		case op := <-q.ops:
			q.applyOne(op)
		case <-time.After(time.Second):
			// periodic wakeup, matching the 1-second dequeue timeout used
			// throughout this package's worker loops.
		case <-q.closeCh:
			q.drain()
			return
		}
	}
}

func (q *WriteQueue) applyOne(op writeOp) {
	if err := q.apply(op); err != nil {
		q.log.Warn().Str("op", op.kind.String()).Uint32("doc_id", op.docID).Uint32("field_id", op.fieldID).Err(err).Msg("write op failed")
		return
	}
	if q.metrics != nil {
		q.metrics.WritesApplied.WithLabelValues(op.kind.String()).Inc()
	}
}

// drain applies every op still queued, without waiting for new ones, used
// during Close after producers can no longer enqueue.
func (q *WriteQueue) drain() {
	for {
		select {
		case op := <-q.ops:
			q.applyOne(op)
		default:
			return
		}
	}
}

// Close signals the consumer to drain and stop, blocking until it does or
// ctx is done. Safe to call more than once.
func (q *WriteQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeCh)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
