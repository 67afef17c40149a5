package rangeindex

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultGracePeriod is the minimum time a retired buffer must remain
// reachable before it may be dropped, chosen to outlive the maximum
// realistic duration of a single query read-through.
const DefaultGracePeriod = time.Second

// reclaimItem pairs a retired buffer with the time it becomes safe to drop.
// The buffer is kept only to delay garbage collection until the deadline —
// Go's runtime, unlike the manual-allocator source this is modeled on, never
// frees memory a live reference still points to, but a reader that copied a
// slice header off the old PostingSet buffer before a swap must still be
// given the full grace period to finish reading it before this queue lets it
// go, since the writer may otherwise be the last strong reference keeping it
// resident behind the reader's back.
type reclaimItem struct {
	buf       any
	deadline  time.Time
	retiredAt time.Time
}

// ReclaimQueue is a bounded, timed-release queue of buffers pending
// disposal. A single background goroutine dequeues, sleeps until the
// deadline, then drops its reference. Producers are PostingSet buffer
// swaps (C1); the only consumer is this queue's own worker (C3).
type ReclaimQueue struct {
	items   chan reclaimItem
	grace   time.Duration
	log     zerolog.Logger
	metrics *Metrics

	closeCh chan struct{}
	wg      sync.WaitGroup
	closed  bool
	mu      sync.Mutex
}

// NewReclaimQueue creates a reclaim queue with the given capacity and grace
// period, and starts its background worker. metrics may be nil, in which
// case the queue-depth gauge and release-latency histogram are skipped.
func NewReclaimQueue(capacity int, grace time.Duration, metrics *Metrics) *ReclaimQueue {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	rq := &ReclaimQueue{
		items:   make(chan reclaimItem, capacity),
		grace:   grace,
		log:     log.With().Str("component", "reclaim_queue").Logger(),
		metrics: metrics,
		closeCh: make(chan struct{}),
	}
	rq.wg.Add(1)
	go rq.run()
	return rq
}

// Retire hands a buffer off for delayed disposal. If the queue is at
// capacity, Retire retries with a short backoff rather than freeing the
// buffer eagerly or leaking it — per the documented "safer behavior" for
// EnqueueFull on this queue (§9): retry until success, since correctness
// depends on every retired buffer surviving its full grace period.
func (rq *ReclaimQueue) Retire(buf any) {
	if buf == nil {
		return
	}
	now := time.Now()
	item := reclaimItem{buf: buf, deadline: now.Add(rq.grace), retiredAt: now}
	for {
		select {
		case rq.items <- item:
			if rq.metrics != nil {
				rq.metrics.ReclaimQueueLen.Inc()
			}
			return
		default:
			rq.log.Warn().Msg("reclaim queue full, retrying enqueue")
			time.Sleep(time.Millisecond)
		}
	}
}

func (rq *ReclaimQueue) run() {
	defer rq.wg.Done()
	for {
		select {
		case item := <-rq.items:
			rq.release(item)
		case <-time.After(time.Second):
			// periodic wakeup so shutdown is noticed within ~1s even with
			// nothing enqueued, matching the dequeue-timeout contract of §5.
		case <-rq.closeCh:
			rq.drain()
			return
		}
	}
}

func (rq *ReclaimQueue) release(item reclaimItem) {
	if wait := time.Until(item.deadline); wait > 0 {
		time.Sleep(wait)
	}
	item.buf = nil
	if rq.metrics != nil {
		rq.metrics.ReclaimQueueLen.Dec()
		rq.metrics.ReclaimLatency.Observe(time.Since(item.retiredAt).Seconds())
	}
}

// drain releases every remaining item without waiting for new ones, each
// still only after its own deadline, used only during shutdown after
// producers have quiesced.
func (rq *ReclaimQueue) drain() {
	for {
		select {
		case item := <-rq.items:
			rq.release(item)
		default:
			return
		}
	}
}

// Close signals the worker to drain and exit, blocking until it does or ctx
// is done.
func (rq *ReclaimQueue) Close(ctx context.Context) error {
	rq.mu.Lock()
	if rq.closed {
		rq.mu.Unlock()
		return nil
	}
	rq.closed = true
	close(rq.closeCh)
	rq.mu.Unlock()

	done := make(chan struct{})
	go func() {
		rq.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
