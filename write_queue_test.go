package rangeindex

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWriteQueue_AppliesOpsInBackground(t *testing.T) {
	var mu sync.Mutex
	var applied []uint32

	q := NewWriteQueue(16, 100*time.Millisecond, func(op writeOp) error {
		mu.Lock()
		applied = append(applied, op.docID)
		mu.Unlock()
		return nil
	}, nil)
	defer q.Close(context.Background())

	for i := uint32(0); i < 5; i++ {
		if err := q.Enqueue(writeOp{kind: opAdd, docID: i}); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(applied)
		mu.Unlock()
		if n == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d/5 ops applied before deadline", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWriteQueue_EnqueueAfterCloseFails(t *testing.T) {
	q := NewWriteQueue(4, 10*time.Millisecond, func(writeOp) error { return nil }, nil)
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.Enqueue(writeOp{kind: opAdd}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enqueue after Close = %v, want ErrClosed", err)
	}
}

func TestWriteQueue_EnqueueFullReturnsErr(t *testing.T) {
	block := make(chan struct{})
	q := NewWriteQueue(1, 20*time.Millisecond, func(writeOp) error {
		<-block
		return nil
	}, nil)
	defer func() {
		close(block)
		q.Close(context.Background())
	}()

	// The first op is picked up by the consumer and blocks there; the
	// second fills the one-slot buffer; the third has nowhere to go
	// within the enqueue wait budget.
	if err := q.Enqueue(writeOp{kind: opAdd, docID: 1}); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := q.Enqueue(writeOp{kind: opAdd, docID: 2}); err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	if err := q.Enqueue(writeOp{kind: opAdd, docID: 3}); !errors.Is(err, ErrEnqueueFull) {
		t.Fatalf("third Enqueue = %v, want ErrEnqueueFull", err)
	}
}

func TestWriteQueue_CloseDrainsPending(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[uint32]bool)

	q := NewWriteQueue(16, 100*time.Millisecond, func(op writeOp) error {
		mu.Lock()
		seen[op.docID] = true
		mu.Unlock()
		return nil
	}, nil)

	for i := uint32(0); i < 8; i++ {
		if err := q.Enqueue(writeOp{kind: opAdd, docID: i}); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 8 {
		t.Fatalf("Close drained %d/8 ops", len(seen))
	}
}
