package rangeindex

import (
	"context"
	"encoding/binary"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := *DefaultConfig()
	cfg.WriteQueue.EnqueueWait = 200 * time.Millisecond
	cfg.Metrics.Enabled = false
	return cfg
}

func waitForWriteQueue(t *testing.T, idx *MultiFieldIndex) {
	t.Helper()
	// Force a synchronous barrier by closing and reopening isn't available,
	// so tests instead sleep briefly to give the background worker time to
	// apply the enqueued writes; an idle worker picks up a new op at once.
	time.Sleep(50 * time.Millisecond)
}

func TestMultiFieldIndex_AddAndSearchNumeric(t *testing.T) {
	store := NewInMemoryDocumentStore()
	idx := New(testConfig(), store)
	defer idx.Close(context.Background())

	if err := idx.AddFieldWithKind(0, FieldNumeric, Int64Kind); err != nil {
		t.Fatalf("AddFieldWithKind: %v", err)
	}

	price := func(v int64) []byte {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v))
		return buf
	}
	store.Put(1, 0, price(50))
	store.Put(2, 0, price(150))
	store.Put(3, 0, price(250))

	for _, docID := range []uint32{1, 2, 3} {
		if err := idx.Add(docID, 0); err != nil {
			t.Fatalf("Add(%d): %v", docID, err)
		}
	}
	waitForWriteQueue(t, idx)

	result, err := idx.Search([]FilterInfo{RangeFilter(0, int64(100), int64(200))})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Universal {
		t.Fatal("Search returned Universal for a constrained filter")
	}
	if !result.Result.Contains(2) {
		t.Errorf("expected doc 2 in [100,200]")
	}
	if result.Result.Contains(1) || result.Result.Contains(3) {
		t.Errorf("range matched a doc outside [100,200]")
	}
}

func TestMultiFieldIndex_SearchUnregisteredFieldIsUnconstrained(t *testing.T) {
	store := NewInMemoryDocumentStore()
	idx := New(testConfig(), store)
	defer idx.Close(context.Background())

	result, err := idx.Search([]FilterInfo{{FieldID: 999, LowerValue: []byte("x")}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !result.Universal {
		t.Errorf("Search with only an unregistered-field filter should be Universal")
	}
}

func TestMultiFieldIndex_DeleteRemovesFromSearch(t *testing.T) {
	store := NewInMemoryDocumentStore()
	idx := New(testConfig(), store)
	defer idx.Close(context.Background())

	if err := idx.AddFieldWithKind(0, FieldNumeric, Int64Kind); err != nil {
		t.Fatalf("AddFieldWithKind: %v", err)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(int64(42)))
	store.Put(1, 0, buf)

	if err := idx.Add(1, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	waitForWriteQueue(t, idx)

	if err := idx.Delete(1, 0); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	waitForWriteQueue(t, idx)

	result, err := idx.Search([]FilterInfo{RangeFilter(0, int64(0), int64(100))})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Result != nil && result.Result.Contains(1) {
		t.Errorf("deleted doc still matched after Delete")
	}
}

func TestMultiFieldIndex_TagIntersectionAcrossFields(t *testing.T) {
	store := NewInMemoryDocumentStore()
	idx := New(testConfig(), store)
	defer idx.Close(context.Background())

	if err := idx.AddField(0, FieldString); err != nil {
		t.Fatalf("AddField(color): %v", err)
	}
	if err := idx.AddField(1, FieldString); err != nil {
		t.Fatalf("AddField(size): %v", err)
	}

	store.Put(1, 0, []byte("red"))
	store.Put(1, 1, []byte("large"))
	store.Put(2, 0, []byte("red"))
	store.Put(2, 1, []byte("small"))

	for _, op := range []struct{ doc, field uint32 }{{1, 0}, {1, 1}, {2, 0}, {2, 1}} {
		if err := idx.Add(op.doc, op.field); err != nil {
			t.Fatalf("Add(%d,%d): %v", op.doc, op.field, err)
		}
	}
	waitForWriteQueue(t, idx)

	result, err := idx.Search([]FilterInfo{
		TagsFilter(0, []byte("red"), true),
		TagsFilter(1, []byte("large"), true),
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !result.Result.Contains(1) {
		t.Errorf("expected doc 1 to match color=red AND size=large")
	}
	if result.Result.Contains(2) {
		t.Errorf("doc 2 (size=small) incorrectly matched size=large filter")
	}
}

func TestMultiFieldIndex_TagIntersectionWithinField(t *testing.T) {
	store := NewInMemoryDocumentStore()
	idx := New(testConfig(), store)
	defer idx.Close(context.Background())

	if err := idx.AddField(0, FieldString); err != nil {
		t.Fatalf("AddField: %v", err)
	}

	store.Put(1, 0, []byte("red\x01blue"))
	store.Put(2, 0, []byte("red"))
	store.Put(3, 0, []byte("blue"))

	for _, docID := range []uint32{1, 2, 3} {
		if err := idx.Add(docID, 0); err != nil {
			t.Fatalf("Add(%d): %v", docID, err)
		}
	}
	waitForWriteQueue(t, idx)

	result, err := idx.Search([]FilterInfo{
		TagsFilter(0, []byte("red\x01blue"), false),
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !result.Result.Contains(1) {
		t.Errorf("expected doc 1 (red and blue) to match the intersection")
	}
	if result.Result.Contains(2) {
		t.Errorf("doc 2 (red only) incorrectly matched a red&blue intersection")
	}
	if result.Result.Contains(3) {
		t.Errorf("doc 3 (blue only) incorrectly matched a red&blue intersection")
	}
}

func TestMultiFieldIndex_CloseIsIdempotent(t *testing.T) {
	store := NewInMemoryDocumentStore()
	idx := New(testConfig(), store)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := idx.Close(ctx); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := idx.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestMultiFieldIndex_SearchAfterCloseFails(t *testing.T) {
	store := NewInMemoryDocumentStore()
	idx := New(testConfig(), store)
	idx.Close(context.Background())

	if _, err := idx.Search(nil); err == nil {
		t.Fatal("Search after Close succeeded, want ErrClosed")
	}
}
