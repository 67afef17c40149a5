package rangeindex

import (
	"context"
	"testing"
	"time"
)

func TestPostingSet_AddContainsSize(t *testing.T) {
	ps := NewPostingSet(0, nil)
	rq := NewReclaimQueue(16, time.Millisecond, nil)
	defer rq.Close(context.Background())

	ids := []uint32{5, 3, 9, 1000, 3}
	for _, id := range ids {
		if err := ps.Add(id, rq); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}

	for _, id := range []uint32{5, 3, 9, 1000} {
		if !ps.Contains(id) {
			t.Errorf("Contains(%d) = false, want true", id)
		}
	}
	if ps.Contains(42) {
		t.Errorf("Contains(42) = true, want false")
	}
	if ps.Size() != uint32(len(ids)) {
		t.Errorf("Size() = %d, want %d", ps.Size(), len(ids))
	}
}

func TestPostingSet_EnvelopeInvariant(t *testing.T) {
	ps := NewPostingSet(0, nil)
	rq := NewReclaimQueue(16, time.Millisecond, nil)
	defer rq.Close(context.Background())

	for _, id := range []uint32{200, 5, 900, 1} {
		if err := ps.Add(id, rq); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}

	if ps.MinAligned() > ps.Min() || ps.Min() > ps.Max() || ps.Max() > ps.MaxAligned() {
		t.Fatalf("invariant violated: minAligned=%d min=%d max=%d maxAligned=%d",
			ps.MinAligned(), ps.Min(), ps.Max(), ps.MaxAligned())
	}
	if (ps.MaxAligned()-ps.MinAligned()+1)%WordBits != 0 {
		t.Errorf("envelope width %d not a multiple of WordBits", ps.MaxAligned()-ps.MinAligned()+1)
	}
}

func TestPostingSet_DenseSparseConversion(t *testing.T) {
	ps := NewPostingSet(0, nil)
	rq := NewReclaimQueue(1024, time.Millisecond, nil)
	defer rq.Close(context.Background())

	if ps.Kind() != Sparse {
		t.Fatalf("new PostingSet kind = %v, want Sparse", ps.Kind())
	}

	// The very first Add always establishes a Dense buffer sized to hold
	// exactly that one id, regardless of the eventual representation.
	if err := ps.Add(50, rq); err != nil {
		t.Fatalf("Add(50): %v", err)
	}
	if ps.Kind() != Dense {
		t.Fatalf("kind after first Add = %v, want Dense", ps.Kind())
	}

	// A second id below the offset gate keeps it Dense.
	if err := ps.Add(60, rq); err != nil {
		t.Fatalf("Add(60): %v", err)
	}
	if ps.Kind() != Dense {
		t.Fatalf("kind after low-offset second add = %v, want Dense", ps.Kind())
	}

	// Pushing the offset past the gate with sparse density triggers
	// dense->sparse conversion on the *next* add (density is evaluated
	// against the set's state before the add is applied).
	if err := ps.Add(200_000, rq); err != nil {
		t.Fatalf("Add(200000): %v", err)
	}
	if err := ps.Add(1, rq); err != nil {
		t.Fatalf("Add(1): %v", err)
	}
	if ps.Kind() != Sparse {
		t.Fatalf("kind after sparse fill past offset gate = %v, want Sparse", ps.Kind())
	}
	for _, id := range []uint32{50, 60, 200_000, 1} {
		if !ps.Contains(id) {
			t.Errorf("Contains(%d) = false after conversion to sparse", id)
		}
	}

	// Filling in the range densely enough pushes density back over the
	// sparse->dense threshold: with min=1 and max=200000 the offset stays
	// 199999, so the set flips once its size exceeds 0.10 * 199999.
	base := uint32(180_000)
	for i := uint32(0); i < 20_000; i++ {
		if err := ps.Add(base+i, rq); err != nil {
			t.Fatalf("Add(%d): %v", base+i, err)
		}
	}
	if ps.Kind() != Dense {
		t.Fatalf("kind after dense fill = %v, want Dense", ps.Kind())
	}
	for i := uint32(0); i < 20_000; i++ {
		if !ps.Contains(base + i) {
			t.Errorf("Contains(%d) = false after conversion to dense", base+i)
		}
	}
}

// TestPostingSet_ConvertToSparseIsSelfConsistent exercises the case where
// duplicate Add calls have inflated size beyond the dense bitmap's real
// population count, and checks that the resulting sparse array has no
// spurious trailing entries once converted.
func TestPostingSet_ConvertToSparseIsSelfConsistent(t *testing.T) {
	ps := NewPostingSet(0, nil)
	rq := NewReclaimQueue(1024, time.Millisecond, nil)
	defer rq.Close(context.Background())

	// Two duplicate adds of the same id: size grows to 3 but only one bit
	// is ever set.
	for i := 0; i < 3; i++ {
		if err := ps.Add(0, rq); err != nil {
			t.Fatalf("Add(0) #%d: %v", i, err)
		}
	}
	// Push the envelope out past the offset gate.
	if err := ps.Add(150_000, rq); err != nil {
		t.Fatalf("Add(150000): %v", err)
	}
	if ps.Kind() != Dense {
		t.Fatalf("setup: expected Dense, got %v", ps.Kind())
	}
	if ps.Size() != 4 {
		t.Fatalf("setup: size = %d, want 4 (3 duplicate adds of 0 + one add of 150000)", ps.Size())
	}

	// This add is evaluated against the pre-add state (size=4, offset=
	// 150000, density ~0.0000267 < 0.08), triggering dense->sparse
	// conversion before 75000 itself is inserted.
	if err := ps.Add(75_000, rq); err != nil {
		t.Fatalf("Add(75000): %v", err)
	}
	if ps.Kind() != Sparse {
		t.Fatalf("kind after low-density add = %v, want Sparse", ps.Kind())
	}

	// The real population before this add was 2 (ids 0 and 150000, the
	// duplicate collapsed); after adding 75000 there must be exactly 3
	// entries, not 5 (which is what an un-truncated newArr sized to the
	// stale size=4 would have produced).
	if ps.Size() != 3 {
		t.Fatalf("Size() after conversion = %d, want 3", ps.Size())
	}
	ids := ps.Ids()
	if len(ids) != 3 {
		t.Fatalf("len(Ids()) = %d, want 3", len(ids))
	}
	for _, want := range []uint32{0, 150_000, 75_000} {
		if !ps.Contains(want) {
			t.Errorf("Contains(%d) = false after conversion", want)
		}
	}
}

func TestPostingSet_Delete(t *testing.T) {
	ps := NewPostingSet(0, nil)
	rq := NewReclaimQueue(16, time.Millisecond, nil)
	defer rq.Close(context.Background())

	for _, id := range []uint32{1, 2, 3} {
		if err := ps.Add(id, rq); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}
	if err := ps.Delete(2); err != nil {
		t.Fatalf("Delete(2): %v", err)
	}
	if ps.Contains(2) {
		t.Errorf("Contains(2) = true after delete")
	}
	if !ps.Contains(1) || !ps.Contains(3) {
		t.Errorf("delete removed an unrelated id")
	}
}

func TestPostingSet_ReclaimQueueRetiresOldBuffers(t *testing.T) {
	ps := NewPostingSet(0, nil)
	rq := NewReclaimQueue(1024, 5*time.Millisecond, nil)
	defer rq.Close(context.Background())

	// Repeated additions far above the current envelope force multiple
	// buffer reallocations; the old buffer must remain valid until the
	// reclaim queue's grace period elapses, and PostingSet must never
	// read from a buffer after retiring it.
	for i := uint32(0); i < 50; i++ {
		if err := ps.Add(i*10_000, rq); err != nil {
			t.Fatalf("Add(%d): %v", i*10_000, err)
		}
	}
	for i := uint32(0); i < 50; i++ {
		if !ps.Contains(i * 10_000) {
			t.Errorf("Contains(%d) = false after reallocation", i*10_000)
		}
	}
}
