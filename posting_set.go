package rangeindex

import (
	"math"
	"strconv"
)

// Kind identifies which representation a PostingSet currently holds.
type Kind uint8

const (
	// Dense stores ids as a word-aligned bitmap covering [minAligned, maxAligned].
	Dense Kind = iota
	// Sparse stores ids as an unsorted array of the exact contained ids.
	Sparse
)

func (k Kind) String() string {
	if k == Dense {
		return "dense"
	}
	return "sparse"
}

// conversion thresholds, per spec: hysteresis avoids thrash near the
// boundary, and the offset gate keeps small envelopes on whichever
// representation they started with.
const (
	conversionOffsetGate  = 100_000
	denseToSparseDensity  = 0.08
	sparseToDenseDensity  = 0.10
	maxWordsPerAllocation = 1 << 26 // guards pathological growth requests
)

// PostingSet is the set of document ids that share one (field, key) pair.
// It adapts between a dense bitmap and a sparse integer array depending on
// how densely packed its contents are. PostingSet has no internal lock: the
// contract is that only the WriteQueue worker mutates it, and buffers it
// replaces are retired through a ReclaimQueue rather than freed in place, so
// a concurrent reader that captured the old buffer keeps reading valid data
// until the grace period elapses.
type PostingSet struct {
	kind Kind

	min, max               uint32
	minAligned, maxAligned uint32
	size                   uint32

	dense  []uint64
	sparse []uint32
	// capacity is the allocated length of sparse; distinct from size, which
	// is the logical count of ids currently stored (grows 2x when exhausted,
	// starting at 1, so the array is not reallocated on every append).
	capacity int

	fieldID uint32
	metrics *Metrics
}

// NewPostingSet returns an empty posting set owned by fieldID. Its
// representation is decided on the first Add. metrics may be nil, in which
// case dense<->sparse conversions are simply not recorded.
func NewPostingSet(fieldID uint32, metrics *Metrics) *PostingSet {
	return &PostingSet{kind: Sparse, min: math.MaxUint32, fieldID: fieldID, metrics: metrics}
}

// Size returns the cardinality of the set (count of adds not yet balanced
// by a matching delete, assuming no duplicate adds — see Add).
func (p *PostingSet) Size() uint32 { return p.size }

// Kind reports the current internal representation.
func (p *PostingSet) Kind() Kind { return p.kind }

// Min, Max, MinAligned, MaxAligned expose the envelope tracked by the set.
func (p *PostingSet) Min() uint32        { return p.min }
func (p *PostingSet) Max() uint32        { return p.max }
func (p *PostingSet) MinAligned() uint32 { return p.minAligned }
func (p *PostingSet) MaxAligned() uint32 { return p.maxAligned }

// Add inserts v into the set. Duplicate adds of the same value are not
// deduplicated: a sparse representation will store v twice, and converting
// such a set to Dense collapses the duplicate, exactly as the reference
// implementation behaves (see spec §9 — this is documented, not "fixed").
func (p *PostingSet) Add(v uint32, rq *ReclaimQueue) error {
	if p.size == 0 {
		return p.addFirst(v, rq)
	}

	offset := p.max - p.min
	var density float64
	if offset > 0 {
		density = float64(p.size) / float64(offset)
	}

	if p.kind == Dense && offset > conversionOffsetGate && density < denseToSparseDensity {
		if err := p.convertToSparse(rq); err != nil {
			return err
		}
	} else if p.kind == Sparse && offset > conversionOffsetGate && density > sparseToDenseDensity {
		if err := p.convertToDense(rq); err != nil {
			return err
		}
	}

	if p.kind == Dense {
		return p.denseAdd(v, rq)
	}
	return p.sparseAdd(v, rq)
}

func (p *PostingSet) addFirst(v uint32, rq *ReclaimQueue) error {
	minAligned, maxAligned := alignedEnvelope(v, v)
	wc := wordCount(minAligned, maxAligned)
	if wc > maxWordsPerAllocation {
		return ErrAlloc
	}
	// A set emptied by deletes still holds its old buffer; retire it like
	// any other replaced buffer.
	if p.dense != nil {
		rq.Retire(p.dense)
	}
	if p.sparse != nil {
		rq.Retire(p.sparse)
		p.sparse = nil
		p.capacity = 0
	}
	p.dense = make([]uint64, wc)
	p.min, p.max = v, v
	p.minAligned, p.maxAligned = minAligned, maxAligned
	p.kind = Dense
	setBit(p.dense, v-minAligned)
	p.size = 1
	return nil
}

func (p *PostingSet) denseAdd(v uint32, rq *ReclaimQueue) error {
	switch {
	case v < p.minAligned:
		newMinAligned := (v / WordBits) * WordBits
		wc := wordCount(newMinAligned, p.maxAligned)
		if wc > maxWordsPerAllocation {
			return ErrAlloc
		}
		newBuf := make([]uint64, wc)
		offsetWords := int((p.minAligned - newMinAligned) / WordBits)
		copy(newBuf[offsetWords:], p.dense)
		rq.Retire(p.dense)
		p.dense = newBuf
		p.minAligned = newMinAligned

	case v > p.maxAligned:
		newMaxAligned := growthAlignedMax(v)
		wc := wordCount(p.minAligned, newMaxAligned)
		if wc > maxWordsPerAllocation {
			return ErrAlloc
		}
		newBuf := make([]uint64, wc)
		copy(newBuf, p.dense)
		rq.Retire(p.dense)
		p.dense = newBuf
		p.maxAligned = newMaxAligned
	}

	setBit(p.dense, v-p.minAligned)
	if v < p.min {
		p.min = v
	}
	if v > p.max {
		p.max = v
	}
	p.size++
	return nil
}

func (p *PostingSet) sparseAdd(v uint32, rq *ReclaimQueue) error {
	if int(p.size) >= p.capacity {
		newCap := p.capacity * 2
		if newCap == 0 {
			newCap = 1
		}
		newArr := make([]uint32, newCap)
		copy(newArr, p.sparse)
		rq.Retire(p.sparse)
		p.sparse = newArr
		p.capacity = newCap
	}
	p.sparse[p.size] = v
	p.size++

	if v < p.min {
		p.min = v
	}
	if v > p.max {
		p.max = v
	}
	p.minAligned, p.maxAligned = alignedEnvelope(p.min, p.max)
	return nil
}

// Delete removes one occurrence of v from the set. It returns ErrLookupMiss
// if v is not present; the caller logs and treats this as non-fatal per
// spec §7. Dense deletes never tighten min/max — the envelope only grows
// over the lifetime of a set, a known and accepted limitation (spec §9).
func (p *PostingSet) Delete(v uint32) error {
	if p.size == 0 {
		return ErrLookupMiss
	}
	if p.kind == Dense {
		if v < p.minAligned || v > p.maxAligned || !testBit(p.dense, v-p.minAligned) {
			return ErrLookupMiss
		}
		clearBit(p.dense, v-p.minAligned)
		p.size--
		return nil
	}

	for i := uint32(0); i < p.size; i++ {
		if p.sparse[i] == v {
			copy(p.sparse[i:p.size-1], p.sparse[i+1:p.size])
			p.size--
			return nil
		}
	}
	return ErrLookupMiss
}

// Contains reports whether v is currently in the set.
func (p *PostingSet) Contains(v uint32) bool {
	if p.size == 0 {
		return false
	}
	if p.kind == Dense {
		if v < p.minAligned || v > p.maxAligned {
			return false
		}
		return testBit(p.dense, v-p.minAligned)
	}
	for i := uint32(0); i < p.size; i++ {
		if p.sparse[i] == v {
			return true
		}
	}
	return false
}

// Ids returns every contained id, in no particular order. In the Sparse
// representation duplicates introduced by repeated Add calls are preserved;
// a Dense set reports each id once.
func (p *PostingSet) Ids() []uint32 {
	out := make([]uint32, 0, p.size)
	if p.kind == Dense {
		for i := p.minAligned; i <= p.maxAligned; i++ {
			if testBit(p.dense, i-p.minAligned) {
				out = append(out, i)
			}
		}
		return out
	}
	return append(out, p.sparse[:p.size]...)
}

// DenseBitmap returns the underlying word slice when the set is Dense. The
// caller must not retain it past a subsequent mutating call — the backing
// array may be swapped out and retired to a ReclaimQueue.
func (p *PostingSet) DenseBitmap() []uint64 { return p.dense }

// convertToSparse rebuilds the set as an unsorted array of its members,
// retiring the dense buffer.
func (p *PostingSet) convertToSparse(rq *ReclaimQueue) error {
	newArr := make([]uint32, p.size)
	n := 0
	for i := p.minAligned; i <= p.maxAligned; i++ {
		if testBit(p.dense, i-p.minAligned) {
			newArr[n] = i
			n++
		}
	}
	rq.Retire(p.dense)
	p.dense = nil
	p.sparse = newArr[:n]
	p.size = uint32(n)
	p.capacity = n
	p.kind = Sparse
	p.recordConversion("dense_to_sparse")
	return nil
}

// convertToDense rebuilds the set as a bitmap spanning its current aligned
// envelope, retiring the sparse array. Duplicate ids in the sparse array
// collapse into a single set bit.
func (p *PostingSet) convertToDense(rq *ReclaimQueue) error {
	wc := wordCount(p.minAligned, p.maxAligned)
	if wc > maxWordsPerAllocation {
		return ErrAlloc
	}
	newBuf := make([]uint64, wc)
	for i := uint32(0); i < p.size; i++ {
		setBit(newBuf, p.sparse[i]-p.minAligned)
	}
	rq.Retire(p.sparse)
	p.sparse = nil
	p.dense = newBuf
	p.kind = Dense
	p.recordConversion("sparse_to_dense")
	return nil
}

// recordConversion increments PostingSetConversions for this set's field, a
// no-op when the set was constructed without a Metrics instance.
func (p *PostingSet) recordConversion(direction string) {
	if p.metrics == nil {
		return
	}
	p.metrics.PostingSetConversions.WithLabelValues(strconv.Itoa(int(p.fieldID)), direction).Inc()
}

func setBit(words []uint64, i uint32) {
	words[i/64] |= 1 << (i % 64)
}

func clearBit(words []uint64, i uint32) {
	words[i/64] &^= 1 << (i % 64)
}

func testBit(words []uint64, i uint32) bool {
	return words[i/64]&(1<<(i%64)) != 0
}
