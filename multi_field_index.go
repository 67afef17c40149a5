package rangeindex

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FilterInfo describes one field predicate a Search call ANDs together
// with the rest of the slice. LowerValue/UpperValue are pre-encoded
// numeric keys (see EncodeNumericKey) for a FieldNumeric filter, or the
// raw delimiter-joined tag bytes for a FieldString filter — LowerValue
// alone is used in that case and UpperValue is ignored. IsUnion selects
// tag union vs. intersection semantics for a string field; it has no
// effect on a numeric field.
type FilterInfo struct {
	FieldID    uint32
	LowerValue []byte
	UpperValue []byte
	IsUnion    bool
}

// RangeFilter builds a FilterInfo for a numeric range query, encoding low
// and high with EncodeNumericKey. It panics on an unsupported type, since
// a filter constructed with a bad literal is a programming error the
// caller should catch immediately, not a runtime condition to recover
// from mid-query.
func RangeFilter(fieldID uint32, low, high any) FilterInfo {
	lowKey, err := EncodeNumericKey(low)
	if err != nil {
		panic(err)
	}
	highKey, err := EncodeNumericKey(high)
	if err != nil {
		panic(err)
	}
	return FilterInfo{FieldID: fieldID, LowerValue: lowKey, UpperValue: highKey}
}

// TagsFilter builds a FilterInfo for a string field, tokenized the same
// way FieldIndex.Add tokenizes values: union finds documents matching any
// token, intersection (union=false) requires every token to match.
func TagsFilter(fieldID uint32, rawTags []byte, union bool) FilterInfo {
	return FilterInfo{FieldID: fieldID, LowerValue: rawTags, IsUnion: union}
}

// MultiFieldIndex is the package's public entry point: it owns one
// FieldIndex per registered field, a WriteQueue that serializes mutations
// against DocumentStore reads, a ReclaimQueue shared by every field's
// PostingSets, and a roaring bitmap tracking the live document-id universe
// for approximate corpus-size reporting independent of any single field's
// coverage — the same role RoaringMetadataIndex.allDocs plays.
type MultiFieldIndex struct {
	mu     sync.RWMutex
	fields map[uint32]*FieldIndex
	store  DocumentStore

	allDocs *roaring.Bitmap
	docsMu  sync.Mutex

	writeQueue   *WriteQueue
	reclaimQueue *ReclaimQueue
	metrics      *Metrics
	log          zerolog.Logger

	cfg Config

	closed   bool
	closedMu sync.Mutex
}

// New constructs a MultiFieldIndex against store. AddField must be called
// once per field before Add/Delete/Search will do anything useful with it;
// an unregistered field behaves per ErrNoFieldIndex (writes no-op, queries
// treat the filter as unconstrained).
func New(cfg Config, store DocumentStore) *MultiFieldIndex {
	var metrics *Metrics
	if cfg.Metrics.Enabled {
		metrics = NewMetrics(nil)
	}

	m := &MultiFieldIndex{
		fields:       make(map[uint32]*FieldIndex),
		store:        store,
		allDocs:      roaring.New(),
		reclaimQueue: NewReclaimQueue(cfg.ReclaimQueue.Capacity, cfg.ReclaimQueue.GracePeriod, metrics),
		metrics:      metrics,
		log:          log.With().Str("component", "multi_field_index").Logger(),
		cfg:          cfg,
	}
	m.writeQueue = NewWriteQueue(cfg.WriteQueue.Capacity, cfg.WriteQueue.EnqueueWait, m.applyWriteOp, metrics)
	return m
}

// AddField registers fieldID as a numeric or string field. Calling AddField
// twice for the same fieldID replaces its FieldIndex, discarding any data
// already indexed under the old one — callers should register fields
// before indexing any documents.
func (m *MultiFieldIndex) AddField(fieldID uint32, t FieldType) error {
	return m.AddFieldWithKind(fieldID, t, Int64Kind)
}

// AddFieldWithKind registers fieldID with an explicit NumericKind,
// controlling how FieldIndex.Add/Delete interpret DocumentStore's raw
// bytes for this field. numericKind is ignored for FieldString fields.
func (m *MultiFieldIndex) AddFieldWithKind(fieldID uint32, t FieldType, numericKind NumericKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[fieldID] = NewFieldIndex(fieldID, t, numericKind, m.cfg.BTreeParameters, m.metrics)
	return nil
}

// Add enqueues a write indexing docID's current value for fieldID, read
// from DocumentStore when the write is applied. Returns ErrEnqueueFull if
// the write queue is saturated, or ErrClosed after Close.
func (m *MultiFieldIndex) Add(docID, fieldID uint32) error {
	return m.writeQueue.Enqueue(writeOp{kind: opAdd, docID: docID, fieldID: fieldID})
}

// Delete enqueues a write removing docID from fieldID's index.
func (m *MultiFieldIndex) Delete(docID, fieldID uint32) error {
	return m.writeQueue.Enqueue(writeOp{kind: opDelete, docID: docID, fieldID: fieldID})
}

// applyWriteOp is the WriteQueue consumer callback; it runs on the single
// write-queue goroutine only.
func (m *MultiFieldIndex) applyWriteOp(op writeOp) error {
	m.mu.RLock()
	fi, ok := m.fields[op.fieldID]
	m.mu.RUnlock()
	if !ok {
		m.log.Warn().Uint32("field_id", op.fieldID).Msg("write op for unregistered field, dropping")
		return ErrNoFieldIndex
	}

	switch op.kind {
	case opAdd:
		raw, err := m.store.GetRaw(op.docID, op.fieldID)
		if err != nil {
			return err
		}
		if err := fi.Add(raw, op.docID, m.reclaimQueue); err != nil {
			return err
		}
		m.docsMu.Lock()
		m.allDocs.Add(op.docID)
		m.docsMu.Unlock()
		return nil
	case opDelete:
		raw, err := m.store.GetRaw(op.docID, op.fieldID)
		if err != nil {
			return err
		}
		return fi.Delete(raw, op.docID)
	default:
		return nil
	}
}

// Search evaluates filters as an AND across fields (tag filters are
// union/intersection *within* one field per FilterInfo.IsUnion, and every
// resulting per-field RangeResult is then ANDed together across fields).
// A filter naming an unregistered field is treated as unconstrained and
// dropped from the intersection rather than forcing an empty result,
// matching §7's ConfigError handling for writes. Universal=true in the
// returned MultiRangeResult means every filter was unconstrained.
func (m *MultiFieldIndex) Search(filters []FilterInfo) (*MultiRangeResult, error) {
	start := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.QueryLatency.WithLabelValues(strconv.Itoa(len(filters))).Observe(time.Since(start).Seconds())
		}
	}()

	m.closedMu.Lock()
	closed := m.closed
	m.closedMu.Unlock()
	if closed {
		return &MultiRangeResult{Result: emptyRangeResult()}, ErrClosed
	}

	var results []*RangeResult
	constrained := false

	for _, f := range filters {
		m.mu.RLock()
		fi, ok := m.fields[f.FieldID]
		m.mu.RUnlock()
		if !ok {
			m.log.Warn().Uint32("field_id", f.FieldID).Msg("search filter for unregistered field, treating as unconstrained")
			continue
		}

		if fi.IsNumeric() {
			low, high, decErr := decodeFilterBounds(fi.NumericKind(), f.LowerValue, f.UpperValue)
			if decErr != nil {
				return &MultiRangeResult{Result: emptyRangeResult()}, decErr
			}
			r, _, err := fi.SearchNumeric(low, high)
			if err != nil {
				return &MultiRangeResult{Result: emptyRangeResult()}, err
			}
			if r == nil {
				// no match for this field collapses the whole AND to empty.
				return &MultiRangeResult{Result: emptyRangeResult()}, nil
			}
			constrained = true
			results = append(results, r)
			continue
		}

		if f.IsUnion {
			r, _, err := fi.SearchTags(f.LowerValue)
			if err != nil {
				return &MultiRangeResult{Result: emptyRangeResult()}, err
			}
			if r == nil {
				return &MultiRangeResult{Result: emptyRangeResult()}, nil
			}
			constrained = true
			results = append(results, r)
			continue
		}

		// Intersection semantics: every token in the raw tag value must
		// match, so each token becomes its own RangeResult and the outer
		// AND across results (via IntersectRangeResults below) intersects
		// them, rather than unioning them the way a single SearchTags call
		// over the whole delimiter-joined value would.
		for _, token := range bytes.Split(f.LowerValue, []byte{fi.Delim()}) {
			r, _, err := fi.SearchTags(token)
			if err != nil {
				return &MultiRangeResult{Result: emptyRangeResult()}, err
			}
			if r == nil {
				return &MultiRangeResult{Result: emptyRangeResult()}, nil
			}
			constrained = true
			results = append(results, r)
		}
	}

	if !constrained {
		return &MultiRangeResult{Universal: true}, nil
	}

	if m.metrics != nil {
		width := 0
		if len(results) > 0 {
			width = wordCount(results[0].MinAligned, results[0].MaxAligned)
			for _, r := range results[1:] {
				if wc := wordCount(r.MinAligned, r.MaxAligned); wc < width {
					width = wc
				}
			}
		}
		m.metrics.IntersectionDriverWidth.Observe(float64(width))
	}

	return &MultiRangeResult{Result: IntersectRangeResults(results)}, nil
}

// Stats reports the approximate size of the live document-id universe,
// tracked independently of any single field's posting sets.
func (m *MultiFieldIndex) Stats() (docCount uint64) {
	m.docsMu.Lock()
	defer m.docsMu.Unlock()
	return m.allDocs.GetCardinality()
}

// Close shuts down the write queue and reclaim queue, in that order so no
// buffer swap the write queue triggers is retired after the reclaim queue
// has already stopped consuming.
func (m *MultiFieldIndex) Close(ctx context.Context) error {
	m.closedMu.Lock()
	if m.closed {
		m.closedMu.Unlock()
		return nil
	}
	m.closed = true
	m.closedMu.Unlock()

	if err := m.writeQueue.Close(ctx); err != nil {
		return err
	}
	return m.reclaimQueue.Close(ctx)
}
