package rangeindex

import (
	"bytes"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FieldType distinguishes numeric range fields from string tag fields.
type FieldType int

const (
	// FieldNumeric fields support range queries; keys are the ordered
	// numeric encoding from numeric_encoding.go.
	FieldNumeric FieldType = iota
	// FieldString fields support tag union/intersection queries; raw
	// values are tokenized on a delimiter byte.
	FieldString
)

func (t FieldType) String() string {
	if t == FieldNumeric {
		return "numeric"
	}
	return "string"
}

// DefaultDelimiter is the byte used to separate tag tokens within one raw
// string field value, matching the default B-tree parameter in spec §6.
const DefaultDelimiter = 0x01

// FieldIndex owns one OrderedKeyMap for a single field and knows how to
// turn a document's raw field bytes into one or more index keys.
type FieldIndex struct {
	fieldID     uint32
	fieldType   FieldType
	numericKind NumericKind
	delim       byte
	keys        *OrderedKeyMap
	log         zerolog.Logger
}

// NewFieldIndex constructs a FieldIndex for fieldID. numericKind is
// ignored for string fields. The B-tree parameters (§6) tune the
// underlying substrate; only Delimiter is exercised by this in-memory
// implementation, the rest describe the persistent substrate a production
// deployment would configure. metrics may be nil.
func NewFieldIndex(fieldID uint32, fieldType FieldType, numericKind NumericKind, params BTreeParameters, metrics *Metrics) *FieldIndex {
	delim := params.Delimiter
	if delim == 0 {
		delim = DefaultDelimiter
	}
	return &FieldIndex{
		fieldID:     fieldID,
		fieldType:   fieldType,
		numericKind: numericKind,
		delim:       delim,
		keys:        NewOrderedKeyMap(fieldID, metrics),
		log:         log.With().Str("component", "field_index").Uint32("field_id", fieldID).Logger(),
	}
}

// IsNumeric reports whether this field is range-queryable.
func (f *FieldIndex) IsNumeric() bool { return f.fieldType == FieldNumeric }

// Delim returns the tag delimiter byte for string fields.
func (f *FieldIndex) Delim() byte { return f.delim }

// NumericKind returns the field's configured numeric layout, meaningless
// for a FieldString field.
func (f *FieldIndex) NumericKind() NumericKind { return f.numericKind }

// Add indexes docID under rawKey. For numeric fields rawKey is the raw
// little-endian value bytes exactly as DocumentStore.GetRaw returns them;
// FieldIndex derives the ordered key itself from the field's configured
// NumericKind. For string fields rawKey is split on the delimiter and
// every token is indexed independently; duplicate tokens in one value are
// not deduplicated.
func (f *FieldIndex) Add(rawKey []byte, docID uint32, rq *ReclaimQueue) error {
	if f.fieldType == FieldNumeric {
		encoded, err := encodeRawNumericKey(rawKey, f.numericKind)
		if err != nil {
			return err
		}
		ps := f.keys.Upsert(encoded)
		return ps.Add(docID, rq)
	}

	for _, token := range bytes.Split(rawKey, []byte{f.delim}) {
		ps := f.keys.Upsert(token)
		if err := ps.Add(docID, rq); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes docID from the posting set(s) for rawKey. A missing key
// or a docID not present in the target posting set is logged and treated
// as non-fatal.
func (f *FieldIndex) Delete(rawKey []byte, docID uint32) error {
	if f.fieldType == FieldNumeric {
		encoded, err := encodeRawNumericKey(rawKey, f.numericKind)
		if err != nil {
			return err
		}
		ps, ok := f.keys.Get(encoded)
		if !ok {
			f.log.Warn().Bytes("key", encoded).Msg("delete: key not found")
			return ErrLookupMiss
		}
		if err := ps.Delete(docID); err != nil {
			f.log.Warn().Uint32("doc_id", docID).Msg("delete: doc id not found in posting set")
			return err
		}
		return nil
	}

	var lastErr error
	for _, token := range bytes.Split(rawKey, []byte{f.delim}) {
		ps, ok := f.keys.Get(token)
		if !ok {
			f.log.Warn().Bytes("token", token).Msg("delete: tag not found")
			lastErr = ErrLookupMiss
			continue
		}
		if err := ps.Delete(docID); err != nil {
			f.log.Warn().Uint32("doc_id", docID).Msg("delete: doc id not found in posting set")
			lastErr = err
		}
	}
	return lastErr
}

// SearchNumeric range-scans keys in [encode(low), encode(high)] and merges
// their posting sets into a RangeResult window covering the smallest
// word-aligned envelope containing every contributing posting set.
//
// Returns the envelope width (> 0, "non-empty of this size") on a
// non-empty result, 0 for an empty intersection, or a negative sentinel
// meaning "not applicable" is never produced by this method (only
// MultiFieldIndex composes the "universal / skip" case for missing
// fields).
func (f *FieldIndex) SearchNumeric(low, high any) (*RangeResult, int, error) {
	lowKey, err := EncodeNumericKey(low)
	if err != nil {
		return nil, 0, err
	}
	highKey, err := EncodeNumericKey(high)
	if err != nil {
		return nil, 0, err
	}

	matches := f.keys.RangeScan(lowKey, highKey)
	return mergePostingSets(matches)
}

// SearchTags splits rawTags on the field delimiter and unions the posting
// sets of every token found (missing tokens are ignored, not an error).
func (f *FieldIndex) SearchTags(rawTags []byte) (*RangeResult, int, error) {
	var matches []entry
	for _, token := range bytes.Split(rawTags, []byte{f.delim}) {
		if ps, ok := f.keys.Get(token); ok {
			matches = append(matches, entry{Key: token, PostingSet: ps})
		}
	}
	return mergePostingSets(matches)
}

// mergePostingSets implements the shared merge logic of SearchNumeric and
// SearchTags (spec §4.4): compute the joint envelope, OR/union every
// posting set's bits into a fresh bitmap at the right word offset, and sum
// approximate doc counts (duplicates across keys count multiply, per §9 —
// this is a documented approximation, not a bug to fix here).
func mergePostingSets(matches []entry) (*RangeResult, int, error) {
	if len(matches) == 0 {
		return nil, 0, nil
	}

	globalMinAligned := matches[0].PostingSet.MinAligned()
	globalMaxAligned := matches[0].PostingSet.MaxAligned()
	globalMin := matches[0].PostingSet.Min()
	globalMax := matches[0].PostingSet.Max()

	for _, m := range matches[1:] {
		ps := m.PostingSet
		if ps.MinAligned() < globalMinAligned {
			globalMinAligned = ps.MinAligned()
		}
		if ps.MaxAligned() > globalMaxAligned {
			globalMaxAligned = ps.MaxAligned()
		}
		if ps.Min() < globalMin {
			globalMin = ps.Min()
		}
		if ps.Max() > globalMax {
			globalMax = ps.Max()
		}
	}

	if globalMax < globalMin {
		return nil, 0, nil
	}

	wc := wordCount(globalMinAligned, globalMaxAligned)
	bitmap := make([]uint64, wc)
	var docCount uint64

	for _, m := range matches {
		ps := m.PostingSet
		if ps.Kind() == Dense {
			offsetWords := int((ps.MinAligned() - globalMinAligned) / WordBits)
			src := ps.DenseBitmap()
			for i, w := range src {
				bitmap[offsetWords+i] |= w
			}
		} else {
			for _, v := range ps.Ids() {
				setBit(bitmap, v-globalMinAligned)
			}
		}
		docCount += uint64(ps.Size())
	}

	result := &RangeResult{
		MinAligned: globalMinAligned,
		MaxAligned: globalMaxAligned,
		Bitmap:     bitmap,
		DocCount:   docCount,
	}
	width := int(globalMax - globalMin + 1)
	return result, width, nil
}
