package rangeindex

// OrderedKeyMap is an ordered map from variable-length byte keys to a
// PostingSet, backed by the in-memory B+-tree substrate (btree.go). The
// tree itself only stores a small value handle (an arena index) rather
// than a pointer, per spec §9's re-architecture of the source's raw
// pointer-as-payload B-tree values into a stable identifier.
type OrderedKeyMap struct {
	tree    *btree
	arena   []*PostingSet
	fieldID uint32
	metrics *Metrics
}

// NewOrderedKeyMap returns an empty ordered key map whose PostingSets report
// conversions under fieldID. metrics may be nil.
func NewOrderedKeyMap(fieldID uint32, metrics *Metrics) *OrderedKeyMap {
	return &OrderedKeyMap{tree: newBTree(), fieldID: fieldID, metrics: metrics}
}

// Upsert returns the PostingSet for key, creating an empty one and
// inserting it into the tree if key is not already present.
func (m *OrderedKeyMap) Upsert(key []byte) *PostingSet {
	handle := m.tree.Upsert(key, func() uint32 {
		m.arena = append(m.arena, NewPostingSet(m.fieldID, m.metrics))
		return uint32(len(m.arena) - 1)
	})
	return m.arena[handle]
}

// Get returns the PostingSet stored under key, if any.
func (m *OrderedKeyMap) Get(key []byte) (*PostingSet, bool) {
	handle, ok := m.tree.Find(key)
	if !ok {
		return nil, false
	}
	return m.arena[handle], true
}

// entry is one (key, PostingSet) pair yielded by RangeScan.
type entry struct {
	Key        []byte
	PostingSet *PostingSet
}

// RangeScan returns every entry with low <= key <= high in ascending key
// order. A nil low/high bound means unbounded on that side.
func (m *OrderedKeyMap) RangeScan(low, high []byte) []entry {
	cur := m.tree.CursorFrom(low, high)
	defer cur.Close()

	var out []entry
	for {
		key, handle, ok := cur.Next()
		if !ok {
			break
		}
		out = append(out, entry{Key: key, PostingSet: m.arena[handle]})
	}
	return out
}

// Drop discards every entry by releasing the arena and replacing the tree
// with an empty one; it mirrors the abstract substrate's drop() operation
// (spec §3), which in a manually-managed language would destroy each
// PostingSet. In Go this does nothing beyond letting the old arena become
// unreachable.
func (m *OrderedKeyMap) Drop() {
	m.arena = nil
	m.tree = newBTree()
}
