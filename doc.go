/*
Package rangeindex implements a multi-field range and tag index for
accelerating document-search filter predicates of the form
"field BETWEEN low AND high" (numeric fields) and "field IN {tags}"
(string fields).

# Overview

For each indexed field the package maintains an ordered map from
distinct encoded key values to a posting set of document ids sharing
that key. Posting sets adapt between a dense bitmap representation and
a sparse integer array depending on how densely the ids they contain
are packed, so that both a handful of scattered ids and millions of
tightly clustered ones stay cheap to store and scan.

Writes are asynchronous: Add and Delete enqueue work and return
immediately, while a single background worker applies mutations to
the ordered maps and posting sets. Buffers replaced during posting-set
growth are not freed in place — they are handed to a reclaim queue and
released only after a grace period, so that a concurrent reader that
captured a pointer before a swap never observes freed memory.

# Quick Start

	store := rangeindex.NewInMemoryDocumentStore()
	idx := rangeindex.New(rangeindex.DefaultConfig(), store)
	defer idx.Close(context.Background())

	idx.AddField(0, rangeindex.FieldNumeric)
	idx.AddField(1, rangeindex.FieldString)

	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, uint64(int64(100)))
	store.Put(5, 0, raw)
	idx.Add(5, 0)

	result, err := idx.Search([]rangeindex.FilterInfo{
		rangeindex.RangeFilter(0, int64(50), int64(150)),
	})

# Concurrency

A single writer goroutine mutates ordered maps and posting sets; any
number of query goroutines may read concurrently without blocking each
other. Posting sets are read without a lock; ordered-map lookups take a
shared read latch that the writer takes exclusively while inserting a
new key, so a query and the writer can briefly wait on each other.
Visibility of in-flight writes is relaxed (best effort): Add and Delete
return before the worker applies them, so a query may not yet see a
write enqueued just before it, and may see one applied while it runs.

# What this package does not do

It does not persist its state across process restarts (the caller is
expected to rebuild the index by replaying document writes), does not
provide transactional isolation between concurrent queries, and does
not rank or score results — it produces doc-id bitmaps for the caller
to intersect with other retrieval signals.
*/
package rangeindex
