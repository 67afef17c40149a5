package rangeindex

import "errors"

// Error taxonomy for the index. Writer-side errors are logged and
// swallowed beyond a best-effort return code; reader-side errors surface
// to the query caller as empty results plus one of these sentinels.
var (
	// ErrNoFieldIndex is returned when an operation names a field that has
	// no FieldIndex registered via AddField. Writes silently no-op;
	// queries treat the filter as "universal" (unconstrained).
	ErrNoFieldIndex = errors.New("rangeindex: no field index for field id")

	// ErrAlloc is returned when a PostingSet buffer allocation fails. The
	// triggering operation leaves PostingSet state unchanged.
	ErrAlloc = errors.New("rangeindex: buffer allocation failed")

	// ErrLookupMiss is returned internally when a delete targets a key or
	// doc id that is not present. Logged, never fatal.
	ErrLookupMiss = errors.New("rangeindex: key or doc id not found")

	// ErrEnqueueFull is returned when the WriteQueue is at capacity and
	// cannot accept another operation without blocking past its deadline.
	ErrEnqueueFull = errors.New("rangeindex: queue is full")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("rangeindex: index is closed")

	// ErrEncoding is returned when a numeric key's byte width does not
	// match any supported encoding.
	ErrEncoding = errors.New("rangeindex: invalid numeric key encoding")
)
