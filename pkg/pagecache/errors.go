package pagecache

import "errors"

// Sentinel errors returned by pagecache operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, pagecache.ErrResourceExhausted) {
//	    // backing store exhausted; treat the access as failed
//	}
var (
	// ErrInvalidArgument indicates a malformed layout or request.
	//
	// Common causes: zero canonical page size, a logical page size that
	// is not a multiple of the canonical page size, zero page count, or
	// a control payload of the wrong length.
	//
	// This is a programming error.
	ErrInvalidArgument = errors.New("pagecache: invalid argument")

	// ErrAlreadyActive indicates a layout change was attempted after
	// activation.
	//
	// The cache activates when any logical page leaves the unallocated
	// state or a mapping handle is open.
	//
	// Recovery: close all regions and tear down the cache, then
	// reconfigure a fresh instance.
	ErrAlreadyActive = errors.New("pagecache: already active")

	// ErrOutOfRange indicates an access addressed a nonexistent logical
	// page. The access is not counted as a handled fault.
	ErrOutOfRange = errors.New("pagecache: out of range")

	// ErrResourceExhausted indicates backing allocation failed.
	//
	// The triggering fault is fatal; no partial allocation is left
	// behind. The cache does not retry internally, since a silent retry
	// could mask a persistent resource leak.
	ErrResourceExhausted = errors.New("pagecache: resource exhausted")

	// ErrClosed indicates the [Cache] or [Region] has been closed.
	//
	// This is a programming error.
	ErrClosed = errors.New("pagecache: closed")
)
