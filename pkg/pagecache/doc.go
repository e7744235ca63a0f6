// Package pagecache provides a fault-driven canonical/logical page cache.
//
// The cache exposes a large, sparsely populated byte range and backs it
// lazily with fixed-size canonical pages allocated on first touch. It is
// the storage substrate for a database that wants page-grained dirty
// tracking without materializing the whole range up front.
//
// # Basic Usage
//
//	c := pagecache.New(pagecache.Options{})
//	defer c.Close()
//
//	err := c.SetLayout(pagecache.Layout{
//	    CPSize: 4096,
//	    LPSize: 1 << 20,
//	    NLPN:   256,
//	})
//	if err != nil {
//	    // handle [ErrInvalidArgument]/[ErrAlreadyActive]
//	}
//
//	region, err := c.Map()
//	defer region.Close()
//
//	// First touch of a logical page allocates its full backing extent,
//	// zero-filled. First write marks the page dirty.
//	region.WriteAt(payload, 0)
//	region.ReadAt(buf, 0)
//
//	snap := c.Stats()
//
// # Concurrency
//
// A [Region] is safe for concurrent use by multiple goroutines. Per
// logical page, state transitions are linearizable: when N goroutines
// fault the same unallocated page, exactly one performs the allocation
// and counter updates; the rest observe the installed backing. Statistics
// reads never take per-page locks and never block fault handling.
//
// The region has MAP_SHARED semantics: all handles from the same [Cache]
// see the same bytes, and the cache provides no per-caller isolation.
//
// # Error Handling
//
// Caller mistakes ([ErrInvalidArgument], [ErrAlreadyActive],
// [ErrOutOfRange]) are surfaced synchronously and are not retried.
// [ErrResourceExhausted] is fatal to the triggering access; the cache
// never retries a fault internally.
package pagecache
