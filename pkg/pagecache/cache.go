package pagecache

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Options configure a new [Cache].
type Options struct {
	// MaxBytes caps the total backing memory the canonical page pool may
	// hand out. 0 means unbounded.
	MaxBytes uint64

	// Latency supplies the pass-through latency fields of [Snapshot].
	// Optional.
	Latency LatencySource
}

// Cache is a canonical/logical page cache instance.
//
// A Cache starts unconfigured. [Cache.SetLayout] installs the geometry,
// [Cache.Map] opens the data plane. All methods are safe for concurrent
// use.
type Cache struct {
	mu sync.Mutex // guards layout, table/pool swap, handles

	opts   Options
	layout Layout
	table  *table
	pool   *pool

	handles int // open Region count

	// closed is consulted lock-free on the data plane: every fault
	// checks it before touching backing, so regions go dead the moment
	// the cache does.
	closed atomic.Bool

	stats stats
}

// New creates an unconfigured cache.
func New(opts Options) *Cache {
	return &Cache{opts: opts}
}

// SetLayout installs the layout descriptor and resets the page state
// table to all-unallocated.
//
// Fails with [ErrInvalidArgument] if the descriptor is malformed, and
// with [ErrAlreadyActive] if any logical page has been allocated or a
// [Region] is open. The monotonic fault counters survive a layout change;
// the gauges drop to zero with the discarded table.
func (c *Cache) SetLayout(l Layout) error {
	if err := l.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	if c.handles > 0 {
		return fmt.Errorf("%w: %d open mapping(s)", ErrAlreadyActive, c.handles)
	}

	if c.stats.allocatedLP.Load() > 0 {
		return fmt.Errorf("%w: %d logical page(s) allocated", ErrAlreadyActive, c.stats.allocatedLP.Load())
	}

	if c.pool != nil {
		c.pool.drain()
	}

	c.layout = l
	c.table = newTable(l.NLPN, l.CPPerLP())
	c.pool = newPool(l.CPSize, c.opts.MaxBytes)
	c.stats.clearGauges()

	return nil
}

// GetLayout returns the current descriptor. Before the first successful
// SetLayout it returns the zero Layout.
func (c *Cache) GetLayout() Layout {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.layout
}

// Stats returns a statistics snapshot. Wait-free with respect to fault
// handling.
func (c *Cache) Stats() Snapshot {
	return c.stats.snapshot(c.opts.Latency)
}

// ResetStats zeroes the monotonic counters. Gauges are untouched; they
// reflect live allocation and dirty state, not accumulated history.
func (c *Cache) ResetStats() {
	c.stats.reset()
}

// Map establishes a data-plane handle over the configured region of
// NLPN*LPSize bytes. Fails with [ErrInvalidArgument] before a layout is
// configured. Handles share backing: writes through one are visible
// through all.
func (c *Cache) Map() (*Region, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, ErrClosed
	}

	if c.layout.IsZero() {
		return nil, fmt.Errorf("%w: no layout configured", ErrInvalidArgument)
	}

	c.handles++

	return &Region{
		cache:  c,
		layout: c.layout,
		table:  c.table,
		pool:   c.pool,
	}, nil
}

// Close tears down the cache. Open regions become unusable: their next
// access fails with [ErrClosed]. The backing memory stays mapped until
// the last open handle closes, so a copy racing Close finishes against
// live memory; with no handles open it is released immediately. Close
// is idempotent.
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handles == 0 {
		c.teardownLocked()
	}

	return nil
}

// teardownLocked discards the table and unmaps all slabs. Caller holds
// c.mu and has verified no handle can still reach the backing.
func (c *Cache) teardownLocked() {
	c.table = nil

	if c.pool != nil {
		c.pool.drain()
		c.pool = nil
	}
}

func (c *Cache) releaseHandle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handles--

	if c.closed.Load() && c.handles == 0 {
		c.teardownLocked()
	}
}

// PoolStats returns the canonical page pool counters: pages currently
// held, total handed out, and total returned.
func (c *Cache) PoolStats() (allocated, totalAllocs, totalFrees uint64) {
	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()

	if pool == nil {
		return 0, 0, 0
	}

	ps := pool.snapshotStats()

	return ps.allocated, ps.totalAllocs, ps.totalFrees
}
