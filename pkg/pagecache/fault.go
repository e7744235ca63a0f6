package pagecache

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// Region is a data-plane handle over the configured byte range. It
// behaves like a shared mapping: the first touch of a logical page backs
// it with zero-filled canonical pages, the first write marks it dirty,
// and all handles from the same [Cache] observe the same bytes.
//
// Region implements [io.ReaderAt] and [io.WriterAt] over the
// NLPN*LPSize range. Accesses beyond the range fail with [ErrOutOfRange]
// after any in-range prefix has been transferred.
type Region struct {
	cache  *Cache
	layout Layout
	table  *table
	pool   *pool
	closed atomic.Bool
}

// Layout returns the geometry this handle was opened with.
func (r *Region) Layout() Layout {
	return r.layout
}

// Size returns the region length in bytes.
func (r *Region) Size() int64 {
	return int64(r.layout.TotalBytes())
}

// Close releases the handle. Backing pages stay allocated; only tearing
// down the whole [Cache] frees them. Idempotent.
func (r *Region) Close() error {
	if r.closed.Swap(true) {
		return nil
	}

	r.cache.releaseHandle()

	return nil
}

// fault is the synchronous entry point for a logical page access that
// needs intervention. It drives the per-page state machine:
//
//	UNALLOCATED -> ALLOCATING -> CLEAN [-> DIRTY]
//
// Exactly one goroutine wins the UNALLOCATED->ALLOCATING CAS and performs
// the allocation and counter updates; concurrent faulters spin until the
// state settles and then observe the installed backing. total_faults
// counts every access that required intervention (allocation, waiting on
// one, or a clean->dirty transition) exactly once. Reads of backed pages
// and writes to already-dirty pages are not faults.
func (r *Region) fault(lpn uint64, write bool) (*record, error) {
	if r.closed.Load() || r.cache.closed.Load() {
		return nil, ErrClosed
	}

	if lpn >= r.layout.NLPN {
		// Not counted as a handled fault.
		return nil, fmt.Errorf("%w: logical page %d, max %d", ErrOutOfRange, lpn, r.layout.NLPN-1)
	}

	rec := r.table.record(lpn)
	stats := &r.cache.stats
	faulted := false

	for {
		switch rec.state.Load() {
		case stateUnallocated:
			faulted = true

			if !rec.state.CompareAndSwap(stateUnallocated, stateAllocating) {
				continue
			}

			cpPerLP := int(r.layout.CPPerLP())

			backing, err := r.pool.alloc(cpPerLP)
			if err != nil {
				// All-or-nothing: the slot returns to UNALLOCATED and the
				// failed access surfaces the error. Not counted.
				rec.state.Store(stateUnallocated)

				return nil, err
			}

			rec.install(backing, cpPerLP)

			stats.totalLPCreated.Add(1)
			stats.allocatedLP.Add(1)
			stats.totalCPAlloc.Add(uint64(cpPerLP))
			stats.allocatedCP.Add(uint64(cpPerLP))

			if write {
				stats.totalMkwrite.Add(1)
				stats.dirtyPages.Add(1)
				rec.state.Store(stateDirty)
			} else {
				rec.state.Store(stateClean)
			}

			stats.totalFaults.Add(1)

			return rec, nil

		case stateAllocating:
			// Another faulter owns the allocation; wait for it to settle.
			faulted = true

			runtime.Gosched()

		case stateClean:
			if !write {
				if faulted {
					stats.totalFaults.Add(1)
				}

				return rec, nil
			}

			faulted = true

			if rec.state.CompareAndSwap(stateClean, stateDirty) {
				// Transition-only counting: total_mkwrite moves once per
				// page, never again while the page stays dirty.
				stats.totalMkwrite.Add(1)
				stats.dirtyPages.Add(1)
			}

			stats.totalFaults.Add(1)

			return rec, nil

		case stateDirty:
			if faulted {
				stats.totalFaults.Add(1)
			}

			return rec, nil
		}
	}
}

// ReadAt reads from the region at offset off. Logical pages touched for
// the first time are backed and read as zeros.
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	return r.transfer(p, off, false)
}

// WriteAt writes into the region at offset off, marking every touched
// logical page dirty and setting per-canonical-page dirty bits for a
// flush collaborator.
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	return r.transfer(p, off, true)
}

func (r *Region) transfer(p []byte, off int64, write bool) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOutOfRange, off)
	}

	size := r.Size()
	n := 0

	for n < len(p) {
		pos := off + int64(n)
		if pos >= size {
			return n, fmt.Errorf("%w: offset %d beyond region size %d", ErrOutOfRange, pos, size)
		}

		lpn := uint64(pos) / r.layout.LPSize
		pageOff := uint64(pos) % r.layout.LPSize

		span := r.layout.LPSize - pageOff
		if rest := uint64(len(p) - n); rest < span {
			span = rest
		}

		rec, err := r.fault(lpn, write)
		if err != nil {
			return n, err
		}

		if write {
			r.copyIn(rec, pageOff, p[n:n+int(span)])
		} else {
			r.copyOut(rec, pageOff, p[n:n+int(span)])
		}

		n += int(span)
	}

	return n, nil
}

// copyIn copies buf into the page at pageOff, spanning canonical pages as
// needed, and records which canonical pages were touched.
func (r *Region) copyIn(rec *record, pageOff uint64, buf []byte) {
	cpSize := r.layout.CPSize

	rec.mu.Lock()
	defer rec.mu.Unlock()

	first := int(pageOff / cpSize)
	last := int((pageOff + uint64(len(buf)) - 1) / cpSize)

	for n := 0; n < len(buf); {
		cpi := int((pageOff + uint64(n)) / cpSize)
		cpOff := (pageOff + uint64(n)) % cpSize
		n += copy(rec.backing[cpi][cpOff:], buf[n:])
	}

	rec.markDirtyRange(first, last)
}

// copyOut copies from the page at pageOff into buf.
func (r *Region) copyOut(rec *record, pageOff uint64, buf []byte) {
	cpSize := r.layout.CPSize

	rec.mu.Lock()
	defer rec.mu.Unlock()

	for n := 0; n < len(buf); {
		cpi := int((pageOff + uint64(n)) / cpSize)
		cpOff := (pageOff + uint64(n)) % cpSize
		n += copy(buf[n:], rec.backing[cpi][cpOff:])
	}
}

// DirtyCPs returns the indices of the dirty canonical pages of logical
// page lpn, for flush scheduling. An unallocated page has none.
func (r *Region) DirtyCPs(lpn uint64) ([]int, error) {
	if r.closed.Load() || r.cache.closed.Load() {
		return nil, ErrClosed
	}

	if lpn >= r.layout.NLPN {
		return nil, fmt.Errorf("%w: logical page %d, max %d", ErrOutOfRange, lpn, r.layout.NLPN-1)
	}

	rec := r.table.record(lpn)
	if rec.state.Load() != stateDirty {
		return nil, nil
	}

	return rec.dirtyCPs(), nil
}
