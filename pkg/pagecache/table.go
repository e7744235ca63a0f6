package pagecache

import (
	"sync"
	"sync/atomic"
)

// Logical page states. The state word is the linearization point for all
// per-page transitions: UNALLOCATED -> ALLOCATING -> CLEAN -> DIRTY.
// ALLOCATING is transient; exactly one faulting goroutine holds it while
// it allocates and installs the backing extent.
const (
	stateUnallocated uint32 = iota
	stateAllocating
	stateClean
	stateDirty
)

// record tracks one logical page slot.
type record struct {
	state atomic.Uint32

	// mu guards backing and dirty. The state word is read and advanced
	// lock-free; the mutex only covers the byte-copy window and bitmap
	// updates so unrelated pages never serialize on each other.
	mu      sync.Mutex
	backing [][]byte // cpPerLP zero-filled canonical pages once backed
	dirty   []uint64 // one bit per canonical page, set on write
}

// table is the fixed arena of logical page records, indexed by LPN.
// Records are created with the table and live until the table is
// discarded; there is no per-page deallocation path.
type table struct {
	records []record
	cpPerLP int
}

func newTable(nlpn, cpPerLP uint64) *table {
	return &table{
		records: make([]record, nlpn),
		cpPerLP: int(cpPerLP),
	}
}

func (t *table) record(lpn uint64) *record {
	return &t.records[lpn]
}

// install publishes the backing extent. Called only by the goroutine
// holding the ALLOCATING state.
func (r *record) install(backing [][]byte, cpPerLP int) {
	r.mu.Lock()
	r.backing = backing
	r.dirty = make([]uint64, (cpPerLP+63)/64)
	r.mu.Unlock()
}

// markDirtyRange sets dirty bits for canonical pages [first, last].
// Caller holds r.mu.
func (r *record) markDirtyRange(first, last int) {
	for cpi := first; cpi <= last; cpi++ {
		r.dirty[cpi/64] |= 1 << (cpi % 64)
	}
}

// dirtyCPs returns the indices of dirty canonical pages.
func (r *record) dirtyCPs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []int

	for i, word := range r.dirty {
		for bit := 0; word != 0 && bit < 64; bit++ {
			if word&(1<<bit) != 0 {
				out = append(out, i*64+bit)
				word &^= 1 << bit
			}
		}
	}

	return out
}
