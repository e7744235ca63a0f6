package pagecache

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// slabCPs is how many canonical pages each backing slab holds. Slabs are
// obtained from the OS in one mmap each, so the pool grows in coarse
// steps while handing out fine-grained pages.
const slabCPs = 256

// poolStats mirrors the reference cp_pool counters.
type poolStats struct {
	allocated   uint64 // pages currently handed out
	totalAllocs uint64 // pages handed out since init
	totalFrees  uint64 // pages returned (drain only; no per-page free path)
}

// pool allocates zero-filled canonical pages carved out of anonymous
// shared memory slabs. Zero fill comes from the OS: fresh anonymous
// mappings read as zeros.
type pool struct {
	mu sync.Mutex

	cpSize   uint64
	maxBytes uint64 // 0 = unbounded

	slabs [][]byte // live mappings, unmapped on drain
	cur   []byte   // uncarved remainder of the newest slab

	stats poolStats
}

func newPool(cpSize, maxBytes uint64) *pool {
	return &pool{cpSize: cpSize, maxBytes: maxBytes}
}

// alloc returns n zero-filled canonical pages, or ErrResourceExhausted
// with the pool unchanged. All-or-nothing: any slab mapped for a request
// that then fails is released before returning.
func (p *pool) alloc(n int) ([][]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: allocation count %d", ErrInvalidArgument, n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	need := uint64(n)

	// Budget compare in whole pages; multiplying out the byte count can
	// wrap uint64 for huge page sizes.
	if p.maxBytes != 0 {
		budget := p.maxBytes / p.cpSize
		if need > budget || p.stats.allocated > budget-need {
			return nil, fmt.Errorf("%w: %d pages of %d bytes over budget %d",
				ErrResourceExhausted, p.stats.allocated+need, p.cpSize, p.maxBytes)
		}
	}

	// Map any additional slabs first so failure leaves the pool intact.
	have := uint64(len(p.cur)) / p.cpSize

	var fresh [][]byte

	for have < need {
		slab, err := p.mapSlab()
		if err != nil {
			for _, s := range fresh {
				_ = unix.Munmap(s)
			}

			return nil, err
		}

		fresh = append(fresh, slab)
		have += uint64(len(slab)) / p.cpSize
	}

	p.slabs = append(p.slabs, fresh...)

	pages := make([][]byte, 0, n)

	for i := 0; i < n; i++ {
		if uint64(len(p.cur)) < p.cpSize {
			// Fresh slabs were appended in order; the previous remainder
			// is always smaller than one page here and is abandoned.
			p.cur = fresh[0]
			fresh = fresh[1:]
		}

		pages = append(pages, p.cur[:p.cpSize:p.cpSize])
		p.cur = p.cur[p.cpSize:]
	}

	p.stats.allocated += need
	p.stats.totalAllocs += need

	return pages, nil
}

func (p *pool) mapSlab() ([]byte, error) {
	size := p.cpSize * slabCPs
	if size/slabCPs != p.cpSize || size > maxInt64 {
		// Page size too large to batch; one page per slab.
		size = p.cpSize
	}

	slab, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrResourceExhausted, size, err)
	}

	return slab, nil
}

// drain releases every slab. Outstanding page slices become invalid; the
// caller must have discarded all records first.
func (p *pool) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, slab := range p.slabs {
		_ = unix.Munmap(slab)
	}

	p.slabs = nil
	p.cur = nil
	p.stats.totalFrees += p.stats.allocated
	p.stats.allocated = 0
}

// snapshotStats returns the cp_pool counter triple.
func (p *pool) snapshotStats() poolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats
}
