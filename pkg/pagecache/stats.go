package pagecache

import "sync/atomic"

// Snapshot is a point-in-time view of cache statistics.
//
// The first four fields are monotonic event counters cleared by
// [Cache.ResetStats]. The gauges reflect live state and survive a reset.
// The latency summaries are owned by an I/O-timing collaborator (see
// [LatencySource]) and are passed through unchanged.
type Snapshot struct {
	TotalFaults    uint64 // handled faults (out-of-range accesses excluded)
	TotalMkwrite   uint64 // clean->dirty transition events
	TotalCPAlloc   uint64 // canonical pages ever allocated
	TotalLPCreated uint64 // logical pages ever created

	DirtyPages  uint64 // currently dirty logical pages
	AllocatedCP uint64 // currently backed canonical pages
	AllocatedLP uint64 // currently backed logical pages

	P50ReadUS  uint32
	P99ReadUS  uint32
	P50WriteUS uint32
	P99WriteUS uint32
}

// LatencySource supplies the four latency summary fields of a [Snapshot].
//
// The cache does not time I/O itself; a block-device collaborator owns
// these numbers. A nil source yields zeros.
type LatencySource interface {
	LatencySummary() (p50ReadUS, p99ReadUS, p50WriteUS, p99WriteUS uint32)
}

// stats holds the live counters as independent atomics so readers never
// take per-page locks and fault handling never blocks on a reader.
type stats struct {
	totalFaults    atomic.Uint64
	totalMkwrite   atomic.Uint64
	totalCPAlloc   atomic.Uint64
	totalLPCreated atomic.Uint64

	dirtyPages  atomic.Uint64
	allocatedCP atomic.Uint64
	allocatedLP atomic.Uint64
}

// snapshot reads every counter once. The fields are not read atomically
// as a set; each is individually coherent, which is all the wait-free
// contract promises.
func (s *stats) snapshot(lat LatencySource) Snapshot {
	snap := Snapshot{
		TotalFaults:    s.totalFaults.Load(),
		TotalMkwrite:   s.totalMkwrite.Load(),
		TotalCPAlloc:   s.totalCPAlloc.Load(),
		TotalLPCreated: s.totalLPCreated.Load(),
		DirtyPages:     s.dirtyPages.Load(),
		AllocatedCP:    s.allocatedCP.Load(),
		AllocatedLP:    s.allocatedLP.Load(),
	}

	if lat != nil {
		snap.P50ReadUS, snap.P99ReadUS, snap.P50WriteUS, snap.P99WriteUS = lat.LatencySummary()
	}

	return snap
}

// reset clears the monotonic counters only. Gauges track outstanding
// allocation and dirty counts, not history, and are left alone.
func (s *stats) reset() {
	s.totalFaults.Store(0)
	s.totalMkwrite.Store(0)
	s.totalCPAlloc.Store(0)
	s.totalLPCreated.Store(0)
}

// clearGauges is used only when SetLayout discards the whole table.
func (s *stats) clearGauges() {
	s.dirtyPages.Store(0)
	s.allocatedCP.Store(0)
	s.allocatedLP.Store(0)
}
