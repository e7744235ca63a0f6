// kdb-bench exercises a page cache in-process and reports fault and
// throughput numbers. Every written page is digested with BLAKE3 and
// verified on read-back, so a run doubles as an integrity check.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/zeebo/blake3"

	"github.com/kvmdb/kdbcache/internal/statlog"
	"github.com/kvmdb/kdbcache/pkg/pagecache"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := flag.NewFlagSet("kdb-bench", flag.ContinueOnError)

	cpSize := flags.Uint64("cp-size", 4096, "canonical page size in bytes")
	lpSize := flags.Uint64("lp-size", 1<<20, "logical page size in bytes")
	pages := flags.Uint64("pages", 256, "number of logical pages")
	maxBytes := flags.Uint64("max-bytes", 0, "backing memory budget, 0 = unbounded")
	writes := flags.Int("writes", 1000, "number of page writes")
	pattern := flags.String("pattern", "seq", "access pattern: seq or rand")
	seed := flags.Int64("seed", 1, "seed for the rand pattern")
	recordDB := flags.String("record", "", "record the final snapshot to this stats database")
	label := flags.String("label", "bench", "label for recorded snapshots")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}

		return err
	}

	if *pattern != "seq" && *pattern != "rand" {
		return fmt.Errorf("unknown pattern %q (want seq or rand)", *pattern)
	}

	cache := pagecache.New(pagecache.Options{MaxBytes: *maxBytes})
	defer cache.Close()

	layout := pagecache.Layout{CPSize: *cpSize, LPSize: *lpSize, NLPN: *pages}
	if err := cache.SetLayout(layout); err != nil {
		return fmt.Errorf("installing layout: %w", err)
	}

	region, err := cache.Map()
	if err != nil {
		return fmt.Errorf("mapping region: %w", err)
	}
	defer region.Close()

	fmt.Printf("layout: %d pages x %d bytes (%d-byte canonical pages, %d total)\n",
		layout.NLPN, layout.LPSize, layout.CPSize, layout.TotalBytes())
	fmt.Printf("pattern: %s, %d writes\n\n", *pattern, *writes)

	elapsed, err := runWrites(region, layout, *writes, *pattern, *seed)
	if err != nil {
		return err
	}

	mb := float64(*writes) * float64(layout.LPSize) / (1 << 20)
	fmt.Printf("wrote %d pages (%.1f MiB) in %v (%.1f MiB/s)\n",
		*writes, mb, elapsed.Round(time.Millisecond), mb/elapsed.Seconds())

	verified, verifyElapsed, err := runVerify(region, layout, *writes, *pattern, *seed)
	if err != nil {
		return err
	}

	fmt.Printf("verified %d page digests in %v\n\n", verified, verifyElapsed.Round(time.Millisecond))

	snap := cache.Stats()
	fmt.Printf("total_faults:     %d\n", snap.TotalFaults)
	fmt.Printf("total_mkwrite:    %d\n", snap.TotalMkwrite)
	fmt.Printf("total_cp_alloc:   %d\n", snap.TotalCPAlloc)
	fmt.Printf("total_lp_created: %d\n", snap.TotalLPCreated)
	fmt.Printf("dirty_pages:      %d\n", snap.DirtyPages)
	fmt.Printf("allocated_cp:     %d\n", snap.AllocatedCP)
	fmt.Printf("allocated_lp:     %d\n", snap.AllocatedLP)

	if *recordDB != "" {
		log, err := statlog.Open(context.Background(), *recordDB)
		if err != nil {
			return err
		}
		defer log.Close()

		if err := log.Record(context.Background(), *label, snap); err != nil {
			return err
		}

		fmt.Printf("\nrecorded as %q in %s\n", *label, *recordDB)
	}

	return nil
}

// targets yields the page sequence for one pass. Both passes must see
// the same sequence so verification digests line up with what was
// written last to each page.
func targets(n int, pages uint64, pattern string, seed int64) []uint64 {
	out := make([]uint64, n)

	if pattern == "rand" {
		rng := rand.New(rand.NewSource(seed))
		for i := range out {
			out[i] = uint64(rng.Int63n(int64(pages)))
		}

		return out
	}

	for i := range out {
		out[i] = uint64(i) % pages
	}

	return out
}

// pageContent fills buf with a pattern derived from the page number and
// the write ordinal, so repeated writes to one page are distinguishable.
func pageContent(buf []byte, lpn uint64, ordinal int) {
	seed := lpn*2654435761 + uint64(ordinal)

	for i := range buf {
		seed = seed*6364136223846793005 + 1442695040888963407
		buf[i] = byte(seed >> 56)
	}
}

func runWrites(region *pagecache.Region, layout pagecache.Layout, n int, pattern string, seed int64) (time.Duration, error) {
	buf := make([]byte, layout.LPSize)
	start := time.Now()

	for i, lpn := range targets(n, layout.NLPN, pattern, seed) {
		pageContent(buf, lpn, i)

		if _, err := region.WriteAt(buf, int64(lpn)*int64(layout.LPSize)); err != nil {
			return 0, fmt.Errorf("write page %d: %w", lpn, err)
		}
	}

	return time.Since(start), nil
}

// runVerify replays the write sequence to find the last content written
// to each touched page, then reads each page back and compares BLAKE3
// digests.
func runVerify(region *pagecache.Region, layout pagecache.Layout, n int, pattern string, seed int64) (int, time.Duration, error) {
	lastOrdinal := make(map[uint64]int)
	for i, lpn := range targets(n, layout.NLPN, pattern, seed) {
		lastOrdinal[lpn] = i
	}

	expect := make([]byte, layout.LPSize)
	got := make([]byte, layout.LPSize)
	start := time.Now()

	for lpn, ordinal := range lastOrdinal {
		pageContent(expect, lpn, ordinal)
		want := blake3.Sum256(expect)

		if _, err := region.ReadAt(got, int64(lpn)*int64(layout.LPSize)); err != nil {
			return 0, 0, fmt.Errorf("read page %d: %w", lpn, err)
		}

		if blake3.Sum256(got) != want {
			return 0, 0, fmt.Errorf("page %d: digest mismatch after read-back", lpn)
		}
	}

	return len(lastOrdinal), time.Since(start), nil
}
