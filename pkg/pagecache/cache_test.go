package pagecache

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGetLayoutBeforeConfigurationReturnsZero(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	defer func() { _ = c.Close() }()

	if got := c.GetLayout(); !got.IsZero() {
		t.Errorf("GetLayout before configuration = %+v, want zero", got)
	}
}

func TestSetLayoutReplacesDescriptor(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	defer func() { _ = c.Close() }()

	first := Layout{CPSize: 4096, LPSize: 8192, NLPN: 4}
	second := Layout{CPSize: 512, LPSize: 4096, NLPN: 16}

	if err := c.SetLayout(first); err != nil {
		t.Fatalf("SetLayout: %v", err)
	}

	// No page has left UNALLOCATED, so reconfiguration is allowed.
	if err := c.SetLayout(second); err != nil {
		t.Fatalf("SetLayout while inactive: %v", err)
	}

	if diff := cmp.Diff(second, c.GetLayout()); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestSetLayoutRejectsInvalidDescriptor(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	defer func() { _ = c.Close() }()

	err := c.SetLayout(Layout{CPSize: 4096, LPSize: 4097, NLPN: 4})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("SetLayout = %v, want ErrInvalidArgument", err)
	}

	if got := c.GetLayout(); !got.IsZero() {
		t.Errorf("failed SetLayout must not install a descriptor, got %+v", got)
	}
}

func TestSetLayoutFailsWhileMappingOpen(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	defer func() { _ = c.Close() }()

	if err := c.SetLayout(testLayout()); err != nil {
		t.Fatalf("SetLayout: %v", err)
	}

	region, err := c.Map()
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	if err := c.SetLayout(testLayout()); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("SetLayout with open mapping = %v, want ErrAlreadyActive", err)
	}

	if err := region.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Handle released and no pages allocated: reconfiguration allowed again.
	if err := c.SetLayout(testLayout()); err != nil {
		t.Errorf("SetLayout after closing mapping = %v, want nil", err)
	}
}

func TestSetLayoutFailsAfterFirstFault(t *testing.T) {
	t.Parallel()

	c, region := newTestRegion(t, Options{})

	if _, err := region.ReadAt(make([]byte, 1), 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}

	if err := region.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Even with no open mapping, an allocated page keeps the cache active.
	err := c.SetLayout(testLayout())
	if !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("SetLayout after fault = %v, want ErrAlreadyActive", err)
	}
}

func TestMapBeforeLayoutFails(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	defer func() { _ = c.Close() }()

	if _, err := c.Map(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Map before SetLayout = %v, want ErrInvalidArgument", err)
	}
}

func TestMappedRegionSizeMatchesLayout(t *testing.T) {
	t.Parallel()

	_, region := newTestRegion(t, Options{})

	want := int64(testLayout().TotalBytes())

	if region.Size() != want {
		t.Errorf("Size() = %d, want %d", region.Size(), want)
	}
}

func TestSharedMappingVisibility(t *testing.T) {
	t.Parallel()

	c, r1 := newTestRegion(t, Options{})

	r2, err := c.Map()
	if err != nil {
		t.Fatalf("second Map: %v", err)
	}

	defer func() { _ = r2.Close() }()

	if _, err := r1.WriteAt([]byte("shared"), 100); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	buf := make([]byte, 6)

	if _, err := r2.ReadAt(buf, 100); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}

	if string(buf) != "shared" {
		t.Errorf("second handle read %q, want %q", buf, "shared")
	}
}

func TestCacheCloseIsTerminalAndIdempotent(t *testing.T) {
	t.Parallel()

	c := New(Options{})

	if err := c.SetLayout(testLayout()); err != nil {
		t.Fatalf("SetLayout: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	if _, err := c.Map(); !errors.Is(err, ErrClosed) {
		t.Errorf("Map after Close = %v, want ErrClosed", err)
	}

	if err := c.SetLayout(testLayout()); !errors.Is(err, ErrClosed) {
		t.Errorf("SetLayout after Close = %v, want ErrClosed", err)
	}
}

func TestCacheCloseMakesOpenRegionsUnusable(t *testing.T) {
	t.Parallel()

	c, region := newTestRegion(t, Options{})

	if _, err := region.WriteAt([]byte("live"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Previously backed page: the handle must go dead, not read freed
	// memory.
	if _, err := region.ReadAt(make([]byte, 4), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadAt after cache Close = %v, want ErrClosed", err)
	}

	// Never-touched page: no fresh allocation from a torn-down cache.
	lpSize := int64(testLayout().LPSize)

	if _, err := region.WriteAt([]byte{1}, 2*lpSize); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteAt after cache Close = %v, want ErrClosed", err)
	}

	if _, err := region.DirtyCPs(0); !errors.Is(err, ErrClosed) {
		t.Errorf("DirtyCPs after cache Close = %v, want ErrClosed", err)
	}
}

func TestCacheCloseDefersBackingReleaseUntilLastHandle(t *testing.T) {
	t.Parallel()

	c := New(Options{})

	if err := c.SetLayout(testLayout()); err != nil {
		t.Fatalf("SetLayout: %v", err)
	}

	region, err := c.Map()
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	if _, err := region.WriteAt([]byte{1}, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The open handle pins the slabs even though the cache is closed.
	allocated, _, _ := c.PoolStats()
	if want := testLayout().CPPerLP(); allocated != want {
		t.Errorf("allocated = %d with handle open after Close, want %d", allocated, want)
	}

	if err := region.Close(); err != nil {
		t.Fatalf("region Close: %v", err)
	}

	// Last handle gone: everything is released.
	allocated, totalAllocs, totalFrees := c.PoolStats()
	if allocated != 0 || totalAllocs != 0 || totalFrees != 0 {
		t.Errorf("PoolStats after last handle = %d/%d/%d, want 0/0/0", allocated, totalAllocs, totalFrees)
	}
}

func TestPoolStatsTrackAllocationLifecycle(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	defer func() { _ = c.Close() }()

	if err := c.SetLayout(testLayout()); err != nil {
		t.Fatalf("SetLayout: %v", err)
	}

	region, err := c.Map()
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	if _, err := region.WriteAt([]byte{1}, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	perLP := testLayout().CPPerLP()

	allocated, totalAllocs, totalFrees := c.PoolStats()
	if allocated != perLP || totalAllocs != perLP || totalFrees != 0 {
		t.Errorf("PoolStats = %d/%d/%d, want %d/%d/0", allocated, totalAllocs, totalFrees, perLP, perLP)
	}

	if err := region.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
