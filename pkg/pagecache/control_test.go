package pagecache

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLayoutRecordRoundTrip(t *testing.T) {
	t.Parallel()

	l := Layout{CPSize: 4096, LPSize: 1 << 20, NLPN: 256}

	got, err := UnmarshalLayout(MarshalLayout(l))
	if err != nil {
		t.Fatalf("UnmarshalLayout: %v", err)
	}

	if diff := cmp.Diff(l, got); diff != "" {
		t.Errorf("layout round trip (-want +got):\n%s", diff)
	}

	if _, err := UnmarshalLayout(make([]byte, LayoutRecordSize-1)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("short record = %v, want ErrInvalidArgument", err)
	}
}

func TestSnapshotRecordRoundTrip(t *testing.T) {
	t.Parallel()

	s := Snapshot{
		TotalFaults:    101,
		TotalMkwrite:   33,
		TotalCPAlloc:   4096,
		TotalLPCreated: 16,
		DirtyPages:     12,
		AllocatedCP:    4096,
		AllocatedLP:    16,
		P50ReadUS:      10,
		P99ReadUS:      900,
		P50WriteUS:     25,
		P99WriteUS:     4000,
	}

	got, err := UnmarshalSnapshot(MarshalSnapshot(s))
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}

	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("snapshot round trip (-want +got):\n%s", diff)
	}

	if _, err := UnmarshalSnapshot(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty record = %v, want ErrInvalidArgument", err)
	}
}

func TestControlDispatch(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	defer func() { _ = c.Close() }()

	ctrl := &Control{Cache: c}

	layout := Layout{CPSize: 4096, LPSize: 8192, NLPN: 4}

	// SET_LAYOUT installs the descriptor.
	resp, err := ctrl.Handle(OpSetLayout, MarshalLayout(layout))
	if err != nil {
		t.Fatalf("SET_LAYOUT: %v", err)
	}

	if resp != nil {
		t.Errorf("SET_LAYOUT response = %v, want empty", resp)
	}

	// GET_LAYOUT reads it back.
	resp, err = ctrl.Handle(OpGetLayout, nil)
	if err != nil {
		t.Fatalf("GET_LAYOUT: %v", err)
	}

	got, err := UnmarshalLayout(resp)
	if err != nil {
		t.Fatalf("UnmarshalLayout: %v", err)
	}

	if diff := cmp.Diff(layout, got); diff != "" {
		t.Errorf("GET_LAYOUT (-want +got):\n%s", diff)
	}

	// GET_STATS returns a well-formed record.
	resp, err = ctrl.Handle(OpGetStats, nil)
	if err != nil {
		t.Fatalf("GET_STATS: %v", err)
	}

	if _, err := UnmarshalSnapshot(resp); err != nil {
		t.Fatalf("GET_STATS payload: %v", err)
	}

	// RESET_STATS succeeds with no payload.
	if _, err := ctrl.Handle(OpResetStats, nil); err != nil {
		t.Fatalf("RESET_STATS: %v", err)
	}
}

func TestControlRejectsMalformedRequests(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	defer func() { _ = c.Close() }()

	ctrl := &Control{Cache: c}

	if _, err := ctrl.Handle(99, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unknown opcode = %v, want ErrInvalidArgument", err)
	}

	if _, err := ctrl.Handle(OpSetLayout, []byte{1, 2, 3}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("short SET_LAYOUT = %v, want ErrInvalidArgument", err)
	}

	if _, err := ctrl.Handle(OpGetStats, []byte{1}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("GET_STATS with payload = %v, want ErrInvalidArgument", err)
	}

	// Invalid geometry is rejected at the control surface, not deferred.
	bad := Layout{CPSize: 4096, LPSize: 4097, NLPN: 1}

	if _, err := ctrl.Handle(OpSetLayout, MarshalLayout(bad)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("invalid layout = %v, want ErrInvalidArgument", err)
	}
}

func TestControlSetLayoutWhileActive(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	defer func() { _ = c.Close() }()

	ctrl := &Control{Cache: c}
	layout := testLayout()

	if _, err := ctrl.Handle(OpSetLayout, MarshalLayout(layout)); err != nil {
		t.Fatalf("SET_LAYOUT: %v", err)
	}

	region, err := c.Map()
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	defer func() { _ = region.Close() }()

	if _, err := region.WriteAt([]byte{1}, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	_, err = ctrl.Handle(OpSetLayout, MarshalLayout(layout))
	if !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("SET_LAYOUT while active = %v, want ErrAlreadyActive", err)
	}
}
