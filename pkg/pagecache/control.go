package pagecache

import (
	"encoding/binary"
	"fmt"
)

// Control-plane opcodes. The wire records mirror the reference device's
// ioctl structs: fixed-layout little-endian fields, one record per op.
const (
	OpSetLayout  uint32 = 1
	OpGetLayout  uint32 = 2
	OpGetStats   uint32 = 3
	OpResetStats uint32 = 4
)

// Wire record sizes in bytes.
const (
	LayoutRecordSize = 24 // 3 x uint64
	StatsRecordSize  = 72 // 7 x uint64 + 4 x uint32
)

// MarshalLayout encodes a layout descriptor as a wire record.
func MarshalLayout(l Layout) []byte {
	buf := make([]byte, LayoutRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], l.CPSize)
	binary.LittleEndian.PutUint64(buf[8:16], l.LPSize)
	binary.LittleEndian.PutUint64(buf[16:24], l.NLPN)

	return buf
}

// UnmarshalLayout decodes a layout wire record.
func UnmarshalLayout(buf []byte) (Layout, error) {
	if len(buf) != LayoutRecordSize {
		return Layout{}, fmt.Errorf("%w: layout record is %d bytes, want %d",
			ErrInvalidArgument, len(buf), LayoutRecordSize)
	}

	return Layout{
		CPSize: binary.LittleEndian.Uint64(buf[0:8]),
		LPSize: binary.LittleEndian.Uint64(buf[8:16]),
		NLPN:   binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

// MarshalSnapshot encodes a statistics snapshot as a wire record.
func MarshalSnapshot(s Snapshot) []byte {
	buf := make([]byte, StatsRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], s.TotalFaults)
	binary.LittleEndian.PutUint64(buf[8:16], s.TotalMkwrite)
	binary.LittleEndian.PutUint64(buf[16:24], s.TotalCPAlloc)
	binary.LittleEndian.PutUint64(buf[24:32], s.TotalLPCreated)
	binary.LittleEndian.PutUint64(buf[32:40], s.DirtyPages)
	binary.LittleEndian.PutUint64(buf[40:48], s.AllocatedCP)
	binary.LittleEndian.PutUint64(buf[48:56], s.AllocatedLP)
	binary.LittleEndian.PutUint32(buf[56:60], s.P50ReadUS)
	binary.LittleEndian.PutUint32(buf[60:64], s.P99ReadUS)
	binary.LittleEndian.PutUint32(buf[64:68], s.P50WriteUS)
	binary.LittleEndian.PutUint32(buf[68:72], s.P99WriteUS)

	return buf
}

// UnmarshalSnapshot decodes a statistics wire record.
func UnmarshalSnapshot(buf []byte) (Snapshot, error) {
	if len(buf) != StatsRecordSize {
		return Snapshot{}, fmt.Errorf("%w: stats record is %d bytes, want %d",
			ErrInvalidArgument, len(buf), StatsRecordSize)
	}

	return Snapshot{
		TotalFaults:    binary.LittleEndian.Uint64(buf[0:8]),
		TotalMkwrite:   binary.LittleEndian.Uint64(buf[8:16]),
		TotalCPAlloc:   binary.LittleEndian.Uint64(buf[16:24]),
		TotalLPCreated: binary.LittleEndian.Uint64(buf[24:32]),
		DirtyPages:     binary.LittleEndian.Uint64(buf[32:40]),
		AllocatedCP:    binary.LittleEndian.Uint64(buf[40:48]),
		AllocatedLP:    binary.LittleEndian.Uint64(buf[48:56]),
		P50ReadUS:      binary.LittleEndian.Uint32(buf[56:60]),
		P99ReadUS:      binary.LittleEndian.Uint32(buf[60:64]),
		P50WriteUS:     binary.LittleEndian.Uint32(buf[64:68]),
		P99WriteUS:     binary.LittleEndian.Uint32(buf[68:72]),
	}, nil
}

// Control dispatches control-plane records against a cache, the way the
// reference device dispatches ioctls. Transports (see internal/ctl) frame
// the records; Control owns opcode semantics.
type Control struct {
	Cache *Cache
}

// Handle executes one control request and returns the response payload.
// Empty-payload ops require an empty payload.
func (ct *Control) Handle(op uint32, payload []byte) ([]byte, error) {
	switch op {
	case OpSetLayout:
		l, err := UnmarshalLayout(payload)
		if err != nil {
			return nil, err
		}

		if err := ct.Cache.SetLayout(l); err != nil {
			return nil, err
		}

		return nil, nil

	case OpGetLayout:
		if len(payload) != 0 {
			return nil, fmt.Errorf("%w: GET_LAYOUT takes no payload", ErrInvalidArgument)
		}

		return MarshalLayout(ct.Cache.GetLayout()), nil

	case OpGetStats:
		if len(payload) != 0 {
			return nil, fmt.Errorf("%w: GET_STATS takes no payload", ErrInvalidArgument)
		}

		return MarshalSnapshot(ct.Cache.Stats()), nil

	case OpResetStats:
		if len(payload) != 0 {
			return nil, fmt.Errorf("%w: RESET_STATS takes no payload", ErrInvalidArgument)
		}

		ct.Cache.ResetStats()

		return nil, nil

	default:
		return nil, fmt.Errorf("%w: unknown opcode %d", ErrInvalidArgument, op)
	}
}
