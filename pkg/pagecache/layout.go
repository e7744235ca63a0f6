package pagecache

import "fmt"

// MaxCPPerLP bounds how many canonical pages may compose one logical
// page. Matches the fixed per-record backing array of the reference
// device.
const MaxCPPerLP = 1024

const maxInt64 = uint64(1)<<63 - 1

// Layout is the immutable-once-active cache geometry.
//
// A logical page is composed of LPSize/CPSize canonical pages. The zero
// Layout means "never configured" and is what [Cache.GetLayout] returns
// before the first successful [Cache.SetLayout].
type Layout struct {
	// CPSize is the canonical page size in bytes.
	CPSize uint64

	// LPSize is the logical page size in bytes. Must be a positive
	// multiple of CPSize.
	LPSize uint64

	// NLPN is the number of logical page slots.
	NLPN uint64
}

// Validate reports whether the layout is usable.
// Returns [ErrInvalidArgument] describing the first violation found.
func (l Layout) Validate() error {
	if l.CPSize == 0 {
		return fmt.Errorf("%w: canonical page size is zero", ErrInvalidArgument)
	}

	if l.LPSize == 0 {
		return fmt.Errorf("%w: logical page size is zero", ErrInvalidArgument)
	}

	if l.NLPN == 0 {
		return fmt.Errorf("%w: logical page count is zero", ErrInvalidArgument)
	}

	if l.LPSize%l.CPSize != 0 {
		return fmt.Errorf("%w: logical page size %d is not a multiple of canonical page size %d",
			ErrInvalidArgument, l.LPSize, l.CPSize)
	}

	if perLP := l.LPSize / l.CPSize; perLP > MaxCPPerLP {
		return fmt.Errorf("%w: %d canonical pages per logical page exceeds max %d",
			ErrInvalidArgument, perLP, MaxCPPerLP)
	}

	if l.NLPN > maxInt64/l.LPSize {
		return fmt.Errorf("%w: total size %d*%d overflows int64", ErrInvalidArgument, l.NLPN, l.LPSize)
	}

	return nil
}

// IsZero reports whether the layout has never been configured.
func (l Layout) IsZero() bool {
	return l == Layout{}
}

// CPPerLP returns the number of canonical pages per logical page.
// Only meaningful for validated layouts.
func (l Layout) CPPerLP() uint64 {
	if l.CPSize == 0 {
		return 0
	}

	return l.LPSize / l.CPSize
}

// TotalBytes returns the size of the mapped region, NLPN*LPSize.
// Only meaningful for validated layouts.
func (l Layout) TotalBytes() uint64 {
	return l.NLPN * l.LPSize
}
