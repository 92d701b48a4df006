// Package page decodes and encodes the fixed-offset fields of raw storage
// engine pages.
//
// All multi-byte fields are big-endian. Offsets are fixed by the engine's
// on-disk format and are never derived at runtime; only the page size varies,
// and it is carried in an immutable [Format] value.
package page

import (
	"errors"
	"fmt"
)

// FIL header field offsets (bytes from page start).
const (
	OffChecksum   = 0  // uint32, space id or checksum
	OffNumber     = 4  // uint32, page number within the file
	OffPrev       = 8  // uint32
	OffNext       = 12 // uint32
	OffLSN        = 16 // uint64
	OffType       = 24 // uint16
	OffFlushLSN   = 26 // uint64, only meaningful in page 0 of the system file
	OffSpaceID    = 34 // uint32
	OffData       = 38 // start of page body
	HeaderSize    = OffData
	TrailerSize   = 8
	SpaceIDProbe  = 4096 // bytes read from a file to discover its space id
	MinPageSize   = 4096
	MaxPageSize   = 65536
	DefaultSize   = 16384
	bodyRangeLow  = 256
	bodyRangeHigh = 768
)

// Page type tags.
const (
	TypeAllocated         uint16 = 0
	TypeUndoLog           uint16 = 2
	TypeInode             uint16 = 3
	TypeSys               uint16 = 6
	TypeTrxSys            uint16 = 7
	TypeFspHdr            uint16 = 8
	TypeDoublewriteHeader uint16 = 13
	TypeIndex             uint16 = 17855
)

// ErrInvalidPageSize is returned by [New] for sizes the engine cannot use.
var ErrInvalidPageSize = errors.New("invalid page size")

// Format is the per-run page geometry. The zero value is not usable; build
// one with [New].
type Format struct {
	size int
}

// New validates pageSize and returns the matching Format. The size must be a
// power of two between [MinPageSize] and [MaxPageSize].
func New(pageSize int) (Format, error) {
	if pageSize < MinPageSize || pageSize > MaxPageSize || pageSize&(pageSize-1) != 0 {
		return Format{}, fmt.Errorf("%w: %d (want power of two in [%d, %d])",
			ErrInvalidPageSize, pageSize, MinPageSize, MaxPageSize)
	}

	return Format{size: pageSize}, nil
}

// MustNew is like [New] but panics on an invalid size. For tests and constants.
func MustNew(pageSize int) Format {
	f, err := New(pageSize)
	if err != nil {
		panic(err)
	}

	return f
}

// Size returns the page size in bytes.
func (f Format) Size() int { return f.size }

// Offset returns the byte offset of page pageNo within its file.
func (f Format) Offset(pageNo uint32) int64 {
	return int64(pageNo) * int64(f.size)
}

// BodyRange returns the inclusive byte range a corruption may land in. It
// starts well past the FIL header so the damage hits page content.
func (f Format) BodyRange() (lo, hi int) {
	return bodyRangeLow, bodyRangeHigh
}

// Alloc returns a zeroed page buffer.
func (f Format) Alloc() Page {
	return make(Page, f.size)
}

func (f Format) String() string {
	return fmt.Sprintf("page_size=%d", f.size)
}
