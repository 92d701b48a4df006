package page

import (
	"encoding/binary"
	"fmt"
)

// Read2 decodes the big-endian uint16 at off.
// Panics if the field does not fit in b.
func Read2(b []byte, off int) uint16 {
	mustFit(b, off, 2)

	return binary.BigEndian.Uint16(b[off:])
}

// Read4 decodes the big-endian uint32 at off.
// Panics if the field does not fit in b.
func Read4(b []byte, off int) uint32 {
	mustFit(b, off, 4)

	return binary.BigEndian.Uint32(b[off:])
}

// Read8 decodes the big-endian uint64 at off.
// Panics if the field does not fit in b.
func Read8(b []byte, off int) uint64 {
	mustFit(b, off, 8)

	return binary.BigEndian.Uint64(b[off:])
}

// Write2 encodes v big-endian at off.
func Write2(b []byte, off int, v uint16) {
	mustFit(b, off, 2)
	binary.BigEndian.PutUint16(b[off:], v)
}

// Write4 encodes v big-endian at off.
func Write4(b []byte, off int, v uint32) {
	mustFit(b, off, 4)
	binary.BigEndian.PutUint32(b[off:], v)
}

// Write8 encodes v big-endian at off.
func Write8(b []byte, off int, v uint64) {
	mustFit(b, off, 8)
	binary.BigEndian.PutUint64(b[off:], v)
}

// Offsets are compile-time constants, so a field that does not fit is a bug
// in the caller, not bad input.
func mustFit(b []byte, off, width int) {
	if off < 0 || off+width > len(b) {
		panic(fmt.Sprintf("page: field [%d,%d) out of range for %d-byte buffer", off, off+width, len(b)))
	}
}

// Page is one raw page. Accessors decode FIL header fields in place.
type Page []byte

// Number returns the page number stored in the header.
func (p Page) Number() uint32 { return Read4(p, OffNumber) }

// SpaceID returns the owning tablespace id stored in the header.
func (p Page) SpaceID() uint32 { return Read4(p, OffSpaceID) }

// Type returns the page type tag.
func (p Page) Type() uint16 { return Read2(p, OffType) }

// LSN returns the page LSN.
func (p Page) LSN() uint64 { return Read8(p, OffLSN) }

// StoredChecksum returns the value in the checksum field.
func (p Page) StoredChecksum() uint32 { return Read4(p, OffChecksum) }

// SetNumber writes the page number field.
func (p Page) SetNumber(n uint32) { Write4(p, OffNumber, n) }

// SetSpaceID writes the tablespace id field.
func (p Page) SetSpaceID(id uint32) { Write4(p, OffSpaceID, id) }

// SetType writes the page type tag.
func (p Page) SetType(t uint16) { Write2(p, OffType, t) }

// SetLSN writes the page LSN.
func (p Page) SetLSN(lsn uint64) { Write8(p, OffLSN, lsn) }

// Clone returns an independent copy of p.
func (p Page) Clone() Page {
	c := make(Page, len(p))
	copy(c, p)

	return c
}
