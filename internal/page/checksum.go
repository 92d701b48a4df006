package page

import "hash/adler32"

// Checksum computes the header checksum the engine validates on read.
//
// A single Adler-32 state, seeded at its initial value, is fed three ranges
// in order: page number through the start of the LSN, the type tag, and the
// space id through the end of the page. The checksum field itself, the LSN
// and the flush LSN are not covered.
func Checksum(p Page) uint32 {
	mustFit(p, OffSpaceID, 4)

	h := adler32.New()
	_, _ = h.Write(p[OffNumber:OffLSN])
	_, _ = h.Write(p[OffType : OffType+2])
	_, _ = h.Write(p[OffSpaceID:])

	return h.Sum32()
}

// Stamp recomputes the checksum and stores it at offset 0.
func Stamp(p Page) uint32 {
	sum := Checksum(p)
	Write4(p, OffChecksum, sum)

	return sum
}

// Verify reports whether the stored checksum matches the contents.
func Verify(p Page) bool {
	return p.StoredChecksum() == Checksum(p)
}
