// Package dblwr models the doublewrite buffer stored in the system file.
//
// The buffer has two on-disk layouts. In the legacy layout the two blocks
// hold verbatim page copies whose own header fields identify them. In the
// current layout the first page of block1 is a header page carrying a count
// and a packed list of (space id, page number) pairs, and the copies live in
// block2. [Open] detects the layout once; [Buffer] dispatches on it so
// callers never branch.
package dblwr

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/dwcorrupt/internal/page"
	"github.com/calvinalkan/dwcorrupt/internal/pagefile"
	"github.com/calvinalkan/dwcorrupt/pkg/fs"
)

// On-disk location of the doublewrite header.
const (
	TrxSysPage    = 5   // page of the system file holding the header
	headerFromEnd = 200 // header starts this many bytes before page end
	offMagic      = 10  // after the 10-byte segment header
	offBlock1     = 14
	offBlock2     = 18
	blockBytes    = 1 << 20

	// Magic marks an initialized doublewrite buffer.
	Magic uint32 = 536853855
)

// Header page list, current layout.
const (
	offListCount  = page.OffData
	offList       = page.OffData + 2
	listEntrySize = 8
)

var (
	// ErrBufferAbsent is returned when the system file has no initialized
	// doublewrite buffer.
	ErrBufferAbsent = errors.New("doublewrite buffer not found")
	// ErrCorruptList is returned when the header page claims more entries
	// than fit in one page.
	ErrCorruptList = errors.New("doublewrite page list exceeds header page")
	// ErrEntryMismatch is returned when a legacy insert is given a page whose
	// own header names a different (space, page) than the entry.
	ErrEntryMismatch = errors.New("page does not match entry")
)

// Header is the decoded doublewrite header.
type Header struct {
	Magic  uint32
	Block1 uint32 // first page of block 1 in the system file
	Block2 uint32 // first page of block 2 in the system file
}

// BlockPages returns the number of pages in one block for f.
func BlockPages(f page.Format) int {
	return blockBytes / f.Size()
}

// Locate reads the doublewrite header from the system file.
func Locate(fsys fs.FS, systemPath string, f page.Format) (Header, error) {
	p, err := pagefile.ReadPage(fsys, systemPath, f, TrxSysPage)
	if err != nil {
		return Header{}, fmt.Errorf("reading trx sys page: %w", err)
	}

	base := f.Size() - headerFromEnd

	h := Header{
		Magic:  page.Read4(p, base+offMagic),
		Block1: page.Read4(p, base+offBlock1),
		Block2: page.Read4(p, base+offBlock2),
	}

	if h.Magic != Magic {
		return Header{}, fmt.Errorf("%w: %s: magic %d, want %d", ErrBufferAbsent, systemPath, h.Magic, Magic)
	}

	return h, nil
}

// Layout is the on-disk layout variant of the buffer.
type Layout uint8

const (
	// LayoutLegacy stores self-describing page copies in both blocks.
	LayoutLegacy Layout = iota + 1
	// LayoutCurrent stores a page list in a header page at block1.
	LayoutCurrent
)

func (l Layout) String() string {
	switch l {
	case LayoutLegacy:
		return "legacy"
	case LayoutCurrent:
		return "current"
	default:
		return fmt.Sprintf("layout(%d)", uint8(l))
	}
}

// DetectLayout reads the type tag of the first page of block1. The
// doublewrite header type selects [LayoutCurrent]; anything else is
// [LayoutLegacy].
func DetectLayout(fsys fs.FS, systemPath string, f page.Format, h Header) (Layout, error) {
	p, err := pagefile.ReadPage(fsys, systemPath, f, h.Block1)
	if err != nil {
		return 0, fmt.Errorf("reading block1: %w", err)
	}

	if p.Type() == page.TypeDoublewriteHeader {
		return LayoutCurrent, nil
	}

	return LayoutLegacy, nil
}
