package dblwr

import (
	"fmt"

	"github.com/calvinalkan/dwcorrupt/internal/page"
	"github.com/calvinalkan/dwcorrupt/internal/pagefile"
	"github.com/calvinalkan/dwcorrupt/pkg/fs"
)

// Entry identifies one page protected by the buffer.
type Entry struct {
	Space uint32 `json:"space"`
	Page  uint32 `json:"page"`
}

func (e Entry) String() string {
	return fmt.Sprintf("space_id=%d page_no=%d", e.Space, e.Page)
}

// Buffer is an opened doublewrite buffer. It holds no file handles; every
// method reopens the system file.
type Buffer struct {
	fs     fs.FS
	path   string
	format page.Format
	header Header
	layout Layout
}

// Open locates the buffer in the system file at systemPath and detects its
// layout.
func Open(fsys fs.FS, systemPath string, f page.Format) (*Buffer, error) {
	h, err := Locate(fsys, systemPath, f)
	if err != nil {
		return nil, err
	}

	layout, err := DetectLayout(fsys, systemPath, f, h)
	if err != nil {
		return nil, err
	}

	return &Buffer{fs: fsys, path: systemPath, format: f, header: h, layout: layout}, nil
}

// Header returns the decoded header.
func (b *Buffer) Header() Header { return b.header }

// Layout returns the layout detected by [Open].
func (b *Buffer) Layout() Layout { return b.layout }

// Path returns the system file path.
func (b *Buffer) Path() string { return b.path }

// Entries lists the (space, page) pairs currently held by the buffer, in
// on-disk order. Entries of the system space (id 0) are unused slots and are
// skipped.
func (b *Buffer) Entries() ([]Entry, error) {
	if b.layout == LayoutCurrent {
		return b.listEntries()
	}

	return b.blockEntries()
}

func (b *Buffer) blockEntries() ([]Entry, error) {
	n := BlockPages(b.format)
	size := b.format.Size()

	var entries []Entry

	for _, start := range []uint32{b.header.Block1, b.header.Block2} {
		buf, err := pagefile.Read(b.fs, b.path, b.format, start, n)
		if err != nil {
			return nil, fmt.Errorf("reading block at page %d: %w", start, err)
		}

		for i := range n {
			p := page.Page(buf[i*size : (i+1)*size])
			if p.SpaceID() == 0 {
				continue
			}

			entries = append(entries, Entry{Space: p.SpaceID(), Page: p.Number()})
		}
	}

	return entries, nil
}

func (b *Buffer) headerPage() (page.Page, error) {
	p, err := pagefile.ReadPage(b.fs, b.path, b.format, b.header.Block1)
	if err != nil {
		return nil, fmt.Errorf("reading header page: %w", err)
	}

	return p, nil
}

func (b *Buffer) capacity() int {
	return (b.format.Size() - offList - page.TrailerSize) / listEntrySize
}

func (b *Buffer) listEntries() ([]Entry, error) {
	p, err := b.headerPage()
	if err != nil {
		return nil, err
	}

	count := int(page.Read2(p, offListCount))
	if count > b.capacity() {
		return nil, fmt.Errorf("%w: count %d, capacity %d", ErrCorruptList, count, b.capacity())
	}

	var entries []Entry

	for i := range count {
		off := offList + i*listEntrySize

		space := page.Read4(p, off)
		if space == 0 {
			continue
		}

		entries = append(entries, Entry{Space: space, Page: page.Read4(p, off+4)})
	}

	return entries, nil
}

// Accepts reports whether mode can be seeded into this buffer: nil, an
// [ErrInvalidMode] error or a [*WrongModeError].
func (b *Buffer) Accepts(mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}

	if mode.ExpectedLayout() != b.layout {
		return &WrongModeError{Mode: mode, Layout: b.layout}
	}

	return nil
}

// Insert records e in the buffer so that recovery in mode will consider it.
//
// Full mode needs the legacy layout and a complete page image in data; the
// image overwrites the first page of block1. Reduced mode needs the current
// layout and writes e as the first entry of the page list, setting the count
// to 1 if the list was empty and restamping the header checksum; data is
// ignored.
//
// A mode that does not match the layout returns [*WrongModeError] and
// leaves the file untouched. Inserting twice overwrites the first insert.
func (b *Buffer) Insert(mode Mode, e Entry, data []byte) error {
	if err := b.Accepts(mode); err != nil {
		return err
	}

	if b.layout == LayoutCurrent {
		return b.insertListEntry(e)
	}

	return b.insertImage(e, data)
}

func (b *Buffer) insertImage(e Entry, data []byte) error {
	if len(data) != b.format.Size() {
		return fmt.Errorf("%w: got %d bytes, page size %d", pagefile.ErrNotPageAligned, len(data), b.format.Size())
	}

	p := page.Page(data)
	if p.SpaceID() != e.Space || p.Number() != e.Page {
		return fmt.Errorf("%w: page holds space_id=%d page_no=%d, entry is %s",
			ErrEntryMismatch, p.SpaceID(), p.Number(), e)
	}

	if err := pagefile.Write(b.fs, b.path, b.format, b.header.Block1, p); err != nil {
		return fmt.Errorf("writing block1: %w", err)
	}

	return nil
}

func (b *Buffer) insertListEntry(e Entry) error {
	p, err := b.headerPage()
	if err != nil {
		return err
	}

	if page.Read2(p, offListCount) == 0 {
		page.Write2(p, offListCount, 1)
	}

	page.Write4(p, offList, e.Space)
	page.Write4(p, offList+4, e.Page)
	page.Stamp(p)

	if err := pagefile.Write(b.fs, b.path, b.format, b.header.Block1, p); err != nil {
		return fmt.Errorf("writing header page: %w", err)
	}

	return nil
}
