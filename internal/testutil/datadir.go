package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/dwcorrupt/internal/page"
)

// Doublewrite layout of a generated system file.
const (
	LayoutLegacy  = "legacy"
	LayoutCurrent = "current"
)

// On-disk doublewrite constants, duplicated here so fixtures are built from
// the format itself rather than from the code under test.
const (
	trxSysPage        = 5
	dblwrFromEnd      = 200
	dblwrMagic        = 536853855
	dblwrMagicOff     = 10
	dblwrBlock1Off    = 14
	dblwrBlock2Off    = 18
	dblwrBlockBytes   = 1 << 20
	dblwrListCountOff = page.OffData
	dblwrListOff      = page.OffData + 2
)

// Space describes one generated tablespace file.
type Space struct {
	ID    uint32
	DB    string // subdirectory, default "test"
	Name  string // file name without extension
	Pages int
}

// Entry identifies a page protected by the generated doublewrite buffer.
type Entry struct {
	Space uint32
	Page  uint32
}

// DataDirOptions configures [NewDataDir].
type DataDirOptions struct {
	PageSize int    // default 16384
	Layout   string // LayoutLegacy (default) or LayoutCurrent
	Spaces   []Space
	Entries  []Entry
	NoMagic  bool // leave the doublewrite magic unset
}

// DataDir is a synthetic server data directory on disk.
type DataDir struct {
	t          testing.TB
	Dir        string
	SystemPath string
	Format     page.Format
	Block1     uint32
	Block2     uint32
	paths      map[uint32]string
}

// NewDataDir writes a system file with a doublewrite buffer and one .ibd file
// per space into a fresh temp directory.
//
// Every tablespace page carries its own page number and space id plus a body
// pattern derived from both, so any mutation is detectable. In the legacy
// layout each entry's page is copied into the blocks in order; in the current
// layout the header page lists the entries and block2 holds the copies.
func NewDataDir(t testing.TB, opts DataDirOptions) *DataDir {
	t.Helper()

	if opts.PageSize == 0 {
		opts.PageSize = page.DefaultSize
	}

	if opts.Layout == "" {
		opts.Layout = LayoutLegacy
	}

	f := page.MustNew(opts.PageSize)
	blockPages := dblwrBlockBytes / f.Size()

	d := &DataDir{
		t:      t,
		Dir:    t.TempDir(),
		Format: f,
		Block1: uint32(blockPages),
		Block2: uint32(2 * blockPages),
		paths:  make(map[uint32]string),
	}
	d.SystemPath = filepath.Join(d.Dir, "ibdata1")

	for _, sp := range opts.Spaces {
		db := sp.DB
		if db == "" {
			db = "test"
		}

		dir := filepath.Join(d.Dir, db)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}

		data := make([]byte, sp.Pages*f.Size())
		for i := range sp.Pages {
			copy(data[i*f.Size():], d.SpacePage(sp.ID, uint32(i)))
		}

		path := filepath.Join(dir, sp.Name+".ibd")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}

		d.paths[sp.ID] = path
	}

	sys := make([]byte, 3*blockPages*f.Size())
	for i := range 3 * blockPages {
		p := page.Page(sys[i*f.Size() : (i+1)*f.Size()])
		p.SetNumber(uint32(i))
		p.SetType(page.TypeAllocated)
	}

	trx := d.sysPage(sys, trxSysPage)
	trx.SetType(page.TypeTrxSys)

	hdr := f.Size() - dblwrFromEnd
	if !opts.NoMagic {
		page.Write4(trx, hdr+dblwrMagicOff, dblwrMagic)
	}

	page.Write4(trx, hdr+dblwrBlock1Off, d.Block1)
	page.Write4(trx, hdr+dblwrBlock2Off, d.Block2)

	switch opts.Layout {
	case LayoutLegacy:
		for i, e := range opts.Entries {
			var slot uint32
			if i < blockPages {
				slot = d.Block1 + uint32(i)
			} else {
				slot = d.Block2 + uint32(i-blockPages)
			}

			copy(d.sysPage(sys, slot), d.SpacePage(e.Space, e.Page))
		}
	case LayoutCurrent:
		head := d.sysPage(sys, d.Block1)
		head.SetType(page.TypeDoublewriteHeader)
		page.Write2(head, dblwrListCountOff, uint16(len(opts.Entries)))

		for i, e := range opts.Entries {
			page.Write4(head, dblwrListOff+8*i, e.Space)
			page.Write4(head, dblwrListOff+8*i+4, e.Page)
			copy(d.sysPage(sys, d.Block2+uint32(i)), d.SpacePage(e.Space, e.Page))
		}

		page.Stamp(head)
	default:
		t.Fatalf("unknown layout %q", opts.Layout)
	}

	if err := os.WriteFile(d.SystemPath, sys, 0o600); err != nil {
		t.Fatalf("write %s: %v", d.SystemPath, err)
	}

	d.paths[0] = d.SystemPath

	return d
}

func (d *DataDir) sysPage(sys []byte, n uint32) page.Page {
	off := int(n) * d.Format.Size()

	return page.Page(sys[off : off+d.Format.Size()])
}

// SpacePage returns the generated contents of page pageNo of space.
func (d *DataDir) SpacePage(space, pageNo uint32) page.Page {
	p := d.Format.Alloc()
	p.SetNumber(pageNo)
	p.SetSpaceID(space)
	p.SetType(page.TypeIndex)
	p.SetLSN(uint64(space)<<32 | uint64(pageNo))

	for i := page.OffData; i < len(p)-page.TrailerSize; i++ {
		p[i] = byte(uint32(i) ^ space*31 ^ pageNo*17)
	}

	return p
}

// SpacePath returns the file generated for space.
func (d *DataDir) SpacePath(space uint32) string {
	d.t.Helper()

	p, ok := d.paths[space]
	if !ok {
		d.t.Fatalf("no file for space %d", space)
	}

	return p
}

// ReadPage reads page pageNo straight from the file of space.
func (d *DataDir) ReadPage(space, pageNo uint32) page.Page {
	d.t.Helper()

	return d.ReadFilePage(d.SpacePath(space), pageNo)
}

// ReadFilePage reads page pageNo of path without going through the code
// under test.
func (d *DataDir) ReadFilePage(path string, pageNo uint32) page.Page {
	d.t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		d.t.Fatalf("read %s: %v", path, err)
	}

	off := d.Format.Offset(pageNo)
	if off+int64(d.Format.Size()) > int64(len(data)) {
		d.t.Fatalf("%s has no page %d", path, pageNo)
	}

	return page.Page(data[off : off+int64(d.Format.Size())])
}

// ReadFile returns the raw bytes of path.
func (d *DataDir) ReadFile(path string) []byte {
	d.t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		d.t.Fatalf("read %s: %v", path, err)
	}

	return data
}
