package pagefile_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/dwcorrupt/internal/page"
	"github.com/calvinalkan/dwcorrupt/internal/pagefile"
	"github.com/calvinalkan/dwcorrupt/pkg/fs"
)

func newFile(t *testing.T, f page.Format, pages int) string {
	t.Helper()

	data := make([]byte, pages*f.Size())
	for i := range pages {
		page.Page(data[i*f.Size():]).SetNumber(uint32(i))
	}

	path := filepath.Join(t.TempDir(), "t1.ibd")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	return path
}

func Test_ReadPage_Returns_Page_When_In_Range(t *testing.T) {
	t.Parallel()

	f := page.MustNew(4096)
	path := newFile(t, f, 4)

	p, err := pagefile.ReadPage(fs.NewReal(), path, f, 3)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}

	if got, want := p.Number(), uint32(3); got != want {
		t.Fatalf("Number=%d, want=%d", got, want)
	}
}

func Test_Read_Returns_ErrShortRead_When_Past_End(t *testing.T) {
	t.Parallel()

	f := page.MustNew(4096)
	path := newFile(t, f, 2)

	_, err := pagefile.Read(fs.NewReal(), path, f, 1, 2)
	if !errors.Is(err, pagefile.ErrShortRead) {
		t.Fatalf("err=%v, want %v", err, pagefile.ErrShortRead)
	}
}

func Test_Write_Persists_Data_When_Aligned(t *testing.T) {
	t.Parallel()

	f := page.MustNew(4096)
	path := newFile(t, f, 3)
	fsys := fs.NewReal()

	want := bytes.Repeat([]byte{0x5A}, f.Size())
	if err := pagefile.Write(fsys, path, f, 1, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := pagefile.ReadPage(fsys, path, f, 1)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}

	if !bytes.Equal(got, want) {
		t.Fatal("page 1 not persisted")
	}
}

func Test_Write_Rejects_Data_When_Not_Page_Aligned(t *testing.T) {
	t.Parallel()

	f := page.MustNew(4096)
	path := newFile(t, f, 1)

	err := pagefile.Write(fs.NewReal(), path, f, 0, make([]byte, 100))
	if !errors.Is(err, pagefile.ErrNotPageAligned) {
		t.Fatalf("err=%v, want %v", err, pagefile.ErrNotPageAligned)
	}
}

func Test_Write_Surfaces_Error_When_Sync_Fails(t *testing.T) {
	t.Parallel()

	f := page.MustNew(4096)
	path := newFile(t, f, 1)
	chaos := fs.NewChaos(fs.NewReal(), 1, &fs.ChaosConfig{SyncFailRate: 1.0})

	err := pagefile.Write(chaos, path, f, 0, make([]byte, f.Size()))
	if err == nil || !fs.IsChaosErr(err) {
		t.Fatalf("err=%v, want injected sync error", err)
	}
}
