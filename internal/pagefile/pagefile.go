// Package pagefile reads and writes whole pages of a data file by page number.
//
// Every call opens the file, performs its I/O and closes the handle again;
// nothing is held open between operations. Writes are synced before the
// handle is released because the next step of a trial restarts the server
// and must observe the mutation.
package pagefile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/calvinalkan/dwcorrupt/internal/page"
	"github.com/calvinalkan/dwcorrupt/pkg/fs"
)

var (
	// ErrShortRead is returned when a file ends before the requested pages.
	ErrShortRead = errors.New("short read")
	// ErrShortWrite is returned when fewer bytes than requested were written.
	ErrShortWrite = errors.New("short write")
	// ErrNotPageAligned is returned when a write is not a whole number of pages.
	ErrNotPageAligned = errors.New("data is not a multiple of the page size")
)

// Read returns count consecutive pages starting at pageNo.
func Read(fsys fs.FS, path string, f page.Format, pageNo uint32, count int) ([]byte, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	buf := make([]byte, count*f.Size())

	n, err := file.ReadAt(buf, f.Offset(pageNo))
	if n == len(buf) {
		return buf, nil
	}

	if err == nil || errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s page %d: got %d bytes, expected %d", ErrShortRead, path, pageNo, n, len(buf))
	}

	return nil, fmt.Errorf("read %s page %d: %w", path, pageNo, err)
}

// ReadPage returns the single page pageNo.
func ReadPage(fsys fs.FS, path string, f page.Format, pageNo uint32) (page.Page, error) {
	buf, err := Read(fsys, path, f, pageNo, 1)
	if err != nil {
		return nil, err
	}

	return page.Page(buf), nil
}

// Write stores data, a whole number of pages, starting at pageNo and syncs
// the file before closing it.
func Write(fsys fs.FS, path string, f page.Format, pageNo uint32, data []byte) error {
	if len(data) == 0 || len(data)%f.Size() != 0 {
		return fmt.Errorf("%w: %d bytes, page size %d", ErrNotPageAligned, len(data), f.Size())
	}

	file, err := fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	n, err := file.WriteAt(data, f.Offset(pageNo))
	if err != nil {
		_ = file.Close()

		return fmt.Errorf("write %s page %d: %w", path, pageNo, err)
	}

	if n != len(data) {
		_ = file.Close()

		return fmt.Errorf("%w: %s page %d: wrote %d bytes, expected %d", ErrShortWrite, path, pageNo, n, len(data))
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()

		return fmt.Errorf("sync %s: %w", path, err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	return nil
}
