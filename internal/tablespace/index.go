// Package tablespace maps tablespace ids to their backing data files and
// reads or writes individual pages through that map.
package tablespace

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/calvinalkan/dwcorrupt/internal/page"
	"github.com/calvinalkan/dwcorrupt/pkg/fs"
)

// SystemSpaceID is the id of the system tablespace. The system file is
// mapped explicitly because it does not match the per-table file pattern.
const SystemSpaceID uint32 = 0

var (
	// ErrUnknownSpace is returned when no file is mapped to a space id.
	ErrUnknownSpace = errors.New("unknown tablespace id")
	// ErrTruncatedFile is returned when a candidate file is shorter than the
	// id probe. The run cannot proceed with an incomplete map.
	ErrTruncatedFile = errors.New("data file too short to hold a page header")
)

// Index maps tablespace ids to data file paths. Built once per run.
type Index struct {
	paths map[uint32]string
}

// BuildIndex scans every immediate subdirectory of dataDir for files ending
// in ext, reads the first [page.SpaceIDProbe] bytes of each and records the
// space id found in the header. If two files claim the same id the one
// scanned last wins. The system file under dataDir is added as id 0.
//
// Any unreadable or truncated candidate aborts the scan.
func BuildIndex(fsys fs.FS, dataDir, systemFile, ext string) (*Index, error) {
	idx := &Index{paths: make(map[uint32]string)}

	entries, err := fsys.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("reading data dir: %w", err)
	}

	for _, dir := range entries {
		if !dir.IsDir() || strings.HasPrefix(dir.Name(), ".") {
			continue
		}

		subdir := filepath.Join(dataDir, dir.Name())

		files, err := fsys.ReadDir(subdir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", subdir, err)
		}

		for _, file := range files {
			if file.IsDir() || strings.HasPrefix(file.Name(), ".") || !strings.HasSuffix(file.Name(), ext) {
				continue
			}

			path := filepath.Join(subdir, file.Name())

			id, err := probeSpaceID(fsys, path)
			if err != nil {
				return nil, err
			}

			idx.paths[id] = path
		}
	}

	idx.paths[SystemSpaceID] = filepath.Join(dataDir, systemFile)

	return idx, nil
}

func probeSpaceID(fsys fs.FS, path string) (uint32, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, page.SpaceIDProbe)

	n, err := f.ReadAt(buf, 0)
	if n < len(buf) {
		if err == nil || errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("%w: %s (%d bytes)", ErrTruncatedFile, path, n)
		}

		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	return page.Page(buf).SpaceID(), nil
}

// Path returns the file backing space id.
func (x *Index) Path(id uint32) (string, error) {
	p, ok := x.paths[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownSpace, id)
	}

	return p, nil
}

// SystemPath returns the path of the system file.
func (x *Index) SystemPath() string {
	return x.paths[SystemSpaceID]
}

// IDs returns all mapped space ids in ascending order.
func (x *Index) IDs() []uint32 {
	ids := make([]uint32, 0, len(x.paths))
	for id := range x.paths {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Len returns the number of mapped spaces, including the system space.
func (x *Index) Len() int {
	return len(x.paths)
}
