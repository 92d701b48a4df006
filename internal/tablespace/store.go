package tablespace

import (
	"fmt"

	"github.com/calvinalkan/dwcorrupt/internal/page"
	"github.com/calvinalkan/dwcorrupt/internal/pagefile"
	"github.com/calvinalkan/dwcorrupt/pkg/fs"
)

// Store reads and writes single pages addressed by (space id, page number).
type Store struct {
	fs     fs.FS
	format page.Format
	index  *Index
}

// NewStore returns a Store resolving space ids through index.
func NewStore(fsys fs.FS, format page.Format, index *Index) *Store {
	return &Store{fs: fsys, format: format, index: index}
}

// Format returns the page geometry the store was built with.
func (s *Store) Format() page.Format { return s.format }

// Index returns the tablespace map.
func (s *Store) Index() *Index { return s.index }

// ReadPage returns a copy of page pageNo of space.
func (s *Store) ReadPage(space, pageNo uint32) (page.Page, error) {
	path, err := s.index.Path(space)
	if err != nil {
		return nil, err
	}

	p, err := pagefile.ReadPage(s.fs, path, s.format, pageNo)
	if err != nil {
		return nil, fmt.Errorf("space %d: %w", space, err)
	}

	return p, nil
}

// WritePage overwrites page pageNo of space with p and syncs the file.
func (s *Store) WritePage(space, pageNo uint32, p page.Page) error {
	if len(p) != s.format.Size() {
		return fmt.Errorf("%w: got %d bytes", pagefile.ErrNotPageAligned, len(p))
	}

	path, err := s.index.Path(space)
	if err != nil {
		return err
	}

	if err := pagefile.Write(s.fs, path, s.format, pageNo, p); err != nil {
		return fmt.Errorf("space %d: %w", space, err)
	}

	return nil
}
