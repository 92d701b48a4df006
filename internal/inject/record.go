package inject

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/calvinalkan/dwcorrupt/internal/dblwr"
	"github.com/calvinalkan/dwcorrupt/pkg/fs"
)

// ErrRecordCorrupt is returned by [LoadRecord] when a record fails its
// integrity checks.
var ErrRecordCorrupt = errors.New("corruption record is damaged")

const recordPerm = 0o600

// Record describes one injected corruption and carries everything needed to
// undo it.
type Record struct {
	RunID     string     `json:"run_id"`
	Space     uint32     `json:"space_id"`
	Page      uint32     `json:"page_no"`
	Path      string     `json:"path"`
	PageSize  int        `json:"page_size"`
	Offset    int        `json:"offset"`
	Mask      byte       `json:"mask"`
	Mode      dblwr.Mode `json:"mode,omitempty"`
	Original  []byte     `json:"original"`
	Digest    uint64     `json:"digest"`
	CreatedAt time.Time  `json:"created_at"`
}

// Entry returns the page identity of the record.
func (r *Record) Entry() dblwr.Entry {
	return dblwr.Entry{Space: r.Space, Page: r.Page}
}

// SaveRecord writes rec as JSON to path, replacing any previous file
// atomically.
func SaveRecord(fsys fs.FS, path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	data = append(data, '\n')

	if err := fsys.WriteFileAtomic(path, data, recordPerm); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}

	return nil
}

// LoadRecord reads a record written by [SaveRecord] and checks that the
// stored image has the recorded size and digest.
func LoadRecord(fsys fs.FS, path string) (*Record, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRecordCorrupt, path, err)
	}

	if len(rec.Original) == 0 || len(rec.Original) != rec.PageSize {
		return nil, fmt.Errorf("%w: %s: image is %d bytes, page size %d",
			ErrRecordCorrupt, path, len(rec.Original), rec.PageSize)
	}

	if got := xxhash.Sum64(rec.Original); got != rec.Digest {
		return nil, fmt.Errorf("%w: %s: digest %016x, want %016x", ErrRecordCorrupt, path, got, rec.Digest)
	}

	return &rec, nil
}
