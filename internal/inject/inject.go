// Package inject corrupts a single page of a tablespace, seeds the
// doublewrite buffer for the corrupted page and restores the page again.
package inject

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/calvinalkan/dwcorrupt/internal/dblwr"
	"github.com/calvinalkan/dwcorrupt/internal/logging"
	"github.com/calvinalkan/dwcorrupt/internal/tablespace"
)

var (
	// ErrRestoreMismatch is returned when the page read back after a restore
	// differs from the original image.
	ErrRestoreMismatch = errors.New("restored page does not match original")
	// ErrNoCandidates is returned by [Injector.PickTarget] when no page
	// qualifies as a corruption target.
	ErrNoCandidates = errors.New("no candidate page to corrupt")
)

// Injector mutates pages through a [tablespace.Store] and a [dblwr.Buffer].
// It is not safe for concurrent use; callers serialize trials with a lock.
type Injector struct {
	store  *tablespace.Store
	buffer *dblwr.Buffer
	rng    *rand.Rand
	log    logging.Logger
	now    func() time.Time
}

// New returns an Injector drawing offsets and bits from rng.
func New(store *tablespace.Store, buffer *dblwr.Buffer, rng *rand.Rand, log logging.Logger) *Injector {
	if log == nil {
		log = logging.Discard{}
	}

	return &Injector{store: store, buffer: buffer, rng: rng, log: log, now: time.Now}
}

// NewRand returns a PCG-backed source. A zero seed is replaced by the
// current time.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Target narrows [Injector.PickTarget]. Nil fields are unconstrained.
type Target struct {
	Space *uint32
	Page  *uint32
}

// PickTarget chooses the page to corrupt. A fully specified target is used
// as is. Otherwise one of the buffer entries is chosen uniformly, restricted
// to t.Space when set and to spaces present in the tablespace index.
func (in *Injector) PickTarget(entries []dblwr.Entry, t Target) (dblwr.Entry, error) {
	if t.Space != nil && t.Page != nil {
		return dblwr.Entry{Space: *t.Space, Page: *t.Page}, nil
	}

	var candidates []dblwr.Entry

	for _, e := range entries {
		if t.Space != nil && e.Space != *t.Space {
			continue
		}

		if t.Page != nil && e.Page != *t.Page {
			continue
		}

		if _, err := in.store.Index().Path(e.Space); err != nil {
			continue
		}

		candidates = append(candidates, e)
	}

	if len(candidates) == 0 {
		return dblwr.Entry{}, fmt.Errorf("%w (%d buffer entries)", ErrNoCandidates, len(entries))
	}

	return candidates[in.rng.IntN(len(candidates))], nil
}

// CorruptPage flips one bit of one byte inside the page body of page pageNo
// of space and writes the page back. The returned record holds the original
// image needed by [Injector.UncorruptPage].
func (in *Injector) CorruptPage(space, pageNo uint32) (*Record, error) {
	path, err := in.store.Index().Path(space)
	if err != nil {
		return nil, err
	}

	original, err := in.store.ReadPage(space, pageNo)
	if err != nil {
		return nil, fmt.Errorf("reading target page: %w", err)
	}

	lo, hi := in.store.Format().BodyRange()
	offset := lo + in.rng.IntN(hi-lo+1)
	mask := byte(1) << in.rng.IntN(8)

	corrupted := original.Clone()
	corrupted[offset] ^= mask

	if err := in.store.WritePage(space, pageNo, corrupted); err != nil {
		return nil, fmt.Errorf("writing corrupted page: %w", err)
	}

	rec := &Record{
		RunID:     uuid.NewString(),
		Space:     space,
		Page:      pageNo,
		Path:      path,
		PageSize:  in.store.Format().Size(),
		Offset:    offset,
		Mask:      mask,
		Original:  []byte(original),
		Digest:    xxhash.Sum64(original),
		CreatedAt: in.now().UTC(),
	}

	in.log.Info("page corrupted",
		"run_id", rec.RunID,
		"space_id", space,
		"page_no", pageNo,
		"offset", offset,
		"mask", fmt.Sprintf("0x%02x", mask),
	)

	return rec, nil
}

// SeedDoublewrite makes the buffer reference the page in rec according to
// mode. Full mode stores the original image; reduced mode stores only the
// page identity. The mode is recorded in rec.
func (in *Injector) SeedDoublewrite(rec *Record, mode dblwr.Mode) error {
	entry := dblwr.Entry{Space: rec.Space, Page: rec.Page}

	var data []byte
	if mode == dblwr.ModeFull {
		data = rec.Original
	}

	if err := in.buffer.Insert(mode, entry, data); err != nil {
		return fmt.Errorf("seeding doublewrite: %w", err)
	}

	rec.Mode = mode

	in.log.Info("doublewrite seeded",
		"run_id", rec.RunID,
		"mode", mode.String(),
		"layout", in.buffer.Layout().String(),
		"entry", entry.String(),
	)

	return nil
}

// UncorruptPage writes the original image from rec back and verifies it by
// reading the page again.
func (in *Injector) UncorruptPage(rec *Record) error {
	if err := in.store.WritePage(rec.Space, rec.Page, rec.Original); err != nil {
		return fmt.Errorf("restoring page: %w", err)
	}

	got, err := in.store.ReadPage(rec.Space, rec.Page)
	if err != nil {
		return fmt.Errorf("verifying restore: %w", err)
	}

	if !bytes.Equal(got, rec.Original) {
		return fmt.Errorf("%w: space_id=%d page_no=%d", ErrRestoreMismatch, rec.Space, rec.Page)
	}

	in.log.Info("page restored", "run_id", rec.RunID, "space_id", rec.Space, "page_no", rec.Page)

	return nil
}
