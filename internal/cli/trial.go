package cli

import (
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/dwcorrupt/internal/dblwr"
	"github.com/calvinalkan/dwcorrupt/internal/inject"
	"github.com/calvinalkan/dwcorrupt/internal/page"
	"github.com/calvinalkan/dwcorrupt/internal/tablespace"
	"github.com/calvinalkan/dwcorrupt/pkg/fs"
)

var (
	errPendingRecord = errors.New("a previous corruption has not been restored (run restore)")
	errTrialLocked   = errors.New("another trial is using the data directory")
)

// trial is the opened data directory a mutating command works on.
type trial struct {
	e      *env
	format page.Format
	lock   *fs.Lock
	index  *tablespace.Index
	store  *tablespace.Store
	buffer *dblwr.Buffer
}

type trialOptions struct {
	lock   bool // hold the data directory lock until close
	buffer bool // open the doublewrite buffer
}

func openTrial(e *env, opts trialOptions) (*trial, error) {
	if err := e.cfg.RequireDataDir(); err != nil {
		return nil, err
	}

	format, err := e.cfg.Format()
	if err != nil {
		return nil, err
	}

	t := &trial{e: e, format: format}

	if opts.lock {
		lk, err := fs.NewLocker(e.fs).TryLock(e.cfg.LockPath())
		if err != nil {
			if errors.Is(err, fs.ErrWouldBlock) {
				return nil, fmt.Errorf("%w: %w", errTrialLocked, err)
			}

			return nil, fmt.Errorf("locking data dir: %w", err)
		}

		t.lock = lk
	}

	t.index, err = tablespace.BuildIndex(e.fs, e.cfg.DataDirAbs, e.cfg.SystemFile, e.cfg.FileExt)
	if err != nil {
		t.close()

		return nil, err
	}

	t.store = tablespace.NewStore(e.fs, format, t.index)

	if opts.buffer {
		t.buffer, err = dblwr.Open(e.fs, t.index.SystemPath(), format)
		if err != nil {
			t.close()

			return nil, err
		}
	}

	e.log.Debug("data dir opened",
		"data_dir", e.cfg.DataDirAbs,
		"spaces", t.index.Len(),
		"page_size", format.Size(),
	)

	return t, nil
}

func (t *trial) close() {
	if t.lock == nil {
		return
	}

	if err := t.lock.Close(); err != nil {
		t.e.log.Warn("releasing data dir lock", "error", err)
	}
}

func (t *trial) injector(seed uint64) *inject.Injector {
	return inject.New(t.store, t.buffer, inject.NewRand(seed), t.e.log)
}

// corrupt picks a target, corrupts it, seeds the buffer for mode and saves
// the record. The mode is checked against the layout before anything is
// written; if a later step fails the page is restored.
func (t *trial) corrupt(in *inject.Injector, mode dblwr.Mode, target inject.Target) (*inject.Record, error) {
	if err := t.buffer.Accepts(mode); err != nil {
		return nil, err
	}

	exists, err := t.e.fs.Exists(t.e.cfg.RecordFileAbs)
	if err != nil {
		return nil, fmt.Errorf("checking record file: %w", err)
	}

	if exists {
		return nil, fmt.Errorf("%w: %s", errPendingRecord, t.e.cfg.RecordFileAbs)
	}

	entries, err := t.buffer.Entries()
	if err != nil {
		return nil, err
	}

	entry, err := in.PickTarget(entries, target)
	if err != nil {
		return nil, err
	}

	rec, err := in.CorruptPage(entry.Space, entry.Page)
	if err != nil {
		return nil, err
	}

	err = in.SeedDoublewrite(rec, mode)
	if err == nil {
		err = inject.SaveRecord(t.e.fs, t.e.cfg.RecordFileAbs, rec)
	}

	if err != nil {
		if restoreErr := in.UncorruptPage(rec); restoreErr != nil {
			return nil, errors.Join(err, restoreErr)
		}

		return nil, err
	}

	return rec, nil
}

func (t *trial) removeRecord(o *IO) {
	if err := t.e.fs.Remove(t.e.cfg.RecordFileAbs); err != nil {
		o.Warn("could not remove record "+t.e.cfg.RecordFileAbs, "delete it before the next trial")
	}
}

// trialFlags are shared by run and corrupt.
type trialFlags struct {
	flags *flag.FlagSet
	space uint32
	page  uint32
	mode  string
	seed  uint64
}

func newTrialFlags(name string, e *env) *trialFlags {
	tf := &trialFlags{flags: flag.NewFlagSet(name, flag.ContinueOnError)}
	tf.flags.Uint32Var(&tf.space, "space", 0, "Corrupt a page of tablespace `id` (default: any buffered page)")
	tf.flags.Uint32Var(&tf.page, "page", 0, "Corrupt page `number` (default: any buffered page)")
	tf.flags.StringVarP(&tf.mode, "mode", "m", "", "Doublewrite `mode`: 1/full or 2/reduced (default from config)")
	tf.flags.Uint64Var(&tf.seed, "seed", e.cfg.Seed, "Random `seed`; 0 picks one from the clock")

	return tf
}

func (tf *trialFlags) resolveMode(e *env) (dblwr.Mode, error) {
	if !tf.flags.Changed("mode") {
		return e.cfg.DoublewriteMode(), nil
	}

	return dblwr.ParseMode(tf.mode)
}

func (tf *trialFlags) target() inject.Target {
	var t inject.Target

	if tf.flags.Changed("space") {
		t.Space = &tf.space
	}

	if tf.flags.Changed("page") {
		t.Page = &tf.page
	}

	return t
}
