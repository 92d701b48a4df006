package fs

import (
	"errors"
	"io/fs"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection.
type ChaosConfig struct {
	// OpenFailRate controls how often FS.Open and FS.OpenFile fail.
	// Returns EACCES, EIO, EMFILE or ENFILE.
	OpenFailRate float64

	// ReadFailRate controls how often File.Read, File.ReadAt and FS.ReadFile
	// fail entirely, returning zero bytes and EIO.
	ReadFailRate float64

	// PartialReadRate controls how often File.ReadAt returns fewer bytes than
	// requested together with EIO, simulating a torn read.
	PartialReadRate float64

	// WriteFailRate controls how often File.Write, File.WriteAt and
	// FS.WriteFileAtomic fail without writing anything. Returns EIO, ENOSPC
	// or EROFS.
	WriteFailRate float64

	// PartialWriteRate controls how often File.WriteAt writes a prefix of the
	// data and then fails with EIO.
	PartialWriteRate float64

	// SyncFailRate controls how often File.Sync (fsync) fails with EIO.
	SyncFailRate float64

	// ReadDirFailRate controls how often FS.ReadDir fails entirely.
	ReadDirFailRate float64
}

// ChaosMode controls how [Chaos] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive enables fault-rate injection.
	// This is the default mode for a new [Chaos].
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp passes every operation directly to the underlying FS.
	ChaosModeNoOp
)

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	OpenFails     int64
	ReadFails     int64
	PartialReads  int64
	WriteFails    int64
	PartialWrites int64
	SyncFails     int64
	ReadDirFails  int64
}

// chaosError marks an error as intentionally injected by [Chaos].
//
// It wraps the underlying error so errors.Is/As continue to work.
type chaosError struct {
	Err error
}

func (e *chaosError) Error() string {
	return "chaos: " + e.Err.Error()
}

func (e *chaosError) Unwrap() error {
	return e.Err
}

// IsChaosErr reports whether err (or any wrapped error) was injected by [Chaos].
// Returns false if err is nil.
func IsChaosErr(err error) bool {
	var injected *chaosError

	return errors.As(err, &injected)
}

// Chaos wraps an [FS] and injects random failures for testing.
//
// Injected errors are [*fs.PathError] values carrying a real errno, so
// [errors.Is] against [unix.EIO] and friends behaves like a real OS error.
// Chaos never injects ENOENT.
type Chaos struct {
	fs     FS
	rng    *rand.Rand
	config ChaosConfig
	mode   atomic.Uint32

	rngMu sync.Mutex

	openFails     atomic.Int64
	readFails     atomic.Int64
	partialReads  atomic.Int64
	writeFails    atomic.Int64
	partialWrites atomic.Int64
	syncFails     atomic.Int64
	readDirFails  atomic.Int64
}

// NewChaos creates a new [Chaos] filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
// Panics if underlying is nil.
func NewChaos(underlying FS, seed int64, config *ChaosConfig) *Chaos {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	return &Chaos{
		fs:     underlying,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
		config: *config,
	}
}

// SetMode updates [Chaos] behavior. Safe to call concurrently.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		OpenFails:     c.openFails.Load(),
		ReadFails:     c.readFails.Load(),
		PartialReads:  c.partialReads.Load(),
		WriteFails:    c.writeFails.Load(),
		PartialWrites: c.partialWrites.Load(),
		SyncFails:     c.syncFails.Load(),
		ReadDirFails:  c.readDirFails.Load(),
	}
}

// TotalFaults returns the total number of injected faults.
func (c *Chaos) TotalFaults() int64 {
	s := c.Stats()

	return s.OpenFails + s.ReadFails + s.PartialReads + s.WriteFails +
		s.PartialWrites + s.SyncFails + s.ReadDirFails
}

func (c *Chaos) active() bool {
	return ChaosMode(c.mode.Load()) == ChaosModeActive
}

func (c *Chaos) should(rate float64) bool {
	if rate <= 0 || !c.active() {
		return false
	}

	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	return c.rng.Float64() < rate
}

func (c *Chaos) intN(n int) int {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	return c.rng.IntN(n)
}

func (c *Chaos) pick(errs ...unix.Errno) unix.Errno {
	return errs[c.intN(len(errs))]
}

func injected(op, path string, errno unix.Errno) error {
	return &chaosError{Err: &fs.PathError{Op: op, Path: path, Err: errno}}
}

// Open opens path for reading, possibly failing.
func (c *Chaos) Open(path string) (File, error) {
	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		return nil, injected("open", path, c.pick(unix.EACCES, unix.EIO, unix.EMFILE, unix.ENFILE))
	}

	f, err := c.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, c: c, path: path}, nil
}

// OpenFile opens path with flag and perm, possibly failing.
func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		return nil, injected("open", path, c.pick(unix.EACCES, unix.EIO, unix.EMFILE, unix.ENFILE))
	}

	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, c: c, path: path}, nil
}

// ReadFile reads path, possibly failing.
func (c *Chaos) ReadFile(path string) ([]byte, error) {
	if c.should(c.config.ReadFailRate) {
		c.readFails.Add(1)

		return nil, injected("read", path, unix.EIO)
	}

	return c.fs.ReadFile(path)
}

// WriteFileAtomic replaces path, possibly failing before anything is
// written. A failed call leaves any previous file untouched.
func (c *Chaos) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if c.should(c.config.WriteFailRate) {
		c.writeFails.Add(1)

		return injected("write", path, c.pick(unix.EIO, unix.ENOSPC, unix.EROFS))
	}

	return c.fs.WriteFileAtomic(path, data, perm)
}

// ReadDir lists path, possibly failing.
func (c *Chaos) ReadDir(path string) ([]os.DirEntry, error) {
	if c.should(c.config.ReadDirFailRate) {
		c.readDirFails.Add(1)

		return nil, injected("readdirent", path, c.pick(unix.EACCES, unix.EIO))
	}

	return c.fs.ReadDir(path)
}

// MkdirAll passes through.
func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	return c.fs.MkdirAll(path, perm)
}

// Stat passes through.
func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	return c.fs.Stat(path)
}

// Remove passes through.
func (c *Chaos) Remove(path string) error {
	return c.fs.Remove(path)
}

// Exists passes through.
func (c *Chaos) Exists(path string) (bool, error) {
	return c.fs.Exists(path)
}

type chaosFile struct {
	f    File
	c    *Chaos
	path string
}

func (cf *chaosFile) Read(p []byte) (int, error) {
	if cf.c.should(cf.c.config.ReadFailRate) {
		cf.c.readFails.Add(1)

		return 0, injected("read", cf.path, unix.EIO)
	}

	return cf.f.Read(p)
}

func (cf *chaosFile) ReadAt(p []byte, off int64) (int, error) {
	if cf.c.should(cf.c.config.ReadFailRate) {
		cf.c.readFails.Add(1)

		return 0, injected("read", cf.path, unix.EIO)
	}

	if len(p) > 1 && cf.c.should(cf.c.config.PartialReadRate) {
		cf.c.partialReads.Add(1)

		short := cf.c.intN(len(p)-1) + 1

		n, err := cf.f.ReadAt(p[:short], off)
		if err != nil {
			return n, err
		}

		return n, injected("read", cf.path, unix.EIO)
	}

	return cf.f.ReadAt(p, off)
}

func (cf *chaosFile) Write(p []byte) (int, error) {
	if cf.c.should(cf.c.config.WriteFailRate) {
		cf.c.writeFails.Add(1)

		return 0, injected("write", cf.path, cf.c.pick(unix.EIO, unix.ENOSPC, unix.EROFS))
	}

	return cf.f.Write(p)
}

func (cf *chaosFile) WriteAt(p []byte, off int64) (int, error) {
	if cf.c.should(cf.c.config.WriteFailRate) {
		cf.c.writeFails.Add(1)

		return 0, injected("write", cf.path, cf.c.pick(unix.EIO, unix.ENOSPC, unix.EROFS))
	}

	if len(p) > 1 && cf.c.should(cf.c.config.PartialWriteRate) {
		cf.c.partialWrites.Add(1)

		short := cf.c.intN(len(p)-1) + 1

		n, err := cf.f.WriteAt(p[:short], off)
		if err != nil {
			return n, err
		}

		return n, injected("write", cf.path, unix.EIO)
	}

	return cf.f.WriteAt(p, off)
}

func (cf *chaosFile) Sync() error {
	if cf.c.should(cf.c.config.SyncFailRate) {
		cf.c.syncFails.Add(1)

		return injected("sync", cf.path, unix.EIO)
	}

	return cf.f.Sync()
}

func (cf *chaosFile) Close() error               { return cf.f.Close() }
func (cf *chaosFile) Fd() uintptr                { return cf.f.Fd() }
func (cf *chaosFile) Stat() (os.FileInfo, error) { return cf.f.Stat() }

var (
	_ FS   = (*Chaos)(nil)
	_ File = (*chaosFile)(nil)
)
