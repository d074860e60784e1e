// Package flashlog implements an embedded, single-node, persistent
// ordered key-value store on an LSM-tree core: a write-ahead log for
// durability, an in-memory MemTable for recent writes, and immutable
// on-disk SSTables produced by flushing the MemTable (spec.md §1-§4).
package flashlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/flashlog/flashlog/internal/cache"
	"github.com/flashlog/flashlog/internal/memtable"
	"github.com/flashlog/flashlog/internal/sstable"
	"github.com/flashlog/flashlog/internal/wal"
)

const sstableSuffix = ".sst"

// Engine coordinates the WAL, the active MemTable, and the immutable
// SSTable list. Its lock discipline follows spec.md §5: the memtable lock
// is held for a flush's entire duration — snapshot, SSTable write+fsync,
// and the subsequent WAL/MemTable clear — so no write can land in the gap
// between the snapshot and the clear and be silently lost. A Get or Scan
// that probes the MemTable therefore blocks for the duration of any
// concurrent flush. During a flush the sstable-list lock is taken only
// briefly, to read the newest table's timestamp and to prepend the
// freshly-opened Reader; reads hold it just long enough to copy the list.
type Engine struct {
	opts Options
	log  *slog.Logger

	walMu sync.Mutex
	wal   *wal.WAL

	memMu sync.Mutex
	mem   *memtable.MemTable

	tablesMu sync.RWMutex
	tables   []*sstable.Reader // newest first

	cache *cache.Cache
	clk   *clock

	closeOnce sync.Once
	closed    bool
	closedMu  sync.RWMutex
}

// New opens (creating if absent) the data directory at opts.DirPath,
// replays the WAL into a fresh MemTable, and opens every existing SSTable
// file, newest first (spec.md §4.8, engine lifecycle Uninitialized →
// Recovering → Ready).
func New(opts Options) (*Engine, error) {
	opts = opts.WithDefaults()
	if opts.WarnOnBloomFPRate == nil {
		opts.WarnOnBloomFPRate = func(rate float64) {
			slog.Default().Warn("bloom false-positive rate above recommended ceiling", "rate", rate)
		}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := slog.Default()

	if err := os.MkdirAll(opts.DirPath, 0o755); err != nil {
		return nil, newError(KindIO, "New", fmt.Errorf("create data dir %s: %w", opts.DirPath, err))
	}

	blockCache := cache.New(opts.BlockCacheSizeMB, opts.BlockSize)

	walPath := filepath.Join(opts.DirPath, "wal.log")
	w, err := wal.Open(walPath)
	if err != nil {
		return nil, newError(KindIO, "New", err)
	}

	recovered, err := w.Recover()
	if err != nil {
		w.Close()
		return nil, newError(KindWALCorruption, "New", fmt.Errorf("%w: %v", ErrWALCorruption, err))
	}

	tables, err := openExistingTables(opts.DirPath, blockCache, logger)
	if err != nil {
		w.Close()
		return nil, newError(KindIO, "New", err)
	}

	mem := memtable.New(opts.MemtableMaxSize)
	for _, rec := range recovered {
		mem.Insert(rec)
	}
	if len(recovered) > 0 {
		logger.Info("replayed WAL records into memtable", "count", len(recovered))
	}

	return &Engine{
		opts:   opts,
		log:    logger,
		wal:    w,
		mem:    mem,
		tables: tables,
		cache:  blockCache,
		clk:    newClock(),
	}, nil
}

// openExistingTables opens every *.sst file in dir against sharedCache,
// sorted newest-timestamp-first. A file that fails to open (truncated,
// bad magic, corrupted footer) is skipped with a warning rather than
// aborting startup — spec.md leaves a partially-written SSTable's fate at
// startup unspecified, and skipping the unusable file is the conservative
// reading.
func openExistingTables(dir string, sharedCache *cache.Cache, logger *slog.Logger) ([]*sstable.Reader, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir %s: %w", dir, err)
	}

	var readers []*sstable.Reader
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), sstableSuffix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		r, err := sstable.Open(path, sharedCache)
		if err != nil {
			logger.Warn("skipping unreadable sstable file at startup", "path", path, "error", err)
			continue
		}
		readers = append(readers, r)
	}

	// Filenames are "<20-digit-ns>-<20-digit-seq>.sst", so a descending
	// lexicographic sort on the path orders newest-first even when two
	// flushes land in the same wall-clock nanosecond.
	sort.Slice(readers, func(i, j int) bool {
		return readers[i].Path() > readers[j].Path()
	})
	return readers, nil
}

// sstablePath derives a unique, lexicographically timestamp-sortable
// filename for an SSTable. seq disambiguates flushes that land in the
// same wall-clock nanosecond, which repeated small flushes in a tight
// loop can do on a fast machine.
func sstablePath(dir string, timestampNs int64, seq uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d-%020d%s", timestampNs, seq, sstableSuffix))
}

// guard reports whether the Engine is still open and, if so, holds
// closedMu for read until release is called. Every public operation must
// call guard and defer its release for the operation's entire body, not
// just an initial check — Close holds closedMu for write across its whole
// body, so an operation that releases the read lock early (the prior
// checkOpen pattern) could still be touching a WAL or SSTable reader that
// Close has already closed out from under it.
func (e *Engine) guard(op string) (release func(), err error) {
	e.closedMu.RLock()
	if e.closed {
		e.closedMu.RUnlock()
		return nil, newError(KindIO, op, ErrEngineClosed)
	}
	return e.closedMu.RUnlock, nil
}

// Close flushes no pending state beyond what is already durable (every
// write is WAL-fsynced before it returns), closes the WAL file, every open
// SSTable reader, and clears the block cache. It blocks until every
// in-flight guarded operation releases closedMu, and no new operation can
// acquire it once Close holds the write lock.
func (e *Engine) Close() error {
	var closeErr error
	e.closeOnce.Do(func() {
		e.closedMu.Lock()
		defer e.closedMu.Unlock()
		e.closed = true

		e.walMu.Lock()
		if err := e.wal.Close(); err != nil {
			closeErr = newError(KindIO, "Close", err)
		}
		e.walMu.Unlock()

		e.tablesMu.Lock()
		for _, r := range e.tables {
			if err := r.Close(); err != nil && closeErr == nil {
				closeErr = newError(KindIO, "Close", err)
			}
		}
		e.tablesMu.Unlock()

		e.cache.Clear()
	})
	return closeErr
}
