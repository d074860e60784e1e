package flashlog

import (
	"fmt"

	"github.com/flashlog/flashlog/internal/record"
	"github.com/flashlog/flashlog/internal/sstable"
)

// Set writes key=value durably: WAL append+fsync, then MemTable insert,
// then — if the MemTable has crossed its size threshold — a synchronous
// flush (spec.md §4.8 write path, engine lifecycle Ready → Flushing →
// Ready).
func (e *Engine) Set(key, value []byte) error {
	release, err := e.guard("Set")
	if err != nil {
		return err
	}
	defer release()
	lo, hi := e.clk.Now()
	return e.apply(record.New(key, value, lo, hi))
}

// Delete writes a tombstone for key, the same durability path as Set.
func (e *Engine) Delete(key []byte) error {
	release, err := e.guard("Delete")
	if err != nil {
		return err
	}
	defer release()
	lo, hi := e.clk.Now()
	return e.apply(record.NewTombstone(key, lo, hi))
}

// apply appends rec to the WAL, inserts it into the MemTable, and
// triggers a flush if the insert crossed the size threshold. The MemTable
// lock is held for the insert and the threshold check, then released;
// flush takes it again and rechecks the threshold before snapshotting.
func (e *Engine) apply(rec record.Record) error {
	e.walMu.Lock()
	err := e.wal.Write(rec)
	e.walMu.Unlock()
	if err != nil {
		return newError(KindIO, "apply", err)
	}

	e.memMu.Lock()
	e.mem.Insert(rec)
	shouldFlush := e.mem.ShouldFlush()
	e.memMu.Unlock()

	if shouldFlush {
		if err := e.flush(); err != nil {
			return newError(KindIO, "apply", err)
		}
	}
	return nil
}

// flush snapshots the current MemTable, writes it to a new SSTable, opens
// it as a Reader, prepends it to the SSTable list, and only then clears
// the WAL and the MemTable — SSTable fsync must precede WAL truncation so
// a crash between the two never loses data (spec.md §4.7, §5).
//
// memMu is held for the whole function, snapshot through Clear, not just
// around the snapshot: releasing it in between let a concurrent Set land
// in the MemTable after the snapshot was taken but before Clear ran, so
// that write was WAL-fsynced and reported successful to its caller, then
// silently erased by this same flush's wal.Clear()+mem.Clear() without
// ever reaching an SSTable. Holding the lock throughout also means a
// second concurrent flush's ShouldFlush recheck always runs after the
// first flush's Clear, so the two can never snapshot overlapping entries
// into duplicate SSTables.
func (e *Engine) flush() error {
	e.memMu.Lock()
	defer e.memMu.Unlock()

	if !e.mem.ShouldFlush() {
		return nil
	}
	entries := make([]sstable.Entry, 0, e.mem.Len())
	for k, rec := range e.mem.IterOrdered() {
		entries = append(entries, sstable.Entry{Key: k, Record: rec})
	}

	if len(entries) == 0 {
		return nil
	}

	e.tablesMu.RLock()
	var lastTs int64
	if len(e.tables) > 0 {
		lastTs = e.tables[0].Timestamp()
	}
	e.tablesMu.RUnlock()

	seq, hi := e.clk.Now()
	if compareTimestamp(0, hi, 0, uint64(lastTs)) <= 0 {
		// The wall clock went backwards (or didn't advance) relative to
		// the newest existing SSTable — bump past it so newest-first
		// ordering never inverts on a clock regression (spec.md §4.8
		// step 3, §9).
		hi = uint64(lastTs) + 1
	}
	path := sstablePath(e.opts.DirPath, int64(hi), seq)

	writeOpts := sstable.Options{
		BlockSize:              e.opts.BlockSize,
		BloomFalsePositiveRate: e.opts.BloomFalsePositiveRate,
	}
	if err := sstable.Write(path, writeOpts, int64(hi), entries); err != nil {
		return fmt.Errorf("flush: write sstable: %w", err)
	}

	reader, err := sstable.Open(path, e.cache)
	if err != nil {
		return fmt.Errorf("flush: reopen sstable: %w", err)
	}

	e.tablesMu.Lock()
	e.tables = append([]*sstable.Reader{reader}, e.tables...)
	e.tablesMu.Unlock()

	e.walMu.Lock()
	walErr := e.wal.Clear()
	e.walMu.Unlock()
	if walErr != nil {
		return fmt.Errorf("flush: clear wal: %w", walErr)
	}

	e.mem.Clear()

	e.log.Info("flushed memtable to sstable", "path", path, "entries", len(entries))
	return nil
}

// SetBatch applies each (key, value) pair via Set in order, stopping at
// the first failure. It returns the number of pairs successfully applied
// (spec.md §4.8: "no inter-record atomicity ... first failure aborts the
// batch").
func (e *Engine) SetBatch(keys, values [][]byte) (int, error) {
	if len(keys) != len(values) {
		return 0, newError(KindSerialization, "SetBatch", fmt.Errorf("keys and values length mismatch: %d vs %d", len(keys), len(values)))
	}
	for i := range keys {
		if err := e.Set(keys[i], values[i]); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}

// DeleteBatch deletes each key in order, stopping at the first failure,
// returning the count of successful deletes.
func (e *Engine) DeleteBatch(keys [][]byte) (int, error) {
	for i, k := range keys {
		if err := e.Delete(k); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}
