package flashlog

import "fmt"

// StatsSnapshot is the structured counters behind Stats/StatsAll (spec.md
// §6: "stats() → human string / stats_all() → structured snapshot"),
// grounded on original_source/src/engine.rs's per-engine counters.
type StatsSnapshot struct {
	LiveKeyCount    int
	MemtableBytes   int
	MemtableEntries int
	SSTableCount    int
	WALBytes        int64
	CacheHits       uint64
	CacheMisses     uint64
	CacheEvictions  uint64
}

// StatsAll returns the structured counter snapshot.
func (e *Engine) StatsAll() (StatsSnapshot, error) {
	release, err := e.guard("StatsAll")
	if err != nil {
		return StatsSnapshot{}, err
	}
	defer release()

	e.memMu.Lock()
	memBytes := e.mem.SizeBytes()
	memEntries := e.mem.Len()
	e.memMu.Unlock()

	e.tablesMu.RLock()
	tableCount := len(e.tables)
	e.tablesMu.RUnlock()

	walSize, err := e.wal.Size()
	if err != nil {
		return StatsSnapshot{}, newError(KindIO, "StatsAll", err)
	}

	kvs, err := e.snapshot()
	if err != nil {
		return StatsSnapshot{}, err
	}
	liveCount := len(kvs)

	cs := e.cache.Stats()

	return StatsSnapshot{
		LiveKeyCount:    liveCount,
		MemtableBytes:   memBytes,
		MemtableEntries: memEntries,
		SSTableCount:    tableCount,
		WALBytes:        walSize,
		CacheHits:       cs.Hits,
		CacheMisses:     cs.Misses,
		CacheEvictions:  cs.Evictions,
	}, nil
}

// Stats formats the structured snapshot as a human-readable summary.
func (e *Engine) Stats() (string, error) {
	s, err := e.StatsAll()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"keys=%d memtable=%d entries/%d bytes sstables=%d wal=%d bytes cache(hits=%d misses=%d evictions=%d)",
		s.LiveKeyCount, s.MemtableEntries, s.MemtableBytes, s.SSTableCount, s.WALBytes,
		s.CacheHits, s.CacheMisses, s.CacheEvictions,
	), nil
}
