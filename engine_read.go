package flashlog

import (
	"bytes"
	"sort"
	"strings"
)

// KV pairs a key with its live value, the shape returned by Scan, Search,
// and SearchPrefix.
type KV struct {
	Key   []byte
	Value []byte
}

// Get returns the live value for key, or found=false if it is absent or
// has been deleted. The MemTable is probed first; failing that, every
// SSTable is probed newest to oldest, stopping at the first hit (spec.md
// §4.8 read path).
func (e *Engine) Get(key []byte) (value []byte, found bool, err error) {
	release, err := e.guard("Get")
	if err != nil {
		return nil, false, err
	}
	defer release()

	e.memMu.Lock()
	rec, ok := e.mem.Get(key)
	e.memMu.Unlock()
	if ok {
		if rec.Deleted {
			return nil, false, nil
		}
		return rec.Value, true, nil
	}

	e.tablesMu.RLock()
	tables := e.tables
	e.tablesMu.RUnlock()

	for _, t := range tables {
		if !t.MightContain(key) {
			continue
		}
		rec, ok, gerr := t.Get(key)
		if gerr != nil {
			return nil, false, newError(KindCorrupted, "Get", gerr)
		}
		if !ok {
			continue
		}
		if rec.Deleted {
			return nil, false, nil
		}
		return rec.Value, true, nil
	}

	return nil, false, nil
}

// snapshot merges the MemTable with every SSTable, newest-wins per key,
// and returns only live (non-tombstone) entries in ascending key order
// (spec.md §4.8 scan semantics: "union memtable with all sstables,
// newest-wins per key, filter tombstones, sort").
func (e *Engine) snapshot() ([]KV, error) {
	latest := make(map[string]recordWithRank)

	e.memMu.Lock()
	for k, rec := range e.mem.IterOrdered() {
		latest[string(k)] = recordWithRank{value: rec.Value, deleted: rec.Deleted, rank: -1}
	}
	e.memMu.Unlock()

	e.tablesMu.RLock()
	tables := e.tables
	e.tablesMu.RUnlock()

	// rank 0 is the newest SSTable, increasing = older; the memtable's
	// rank of -1 always wins over any SSTable.
	for rank, t := range tables {
		entries, err := t.Scan()
		if err != nil {
			return nil, newError(KindCorrupted, "snapshot", err)
		}
		for _, se := range entries {
			sk := string(se.Key)
			if existing, ok := latest[sk]; ok && existing.rank < rank {
				continue
			}
			latest[sk] = recordWithRank{value: se.Record.Value, deleted: se.Record.Deleted, rank: rank}
		}
	}

	out := make([]KV, 0, len(latest))
	for k, rr := range latest {
		if rr.deleted {
			continue
		}
		out = append(out, KV{Key: []byte(k), Value: rr.value})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out, nil
}

type recordWithRank struct {
	value   []byte
	deleted bool
	rank    int
}

// Scan returns every live key-value pair in ascending key order.
func (e *Engine) Scan() ([]KV, error) {
	release, err := e.guard("Scan")
	if err != nil {
		return nil, err
	}
	defer release()
	return e.snapshot()
}

// Keys returns every live key in ascending order, derived from Scan
// (spec.md §6: "keys / count / search / search_prefix: derived filters
// over scan()").
func (e *Engine) Keys() ([][]byte, error) {
	kvs, err := e.Scan()
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, len(kvs))
	for i, kv := range kvs {
		keys[i] = kv.Key
	}
	return keys, nil
}

// Count returns the number of live keys.
func (e *Engine) Count() (int, error) {
	kvs, err := e.Scan()
	if err != nil {
		return 0, err
	}
	return len(kvs), nil
}

// Search returns every live pair whose key contains pattern as a
// substring, per original_source's unanchored-substring semantics.
func (e *Engine) Search(pattern string) ([]KV, error) {
	kvs, err := e.Scan()
	if err != nil {
		return nil, err
	}
	var out []KV
	for _, kv := range kvs {
		if strings.Contains(string(kv.Key), pattern) {
			out = append(out, kv)
		}
	}
	return out, nil
}

// SearchPrefix returns every live pair whose key starts with prefix, per
// original_source's anchored-prefix semantics.
func (e *Engine) SearchPrefix(prefix string) ([]KV, error) {
	kvs, err := e.Scan()
	if err != nil {
		return nil, err
	}
	var out []KV
	for _, kv := range kvs {
		if strings.HasPrefix(string(kv.Key), prefix) {
			out = append(out, kv)
		}
	}
	return out, nil
}
