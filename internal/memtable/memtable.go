// Package memtable implements the in-memory, ordered staging table for
// unflushed writes (spec.md §3, §4.5). It is keyed by raw byte-string keys
// and holds one Record per key, last-write-wins.
package memtable

import (
	"iter"

	"github.com/flashlog/flashlog/internal/record"
)

// MemTable is an ordered map from key to Record plus an accumulated
// size-estimate counter. At most one record per key is held; a newer
// insert unconditionally replaces an older one, which is correct because
// every insert arrives from the Engine's write path in timestamp order.
type MemTable struct {
	sl       *skipList
	maxBytes int
	bytes    int
}

// New returns an empty MemTable that should be flushed once its size
// estimate reaches maxBytes.
func New(maxBytes int) *MemTable {
	return &MemTable{sl: newSkipList(), maxBytes: maxBytes}
}

// Insert stores rec, replacing any prior record for the same key and
// adjusting the size-estimate counter accordingly.
func (m *MemTable) Insert(rec record.Record) {
	prev, existed := m.sl.put(string(rec.Key), rec)
	if existed {
		m.bytes -= prev.SizeEstimate()
	}
	m.bytes += rec.SizeEstimate()
}

// Get returns a clone of the stored record for key, if present.
func (m *MemTable) Get(key []byte) (record.Record, bool) {
	return m.sl.get(string(key))
}

// Len reports the number of distinct keys currently staged.
func (m *MemTable) Len() int { return m.sl.len() }

// SizeBytes reports the current size-estimate counter.
func (m *MemTable) SizeBytes() int { return m.bytes }

// ShouldFlush reports whether the size estimate has crossed maxBytes.
func (m *MemTable) ShouldFlush() bool { return m.bytes >= m.maxBytes }

// IterOrdered lazily traverses entries in ascending key order, used only
// during flush and scan (spec.md §4.5).
func (m *MemTable) IterOrdered() iter.Seq2[[]byte, record.Record] {
	return func(yield func([]byte, record.Record) bool) {
		for k, rec := range m.sl.iterator() {
			if !yield([]byte(k), rec) {
				return
			}
		}
	}
}

// Clear empties the table and resets its size counter, returning the
// number of records dropped.
func (m *MemTable) Clear() int {
	n := m.sl.len()
	m.sl = newSkipList()
	m.bytes = 0
	return n
}
