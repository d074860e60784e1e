// Package block implements the bounded, sorted key-value container that is
// the unit of I/O and caching within an SSTable (spec.md §4.2).
//
// Encoded layout:
//
//	[entries area] [offset table: u16 * N] [N: u16]
//
// Each entry in the entries area is:
//
//	key_len: u16 LE | key bytes | value_len: u16 LE | value bytes
package block

import (
	"fmt"

	"github.com/flashlog/flashlog/internal/codec"
)

// MaxEntryBytes is the largest a key or value may be inside the block's
// own encoding, imposed by its u16 length prefix. The value Add sees here
// is already a record.Encode-ed byte string (timestamp, tombstone flag,
// and CRC trailer included), not the caller's raw value, so the usable
// ceiling on a user-supplied value is somewhat below 65535 bytes; callers
// needing the true limit should consult sstable's entry-size validation
// rather than this constant alone.
const MaxEntryBytes = 65535

// Entry is one (key, value) pair held by a Block. The value is an opaque
// encoded Record (see internal/record), but Block itself has no notion of
// records — it just moves bytes.
type Entry struct {
	Key   []byte
	Value []byte
}

func entryAreaCost(key, value []byte) int {
	return 2 + len(key) + 2 + len(value)
}

// Block accumulates entries up to a byte budget. Callers (the SSTable
// Writer) must add keys in non-decreasing order; Block does not re-check.
type Block struct {
	budget  int
	entries []Entry
	size    int // entries-area bytes only, excludes the offset table and count
}

// New returns an empty Block with the given byte budget.
func New(budget int) *Block {
	return &Block{budget: budget}
}

// Len reports the number of entries currently held.
func (b *Block) Len() int { return len(b.entries) }

// EncodedSize reports the total size the Block would occupy if encoded now.
func (b *Block) EncodedSize() int {
	return b.size + 2*len(b.entries) + 2
}

// Add appends (key, value) if doing so would not exceed the block's byte
// budget. It reports whether the entry was added.
func (b *Block) Add(key, value []byte) bool {
	if len(key) > MaxEntryBytes || len(value) > MaxEntryBytes {
		return false
	}
	areaCost := entryAreaCost(key, value)
	projected := (b.size + areaCost) + 2*(len(b.entries)+1) + 2
	if projected > b.budget {
		return false
	}
	keyCopy := append([]byte(nil), key...)
	valCopy := append([]byte(nil), value...)
	b.entries = append(b.entries, Entry{Key: keyCopy, Value: valCopy})
	b.size += 2 + len(keyCopy) + 2 + len(valCopy)
	return true
}

// Encode serializes the block to its on-disk byte layout using the shared
// codec package's u16-length-prefixed fields.
func (b *Block) Encode() []byte {
	w := codec.NewWriter(b.EncodedSize())
	offsets := make([]uint16, len(b.entries))

	for i, e := range b.entries {
		offsets[i] = uint16(w.Len())
		w.PutBytes16(e.Key)
		w.PutBytes16(e.Value)
	}

	for _, off := range offsets {
		w.PutUint16(off)
	}
	w.PutUint16(uint16(len(b.entries)))

	return w.Bytes()
}

// Decode reconstructs a Block (for reading, not further Add calls) from
// bytes produced by Encode.
func Decode(buf []byte) (*Block, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("block: buffer too short for entry count")
	}

	countReader := codec.NewReader(buf[len(buf)-2:])
	n16, err := countReader.GetUint16()
	if err != nil {
		return nil, fmt.Errorf("block: decode entry count: %w", err)
	}
	n := int(n16)

	offsetTableStart := len(buf) - 2 - 2*n
	if offsetTableStart < 0 {
		return nil, fmt.Errorf("block: offset table overruns buffer")
	}
	offsetReader := codec.NewReader(buf[offsetTableStart : len(buf)-2])
	entriesArea := buf[:offsetTableStart]

	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		off16, err := offsetReader.GetUint16()
		if err != nil {
			return nil, fmt.Errorf("block: decode entry %d offset: %w", i, err)
		}
		off := int(off16)
		if off > len(entriesArea) {
			return nil, fmt.Errorf("block: entry %d offset out of range", i)
		}

		entryReader := codec.NewReader(entriesArea[off:])
		key, err := entryReader.GetBytes16()
		if err != nil {
			return nil, fmt.Errorf("block: entry %d key: %w", i, err)
		}
		value, err := entryReader.GetBytes16()
		if err != nil {
			return nil, fmt.Errorf("block: entry %d value: %w", i, err)
		}

		entries = append(entries, Entry{Key: key, Value: value})
	}

	return &Block{entries: entries}, nil
}

// Search linearly scans the block's entries for an exact key match. Linear
// scan is acceptable because block_size is small (default 4 KiB).
func (b *Block) Search(key []byte) ([]byte, bool) {
	for _, e := range b.entries {
		if string(e.Key) == string(key) {
			return e.Value, true
		}
	}
	return nil, false
}

// Entries returns the block's entries in stored order, used by scan().
func (b *Block) Entries() []Entry {
	return b.entries
}
