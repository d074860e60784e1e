// Package record defines the atomic unit of write for the storage core and
// its codec. A Record is immutable once created; Encode/Decode round-trip
// it losslessly (spec.md §3, §4.1).
package record

import (
	"fmt"

	"github.com/flashlog/flashlog/internal/codec"
)

// Record carries a key, a value, a creation timestamp, and a tombstone
// flag. A tombstone is a Record with Deleted set and an empty Value.
type Record struct {
	Key   []byte
	Value []byte
	// TimestampLo/TimestampHi together form a 128-bit unsigned monotonic
	// clock reading, split into two uint64 halves because Go has no
	// native 128-bit integer type.
	TimestampLo uint64
	TimestampHi uint64
	Deleted     bool
}

// New builds a live (non-deleted) Record.
func New(key, value []byte, tsLo, tsHi uint64) Record {
	return Record{Key: key, Value: value, TimestampLo: tsLo, TimestampHi: tsHi}
}

// NewTombstone builds a deleted Record for key with no value.
func NewTombstone(key []byte, tsLo, tsHi uint64) Record {
	return Record{Key: key, Deleted: true, TimestampLo: tsLo, TimestampHi: tsHi}
}

// SizeEstimate approximates the in-memory footprint of r for MemTable
// accounting: key and value bytes plus a fixed per-record overhead for the
// timestamp, tombstone flag, and map/skip-list bookkeeping.
const perRecordOverhead = 48

func (r Record) SizeEstimate() int {
	return len(r.Key) + len(r.Value) + perRecordOverhead
}

// Equal reports whether r and other carry the same key, value, timestamp
// and tombstone flag — used by round-trip tests.
func (r Record) Equal(other Record) bool {
	if r.Deleted != other.Deleted || r.TimestampLo != other.TimestampLo || r.TimestampHi != other.TimestampHi {
		return false
	}
	return string(r.Key) == string(other.Key) && string(r.Value) == string(other.Value)
}

// Encode serializes r to its content-stable binary form:
//
//	key: u32-len | bytes
//	value: u32-len | bytes
//	timestamp: u64 lo | u64 hi
//	deleted: bool (1 byte)
//	crc32 of the preceding bytes
//
// The trailing checksum lets Decode distinguish a corrupted payload from a
// merely truncated one, the same discipline the teacher's WAL frame uses.
func Encode(r Record) []byte {
	w := codec.NewWriter(len(r.Key) + len(r.Value) + 25)
	w.PutBytes(r.Key)
	w.PutBytes(r.Value)
	w.PutUint128(r.TimestampLo, r.TimestampHi)
	w.PutBool(r.Deleted)
	body := w.Bytes()
	crc := codec.Checksum(body)
	out := make([]byte, len(body)+4)
	copy(out, body)
	// append crc in little-endian without pulling in a second Writer
	out[len(body)+0] = byte(crc)
	out[len(body)+1] = byte(crc >> 8)
	out[len(body)+2] = byte(crc >> 16)
	out[len(body)+3] = byte(crc >> 24)
	return out
}

// ErrCorrupt indicates the checksum trailing a record did not match its
// payload.
var ErrCorrupt = fmt.Errorf("record: corrupted payload")

// Decode parses bytes produced by Encode. A checksum mismatch or a short
// buffer is reported as ErrCorrupt / a wrapped codec error respectively.
func Decode(buf []byte) (Record, error) {
	if len(buf) < 4 {
		return Record{}, fmt.Errorf("record: %w", codec.ErrShortBuffer)
	}
	body, crcBytes := buf[:len(buf)-4], buf[len(buf)-4:]
	wantCRC := uint32(crcBytes[0]) | uint32(crcBytes[1])<<8 | uint32(crcBytes[2])<<16 | uint32(crcBytes[3])<<24
	if codec.Checksum(body) != wantCRC {
		return Record{}, ErrCorrupt
	}

	r := codec.NewReader(body)
	key, err := r.GetBytes()
	if err != nil {
		return Record{}, fmt.Errorf("record: %w", err)
	}
	value, err := r.GetBytes()
	if err != nil {
		return Record{}, fmt.Errorf("record: %w", err)
	}
	tsLo, tsHi, err := r.GetUint128()
	if err != nil {
		return Record{}, fmt.Errorf("record: %w", err)
	}
	deleted, err := r.GetBool()
	if err != nil {
		return Record{}, fmt.Errorf("record: %w", err)
	}

	return Record{Key: key, Value: value, TimestampLo: tsLo, TimestampHi: tsHi, Deleted: deleted}, nil
}
