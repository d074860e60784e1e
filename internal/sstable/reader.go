package sstable

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/flashlog/flashlog/internal/block"
	"github.com/flashlog/flashlog/internal/bloomfilter"
	"github.com/flashlog/flashlog/internal/cache"
	"github.com/flashlog/flashlog/internal/codec"
	"github.com/flashlog/flashlog/internal/record"
)

// ErrInvalidFormat is returned when the magic header or version tag does
// not match what this package writes.
var ErrInvalidFormat = fmt.Errorf("sstable: invalid format")

// ErrCorrupted is returned when a structural check fails while reading an
// otherwise well-formed file: a bad footer, an undecodable meta block, or
// a block whose decompressed size does not match its recorded size.
var ErrCorrupted = fmt.Errorf("sstable: corrupted data")

// Reader opens an immutable SSTable and answers point lookups and full
// scans against it (spec.md §4.4). A Reader retains the file handle and a
// reference to the shared block cache. Block reads are positional (ReadAt)
// and taken under the Reader's own mutex, so callers need no extra locking
// around Get or Scan.
type Reader struct {
	mu   sync.Mutex
	f    *os.File
	path string
	cach *cache.Cache

	meta   metaBlock
	bloom  *bloomfilter.Filter
	fileID cache.FileID
}

// Open opens the SSTable at path, validating its magic header and footer
// and reconstructing its Bloom filter and sparse index. sharedCache is the
// Engine's process-wide block cache, handed to every reader it opens.
func Open(path string, sharedCache *cache.Cache) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}

	r := &Reader{f: f, path: path, cach: sharedCache, fileID: cache.NewFileID(path)}

	if err := r.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := r.readFooterAndMeta(); err != nil {
		f.Close()
		return nil, err
	}

	bloom, err := bloomfilter.Unmarshal(r.meta.BloomBytes)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: bloom filter: %v", ErrCorrupted, err)
	}
	r.bloom = bloom

	return r, nil
}

func (r *Reader) readHeader() error {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r.f, header); err != nil {
		return fmt.Errorf("%w: header: %v", ErrInvalidFormat, err)
	}
	if !bytes.Equal(header[:6], Magic[:]) {
		return fmt.Errorf("%w: bad magic", ErrInvalidFormat)
	}
	if header[6] != FormatVersion[0] || header[7] != FormatVersion[1] {
		return fmt.Errorf("%w: unsupported version %d.%d", ErrInvalidFormat, header[6], header[7])
	}
	return nil
}

func (r *Reader) readFooterAndMeta() error {
	info, err := r.f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat: %v", ErrCorrupted, err)
	}
	size := info.Size()
	if size < 8+8 {
		return fmt.Errorf("%w: file too small for footer", ErrCorrupted)
	}

	footer := make([]byte, 8)
	if _, err := r.f.ReadAt(footer, size-8); err != nil {
		return fmt.Errorf("%w: footer: %v", ErrCorrupted, err)
	}
	footerVal, err := codec.NewReader(footer).GetUint64()
	if err != nil {
		return fmt.Errorf("%w: footer: %v", ErrCorrupted, err)
	}
	metaOffset := int64(footerVal)
	if metaOffset < 0 || metaOffset > size-8 {
		return fmt.Errorf("%w: meta offset out of range", ErrCorrupted)
	}

	metaFrame := make([]byte, size-8-metaOffset)
	if _, err := r.f.ReadAt(metaFrame, metaOffset); err != nil {
		return fmt.Errorf("%w: meta block: %v", ErrCorrupted, err)
	}

	decompressed, err := decompressBlock(metaFrame)
	if err != nil {
		return fmt.Errorf("%w: meta block: %v", ErrCorrupted, err)
	}

	meta, err := decodeMetaBlock(decompressed)
	if err != nil {
		return fmt.Errorf("%w: meta block decode: %v", ErrCorrupted, err)
	}
	r.meta = meta
	return nil
}

// Path returns the file path this reader was opened from.
func (r *Reader) Path() string { return r.path }

// Timestamp returns the SSTable's creation timestamp in nanoseconds.
func (r *Reader) Timestamp() int64 { return r.meta.TimestampNs }

// RecordCount returns the number of records stored in the file.
func (r *Reader) RecordCount() uint64 { return r.meta.RecordCount }

// MinKey and MaxKey bound the keys present in the file.
func (r *Reader) MinKey() []byte { return r.meta.MinKey }
func (r *Reader) MaxKey() []byte { return r.meta.MaxKey }

// MightContain probes the Bloom filter. A false result means the key is
// definitely absent and no I/O is performed.
func (r *Reader) MightContain(key []byte) bool {
	return r.bloom.MightContain(key)
}

// Get looks up key, returning the live record, (nil, false, nil) if the
// key is absent, or an error on I/O or corruption (spec.md §4.4).
func (r *Reader) Get(key []byte) (*record.Record, bool, error) {
	if !r.MightContain(key) {
		return nil, false, nil
	}
	if bytes.Compare(key, r.meta.MinKey) < 0 || bytes.Compare(key, r.meta.MaxKey) > 0 {
		return nil, false, nil
	}

	idx := sort.Search(len(r.meta.Blocks), func(i int) bool {
		return bytes.Compare(r.meta.Blocks[i].FirstKey, key) > 0
	})
	if idx == 0 {
		return nil, false, nil
	}
	candidate := r.meta.Blocks[idx-1]

	b, err := r.fetchBlock(candidate)
	if err != nil {
		return nil, false, err
	}

	encoded, ok := b.Search(key)
	if !ok {
		return nil, false, nil
	}

	rec, err := record.Decode(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("%w: record decode: %v", ErrCorrupted, err)
	}
	return &rec, true, nil
}

// fetchBlock returns the decoded Block for meta, serving it from the
// shared cache when possible and falling back to a single positional read.
func (r *Reader) fetchBlock(meta blockMeta) (*block.Block, error) {
	cacheKey := cache.Key{File: r.fileID, Offset: meta.Offset}

	if buf, ok := r.cach.Get(cacheKey); ok {
		return block.Decode(buf)
	}

	r.mu.Lock()
	frame := make([]byte, meta.CompressedSize)
	_, err := r.f.ReadAt(frame, meta.Offset)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: block read: %v", ErrCorrupted, err)
	}

	uncompressed, err := decompressBlock(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: block decompress: %v", ErrCorrupted, err)
	}
	if uint32(len(uncompressed)) != meta.UncompressedSize {
		return nil, fmt.Errorf("%w: uncompressed size mismatch", ErrCorrupted)
	}

	r.cach.Put(cacheKey, uncompressed)
	return block.Decode(uncompressed)
}

// ScanEntry pairs a key with its decoded record, emitted by Scan in
// stored (sorted) order.
type ScanEntry struct {
	Key    []byte
	Record record.Record
}

// Scan returns every (key, record) pair in the file in key order,
// fetching/decoding each block through the shared cache. Intended for
// full-database scans and future compaction (spec.md §4.4).
func (r *Reader) Scan() ([]ScanEntry, error) {
	var out []ScanEntry
	for _, bm := range r.meta.Blocks {
		b, err := r.fetchBlock(bm)
		if err != nil {
			return nil, err
		}
		for _, e := range b.Entries() {
			rec, err := record.Decode(e.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: record decode: %v", ErrCorrupted, err)
			}
			out = append(out, ScanEntry{Key: e.Key, Record: rec})
		}
	}
	return out, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
