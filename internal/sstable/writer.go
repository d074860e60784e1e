// Package sstable implements the on-disk immutable sorted-run file format:
// block-structured payload, sparse index, and Bloom filter (spec.md §4.3,
// §4.4, §6). It generalizes the teacher's single-file writer
// (github.com/Priyanshu23/FlashLogGo/sst) to the block-structured,
// LZ4-compressed, footer-addressed layout spec.md §6 mandates.
package sstable

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/flashlog/flashlog/internal/block"
	"github.com/flashlog/flashlog/internal/bloomfilter"
	"github.com/flashlog/flashlog/internal/codec"
	"github.com/flashlog/flashlog/internal/record"
)

// Magic identifies the block-structured format this package reads and
// writes. Older single-file layouts (bloom+metadata+records concatenated)
// are not supported; spec.md §9 permits omitting that legacy reader.
var Magic = [6]byte{'L', 'S', 'M', 'S', 'S', 'T'}

// FormatVersion is the two-byte version tag following Magic.
var FormatVersion = [2]byte{1, 0}

// Entry is one (key, record) pair fed to Writer in strictly non-decreasing
// key order.
type Entry struct {
	Key    []byte
	Record record.Record
}

// ErrEmptyInput is returned when Write is called with no entries: spec.md
// §4.3 forbids empty SSTables.
var ErrEmptyInput = fmt.Errorf("sstable: refusing to write an empty table")

// ErrEntryTooLarge is returned when a single encoded record cannot fit in
// an otherwise-empty block.
var ErrEntryTooLarge = fmt.Errorf("sstable: entry too large for a block")

// Options configures the Writer.
type Options struct {
	BlockSize              int
	BloomFalsePositiveRate float64
}

// Write builds an immutable SSTable at path from entries (spec.md §4.3).
// entries must arrive in strictly non-decreasing key order; the caller
// (a MemTable snapshot or a merge iterator) guarantees this.
func Write(path string, opts Options, timestampNs int64, entries []Entry) (err error) {
	if len(entries) == 0 {
		return ErrEmptyInput
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sstable: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("sstable: close %s: %w", path, cerr)
		}
	}()

	bw := bufio.NewWriter(f)
	var offset int64

	write := func(b []byte) error {
		n, werr := bw.Write(b)
		offset += int64(n)
		return werr
	}

	if err = write(Magic[:]); err != nil {
		return fmt.Errorf("sstable: write magic: %w", err)
	}
	if err = write(FormatVersion[:]); err != nil {
		return fmt.Errorf("sstable: write format version: %w", err)
	}

	filter := bloomfilter.New(len(entries), opts.BloomFalsePositiveRate)
	var blockMetas []blockMeta
	minKey, maxKey := entries[0].Key, entries[0].Key

	sealBlock := func(b *block.Block) error {
		if b.Len() == 0 {
			return nil
		}
		firstKey := append([]byte(nil), b.Entries()[0].Key...)
		uncompressed := b.Encode()
		compressed := compressBlock(uncompressed)

		blockOffset := offset
		if err := write(compressed); err != nil {
			return fmt.Errorf("sstable: write data block: %w", err)
		}

		blockMetas = append(blockMetas, blockMeta{
			FirstKey:         firstKey,
			Offset:           blockOffset,
			CompressedSize:   uint32(len(compressed)),
			UncompressedSize: uint32(len(uncompressed)),
		})
		return nil
	}

	current := block.New(opts.BlockSize)
	for _, e := range entries {
		if bytes.Compare(e.Key, minKey) < 0 {
			minKey = e.Key
		}
		if bytes.Compare(e.Key, maxKey) > 0 {
			maxKey = e.Key
		}

		encodedRecord := record.Encode(e.Record)

		if !current.Add(e.Key, encodedRecord) {
			if err := sealBlock(current); err != nil {
				return err
			}
			current = block.New(opts.BlockSize)
			if !current.Add(e.Key, encodedRecord) {
				return ErrEntryTooLarge
			}
		}

		filter.Add(e.Key)
	}

	if err := sealBlock(current); err != nil {
		return err
	}

	bloomBytes, err := filter.Marshal()
	if err != nil {
		return fmt.Errorf("sstable: marshal bloom filter: %w", err)
	}

	meta := metaBlock{
		Blocks:      blockMetas,
		BloomBytes:  bloomBytes,
		MinKey:      append([]byte(nil), minKey...),
		MaxKey:      append([]byte(nil), maxKey...),
		RecordCount: uint64(len(entries)),
		TimestampNs: timestampNs,
	}

	metaOffset := offset
	encodedMeta := encodeMetaBlock(meta)
	compressedMeta := compressBlock(encodedMeta)
	if err := write(compressedMeta); err != nil {
		return fmt.Errorf("sstable: write meta block: %w", err)
	}

	footerWriter := codec.NewWriter(8)
	footerWriter.PutUint64(uint64(metaOffset))
	if err := write(footerWriter.Bytes()); err != nil {
		return fmt.Errorf("sstable: write footer: %w", err)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("sstable: flush %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sstable: fsync %s: %w", path, err)
	}

	return nil
}
