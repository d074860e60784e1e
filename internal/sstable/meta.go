package sstable

import (
	"fmt"

	"github.com/flashlog/flashlog/internal/codec"
)

// blockMeta is one entry of the sparse index: the first key of a data
// block, its byte offset in the file, and its compressed/uncompressed
// sizes (spec.md §3, §4.3).
type blockMeta struct {
	FirstKey         []byte
	Offset           int64
	CompressedSize   uint32
	UncompressedSize uint32
}

// metaBlock is the SSTable's trailer: per-block metadata, the serialized
// Bloom filter, min/max keys, record count, and creation timestamp
// (spec.md §3, §6).
type metaBlock struct {
	Blocks      []blockMeta
	BloomBytes  []byte
	MinKey      []byte
	MaxKey      []byte
	RecordCount uint64
	TimestampNs int64
}

func encodeMetaBlock(m metaBlock) []byte {
	w := codec.NewWriter(256 + len(m.BloomBytes))

	w.PutUint32(uint32(len(m.Blocks)))
	for _, bm := range m.Blocks {
		w.PutBytes(bm.FirstKey)
		w.PutUint64(uint64(bm.Offset))
		w.PutUint32(bm.CompressedSize)
		w.PutUint32(bm.UncompressedSize)
	}

	w.PutBytes(m.BloomBytes)
	w.PutBytes(m.MinKey)
	w.PutBytes(m.MaxKey)
	w.PutUint64(m.RecordCount)
	w.PutUint64(uint64(m.TimestampNs))

	return w.Bytes()
}

func decodeMetaBlock(buf []byte) (metaBlock, error) {
	r := codec.NewReader(buf)

	n, err := r.GetUint32()
	if err != nil {
		return metaBlock{}, fmt.Errorf("sstable: decode meta block count: %w", err)
	}

	blocks := make([]blockMeta, 0, n)
	for i := uint32(0); i < n; i++ {
		firstKey, err := r.GetBytes()
		if err != nil {
			return metaBlock{}, fmt.Errorf("sstable: decode block %d first key: %w", i, err)
		}
		offset, err := r.GetUint64()
		if err != nil {
			return metaBlock{}, fmt.Errorf("sstable: decode block %d offset: %w", i, err)
		}
		csize, err := r.GetUint32()
		if err != nil {
			return metaBlock{}, fmt.Errorf("sstable: decode block %d compressed size: %w", i, err)
		}
		usize, err := r.GetUint32()
		if err != nil {
			return metaBlock{}, fmt.Errorf("sstable: decode block %d uncompressed size: %w", i, err)
		}
		blocks = append(blocks, blockMeta{
			FirstKey:         firstKey,
			Offset:           int64(offset),
			CompressedSize:   csize,
			UncompressedSize: usize,
		})
	}

	bloomBytes, err := r.GetBytes()
	if err != nil {
		return metaBlock{}, fmt.Errorf("sstable: decode bloom bytes: %w", err)
	}
	minKey, err := r.GetBytes()
	if err != nil {
		return metaBlock{}, fmt.Errorf("sstable: decode min key: %w", err)
	}
	maxKey, err := r.GetBytes()
	if err != nil {
		return metaBlock{}, fmt.Errorf("sstable: decode max key: %w", err)
	}
	recordCount, err := r.GetUint64()
	if err != nil {
		return metaBlock{}, fmt.Errorf("sstable: decode record count: %w", err)
	}
	ts, err := r.GetUint64()
	if err != nil {
		return metaBlock{}, fmt.Errorf("sstable: decode timestamp: %w", err)
	}

	return metaBlock{
		Blocks:      blocks,
		BloomBytes:  bloomBytes,
		MinKey:      minKey,
		MaxKey:      maxKey,
		RecordCount: recordCount,
		TimestampNs: int64(ts),
	}, nil
}
