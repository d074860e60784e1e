package sstable

import (
	"fmt"

	"github.com/flashlog/flashlog/internal/codec"
	"github.com/pierrec/lz4/v4"
)

const (
	flagStored byte = 0
	flagLZ4    byte = 1
)

// compressBlock LZ4-compresses payload and prepends its uncompressed
// length as a u32 LE plus a one-byte flag (spec.md §6: "LZ4-size-prepended
// compression"). Payloads LZ4 cannot shrink are stored raw behind the same
// envelope so the reader never needs to special-case them.
func compressBlock(payload []byte) []byte {
	maxSize := lz4.CompressBlockBound(len(payload))
	dst := make([]byte, maxSize)

	var c lz4.Compressor
	n, err := c.CompressBlock(payload, dst)
	if err != nil || n == 0 || n >= len(payload) {
		return frame(flagStored, payload, payload)
	}

	return frame(flagLZ4, payload, dst[:n])
}

func frame(flag byte, original, body []byte) []byte {
	w := codec.NewWriter(5 + len(body))
	w.PutUint32(uint32(len(original)))
	w.PutBool(flag == flagLZ4)
	return append(w.Bytes(), body...)
}

// ErrDecompression is returned when an LZ4 frame is malformed or its
// decompressed size does not match the length prepended to it.
var ErrDecompression = fmt.Errorf("sstable: lz4 decompression failed")

// decompressBlock reverses compressBlock.
func decompressBlock(buf []byte) ([]byte, error) {
	if len(buf) < 5 {
		return nil, ErrDecompression
	}
	r := codec.NewReader(buf)
	uncompressedLen, err := r.GetUint32()
	if err != nil {
		return nil, ErrDecompression
	}
	isLZ4, err := r.GetBool()
	if err != nil {
		return nil, ErrDecompression
	}
	flag := flagStored
	if isLZ4 {
		flag = flagLZ4
	}
	body := buf[5:]

	if flag == flagStored {
		if uint32(len(body)) != uncompressedLen {
			return nil, ErrDecompression
		}
		out := make([]byte, uncompressedLen)
		copy(out, body)
		return out, nil
	}

	out := make([]byte, uncompressedLen)
	n, err := lz4.UncompressBlock(body, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	if uint32(n) != uncompressedLen {
		return nil, ErrDecompression
	}
	return out, nil
}
