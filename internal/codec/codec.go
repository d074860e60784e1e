// Package codec provides the deterministic little-endian binary encoding
// shared by records, block metadata, and SSTable metadata. Every value
// written here round-trips byte-for-byte: the same input always produces
// the same bytes, so checksums and Bloom-filter inputs stay reproducible.
package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// ErrShortBuffer is returned when a decode call runs out of input before
// finishing a fixed-width field.
var ErrShortBuffer = fmt.Errorf("codec: short buffer")

// Writer accumulates encoded bytes. It never returns an error: all writes
// are to an in-memory buffer, matching the way the teacher's SST writer
// treats buffered io.Writer calls as infallible until the final flush.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer, optionally pre-sized.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

func (w *Writer) PutUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutUint128 writes a 128-bit unsigned value as two little-endian uint64
// halves (low then high), used for the Record timestamp.
func (w *Writer) PutUint128(lo, hi uint64) {
	w.PutUint64(lo)
	w.PutUint64(hi)
}

func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// PutBytes writes a u32-length-prefixed byte slice.
func (w *Writer) PutBytes(b []byte) {
	w.PutUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// PutBytes16 writes a u16-length-prefixed byte slice, used inside Block
// entries where keys and values are bounded to 65535 bytes (spec.md §4.2).
func (w *Writer) PutBytes16(b []byte) {
	w.PutUint16(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len reports the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Reader consumes bytes produced by Writer. Every Get* call advances the
// cursor and returns ErrShortBuffer on underrun instead of panicking, so
// a truncated record surfaces as a decode failure rather than a crash.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) need(n int) error {
	if len(r.buf)-r.pos < n {
		return ErrShortBuffer
	}
	return nil
}

func (r *Reader) GetUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) GetUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) GetUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) GetUint128() (lo, hi uint64, err error) {
	lo, err = r.GetUint64()
	if err != nil {
		return 0, 0, err
	}
	hi, err = r.GetUint64()
	if err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

func (r *Reader) GetBool() (bool, error) {
	if err := r.need(1); err != nil {
		return false, err
	}
	v := r.buf[r.pos] != 0
	r.pos++
	return v, nil
}

func (r *Reader) GetBytes() ([]byte, error) {
	n, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

func (r *Reader) GetBytes16() ([]byte, error) {
	n, err := r.GetUint16()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Checksum returns the IEEE CRC32 of b, used to make decode failures
// (corrupted bytes) distinguishable from merely short buffers.
func Checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// WriteFrame writes a u32-length-prefixed payload to w, the framing used
// by the WAL (spec.md §4.7, §6). Compressed SSTable blocks use their own
// length-and-flag envelope in internal/sstable instead.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one u32-length-prefixed payload from r. It returns
// io.EOF only when zero bytes could be read at a frame boundary (a clean
// end of stream); any other short read is surfaced as-is so the caller
// can distinguish a clean EOF from a truncated frame.
func ReadFrame(r io.Reader, maxLen uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 || n > maxLen {
		return nil, fmt.Errorf("codec: frame length %d out of range", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
