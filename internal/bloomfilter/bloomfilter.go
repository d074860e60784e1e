// Package bloomfilter wraps github.com/bits-and-blooms/bloom/v3 with the
// serialize/deserialize shape an SSTable needs: build once over every key
// in the file, then reconstruct from the bytes stored in the MetaBlock on
// open (spec.md §3, §4.3, §4.4).
package bloomfilter

import (
	"bytes"
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"
)

// Filter is an approximate membership structure with no false negatives
// and a bounded false-positive rate.
type Filter struct {
	bf *bloom.BloomFilter
}

// New returns a Filter sized for expectedKeys entries at the given
// false-positive rate (spec.md §4.3 step 3).
func New(expectedKeys int, falsePositiveRate float64) *Filter {
	if expectedKeys < 1 {
		expectedKeys = 1
	}
	return &Filter{bf: bloom.NewWithEstimates(uint(expectedKeys), falsePositiveRate)}
}

// Add records key as present.
func (f *Filter) Add(key []byte) {
	f.bf.Add(key)
}

// MightContain probes the filter. false is authoritative ("definitely
// absent"); true is a hint ("probably present") bounded by the configured
// false-positive rate.
func (f *Filter) MightContain(key []byte) bool {
	return f.bf.Test(key)
}

// Marshal serializes the filter to bytes for embedding in an SSTable's
// MetaBlock.
func (f *Filter) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := f.bf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("bloomfilter: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal reconstructs a Filter from bytes produced by Marshal.
func Unmarshal(data []byte) (*Filter, error) {
	bf := &bloom.BloomFilter{}
	if _, err := bf.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("bloomfilter: unmarshal: %w", err)
	}
	return &Filter{bf: bf}, nil
}
