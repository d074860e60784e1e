package bloomfilter

import (
	"fmt"
	"testing"
)

func TestMarshalUnmarshalPreservesMembership(t *testing.T) {
	f := New(500, 0.01)
	for i := 0; i < 500; i++ {
		f.Add([]byte(fmt.Sprintf("existing_key_%04d", i)))
	}

	data, err := f.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for i := 0; i < 500; i++ {
		key := []byte(fmt.Sprintf("existing_key_%04d", i))
		if !restored.MightContain(key) {
			t.Fatalf("expected restored filter to contain %q", key)
		}
	}
}

func TestFalsePositiveRateIsBounded(t *testing.T) {
	f := New(500, 0.01)
	for i := 0; i < 500; i++ {
		f.Add([]byte(fmt.Sprintf("existing_key_%04d", i)))
	}

	falsePositives := 0
	for i := 0; i < 500; i++ {
		key := []byte(fmt.Sprintf("missing_key_%04d", i))
		if f.MightContain(key) {
			falsePositives++
		}
	}

	// At a 1% configured rate plus statistical variance, expect well
	// under 10 false positives out of 500 probes (spec.md §8 scenario 7).
	if falsePositives >= 10 {
		t.Fatalf("expected < 10 false positives, got %d", falsePositives)
	}
}

func TestNoFalseNegatives(t *testing.T) {
	f := New(100, 0.01)
	keys := make([][]byte, 100)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("k%d", i))
		f.Add(keys[i])
	}
	for _, k := range keys {
		if !f.MightContain(k) {
			t.Fatalf("bloom filter false negative for %q", k)
		}
	}
}
