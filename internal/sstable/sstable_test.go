package sstable

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/flashlog/flashlog/internal/cache"
	"github.com/flashlog/flashlog/internal/record"
)

func readAll(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func writeAll(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func testOptions() Options {
	return Options{BlockSize: 512, BloomFalsePositiveRate: 0.01}
}

func writeTestTable(t *testing.T, entries []Entry) *Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1.sst")
	if err := Write(path, testOptions(), 1, entries); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := Open(path, cache.New(1, 512))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestWriteRejectsEmptyInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sst")
	if err := Write(path, testOptions(), 1, nil); err != ErrEmptyInput {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestWriteRejectsEntryLargerThanBlockSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toobig.sst")
	huge := record.New(bytes.Repeat([]byte("k"), 2000), bytes.Repeat([]byte("v"), 2000), 1, 0)
	err := Write(path, Options{BlockSize: 256, BloomFalsePositiveRate: 0.01}, 1, []Entry{{Key: huge.Key, Record: huge}})
	if err != ErrEntryTooLarge {
		t.Fatalf("expected ErrEntryTooLarge, got %v", err)
	}
}

func TestGetFindsWrittenKeys(t *testing.T) {
	entries := make([]Entry, 0, 50)
	for i := 0; i < 50; i++ {
		k := []byte(fmt.Sprintf("k%03d", i))
		v := []byte(fmt.Sprintf("v%03d", i))
		entries = append(entries, Entry{Key: k, Record: record.New(k, v, uint64(i), 0)})
	}

	r := writeTestTable(t, entries)

	for i := 0; i < 50; i++ {
		k := []byte(fmt.Sprintf("k%03d", i))
		got, ok, err := r.Get(k)
		if err != nil || !ok {
			t.Fatalf("key %s: got ok=%v err=%v", k, ok, err)
		}
		if !bytes.Equal(got.Value, []byte(fmt.Sprintf("v%03d", i))) {
			t.Fatalf("key %s: value mismatch: %q", k, got.Value)
		}
	}

	if _, ok, err := r.Get([]byte("missing")); err != nil || ok {
		t.Fatalf("expected miss for nonexistent key, got ok=%v err=%v", ok, err)
	}
}

func TestGetAtExactBoundariesAndJustOutside(t *testing.T) {
	entries := []Entry{
		{Key: []byte("b"), Record: record.New([]byte("b"), []byte("2"), 1, 0)},
		{Key: []byte("m"), Record: record.New([]byte("m"), []byte("13"), 1, 0)},
		{Key: []byte("y"), Record: record.New([]byte("y"), []byte("25"), 1, 0)},
	}
	r := writeTestTable(t, entries)

	if _, ok, _ := r.Get([]byte("b")); !ok {
		t.Fatal("expected min key to be retrievable")
	}
	if _, ok, _ := r.Get([]byte("y")); !ok {
		t.Fatal("expected max key to be retrievable")
	}
	if _, ok, _ := r.Get([]byte("a")); ok {
		t.Fatal("expected key below min to miss without error")
	}
	if _, ok, _ := r.Get([]byte("z")); ok {
		t.Fatal("expected key above max to miss without error")
	}
}

func TestScanReturnsAllEntriesInOrder(t *testing.T) {
	entries := make([]Entry, 0, 20)
	for i := 0; i < 20; i++ {
		k := []byte(fmt.Sprintf("k%02d", i))
		entries = append(entries, Entry{Key: k, Record: record.New(k, k, uint64(i), 0)})
	}
	r := writeTestTable(t, entries)

	scanned, err := r.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scanned) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(scanned))
	}
	for i, e := range scanned {
		if !bytes.Equal(e.Key, entries[i].Key) {
			t.Fatalf("entry %d out of order: got %q want %q", i, e.Key, entries[i].Key)
		}
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.sst")
	entries := []Entry{{Key: []byte("a"), Record: record.New([]byte("a"), []byte("1"), 1, 0)}}
	if err := Write(path, testOptions(), 1, entries); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := readAll(path)
	if err != nil {
		t.Fatal(err)
	}
	data[0] ^= 0xFF
	if err := writeAll(path, data); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path, cache.New(1, 512)); err == nil {
		t.Fatal("expected open to fail on corrupted magic")
	}
}

func TestBloomFilterRejectsMissingKeysWithoutIO(t *testing.T) {
	entries := make([]Entry, 0, 500)
	for i := 0; i < 500; i++ {
		k := []byte(fmt.Sprintf("existing_key_%04d", i))
		entries = append(entries, Entry{Key: k, Record: record.New(k, k, uint64(i), 0)})
	}
	r := writeTestTable(t, entries)

	falsePositives := 0
	for i := 0; i < 500; i++ {
		k := []byte(fmt.Sprintf("missing_key_%04d", i))
		if r.MightContain(k) {
			falsePositives++
		}
	}
	if falsePositives >= 10 {
		t.Fatalf("expected < 10 bloom false positives, got %d", falsePositives)
	}
}
