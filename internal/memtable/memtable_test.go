package memtable

import (
	"testing"

	"github.com/flashlog/flashlog/internal/record"
)

func TestInsertAndGet(t *testing.T) {
	m := New(1 << 20)
	m.Insert(record.New([]byte("hello"), []byte("world"), 1, 0))

	got, ok := m.Get([]byte("hello"))
	if !ok || string(got.Value) != "world" {
		t.Fatalf("expected hello=world, got (%v,%v)", got, ok)
	}
	if _, ok := m.Get([]byte("missing")); ok {
		t.Fatal("expected missing key to not be found")
	}
}

func TestInsertOverwriteAdjustsSize(t *testing.T) {
	m := New(1 << 20)
	m.Insert(record.New([]byte("k"), []byte("short"), 1, 0))
	sizeAfterFirst := m.SizeBytes()

	m.Insert(record.New([]byte("k"), []byte("a much longer value"), 2, 0))
	sizeAfterSecond := m.SizeBytes()

	if m.Len() != 1 {
		t.Fatalf("expected a single key, got %d", m.Len())
	}
	if sizeAfterSecond <= sizeAfterFirst {
		t.Fatalf("expected size to grow after overwriting with a longer value: %d -> %d", sizeAfterFirst, sizeAfterSecond)
	}
}

func TestShouldFlushCrossesThreshold(t *testing.T) {
	m := New(64)
	if m.ShouldFlush() {
		t.Fatal("empty memtable should not need a flush")
	}

	for i := 0; m.SizeBytes() < 64; i++ {
		m.Insert(record.New([]byte{byte(i)}, []byte("x"), uint64(i), 0))
	}

	if !m.ShouldFlush() {
		t.Fatal("expected ShouldFlush to report true once size crosses the threshold")
	}
}

func TestClearEmptiesTable(t *testing.T) {
	m := New(1 << 20)
	m.Insert(record.New([]byte("a"), []byte("1"), 1, 0))
	m.Insert(record.New([]byte("b"), []byte("2"), 1, 0))

	dropped := m.Clear()
	if dropped != 2 {
		t.Fatalf("expected 2 dropped records, got %d", dropped)
	}
	if m.Len() != 0 || m.SizeBytes() != 0 {
		t.Fatalf("expected empty table after clear, got len=%d bytes=%d", m.Len(), m.SizeBytes())
	}
}

func TestIterOrderedYieldsSortedKeys(t *testing.T) {
	m := New(1 << 20)
	for _, k := range []string{"c", "a", "b"} {
		m.Insert(record.New([]byte(k), []byte(k), 1, 0))
	}

	var got []string
	for k := range m.IterOrdered() {
		got = append(got, string(k))
	}

	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
