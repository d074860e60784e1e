package flashlog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func testOptions(t *testing.T, memtableMaxSize int) Options {
	t.Helper()
	return Options{
		DirPath:         t.TempDir(),
		MemtableMaxSize: memtableMaxSize,
	}
}

func openTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestMemTableRoundTrip(t *testing.T) {
	e := openTestEngine(t, testOptions(t, 1<<20))

	if err := e.Set([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, found, err := e.Get([]byte("k1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || string(v) != "v1" {
		t.Fatalf("expected v1, got %q found=%v", v, found)
	}
}

func TestFlushTriggersSSTable(t *testing.T) {
	opts := testOptions(t, 64)
	e := openTestEngine(t, opts)

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("k%d", i))
		value := bytes.Repeat([]byte("x"), 20)
		if err := e.Set(key, value); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}

	stats, err := e.StatsAll()
	if err != nil {
		t.Fatalf("statsall: %v", err)
	}
	if stats.SSTableCount == 0 {
		t.Fatal("expected at least one sstable after crossing the memtable threshold repeatedly")
	}

	v, found, err := e.Get([]byte("k0"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || len(v) != 20 {
		t.Fatalf("expected 20-byte value for k0, got %q found=%v", v, found)
	}
}

func TestPersistenceAcrossRestartWALPath(t *testing.T) {
	dir := t.TempDir()
	opts := Options{DirPath: dir, MemtableMaxSize: 1 << 20}

	e := openTestEngine(t, opts)
	if err := e.Set([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	e2, err := New(opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	v, found, err := e2.Get([]byte("k1"))
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if !found || string(v) != "v1" {
		t.Fatalf("expected v1 after reopen, got %q found=%v", v, found)
	}
}

func TestPersistenceAcrossRestartSSTablePath(t *testing.T) {
	dir := t.TempDir()
	opts := Options{DirPath: dir, MemtableMaxSize: 64}

	e := openTestEngine(t, opts)
	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("k%d", i))
		value := bytes.Repeat([]byte("x"), 20)
		if err := e.Set(key, value); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	e2, err := New(opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	v, found, err := e2.Get([]byte("k0"))
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if !found || len(v) != 20 {
		t.Fatalf("expected 20-byte value for k0 after reopen, got %q found=%v", v, found)
	}
}

func TestTombstoneSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	opts := Options{DirPath: dir, MemtableMaxSize: 1 << 20}

	e := openTestEngine(t, opts)
	if err := e.Set([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := e.Delete([]byte("k1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	e2, err := New(opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	_, found, err := e2.Get([]byte("k1"))
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if found {
		t.Fatal("expected k1 to remain deleted after restart")
	}
}

func TestWALTruncationDetectedOnReopen(t *testing.T) {
	dir := t.TempDir()
	opts := Options{DirPath: dir, MemtableMaxSize: 1 << 20}

	e := openTestEngine(t, opts)
	if err := e.Set([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	walPath := filepath.Join(dir, "wal.log")
	data, err := os.ReadFile(walPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(walPath, data[:len(data)-1], 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := New(opts); err == nil {
		t.Fatal("expected New to surface the truncated WAL as an error")
	}
}

func TestBloomFilterAvoidsDiskReadsForMissingKeys(t *testing.T) {
	opts := testOptions(t, 64)
	e := openTestEngine(t, opts)

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("k%d", i))
		value := bytes.Repeat([]byte("x"), 20)
		if err := e.Set(key, value); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}

	statsBefore, err := e.StatsAll()
	if err != nil {
		t.Fatalf("statsall: %v", err)
	}

	for i := 0; i < 20; i++ {
		_, found, err := e.Get([]byte(fmt.Sprintf("missing-%d", i)))
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if found {
			t.Fatalf("did not expect missing-%d to be found", i)
		}
	}

	statsAfter, err := e.StatsAll()
	if err != nil {
		t.Fatalf("statsall: %v", err)
	}
	if statsAfter.CacheMisses > statsBefore.CacheMisses {
		t.Fatalf("expected bloom filters to reject missing keys without touching the block cache, misses went from %d to %d",
			statsBefore.CacheMisses, statsAfter.CacheMisses)
	}
}

func TestMultiSSTableShadowingAndTombstoneOrdering(t *testing.T) {
	opts := testOptions(t, 64)
	e := openTestEngine(t, opts)

	pad := func(s string) []byte { return append([]byte(s), bytes.Repeat([]byte("p"), 20)...) }

	for i := 0; i < 10; i++ {
		if err := e.Set([]byte("k"), pad(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatalf("set round %d: %v", i, err)
		}
	}
	if err := e.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for i := 10; i < 20; i++ {
		key := []byte(fmt.Sprintf("k%d", i))
		if err := e.Set(key, pad("filler")); err != nil {
			t.Fatalf("set filler %d: %v", i, err)
		}
	}

	_, found, err := e.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatal("expected the newest tombstone to shadow all earlier live values for k across sstables")
	}
}

func TestSearchAndSearchPrefix(t *testing.T) {
	e := openTestEngine(t, testOptions(t, 1<<20))
	for _, k := range []string{"alpha", "albert", "beta"} {
		if err := e.Set([]byte(k), []byte(k)); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	prefixed, err := e.SearchPrefix("al")
	if err != nil {
		t.Fatalf("searchprefix: %v", err)
	}
	if len(prefixed) != 2 {
		t.Fatalf("expected 2 prefix matches, got %d", len(prefixed))
	}

	substr, err := e.Search("et")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(substr) != 1 || string(substr[0].Key) != "beta" {
		t.Fatalf("expected substring match on beta, got %+v", substr)
	}
}

func TestSetBatchRejectsMismatchedLengthsAndCountsApplied(t *testing.T) {
	e := openTestEngine(t, testOptions(t, 1<<20))

	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	values := [][]byte{[]byte("1"), []byte("2")}

	n, err := e.SetBatch(keys, values)
	if err == nil {
		t.Fatal("expected mismatched-length batch to fail")
	}
	if n != 0 {
		t.Fatalf("expected zero applied on mismatched batch, got %d", n)
	}

	n, err = e.SetBatch(keys[:2], values)
	if err != nil {
		t.Fatalf("setbatch: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 applied, got %d", n)
	}
	count, err := e.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
}

func TestStatsReportsHumanAndStructuredForm(t *testing.T) {
	e := openTestEngine(t, testOptions(t, 1<<20))
	if err := e.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}

	s, err := e.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if s == "" {
		t.Fatal("expected a non-empty human-readable stats string")
	}

	all, err := e.StatsAll()
	if err != nil {
		t.Fatalf("statsall: %v", err)
	}
	if all.LiveKeyCount != 1 {
		t.Fatalf("expected live key count 1, got %d", all.LiveKeyCount)
	}
}

func TestOperationsAfterCloseFail(t *testing.T) {
	e := openTestEngine(t, testOptions(t, 1<<20))
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := e.Set([]byte("k"), []byte("v")); err == nil {
		t.Fatal("expected Set after Close to fail")
	}
	if _, _, err := e.Get([]byte("k")); err == nil {
		t.Fatal("expected Get after Close to fail")
	}
}
