package stats

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/corpus"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/vectorindex"
)

type fakeIndex struct {
	mu          sync.Mutex
	records     map[string]vectorindex.Record
	failFetchID string
	upsertDelay time.Duration

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	upserts     int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{records: make(map[string]vectorindex.Record)}
}

func (f *fakeIndex) Fetch(ctx context.Context, ids []string, namespace string) (map[string]vectorindex.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]vectorindex.Record, len(ids))
	for _, id := range ids {
		if id == f.failFetchID {
			return nil, errors.New("fetch exploded")
		}
		if rec, ok := f.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (f *fakeIndex) Upsert(ctx context.Context, records []vectorindex.Record, namespace string) error {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxInFlight.Load()
		if cur <= prev || f.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	if f.upsertDelay > 0 {
		time.Sleep(f.upsertDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	for _, rec := range records {
		f.records[rec.ID] = rec
	}
	return nil
}

func chunk(id string, freqs map[string]int, length int) corpus.Chunk {
	return corpus.Chunk{ChunkID: id, SourceID: "src-1", TermFrequencies: freqs, TermLength: length}
}

// TestReindexPreservesForeignMetadata verifies that metadata and dense values
// owned by other components survive a reindex pass untouched.
func TestReindexPreservesForeignMetadata(t *testing.T) {
	store := newFakeCorpus()
	store.chunks["t1"] = []corpus.Chunk{
		chunk("c1", map[string]int{"alpha": 2}, 100),
		chunk("c2", map[string]int{"beta": 1}, 50),
	}

	index := newFakeIndex()
	meta := map[string]any{"title": "Q3 report", "page": 7, "acl": []any{"finance"}}
	dense := []float64{0.1, 0.2, 0.3}
	index.records["c1"] = vectorindex.Record{ID: "c1", Dense: dense, Metadata: meta}

	r := NewReindexer(store, index, "org", testConfig(), nil)
	r.Launch("t1", 75)
	r.Drain()

	index.mu.Lock()
	defer index.mu.Unlock()

	got := index.records["c1"]
	if !reflect.DeepEqual(got.Metadata, meta) {
		t.Errorf("metadata changed: got %+v, want %+v", got.Metadata, meta)
	}
	if !reflect.DeepEqual(got.Dense, dense) {
		t.Errorf("dense values changed: got %v, want %v", got.Dense, dense)
	}
	if got.Sparse == nil || len(got.Sparse.Indices) == 0 {
		t.Error("sparse vector missing after reindex")
	}

	// A chunk the index has never seen gets minimal metadata.
	fresh := index.records["c2"]
	if fresh.Metadata["source_id"] != "src-1" {
		t.Errorf("expected source_id metadata on new record, got %+v", fresh.Metadata)
	}
}

// TestReindexContinuesPastFailedBatch injects a fetch failure into one batch
// and expects the remaining batches to be upserted anyway.
func TestReindexContinuesPastFailedBatch(t *testing.T) {
	store := newFakeCorpus()
	store.chunks["t1"] = []corpus.Chunk{
		chunk("c1", map[string]int{"a": 1}, 10),
		chunk("bad", map[string]int{"b": 1}, 10),
		chunk("c3", map[string]int{"c": 1}, 10),
	}

	index := newFakeIndex()
	index.failFetchID = "bad"

	cfg := testConfig()
	cfg.ReindexBatchSize = 1
	r := NewReindexer(store, index, "org", cfg, nil)
	r.Launch("t1", 10)
	r.Drain()

	index.mu.Lock()
	defer index.mu.Unlock()
	if _, ok := index.records["c1"]; !ok {
		t.Error("c1 missing despite unrelated batch failure")
	}
	if _, ok := index.records["c3"]; !ok {
		t.Error("c3 missing despite unrelated batch failure")
	}
	if _, ok := index.records["bad"]; ok {
		t.Error("failed batch should not have been upserted")
	}
}

// TestReindexSerializedPerTenant launches several jobs for one tenant while
// the first is still running and expects no overlap plus coalescing of the
// queued launches into one follow-up run.
func TestReindexSerializedPerTenant(t *testing.T) {
	store := newFakeCorpus()
	store.chunks["t1"] = []corpus.Chunk{chunk("c1", map[string]int{"a": 1}, 10)}

	index := newFakeIndex()
	index.upsertDelay = 50 * time.Millisecond

	cfg := testConfig()
	cfg.ReindexParallel = 1
	r := NewReindexer(store, index, "org", cfg, nil)

	r.Launch("t1", 10)
	r.Launch("t1", 20)
	r.Launch("t1", 30)
	r.Drain()

	if max := index.maxInFlight.Load(); max > 1 {
		t.Errorf("jobs overlapped: %d upserts in flight at once", max)
	}
	index.mu.Lock()
	upserts := index.upserts
	index.mu.Unlock()
	if upserts != 2 {
		t.Errorf("expected 2 runs (first plus one coalesced), got %d", upserts)
	}
}

// TestReindexParallelBatchesBounded checks the in-flight batch limit holds
// for a single large job.
func TestReindexParallelBatchesBounded(t *testing.T) {
	store := newFakeCorpus()
	var chunks []corpus.Chunk
	for i := 0; i < 12; i++ {
		chunks = append(chunks, chunk(string(rune('a'+i)), map[string]int{"x": 1}, 10))
	}
	store.chunks["t1"] = chunks

	index := newFakeIndex()
	index.upsertDelay = 10 * time.Millisecond

	cfg := testConfig()
	cfg.ReindexBatchSize = 2
	cfg.ReindexParallel = 3
	r := NewReindexer(store, index, "org", cfg, nil)
	r.Launch("t1", 10)
	r.Drain()

	if max := index.maxInFlight.Load(); max > int64(cfg.ReindexParallel) {
		t.Errorf("batch parallelism exceeded limit: %d > %d", max, cfg.ReindexParallel)
	}
	index.mu.Lock()
	defer index.mu.Unlock()
	if len(index.records) != 12 {
		t.Errorf("expected 12 records, got %d", len(index.records))
	}
}

// TestDrainDropsLateLaunches covers shutdown: a flush racing with Drain must
// not start a job Drain never waits for.
func TestDrainDropsLateLaunches(t *testing.T) {
	store := newFakeCorpus()
	store.chunks["t1"] = []corpus.Chunk{chunk("c1", map[string]int{"x": 1}, 10)}

	index := newFakeIndex()
	r := NewReindexer(store, index, "org", testConfig(), nil)

	r.Drain()
	r.Launch("t1", 10)

	// The launch was rejected, so there is nothing to wait for; give any
	// stray goroutine a chance to run before asserting.
	time.Sleep(50 * time.Millisecond)
	index.mu.Lock()
	defer index.mu.Unlock()
	if index.upserts != 0 {
		t.Errorf("launch after drain started a job: %d upserts", index.upserts)
	}
}
