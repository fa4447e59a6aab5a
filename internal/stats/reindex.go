package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/corpus"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/vectorindex"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/weighting"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/config"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/metrics"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/resilience"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// Reindexer rewrites every chunk's sparse term-weight vector for a tenant
// after a flush, using the flushed average document length. Jobs are
// fire-and-forget and best-effort: every failure is logged and swallowed.
//
// At most one job runs per tenant. Launches arriving while a job is running
// are coalesced: only the most recent average document length is kept, and
// one follow-up job runs once the current one finishes.
type Reindexer struct {
	corpus   corpus.Reader
	index    vectorindex.Index
	nsPrefix string
	cfg      config.AggregatorConfig
	retry    resilience.RetryConfig
	m        *metrics.Metrics
	logger   *slog.Logger
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
	jobs   map[string]*tenantJob
}

type tenantJob struct {
	running bool
	queued  bool
	nextAvg float64
}

// NewReindexer creates a reindexer. metrics may be nil.
func NewReindexer(corpusReader corpus.Reader, index vectorindex.Index, nsPrefix string, cfg config.AggregatorConfig, m *metrics.Metrics) *Reindexer {
	return &Reindexer{
		corpus:   corpusReader,
		index:    index,
		nsPrefix: nsPrefix,
		cfg:      cfg,
		retry: resilience.RetryConfig{
			MaxAttempts:  2,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		m:      m,
		logger: slog.Default().With("component", "reindexer"),
		jobs:   make(map[string]*tenantJob),
	}
}

// Launch schedules a reindex job for the tenant. It never blocks. Launches
// arriving after Drain has started are dropped; the corpus remains the
// source of truth and the next flush after restart rebuilds the vectors.
func (r *Reindexer) Launch(tenantID string, avgDocLength float64) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("reindex launch dropped, reindexer draining", "tenant_id", tenantID)
		return
	}
	j, ok := r.jobs[tenantID]
	if !ok {
		j = &tenantJob{}
		r.jobs[tenantID] = j
	}
	if j.running {
		j.queued = true
		j.nextAvg = avgDocLength
		r.mu.Unlock()
		r.logger.Debug("reindex coalesced into running job", "tenant_id", tenantID)
		return
	}
	j.running = true
	// The Add must happen under the lock so it cannot interleave with
	// Drain's Wait after closed is set.
	r.wg.Add(1)
	r.mu.Unlock()

	go r.runSerialized(tenantID, avgDocLength)
}

// Drain stops accepting launches and blocks until all in-flight jobs have
// finished. Used on shutdown.
func (r *Reindexer) Drain() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}

// runSerialized runs the job, then any launch that was coalesced while it
// was running, until the queue for this tenant is empty.
func (r *Reindexer) runSerialized(tenantID string, avgDocLength float64) {
	defer r.wg.Done()
	for {
		r.run(tenantID, avgDocLength)

		r.mu.Lock()
		j := r.jobs[tenantID]
		if j.queued {
			j.queued = false
			avgDocLength = j.nextAvg
			r.mu.Unlock()
			continue
		}
		j.running = false
		r.mu.Unlock()
		return
	}
}

func (r *Reindexer) run(tenantID string, avgDocLength float64) {
	start := time.Now()
	ctx, span := tracing.StartSpan(context.Background(), "reindex",
		fmt.Sprintf("%s-%d", tenantID, start.UnixMilli()))
	span.SetAttr("tenant_id", tenantID)
	span.SetAttr("avg_doc_length", avgDocLength)
	defer func() {
		span.End()
		span.Log()
	}()

	chunks, err := r.corpus.Chunks(ctx, tenantID)
	if err != nil {
		r.logger.Error("reindex aborted, corpus scan failed",
			"tenant_id", tenantID,
			"error", err,
		)
		if r.m != nil {
			r.m.ReindexJobsTotal.WithLabelValues("error").Inc()
		}
		return
	}
	if len(chunks) == 0 {
		r.logger.Debug("reindex skipped, empty corpus", "tenant_id", tenantID)
		if r.m != nil {
			r.m.ReindexJobsTotal.WithLabelValues("ok").Inc()
		}
		return
	}
	span.SetAttr("chunks", len(chunks))

	namespace := fmt.Sprintf("%s-%s", r.nsPrefix, tenantID)

	var failed atomic.Int64
	g := new(errgroup.Group)
	parallel := r.cfg.ReindexParallel
	if parallel < 1 {
		parallel = 1
	}
	g.SetLimit(parallel)

	for batchStart := 0; batchStart < len(chunks); batchStart += r.cfg.ReindexBatchSize {
		batch := chunks[batchStart:min(batchStart+r.cfg.ReindexBatchSize, len(chunks))]
		g.Go(func() error {
			// Batches never cancel each other; a failed batch is
			// recorded and the rest of the job continues.
			if !r.processBatch(ctx, namespace, batch, avgDocLength) {
				failed.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	status := "ok"
	if failed.Load() > 0 {
		status = "degraded"
	}
	if r.m != nil {
		r.m.ReindexJobsTotal.WithLabelValues(status).Inc()
	}
	r.logger.Info("reindex finished",
		"tenant_id", tenantID,
		"chunks", len(chunks),
		"failed_batches", failed.Load(),
		"avg_doc_length", avgDocLength,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// processBatch fetches the existing index records for one batch of chunks,
// merges the recomputed sparse vectors with the metadata and dense values it
// does not own, and upserts the result. Returns false if either call failed.
func (r *Reindexer) processBatch(ctx context.Context, namespace string, batch []corpus.Chunk, avgDocLength float64) bool {
	ctx, span := tracing.StartChildSpan(ctx, "reindex-batch")
	span.SetAttr("batch_size", len(batch))
	defer span.End()

	ids := make([]string, len(batch))
	for i, c := range batch {
		ids[i] = c.ChunkID
	}

	var existing map[string]vectorindex.Record
	err := resilience.Retry(ctx, "reindex-fetch", r.retry, func() error {
		var ferr error
		existing, ferr = r.index.Fetch(ctx, ids, namespace)
		return ferr
	})
	if err != nil {
		r.logger.Error("batch fetch failed",
			"namespace", namespace,
			"batch_size", len(batch),
			"error", err,
		)
		if r.m != nil {
			r.m.ReindexBatchesTotal.WithLabelValues("fetch_error").Inc()
		}
		return false
	}

	records := make([]vectorindex.Record, 0, len(batch))
	for _, c := range batch {
		vec := weighting.Sparse(c.TermFrequencies, c.TermLength, avgDocLength)
		rec := vectorindex.Record{ID: c.ChunkID, Sparse: &vec}
		if prev, ok := existing[c.ChunkID]; ok {
			// Carry through everything the stats path does not own.
			rec.Dense = prev.Dense
			rec.Metadata = prev.Metadata
		} else {
			rec.Metadata = map[string]any{"source_id": c.SourceID}
		}
		records = append(records, rec)
	}

	err = resilience.Retry(ctx, "reindex-upsert", r.retry, func() error {
		return r.index.Upsert(ctx, records, namespace)
	})
	if err != nil {
		r.logger.Error("batch upsert failed",
			"namespace", namespace,
			"batch_size", len(records),
			"error", err,
		)
		if r.m != nil {
			r.m.ReindexBatchesTotal.WithLabelValues("upsert_error").Inc()
		}
		return false
	}

	if r.m != nil {
		r.m.ReindexBatchesTotal.WithLabelValues("ok").Inc()
		r.m.ReindexChunksTotal.Add(float64(len(records)))
	}
	return true
}
