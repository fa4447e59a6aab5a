package stats

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/corpus"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/stats/snapshot"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/config"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/kafka"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/metrics"
)

// Launcher starts an asynchronous reindex job for a tenant using the just
// flushed average document length. Implementations must be fire-and-forget.
type Launcher interface {
	Launch(tenantID string, avgDocLength float64)
}

// FlushPublisher publishes flush events; satisfied by *kafka.Producer.
type FlushPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// completion is one caller waiting for the next flush. The channel is
// buffered so the worker never blocks on a caller that gave up.
type completion struct {
	ch         chan Snapshot
	enqueuedAt time.Time
}

// tenantState is the unit of locking: every field below mu is read and
// written only while holding it.
type tenantState struct {
	mu sync.Mutex

	id           string
	chunkCount   int64
	termLength   int64
	lastActivity time.Time
	pending      []*completion
	workerActive bool
	bootstrapped bool

	// wake is poked (buffered, capacity 1) whenever a completion is
	// enqueued so the worker can evaluate the batch trigger without
	// waiting out its poll interval.
	wake chan struct{}
}

// snapshotLocked derives the caller-visible aggregate. mu must be held.
func (t *tenantState) snapshotLocked() Snapshot {
	snap := Snapshot{
		TenantID:        t.id,
		TotalChunkCount: t.chunkCount,
		TotalTermLength: t.termLength,
		AvgDocLength:    NeutralAvgDocLength,
	}
	if t.chunkCount > 0 {
		snap.AvgDocLength = float64(t.termLength) / float64(t.chunkCount)
	}
	return snap
}

// Service owns the tenant state table and implements the synchronous request
// path: apply a mutation, wait for the batch worker to flush, return the
// flushed aggregate.
type Service struct {
	cfg     config.AggregatorConfig
	corpus  corpus.Reader
	snaps   snapshot.Store
	reindex Launcher       // nil disables reindexing
	flushes FlushPublisher // nil disables flush events
	m       *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	tenants map[string]*tenantState
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithReindexer wires the reindex job launcher invoked after each flush.
func WithReindexer(l Launcher) Option {
	return func(s *Service) { s.reindex = l }
}

// WithFlushPublisher wires a Kafka producer for flush events.
func WithFlushPublisher(p FlushPublisher) Option {
	return func(s *Service) { s.flushes = p }
}

// WithMetrics wires Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.m = m }
}

// NewService creates the aggregator core.
func NewService(cfg config.AggregatorConfig, corpusReader corpus.Reader, snaps snapshot.Store, opts ...Option) *Service {
	s := &Service{
		cfg:     cfg,
		corpus:  corpusReader,
		snaps:   snaps,
		logger:  slog.Default().With("component", "stats-service"),
		tenants: make(map[string]*tenantState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// tenant returns the state record for a tenant, creating it on first sight.
// The table lock is held only for the map access, never across I/O.
func (s *Service) tenant(tenantID string) *tenantState {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		t = &tenantState{
			id:   tenantID,
			wake: make(chan struct{}, 1),
		}
		s.tenants[tenantID] = t
	}
	return t
}

// Apply applies one mutation event and blocks until the batch worker flushes
// it, returning the flushed aggregate. On bootstrap failure it returns a
// neutral snapshot together with ErrBootstrapDegraded; callers must treat
// that as a degraded statistic, not a hard error.
func (s *Service) Apply(ctx context.Context, ev MutationEvent) (Snapshot, error) {
	if err := ev.Validate(); err != nil {
		return Snapshot{}, err
	}

	t := s.tenant(ev.TenantID)

	t.mu.Lock()
	if !t.bootstrapped {
		if err := s.bootstrapLocked(ctx, t, ev); err != nil {
			t.mu.Unlock()
			s.logger.Warn("bootstrap failed, returning neutral snapshot",
				"tenant_id", ev.TenantID,
				"error", err,
			)
			if s.m != nil {
				s.m.BootstrapsTotal.WithLabelValues("degraded").Inc()
			}
			return NeutralSnapshot(ev.TenantID), ErrBootstrapDegraded
		}
	}

	s.applyLocked(t, ev)

	c := &completion{ch: make(chan Snapshot, 1), enqueuedAt: time.Now()}
	t.pending = append(t.pending, c)

	if !t.workerActive {
		t.workerActive = true
		go s.runWorker(t)
	}
	select {
	case t.wake <- struct{}{}:
	default:
	}
	t.mu.Unlock()

	if s.m != nil {
		s.m.MutationsTotal.WithLabelValues(string(ev.Operation)).Inc()
		s.m.PendingCompletions.Inc()
	}

	select {
	case snap := <-c.ch:
		if s.m != nil {
			s.m.FlushWaitSeconds.Observe(time.Since(c.enqueuedAt).Seconds())
		}
		return snap, nil
	case <-ctx.Done():
		// The event is already applied and will be flushed; only this
		// caller stops waiting for the acknowledgement.
		return Snapshot{}, ctx.Err()
	}
}

// bootstrapLocked initialises tenant state on first sight. It prefers the
// snapshot store; if no snapshot exists it falls back to a corpus scan and
// reconciles for the fact that the corpus store already reflects ev (the
// caller writes the store before calling this service).
func (s *Service) bootstrapLocked(ctx context.Context, t *tenantState, ev MutationEvent) error {
	if s.snaps != nil {
		rec, err := s.snaps.Load(ctx, t.id)
		if err == nil {
			t.chunkCount = rec.TotalChunkCount
			t.termLength = rec.TotalTermLength
			t.bootstrapped = true
			if s.m != nil {
				s.m.BootstrapsTotal.WithLabelValues("snapshot").Inc()
			}
			s.logger.Info("tenant bootstrapped from snapshot",
				"tenant_id", t.id,
				"chunk_count", t.chunkCount,
			)
			return nil
		}
		if !errors.Is(err, snapshot.ErrNotFound) {
			s.logger.Warn("snapshot load failed, falling back to corpus scan",
				"tenant_id", t.id,
				"error", err,
			)
		}
	}

	totals, err := s.corpus.Totals(ctx, t.id)
	if err != nil {
		return err
	}

	// Recover the pre-event baseline so that applying ev below lands on
	// the same totals the store already holds.
	switch ev.Operation {
	case OpAdd:
		totals.ChunkCount -= ev.ChunkDeltaCount
		totals.TermLength -= ev.TermLengthDelta
	case OpDelete:
		totals.ChunkCount += ev.ChunkDeltaCount
		totals.TermLength += ev.TermLengthDelta
	}
	if totals.ChunkCount < 0 {
		totals.ChunkCount = 0
	}
	if totals.TermLength < 0 {
		totals.TermLength = 0
	}

	t.chunkCount = totals.ChunkCount
	t.termLength = totals.TermLength
	t.bootstrapped = true
	if s.m != nil {
		s.m.BootstrapsTotal.WithLabelValues("corpus").Inc()
	}
	s.logger.Info("tenant bootstrapped from corpus store",
		"tenant_id", t.id,
		"chunk_count", t.chunkCount,
		"term_length", t.termLength,
	)
	return nil
}

// applyLocked folds one event into the tenant's counters with clamp-at-zero.
func (s *Service) applyLocked(t *tenantState, ev MutationEvent) {
	switch ev.Operation {
	case OpAdd:
		t.chunkCount += ev.ChunkDeltaCount
		t.termLength += ev.TermLengthDelta
	case OpDelete:
		t.chunkCount -= ev.ChunkDeltaCount
		t.termLength -= ev.TermLengthDelta
	}
	if t.chunkCount < 0 || t.termLength < 0 {
		s.logger.Warn("counters clamped to zero",
			"tenant_id", t.id,
			"chunk_count", t.chunkCount,
			"term_length", t.termLength,
			"source_id", ev.SourceID,
		)
		if t.chunkCount < 0 {
			t.chunkCount = 0
		}
		if t.termLength < 0 {
			t.termLength = 0
		}
	}
	t.lastActivity = time.Now()
}

// Peek returns the current in-memory aggregate for a tenant without applying
// a mutation or waiting for a flush. The second result is false for tenants
// this process has never seen.
func (s *Service) Peek(tenantID string) (Snapshot, bool) {
	s.mu.Lock()
	t, ok := s.tenants[tenantID]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.bootstrapped {
		return Snapshot{}, false
	}
	return t.snapshotLocked(), true
}
