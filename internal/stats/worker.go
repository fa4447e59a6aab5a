package stats

import (
	"context"
	"time"

	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/stats/snapshot"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/kafka"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/resilience"
)

const snapshotSaveTimeout = 5 * time.Second

// runWorker is the per-tenant batch worker. Exactly one runs per tenant at a
// time; it exits on the idle trigger and the next Apply spawns a fresh one.
//
// Two triggers are evaluated under the tenant lock:
//   - batch: at least BatchSize completions are pending. Exactly BatchSize
//     are resolved (FIFO) and the worker stays alive for the remainder.
//   - idle: no mutation for longer than IdleTimeout. Every pending
//     completion is resolved and the worker terminates.
//
// When both hold at once the idle path wins, since draining everything is a
// superset of the batch flush.
func (s *Service) runWorker(t *tenantState) {
	logger := s.logger.With("tenant_id", t.id)
	logger.Debug("batch worker started")
	if s.m != nil {
		s.m.ActiveWorkers.Inc()
		defer s.m.ActiveWorkers.Dec()
	}

	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-t.wake:
		case <-timer.C:
		}

		t.mu.Lock()
		idle := time.Since(t.lastActivity) > s.cfg.IdleTimeout
		full := len(t.pending) >= s.cfg.BatchSize

		switch {
		case idle:
			done := t.pending
			t.pending = nil
			snap := t.snapshotLocked()
			t.workerActive = false
			t.mu.Unlock()

			s.flush(snap, done, "idle")
			logger.Debug("batch worker terminated", "drained", len(done))
			return

		case full:
			done := t.pending[:s.cfg.BatchSize:s.cfg.BatchSize]
			t.pending = t.pending[s.cfg.BatchSize:]
			snap := t.snapshotLocked()
			t.mu.Unlock()

			s.flush(snap, done, "batch")

		default:
			t.mu.Unlock()
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.cfg.PollInterval)
	}
}

// flush resolves the dequeued completions with the given snapshot, persists
// it, and hands the tenant to the reindexer. Persistence failures are logged
// and never fail the flush; the next one overwrites with fresher values.
func (s *Service) flush(snap Snapshot, done []*completion, trigger string) {
	for _, c := range done {
		c.ch <- snap
	}
	if s.m != nil {
		s.m.FlushesTotal.WithLabelValues(trigger).Inc()
		s.m.PendingCompletions.Sub(float64(len(done)))
	}

	if s.snaps != nil {
		err := resilience.WithTimeout(context.Background(), snapshotSaveTimeout, "snapshot-save", func(ctx context.Context) error {
			return s.snaps.Save(ctx, snap.TenantID, snapshot.Record{
				TotalChunkCount: snap.TotalChunkCount,
				TotalTermLength: snap.TotalTermLength,
				AvgDocLength:    snap.AvgDocLength,
			})
		})
		if err != nil {
			s.logger.Error("snapshot save failed",
				"tenant_id", snap.TenantID,
				"error", err,
			)
			if s.m != nil {
				s.m.SnapshotSavesTotal.WithLabelValues("error").Inc()
			}
		} else if s.m != nil {
			s.m.SnapshotSavesTotal.WithLabelValues("ok").Inc()
		}
	}

	if s.reindex != nil {
		s.reindex.Launch(snap.TenantID, snap.AvgDocLength)
	}

	if s.flushes != nil {
		event := FlushEvent{
			TenantID:        snap.TenantID,
			TotalChunkCount: snap.TotalChunkCount,
			TotalTermLength: snap.TotalTermLength,
			AvgDocLength:    snap.AvgDocLength,
			Trigger:         trigger,
			Resolved:        len(done),
			Timestamp:       time.Now().UTC(),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), snapshotSaveTimeout)
			defer cancel()
			if err := s.flushes.Publish(ctx, kafka.Event{Key: snap.TenantID, Value: event}); err != nil {
				s.logger.Error("flush event publish failed",
					"tenant_id", snap.TenantID,
					"error", err,
				)
			}
		}()
	}

	s.logger.Info("batch flushed",
		"tenant_id", snap.TenantID,
		"trigger", trigger,
		"resolved", len(done),
		"chunk_count", snap.TotalChunkCount,
		"avg_doc_length", snap.AvgDocLength,
	)
}
