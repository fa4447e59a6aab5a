// Package stats maintains the per-tenant corpus statistics that back BM25
// scoring: chunk count, total term length, and the derived average document
// length. Mutation events are applied to in-memory tenant state immediately
// and acknowledged in batches by a per-tenant worker, which also persists a
// snapshot and triggers a full reindex of the tenant's term-weight vectors.
package stats

import (
	"errors"
	"time"

	apperrors "github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/errors"
)

// NeutralAvgDocLength is the average document length reported when a tenant
// has no chunks or its state could not be bootstrapped. It keeps the BM25
// length normalisation defined without special-casing division by zero.
const NeutralAvgDocLength = 1

// ErrBootstrapDegraded is returned by Apply when the tenant's state could not
// be bootstrapped from either the snapshot store or the corpus store. The
// accompanying snapshot carries neutral values; callers treat this as a
// degraded statistic, not a failure.
var ErrBootstrapDegraded = errors.New("tenant bootstrap degraded")

// Operation tells whether a mutation adds chunks to or removes them from a
// tenant's corpus.
type Operation string

const (
	OpAdd    Operation = "ADD"
	OpDelete Operation = "DELETE"
)

// MutationEvent is one corpus change for a tenant. Both deltas are
// non-negative magnitudes; Operation determines the sign.
type MutationEvent struct {
	TenantID        string    `json:"tenant_id"`
	SourceID        string    `json:"source_id"`
	ChunkDeltaCount int64     `json:"chunk_delta_count"`
	TermLengthDelta int64     `json:"term_length_delta"`
	Operation       Operation `json:"operation"`
}

// Validate checks the event shape. The caller already wrote the change to the
// corpus store, so a malformed event here is a caller bug, not a race.
func (e MutationEvent) Validate() error {
	if e.TenantID == "" {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400, "tenant_id is required")
	}
	if e.ChunkDeltaCount < 0 || e.TermLengthDelta < 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400, "deltas must be non-negative")
	}
	if e.Operation != OpAdd && e.Operation != OpDelete {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400, "operation must be ADD or DELETE, got %q", e.Operation)
	}
	return nil
}

// Snapshot is the aggregate returned to callers once their event's batch has
// been flushed.
type Snapshot struct {
	TenantID        string  `json:"tenant_id"`
	TotalChunkCount int64   `json:"total_chunk_count"`
	TotalTermLength int64   `json:"total_term_length"`
	AvgDocLength    float64 `json:"average_document_length"`
}

// NeutralSnapshot is what a caller receives when bootstrap fails.
func NeutralSnapshot(tenantID string) Snapshot {
	return Snapshot{TenantID: tenantID, AvgDocLength: NeutralAvgDocLength}
}

// FlushEvent is published to Kafka after each flush so downstream analytics
// can observe aggregate movement without polling.
type FlushEvent struct {
	TenantID        string    `json:"tenant_id"`
	TotalChunkCount int64     `json:"total_chunk_count"`
	TotalTermLength int64     `json:"total_term_length"`
	AvgDocLength    float64   `json:"average_document_length"`
	Trigger         string    `json:"trigger"`
	Resolved        int       `json:"resolved"`
	Timestamp       time.Time `json:"timestamp"`
}
