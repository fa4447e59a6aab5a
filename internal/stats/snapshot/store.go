// Package snapshot persists the last flushed aggregate for each tenant so the
// aggregator can restart without a full corpus scan.
package snapshot

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no snapshot exists for a tenant.
var ErrNotFound = errors.New("snapshot not found")

// Record is the persisted layout: exactly the three aggregate values, one
// record per tenant.
type Record struct {
	TotalChunkCount int64   `json:"total_chunk_count"`
	TotalTermLength int64   `json:"total_term_length"`
	AvgDocLength    float64 `json:"average_document_length"`
}

// Store saves and loads per-tenant aggregate snapshots. Save is called on
// every flush and must be cheap; a failed Save is logged by the caller, never
// retried inline.
type Store interface {
	Save(ctx context.Context, tenantID string, rec Record) error
	Load(ctx context.Context, tenantID string) (Record, error)
}
