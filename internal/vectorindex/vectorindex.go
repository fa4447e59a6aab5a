// Package vectorindex talks to the external vector index service that stores
// per-chunk sparse/dense vectors and arbitrary metadata. The aggregator only
// uses two operations: fetch-by-id and batched upsert.
package vectorindex

import "context"

// SparseVector holds paired term indices and weights.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float64 `json:"values"`
}

// Record is one vector-index entry. Metadata is owned by other components
// (document titles, ACL tags, page numbers); the reindex path must carry it
// through untouched.
type Record struct {
	ID       string         `json:"id"`
	Sparse   *SparseVector  `json:"sparse_values,omitempty"`
	Dense    []float64      `json:"values,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Index is the consumed contract of the vector index service.
type Index interface {
	// Fetch returns the records for the given ids within a namespace. Ids
	// missing from the index are absent from the result, not an error.
	Fetch(ctx context.Context, ids []string, namespace string) (map[string]Record, error)

	// Upsert writes the given records into a namespace, replacing any
	// existing records with the same ids.
	Upsert(ctx context.Context, records []Record, namespace string) error
}
