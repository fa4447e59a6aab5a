// Package corpus reads per-tenant chunk data from the durable corpus store
// (PostgreSQL). The aggregator treats this store as the source of truth for
// bootstrap reads and full reindex scans; it never writes to it.
package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	apperrors "github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/errors"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/postgres"
	"golang.org/x/sync/singleflight"
)

// Chunk is one indexed unit of text belonging to a tenant's corpus.
type Chunk struct {
	ChunkID         string
	SourceID        string
	TermFrequencies map[string]int
	TermLength      int
}

// Totals is the aggregate a fresh scan of a tenant's corpus would produce.
type Totals struct {
	ChunkCount int64
	TermLength int64
}

// Reader is the read contract the aggregator consumes. Implementations must
// exclude archived chunks.
type Reader interface {
	Totals(ctx context.Context, tenantID string) (Totals, error)
	Chunks(ctx context.Context, tenantID string) ([]Chunk, error)
}

// Store reads tenant corpus data from PostgreSQL.
//
// It expects a `corpus_chunks` table:
//
//	CREATE TABLE corpus_chunks (
//	    tenant_id        TEXT NOT NULL,
//	    source_id        TEXT NOT NULL,
//	    chunk_id         TEXT NOT NULL,
//	    term_frequencies JSONB NOT NULL,
//	    term_length      INT NOT NULL,
//	    archived         BOOLEAN NOT NULL DEFAULT FALSE,
//	    PRIMARY KEY (tenant_id, chunk_id)
//	);
type Store struct {
	db     *postgres.Client
	group  singleflight.Group
	logger *slog.Logger
}

// NewStore creates a corpus reader backed by the given PostgreSQL client.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "corpus-store"),
	}
}

// Totals returns the chunk count and summed term length for a tenant.
// Concurrent calls for the same tenant are collapsed into one query; cold
// starts tend to arrive in bursts when a tenant uploads a document.
func (s *Store) Totals(ctx context.Context, tenantID string) (Totals, error) {
	v, err, shared := s.group.Do("totals:"+tenantID, func() (interface{}, error) {
		var t Totals
		err := s.db.DB.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(term_length), 0)
			   FROM corpus_chunks
			  WHERE tenant_id = $1 AND NOT archived`,
			tenantID,
		).Scan(&t.ChunkCount, &t.TermLength)
		if err != nil {
			return Totals{}, apperrors.Newf(apperrors.ErrStoreUnavailable, 503, "querying corpus totals: %v", err)
		}
		return t, nil
	})
	if err != nil {
		return Totals{}, err
	}
	if shared {
		s.logger.Debug("totals query shared", "tenant_id", tenantID)
	}
	return v.(Totals), nil
}

// Chunks returns every non-archived chunk for a tenant.
func (s *Store) Chunks(ctx context.Context, tenantID string) ([]Chunk, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT chunk_id, source_id, term_frequencies, term_length
		   FROM corpus_chunks
		  WHERE tenant_id = $1 AND NOT archived`,
		tenantID,
	)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrStoreUnavailable, 503, "querying corpus chunks: %v", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			c     Chunk
			freqs []byte
		)
		if err := rows.Scan(&c.ChunkID, &c.SourceID, &freqs, &c.TermLength); err != nil {
			return nil, fmt.Errorf("scanning corpus chunk: %w", err)
		}
		if err := json.Unmarshal(freqs, &c.TermFrequencies); err != nil {
			s.logger.Warn("skipping chunk with corrupt term frequencies",
				"tenant_id", tenantID,
				"chunk_id", c.ChunkID,
				"error", err,
			)
			continue
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating corpus chunks: %w", err)
	}
	return chunks, nil
}
