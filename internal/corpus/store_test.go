package corpus

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/config"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/postgres"
)

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "docintel_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "docintel"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func seedChunks(t *testing.T, db *postgres.Client) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS corpus_chunks (
			tenant_id        TEXT NOT NULL,
			source_id        TEXT NOT NULL,
			chunk_id         TEXT NOT NULL,
			term_frequencies JSONB NOT NULL,
			term_length      INT NOT NULL,
			archived         BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (tenant_id, chunk_id)
		)`,
		`DELETE FROM corpus_chunks WHERE tenant_id = 'it-tenant'`,
		`INSERT INTO corpus_chunks VALUES
			('it-tenant', 's1', 'c1', '{"alpha":2,"beta":1}', 120, FALSE),
			('it-tenant', 's1', 'c2', '{"gamma":4}', 80, FALSE),
			('it-tenant', 's2', 'c3', '{"delta":1}', 300, TRUE)`,
	}
	for _, stmt := range stmts {
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seeding corpus: %v", err)
		}
	}
}

func TestTotalsExcludeArchived(t *testing.T) {
	db := skipIfNoPostgres(t)
	seedChunks(t, db)
	store := NewStore(db)

	totals, err := store.Totals(context.Background(), "it-tenant")
	if err != nil {
		t.Fatalf("totals failed: %v", err)
	}
	if totals.ChunkCount != 2 || totals.TermLength != 200 {
		t.Errorf("expected (2,200) excluding archived, got (%d,%d)",
			totals.ChunkCount, totals.TermLength)
	}
}

func TestChunksRoundTrip(t *testing.T) {
	db := skipIfNoPostgres(t)
	seedChunks(t, db)
	store := NewStore(db)

	chunks, err := store.Chunks(context.Background(), "it-tenant")
	if err != nil {
		t.Fatalf("chunks failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 non-archived chunks, got %d", len(chunks))
	}
	byID := make(map[string]Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}
	c1, ok := byID["c1"]
	if !ok {
		t.Fatal("c1 missing")
	}
	if c1.TermFrequencies["alpha"] != 2 || c1.TermLength != 120 {
		t.Errorf("unexpected c1: %+v", c1)
	}
}

func TestTotalsUnknownTenantIsZero(t *testing.T) {
	db := skipIfNoPostgres(t)
	store := NewStore(db)

	totals, err := store.Totals(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("totals failed: %v", err)
	}
	if totals.ChunkCount != 0 || totals.TermLength != 0 {
		t.Errorf("expected zero totals, got %+v", totals)
	}
}
