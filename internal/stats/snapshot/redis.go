package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/redis"
)

// RedisStore keeps one JSON value per tenant under
// "<prefix>:snapshot:<tenant>". Snapshots have no TTL; each flush overwrites
// the previous value.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore creates a snapshot store on top of the shared Redis client.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: keyPrefix,
		logger: slog.Default().With("component", "snapshot-store"),
	}
}

func (s *RedisStore) key(tenantID string) string {
	return fmt.Sprintf("%s:snapshot:%s", s.prefix, tenantID)
}

// Save persists the snapshot for a tenant, overwriting any previous value.
func (s *RedisStore) Save(ctx context.Context, tenantID string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(tenantID), data, 0); err != nil {
		return fmt.Errorf("saving snapshot for %s: %w", tenantID, err)
	}
	s.logger.Debug("snapshot saved",
		"tenant_id", tenantID,
		"chunk_count", rec.TotalChunkCount,
		"term_length", rec.TotalTermLength,
	)
	return nil
}

// Load returns the stored snapshot for a tenant, or ErrNotFound.
func (s *RedisStore) Load(ctx context.Context, tenantID string) (Record, error) {
	data, err := s.client.GetBytes(ctx, s.key(tenantID))
	if redis.IsNilError(err) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("loading snapshot for %s: %w", tenantID, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshaling snapshot for %s: %w", tenantID, err)
	}
	return rec, nil
}

// Delete removes a tenant's snapshot. Used when a tenant's corpus is wiped.
func (s *RedisStore) Delete(ctx context.Context, tenantID string) error {
	return s.client.Del(ctx, s.key(tenantID))
}
