package stats

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/kafka"
)

// HandleMutation adapts the service to the Kafka consumer: the ingestion
// pipeline publishes the same mutation events it sends over HTTP, keyed by
// tenant so per-tenant ordering is preserved within a partition. The flushed
// snapshot is discarded; nobody is waiting on the other end of a topic.
//
// Malformed messages are logged and skipped rather than returned as errors,
// so a poison message never wedges the partition.
func HandleMutation(svc *Service) kafka.MessageHandler {
	logger := slog.Default().With("component", "mutation-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[MutationEvent](value)
		if err != nil {
			logger.Error("skipping undecodable mutation event",
				"key", string(key),
				"error", err,
			)
			return nil
		}
		if _, err := svc.Apply(ctx, ev); err != nil {
			if errors.Is(err, ErrBootstrapDegraded) {
				logger.Warn("mutation applied with degraded bootstrap",
					"tenant_id", ev.TenantID,
				)
				return nil
			}
			logger.Error("mutation event rejected",
				"tenant_id", ev.TenantID,
				"error", err,
			)
		}
		return nil
	}
}
