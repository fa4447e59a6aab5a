// Command aggregator starts the tenant corpus-statistics service.
//
// It accepts chunk add/remove mutation events over HTTP (and optionally from
// Kafka), maintains per-tenant aggregates (chunk count, total term length,
// average document length), acknowledges callers in debounced batches, and
// triggers asynchronous BM25 reindexing of each tenant's vectors after every
// flush.
//
// Usage:
//
//	go run ./cmd/aggregator [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/corpus"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/stats"
	statshandler "github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/stats/handler"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/stats/snapshot"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/vectorindex"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/config"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/health"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/kafka"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/logger"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/metrics"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/middleware"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/postgres"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting aggregator service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	m := metrics.New()
	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	corpusStore := corpus.NewStore(db)
	snapStore := snapshot.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
	index := vectorindex.NewClient(cfg.VectorIndex)
	reindexer := stats.NewReindexer(corpusStore, index, cfg.VectorIndex.NamespacePrefix, cfg.Aggregator, m)

	opts := []stats.Option{
		stats.WithReindexer(reindexer),
		stats.WithMetrics(m),
	}
	var flushProducer *kafka.Producer
	if cfg.Kafka.Enabled {
		flushProducer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.StatsFlushes)
		defer flushProducer.Close()
		opts = append(opts, stats.WithFlushPublisher(flushProducer))
	}
	svc := stats.NewService(cfg.Aggregator, corpusStore, snapStore, opts...)

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CorpusMutations, stats.HandleMutation(svc))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("mutation consumer error", "error", err)
			}
		}()
		slog.Info("mutation consumer started", "topic", cfg.Kafka.Topics.CorpusMutations)
	}

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if err := rdb.Ping(ctx); err != nil {
			// Snapshots degrade gracefully; the service still works.
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := statshandler.New(svc)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /tenant-stats/update", h.Update)
	mux.HandleFunc("GET /tenant-stats/{tenant}", h.Get)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Aggregator.IdleTimeout + 15*time.Second)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("aggregator service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// Give in-flight reindex jobs until the shutdown deadline to finish.
	done := make(chan struct{})
	go func() {
		reindexer.Drain()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.Server.ShutdownTimeout):
		slog.Warn("shutdown timeout reached with reindex jobs still running")
	}

	slog.Info("aggregator service stopped")
}
