// Package main implements the enrichment worker: one process subscribing
// to all five fan-out queues (translation, description, allergen,
// ingredient, search_image) as queue-group consumers, so N worker
// instances load-balance the same job stream. Structure mirrors
// cmd/api/main.go's config/signal/connection-lifecycle shape; the teacher
// has no direct equivalent since it's an HTTP-only API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/menusense/pipeline/engine/pipeline/events"
	"github.com/menusense/pipeline/engine/pipeline/lock"
	"github.com/menusense/pipeline/engine/pipeline/provider"
	"github.com/menusense/pipeline/engine/pipeline/queue"
	"github.com/menusense/pipeline/engine/pipeline/store"
	"github.com/menusense/pipeline/engine/pipeline/tasks"
	"github.com/menusense/pipeline/pkg/resilience"

	"github.com/nats-io/nats.go/jetstream"
)

// Config holds all environment-based configuration.
type Config struct {
	MLWorkerURL string
	NatsURL     string
	Neo4jURL    string
	Neo4jUser   string
	Neo4jPass   string
	LockBucket  string
}

func loadConfig() Config {
	return Config{
		MLWorkerURL: envOr("ML_WORKER_URL", "localhost:50051"),
		NatsURL:     envOr("NATS_URL", nats.DefaultURL),
		Neo4jURL:    envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:   envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:   envOr("NEO4J_PASS", "password"),
		LockBucket:  envOr("LOCK_BUCKET", "pipeline-locks"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: cfg.LockBucket})
	if err != nil {
		return fmt.Errorf("lock bucket: %w", err)
	}

	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)

	mlConn, err := grpc.NewClient(cfg.MLWorkerURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial ml-worker: %w", err)
	}
	defer mlConn.Close()

	items := store.NewItemStore(neo4jDriver)
	publisher := events.NewPublisher(nc, nil)

	deps := tasks.Deps{
		Items:     items,
		Lock:      lock.New(kv),
		Publisher: publisher,
		Breaker:   resilience.NewBreaker(resilience.DefaultBreakerOpts),
		Limiter:   resilience.NewLimiter(resilience.LimiterOpts{Rate: 5, Burst: 10}),
	}

	translator := &provider.GRPCTranslator{Conn: mlConn}
	describer := &provider.GRPCDescriber{Conn: mlConn}
	allergenExtractor := &provider.GRPCAllergenExtractor{Conn: mlConn}
	ingredientExtractor := &provider.GRPCIngredientExtractor{Conn: mlConn}
	imageSearcher := &provider.GRPCImageSearcher{Conn: mlConn}

	subs := []*nats.Subscription{}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	register := func(taskName string, handler func(context.Context, queue.Job)) error {
		sub, err := queue.Subscribe(nc, taskName, handler)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", taskName, err)
		}
		subs = append(subs, sub)
		return nil
	}

	if err := register("translation", func(ctx context.Context, job queue.Job) {
		tasks.RunTranslation(ctx, job.SessionID, job.Items, translator, deps)
	}); err != nil {
		return err
	}
	if err := register("description", func(ctx context.Context, job queue.Job) {
		tasks.RunDescription(ctx, job.SessionID, job.Items, describer, deps)
	}); err != nil {
		return err
	}
	if err := register("allergen", func(ctx context.Context, job queue.Job) {
		tasks.RunAllergen(ctx, job.SessionID, job.Items, allergenExtractor, deps)
	}); err != nil {
		return err
	}
	if err := register("ingredient", func(ctx context.Context, job queue.Job) {
		tasks.RunIngredient(ctx, job.SessionID, job.Items, ingredientExtractor, deps)
	}); err != nil {
		return err
	}
	if err := register("search_image", func(ctx context.Context, job queue.Job) {
		tasks.RunSearchImage(ctx, job.SessionID, job.Items, imageSearcher, deps)
	}); err != nil {
		return err
	}

	logger.Info("worker started", "queues", len(subs))

	<-ctx.Done()
	logger.Info("shutdown signal received")
	time.Sleep(500 * time.Millisecond) // let in-flight handlers finish draining

	return nil
}
