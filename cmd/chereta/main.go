package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chereta-io/chereta/internal/auth"
	"github.com/chereta-io/chereta/internal/config"
	"github.com/chereta-io/chereta/internal/model"
	"github.com/chereta-io/chereta/internal/ratelimit"
	"github.com/chereta-io/chereta/internal/search"
	"github.com/chereta-io/chereta/internal/server"
	"github.com/chereta-io/chereta/internal/service/embedding"
	"github.com/chereta-io/chereta/internal/service/feedback"
	"github.com/chereta-io/chereta/internal/service/matcher"
	"github.com/chereta-io/chereta/internal/service/profile"
	"github.com/chereta-io/chereta/internal/service/rules"
	"github.com/chereta-io/chereta/internal/storage"
	"github.com/chereta-io/chereta/internal/telemetry"
	"github.com/chereta-io/chereta/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

// reembedLeaseTTL bounds how long a crashed replica can hold a profile's
// refresh lease.
const reembedLeaseTTL = 2 * time.Minute

const (
	backfillBatchSize = 200
	reembedBatchSize  = 50
)

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("CHERETA_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("chereta starting", "version", version, "port", cfg.Port)

	// Operator overrides for the default scoring shares. Unknown dimension
	// keys are rejected at startup rather than silently ignored.
	for dim, w := range cfg.DefaultScoringWeights {
		if _, ok := rules.DefaultShares[dim]; !ok {
			return fmt.Errorf("config: DEFAULT_SCORING_WEIGHTS has unknown dimension %q", dim)
		}
		rules.DefaultShares[dim] = w
	}

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	// Run migrations. RunMigrations tracks applied files in
	// schema_migrations and skips duplicates, so errors here indicate real
	// failures (not "already exists").
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		slog.Warn("migrations failed", "error", err)
	}

	// The schema pins the vector columns to one dimension; a provider
	// configured for another would fail on the first embedding insert.
	if dim, err := db.EmbeddingColumnDimension(ctx); err != nil {
		slog.Warn("embedding dimension check failed", "error", err)
	} else if dim != cfg.EmbeddingDimension {
		return fmt.Errorf("config: EMBEDDING_DIMENSION=%d does not match the schema's vector(%d) columns",
			cfg.EmbeddingDimension, dim)
	}

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Create embedding provider, with the Postgres-backed cache in front.
	embedder := embedding.NewCachedProvider(newEmbeddingProvider(cfg, logger), db, cfg.EmbeddingModelID, logger)

	// Initialize the Qdrant index and outbox worker (optional; disabled
	// when VECTOR_STORE_URL is empty, leaving pgvector KNN as the only
	// vector path).
	var searcher search.Searcher
	if cfg.VectorStoreURL != "" {
		qdrantIndex, err := search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.VectorStoreURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimension), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		defer func() { _ = qdrantIndex.Close() }()

		if err := qdrantIndex.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("qdrant ensure collection: %w", err)
		}

		searcher = qdrantIndex
		outbox := search.NewOutboxWorker(db, qdrantIndex, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger)
		go outbox.Run(ctx)
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled (no VECTOR_STORE_URL)")
	}

	// Core services.
	matcherSvc := matcher.New(db, searcher, logger)
	profileSvc := profile.New(db, logger)

	learner := feedback.NewLearner(db, cfg.LearnQueueSize, logger)
	learner.Start(ctx)

	feedbackSvc := feedback.New(db, learner, cfg.InteractionDedupWindow, logger)

	reembedder := feedback.NewReembedder(db, embedder, reembedLeaseTTL, cfg.ReembedMinInterval, cfg.ReembedInteractions, logger)
	go reembedder.RunImplicit(ctx, cfg.BackfillInterval, reembedBatchSize)

	// Embed tenders stored without a vector (e.g. ingested while the
	// provider was down). Runs once at startup and then on a timer,
	// alongside the expired-tender sweep. Non-fatal.
	backfillTenderEmbeddings(ctx, db, embedder, logger)
	go maintenanceLoop(ctx, db, embedder, logger, cfg.BackfillInterval)

	// Create rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	// Create and start HTTP server.
	srv := server.New(server.Config{
		DB:                  db,
		JWTMgr:              jwtMgr,
		MatcherSvc:          matcherSvc,
		FeedbackSvc:         feedbackSvc,
		ProfileSvc:          profileSvc,
		Reembedder:          reembedder,
		Limiter:             limiter,
		Searcher:            searcher,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown. Each phase gets its own timeout so early completion
	// doesn't steal budget from later phases. Order: (1) stop accepting new
	// HTTP requests and drain in-flight ones (they may still enqueue learn
	// tasks), (2) drain the learning queue to Postgres.
	slog.Info("chereta shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	httpCancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	learner.Drain(drainCtx)
	drainCancel()

	slog.Info("chereta stopped")
	return nil
}

// newEmbeddingProvider creates an embedding provider based on configuration.
// Provider selection: "ollama", "openai", "noop", or "auto" (default).
// Auto mode tries Ollama if reachable, then OpenAI if key present, else noop.
// Ollama is preferred: embeddings stay on-premises with no external API costs.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimension

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when CHERETA_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModelID, "dimensions", dims)
		return embedding.NewOpenAIProvider(cfg.EmbeddingEndpoint, cfg.OpenAIAPIKey, cfg.EmbeddingModelID, dims)

	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)

	case "noop":
		logger.Info("embedding provider: noop (semantic matching disabled)")
		return embedding.NewNoopProvider(dims)

	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModelID, "dimensions", dims)
			return embedding.NewOpenAIProvider(cfg.EmbeddingEndpoint, cfg.OpenAIAPIKey, cfg.EmbeddingModelID, dims)
		}
		logger.Warn("no embedding provider available, using noop (semantic matching disabled)")
		return embedding.NewNoopProvider(dims)
	}
}

// ollamaReachable checks if an Ollama server is responding.
func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// maintenanceLoop periodically embeds backlogged tenders and closes out
// tenders whose deadline has passed.
func maintenanceLoop(ctx context.Context, db *storage.DB, provider embedding.Provider, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			backfillTenderEmbeddings(ctx, db, provider, logger)

			if n, err := db.SweepExpiredTenders(ctx, time.Now().UTC()); err != nil {
				logger.Warn("expired tender sweep failed", "error", err)
			} else if n > 0 {
				logger.Info("expired tenders closed", "count", n)
			}
		}
	}
}

// backfillTenderEmbeddings embeds up to one batch of tenders that have no
// vector yet. Partial batch failures keep the successful vectors; a provider
// outage leaves the backlog for the next sweep.
func backfillTenderEmbeddings(ctx context.Context, db *storage.DB, provider embedding.Provider, logger *slog.Logger) {
	tenders, err := db.ListUnembeddedTenders(ctx, backfillBatchSize)
	if err != nil {
		logger.Warn("embedding backfill: list failed", "error", err)
		return
	}
	if len(tenders) == 0 {
		return
	}

	var texts []string
	var embeddable []model.Tender
	for _, t := range tenders {
		text := embedding.TenderText(t)
		if text == "" {
			logger.Warn("embedding backfill: tender has no embeddable text", "tender_id", t.ID)
			continue
		}
		texts = append(texts, text)
		embeddable = append(embeddable, t)
	}
	if len(embeddable) == 0 {
		return
	}

	vecs, err := provider.EmbedBatch(ctx, texts)
	var batchErr *embedding.BatchError
	switch {
	case err == nil:
	case errors.As(err, &batchErr):
		// Per-index failures; indices with a nil entry still succeeded.
	default:
		logger.Warn("embedding backfill: batch failed", "error", err)
		return
	}

	embedded := 0
	for i, t := range embeddable {
		if batchErr != nil && batchErr.Errs[i] != nil {
			continue
		}
		if err := db.SetTenderEmbedding(ctx, t.ID, vecs[i]); err != nil {
			logger.Warn("embedding backfill: store failed", "tender_id", t.ID, "error", err)
			continue
		}
		embedded++
	}
	if embedded > 0 {
		logger.Info("embedding backfill complete", "count", embedded, "backlog", len(embeddable)-embedded)
	}
}
