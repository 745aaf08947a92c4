package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/analytiqhub/docrouter/internal/accesstoken"
	"github.com/analytiqhub/docrouter/internal/auth"
	"github.com/analytiqhub/docrouter/internal/config"
	"github.com/analytiqhub/docrouter/internal/httpserver"
	"github.com/analytiqhub/docrouter/internal/identity"
	"github.com/analytiqhub/docrouter/internal/platform"
	"github.com/analytiqhub/docrouter/internal/telemetry"
	"github.com/analytiqhub/docrouter/internal/version"
	"github.com/analytiqhub/docrouter/pkg/blobstore"
	"github.com/analytiqhub/docrouter/pkg/claudelog"
	"github.com/analytiqhub/docrouter/pkg/configregistry"
	"github.com/analytiqhub/docrouter/pkg/credit"
	"github.com/analytiqhub/docrouter/pkg/document"
	"github.com/analytiqhub/docrouter/pkg/llmapi"
	"github.com/analytiqhub/docrouter/pkg/llmprovider"
	"github.com/analytiqhub/docrouter/pkg/llmresult"
	"github.com/analytiqhub/docrouter/pkg/llmworker"
	"github.com/analytiqhub/docrouter/pkg/ocrworker"
	"github.com/analytiqhub/docrouter/pkg/otlpingest"
	"github.com/analytiqhub/docrouter/pkg/queue"
	"github.com/analytiqhub/docrouter/pkg/telemetryingest"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the mode named by cfg.Mode: "api",
// "ocr-worker", or "llm-worker".
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting docrouter",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "docrouter", version.Version)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing blob store: %w", err)
	}

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, blobs)
	case "ocr-worker":
		return runOCRWorker(ctx, cfg, logger, db, rdb, blobs)
	case "llm-worker":
		return runLLMWorker(ctx, cfg, logger, db, rdb, blobs)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case "s3":
		return blobstore.NewS3Store(ctx, cfg.BlobS3Bucket)
	case "fs", "":
		return blobstore.NewFSStore(cfg.BlobFSRoot)
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", cfg.BlobBackend)
	}
}

// newProviderRegistry populates an llmprovider.Registry from whichever
// provider API keys are configured. A provider with no API key set is
// simply absent from the registry rather than registered disabled, since
// llmworker.New resolves models by name and a missing connector fails a
// run the same way an unconfigured one would.
func newProviderRegistry(cfg *config.Config) *llmprovider.Registry {
	registry := llmprovider.NewRegistry()

	if cfg.OpenAIAPIKey != "" {
		registry.Register(llmprovider.NewOpenAIProvider(llmprovider.ProviderConfig{
			BaseURL:    cfg.OpenAIBaseURL,
			APIKey:     cfg.OpenAIAPIKey,
			Models:     cfg.OpenAIModels,
			Timeout:    cfg.ProviderTimeout,
			MaxRetries: cfg.ProviderMaxRetries,
		}))
	}
	if cfg.AnthropicAPIKey != "" {
		registry.Register(llmprovider.NewAnthropicProvider(llmprovider.ProviderConfig{
			BaseURL:    cfg.AnthropicBaseURL,
			APIKey:     cfg.AnthropicAPIKey,
			Models:     cfg.AnthropicModels,
			Timeout:    cfg.ProviderTimeout,
			MaxRetries: cfg.ProviderMaxRetries,
		}))
	}
	return registry
}

func newOCRProvider(ctx context.Context, cfg *config.Config) (ocrworker.Provider, error) {
	switch cfg.OCRProvider {
	case "stub":
		return ocrworker.StubProvider{}, nil
	case "textract", "":
		return ocrworker.NewTextractProvider(ctx)
	default:
		return nil, fmt.Errorf("unknown OCR provider: %s", cfg.OCRProvider)
	}
}

// authDeps wires the identity store and access-token issuer shared by the
// HTTP server's auth middleware and the OTLP gRPC ingest server's own
// bearer-token resolution. The returned Issuer is also what NewOrgResolver
// verifies access tokens against, so the HTTP and gRPC transports trust
// exactly the same tokens.
func authDeps(cfg *config.Config, db *pgxpool.Pool) (httpserver.Deps, *accesstoken.Issuer) {
	identityStore := identity.NewStore(db)
	encryptor := accesstoken.NewEncryptor(cfg.AccessTokenAESKey)
	issuer := accesstoken.NewIssuer(identityStore, encryptor)

	var jwtIssuer *auth.JWTIssuer
	if cfg.FastAPISecret != "" {
		jwtIssuer = auth.NewJWTIssuer(cfg.FastAPISecret)
	}

	return httpserver.Deps{
		JWTIssuer:  jwtIssuer,
		Tokens:     issuer,
		Users:      identityStore,
		Membership: identityStore,
	}, issuer
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, blobs blobstore.Store) error {
	deps, tokenIssuer := authDeps(cfg, db)
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, deps)

	creditStore := credit.NewStore(db)
	tagStore := configregistry.NewTagStore(db)
	jobStore := queue.NewStore(db, rdb)
	schemaStore := configregistry.NewSchemaStore(db)
	promptStore := configregistry.NewPromptStore(db, schemaStore)
	providers := newProviderRegistry(cfg)

	docs := document.NewStore(db)
	documentHandler := document.NewHandler(logger, db, blobs, jobStore, tagStore)
	srv.OrgRouter.Mount("/documents", documentHandler.Routes())

	configHandler := configregistry.NewHandler(logger, db)
	configHandler.SetDocumentTagsResolver(func(ctx context.Context, organizationID, documentID string) ([]string, error) {
		d, err := docs.Get(ctx, organizationID, documentID)
		if err != nil {
			return nil, err
		}
		return d.TagIDs, nil
	})
	srv.OrgRouter.Mount("/", configHandler.Routes())

	llmHandler := llmapi.NewHandler(logger, db, jobStore, promptStore, providers, cfg.LLMRunTimeout)
	srv.OrgRouter.Mount("/llm", llmHandler.Routes())

	telemetryHandler := telemetryingest.NewHandler(logger, db, creditStore)
	srv.OrgRouter.Mount("/telemetry", telemetryHandler.Routes())

	creditHandler := credit.NewHandler(logger, creditStore)
	srv.OrgRouter.Mount("/payments", creditHandler.Routes())

	claudeHandler := claudelog.NewHandler(logger, db, creditStore)
	srv.OrgRouter.Mount("/claude", claudeHandler.Routes())
	srv.APIRouter.Mount("/claude", claudeHandler.AccountRoutes())

	// OTLP/gRPC transport shares the same telemetryingest stores and
	// credit ledger as the HTTP transport above, so a record billed and
	// stored through either transport is visible through both.
	resolver := otlpingest.NewOrgResolver(deps.JWTIssuer, tokenIssuer)
	otlpSrv := otlpingest.New(logger, resolver, creditStore,
		telemetryingest.NewTraceStore(db), telemetryingest.NewMetricStore(db), telemetryingest.NewLogStore(db))

	grpcServer := grpc.NewServer()
	otlpSrv.Register(grpcServer)

	grpcLis, err := net.Listen("tcp", cfg.OTLPGRPCAddr())
	if err != nil {
		return fmt.Errorf("listening on OTLP gRPC address: %w", err)
	}
	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("otlp grpc server listening", "addr", cfg.OTLPGRPCAddr())
		if err := grpcServer.Serve(grpcLis); err != nil {
			grpcErrCh <- fmt.Errorf("otlp grpc server: %w", err)
		}
		close(grpcErrCh)
	}()

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	httpErrCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- fmt.Errorf("http server: %w", err)
		}
		close(httpErrCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		grpcServer.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-httpErrCh:
		return err
	case err := <-grpcErrCh:
		return err
	}
}

func runOCRWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, blobs blobstore.Store) error {
	logger.Info("ocr worker started")

	docs := document.NewStore(db)
	jobStore := queue.NewStore(db, rdb)
	creditStore := credit.NewStore(db)

	provider, err := newOCRProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing OCR provider: %w", err)
	}

	worker := ocrworker.New(docs, blobs, jobStore, creditStore, provider, cfg.OCRSpuPerPage)
	driver := queue.NewDriver(jobStore, rdb, logger, queue.QueueOCR, cfg.QueueBatchSize,
		cfg.LeaseDuration, cfg.QueuePollInterval, cfg.MaxAttempts, worker.Handle)

	return driver.Run(ctx)
}

func runLLMWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, blobs blobstore.Store) error {
	logger.Info("llm worker started")

	docs := document.NewStore(db)
	jobStore := queue.NewStore(db, rdb)
	creditStore := credit.NewStore(db)
	schemaStore := configregistry.NewSchemaStore(db)
	promptStore := configregistry.NewPromptStore(db, schemaStore)
	resultStore := llmresult.NewStore(db)
	providers := newProviderRegistry(cfg)
	pricing := llmprovider.DefaultPricing()

	worker := llmworker.New(docs, blobs, jobStore, creditStore, promptStore, schemaStore, resultStore,
		providers, pricing, cfg.SpuPerUSD, cfg.LLMMinEstimatedSPU, cfg.LLMDefaultModel)
	driver := queue.NewDriver(jobStore, rdb, logger, queue.QueueLLM, cfg.QueueBatchSize,
		cfg.LeaseDuration, cfg.QueuePollInterval, cfg.MaxAttempts, worker.Handle)

	return driver.Run(ctx)
}
