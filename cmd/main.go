package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"heftcoder/internal/ai"
	"heftcoder/internal/cache"
	"heftcoder/internal/config"
	"heftcoder/internal/db"
	"heftcoder/internal/handlers"
	"heftcoder/internal/jobs"
	"heftcoder/internal/logging"
	"heftcoder/internal/metrics"
	"heftcoder/internal/middleware"
	"heftcoder/internal/orchestrator"
	"heftcoder/internal/publish"
	"heftcoder/internal/secrets"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	envFile := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		logging.Init()
		logging.L().Fatal("invalid configuration", zap.Error(err))
	}

	logging.InitWith(logging.Options{Environment: cfg.Environment, Level: cfg.LogLevel})
	defer logging.Sync()
	log := logging.L()

	log.Info("starting HeftCoder orchestrator",
		zap.String("version", version),
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port))
	if envFile == "" {
		log.Warn("no .env file found, using environment variables")
	}

	if err := config.ValidateAndLogSecrets(cfg, log); err != nil {
		log.Fatal("secret validation failed", zap.Error(err))
	}

	if cfg.SecretsMasterKey == "" {
		// Development only: production refuses to start without a key.
		key, err := secrets.GenerateMasterKey()
		if err != nil {
			log.Fatal("failed to generate master key", zap.Error(err))
		}
		cfg.SecretsMasterKey = key
		log.Warn("SECRETS_MASTER_KEY not set, using an ephemeral key; saved secrets will not survive a restart")
	}

	dbURL := cfg.DatabaseURL
	if dbURL == "" {
		dbURL = db.DefaultSQLitePath
	}
	dbConfig := db.DefaultConfig()
	dbConfig.URL = dbURL
	database, err := db.Open(dbConfig, log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	secretManager, err := secrets.NewManager(cfg.SecretsMasterKey)
	if err != nil {
		log.Fatal("invalid SECRETS_MASTER_KEY", zap.Error(err))
	}
	if cfg.SecretsMasterKeyOld != "" {
		rotateMasterKey(database, cfg.SecretsMasterKeyOld, secretManager, log)
	}

	jobCache := openCache(cfg, log)
	defer jobCache.Close()

	router := ai.NewAIRouter(cfg.RouterConfig(), log.Named("ai"), aiClients(cfg, log)...)
	if len(router.Providers()) == 0 {
		log.Warn("no AI providers configured; every plan will use the built-in template")
	}

	orchConfig := orchestrator.DefaultConfig()
	orchConfig.QADelay = cfg.QADelay
	orch := orchestrator.NewService(router, orchConfig, log.Named("orchestrator"))

	jobConfig := jobs.DefaultConfig()
	jobConfig.Workers = cfg.JobWorkers
	jobConfig.QueueSize = cfg.JobQueueSize
	jobConfig.Timeout = cfg.JobTimeout
	queue := jobs.NewQueue(jobs.NewCacheStore(jobCache, cfg.JobTTL), orch, jobConfig, log.Named("jobs"))

	h := handlers.NewHandler(orch, queue, log)
	h.Providers = router
	h.AllowedOrigins = cfg.CORSAllowedOrigins
	h.Checks["database"] = func(context.Context) error { return database.Health() }
	h.Checks["cache"] = jobCache.Ping

	secretsHandler := handlers.NewSecretsHandler(secrets.NewService(database.DB, secretManager, log.Named("secrets")))
	publishService := publish.NewService(database.DB, log.Named("publish"))
	publishHandler := handlers.NewPublishHandler(publishService, cfg.PublicBaseURL)

	limiter := middleware.NewPerMinuteLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	go func() {
		if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("job queue stopped", zap.Error(err))
		}
	}()
	go limiter.Run(ctx)
	router.StartHealthMonitor(ctx, 5*time.Minute)

	if cfg.EnableMetrics {
		metrics.Get().SetBuildInfo(version, runtime.Version())
		collector := metrics.NewStorageCollector(database.DB, 30*time.Second, log.Named("metrics"))
		collector.Start(ctx)
		defer collector.Stop()
	}

	engine := setupRoutes(cfg, h, secretsHandler, publishHandler, limiter, log)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	log.Info("HTTP server listening", zap.String("addr", httpServer.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server failed", zap.Error(err))
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	// Stop background work first so workers do not pick up new jobs.
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	publishService.WaitVisits()
	log.Info("server stopped")
}

func setupRoutes(
	cfg *config.Config,
	h *handlers.Handler,
	secretsHandler *handlers.SecretsHandler,
	publishHandler *handlers.PublishHandler,
	limiter *middleware.IPRateLimiter,
	log *zap.Logger,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log.Named("http"), "/health", "/metrics"))
	r.Use(middleware.Recovery(log))
	if cfg.EnableMetrics {
		r.Use(metrics.PrometheusMiddleware("/metrics", "/health"))
		r.GET("/metrics", metrics.PrometheusHandler())
	}

	r.GET("/health", h.Health)

	// Published pages are served without the API security headers so they
	// can be embedded.
	r.GET("/p/:slug", publishHandler.Serve)

	api := r.Group("/api")
	api.Use(middleware.Security())
	api.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	api.Use(middleware.RateLimit(limiter))
	{
		api.POST("/orchestrator", h.Orchestrate)
		api.GET("/jobs/:id/ws", h.WatchJob)

		api.GET("/secrets", secretsHandler.ListSecrets)
		api.POST("/secrets", secretsHandler.SaveSecrets)
		api.DELETE("/secrets/:name", secretsHandler.DeleteSecret)

		api.POST("/publish", publishHandler.Publish)
	}

	return r
}

// openCache connects to Redis when configured and falls back to memory.
func openCache(cfg *config.Config, log *zap.Logger) *cache.Cache {
	cacheConfig := cache.DefaultConfig()
	cacheConfig.DefaultTTL = cfg.JobTTL
	if cfg.RedisURL == "" {
		log.Info("REDIS_URL not set, planning jobs are kept in memory")
		return cache.New(cacheConfig)
	}
	c, err := cache.NewFromURL(cfg.RedisURL, cacheConfig)
	if err != nil {
		if cfg.IsProduction() {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		log.Warn("redis unavailable, planning jobs are kept in memory", zap.Error(err))
		return cache.New(cacheConfig)
	}
	log.Info("planning jobs are stored in redis")
	return c
}

// aiClients builds a client for every provider with credentials.
func aiClients(cfg *config.Config, log *zap.Logger) []ai.AIClient {
	var clients []ai.AIClient
	if cfg.AnthropicAPIKey != "" {
		clients = append(clients, ai.NewClaudeClient(cfg.AnthropicAPIKey, ""))
	}
	if cfg.OpenAIAPIKey != "" {
		clients = append(clients, ai.NewOpenAIClient(cfg.OpenAIAPIKey, ""))
	}
	if cfg.GeminiAPIKey != "" {
		clients = append(clients, ai.NewGeminiClient(cfg.GeminiAPIKey, ""))
	}
	if cfg.OllamaBaseURL != "" {
		clients = append(clients, ai.NewOllamaClient(cfg.OllamaBaseURL, ""))
	}
	if cfg.AgentAPIURL != "" {
		clients = append(clients, ai.NewAgentAPIClient(cfg.AgentAPIURL, cfg.AgentAPIKey))
	}
	for _, c := range clients {
		log.Info("AI provider enabled", zap.String("provider", string(c.GetProvider())))
	}
	return clients
}

func rotateMasterKey(database *db.Database, oldKey string, current *secrets.Manager, log *zap.Logger) {
	old, err := secrets.NewManager(oldKey)
	if err != nil {
		log.Fatal("invalid SECRETS_MASTER_KEY_OLD", zap.Error(err))
	}
	result, err := secrets.RotateMasterKey(database.DB, old, current, log.Named("rotation"))
	if err != nil {
		log.Fatal("master key rotation failed", zap.Error(err))
	}
	log.Info("master key rotation finished",
		zap.Int("migrated", result.Migrated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
}
