package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/chunker"
	"github.com/fks-trading/intel/internal/config"
	dbredis "github.com/fks-trading/intel/internal/db/redis"
	"github.com/fks-trading/intel/internal/domain"
	logpkg "github.com/fks-trading/intel/internal/logger"
	"github.com/fks-trading/intel/internal/metrics"
	"github.com/fks-trading/intel/internal/repository/knowledge"
	"github.com/fks-trading/intel/internal/repository/querylog"
	"github.com/fks-trading/intel/internal/transport/httpapi"
	ollamaTransport "github.com/fks-trading/intel/internal/transport/ollama"
	openaiTransport "github.com/fks-trading/intel/internal/transport/openai"
	embeddinguc "github.com/fks-trading/intel/internal/usecase/embedding"
	generateuc "github.com/fks-trading/intel/internal/usecase/generate"
	ingestionuc "github.com/fks-trading/intel/internal/usecase/ingestion"
	intelligenceuc "github.com/fks-trading/intel/internal/usecase/intelligence"
	orchestratoruc "github.com/fks-trading/intel/internal/usecase/orchestrator"
	retrievaluc "github.com/fks-trading/intel/internal/usecase/retrieval"
	"github.com/fks-trading/intel/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting intel API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("embedding_backend", cfg.Embedding.Backend),
		zap.String("generation_backend", cfg.Generation.Backend),
	)

	store, err := dbredis.NewStore(dbredis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register RAG metrics explicitly (no init())
	metrics.RegisterRAGMetrics()

	tokenizer, err := chunker.NewTiktokenTokenizer(cfg.Chunking.TokenizerModel)
	if err != nil {
		logger.Fatal("Failed to load tokenizer", zap.Error(err))
	}
	chunk, err := chunker.New(tokenizer, cfg.Chunking.WindowTokens, cfg.Chunking.OverlapTokens)
	if err != nil {
		logger.Fatal("Invalid chunking config", zap.Error(err))
	}

	provider := buildEmbeddingProvider(cfg, logger)
	logger.Info("Embedding provider created",
		zap.String("backend", provider.Name()),
		zap.Int("dimensions", provider.Dimension()),
	)

	repo := knowledge.New(store, cfg.Storage.KeyPrefix, logger)
	if err := repo.EnsureIndex(ctx, provider.Dimension()); err != nil {
		logger.Fatal("Failed to ensure search index", zap.Error(err))
	}
	qlog := querylog.New(store, cfg.Storage.KeyPrefix, 0, logger)

	answerSvc := buildGenerationService(cfg, logger)
	retrSvc := retrievaluc.New(provider, repo,
		cfg.Retrieval.SimilarityFloor, cfg.Retrieval.DefaultTopK, logger)
	intelSvc := intelligenceuc.New(chunk, provider, repo, retrSvc, answerSvc,
		qlog, cfg.Retrieval.MaxContextTokens, logger)
	pipeline := ingestionuc.New(chunk, provider, repo, logger)
	orch := orchestratoruc.New(intelSvc, logger)

	server := httpapi.NewServer(intelSvc, pipeline, orch, store, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func buildEmbeddingProvider(cfg config.Config, logger *zap.Logger) *embeddinguc.Provider {
	var backend domain.BatchEmbedder
	var model string

	switch cfg.Embedding.Backend {
	case config.BackendRemote:
		model = cfg.Embedding.OpenAI.Model
		backend = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
			APIKey:     cfg.Embedding.OpenAI.APIKey,
			BaseURL:    cfg.Embedding.OpenAI.BaseURL,
			Model:      model,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		})
	default:
		model = cfg.Embedding.Ollama.Model
		backend = ollamaTransport.NewEmbedder(&ollamaTransport.EmbedderConfig{
			BaseURL: cfg.Embedding.Ollama.BaseURL,
			Model:   model,
			Logger:  logger,
		})
	}

	return embeddinguc.NewProvider(&embeddinguc.Config{
		Backend:   backend,
		Name:      cfg.Embedding.Backend,
		Model:     model,
		Dimension: cfg.Embedding.Dimensions,
		BatchSize: cfg.Embedding.BatchSize,
		Logger:    logger,
	})
}

func buildGenerationService(cfg config.Config, logger *zap.Logger) *generateuc.Service {
	var generator domain.Generator
	var limiter *generateuc.RateLimiter

	switch cfg.Generation.Backend {
	case config.BackendRemote:
		generator = openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
			APIKey:      cfg.Generation.OpenAI.APIKey,
			BaseURL:     cfg.Generation.OpenAI.BaseURL,
			Model:       cfg.Generation.OpenAI.Model,
			Temperature: cfg.Generation.Temperature,
			MaxTokens:   cfg.Generation.MaxTokens,
			Logger:      logger,
		})
		// The sliding-window quota only guards the hosted API.
		limiter = generateuc.NewRateLimiter(
			cfg.Generation.RateLimit.RequestsPerMinute,
			cfg.Generation.RateLimit.RequestsPerDay,
		)
	default:
		generator = ollamaTransport.NewGenerator(&ollamaTransport.GeneratorConfig{
			BaseURL:     cfg.Generation.Ollama.BaseURL,
			Model:       cfg.Generation.Ollama.Model,
			Temperature: float64(cfg.Generation.Temperature),
			MaxTokens:   cfg.Generation.MaxTokens,
			Logger:      logger,
		})
	}

	return generateuc.NewService(generator, limiter, logger)
}
