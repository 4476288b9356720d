package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studyqa/internal/config"
	"studyqa/internal/http"
	"studyqa/internal/indexer"
	"studyqa/internal/llm"
	"studyqa/internal/metrics"
	"studyqa/internal/rag"
	"studyqa/internal/service"
	"studyqa/internal/storage"
	"studyqa/internal/vectorstore"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers questions about documents uploaded by its users, citing the passages it used.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: StudyQA API
//   description: |
//     Retrieval-augmented question answering over uploaded pdf, docx, markdown and text files.
//     Callers identify themselves with the X-User-ID header.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	if err := metrics.RegisterDB(db, "studyqa"); err != nil {
		slog.Warn("Failed to register database metrics", "error", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	documentRepo := storage.NewDocumentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	embeddingRepo := storage.NewEmbeddingRepo(db)
	historyRepo := storage.NewHistoryRepo(db)

	index, err := newIndexStore(cfg)
	if err != nil {
		log.Fatalf("Failed to create vector index store: %v", err)
	}
	slog.Info("Vector index store ready", "backend", cfg.VectorBackend)

	completer, embedder := newProviders(ctx, cfg)

	pipeline := indexer.NewPipeline(
		documentRepo,
		chunkRepo,
		embeddingRepo,
		historyRepo,
		embedder,
		index,
		cfg.UploadDir,
		cfg.ChunkSize,
		cfg.ChunkOverlap,
	)

	engine := rag.NewEngine(
		documentRepo,
		chunkRepo,
		embeddingRepo,
		historyRepo,
		embedder,
		index,
		completer,
		rag.Tuning{
			MaxContextChars:       cfg.RAG.MaxContextChars,
			ConfidenceFloor:       cfg.RAG.ConfidenceFloor,
			MinSimilarity:         cfg.RAG.MinSimilarity,
			OverviewMinSimilarity: cfg.RAG.OverviewMinSimilarity,
			KeywordBoost:          cfg.RAG.KeywordBoost,
			KeywordBoostCap:       cfg.RAG.KeywordBoostCap,
			MaxTokens:             cfg.LLMMaxTokens,
			Temperature:           cfg.LLMTemperature,
		},
	)
	slog.Info("RAG engine initialized")

	router := http.NewRouter(&http.Deps{
		Engine:    engine,
		Documents: service.NewDocumentService(pipeline),
		Histories: service.NewHistoryService(historyRepo),
		Index:     index,
		DB:        db,
	})

	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("Shutting down API server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting API server", "addr", server.Addr)
	slog.Debug("LLM configuration", "providers", cfg.LLMProviders, "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		log.Fatalf("API server failed: %v", err)
	}
}

func newIndexStore(cfg *config.Config) (vectorstore.IndexStore, error) {
	if cfg.VectorBackend == "qdrant" {
		return vectorstore.NewQdrantStore(cfg.QdrantURL)
	}
	return vectorstore.NewFlatStore(cfg.VectorIndexDir)
}

// newProviders builds the completion and embedding chains in the configured order.
// The OpenAI provider is skipped when no API key is configured.
func newProviders(ctx context.Context, cfg *config.Config) (llm.Completer, llm.Embedder) {
	var openai *llm.OpenAIClient
	if cfg.OpenAIAPIKey != "" {
		openai = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIChatModel, cfg.OpenAIEmbeddingModel)
	}

	var completers []llm.NamedCompleter
	for _, name := range cfg.LLMProviders {
		switch {
		case name == "openai" && openai != nil:
			completers = append(completers, llm.NamedCompleter{Name: name, Completer: openai})
		case name == "local":
			completers = append(completers, llm.NamedCompleter{
				Name:      name,
				Completer: llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName, cfg.LLMTimeout),
			})
		default:
			slog.Warn("Skipping completion provider without credentials", "provider", name)
		}
	}

	var embedders []llm.Embedder
	for _, name := range cfg.EmbeddingProviders {
		switch {
		case name == "openai" && openai != nil:
			embedders = append(embedders, openai)
		case name == "local":
			embedders = append(embedders, llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.LLMTimeout))
			// Local llama.cpp routers load models lazily.
			loader := llm.NewModelLoader(cfg.EmbeddingBaseURL)
			if err := loader.EnsureLoaded(ctx, cfg.EmbeddingModelName); err != nil {
				slog.Warn("Failed to preload embedding model", "model", cfg.EmbeddingModelName, "error", err)
			}
		default:
			slog.Warn("Skipping embedding provider without credentials", "provider", name)
		}
	}
	if len(completers) == 0 || len(embedders) == 0 {
		log.Fatalf("No usable LLM or embedding provider configured")
	}

	cache := llm.NewEmbeddingCache(cfg.EmbeddingCacheSize)
	return llm.NewCompleterChain(cfg.LLMTimeout, completers...),
		llm.NewEmbedderChain(cfg.EmbeddingBatchSize, cache, cfg.LLMTimeout, embedders...)
}
