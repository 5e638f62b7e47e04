package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/pdf-rag-assistant/internal/config"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/llm/langchain"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/vector"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/vector/chromem"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue        ports.MessageQueue
	Repo         ports.DocumentRepository
	IngestUC     *usecase.IngestDocumentUseCase
	ProcessUC    *usecase.ProcessDocumentUseCase
	QueryUC      *usecase.QueryUseCase
	CollectionUC *usecase.CollectionUseCase

	closers []func()
}

type options struct {
	withQueue     bool
	queryOnly     bool
	standalone    bool
	onBreakerMove func(operation, from, to string)
}

type Option func(*options)

// WithQueue connects NATS even when uploads are processed inline.
func WithQueue() Option {
	return func(o *options) { o.withQueue = true }
}

// QueryOnly skips the document registry, upload storage and queue.
func QueryOnly() Option {
	return func(o *options) { o.queryOnly = true }
}

// Standalone is QueryOnly plus a ProcessUC whose Ingest writes straight to
// the index. ProcessByID is unavailable without the registry.
func Standalone() Option {
	return func(o *options) {
		o.queryOnly = true
		o.standalone = true
	}
}

func WithBreakerObserver(fn func(operation, from, to string)) Option {
	return func(o *options) { o.onBreakerMove = fn }
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg}
	executor := resilience.NewExecutor(resilienceConfig(cfg, o.onBreakerMove))

	embedder, generator, err := newModels(cfg, executor)
	if err != nil {
		return nil, err
	}
	index, collectionName, err := newIndex(cfg, embedder, executor)
	if err != nil {
		return nil, err
	}

	retriever, err := usecase.NewRetriever(index, usecase.RetrievalConfig{
		Strategy:  domain.RetrievalStrategy(cfg.RAGStrategy),
		TopK:      cfg.RAGTopK,
		FetchK:    cfg.RAGFetchK,
		MMRLambda: cfg.RAGMMRLambda,
	})
	if err != nil {
		return nil, fmt.Errorf("init retriever: %w", err)
	}

	locks := usecase.NewSourceLocks()
	app.QueryUC = usecase.NewQueryUseCase(retriever, generator)
	app.CollectionUC = usecase.NewCollectionUseCase(index, locks, collectionName)

	if o.standalone {
		app.ProcessUC = usecase.NewProcessDocumentUseCase(
			nil, nil, nil, chunking.NewBuilder(), index, locks, cfg.ChunkSize, cfg.ChunkOverlap,
		)
	}
	if o.queryOnly {
		return app, nil
	}

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })

	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	app.Repo = repo

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	mode := usecase.IngestMode(cfg.IngestMode)
	if mode == usecase.IngestAsync || o.withQueue {
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			HandlerTimeout:     cfg.WorkerHandlerTimeout,
			ResilienceExecutor: executor,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.closers = append(app.closers, queue.Close)
		app.Queue = queue
	}

	extractor := pdftext.NewExtractor(storage)
	app.ProcessUC = usecase.NewProcessDocumentUseCase(
		repo, storage, extractor, chunking.NewBuilder(), index, locks, cfg.ChunkSize, cfg.ChunkOverlap,
	)
	app.IngestUC = usecase.NewIngestDocumentUseCase(repo, storage, app.Queue, app.ProcessUC, mode)

	log.Info().
		Str("vector_backend", cfg.VectorBackend).
		Str("llm_provider", cfg.LLMProvider).
		Str("ingest_mode", cfg.IngestMode).
		Str("strategy", string(retriever.Strategy())).
		Msg("app_initialized")
	return app, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func resilienceConfig(cfg config.Config, onStateChange func(operation, from, to string)) resilience.Config {
	return resilience.Config{
		Retry: resilience.RetryPolicy{
			MaxAttempts:    cfg.ResilienceRetryMaxAttempts,
			InitialBackoff: cfg.ResilienceRetryInitialBackoff,
			MaxBackoff:     cfg.ResilienceRetryMaxBackoff,
			Multiplier:     2.0,
		},
		Breaker: resilience.BreakerPolicy{
			Enabled:          cfg.ResilienceBreakerEnabled,
			MinRequests:      uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
			FailureRatio:     cfg.ResilienceBreakerFailureRatio,
			OpenTimeout:      cfg.ResilienceBreakerOpenTimeout,
			HalfOpenMaxCalls: uint32(max(cfg.ResilienceBreakerHalfOpenCalls, 0)),
		},
		OnStateChange: onStateChange,
	}
}

func newModels(cfg config.Config, executor *resilience.Executor) (ports.Embedder, ports.AnswerGenerator, error) {
	switch cfg.LLMProvider {
	case "openai":
		provider, err := langchain.New(langchain.Config{
			BaseURL:        cfg.OpenAIBaseURL,
			APIKey:         cfg.OpenAIAPIKey,
			Model:          cfg.OpenAIGenModel,
			EmbeddingModel: cfg.OpenAIEmbedModel,
			Temperature:    cfg.LLMTemperature,
		}, langchain.WithResilienceExecutor(executor))
		if err != nil {
			return nil, nil, fmt.Errorf("init openai provider: %w", err)
		}
		return provider, provider, nil
	default:
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.WithResilienceExecutor(executor))
		return ollama.NewEmbedder(client), ollama.NewGenerator(client), nil
	}
}

func newIndex(cfg config.Config, embedder ports.Embedder, executor *resilience.Executor) (ports.VectorIndex, string, error) {
	switch cfg.VectorBackend {
	case "chromem":
		store, err := chromem.New(cfg.ChromemPath, cfg.ChromemCollection, embedder)
		if err != nil {
			return nil, "", fmt.Errorf("init chromem index: %w", err)
		}
		return vector.NewRecoveringIndex(store), cfg.ChromemCollection, nil
	default:
		client := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedder, qdrant.WithResilienceExecutor(executor))
		return vector.NewRecoveringIndex(client), cfg.QdrantCollection, nil
	}
}
