package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"orgrag/internal/ai"
	"orgrag/internal/app"
	"orgrag/internal/cache"
	"orgrag/internal/chunker"
	"orgrag/internal/config"
	"orgrag/internal/embedding"
	"orgrag/internal/isolation"
	"orgrag/internal/metrics"
	"orgrag/internal/model"
	"orgrag/internal/pkg/logx"
	"orgrag/internal/platform/database"
	postgresClient "orgrag/internal/platform/postgres"
	rabbitmqClient "orgrag/internal/platform/rabbitmq"
	redisClient "orgrag/internal/platform/redis"
	"orgrag/internal/rag"
	"orgrag/internal/repository"
	"orgrag/internal/vectorstore"
	chromemstore "orgrag/internal/vectorstore/chromem"
	"orgrag/internal/vectorstore/gormstore"
	"orgrag/internal/vectorstore/memory"
	pgvectorstore "orgrag/internal/vectorstore/pgvector"
	qdrantstore "orgrag/internal/vectorstore/qdrant"
	"orgrag/internal/worker"
)

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *gorm.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection
	Postgres *sql.DB
	Metrics  *metrics.Metrics

	Embedder embedding.Service
	Guard    *isolation.Guard

	RAG           *app.RAGService
	Organizations *app.OrganizationService
	IngestWorker  *worker.IngestWorker

	StartedAt time.Time
}

type Options struct {
	// Config is loaded from the environment when nil.
	Config *config.Config
	// StartWorker consumes the ingest queue in this process.
	StartWorker bool
}

func New(ctx context.Context, opts Options) (a *App, err error) {
	cfg := opts.Config
	if cfg == nil {
		cfg, err = config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config failed: %w", err)
		}
	}

	a = &App{
		Config:    cfg,
		Logger:    logx.New(os.Stderr, cfg.Log.Format, cfg.Log.Level),
		StartedAt: time.Now(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	dsn := cfg.MySQLDSN()
	if cfg.Database.Driver == "sqlite" {
		dsn = cfg.Database.SQLitePath
	}
	a.DB, err = database.New(ctx, database.Options{
		Driver:       cfg.Database.Driver,
		DSN:          dsn,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	if err = a.DB.AutoMigrate(&model.Organization{}, &model.Document{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	if cfg.Redis.Enabled {
		a.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.RabbitMQ.Enabled {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IngestQueue)
		if err != nil {
			return nil, err
		}
	}

	a.Embedder = a.newEmbedder()

	store, err := a.newStore(ctx, a.Embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	a.Guard = isolation.NewGuard(store, a.Logger, a.Metrics.IsolationViolation)

	if err = a.buildServices(ctx); err != nil {
		return nil, err
	}

	if opts.StartWorker && a.MQConn != nil {
		a.IngestWorker = worker.NewIngestWorker(a.MQConn, a.RAG, cfg.RabbitMQ.IngestQueue, cfg.RabbitMQ.WorkerConcurrency, a.Logger)
		if err = a.IngestWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start ingest worker failed: %w", err)
		}
	}

	a.Logger.Info("application ready",
		"database", cfg.Database.Driver,
		"vector_store", cfg.VectorStore.Backend,
		"embedding", cfg.Embedding.Provider,
		"generation", cfg.Generation.Provider,
		"redis", a.Redis != nil,
		"rabbitmq", a.MQConn != nil,
	)
	return a, nil
}

// newEmbedder builds the provider, then wraps it with lane limits and, when
// redis is available, the query embedding cache.
func (a *App) newEmbedder() embedding.Service {
	cfg := a.Config.Embedding

	var base embedding.Service
	switch cfg.Provider {
	case "hugot":
		base = embedding.NewHugot(embedding.HugotConfig{
			ModelPath:  cfg.HugotModelPath,
			ModelName:  cfg.ModelName(),
			ModelDir:   cfg.HugotModelDir,
			Dimensions: cfg.Dimensions,
			MaxInput:   cfg.MaxInputChars,
		})
	case "hashing":
		base = embedding.NewHashing(cfg.Dimensions)
	default:
		base = embedding.NewOpenAI(ai.NewOpenAICompatibleClient(), ai.EmbeddingConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}, cfg.MaxInputChars)
	}

	var svc embedding.Service = embedding.NewLimited(base, embedding.LimitConfig{
		BulkConcurrency:        cfg.BulkConcurrency,
		InteractiveConcurrency: cfg.InteractiveConcurrency,
		RequestsPerSecond:      cfg.RequestsPerSecond,
		Burst:                  cfg.Burst,
	})
	if a.Redis != nil {
		ttl := time.Duration(a.Config.Redis.EmbeddingTTLSeconds) * time.Second
		svc = embedding.NewCached(svc, cache.NewEmbeddingCache(a.Redis, ttl), a.Logger)
	}
	return svc
}

func (a *App) newStore(ctx context.Context, dims int) (vectorstore.Store, error) {
	cfg := a.Config.VectorStore
	switch cfg.Backend {
	case "memory":
		return memory.New(dims), nil
	case "pgvector":
		pg, err := postgresClient.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.Postgres = pg
		return pgvectorstore.New(ctx, pg, pgvectorstore.Config{
			Table: cfg.PostgresTable,
			Dims:  dims,
			HNSW:  cfg.PostgresHNSW,
		})
	case "qdrant":
		return qdrantstore.New(ctx, qdrantstore.Config{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantTLS,
			Collection: cfg.QdrantCollection,
			Dims:       dims,
		})
	case "chromem":
		return chromemstore.New(chromemstore.Config{
			PersistPath: cfg.ChromemPath,
			Compress:    cfg.ChromemCompress,
			Dims:        dims,
		})
	default:
		return gormstore.New(a.DB, dims)
	}
}

func (a *App) buildServices(ctx context.Context) error {
	cfg := a.Config

	c, err := chunker.New(
		chunker.WithSize(cfg.Ingestion.ChunkSize),
		chunker.WithOverlap(cfg.Ingestion.ChunkOverlap),
	)
	if err != nil {
		return fmt.Errorf("create chunker failed: %w", err)
	}

	var sizer rag.Sizer = rag.RuneSizer{}
	if cfg.Retrieval.BudgetUnit == "tokens" {
		ts, err := rag.NewTokenSizer(cfg.Retrieval.TokenizerModel)
		if err != nil {
			return fmt.Errorf("create token sizer failed: %w", err)
		}
		sizer = ts
	}

	chat, err := newChatModel(ctx, cfg.Generation)
	if err != nil {
		return err
	}

	docRepo := repository.NewDocumentRepository(a.DB)
	orgRepo := repository.NewOrganizationRepository(a.DB)

	deps := app.RAGDeps{
		Documents:     docRepo,
		Organizations: orgRepo,
		Guard:         a.Guard,
		Pipeline: rag.NewPipeline(c, a.Embedder, a.Guard, rag.PipelineConfig{
			BatchSize:        cfg.Ingestion.BatchSize,
			EmbedConcurrency: cfg.Ingestion.EmbedConcurrency,
		}, a.Logger),
		Retriever: rag.NewRetriever(a.Embedder, a.Guard, rag.RetrievalConfig{TopK: cfg.Retrieval.TopK}),
		Assembler: rag.NewAssembler(rag.AssemblerConfig{
			Budget:          cfg.Retrieval.ContextBudget,
			DedupeThreshold: cfg.Retrieval.DedupeThreshold,
		}, sizer),
		Generator: rag.NewGenerator(chat, rag.GenerationConfig{
			Timeout:         time.Duration(cfg.Generation.TimeoutSeconds) * time.Second,
			MaxRetries:      cfg.Generation.MaxRetries,
			InitialBackoff:  time.Duration(cfg.Generation.InitialBackoffMS) * time.Millisecond,
			MaxBackoff:      time.Duration(cfg.Generation.MaxBackoffMS) * time.Millisecond,
			Concurrency:     cfg.Generation.Concurrency,
			FallbackMessage: cfg.Generation.FallbackMessage,
		}, a.Logger),
		Metrics:   a.Metrics,
		Logger:    a.Logger,
		Threshold: cfg.Retrieval.Threshold,
	}
	if a.MQConn != nil {
		deps.Publisher = rabbitmqClient.NewIngestPublisher(a.MQConn, cfg.RabbitMQ.IngestQueue)
	}

	a.RAG = app.NewRAGService(deps)
	a.Organizations = app.NewOrganizationService(orgRepo)
	return nil
}

func newChatModel(ctx context.Context, cfg config.GenerationConfig) (ai.ChatModel, error) {
	if cfg.Provider == "gemini" {
		client, err := ai.NewGeminiClient(ctx, ai.GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client failed: %w", err)
		}
		return client, nil
	}
	return ai.NewOpenAICompatibleClient().Bind(ai.ChatConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
	}), nil
}

// Close stops the worker first so no task runs against closed clients.
func (a *App) Close() error {
	var errs []error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close rabbitmq failed: %w", err))
		}
	}
	if a.Guard != nil {
		if err := a.Guard.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close vector store failed: %w", err))
		}
	}
	if a.Embedder != nil {
		if err := a.Embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close embedder failed: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis failed: %w", err))
		}
	}
	if a.Postgres != nil {
		if err := a.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close postgres failed: %w", err))
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database failed: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
