package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atlasdocs/kb-assistant/internal/config"
	"github.com/atlasdocs/kb-assistant/internal/core/domain"
	"github.com/atlasdocs/kb-assistant/internal/core/ports"
	"github.com/atlasdocs/kb-assistant/internal/core/usecase"
	"github.com/atlasdocs/kb-assistant/internal/infrastructure/chunking"
	"github.com/atlasdocs/kb-assistant/internal/infrastructure/index"
	"github.com/atlasdocs/kb-assistant/internal/infrastructure/llm/ollama"
	"github.com/atlasdocs/kb-assistant/internal/infrastructure/memory"
	"github.com/atlasdocs/kb-assistant/internal/infrastructure/queue/nats"
	"github.com/atlasdocs/kb-assistant/internal/infrastructure/repository/postgres"
	"github.com/atlasdocs/kb-assistant/internal/infrastructure/resilience"
	"github.com/atlasdocs/kb-assistant/internal/infrastructure/source/dirsource"
)

// App wires the object graph shared by the api and worker binaries.
type App struct {
	Config config.Config
	Log    *slog.Logger

	Queue     *nats.Queue
	Corpus    *postgres.CorpusRepository
	Provider  ports.IndexProvider
	QA        ports.QuestionService
	Rebuilder ports.IndexRebuilder

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	corpus := postgres.NewCorpusRepository(db)
	if err := corpus.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	exec := resilience.NewExecutor(resilience.DefaultConfig(), log)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: exec,
		Logger:             log,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init rebuild queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, exec, log)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	store := index.NewStore()
	builder := index.NewBuilder(chunker, embedder, store, index.BuilderConfig{
		BM25K1:         cfg.BM25K1,
		BM25B:          cfg.BM25B,
		KeywordEnabled: cfg.KeywordEnabled,
		SnapshotPath:   cfg.SnapshotPath,
	}, log)

	// A warm start from disk lets the api answer before the first rebuild.
	if err := builder.RestoreFromDisk(); err != nil {
		log.Warn("no usable index snapshot on disk, waiting for a rebuild", "error", err)
	}

	retriever := usecase.NewRetriever(embedder, store, generator, usecase.RetrieveConfig{
		TopK:          cfg.TopK,
		CandidatePool: cfg.CandidatePool,
		Weights: domain.FusionWeights{
			Semantic: cfg.SemanticWeight,
			Keyword:  cfg.KeywordWeight,
		},
		ExpansionVariants: cfg.QueryExpansionVariants,
	}, log)

	qa := usecase.NewQAService(retriever, memory.New(cfg.MemoryWindow), generator, usecase.AskConfig{
		Expand: usecase.ExpandConfig{
			Window:      cfg.NeighborWindow,
			TokenBudget: cfg.ContextTokenBudget,
		},
		RelevanceFloor: cfg.RelevanceFloor,
	}, log)

	source := dirsource.New(cfg.ArticleDir, log)
	rebuilder := usecase.NewRebuildService(source, corpus, builder, log)

	return &App{
		Config:    cfg,
		Log:       log,
		Queue:     queue,
		Corpus:    corpus,
		Provider:  store,
		QA:        qa,
		Rebuilder: rebuilder,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
