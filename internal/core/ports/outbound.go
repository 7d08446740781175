package ports

import (
	"context"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
)

// Embedder vectorizes chunk and query text. Vectors are deterministic for
// identical input and L2-normalized by the backing model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelID() string
}

// Generator creates answer text from an assembled prompt. Paraphrase variants
// drive optional query expansion.
type Generator interface {
	GenerateAnswer(ctx context.Context, prompt string) (string, error)
	GenerateVariants(ctx context.Context, question string, n int) ([]string, error)
}

// Chunker splits a document into overlapping, order-preserving chunks.
// ConfigHash versions the chunking configuration for snapshot validation.
type Chunker interface {
	Split(doc domain.Document) []domain.Chunk
	ConfigHash() string
}

// DocumentSource pulls the normalized document stream produced by the external
// scraping and cleaning pipeline.
type DocumentSource interface {
	LoadDocuments(ctx context.Context) ([]domain.Document, error)
}

// CorpusRepository persists the normalized corpus of record. The corpus is
// replaced wholesale on every re-scrape.
type CorpusRepository interface {
	ReplaceAll(ctx context.Context, docs []domain.Document) error
	ListAll(ctx context.Context) ([]domain.Document, error)
	CountDocuments(ctx context.Context) (int, error)
}

// RebuildQueue publishes and consumes index rebuild events.
type RebuildQueue interface {
	PublishRebuild(ctx context.Context, force bool) error
	SubscribeRebuild(ctx context.Context, handler func(context.Context, bool) error) error
}

// IndexSnapshot is one immutable, point-in-time view of the dual index. Both
// searches always cover the same chunk set.
type IndexSnapshot interface {
	SemanticSearch(queryVector []float32, limit int) []domain.Candidate
	KeywordSearch(queryText string, limit int) []domain.Candidate
	ChunkAt(documentID string, sequenceIndex int) (domain.Chunk, bool)
	ChunkCount() int
}

// IndexProvider hands out the active snapshot. Returns ErrIndexUnavailable
// until a first snapshot has been published.
type IndexProvider interface {
	Current() (IndexSnapshot, error)
}

// IndexStats summarizes one index build.
type IndexStats struct {
	Documents      int `json:"documents"`
	SkippedDocs    int `json:"skipped_documents"`
	Chunks         int `json:"chunks"`
	EmbeddedChunks int `json:"embedded_chunks"`
	CachedChunks   int `json:"cached_chunks"`
	Dimension      int `json:"dimension"`
}

// IndexWriter builds a fresh snapshot off to the side and atomically swaps it
// in. force discards the embedding cache and recomputes every vector.
type IndexWriter interface {
	BuildAndPublish(ctx context.Context, docs []domain.Document, force bool) (IndexStats, error)
}

// ConversationMemory is the bounded per-user window of recent turns.
// Window returns turns oldest-first.
type ConversationMemory interface {
	Append(userID string, turn domain.Turn) error
	Window(userID string) ([]domain.Turn, error)
	Reset(userID string)
}
