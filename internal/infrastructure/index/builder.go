package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
	"github.com/atlasdocs/kb-assistant/internal/core/ports"
)

const embedBatchSize = 64

type BuilderConfig struct {
	BM25K1         float64
	BM25B          float64
	KeywordEnabled bool
	SnapshotPath   string
}

func (c BuilderConfig) normalize() BuilderConfig {
	out := c
	if out.BM25K1 <= 0 {
		out.BM25K1 = defaultBM25K1
	}
	if out.BM25B < 0 || out.BM25B > 1 {
		out.BM25B = defaultBM25B
	}
	return out
}

// Builder assembles snapshots from the normalized corpus: chunk, embed
// (reusing cached vectors for unchanged chunk text), index, persist, publish.
// One build runs at a time; readers are never blocked.
type Builder struct {
	chunker  ports.Chunker
	embedder ports.Embedder
	store    *Store
	cfg      BuilderConfig
	log      *slog.Logger

	mu    sync.Mutex
	cache map[string][]float32 // chunk content hash -> vector
}

func NewBuilder(chunker ports.Chunker, embedder ports.Embedder, store *Store, cfg BuilderConfig, log *slog.Logger) *Builder {
	return &Builder{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		cfg:      cfg.normalize(),
		log:      log,
		cache:    make(map[string][]float32),
	}
}

// BuildAndPublish builds a fresh snapshot from docs and swaps it in. force
// discards the embedding cache and recomputes every vector, for when the
// embedding model or chunk configuration changed incompatibly.
func (b *Builder) BuildAndPublish(ctx context.Context, docs []domain.Document, force bool) (ports.IndexStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := ports.IndexStats{Documents: len(docs)}

	chunks := make([]domain.Chunk, 0, len(docs)*4)
	docTimes := make(map[string]time.Time, len(docs))
	for _, doc := range docs {
		split := b.chunker.Split(doc)
		if len(split) == 0 {
			stats.SkippedDocs++
			b.log.Warn("document produced no chunks, skipping", "document_id", doc.ID, "title", doc.Title)
			continue
		}
		chunks = append(chunks, split...)
		docTimes[doc.ID] = doc.FetchedAt
	}
	stats.Chunks = len(chunks)

	if force {
		b.cache = make(map[string][]float32)
	}

	hashes := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	missing := make([]int, 0, len(chunks))
	for i, chunk := range chunks {
		hashes[i] = contentHash(chunk.Text)
		if v, ok := b.cache[hashes[i]]; ok {
			vectors[i] = v
			stats.CachedChunks++
			continue
		}
		missing = append(missing, i)
	}

	if err := b.embedMissing(ctx, chunks, hashes, vectors, missing); err != nil {
		return stats, err
	}
	stats.EmbeddedChunks = len(missing)

	dim := 0
	for i, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return stats, domain.WrapError(domain.ErrEmbedding, "build index",
				fmt.Errorf("vector dimension mismatch at chunk %s: %d != %d", chunks[i].ID, len(v), dim))
		}
	}
	stats.Dimension = dim

	snap := b.assemble(chunks, vectors, docTimes, dim)

	if b.cfg.SnapshotPath != "" {
		if err := saveSnapshotFile(b.cfg.SnapshotPath, snap, hashes); err != nil {
			// Persistence is best-effort; the in-memory swap still happens.
			b.log.Error("persist snapshot failed", "path", b.cfg.SnapshotPath, "error", err)
		}
	}

	b.store.Publish(snap)
	b.log.Info("index snapshot published",
		"documents", stats.Documents,
		"skipped_documents", stats.SkippedDocs,
		"chunks", stats.Chunks,
		"embedded", stats.EmbeddedChunks,
		"cached", stats.CachedChunks,
		"dimension", dim,
	)
	return stats, nil
}

func (b *Builder) embedMissing(ctx context.Context, chunks []domain.Chunk, hashes []string, vectors [][]float32, missing []int) error {
	for start := 0; start < len(missing); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		texts := make([]string, len(batch))
		for j, idx := range batch {
			texts[j] = chunks[idx].Text
		}

		embedded, err := b.embedder.Embed(ctx, texts)
		if err != nil {
			return domain.WrapError(domain.ErrEmbedding, "embed chunks", err)
		}
		if len(embedded) != len(batch) {
			return domain.WrapError(domain.ErrEmbedding, "embed chunks",
				fmt.Errorf("vectors/texts mismatch: %d/%d", len(embedded), len(batch)))
		}
		for j, idx := range batch {
			v := normalize(embedded[j])
			vectors[idx] = v
			b.cache[hashes[idx]] = v
		}
	}
	return nil
}

func (b *Builder) assemble(chunks []domain.Chunk, vectors [][]float32, docTimes map[string]time.Time, dim int) *Snapshot {
	byKey := make(map[string]int, len(chunks))
	for ord, chunk := range chunks {
		byKey[chunk.ID] = ord
	}

	snap := &Snapshot{
		chunks:     chunks,
		vectors:    vectors,
		dim:        dim,
		byKey:      byKey,
		docTimes:   docTimes,
		k1:         b.cfg.BM25K1,
		b:          b.cfg.BM25B,
		keywordOn:  b.cfg.KeywordEnabled,
		embedModel: b.embedder.ModelID(),
		chunkCfg:   b.chunker.ConfigHash(),
	}
	if b.cfg.KeywordEnabled {
		snap.postings, snap.chunkLens, snap.avgLen = buildPostings(chunks)
	}
	return snap
}

// RestoreFromDisk loads the persisted snapshot if its manifest matches the
// current embedding model and chunking configuration, publishing it and
// seeding the embedding cache. A stale or missing snapshot is rejected with
// an error the caller may log and ignore.
func (b *Builder) RestoreFromDisk() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.SnapshotPath == "" {
		return fmt.Errorf("no snapshot path configured")
	}
	file, err := loadSnapshotFile(b.cfg.SnapshotPath)
	if err != nil {
		return err
	}
	if err := file.Manifest.validate(b.embedder.ModelID(), b.chunker.ConfigHash()); err != nil {
		return err
	}

	byKey := make(map[string]int, len(file.Chunks))
	for ord, chunk := range file.Chunks {
		byKey[chunk.ID] = ord
	}
	snap := &Snapshot{
		chunks:     file.Chunks,
		vectors:    file.Vectors,
		dim:        file.Manifest.Dimension,
		byKey:      byKey,
		docTimes:   file.DocTimes,
		k1:         b.cfg.BM25K1,
		b:          b.cfg.BM25B,
		keywordOn:  b.cfg.KeywordEnabled,
		embedModel: file.Manifest.EmbedModel,
		chunkCfg:   file.Manifest.ChunkConfig,
	}
	if b.cfg.KeywordEnabled {
		// Postings are derived entirely from chunk text; rebuild instead of
		// trusting a serialized copy.
		snap.postings, snap.chunkLens, snap.avgLen = buildPostings(file.Chunks)
	}

	for i, hash := range file.Hashes {
		b.cache[hash] = file.Vectors[i]
	}

	b.store.Publish(snap)
	b.log.Info("index snapshot restored",
		"path", b.cfg.SnapshotPath,
		"chunks", len(file.Chunks),
		"dimension", file.Manifest.Dimension,
		"built_at", file.Manifest.BuiltAt,
	)
	return nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
