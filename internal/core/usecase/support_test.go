package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
	"github.com/atlasdocs/kb-assistant/internal/core/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type embedderFake struct {
	queries []string
	vec     func(text string) []float32
	err     error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, text)
	return f.vector(text), nil
}

func (f *embedderFake) vector(text string) []float32 {
	if f.vec != nil {
		return f.vec(text)
	}
	return []float32{1}
}

func (f *embedderFake) ModelID() string { return "fake-embed-v1" }

type generatorFake struct {
	answer      string
	answerErr   error
	prompts     []string
	variants    []string
	variantsErr error
}

func (f *generatorFake) GenerateAnswer(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.answerErr != nil {
		return "", f.answerErr
	}
	if f.answer == "" {
		return "generated answer", nil
	}
	return f.answer, nil
}

func (f *generatorFake) GenerateVariants(_ context.Context, _ string, n int) ([]string, error) {
	if f.variantsErr != nil {
		return nil, f.variantsErr
	}
	if len(f.variants) > n {
		return f.variants[:n], nil
	}
	return f.variants, nil
}

// snapshotFake serves canned rankings and a fixed chunk table. The semantic
// and keyword hooks default to returning nothing.
type snapshotFake struct {
	semantic func(vec []float32, limit int) []domain.Candidate
	keyword  func(query string, limit int) []domain.Candidate
	chunks   map[string]domain.Chunk
}

func (f *snapshotFake) SemanticSearch(vec []float32, limit int) []domain.Candidate {
	if f.semantic == nil {
		return nil
	}
	return f.semantic(vec, limit)
}

func (f *snapshotFake) KeywordSearch(query string, limit int) []domain.Candidate {
	if f.keyword == nil {
		return nil
	}
	return f.keyword(query, limit)
}

func (f *snapshotFake) ChunkAt(docID string, seq int) (domain.Chunk, bool) {
	c, ok := f.chunks[domain.ChunkID(docID, seq)]
	return c, ok
}

func (f *snapshotFake) ChunkCount() int { return len(f.chunks) }

type providerFake struct {
	snap ports.IndexSnapshot
	err  error
}

func (f *providerFake) Current() (ports.IndexSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

type memoryFake struct {
	turns     map[string][]domain.Turn
	appendErr error
	windowErr error
}

func newMemoryFake() *memoryFake {
	return &memoryFake{turns: make(map[string][]domain.Turn)}
}

func (f *memoryFake) Append(userID string, turn domain.Turn) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.turns[userID] = append(f.turns[userID], turn)
	return nil
}

func (f *memoryFake) Window(userID string) ([]domain.Turn, error) {
	if f.windowErr != nil {
		return nil, f.windowErr
	}
	return f.turns[userID], nil
}

func (f *memoryFake) Reset(userID string) {
	delete(f.turns, userID)
}

func testChunk(docID string, seq int, text string) domain.Chunk {
	return domain.Chunk{
		ID:            domain.ChunkID(docID, seq),
		DocumentID:    docID,
		DocumentTitle: "Doc " + docID,
		SequenceIndex: seq,
		Text:          text,
		TokenCount:    len(text) / 4,
	}
}

func testCandidate(docID string, seq int, sem, kw float64, fetched time.Time) domain.Candidate {
	return domain.Candidate{
		Chunk:         testChunk(docID, seq, "chunk text "+domain.ChunkID(docID, seq)),
		SemanticScore: sem,
		KeywordScore:  kw,
		DocFetchedAt:  fetched,
	}
}
