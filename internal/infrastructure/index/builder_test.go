package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
)

func embeddedTexts(f *embedderFake) []string {
	out := []string{}
	for _, batch := range f.batches {
		out = append(out, batch...)
	}
	return out
}

func TestBuilderReusesCachedVectors(t *testing.T) {
	docs := []domain.Document{{ID: "d1", Content: "alpha\nbeta"}}
	store := NewStore()
	embedder := &embedderFake{}
	builder := NewBuilder(chunkerFake{}, embedder, store, BuilderConfig{KeywordEnabled: true}, testLogger())

	stats, err := builder.BuildAndPublish(context.Background(), docs, false)
	if err != nil {
		t.Fatalf("first build error = %v", err)
	}
	if stats.EmbeddedChunks != 2 || stats.CachedChunks != 0 {
		t.Fatalf("first build stats = %+v", stats)
	}

	// second build with one changed chunk re-embeds only the new text
	docs[0].Content = "alpha\ngamma"
	stats, err = builder.BuildAndPublish(context.Background(), docs, false)
	if err != nil {
		t.Fatalf("second build error = %v", err)
	}
	if stats.CachedChunks != 1 || stats.EmbeddedChunks != 1 {
		t.Fatalf("second build stats = %+v", stats)
	}
	if got := embeddedTexts(embedder); got[len(got)-1] != "gamma" {
		t.Fatalf("expected only 'gamma' re-embedded, got %v", got)
	}
}

func TestBuilderForceRebuildDiscardsCache(t *testing.T) {
	docs := []domain.Document{{ID: "d1", Content: "alpha\nbeta"}}
	store := NewStore()
	embedder := &embedderFake{}
	builder := NewBuilder(chunkerFake{}, embedder, store, BuilderConfig{KeywordEnabled: true}, testLogger())

	if _, err := builder.BuildAndPublish(context.Background(), docs, false); err != nil {
		t.Fatalf("first build error = %v", err)
	}
	stats, err := builder.BuildAndPublish(context.Background(), docs, true)
	if err != nil {
		t.Fatalf("forced build error = %v", err)
	}
	if stats.CachedChunks != 0 || stats.EmbeddedChunks != 2 {
		t.Fatalf("forced build stats = %+v", stats)
	}
}

func TestBuilderSkipsDocumentsWithoutChunks(t *testing.T) {
	docs := []domain.Document{
		{ID: "empty", Content: ""},
		{ID: "ok", Content: "some text"},
	}
	store := NewStore()
	builder := NewBuilder(chunkerFake{}, &embedderFake{}, store, BuilderConfig{KeywordEnabled: true}, testLogger())

	stats, err := builder.BuildAndPublish(context.Background(), docs, false)
	if err != nil {
		t.Fatalf("build error = %v", err)
	}
	if stats.SkippedDocs != 1 || stats.Chunks != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestBuilderPersistAndRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	docs := []domain.Document{{ID: "d1", FetchedAt: time.Now().UTC(), Content: "alpha\nbeta"}}

	store := NewStore()
	embedder := &embedderFake{}
	builder := NewBuilder(chunkerFake{}, embedder, store, BuilderConfig{KeywordEnabled: true, SnapshotPath: path}, testLogger())
	if _, err := builder.BuildAndPublish(context.Background(), docs, false); err != nil {
		t.Fatalf("build error = %v", err)
	}

	// a fresh process restores without re-embedding anything
	store2 := NewStore()
	embedder2 := &embedderFake{}
	builder2 := NewBuilder(chunkerFake{}, embedder2, store2, BuilderConfig{KeywordEnabled: true, SnapshotPath: path}, testLogger())
	if err := builder2.RestoreFromDisk(); err != nil {
		t.Fatalf("RestoreFromDisk() error = %v", err)
	}
	if embedder2.calls != 0 {
		t.Fatalf("restore should not embed, got %d calls", embedder2.calls)
	}

	snap, err := store2.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if snap.ChunkCount() != 2 {
		t.Fatalf("restored snapshot has %d chunks, want 2", snap.ChunkCount())
	}
	if got := snap.KeywordSearch("beta", 2); len(got) == 0 {
		t.Fatalf("restored snapshot should serve keyword search")
	}

	// and the seeded cache keeps the next build cheap
	stats, err := builder2.BuildAndPublish(context.Background(), docs, false)
	if err != nil {
		t.Fatalf("rebuild after restore error = %v", err)
	}
	if stats.EmbeddedChunks != 0 || stats.CachedChunks != 2 {
		t.Fatalf("rebuild after restore stats = %+v", stats)
	}
}

type renamedEmbedder struct{ embedderFake }

func (renamedEmbedder) ModelID() string { return "different-model" }

func TestBuilderRestoreRejectsStaleManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	docs := []domain.Document{{ID: "d1", Content: "alpha"}}

	builder := NewBuilder(chunkerFake{}, &embedderFake{}, NewStore(), BuilderConfig{SnapshotPath: path}, testLogger())
	if _, err := builder.BuildAndPublish(context.Background(), docs, false); err != nil {
		t.Fatalf("build error = %v", err)
	}

	store2 := NewStore()
	builder2 := NewBuilder(chunkerFake{}, &renamedEmbedder{}, store2, BuilderConfig{SnapshotPath: path}, testLogger())
	if err := builder2.RestoreFromDisk(); err == nil {
		t.Fatalf("expected stale snapshot rejection")
	}
	if _, err := store2.Current(); !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("stale restore must not publish a snapshot, got %v", err)
	}
}
