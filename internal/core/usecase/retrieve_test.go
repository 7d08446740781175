package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRetrieveFusesWeightedScores(t *testing.T) {
	fetched := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	snap := &snapshotFake{
		semantic: func(_ []float32, _ int) []domain.Candidate {
			return []domain.Candidate{
				testCandidate("a", 0, 0.9, 0, fetched),
				testCandidate("b", 0, 0.5, 0, fetched),
				testCandidate("c", 0, 0.1, 0, fetched),
			}
		},
		keyword: func(_ string, _ int) []domain.Candidate {
			return []domain.Candidate{
				testCandidate("c", 0, 0, 4, fetched),
				testCandidate("b", 0, 0, 2, fetched),
				testCandidate("d", 0, 0, 0, fetched),
			}
		},
	}
	r := NewRetriever(&embedderFake{}, &providerFake{snap: snap}, &generatorFake{}, RetrieveConfig{TopK: 10}, discardLogger())

	got, _, err := r.Retrieve(context.Background(), "how do I reset my password")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 fused candidates, got %d", len(got))
	}

	// min-max normalization puts each list on [0,1]; with the default
	// 0.7/0.3 weights: a=0.7, b=0.35+0.15=0.5, c=0.3, d=0.
	wantOrder := []string{"a:0", "b:0", "c:0", "d:0"}
	wantScore := []float64{0.7, 0.5, 0.3, 0}
	for i, cand := range got {
		if cand.Chunk.ID != wantOrder[i] {
			t.Fatalf("rank %d: got chunk %s, want %s", i, cand.Chunk.ID, wantOrder[i])
		}
		if !almostEqual(cand.FusedScore, wantScore[i]) {
			t.Fatalf("rank %d (%s): fused score %v, want %v", i, cand.Chunk.ID, cand.FusedScore, wantScore[i])
		}
	}

	// a never appeared in the keyword list, d never in the semantic one
	if got[0].KeywordScore != 0 {
		t.Fatalf("chunk a keyword score = %v, want 0", got[0].KeywordScore)
	}
	if got[3].SemanticScore != 0 {
		t.Fatalf("chunk d semantic score = %v, want 0", got[3].SemanticScore)
	}
}

func TestRetrieveDegradesWithoutKeywordIndex(t *testing.T) {
	fetched := time.Now()
	snap := &snapshotFake{
		semantic: func(_ []float32, _ int) []domain.Candidate {
			return []domain.Candidate{
				testCandidate("a", 0, 0.8, 0, fetched),
				testCandidate("b", 0, 0.2, 0, fetched),
			}
		},
		// keyword hook absent: nothing to rank on the sparse side
	}
	r := NewRetriever(&embedderFake{}, &providerFake{snap: snap}, &generatorFake{}, RetrieveConfig{}, discardLogger())

	got, _, err := r.Retrieve(context.Background(), "vpn setup")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 || got[0].Chunk.ID != "a:0" {
		t.Fatalf("semantic-only ranking wrong: %+v", got)
	}
	if !almostEqual(got[0].FusedScore, 0.7) {
		t.Fatalf("top fused score = %v, want 0.7 (semantic weight only)", got[0].FusedScore)
	}
}

func TestRetrieveBreaksTiesByRecencyThenSequence(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	snap := &snapshotFake{
		semantic: func(_ []float32, _ int) []domain.Candidate {
			// equal raw scores normalize to equal fused scores
			return []domain.Candidate{
				testCandidate("old", 3, 0.5, 0, older),
				testCandidate("new", 7, 0.5, 0, newer),
				testCandidate("new", 2, 0.5, 0, newer),
			}
		},
	}
	r := NewRetriever(&embedderFake{}, &providerFake{snap: snap}, &generatorFake{}, RetrieveConfig{}, discardLogger())

	got, _, err := r.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	wantOrder := []string{"new:2", "new:7", "old:3"}
	for i, cand := range got {
		if cand.Chunk.ID != wantOrder[i] {
			t.Fatalf("rank %d: got %s, want %s (order: %+v)", i, cand.Chunk.ID, wantOrder[i], got)
		}
	}
}

func TestRetrieveTrimsToTopK(t *testing.T) {
	fetched := time.Now()
	snap := &snapshotFake{
		semantic: func(_ []float32, _ int) []domain.Candidate {
			out := make([]domain.Candidate, 0, 10)
			for i := 0; i < 10; i++ {
				out = append(out, testCandidate("doc", i, float64(10-i), 0, fetched))
			}
			return out
		},
	}
	r := NewRetriever(&embedderFake{}, &providerFake{snap: snap}, &generatorFake{}, RetrieveConfig{TopK: 3}, discardLogger())

	got, _, err := r.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].FusedScore > got[i-1].FusedScore {
			t.Fatalf("ranking not descending at %d: %v > %v", i, got[i].FusedScore, got[i-1].FusedScore)
		}
	}
}

func TestRetrieveExpansionMergesByMaxScore(t *testing.T) {
	fetched := time.Now()
	emb := &embedderFake{
		vec: func(text string) []float32 {
			switch text {
			case "variant one":
				return []float32{2}
			case "variant two":
				return []float32{3}
			default:
				return []float32{1}
			}
		},
	}
	snap := &snapshotFake{
		semantic: func(vec []float32, _ int) []domain.Candidate {
			switch vec[0] {
			case 2:
				// b ranks at the bottom here and normalizes to zero
				return []domain.Candidate{
					testCandidate("a", 0, 0.9, 0, fetched),
					testCandidate("b", 0, 0.1, 0, fetched),
				}
			case 3:
				return []domain.Candidate{testCandidate("b", 0, 0.8, 0, fetched)}
			default:
				return []domain.Candidate{testCandidate("a", 0, 0.5, 0, fetched)}
			}
		},
	}
	gen := &generatorFake{variants: []string{"variant one", "variant two"}}
	r := NewRetriever(emb, &providerFake{snap: snap}, gen, RetrieveConfig{ExpansionVariants: 2}, discardLogger())

	got, _, err := r.Retrieve(context.Background(), "original question")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(emb.queries) != 3 {
		t.Fatalf("embedded %d queries, want 3 (original + 2 variants): %v", len(emb.queries), emb.queries)
	}
	scores := map[string]float64{}
	for _, cand := range got {
		scores[cand.Chunk.ID] = cand.FusedScore
	}
	// b scored zero under "variant one" but topped "variant two"; the merge
	// keeps its best showing
	if !almostEqual(scores["b:0"], 0.7) {
		t.Fatalf("chunk b fused score = %v, want 0.7 from its best variant", scores["b:0"])
	}
	if !almostEqual(scores["a:0"], 0.7) {
		t.Fatalf("chunk a fused score = %v, want 0.7", scores["a:0"])
	}
}

func TestRetrieveFallsBackWhenExpansionFails(t *testing.T) {
	fetched := time.Now()
	emb := &embedderFake{}
	snap := &snapshotFake{
		semantic: func(_ []float32, _ int) []domain.Candidate {
			return []domain.Candidate{testCandidate("a", 0, 1, 0, fetched)}
		},
	}
	gen := &generatorFake{variantsErr: errors.New("model offline")}
	r := NewRetriever(emb, &providerFake{snap: snap}, gen, RetrieveConfig{ExpansionVariants: 3}, discardLogger())

	got, _, err := r.Retrieve(context.Background(), "plain query")
	if err != nil {
		t.Fatalf("Retrieve should fall back to the plain query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if len(emb.queries) != 1 || emb.queries[0] != "plain query" {
		t.Fatalf("embedded queries = %v, want only the original", emb.queries)
	}
}

func TestRetrieveIndexUnavailable(t *testing.T) {
	provErr := domain.WrapError(domain.ErrIndexUnavailable, "current snapshot", errors.New("no snapshot published"))
	r := NewRetriever(&embedderFake{}, &providerFake{err: provErr}, &generatorFake{}, RetrieveConfig{}, discardLogger())

	_, _, err := r.Retrieve(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	emb := &embedderFake{err: errors.New("connection refused")}
	snap := &snapshotFake{}
	r := NewRetriever(emb, &providerFake{snap: snap}, &generatorFake{}, RetrieveConfig{}, discardLogger())

	_, _, err := r.Retrieve(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}
