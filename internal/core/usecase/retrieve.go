package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
	"github.com/atlasdocs/kb-assistant/internal/core/ports"
)

type RetrieveConfig struct {
	TopK              int
	CandidatePool     int // per-index search depth before fusion
	Weights           domain.FusionWeights
	ExpansionVariants int // paraphrases per query, 0 disables expansion
}

func (c RetrieveConfig) normalize() RetrieveConfig {
	out := c
	if out.TopK <= 0 {
		out.TopK = 5
	}
	if out.CandidatePool < out.TopK {
		out.CandidatePool = out.TopK * 6
	}
	if !out.Weights.Valid() {
		out.Weights = domain.DefaultFusionWeights()
	}
	if out.ExpansionVariants < 0 {
		out.ExpansionVariants = 0
	}
	return out
}

// Retriever fuses semantic and keyword rankings from one index snapshot into
// a single ordered candidate list.
type Retriever struct {
	embedder  ports.Embedder
	provider  ports.IndexProvider
	generator ports.Generator
	cfg       RetrieveConfig
	log       *slog.Logger
}

func NewRetriever(
	embedder ports.Embedder,
	provider ports.IndexProvider,
	generator ports.Generator,
	cfg RetrieveConfig,
	log *slog.Logger,
) *Retriever {
	return &Retriever{
		embedder:  embedder,
		provider:  provider,
		generator: generator,
		cfg:       cfg.normalize(),
		log:       log,
	}
}

// Retrieve returns the fused top-k candidates for query, together with the
// snapshot they were drawn from so follow-up lookups (neighbor expansion) see
// the same point-in-time chunk set.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Candidate, ports.IndexSnapshot, error) {
	snap, err := r.provider.Current()
	if err != nil {
		return nil, nil, err
	}

	variants := []string{query}
	if r.cfg.ExpansionVariants > 0 {
		more, err := r.generator.GenerateVariants(ctx, query, r.cfg.ExpansionVariants)
		if err != nil {
			// Expansion is a recall optimization; fall back to the plain query.
			r.log.Warn("query expansion failed", "error", err)
		} else {
			variants = append(variants, more...)
		}
	}

	best := make(map[string]domain.Candidate, r.cfg.CandidatePool)
	for _, variant := range variants {
		fused, err := r.retrieveOne(ctx, snap, variant)
		if err != nil {
			if len(variants) == 1 {
				return nil, nil, err
			}
			r.log.Warn("retrieval variant failed", "variant", variant, "error", err)
			continue
		}
		for _, cand := range fused {
			prev, ok := best[cand.Chunk.ID]
			if !ok || cand.FusedScore > prev.FusedScore {
				best[cand.Chunk.ID] = cand
			}
		}
	}
	if len(best) == 0 && len(variants) > 1 {
		// every variant failed, including the original query
		if _, err := r.retrieveOne(ctx, snap, query); err != nil {
			return nil, nil, err
		}
	}

	merged := make([]domain.Candidate, 0, len(best))
	for _, cand := range best {
		merged = append(merged, cand)
	}
	sortCandidates(merged)

	if len(merged) > r.cfg.TopK {
		merged = merged[:r.cfg.TopK]
	}
	return merged, snap, nil
}

func (r *Retriever) retrieveOne(ctx context.Context, snap ports.IndexSnapshot, query string) ([]domain.Candidate, error) {
	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed query", err)
	}

	semantic := snap.SemanticSearch(queryVector, r.cfg.CandidatePool)
	keyword := snap.KeywordSearch(query, r.cfg.CandidatePool)
	if len(keyword) == 0 {
		// semantic-only ranking still serves the request
		r.log.Warn("keyword index empty or unavailable, degrading to semantic-only")
	}

	return fuseCandidates(semantic, keyword, r.cfg.Weights), nil
}

// fuseCandidates min-max normalizes each score list to [0,1] and combines
// them with the configured weights. A chunk missing from one list contributes
// zero on that side.
func fuseCandidates(semantic, keyword []domain.Candidate, weights domain.FusionWeights) []domain.Candidate {
	normSem := normalizeScores(semantic, func(c domain.Candidate) float64 { return c.SemanticScore })
	normKw := normalizeScores(keyword, func(c domain.Candidate) float64 { return c.KeywordScore })

	acc := make(map[string]domain.Candidate, len(semantic)+len(keyword))
	for i, cand := range semantic {
		cand.SemanticScore = normSem[i]
		cand.KeywordScore = 0
		acc[cand.Chunk.ID] = cand
	}
	for i, cand := range keyword {
		merged, ok := acc[cand.Chunk.ID]
		if !ok {
			merged = cand
			merged.SemanticScore = 0
		}
		merged.KeywordScore = normKw[i]
		acc[merged.Chunk.ID] = merged
	}

	out := make([]domain.Candidate, 0, len(acc))
	for _, cand := range acc {
		cand.FusedScore = weights.Semantic*cand.SemanticScore + weights.Keyword*cand.KeywordScore
		out = append(out, cand)
	}
	sortCandidates(out)
	return out
}

func normalizeScores(list []domain.Candidate, score func(domain.Candidate) float64) []float64 {
	if len(list) == 0 {
		return nil
	}
	min, max := score(list[0]), score(list[0])
	for _, c := range list[1:] {
		v := score(c)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	out := make([]float64, len(list))
	span := max - min
	for i, c := range list {
		v := score(c)
		if span <= 0 {
			if v > 0 {
				out[i] = 1
			}
			continue
		}
		out[i] = (v - min) / span
	}
	return out
}

// sortCandidates orders by fused score descending; ties break by document
// recency (newest first) then sequence index ascending, so results are
// deterministic.
func sortCandidates(list []domain.Candidate) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].FusedScore != list[j].FusedScore {
			return list[i].FusedScore > list[j].FusedScore
		}
		if !list[i].DocFetchedAt.Equal(list[j].DocFetchedAt) {
			return list[i].DocFetchedAt.After(list[j].DocFetchedAt)
		}
		if list[i].Chunk.SequenceIndex != list[j].Chunk.SequenceIndex {
			return list[i].Chunk.SequenceIndex < list[j].Chunk.SequenceIndex
		}
		return list[i].Chunk.DocumentID < list[j].Chunk.DocumentID
	})
}
