package domain

import "time"

// Candidate is a transient per-query retrieval result. SemanticScore and
// KeywordScore are the normalized per-index contributions; FusedScore is the
// weighted combination the final ranking is built from.
type Candidate struct {
	Chunk         Chunk     `json:"chunk"`
	SemanticScore float64   `json:"semantic_score"`
	KeywordScore  float64   `json:"keyword_score"`
	FusedScore    float64   `json:"fused_score"`
	DocFetchedAt  time.Time `json:"-"`
}

// Answer is the user-facing result of one question.
type Answer struct {
	Text                string  `json:"text"`
	Sources             []Chunk `json:"sources"`
	Conversational      bool    `json:"conversational"`
	InsufficientContext bool    `json:"insufficient_context"`
}

// FusionWeights controls how much each index contributes to the fused score.
// Weights must sum to 1.
type FusionWeights struct {
	Semantic float64
	Keyword  float64
}

func (w FusionWeights) Valid() bool {
	if w.Semantic < 0 || w.Keyword < 0 {
		return false
	}
	sum := w.Semantic + w.Keyword
	return sum > 0.999 && sum < 1.001
}

// DefaultFusionWeights favors the semantic signal.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Semantic: 0.7, Keyword: 0.3}
}
