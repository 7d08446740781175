package usecase

import (
	"sort"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
	"github.com/atlasdocs/kb-assistant/internal/core/ports"
)

type ExpandConfig struct {
	Window      int // chunks pulled on each side of a candidate
	TokenBudget int // total token cap for the expanded context, 0 = unlimited
}

func (c ExpandConfig) normalize() ExpandConfig {
	out := c
	if out.Window < 0 {
		out.Window = 0
	}
	if out.TokenBudget < 0 {
		out.TokenBudget = 0
	}
	return out
}

// expandNeighbors augments ranked candidates with adjacent chunks from the
// same document so the reader sees coherent prose instead of fragments.
// Documents appear in candidate-rank order; within one document chunks appear
// in ascending sequence order, deduplicated. When the token budget would be
// exceeded, whole lower-ranked candidate groups are dropped — never a partial
// chunk.
func expandNeighbors(snap ports.IndexSnapshot, candidates []domain.Candidate, cfg ExpandConfig) []domain.Chunk {
	cfg = cfg.normalize()
	if len(candidates) == 0 {
		return nil
	}

	included := make(map[string]map[int]struct{}, len(candidates))
	docOrder := make([]string, 0, len(candidates))
	usedTokens := 0

	for _, cand := range candidates {
		docID := cand.Chunk.DocumentID
		seq := cand.Chunk.SequenceIndex

		group := make([]domain.Chunk, 0, 2*cfg.Window+1)
		groupTokens := 0
		for offset := -cfg.Window; offset <= cfg.Window; offset++ {
			neighbor, ok := snap.ChunkAt(docID, seq+offset)
			if !ok {
				continue
			}
			if _, dup := included[docID][neighbor.SequenceIndex]; dup {
				continue
			}
			group = append(group, neighbor)
			groupTokens += neighbor.TokenCount
		}
		if len(group) == 0 {
			continue
		}
		if cfg.TokenBudget > 0 && usedTokens+groupTokens > cfg.TokenBudget {
			if usedTokens == 0 {
				// even the best candidate overflows alone: keep just its own
				// chunk rather than answering from nothing
				group = group[:0]
				if own, ok := snap.ChunkAt(docID, seq); ok {
					group = append(group, own)
					groupTokens = own.TokenCount
				}
			} else {
				break
			}
		}

		if _, ok := included[docID]; !ok {
			included[docID] = make(map[int]struct{}, len(group))
			docOrder = append(docOrder, docID)
		}
		for _, chunk := range group {
			included[docID][chunk.SequenceIndex] = struct{}{}
		}
		usedTokens += groupTokens
	}

	out := make([]domain.Chunk, 0, 16)
	for _, docID := range docOrder {
		seqs := make([]int, 0, len(included[docID]))
		for seq := range included[docID] {
			seqs = append(seqs, seq)
		}
		sort.Ints(seqs)
		for _, seq := range seqs {
			chunk, ok := snap.ChunkAt(docID, seq)
			if !ok {
				continue
			}
			out = append(out, chunk)
		}
	}
	return out
}
