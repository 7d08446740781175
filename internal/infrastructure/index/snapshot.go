package index

import (
	"math"
	"sort"
	"time"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
)

const (
	defaultBM25K1 = 1.2
	defaultBM25B  = 0.75
)

type posting struct {
	Ord  int32
	Freq int32
}

// Snapshot is one immutable point-in-time view of the dual index: the chunk
// table, the dense vector table and the BM25 postings all cover exactly the
// same chunk set. Snapshots are built off to the side and published through an
// atomic swap, so readers never need a lock.
type Snapshot struct {
	chunks   []domain.Chunk
	vectors  [][]float32
	dim      int
	byKey    map[string]int
	docTimes map[string]time.Time

	postings   map[string][]posting
	chunkLens  []int
	avgLen     float64
	k1, b      float64
	keywordOn  bool
	embedModel string
	chunkCfg   string
}

func (s *Snapshot) ChunkCount() int { return len(s.chunks) }

func (s *Snapshot) Dimension() int { return s.dim }

// ChunkAt returns the chunk at (documentID, sequenceIndex) if it is indexed.
func (s *Snapshot) ChunkAt(documentID string, sequenceIndex int) (domain.Chunk, bool) {
	ord, ok := s.byKey[domain.ChunkID(documentID, sequenceIndex)]
	if !ok {
		return domain.Chunk{}, false
	}
	return s.chunks[ord], true
}

// SemanticSearch ranks chunks by cosine similarity to the query vector.
// Vectors are L2-normalized at build time, so the dot product suffices.
func (s *Snapshot) SemanticSearch(queryVector []float32, limit int) []domain.Candidate {
	if len(queryVector) != s.dim || len(s.chunks) == 0 {
		return nil
	}
	q := normalize(queryVector)

	type scored struct {
		ord   int
		score float64
	}
	all := make([]scored, len(s.vectors))
	for i, v := range s.vectors {
		all[i] = scored{ord: i, score: dot(v, q)}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].ord < all[j].ord
	})

	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]domain.Candidate, 0, limit)
	for _, sc := range all[:limit] {
		out = append(out, s.candidate(sc.ord, sc.score, 0))
	}
	return out
}

// KeywordSearch ranks chunks with BM25: saturating term frequency, length
// penalty, and inverse document frequency for rare terms. Returns nil when
// the keyword side of the snapshot is disabled or empty.
func (s *Snapshot) KeywordSearch(queryText string, limit int) []domain.Candidate {
	if !s.keywordOn || len(s.postings) == 0 {
		return nil
	}
	terms := tokenize(queryText)
	if len(terms) == 0 {
		return nil
	}

	n := float64(len(s.chunks))
	scores := make(map[int]float64, 64)
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		plist, ok := s.postings[term]
		if !ok {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1.0 + (n-df+0.5)/(df+0.5))
		for _, p := range plist {
			tf := float64(p.Freq)
			norm := s.k1 * (1.0 - s.b + s.b*float64(s.chunkLens[p.Ord])/s.avgLen)
			scores[int(p.Ord)] += idf * tf * (s.k1 + 1.0) / (tf + norm)
		}
	}
	if len(scores) == 0 {
		return nil
	}

	type scored struct {
		ord   int
		score float64
	}
	all := make([]scored, 0, len(scores))
	for ord, score := range scores {
		all = append(all, scored{ord: ord, score: score})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].ord < all[j].ord
	})

	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]domain.Candidate, 0, limit)
	for _, sc := range all[:limit] {
		out = append(out, s.candidate(sc.ord, 0, sc.score))
	}
	return out
}

func (s *Snapshot) candidate(ord int, semantic, keyword float64) domain.Candidate {
	chunk := s.chunks[ord]
	return domain.Candidate{
		Chunk:         chunk,
		SemanticScore: semantic,
		KeywordScore:  keyword,
		DocFetchedAt:  s.docTimes[chunk.DocumentID],
	}
}

func buildPostings(chunks []domain.Chunk) (map[string][]posting, []int, float64) {
	postings := make(map[string][]posting, 1024)
	lens := make([]int, len(chunks))
	total := 0
	for ord, chunk := range chunks {
		terms := tokenize(chunk.Text)
		lens[ord] = len(terms)
		total += len(terms)

		freq := make(map[string]int32, len(terms))
		for _, term := range terms {
			freq[term]++
		}
		for term, tf := range freq {
			postings[term] = append(postings[term], posting{Ord: int32(ord), Freq: tf})
		}
	}
	avg := 1.0
	if len(chunks) > 0 && total > 0 {
		avg = float64(total) / float64(len(chunks))
	}
	return postings, lens, avg
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func normalize(v []float32) []float32 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	if norm > 0.999 && norm < 1.001 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
