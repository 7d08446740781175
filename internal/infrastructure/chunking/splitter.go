package chunking

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
)

// separators are tried coarsest-first; a finer one is used only where a piece
// still exceeds the chunk size.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// Splitter cuts document text into overlapping word-bounded chunks. Every
// chunk is a contiguous substring of the original text, so concatenating
// chunks with the overlap removed reproduces the document exactly.
type Splitter struct {
	chunkSize int // words per chunk
	overlap   int // words shared between adjacent chunks
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 300
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

// ConfigHash versions the chunk boundaries: a persisted snapshot built with a
// different configuration must not be reused.
func (s *Splitter) ConfigHash() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "size=%d;overlap=%d;seps=%s", s.chunkSize, s.overlap, strings.Join(separators, "|"))
	return fmt.Sprintf("%016x", h.Sum64())
}

func (s *Splitter) Split(doc domain.Document) []domain.Chunk {
	text := doc.Content
	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := s.refine(span{0, len(text)}, text, 0)

	out := make([]domain.Chunk, 0, 8)
	cur := span{pieces[0].start, pieces[0].start}
	curWords := 0

	emit := func() {
		chunkText := text[cur.start:cur.end]
		seq := len(out)
		out = append(out, domain.Chunk{
			ID:            domain.ChunkID(doc.ID, seq),
			DocumentID:    doc.ID,
			DocumentTitle: doc.Title,
			SequenceIndex: seq,
			Text:          chunkText,
			TokenCount:    countWords(chunkText),
		})
	}

	for _, p := range pieces {
		pw := countWords(text[p.start:p.end])
		if curWords > 0 && curWords+pw > s.chunkSize {
			emit()
			keep := s.overlap
			if keep > s.chunkSize-pw {
				// A large next piece leaves less room; shrink the
				// carried tail so the chunk bound holds.
				keep = s.chunkSize - pw
			}
			cur.start = tailWordsStart(text, cur.start, cur.end, keep)
			curWords = countWords(text[cur.start:cur.end])
		}
		cur.end = p.end
		curWords += pw
	}
	if curWords > 0 || len(out) == 0 {
		emit()
	}
	return out
}

type span struct {
	start, end int
}

// refine splits sp into pieces of at most chunkSize words each, using the
// separator ladder. Pieces keep their separators, so they tile the input.
func (s *Splitter) refine(sp span, text string, sepIdx int) []span {
	if countWords(text[sp.start:sp.end]) <= s.chunkSize {
		return []span{sp}
	}
	if sepIdx >= len(separators) {
		return s.runeFallback(sp, text)
	}

	sep := separators[sepIdx]
	parts := splitKeepingSeparator(sp, text, sep)
	if len(parts) == 1 {
		return s.refine(sp, text, sepIdx+1)
	}

	out := make([]span, 0, len(parts))
	for _, part := range parts {
		if countWords(text[part.start:part.end]) > s.chunkSize {
			out = append(out, s.refine(part, text, sepIdx+1)...)
			continue
		}
		out = append(out, part)
	}
	return out
}

// runeFallback cuts a separator-free run into fixed rune windows. Only
// reachable for degenerate inputs without any whitespace.
func (s *Splitter) runeFallback(sp span, text string) []span {
	window := s.chunkSize * 8
	out := make([]span, 0, 4)
	start := sp.start
	for start < sp.end {
		end := start
		for i := 0; i < window && end < sp.end; i++ {
			_, size := utf8.DecodeRuneInString(text[end:sp.end])
			end += size
		}
		out = append(out, span{start, end})
		start = end
	}
	return out
}

func splitKeepingSeparator(sp span, text string, sep string) []span {
	out := make([]span, 0, 8)
	start := sp.start
	for start < sp.end {
		idx := strings.Index(text[start:sp.end], sep)
		if idx < 0 {
			out = append(out, span{start, sp.end})
			break
		}
		end := start + idx + len(sep)
		out = append(out, span{start, end})
		start = end
	}
	if len(out) == 0 {
		out = append(out, sp)
	}
	return out
}

// tailWordsStart returns the offset where the last n words of text[start:end]
// begin, so the next chunk can carry that tail as overlap.
func tailWordsStart(text string, start, end, n int) int {
	if n <= 0 {
		return end
	}
	seen := 0
	inWord := false
	for i := end; i > start; {
		r, size := utf8.DecodeLastRuneInString(text[start:i])
		if isSpace(r) {
			if inWord {
				seen++
				if seen == n {
					return i
				}
				inWord = false
			}
		} else {
			inWord = true
		}
		i -= size
	}
	return start
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
