package domain

import (
	"fmt"
	"time"
)

// Document is one normalized article from the scraped corpus. Documents are
// immutable once ingested and replaced wholesale on re-scrape.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	SourceURI   string    `json:"source_uri"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Chunk is the retrieval unit: an ordered slice of one document's text.
// Sequence indexes within a document are contiguous starting at 0.
type Chunk struct {
	ID            string `json:"id"`
	DocumentID    string `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	SequenceIndex int    `json:"sequence_index"`
	Text          string `json:"text"`
	TokenCount    int    `json:"token_count"`
}

// ChunkID derives the stable chunk identifier from its position. A chunk is
// uniquely identified by (document_id, sequence_index).
func ChunkID(documentID string, sequenceIndex int) string {
	return fmt.Sprintf("%s:%d", documentID, sequenceIndex)
}
