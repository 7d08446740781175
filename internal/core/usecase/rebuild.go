package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
	"github.com/atlasdocs/kb-assistant/internal/core/ports"
)

// RebuildService re-ingests the corpus and republishes the index: pull the
// normalized documents, replace the stored corpus wholesale, then build and
// swap a fresh snapshot.
type RebuildService struct {
	source  ports.DocumentSource
	corpus  ports.CorpusRepository
	indexer ports.IndexWriter
	log     *slog.Logger
}

func NewRebuildService(
	source ports.DocumentSource,
	corpus ports.CorpusRepository,
	indexer ports.IndexWriter,
	log *slog.Logger,
) *RebuildService {
	return &RebuildService{
		source:  source,
		corpus:  corpus,
		indexer: indexer,
		log:     log,
	}
}

func (s *RebuildService) Rebuild(ctx context.Context, force bool) (ports.IndexStats, error) {
	docs, err := s.source.LoadDocuments(ctx)
	fromSource := true
	if err != nil {
		// The scrape output may be temporarily missing; the stored corpus
		// still lets us serve a fresh snapshot.
		s.log.Warn("document source unavailable, rebuilding from stored corpus", "error", err)
		fromSource = false
		docs, err = s.corpus.ListAll(ctx)
		if err != nil {
			return ports.IndexStats{}, fmt.Errorf("load stored corpus: %w", err)
		}
	}

	valid := make([]domain.Document, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		if err := validateDocument(doc); err != nil {
			skipped++
			s.log.Warn("skipping document", "document_id", doc.ID, "source_uri", doc.SourceURI, "error", err)
			continue
		}
		valid = append(valid, doc)
	}

	if fromSource {
		if err := s.corpus.ReplaceAll(ctx, valid); err != nil {
			return ports.IndexStats{}, fmt.Errorf("replace corpus: %w", err)
		}
	}

	stats, err := s.indexer.BuildAndPublish(ctx, valid, force)
	if err != nil {
		return stats, fmt.Errorf("build index: %w", err)
	}
	stats.SkippedDocs += skipped
	return stats, nil
}

func validateDocument(doc domain.Document) error {
	if doc.ID == "" {
		return domain.WrapError(domain.ErrInvalidDocument, "validate document", fmt.Errorf("missing id"))
	}
	if strings.TrimSpace(doc.Content) == "" {
		return domain.WrapError(domain.ErrInvalidDocument, "validate document", fmt.Errorf("empty content"))
	}
	return nil
}
