package ports

import (
	"context"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
)

// QuestionService is the inbound contract for question answering.
type QuestionService interface {
	Ask(ctx context.Context, userID, question string) (*domain.Answer, error)
	ResetMemory(userID string)
}

// IndexRebuilder is the inbound contract for corpus re-ingestion.
type IndexRebuilder interface {
	Rebuild(ctx context.Context, force bool) (IndexStats, error)
}
