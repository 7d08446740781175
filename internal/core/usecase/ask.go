package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
	"github.com/atlasdocs/kb-assistant/internal/core/ports"
)

const fallbackApology = "Sorry, something went wrong while answering. Please try again in a moment."

type AskConfig struct {
	Expand         ExpandConfig
	RelevanceFloor float64
}

// QAService orchestrates question answering: retrieve, expand, generate,
// remember. Conversational mode is a pure function of memory state — it is
// used whenever the user already has turns in their window.
type QAService struct {
	retriever *Retriever
	memory    ports.ConversationMemory
	generator ports.Generator
	cfg       AskConfig
	log       *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]*sync.Mutex
}

func NewQAService(
	retriever *Retriever,
	memory ports.ConversationMemory,
	generator ports.Generator,
	cfg AskConfig,
	log *slog.Logger,
) *QAService {
	return &QAService{
		retriever: retriever,
		memory:    memory,
		generator: generator,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		inFlight:  make(map[string]*sync.Mutex),
	}
}

func (s *QAService) Ask(ctx context.Context, userID, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if userID == "" || question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("user id and question are required"))
	}

	// one in-flight question per user keeps the memory window consistent
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	history, err := s.memory.Window(userID)
	if err != nil {
		return nil, err
	}
	conversational := len(history) > 0

	retrievalQuery := question
	if conversational {
		retrievalQuery = condenseQuery(history, question)
	}

	candidates, snap, err := s.retriever.Retrieve(ctx, retrievalQuery)
	if err != nil {
		return nil, err
	}

	relevant := candidates[:0:0]
	for _, cand := range candidates {
		if cand.FusedScore >= s.cfg.RelevanceFloor {
			relevant = append(relevant, cand)
		}
	}

	contextChunks := expandNeighbors(snap, relevant, s.cfg.Expand)
	insufficient := len(contextChunks) == 0
	if insufficient {
		s.log.Warn("no context above relevance floor",
			"user_id", userID,
			"candidates", len(candidates),
			"floor", s.cfg.RelevanceFloor,
		)
	}

	// No index lock is held here: the snapshot is immutable and generation
	// may block for seconds.
	prompt := buildAnswerPrompt(question, history, contextChunks, insufficient)
	text, err := s.generator.GenerateAnswer(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			// superseded or canceled request: discard the turn whole
			return nil, ctx.Err()
		}
		s.log.Error("generation failed", "user_id", userID, "error", err)
		return &domain.Answer{
			Text:                fallbackApology,
			Conversational:      conversational,
			InsufficientContext: insufficient,
		}, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := s.memory.Append(userID, domain.Turn{
		UserID:   userID,
		Question: question,
		Answer:   text,
		AskedAt:  s.now().UTC(),
	}); err != nil {
		return nil, err
	}

	return &domain.Answer{
		Text:                text,
		Sources:             contextChunks,
		Conversational:      conversational,
		InsufficientContext: insufficient,
	}, nil
}

func (s *QAService) ResetMemory(userID string) {
	s.memory.Reset(userID)
}

func (s *QAService) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.inFlight[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.inFlight[userID] = lock
	}
	return lock
}
