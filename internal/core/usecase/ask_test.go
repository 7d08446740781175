package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
)

func newTestQAService(snap *snapshotFake, gen *generatorFake, mem *memoryFake, cfg AskConfig) *QAService {
	retriever := NewRetriever(&embedderFake{}, &providerFake{snap: snap}, gen, RetrieveConfig{}, discardLogger())
	return NewQAService(retriever, mem, gen, cfg, discardLogger())
}

func answerableSnapshot() *snapshotFake {
	snap := neighborSnapshot("kb", 4, 50)
	snap.semantic = func(_ []float32, _ int) []domain.Candidate {
		return []domain.Candidate{testCandidate("kb", 1, 0.9, 0, time.Now())}
	}
	return snap
}

func TestAskRejectsBlankInput(t *testing.T) {
	svc := newTestQAService(answerableSnapshot(), &generatorFake{}, newMemoryFake(), AskConfig{})

	if _, err := svc.Ask(context.Background(), "user-1", "   "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("blank question: expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Ask(context.Background(), "", "question"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("blank user id: expected ErrInvalidInput, got %v", err)
	}
}

func TestAskAnswersAndRemembersTurn(t *testing.T) {
	mem := newMemoryFake()
	gen := &generatorFake{answer: "Open settings and tap reset."}
	svc := newTestQAService(answerableSnapshot(), gen, mem, AskConfig{Expand: ExpandConfig{Window: 1}})

	ans, err := svc.Ask(context.Background(), "user-1", "How do I reset my password?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "Open settings and tap reset." {
		t.Fatalf("answer text = %q", ans.Text)
	}
	if ans.Conversational {
		t.Fatal("first question must not be conversational")
	}
	if ans.InsufficientContext {
		t.Fatal("context was available, insufficient flag should be false")
	}
	if len(ans.Sources) != 3 {
		t.Fatalf("got %d source chunks, want candidate plus both neighbors", len(ans.Sources))
	}

	turns := mem.turns["user-1"]
	if len(turns) != 1 {
		t.Fatalf("memory has %d turns, want 1", len(turns))
	}
	if turns[0].Question != "How do I reset my password?" || turns[0].Answer != ans.Text {
		t.Fatalf("stored turn mismatch: %+v", turns[0])
	}
}

func TestAskSecondQuestionUsesHistoryInRetrieval(t *testing.T) {
	mem := newMemoryFake()
	gen := &generatorFake{answer: "Yes, through the VPN portal."}
	emb := &embedderFake{}
	snap := answerableSnapshot()
	retriever := NewRetriever(emb, &providerFake{snap: snap}, gen, RetrieveConfig{}, discardLogger())
	svc := NewQAService(retriever, mem, gen, AskConfig{}, discardLogger())

	if _, err := svc.Ask(context.Background(), "user-1", "How do I connect to the VPN?"); err != nil {
		t.Fatalf("first Ask: %v", err)
	}
	ans, err := svc.Ask(context.Background(), "user-1", "Does it work from home?")
	if err != nil {
		t.Fatalf("second Ask: %v", err)
	}
	if !ans.Conversational {
		t.Fatal("second question must be conversational")
	}

	lastQuery := emb.queries[len(emb.queries)-1]
	if !strings.Contains(lastQuery, "How do I connect to the VPN?") {
		t.Fatalf("retrieval query does not carry the prior question: %q", lastQuery)
	}
	if !strings.Contains(lastQuery, "Does it work from home?") {
		t.Fatalf("retrieval query does not carry the follow-up: %q", lastQuery)
	}

	lastPrompt := gen.prompts[len(gen.prompts)-1]
	if !strings.Contains(lastPrompt, "Previous conversation:") {
		t.Fatalf("prompt is missing the conversation history:\n%s", lastPrompt)
	}
	if !strings.Contains(lastPrompt, "Yes, through the VPN portal.") {
		t.Fatalf("prompt is missing the prior answer:\n%s", lastPrompt)
	}
}

func TestAskFlagsInsufficientContext(t *testing.T) {
	snap := answerableSnapshot()
	gen := &generatorFake{answer: "I don't know."}
	svc := newTestQAService(snap, gen, newMemoryFake(), AskConfig{RelevanceFloor: 2})

	ans, err := svc.Ask(context.Background(), "user-1", "What is the meaning of life?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.InsufficientContext {
		t.Fatal("every candidate is below the floor, insufficient flag should be set")
	}
	if len(ans.Sources) != 0 {
		t.Fatalf("got %d sources, want none", len(ans.Sources))
	}
	if !strings.Contains(gen.prompts[0], "Say that you don't know") {
		t.Fatalf("prompt is missing the no-context instruction:\n%s", gen.prompts[0])
	}
}

func TestAskGenerationFailureReturnsApology(t *testing.T) {
	mem := newMemoryFake()
	gen := &generatorFake{answerErr: errors.New("model timeout")}
	svc := newTestQAService(answerableSnapshot(), gen, mem, AskConfig{})

	ans, err := svc.Ask(context.Background(), "user-1", "How do I book a meeting room?")
	if err != nil {
		t.Fatalf("generation failure should degrade, not error: %v", err)
	}
	if ans.Text != fallbackApology {
		t.Fatalf("answer text = %q, want the fallback apology", ans.Text)
	}
	if len(mem.turns["user-1"]) != 0 {
		t.Fatal("failed turn must not be remembered")
	}
}

func TestAskCanceledContextDiscardsTurn(t *testing.T) {
	mem := newMemoryFake()
	gen := &generatorFake{answerErr: context.Canceled}
	svc := newTestQAService(answerableSnapshot(), gen, mem, AskConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Ask(ctx, "user-1", "Where is the office?")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(mem.turns["user-1"]) != 0 {
		t.Fatal("canceled turn must not be remembered")
	}
}

func TestAskPropagatesMemoryCorruption(t *testing.T) {
	mem := newMemoryFake()
	mem.windowErr = domain.WrapError(domain.ErrMemoryCorrupted, "window", errors.New("size exceeds capacity"))
	svc := newTestQAService(answerableSnapshot(), &generatorFake{}, mem, AskConfig{})

	if _, err := svc.Ask(context.Background(), "user-1", "q"); !domain.IsKind(err, domain.ErrMemoryCorrupted) {
		t.Fatalf("expected ErrMemoryCorrupted, got %v", err)
	}
}

func TestResetMemoryClearsWindow(t *testing.T) {
	mem := newMemoryFake()
	svc := newTestQAService(answerableSnapshot(), &generatorFake{}, mem, AskConfig{})

	if _, err := svc.Ask(context.Background(), "user-1", "first question"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	svc.ResetMemory("user-1")
	if len(mem.turns["user-1"]) != 0 {
		t.Fatal("reset did not clear the window")
	}

	ans, err := svc.Ask(context.Background(), "user-1", "second question")
	if err != nil {
		t.Fatalf("Ask after reset: %v", err)
	}
	if ans.Conversational {
		t.Fatal("question after reset must start a fresh conversation")
	}
}
