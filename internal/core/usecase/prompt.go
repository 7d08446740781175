package usecase

import (
	"fmt"
	"strings"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
)

const answerInstructions = `You are a helpful assistant for the internal knowledge base. Answer the user's question using the provided documentation.

- If the question is vague or lacks context, ask for clarification
- Be concise and easy to read on mobile
- List steps clearly if applicable
- Don't mention documents or sources unless specifically asked`

const insufficientContextNote = `No relevant documentation was found for this question. Say that you don't know and suggest rephrasing; do not invent an answer.`

func buildAnswerPrompt(question string, history []domain.Turn, chunks []domain.Chunk, insufficient bool) string {
	var b strings.Builder
	b.WriteString(answerInstructions)
	if len(history) > 0 {
		b.WriteString("\n- Use the chat history to provide contextual responses")
	}
	b.WriteString("\n\n")

	if len(history) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "Human: %s\nAssistant: %s\n", turn.Question, turn.Answer)
		}
		b.WriteString("\n")
	}

	b.WriteString("Documentation:\n")
	if insufficient || len(chunks) == 0 {
		b.WriteString(insufficientContextNote)
		b.WriteString("\n")
	} else {
		for i, chunk := range chunks {
			fmt.Fprintf(&b, "%d. %s\n\n", i+1, strings.TrimSpace(chunk.Text))
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n\nAnswer:", strings.TrimSpace(question))
	return b.String()
}

// condenseQuery folds the recent window into the retrieval query so follow-up
// questions that lean on pronouns still hit the right chunks.
func condenseQuery(history []domain.Turn, question string) string {
	if len(history) == 0 {
		return question
	}
	var b strings.Builder
	for _, turn := range history {
		b.WriteString(turn.Question)
		b.WriteString("\n")
		b.WriteString(turn.Answer)
		b.WriteString("\n")
	}
	b.WriteString(question)
	return b.String()
}
