package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDocument marks a malformed or empty document during index
	// build; the document is skipped and the build continues.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrIndexUnavailable marks a missing or unusable index snapshot.
	// Semantic unavailability is fatal to retrieval; keyword unavailability
	// degrades to semantic-only ranking.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrEmbedding marks a failure to vectorize text after retries.
	ErrEmbedding = errors.New("embedding failure")

	// ErrGeneration marks a failed or timed-out generation call.
	ErrGeneration = errors.New("generation failure")

	// ErrMemoryCorrupted marks a conversation window invariant violation.
	// It indicates a bug and is never silently truncated away.
	ErrMemoryCorrupted = errors.New("conversation memory corrupted")

	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
