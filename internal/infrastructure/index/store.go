package index

import (
	"errors"
	"sync/atomic"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
	"github.com/atlasdocs/kb-assistant/internal/core/ports"
)

// Store holds the active snapshot reference. Publish swaps it atomically, so
// in-flight queries keep reading the snapshot they started with and never
// observe a half-built index.
type Store struct {
	active atomic.Pointer[Snapshot]
}

func NewStore() *Store { return &Store{} }

// Current returns the active snapshot, or ErrIndexUnavailable before the
// first publish.
func (s *Store) Current() (ports.IndexSnapshot, error) {
	snap := s.active.Load()
	if snap == nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "index store", errors.New("no snapshot published"))
	}
	return snap, nil
}

func (s *Store) Publish(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.active.Store(snap)
}
