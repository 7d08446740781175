package memory

import (
	"fmt"
	"sync"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
)

const defaultWindowSize = 5

// Windows holds one bounded FIFO turn window per user, process-local only.
// Eviction is strict FIFO at size K with O(1) append; windows for different
// users never contend on the same lock.
type Windows struct {
	k int

	mu    sync.RWMutex
	users map[string]*userWindow
}

type userWindow struct {
	mu    sync.Mutex
	turns []domain.Turn
	head  int
	size  int
}

func New(k int) *Windows {
	if k <= 0 {
		k = defaultWindowSize
	}
	return &Windows{
		k:     k,
		users: make(map[string]*userWindow),
	}
}

func (m *Windows) Append(userID string, turn domain.Turn) error {
	w := m.window(userID, true)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.check(m.k); err != nil {
		return err
	}

	if w.size < m.k {
		w.turns[(w.head+w.size)%m.k] = turn
		w.size++
		return nil
	}
	// full: overwrite the oldest slot and advance
	w.turns[w.head] = turn
	w.head = (w.head + 1) % m.k
	return nil
}

// Window returns the user's turns oldest-first. Safe to call concurrently
// with Append for the same or different users.
func (m *Windows) Window(userID string) ([]domain.Turn, error) {
	w := m.window(userID, false)
	if w == nil {
		return nil, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.check(m.k); err != nil {
		return nil, err
	}

	out := make([]domain.Turn, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.turns[(w.head+i)%m.k]
	}
	return out, nil
}

func (m *Windows) Reset(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
}

func (m *Windows) window(userID string, create bool) *userWindow {
	m.mu.RLock()
	w := m.users[userID]
	m.mu.RUnlock()
	if w != nil || !create {
		return w
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w = m.users[userID]; w == nil {
		w = &userWindow{turns: make([]domain.Turn, m.k)}
		m.users[userID] = w
	}
	return w
}

// check guards the window bound. A violation is a bug, never repaired by
// silent truncation.
func (w *userWindow) check(k int) error {
	if w.size > k || len(w.turns) != k {
		return domain.WrapError(domain.ErrMemoryCorrupted, "conversation window",
			fmt.Errorf("size=%d cap=%d k=%d", w.size, len(w.turns), k))
	}
	return nil
}
