package session

import (
	"context"
	"sync"
	"time"

	"github.com/markdave123-py/kbchat/internal/core"
	"github.com/markdave123-py/kbchat/internal/models"
)

// MemoryStore keeps sessions in process memory. Sessions idle for longer
// than idleTTL are dropped the next time a session is created.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	idleTTL  time.Duration
	now      func() time.Time
}

var _ core.SessionStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store. idleTTL <= 0 disables pruning.
func NewMemoryStore(idleTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, modelID string) (*models.Session, error) {
	s := models.NewSession(modelID)

	m.mu.Lock()
	m.pruneLocked()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s.Clone(), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) MarkAuthenticated(_ context.Context, id string) error {
	return m.update(id, func(s *models.Session) {
		s.Authenticated = true
		s.UpdatedAt = m.now().UTC()
	})
}

func (m *MemoryStore) AppendTurn(_ context.Context, id string, turn models.Turn) error {
	return m.update(id, func(s *models.Session) { s.AppendTurn(turn) })
}

func (m *MemoryStore) RecordExchange(_ context.Context, id string, ex models.Exchange) error {
	return m.update(id, func(s *models.Session) { s.RecordExchange(ex) })
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Len reports how many sessions are held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) update(id string, fn func(*models.Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return core.ErrSessionNotFound
	}
	fn(s)
	return nil
}

func (m *MemoryStore) pruneLocked() {
	if m.idleTTL <= 0 {
		return
	}
	cutoff := m.now().Add(-m.idleTTL)
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
		}
	}
}
