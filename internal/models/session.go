package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is the per-browser conversation state. It never holds the
// username or password that unlocked it.
type Session struct {
	ID              string    `db:"id" json:"id"`
	Authenticated   bool      `db:"authenticated" json:"authenticated"`
	ModelID         string    `db:"model_id" json:"model_id"`
	Messages        []Turn    `json:"messages"`
	SourceLocations []string  `json:"source_locations"`
	LastExchange    *Exchange `db:"last_exchange" json:"last_exchange,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// NewSession returns an unauthenticated session with an empty transcript.
func NewSession(modelID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:              uuid.NewString(),
		ModelID:         modelID,
		Messages:        make([]Turn, 0, 16),
		SourceLocations: []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewTurn stamps a turn with an id and creation time.
func NewTurn(role Role, content string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// AppendTurn adds a turn to the end of the transcript.
func (s *Session) AppendTurn(turn Turn) {
	s.Messages = append(s.Messages, turn)
	s.UpdatedAt = time.Now().UTC()
}

// History returns a copy of the transcript in conversation order.
func (s *Session) History() []Turn {
	out := make([]Turn, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// RecordExchange keeps ex as the latest exchange and folds its source
// locations into the session-wide set.
func (s *Session) RecordExchange(ex Exchange) {
	seen := make(map[string]struct{}, len(s.SourceLocations))
	for _, loc := range s.SourceLocations {
		seen[loc] = struct{}{}
	}
	for _, loc := range ex.SourceLocations {
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		s.SourceLocations = append(s.SourceLocations, loc)
	}
	s.LastExchange = &ex
	s.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy safe to hand out of a store.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = s.History()
	c.SourceLocations = append([]string(nil), s.SourceLocations...)
	if s.LastExchange != nil {
		ex := *s.LastExchange
		ex.References = append([]Reference(nil), ex.References...)
		ex.SourceLocations = append([]string(nil), ex.SourceLocations...)
		c.LastExchange = &ex
	}
	return &c
}
