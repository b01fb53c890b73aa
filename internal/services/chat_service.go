package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/markdave123-py/kbchat/internal/core"
	"github.com/markdave123-py/kbchat/internal/core/llm"
	"github.com/markdave123-py/kbchat/internal/models"
)

var (
	ErrEmptyQuery = errors.New("query is empty")
	// ErrGenerationFailed wraps any failure of the knowledge base call. The
	// user's turn is already in history when this is returned.
	ErrGenerationFailed = errors.New("generation failed")
)

type ChatService struct {
	sessions        core.SessionStore
	kb              core.KnowledgeBase
	knowledgeBaseID string
	timeout         time.Duration
}

func NewChatService(sessions core.SessionStore, kb core.KnowledgeBase, knowledgeBaseID string, timeout time.Duration) *ChatService {
	return &ChatService{sessions: sessions, kb: kb, knowledgeBaseID: knowledgeBaseID, timeout: timeout}
}

// Ask runs one submit-query interaction: record the question, call the
// knowledge base, record the answer and its sources.
func (s *ChatService) Ask(ctx context.Context, sessionID, query string) (*models.Exchange, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.AppendTurn(ctx, sessionID, models.NewTurn(models.RoleUser, query)); err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}

	askCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		askCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	answer, err := s.kb.Ask(askCtx, query, s.knowledgeBaseID, sess.ModelID)
	if err != nil {
		log.Printf("session %s: knowledge base call failed: %v", sessionID, err)
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	refs := llm.FlattenReferences(answer.Citations)
	ex := models.Exchange{
		Query:           query,
		Answer:          answer.Text,
		References:      refs,
		SourceLocations: llm.SourceLocations(refs),
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.sessions.AppendTurn(ctx, sessionID, models.NewTurn(models.RoleAssistant, answer.Text)); err != nil {
		return nil, fmt.Errorf("append assistant turn: %w", err)
	}
	if err := s.sessions.RecordExchange(ctx, sessionID, ex); err != nil {
		return nil, fmt.Errorf("record exchange: %w", err)
	}
	return &ex, nil
}

// Session reloads the current state of a session.
func (s *ChatService) Session(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// History returns the session transcript.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.History(), nil
}
