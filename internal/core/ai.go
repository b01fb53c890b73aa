package core

import (
	"context"

	"github.com/markdave123-py/kbchat/internal/models"
)

// KnowledgeBase answers a query from a managed retrieval-augmented index.
type KnowledgeBase interface {
	Ask(ctx context.Context, query, knowledgeBaseID, modelID string) (*models.Answer, error)
}
