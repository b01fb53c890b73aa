package core

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/markdave123-py/kbchat/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	// ListObjects enumerates the whole bucket in the order the backend returns.
	ListObjects(ctx context.Context, bucket string) ([]models.Document, error)
	// PresignGet returns a time-limited download URL for key. It never
	// modifies the object.
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
}

// SessionStore keeps per-browser conversation state. Implementations must be
// safe for concurrent use across sessions and must hand out copies.
type SessionStore interface {
	Create(ctx context.Context, modelID string) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	MarkAuthenticated(ctx context.Context, id string) error
	AppendTurn(ctx context.Context, id string, turn models.Turn) error
	RecordExchange(ctx context.Context, id string, ex models.Exchange) error
	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
	Close() error
}

// CredentialStore is the read-only username -> secret mapping.
type CredentialStore interface {
	// Lookup returns the stored secret for username. ok is false when the
	// user is unknown.
	Lookup(username string) (secret string, ok bool)
	// Decoy returns a secret of the same kind as the stored ones, compared
	// against when the username is unknown so both paths cost the same.
	Decoy() string
}
