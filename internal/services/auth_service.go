package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"

	"github.com/markdave123-py/kbchat/internal/core"
	"github.com/markdave123-py/kbchat/internal/core/credentials"
	"github.com/markdave123-py/kbchat/internal/models"
)

// ErrInvalidCredentials covers both an unknown username and a wrong
// password; callers must not be able to tell which.
var ErrInvalidCredentials = errors.New("user not known or password incorrect")

type AuthService struct {
	creds    core.CredentialStore
	sessions core.SessionStore
}

func NewAuthService(creds core.CredentialStore, sessions core.SessionStore) *AuthService {
	return &AuthService{creds: creds, sessions: sessions}
}

// Authenticate reports whether username/password match a stored credential.
// An unknown user is checked against a decoy secret so both failure paths
// do the same work.
func (s *AuthService) Authenticate(username, password string) bool {
	secret, known := s.creds.Lookup(username)
	if !known || secret == "" {
		_ = secretMatches(s.creds.Decoy(), password)
		return false
	}
	return secretMatches(secret, password)
}

// Login authenticates and, on success, moves the caller to a fresh
// authenticated session and drops the one the credentials were submitted
// with, so an identifier handed out before login never gains access.
// Nothing from the submitted form is written to the session.
func (s *AuthService) Login(ctx context.Context, sessionID, username, password string) (*models.Session, error) {
	if !s.Authenticate(username, password) {
		return nil, ErrInvalidCredentials
	}

	prev, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	next, err := s.sessions.Create(ctx, prev.ModelID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := s.sessions.MarkAuthenticated(ctx, next.ID); err != nil {
		return nil, fmt.Errorf("mark session authenticated: %w", err)
	}
	if err := s.sessions.Delete(ctx, prev.ID); err != nil {
		log.Printf("drop pre-login session %s: %v", prev.ID, err)
	}

	return s.sessions.Get(ctx, next.ID)
}

// secretMatches compares in constant time. Plaintext secrets are compared as
// SHA-256 digests so the comparison does not depend on either length.
func secretMatches(secret, password string) bool {
	if credentials.IsBcryptHash(secret) {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(password)) == nil
	}
	want := sha256.Sum256([]byte(secret))
	got := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}
