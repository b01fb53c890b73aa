// Package credentials reads the secrets file the hosting environment
// provisions: the login passwords and the knowledge base id.
//
//	knowledge_base_id: ABCDEFGHIJ
//	passwords:
//	  alice: "plain or $2a$ bcrypt hash"
package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/markdave123-py/kbchat/internal/core"
)

type secretsFile struct {
	KnowledgeBaseID string            `yaml:"knowledge_base_id"`
	Passwords       map[string]string `yaml:"passwords"`
}

// Store is an immutable in-memory credential table.
type Store struct {
	passwords       map[string]string
	knowledgeBaseID string
	decoy           string
}

var _ core.CredentialStore = (*Store)(nil)

// LoadFile parses a YAML secrets file.
func LoadFile(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a Store from YAML bytes.
func Parse(raw []byte) (*Store, error) {
	var f secretsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}
	return New(f.Passwords, f.KnowledgeBaseID)
}

// New builds a Store from an in-memory mapping.
func New(passwords map[string]string, knowledgeBaseID string) (*Store, error) {
	copied := make(map[string]string, len(passwords))
	hashed := false
	for user, secret := range passwords {
		copied[user] = secret
		if IsBcryptHash(secret) {
			hashed = true
		}
	}

	decoy, err := newDecoy(hashed)
	if err != nil {
		return nil, err
	}

	return &Store{passwords: copied, knowledgeBaseID: strings.TrimSpace(knowledgeBaseID), decoy: decoy}, nil
}

func (s *Store) Lookup(username string) (string, bool) {
	secret, ok := s.passwords[username]
	return secret, ok
}

func (s *Store) Decoy() string { return s.decoy }

func (s *Store) KnowledgeBaseID() string { return s.knowledgeBaseID }

func (s *Store) Len() int { return len(s.passwords) }

// IsBcryptHash reports whether secret looks like a bcrypt hash rather than a
// plaintext password.
func IsBcryptHash(secret string) bool {
	if len(secret) != 60 {
		return false
	}
	return strings.HasPrefix(secret, "$2a$") || strings.HasPrefix(secret, "$2b$") || strings.HasPrefix(secret, "$2y$")
}

func newDecoy(hashed bool) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate decoy secret: %w", err)
	}
	plain := hex.EncodeToString(buf)
	if !hashed {
		return plain, nil
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash decoy secret: %w", err)
	}
	return string(h), nil
}
