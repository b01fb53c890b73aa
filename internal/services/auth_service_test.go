package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/markdave123-py/kbchat/internal/core"
	"github.com/markdave123-py/kbchat/internal/core/credentials"
	"github.com/markdave123-py/kbchat/internal/core/session"
)

func newAuth(t *testing.T, passwords map[string]string) (*AuthService, *session.MemoryStore) {
	t.Helper()
	creds, err := credentials.New(passwords, "KB123")
	require.NoError(t, err)
	store := session.NewMemoryStore(0)
	return NewAuthService(creds, store), store
}

func TestAuthenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	auth, _ := newAuth(t, map[string]string{
		"alice": "wonderland",
		"bob":   string(hash),
		"eve":   "",
	})

	cases := []struct {
		name     string
		user     string
		password string
		want     bool
	}{
		{"plaintext match", "alice", "wonderland", true},
		{"plaintext mismatch", "alice", "wonderland!", false},
		{"prefix of password", "alice", "wonder", false},
		{"wrong case username", "Alice", "wonderland", false},
		{"bcrypt match", "bob", "s3cret", true},
		{"bcrypt mismatch", "bob", "secret", false},
		{"unknown user", "mallory", "wonderland", false},
		{"empty stored secret", "eve", "", false},
		{"empty stored secret any password", "eve", "anything", false},
		{"empty input", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, auth.Authenticate(tc.user, tc.password))
		})
	}
}

func TestLoginRotatesSessionWithoutKeepingCredentials(t *testing.T) {
	auth, store := newAuth(t, map[string]string{"alice": "wonderland"})
	ctx := context.Background()
	s, err := store.Create(ctx, "arn:model")
	require.NoError(t, err)

	got, err := auth.Login(ctx, s.ID, "alice", "wonderland")
	require.NoError(t, err)
	assert.True(t, got.Authenticated)
	assert.NotEqual(t, s.ID, got.ID)
	assert.Equal(t, "arn:model", got.ModelID)

	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.Equal(t, 1, store.Len())

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "wonderland")
	assert.NotContains(t, string(raw), "alice")
}

func TestLoginFailureLeavesSessionLocked(t *testing.T) {
	auth, store := newAuth(t, map[string]string{"alice": "wonderland"})
	ctx := context.Background()
	s, err := store.Create(ctx, "arn:model")
	require.NoError(t, err)

	_, err = auth.Login(ctx, s.ID, "alice", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(ctx, s.ID, "nobody", "wonderland")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.Authenticated)
	assert.Equal(t, 1, store.Len())
}
