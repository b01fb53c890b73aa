package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	content := "knowledge_base_id: \" KB123 \"\npasswords:\n  alice: wonderland\n  bob: \"\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "KB123", s.KnowledgeBaseID())
	assert.Equal(t, 2, s.Len())

	secret, ok := s.Lookup("alice")
	assert.True(t, ok)
	assert.Equal(t, "wonderland", secret)

	secret, ok = s.Lookup("bob")
	assert.True(t, ok)
	assert.Empty(t, secret)

	_, ok = s.Lookup("mallory")
	assert.False(t, ok)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("passwords: [not, a, map]"))
	assert.Error(t, err)
}

func TestDecoyMatchesSecretKind(t *testing.T) {
	plain, err := New(map[string]string{"alice": "wonderland"}, "")
	require.NoError(t, err)
	assert.False(t, IsBcryptHash(plain.Decoy()))

	hash, err := bcrypt.GenerateFromPassword([]byte("wonderland"), bcrypt.MinCost)
	require.NoError(t, err)
	hashed, err := New(map[string]string{"alice": string(hash)}, "")
	require.NoError(t, err)
	assert.True(t, IsBcryptHash(hashed.Decoy()))
}
