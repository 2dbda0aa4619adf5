package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, env map[string]string) *FileStore {
	t.Helper()
	s := NewFileStore(filepath.Join(t.TempDir(), "svh", "token.json"))
	s.getenv = func(k string) string { return env[k] }
	return s
}

func TestSaveLoadDelete(t *testing.T) {
	s := newStore(t, nil)

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	exp := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(&Credentials{Token: "root.1.ab", ExternalID: "root", ExpiresAt: exp}))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	c, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "root.1.ab", c.Token)
	assert.Equal(t, "root", c.ExternalID)
	assert.True(t, exp.Equal(c.ExpiresAt))

	require.NoError(t, s.Delete())
	require.NoError(t, s.Delete())
	_, err = s.Load()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestEnvOverride(t *testing.T) {
	s := newStore(t, map[string]string{EnvToken: " env.1.ff "})
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(&Credentials{Token: "file.1.aa", ExpiresAt: now.Add(time.Minute)}))
	c, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "env.1.ff", c.Token)
	assert.True(t, c.FromEnv)
	assert.Equal(t, now.Add(time.Hour), c.ExpiresAt)

	require.NoError(t, s.Save(c))
	s.getenv = func(string) string { return "" }
	c, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "file.1.aa", c.Token, "env credentials are never persisted")
}

func TestCorruptFileMeansLoggedOut(t *testing.T) {
	s := newStore(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o700))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{"), 0o600))

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c := &Credentials{ExpiresAt: now}
	assert.True(t, c.Expired(now))
	assert.False(t, c.Expired(now.Add(-time.Second)))
}
