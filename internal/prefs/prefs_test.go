package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	p, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Prefs{}, p)
}

func TestStore_RoundTripAcrossInstances(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s := NewStore(dir)
	require.NoError(t, s.SetEnvironment(EnvLocal))
	require.NoError(t, s.SetSession("tok", "root@example.com"))

	reloaded := NewStore(dir)
	p, err := reloaded.Load()
	require.NoError(t, err)
	assert.Equal(t, Prefs{Token: "tok", AdminEmail: "root@example.com", Environment: EnvLocal}, p)

	require.NoError(t, reloaded.ClearToken())
	p, err = s.Load()
	require.NoError(t, err)
	assert.Empty(t, p.Token)
	assert.Equal(t, EnvLocal, p.Environment, "logout keeps the environment")

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.SetSession("tok", ""))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, FileName, entries[0].Name())
}

func TestStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("token: [unclosed"), 0600))
	_, err := NewStore(dir).Load()
	assert.Error(t, err)
}

func TestParseEnvironment(t *testing.T) {
	env, err := ParseEnvironment("production")
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, env)

	_, err = ParseEnvironment("staging")
	assert.ErrorIs(t, err, ErrInvalidEnvironment)
	assert.ErrorIs(t, NewStore(t.TempDir()).SetEnvironment("staging"), ErrInvalidEnvironment)
}

func TestDefaultDir(t *testing.T) {
	t.Setenv("PANEL_STATE_DIR", "/tmp/panel-state")
	dir, err := DefaultDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/panel-state", dir)
}
