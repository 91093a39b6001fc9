package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*Repository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefs.db")
	repo, err := NewRepository(path)
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	return repo, path
}

func TestTheme_DefaultsToDark(t *testing.T) {
	repo, _ := newTestRepo(t)

	theme, err := repo.GetTheme()

	require.NoError(t, err)
	assert.Equal(t, ThemeDark, theme)
}

func TestTheme_PersistsAcrossReopen(t *testing.T) {
	repo, path := newTestRepo(t)
	require.NoError(t, repo.SetTheme(ThemeLight))
	repo.Close()

	reopened, err := NewRepository(path)
	require.NoError(t, err)
	defer reopened.Close()

	theme, err := reopened.GetTheme()
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, theme)
}

func TestTheme_RejectsUnknownValue(t *testing.T) {
	repo, _ := newTestRepo(t)

	err := repo.SetTheme("sepia")

	assert.ErrorIs(t, err, ErrInvalidTheme)
}

func TestTheme_IgnoresCorruptStoredValue(t *testing.T) {
	repo, _ := newTestRepo(t)
	require.NoError(t, repo.SetPreference(ThemeKey, "neon"))

	theme, err := repo.GetTheme()

	require.NoError(t, err)
	assert.Equal(t, DefaultTheme, theme)
}
