package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveShareDirExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	resolved, err := ResolveShareDir("~/.soul-test")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".soul-test"), resolved)
}

func TestEnsureShareDirCreatesSessionsSubdir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "share")
	resolved, err := EnsureShareDir(dir)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(resolved, "sessions"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
