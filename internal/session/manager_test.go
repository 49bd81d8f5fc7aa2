package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveGeneratesFreshIDWithNoFlags(t *testing.T) {
	shareDir := t.TempDir()
	id, isNew, err := Resolve(shareDir, "/work", "", false)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.True(t, isNew)
}

func TestResolveHonorsExplicitSessionID(t *testing.T) {
	shareDir := t.TempDir()
	id, isNew, err := Resolve(shareDir, "/work", "my-session", false)
	require.NoError(t, err)
	require.Equal(t, "my-session", id)
	require.True(t, isNew, "no kimi.json entry yet means this is a new conversation")

	require.NoError(t, Touch(shareDir, "my-session", "/work", time.Now()))

	id, isNew, err = Resolve(shareDir, "/work", "my-session", false)
	require.NoError(t, err)
	require.Equal(t, "my-session", id)
	require.False(t, isNew)
}

func TestResolveContinuePicksMostRecentForWorkDir(t *testing.T) {
	shareDir := t.TempDir()
	now := time.Now()
	require.NoError(t, Touch(shareDir, "older", "/work", now.Add(-time.Hour)))
	require.NoError(t, Touch(shareDir, "newer", "/work", now))
	require.NoError(t, Touch(shareDir, "other-dir", "/elsewhere", now))

	id, isNew, err := Resolve(shareDir, "/work", "", true)
	require.NoError(t, err)
	require.Equal(t, "newer", id)
	require.False(t, isNew)
}

func TestResolveContinueFailsWithNoPriorSession(t *testing.T) {
	shareDir := t.TempDir()
	_, _, err := Resolve(shareDir, "/work", "", true)
	require.Error(t, err)
}
