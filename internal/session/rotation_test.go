package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSweeperRejectsInvalidCronExpression(t *testing.T) {
	_, err := NewSweeper(t.TempDir(), 5, "not a cron expression", nil)
	require.Error(t, err)
}

func TestNewSweeperAcceptsDescriptorAndStandardExpressions(t *testing.T) {
	sw, err := NewSweeper(t.TempDir(), 5, "@hourly", nil)
	require.NoError(t, err)
	require.NotNil(t, sw)

	sw, err = NewSweeper(t.TempDir(), 5, "0 * * * *", nil)
	require.NoError(t, err)
	require.NotNil(t, sw)
}

func TestPruneSessionDirKeepsOnlyRetentionCountPerFamily(t *testing.T) {
	shareDir := t.TempDir()
	dir := filepath.Join(shareDir, "sessions", "sess-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	for _, name := range []string{
		"context.1.jsonl", "context.2.jsonl", "context.3.jsonl",
		"wire.1.jsonl", "wire.2.jsonl", "wire.3.jsonl",
		"context.jsonl", "wire.jsonl",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0o644))
	}

	sw, err := NewSweeper(shareDir, 1, "@hourly", nil)
	require.NoError(t, err)
	require.NoError(t, sw.pruneSessionDir(dir))

	for _, gone := range []string{"context.1.jsonl", "context.2.jsonl", "wire.1.jsonl", "wire.2.jsonl"} {
		_, err := os.Stat(filepath.Join(dir, gone))
		require.True(t, os.IsNotExist(err), "%s should have been pruned", gone)
	}
	for _, kept := range []string{"context.3.jsonl", "wire.3.jsonl", "context.jsonl", "wire.jsonl"} {
		_, err := os.Stat(filepath.Join(dir, kept))
		require.NoError(t, err, "%s should have survived the sweep", kept)
	}
}

func TestSweeperStartStopIsNoopWhenRetentionDisabled(t *testing.T) {
	sw, err := NewSweeper(t.TempDir(), 0, "@hourly", nil)
	require.NoError(t, err)
	sw.Start(nil) // retention <= 0: must not touch ctx at all
	sw.Stop()
}
