package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/soul/internal/contextstore"
	"github.com/agentcore/soul/internal/wire"
	"github.com/agentcore/soul/pkg/message"
)

func TestOpenCreatesSessionDirAndFiles(t *testing.T) {
	shareDir := t.TempDir()
	sess, err := Open(shareDir, "sess-1", "/work", nil)
	require.NoError(t, err)
	defer sess.Close()

	require.Equal(t, filepath.Join(shareDir, "sessions", "sess-1"), sess.Dir)
	_, err = os.Stat(filepath.Join(sess.Dir, "context.jsonl"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(sess.Dir, "wire.jsonl"))
	require.NoError(t, err)
}

func TestRevertToWithMessageRotatesContextAndWireInLockstep(t *testing.T) {
	shareDir := t.TempDir()
	sess, err := Open(shareDir, "sess-1", "/work", nil)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Store.Append(contextstore.MessageEntry(message.Text(message.RoleUser, "hi"))))
	_, err = sess.Store.AppendCheckpoint()
	require.NoError(t, err)

	require.NoError(t, sess.Bus.Emit(wire.EventTurnBegin, wire.TurnBeginPayload{TurnID: "t1"}))
	sess.recorder.Drain()

	require.NoError(t, sess.RevertToWithMessage(1, "retry"))

	_, err = os.Stat(filepath.Join(sess.Dir, "context.1.jsonl"))
	require.NoError(t, err, "context family should have rotated")
	_, err = os.Stat(filepath.Join(sess.Dir, "wire.1.jsonl"))
	require.NoError(t, err, "wire family should have rotated to the matching index")
}
