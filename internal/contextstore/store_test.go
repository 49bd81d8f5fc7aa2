package contextstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentcore/soul/pkg/message"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendThenSnapshotYieldsWriteOrder(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Append(MessageEntry(message.Text(message.RoleUser, "hello"))))
	require.NoError(t, s.Append(MessageEntry(message.Text(message.RoleAssistant, "hi"))))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 2)
	require.Equal(t, "hello", snap[0].Content[0].Text)
	require.Equal(t, "hi", snap[1].Content[0].Text)
}

func TestCheckpointIDsStrictlyIncreasing(t *testing.T) {
	s := openTestStore(t)
	id1, err := s.AppendCheckpoint()
	require.NoError(t, err)
	require.Equal(t, 1, id1)
	id2, err := s.AppendCheckpoint()
	require.NoError(t, err)
	require.Equal(t, 2, id2)
}

func TestRevertToRotatesAndTruncates(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Append(MessageEntry(message.Text(message.RoleUser, "hello"))))
	_, err := s.AppendCheckpoint() // id 1
	require.NoError(t, err)
	require.NoError(t, s.Append(MessageEntry(message.Text(message.RoleAssistant, "hi"))))
	require.NoError(t, s.Append(MessageEntry(message.Text(message.RoleUser, "noop"))))
	_, err = s.AppendCheckpoint() // id 2
	require.NoError(t, err)
	require.NoError(t, s.Append(MessageEntry(message.Text(message.RoleAssistant, "ack"))))

	require.NoError(t, s.RevertTo(1, true))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 2) // "hello" + synthetic notice
	require.Equal(t, "hello", snap[0].Content[0].Text)
	require.Contains(t, snap[1].Content[0].Text, "CHECKPOINT 1")

	rotatedPath := filepath.Join(s.dir, "context.1.jsonl")
	_, statErr := os.Stat(rotatedPath)
	require.NoError(t, statErr)

	err = s.RevertTo(2, true)
	var notFound *CheckpointNotFound
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, 2, notFound.ID)
}

func TestRevertToWithMessageInjectsCustomFollowUp(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Append(MessageEntry(message.Text(message.RoleUser, "hello"))))
	_, err := s.AppendCheckpoint() // id 1
	require.NoError(t, err)
	require.NoError(t, s.Append(MessageEntry(message.Text(message.RoleAssistant, "hi"))))

	require.NoError(t, s.RevertToWithMessage(1, "try again, differently"))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 2)
	require.Equal(t, "hello", snap[0].Content[0].Text)
	require.Equal(t, "try again, differently", snap[1].Content[0].Text)
	require.Equal(t, message.RoleUser, snap[1].Role)
}

func TestCompactPrefixPreservesSystemAndRecent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Append(MessageEntry(message.Text(message.RoleSystem, "you are a helpful agent"))))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(MessageEntry(message.Text(message.RoleUser, "msg"))))
	}

	summary := message.Text(message.RoleAssistant, "summary of the first 3 messages")
	dropped, err := s.CompactPrefix(summary, 2)
	require.NoError(t, err)
	require.Equal(t, 3, dropped)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 4) // system + summary + 2 preserved
	require.Equal(t, message.RoleSystem, snap[0].Role)
	require.Equal(t, "summary of the first 3 messages", snap[1].Content[0].Text)
	require.Equal(t, "compaction_summary", snap[1].Name)
}

func TestCompactPrefixNoOpWhenNothingToDrop(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Append(MessageEntry(message.Text(message.RoleUser, "hi"))))

	dropped, err := s.CompactPrefix(message.Text(message.RoleAssistant, "summary"), 5)
	require.NoError(t, err)
	require.Equal(t, 0, dropped)
}

func TestClearRotatesAwayLeavingEmptyCurrent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Append(MessageEntry(message.Text(message.RoleUser, "hello"))))
	require.NoError(t, s.Clear())

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Empty(t, snap)

	rotatedPath := filepath.Join(s.dir, "context.1.jsonl")
	_, statErr := os.Stat(rotatedPath)
	require.NoError(t, statErr)
}

func TestRecordUsageIsUnderscoreEntry(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordUsage(42))
	require.NoError(t, s.Append(MessageEntry(message.Text(message.RoleUser, "hi"))))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1) // usage entry excluded from snapshot
}

func TestSecondClearUsesNextRotationIndex(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())

	_, err := os.Stat(filepath.Join(s.dir, "context.1.jsonl"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(s.dir, "context.2.jsonl"))
	require.NoError(t, err)
}
