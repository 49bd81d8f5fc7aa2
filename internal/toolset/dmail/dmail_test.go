package dmail

import (
	"context"
	"testing"

	"github.com/agentcore/soul/internal/contextstore"
	"github.com/agentcore/soul/pkg/message"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *contextstore.Store {
	t.Helper()
	s, err := contextstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSendDmailRewindsAndInjectsMessage(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Append(contextstore.MessageEntry(message.Text(message.RoleUser, "do the thing"))))
	_, err := store.AppendCheckpoint() // id 1
	require.NoError(t, err)
	require.NoError(t, store.Append(contextstore.MessageEntry(message.Text(message.RoleAssistant, "did the wrong thing"))))

	tool := New(store)
	result := tool.Call(context.Background(), []byte(`{"checkpoint_id":1,"message":"try the other approach"}`))
	require.False(t, result.IsError)

	snap, err := store.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 2)
	require.Equal(t, "try the other approach", snap[1].Content[0].Text)
}

func TestSendDmailUnknownCheckpoint(t *testing.T) {
	store := openTestStore(t)
	tool := New(store)

	result := tool.Call(context.Background(), []byte(`{"checkpoint_id":7,"message":"retry"}`))
	require.True(t, result.IsError)
	require.Contains(t, result.Message, "no such checkpoint")
}

func TestSendDmailInvalidArguments(t *testing.T) {
	store := openTestStore(t)
	tool := New(store)

	result := tool.Call(context.Background(), []byte(`not json`))
	require.True(t, result.IsError)
}

func TestSendDmailNeverRequiresApproval(t *testing.T) {
	store := openTestStore(t)
	tool := New(store)
	require.False(t, tool.RequiresApproval())
}
