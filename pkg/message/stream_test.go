package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeTextPlusText(t *testing.T) {
	merged, ok := Merge(TextEvent("hel"), TextEvent("lo"))
	require.True(t, ok)
	require.Equal(t, "hello", merged.Text)
}

func TestMergeThinkPlusThinkUnlessEncrypted(t *testing.T) {
	merged, ok := Merge(ThinkEvent("a", false), ThinkEvent("b", false))
	require.True(t, ok)
	require.Equal(t, "ab", merged.Think)

	_, ok = Merge(ThinkEvent("a", true), ThinkEvent("b", false))
	require.False(t, ok)
}

func TestMergeToolCallStream(t *testing.T) {
	a := ToolCallEvent(0, "t1", "shell", `{"cmd":"`)
	b := ToolCallPartEvent(0, `ls`)
	c := ToolCallPartEvent(0, `"}`)

	m1, ok := Merge(a, b)
	require.True(t, ok)
	m2, ok := Merge(m1, c)
	require.True(t, ok)
	require.Equal(t, `{"cmd":"ls"}`, m2.Args)
	require.Equal(t, "t1", m2.ID)
	require.Equal(t, "shell", m2.Name)

	tc := m2.ToToolCall()
	require.Equal(t, `{"cmd":"ls"}`, tc.Function.Arguments)
}

func TestMergeIsAssociative(t *testing.T) {
	a, b, c := TextEvent("a"), TextEvent("b"), TextEvent("c")

	ab, _ := Merge(a, b)
	left, ok := Merge(ab, c)
	require.True(t, ok)

	bc, _ := Merge(b, c)
	right, ok := Merge(a, bc)
	require.True(t, ok)

	require.Equal(t, left.Text, right.Text)
}

func TestMergeUnmergeablePair(t *testing.T) {
	_, ok := Merge(TextEvent("a"), ThinkEvent("b", false))
	require.False(t, ok)
}

func TestMergeBufferFlushesOnNonMergeable(t *testing.T) {
	var buf MergeBuffer
	_, flushed := buf.Push(TextEvent("a"))
	require.False(t, flushed)
	_, flushed = buf.Push(TextEvent("b"))
	require.False(t, flushed)

	out, flushed := buf.Push(ThinkEvent("think", false))
	require.True(t, flushed)
	require.Equal(t, "ab", out.Text)

	final, flushed := buf.Flush()
	require.True(t, flushed)
	require.Equal(t, "think", final.Think)

	_, flushed = buf.Flush()
	require.False(t, flushed)
}
