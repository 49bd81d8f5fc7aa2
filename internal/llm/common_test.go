package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/soul/internal/step"
	"github.com/agentcore/soul/pkg/message"
)

func TestSplitSystemPullsLeadingSystemMessages(t *testing.T) {
	history := []message.Message{
		message.Text(message.RoleSystem, "you are helpful"),
		message.Text(message.RoleSystem, " and terse"),
		message.Text(message.RoleUser, "hi"),
	}
	system, rest := SplitSystem(history)
	require.Equal(t, "you are helpful and terse", system)
	require.Len(t, rest, 1)
	require.Equal(t, message.RoleUser, rest[0].Role)
}

func TestSplitSystemNoLeadingSystem(t *testing.T) {
	history := []message.Message{message.Text(message.RoleUser, "hi")}
	system, rest := SplitSystem(history)
	require.Empty(t, system)
	require.Len(t, rest, 1)
}

func TestRetrySucceedsWithoutRetrying(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, nil, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	wantErr := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(error) bool { return false }, func() error {
		calls++
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 1, calls)
}

func TestRetryExhaustsMaxRetries(t *testing.T) {
	wantErr := errors.New("still failing")
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(error) bool { return true }, func() error {
		calls++
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 3, calls)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, 3, time.Millisecond, func(error) bool { return true }, func() error {
		calls++
		return errors.New("x")
	})
	require.Error(t, err)
	require.Equal(t, 0, calls)
}

// scriptedProvider streams a fixed list of chunks, for exercising drainText
// and the fallback chain without a real backend.
type scriptedProvider struct {
	openErr error
	chunks  []step.Chunk
	calls   int
}

func (p *scriptedProvider) Stream(ctx context.Context, req step.CompletionRequest) (<-chan step.Chunk, error) {
	p.calls++
	if p.openErr != nil {
		return nil, p.openErr
	}
	ch := make(chan step.Chunk, len(p.chunks))
	for _, c := range p.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func TestDrainTextConcatenatesTextEvents(t *testing.T) {
	p := &scriptedProvider{chunks: []step.Chunk{
		{Event: ptrEvent(message.TextEvent("hello "))},
		{Event: ptrEvent(message.TextEvent("world"))},
		{Done: true},
	}}
	out, err := drainText(context.Background(), p, "some-model", nil)
	require.NoError(t, err)
	require.Equal(t, "hello world", out)
}

func TestDrainTextPropagatesChunkError(t *testing.T) {
	wantErr := errors.New("stream broke")
	p := &scriptedProvider{chunks: []step.Chunk{{Err: wantErr}}}
	_, err := drainText(context.Background(), p, "some-model", nil)
	require.ErrorIs(t, err, wantErr)
}

func TestDrainTextPropagatesOpenError(t *testing.T) {
	wantErr := errors.New("refused")
	p := &scriptedProvider{openErr: wantErr}
	_, err := drainText(context.Background(), p, "some-model", nil)
	require.ErrorIs(t, err, wantErr)
}
