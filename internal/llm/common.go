package llm

import (
	"context"
	"strings"
	"time"

	"github.com/agentcore/soul/internal/step"
	"github.com/agentcore/soul/pkg/message"
)

// SplitSystem pulls leading system-role messages out of history (most
// backends require the system prompt passed as a distinct field rather than
// a message). Only contiguous leading system messages are treated as the
// prompt; a system message appearing later is left in history's tail as an
// ordinary part, matching the teacher's convertMessages (skips role=="system"
// wherever it appears, but in practice the turn driver only ever places one
// at index 0).
func SplitSystem(history []message.Message) (system string, rest []message.Message) {
	i := 0
	for i < len(history) && history[i].Role == message.RoleSystem {
		system += history[i].PlainText()
		i++
	}
	return system, history[i:]
}

// Retry runs op up to maxRetries times with linear backoff (backoff*attempt),
// stopping early when isRetryable reports false for the latest error.
// Grounded on the teacher's providers.BaseProvider.Retry.
func Retry(ctx context.Context, maxRetries int, backoff time.Duration, isRetryable func(error) bool, op func() error) error {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) {
			return err
		}
		if attempt >= maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
	return lastErr
}

// drainText runs one non-streaming-shaped completion through p (a
// step.Provider, which is always streaming at the wire level) and
// concatenates every text event, for use as a compaction.Summarizer: the
// compaction manager wants a single string back, not a stream.
func drainText(ctx context.Context, p step.Provider, model string, messages []message.Message) (string, error) {
	req := step.CompletionRequest{Model: model, Messages: messages, MaxTokens: 1024}
	ch, err := p.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		if chunk.Event != nil && chunk.Event.Kind == message.StreamText {
			out.WriteString(chunk.Event.Text)
		}
		if chunk.Done {
			break
		}
	}
	return out.String(), nil
}
