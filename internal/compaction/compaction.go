// Package compaction implements spec §4.6: summarize the oldest part of a
// session's history once its running token usage crosses a configured
// reserved-budget threshold, so a long-running turn never exhausts the
// provider's context window.
//
// Grounded on the teacher's compaction utilities
// (internal/compaction/compaction.go): the char-per-token estimation ratio
// and "oversized message" heuristic are kept (adapted onto pkg/message's
// Message type in place of the teacher's own flattened Message shape), and
// CompactionManager's threshold-check/retry-then-swallow state machine
// (internal/agent/compaction.go) is reused for Manager's Run/ShouldCompact
// shape, applied against this module's append-only context store instead of
// an in-memory packer.
package compaction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentcore/soul/internal/contextstore"
	"github.com/agentcore/soul/internal/wire"
	"github.com/agentcore/soul/pkg/message"
)

// CharsPerToken is the approximate character-to-token ratio used for the
// diagnostic estimate surfaced by EstimateTokens; the authoritative trigger
// for compaction is always the provider-reported `_usage` token count
// (spec §4.6: "measured against the provider's context window reported by
// _usage entries"), never this estimate.
const CharsPerToken = 4

// OversizedThreshold is the fraction of the context window above which a
// single message is considered too large to summarize sensibly; such
// messages are noted rather than included verbatim in the summarization
// prompt.
const OversizedThreshold = 0.5

// EstimateTokens approximates a message's token footprint from its text
// content length.
func EstimateTokens(m message.Message) int {
	chars := len(m.PlainText())
	for _, tc := range m.ToolCalls {
		chars += len(tc.Function.Name) + len(tc.Function.Arguments)
	}
	return (chars + CharsPerToken - 1) / CharsPerToken
}

func isOversized(m message.Message, contextWindowTokens int) bool {
	if contextWindowTokens <= 0 {
		return false
	}
	return float64(EstimateTokens(m)) > float64(contextWindowTokens)*OversizedThreshold
}

// Summarizer asks an LLM to produce a summary using a fixed compaction
// prompt. Implemented by internal/llm.
type Summarizer interface {
	Summarize(ctx context.Context, messages []message.Message) (string, error)
}

// Config controls when compaction triggers and how much history survives
// it. The spec leaves the reserved-budget formula and the retention window
// as an implementation-documented constant (spec §9); this build makes both
// configurable, with the defaults below as the documented choice.
type Config struct {
	// ContextWindowTokens is the provider's advertised context window. 0
	// disables threshold-triggered compaction entirely (ShouldCompact
	// always returns false).
	ContextWindowTokens int

	// ThresholdPercent is the percentage of ContextWindowTokens that
	// triggers compaction once the latest `_usage` entry's token count
	// reaches it. Default: 80.
	ThresholdPercent int

	// PreserveRecentMessages is K: the number of most recent messages
	// never summarized. Default: 20.
	PreserveRecentMessages int

	// MaxRetries bounds the summarization LLM call's retry count, mirroring
	// a step's max_retries_per_step (spec §4.6: "retries with the same
	// backoff rules as a step").
	MaxRetries int

	// RetryBackoff is the base delay for exponential backoff between
	// summarization attempts.
	RetryBackoff time.Duration
}

// DefaultConfig returns the documented defaults (spec §9 open question,
// resolved in DESIGN.md).
func DefaultConfig() Config {
	return Config{
		ThresholdPercent:       80,
		PreserveRecentMessages: 20,
		MaxRetries:             3,
		RetryBackoff:           time.Second,
	}
}

const compactionPrompt = "Summarize the conversation above concisely, preserving any facts, decisions, " +
	"file paths, and open tasks a continuation would need. Do not include meta-commentary about " +
	"this summarization request itself."

// Manager runs the threshold check and the compaction operation for one
// session.
type Manager struct {
	cfg    Config
	store  *contextstore.Store
	bus    *wire.Bus
	model  Summarizer
	logger *slog.Logger
}

// New builds a Manager. A zero-value cfg falls back to DefaultConfig's
// thresholds/retries but keeps ContextWindowTokens at 0, i.e. compaction
// stays disabled until the caller sets it explicitly.
func New(cfg Config, store *contextstore.Store, bus *wire.Bus, model Summarizer, logger *slog.Logger) *Manager {
	defaults := DefaultConfig()
	if cfg.ThresholdPercent <= 0 {
		cfg.ThresholdPercent = defaults.ThresholdPercent
	}
	if cfg.PreserveRecentMessages <= 0 {
		cfg.PreserveRecentMessages = defaults.PreserveRecentMessages
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, store: store, bus: bus, model: model, logger: logger}
}

// ShouldCompact reports whether the latest recorded usage has crossed the
// reserved-budget threshold.
func (m *Manager) ShouldCompact() bool {
	if m.cfg.ContextWindowTokens <= 0 {
		return false
	}
	tokens, ok := m.store.LatestUsage()
	if !ok {
		return false
	}
	usagePercent := tokens * 100 / m.cfg.ContextWindowTokens
	return usagePercent >= m.cfg.ThresholdPercent
}

// Run performs one compaction pass: emit CompactionBegin, summarize the
// droppable prefix, replace it in the context store, emit CompactionEnd.
// On persistent summarization failure it logs and returns nil (spec §4.6:
// "aborts and the next step proceeds without compaction; the error is
// logged but not fatal").
func (m *Manager) Run(ctx context.Context) error {
	if err := m.bus.Emit(wire.EventCompactionBegin, wire.CompactionBeginPayload{}); err != nil {
		return fmt.Errorf("compaction: emit begin: %w", err)
	}

	history, err := m.store.Snapshot()
	if err != nil {
		return fmt.Errorf("compaction: snapshot: %w", err)
	}

	toSummarize := prefixToSummarize(history, m.cfg.PreserveRecentMessages)
	if len(toSummarize) == 0 {
		return m.bus.Emit(wire.EventCompactionEnd, wire.CompactionEndPayload{DroppedMessages: 0})
	}

	summaryText, err := m.summarizeWithRetry(ctx, toSummarize)
	if err != nil {
		m.logger.Error("compaction: summarization failed, skipping", "error", err)
		return m.bus.Emit(wire.EventCompactionEnd, wire.CompactionEndPayload{DroppedMessages: 0})
	}

	summary := message.Text(message.RoleAssistant, summaryText)
	dropped, err := m.store.CompactPrefix(summary, m.cfg.PreserveRecentMessages)
	if err != nil {
		return fmt.Errorf("compaction: replace prefix: %w", err)
	}

	return m.bus.Emit(wire.EventCompactionEnd, wire.CompactionEndPayload{DroppedMessages: dropped})
}

// prefixToSummarize mirrors the selection contextstore.CompactPrefix
// performs, so the summarization prompt only sees the messages actually
// being dropped: everything after a leading system prompt (if any) and
// before the most recent preserveRecent messages.
func prefixToSummarize(history []message.Message, preserveRecent int) []message.Message {
	systemCount := 0
	if len(history) > 0 && history[0].Role == message.RoleSystem {
		systemCount = 1
	}
	recentStart := len(history) - preserveRecent
	if recentStart < systemCount {
		recentStart = systemCount
	}
	if systemCount >= recentStart {
		return nil
	}
	return history[systemCount:recentStart]
}

func (m *Manager) summarizeWithRetry(ctx context.Context, toSummarize []message.Message) (string, error) {
	prompted := make([]message.Message, 0, len(toSummarize)+1)
	for _, msg := range toSummarize {
		if isOversized(msg, m.cfg.ContextWindowTokens) {
			prompted = append(prompted, message.Text(msg.Role, fmt.Sprintf(
				"[oversized %s message omitted, ~%d estimated tokens]", msg.Role, EstimateTokens(msg))))
			continue
		}
		prompted = append(prompted, msg)
	}
	prompted = append(prompted, message.Text(message.RoleUser, compactionPrompt))

	var lastErr error
	backoff := m.cfg.RetryBackoff
	for attempt := 0; attempt < m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		summary, err := m.model.Summarize(ctx, prompted)
		if err == nil {
			return summary, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("compaction: summarize after %d attempts: %w", m.cfg.MaxRetries, lastErr)
}
