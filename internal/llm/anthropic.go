package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentcore/soul/internal/step"
	"github.com/agentcore/soul/pkg/message"
)

// AnthropicProvider adapts Anthropic's Messages streaming API to
// step.Provider. Grounded on the teacher's AnthropicProvider
// (internal/agent/providers/anthropic.go): same SDK, same content-block
// state machine, rewritten to emit message.StreamEvent on step.Chunk
// instead of agent.CompletionChunk. Stream makes a single attempt: a failed
// stream surfaces as an error Chunk, and MaxRetries/RetryDelay are stored
// but not used by Stream.
type AnthropicProvider struct {
	client       anthropic.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewAnthropicProvider builds a provider from cfg, defaulting MaxRetries,
// RetryDelay and DefaultModel when unset.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: anthropic api key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

// Stream opens a streaming Messages completion and bridges its SSE events
// onto a step.Chunk channel.
func (p *AnthropicProvider) Stream(ctx context.Context, req step.CompletionRequest) (<-chan step.Chunk, error) {
	model := p.model(req.Model)
	params, err := p.buildParams(model, req)
	if err != nil {
		return nil, err
	}

	chunks := make(chan step.Chunk)
	go func() {
		defer close(chunks)
		stream := p.client.Messages.NewStreaming(ctx, params)
		p.processStream(stream, chunks, model)
	}()

	return chunks, nil
}

func (p *AnthropicProvider) buildParams(model string, req step.CompletionRequest) (anthropic.MessageNewParams, error) {
	system, history := SplitSystem(req.Messages)

	msgs, err := p.convertMessages(history)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("llm: anthropic convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  msgs,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func (p *AnthropicProvider) convertMessages(history []message.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range history {
		var content []anthropic.ContentBlockParamUnion
		for _, part := range msg.Content {
			switch part.Type {
			case message.PartText:
				if part.Text != "" {
					content = append(content, anthropic.NewTextBlock(part.Text))
				}
			case message.PartThink:
				// Thinking blocks are not round-tripped back to Anthropic:
				// the API recomputes them from scratch each turn.
			}
		}

		if msg.Role == message.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.PlainText(), false))
			result = append(result, anthropic.NewUserMessage(content...))
			continue
		}

		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
					return nil, fmt.Errorf("invalid tool call arguments for %s: %w", tc.Function.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
		}

		if len(content) == 0 {
			continue
		}
		if msg.Role == message.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func (p *AnthropicProvider) convertTools(tools []step.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = anthropic.String(tool.Description)
		}
		result = append(result, toolParam)
	}
	return result, nil
}

// processStream drives the content-block state machine over the SSE
// stream, emitting one step.Chunk per text/thinking delta and one per
// completed tool call, grounded on the teacher's processStream.
func (p *AnthropicProvider) processStream(stream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
}, chunks chan<- step.Chunk, model string) {
	var toolIndex int
	var toolID, toolName string
	var toolInput strings.Builder
	inTool := false

	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}

		case "content_block_start":
			cb := event.AsContentBlockStart()
			if tu := cb.ContentBlock.AsToolUse(); cb.ContentBlock.Type == "tool_use" {
				toolID = tu.ID
				toolName = tu.Name
				toolInput.Reset()
				inTool = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- step.Chunk{Event: ptrEvent(message.TextEvent(delta.Text))}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					chunks <- step.Chunk{Event: ptrEvent(message.ThinkEvent(delta.Thinking, false))}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					toolInput.WriteString(delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if inTool {
				chunks <- step.Chunk{Event: ptrEvent(message.ToolCallEvent(toolIndex, toolID, toolName, toolInput.String()))}
				toolIndex++
				inTool = false
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}

		case "message_stop":
			chunks <- step.Chunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
			return
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- step.Chunk{Err: p.wrapError(err, model)}
		return
	}
	chunks <- step.Chunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
}

func ptrEvent(e message.StreamEvent) *message.StreamEvent { return &e }

func (p *AnthropicProvider) isRetryableError(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Reason.IsRetryable()
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe := &ProviderError{Provider: "anthropic", Model: model, Cause: err, Status: int(apiErr.StatusCode), RequestID: apiErr.RequestID}
		switch {
		case apiErr.StatusCode == 429:
			pe.Reason = FailoverRateLimit
		case apiErr.StatusCode >= 500:
			pe.Reason = FailoverServerError
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			pe.Reason = FailoverAuth
		case apiErr.StatusCode == 402:
			pe.Reason = FailoverBilling
		case strings.Contains(strings.ToLower(apiErr.Error()), "context"):
			pe.Reason = FailoverContextLength
		default:
			pe.Reason = FailoverUnknown
		}
		return pe
	}
	return NewProviderError("anthropic", model, err)
}

// Summarize implements compaction.Summarizer by running one non-streaming
// round trip against the compaction prompt messages and concatenating the
// resulting text events.
func (p *AnthropicProvider) Summarize(ctx context.Context, messages []message.Message) (string, error) {
	return drainText(ctx, p, p.defaultModel, messages)
}
