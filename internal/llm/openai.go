package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentcore/soul/internal/step"
	"github.com/agentcore/soul/pkg/message"
)

// OpenAIProvider adapts any OpenAI-chat-completions-compatible backend to
// step.Provider. A non-empty BaseURL repoints the same client at an
// OpenAI-compatible endpoint, which is how this one type also serves the
// teacher's OpenRouter, Azure OpenAI, Ollama and GitHub Copilot proxy
// providers (internal/agent/providers/{openrouter,azure,ollama,copilot_proxy}.go)
// without reimplementing their near-identical request/response shape.
// Grounded on the teacher's OpenAIProvider (internal/agent/providers/openai.go).
type OpenAIProvider struct {
	client       *openai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
	name         string
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	// Name labels this instance in error messages, distinguishing "openai"
	// from "openrouter"/"azure"/"ollama"/"copilot_proxy" configured the
	// same way with a different BaseURL.
	Name         string
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewOpenAIProvider builds a provider from cfg.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("llm: openai-compatible provider requires an api key or base url")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		defaultModel: cfg.DefaultModel,
		name:         cfg.Name,
	}, nil
}

func (p *OpenAIProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

func (p *OpenAIProvider) Stream(ctx context.Context, req step.CompletionRequest) (<-chan step.Chunk, error) {
	model := p.model(req.Model)
	system, history := SplitSystem(req.Messages)
	msgs, err := p.convertMessages(history, system)
	if err != nil {
		return nil, fmt.Errorf("llm: %s convert messages: %w", p.name, err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	err = Retry(ctx, p.maxRetries, p.retryDelay, p.isRetryableError, func() error {
		var streamErr error
		stream, streamErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		return streamErr
	})
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	chunks := make(chan step.Chunk)
	go p.processStream(ctx, stream, chunks, model)
	return chunks, nil
}

func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- step.Chunk, model string) {
	defer close(chunks)
	defer stream.Close()

	type toolAccum struct{ id, name, args string }
	toolCalls := map[int]*toolAccum{}

	flushToolCalls := func() {
		for i := 0; i < len(toolCalls); i++ {
			tc := toolCalls[i]
			if tc == nil || tc.id == "" {
				continue
			}
			chunks <- step.Chunk{Event: ptrEvent(message.ToolCallEvent(i, tc.id, tc.name, tc.args))}
		}
		toolCalls = map[int]*toolAccum{}
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- step.Chunk{Err: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flushToolCalls()
				chunks <- step.Chunk{Done: true}
				return
			}
			chunks <- step.Chunk{Err: p.wrapError(err, model)}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			chunks <- step.Chunk{Event: ptrEvent(message.TextEvent(delta.Content))}
		}
		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			acc, ok := toolCalls[index]
			if !ok {
				acc = &toolAccum{}
				toolCalls[index] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				acc.args += tc.Function.Arguments
			}
		}
		if choice.FinishReason == "tool_calls" {
			flushToolCalls()
		}
	}
}

func (p *OpenAIProvider) convertMessages(history []message.Message, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range history {
		switch msg.Role {
		case message.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.PlainText(),
				ToolCallID: msg.ToolCallID,
			})
		case message.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.PlainText()}
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					}
				}
			}
			result = append(result, oaiMsg)
		default:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.PlainText()})
		}
	}
	return result, nil
}

func (p *OpenAIProvider) convertTools(tools []step.ToolSpec) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema, &schemaMap); err != nil {
			schemaMap = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

// isRetryableError matches on the error text rather than a typed SDK error,
// grounded on the teacher's OpenAIProvider.isRetryableError: go-openai
// doesn't expose a stable typed status code across all of the
// OpenAI-compatible backends this provider serves (some openrouter/ollama
// deployments return plain HTTP errors without the OpenAI error envelope).
func (p *OpenAIProvider) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}
	return NewProviderError(p.name, model, err)
}

// Summarize implements compaction.Summarizer.
func (p *OpenAIProvider) Summarize(ctx context.Context, messages []message.Message) (string, error) {
	return drainText(ctx, p, p.defaultModel, messages)
}
