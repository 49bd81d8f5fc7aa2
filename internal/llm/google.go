package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/agentcore/soul/internal/step"
	"github.com/agentcore/soul/pkg/message"
)

// GoogleProvider adapts Gemini's GenerateContentStream API to step.Provider.
// Grounded on the teacher's GoogleProvider (internal/agent/providers/google.go)
// and its toolconv.ToGeminiTools/ToGeminiSchema JSON-Schema-to-genai.Schema
// conversion (internal/agent/toolconv/gemini.go).
type GoogleProvider struct {
	client       *genai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	APIKey       string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewGoogleProvider builds a provider from cfg.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: google api key required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("llm: google client: %w", err)
	}
	return &GoogleProvider{client: client, maxRetries: cfg.MaxRetries, retryDelay: cfg.RetryDelay, defaultModel: cfg.DefaultModel}, nil
}

func (p *GoogleProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

func (p *GoogleProvider) Stream(ctx context.Context, req step.CompletionRequest) (<-chan step.Chunk, error) {
	model := p.model(req.Model)
	system, history := SplitSystem(req.Messages)
	contents, err := p.convertMessages(history)
	if err != nil {
		return nil, fmt.Errorf("llm: google convert messages: %w", err)
	}
	config := p.buildConfig(system, req)

	chunks := make(chan step.Chunk)
	go func() {
		defer close(chunks)

		var toolIndex int
		err := Retry(ctx, p.maxRetries, p.retryDelay, p.isRetryableError, func() error {
			toolIndex = 0
			for resp, iterErr := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if iterErr != nil {
					return iterErr
				}
				if resp == nil {
					continue
				}
				for _, candidate := range resp.Candidates {
					if candidate == nil || candidate.Content == nil {
						continue
					}
					for _, part := range candidate.Content.Parts {
						if part == nil {
							continue
						}
						if part.Text != "" {
							chunks <- step.Chunk{Event: ptrEvent(message.TextEvent(part.Text))}
						}
						if part.FunctionCall != nil {
							argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
							if jsonErr != nil {
								argsJSON = []byte("{}")
							}
							id := fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, toolIndex)
							chunks <- step.Chunk{Event: ptrEvent(message.ToolCallEvent(toolIndex, id, part.FunctionCall.Name, string(argsJSON)))}
							toolIndex++
						}
					}
				}
			}
			return nil
		})
		if err != nil {
			chunks <- step.Chunk{Err: p.wrapError(err, model)}
			return
		}
		chunks <- step.Chunk{Done: true}
	}()

	return chunks, nil
}

func (p *GoogleProvider) convertMessages(history []message.Message) ([]*genai.Content, error) {
	var result []*genai.Content
	for _, msg := range history {
		content := &genai.Content{}
		switch msg.Role {
		case message.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		if text := msg.PlainText(); text != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: text})
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					return nil, fmt.Errorf("invalid tool call arguments for %s: %w", tc.Function.Name, err)
				}
			}
			content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: tc.Function.Name, Args: args}})
		}
		if msg.Role == message.RoleTool {
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.PlainText()), &response); err != nil {
				response = map[string]any{"result": msg.PlainText()}
			}
			content.Parts = []*genai.Part{{FunctionResponse: &genai.FunctionResponse{Name: msg.Name, Response: response}}}
		}
		if len(content.Parts) == 0 {
			continue
		}
		result = append(result, content)
	}
	return result, nil
}

func (p *GoogleProvider) buildConfig(system string, req step.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = toGeminiTools(req.Tools)
	}
	return config
}

func toGeminiTools(tools []step.ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema, &schemaMap); err != nil {
			continue
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toGeminiSchema(schemaMap),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func toGeminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = toGeminiSchema(items)
	}
	return schema
}

func (p *GoogleProvider) isRetryableError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "500") || strings.Contains(msg, "503") || strings.Contains(msg, "unavailable")
}

func (p *GoogleProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}
	return NewProviderError("google", model, err)
}

// Summarize implements compaction.Summarizer.
func (p *GoogleProvider) Summarize(ctx context.Context, messages []message.Message) (string, error) {
	return drainText(ctx, p, p.defaultModel, messages)
}
