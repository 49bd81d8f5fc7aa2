package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/agentcore/soul/internal/step"
	"github.com/agentcore/soul/pkg/message"
)

// BedrockProvider adapts AWS Bedrock's Converse streaming API to
// step.Provider, giving Bedrock-hosted Anthropic/Titan/Llama models the same
// shape as every other backend. Grounded on the teacher's BedrockProvider
// (internal/agent/providers/bedrock.go) and its toolconv.ToBedrockTools
// (internal/agent/toolconv/bedrock.go).
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// BedrockProviderConfig configures a BedrockProvider.
type BedrockProviderConfig struct {
	Region       string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewBedrockProvider builds a provider using the default AWS credential
// chain (environment, shared config, IAM role), scoped to cfg.Region.
func NewBedrockProvider(ctx context.Context, cfg BedrockProviderConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("llm: bedrock aws config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (p *BedrockProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

func (p *BedrockProvider) Stream(ctx context.Context, req step.CompletionRequest) (<-chan step.Chunk, error) {
	model := p.model(req.Model)
	system, history := SplitSystem(req.Messages)
	msgs, err := p.convertMessages(history)
	if err != nil {
		return nil, fmt.Errorf("llm: bedrock convert messages: %w", err)
	}

	converseReq := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: msgs,
	}
	if system != "" {
		converseReq.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	if req.MaxTokens > 0 {
		converseReq.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(req.MaxTokens))}
	}
	if len(req.Tools) > 0 {
		converseReq.ToolConfig = toBedrockTools(req.Tools)
	}

	var stream *bedrockruntime.ConverseStreamOutput
	err = Retry(ctx, p.maxRetries, p.retryDelay, p.isRetryableError, func() error {
		var streamErr error
		stream, streamErr = p.client.ConverseStream(ctx, converseReq)
		return streamErr
	})
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	chunks := make(chan step.Chunk)
	go p.processStream(ctx, stream, chunks, model)
	return chunks, nil
}

func (p *BedrockProvider) processStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, chunks chan<- step.Chunk, model string) {
	defer close(chunks)
	eventStream := stream.GetStream()
	defer eventStream.Close()

	var toolIndex int
	var toolID, toolName string
	var toolInput strings.Builder
	inTool := false

	eventChan := eventStream.Events()
	for {
		select {
		case <-ctx.Done():
			chunks <- step.Chunk{Err: ctx.Err()}
			return
		case event, ok := <-eventChan:
			if !ok {
				if inTool {
					chunks <- step.Chunk{Event: ptrEvent(message.ToolCallEvent(toolIndex, toolID, toolName, toolInput.String()))}
				}
				if err := eventStream.Err(); err != nil {
					chunks <- step.Chunk{Err: p.wrapError(err, model)}
					return
				}
				chunks <- step.Chunk{Done: true}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					toolID = aws.ToString(toolUse.Value.ToolUseId)
					toolName = aws.ToString(toolUse.Value.Name)
					toolInput.Reset()
					inTool = true
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						chunks <- step.Chunk{Event: ptrEvent(message.TextEvent(delta.Value))}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						toolInput.WriteString(*delta.Value.Input)
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if inTool {
					chunks <- step.Chunk{Event: ptrEvent(message.ToolCallEvent(toolIndex, toolID, toolName, toolInput.String()))}
					toolIndex++
					inTool = false
					toolInput.Reset()
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				chunks <- step.Chunk{Done: true}
				return
			}
		}
	}
}

func (p *BedrockProvider) convertMessages(history []message.Message) ([]types.Message, error) {
	result := make([]types.Message, 0, len(history))
	for _, msg := range history {
		var content []types.ContentBlock

		if text := msg.PlainText(); text != "" {
			content = append(content, &types.ContentBlockMemberText{Value: text})
		}

		if msg.Role == message.RoleTool {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(msg.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: msg.PlainText()}},
				},
			})
		}

		for _, tc := range msg.ToolCalls {
			var inputDoc any
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &inputDoc); err != nil {
					return nil, fmt.Errorf("invalid tool call arguments for %s: %w", tc.Function.Name, err)
				}
			} else {
				inputDoc = map[string]any{}
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Function.Name),
					Input:     document.NewLazyDocument(inputDoc),
				},
			})
		}

		if len(content) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == message.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}
	return result, nil
}

func toBedrockTools(tools []step.ToolSpec) *types.ToolConfiguration {
	bedrockTools := make([]types.Tool, len(tools))
	for i, tool := range tools {
		var schema any
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		bedrockTools[i] = &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(tool.Name),
				Description: aws.String(tool.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		}
	}
	return &types.ToolConfiguration{Tools: bedrockTools}
}

func (p *BedrockProvider) isRetryableError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "throttl") || strings.Contains(msg, "timeout") || strings.Contains(msg, "500") || strings.Contains(msg, "503")
}

func (p *BedrockProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Reason: FailoverTimeout, Provider: "bedrock", Model: model, Cause: err}
	}
	return NewProviderError("bedrock", model, err)
}

// Summarize implements compaction.Summarizer.
func (p *BedrockProvider) Summarize(ctx context.Context, messages []message.Message) (string, error) {
	return drainText(ctx, p, p.defaultModel, messages)
}
