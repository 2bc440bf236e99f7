package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

// AnthropicProvider speaks the Anthropic Messages API through the official
// client.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int64
}

// NewAnthropicProvider builds a provider for the Anthropic API. apiBase may
// be empty for the default endpoint.
func NewAnthropicProvider(apiKey, apiBase, defaultModel string, maxTokens int64) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
	}
}

// GetDefaultModel returns the configured default model id.
func (p *AnthropicProvider) GetDefaultModel() string {
	return p.defaultModel
}

// Chat performs one non-streaming Messages call.
func (p *AnthropicProvider) Chat(ctx context.Context, turns []Turn, tools []ToolDefinition, model string) (*LLMResponse, error) {
	if model == "" {
		model = p.defaultModel
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.maxTokens,
		Messages:  buildAnthropicMessages(turns),
	}
	if system := collectSystemText(turns); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = buildAnthropicTools(tools)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat error: %w", err)
	}

	out := &LLMResponse{
		Usage: map[string]int64{
			"prompt_tokens":     resp.Usage.InputTokens,
			"completion_tokens": resp.Usage.OutputTokens,
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: decodeArguments(tu.Input),
			})
		}
	}
	return out, nil
}

func decodeArguments(input interface{}) map[string]interface{} {
	args := map[string]interface{}{}
	raw, err := json.Marshal(input)
	if err != nil {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]interface{}{}
	}
	return args
}

func collectSystemText(turns []Turn) string {
	for _, t := range turns {
		if t.Role == "system" {
			return t.Content
		}
	}
	return ""
}

// splitDataURL decodes "data:<media-type>;base64,<payload>" attachments.
func splitDataURL(url string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	mediaType, data, found = strings.Cut(rest, ";base64,")
	if !found || mediaType == "" || data == "" {
		return "", "", false
	}
	return mediaType, data, true
}

func buildAnthropicMessages(turns []Turn) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, t := range turns {
		switch t.Role {
		case "system":
			continue
		case "user":
			var blocks []anthropic.ContentBlockParamUnion
			for _, img := range t.Images {
				mediaType, data, ok := splitDataURL(img)
				if !ok {
					continue
				}
				blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
			}
			blocks = append(blocks, anthropic.NewTextBlock(t.Content))
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		case "assistant":
			var blocks []anthropic.ContentBlockParamUnion
			if t.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.Content))
			}
			for _, tc := range t.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		case "tool":
			// Tool results travel as user-role tool_result blocks.
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(t.ToolCallID, t.Content, false)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	return messages
}

func buildAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, def := range tools {
		fn, _ := def["function"].(map[string]interface{})
		if fn == nil {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if params, ok := fn["parameters"].(map[string]interface{}); ok {
			if props, ok := params["properties"]; ok {
				schema.Properties = props
			}
			switch req := params["required"].(type) {
			case []string:
				schema.Required = req
			case []interface{}:
				for _, r := range req {
					if s, ok := r.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}
		tool := anthropic.ToolUnionParamOfTool(schema, name)
		if tool.OfTool != nil && desc != "" {
			tool.OfTool.Description = anthropic.String(desc)
		}
		out = append(out, tool)
	}
	return out
}
