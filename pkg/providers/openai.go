package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/respjson"
)

// OpenAIProvider speaks the OpenAI Chat Completions API through the official
// client. With a custom base URL it also serves the compatible endpoints
// (DeepSeek, OpenRouter, Groq, Zhipu, vLLM, Gemini's OpenAI surface).
type OpenAIProvider struct {
	client       openai.Client
	defaultModel string
}

// NewOpenAIProvider builds a provider for the given endpoint. apiBase may be
// empty for the default OpenAI endpoint.
func NewOpenAIProvider(apiKey, apiBase, defaultModel string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &OpenAIProvider{
		client:       openai.NewClient(opts...),
		defaultModel: defaultModel,
	}
}

// GetDefaultModel returns the configured default model id.
func (p *OpenAIProvider) GetDefaultModel() string {
	return p.defaultModel
}

// Chat performs one non-streaming completion call.
func (p *OpenAIProvider) Chat(ctx context.Context, turns []Turn, tools []ToolDefinition, model string) (*LLMResponse, error) {
	if model == "" {
		model = p.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: buildChatMessages(turns),
	}
	if len(tools) > 0 {
		params.Tools = buildChatTools(tools)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat error: empty choices")
	}

	msg := resp.Choices[0].Message
	out := &LLMResponse{
		Content:   msg.Content,
		Reasoning: extraStringField(msg.JSON.ExtraFields, "reasoning_content"),
		Usage: map[string]int64{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		args := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]interface{}{}
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func buildChatMessages(turns []Turn) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(t.Content))
		case "user":
			messages = append(messages, buildUserMessage(t))
		case "assistant":
			messages = append(messages, buildAssistantMessage(t))
		case "tool":
			messages = append(messages, openai.ToolMessage(t.Content, t.ToolCallID))
		default:
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}
	return messages
}

func buildUserMessage(t Turn) openai.ChatCompletionMessageParamUnion {
	if len(t.Images) == 0 {
		return openai.UserMessage(t.Content)
	}
	// Images first, then the text part.
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(t.Images)+1)
	for _, url := range t.Images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
	}
	parts = append(parts, openai.TextContentPart(t.Content))
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: parts,
			},
		},
	}
}

func buildAssistantMessage(t Turn) openai.ChatCompletionMessageParamUnion {
	if len(t.ToolCalls) == 0 && t.Reasoning == "" {
		return openai.AssistantMessage(t.Content)
	}

	ap := &openai.ChatCompletionAssistantMessageParam{}
	if t.Content != "" {
		ap.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(t.Content),
		}
	}
	for _, tc := range t.ToolCalls {
		argsJSON, _ := json.Marshal(tc.Arguments)
		ap.ToolCalls = append(ap.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   tc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: string(argsJSON),
			},
		})
	}
	if t.Reasoning != "" {
		// Some backends (DeepSeek-R1 and friends) require the side-channel
		// payload to round-trip untouched on replay.
		ap.SetExtraFields(map[string]interface{}{"reasoning_content": t.Reasoning})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: ap}
}

func buildChatTools(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, def := range tools {
		fn, _ := def["function"].(map[string]interface{})
		if fn == nil {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		params, _ := fn["parameters"].(map[string]interface{})
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        name,
				Description: openai.String(desc),
				Parameters:  openai.FunctionParameters(params),
			},
		})
	}
	return out
}

func extraStringField(fields map[string]respjson.Field, key string) string {
	f, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(f.Raw()), &s); err != nil {
		return ""
	}
	return s
}
