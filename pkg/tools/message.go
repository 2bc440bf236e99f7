package tools

import (
	"context"
	"fmt"

	"github.com/calicobot/calico/pkg/bus"
)

// MessageTool lets the agent push a message to a chat channel directly,
// bypassing the reply that ends the current loop pass.
type MessageTool struct {
	Bus            *bus.MessageBus
	DefaultChannel string
	DefaultChatID  string
}

// NewMessageTool creates a MessageTool.
func NewMessageTool(messageBus *bus.MessageBus) *MessageTool {
	return &MessageTool{Bus: messageBus}
}

// SetContext points the tool at the conversation being processed.
func (t *MessageTool) SetContext(channel, chatID string) {
	t.DefaultChannel = channel
	t.DefaultChatID = chatID
}

func (t *MessageTool) Name() string { return "message" }

func (t *MessageTool) Description() string {
	return "Send a message to a chat channel. Use only when you need to push a message somewhere other than the current conversation, or to attach media; plain replies should be normal text responses."
}

func (t *MessageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The message text",
				"minLength":   1,
			},
			"media": map[string]interface{}{
				"type":        "string",
				"description": "Optional path or URL of a media attachment",
			},
			"channel": map[string]interface{}{
				"type":        "string",
				"description": "Optional: target channel (defaults to the current one)",
			},
			"chat_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional: target chat/user ID (defaults to the current one)",
			},
		},
		"required": []string{"content"},
	}
}

func (t *MessageTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	content, _ := args["content"].(string)

	channel := t.DefaultChannel
	if c, ok := args["channel"].(string); ok && c != "" {
		channel = c
	}
	chatID := t.DefaultChatID
	if c, ok := args["chat_id"].(string); ok && c != "" {
		chatID = c
	}
	if channel == "" || chatID == "" {
		return "Error: no target channel/chat specified", nil
	}
	if t.Bus == nil {
		return "Error: message bus not configured", nil
	}

	msg := bus.OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: content,
	}
	if media, ok := args["media"].(string); ok && media != "" {
		msg.Media = []string{media}
	}
	t.Bus.PublishOutbound(msg)

	return fmt.Sprintf("Message sent to %s:%s", channel, chatID), nil
}
