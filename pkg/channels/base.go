package channels

import (
	"strings"

	"github.com/calicobot/calico/pkg/bus"
)

// Channel is one chat platform adapter.
type Channel interface {
	Start() error
	Stop() error
	Send(msg bus.OutboundMessage) error
	Name() string
}

// BaseChannel carries the pieces every adapter shares: the bus handle
// and the sender allow-list.
type BaseChannel struct {
	Bus       *bus.MessageBus
	AllowFrom []string
}

// IsAllowed checks the sender against the allow-list. An empty list
// allows everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.AllowFrom) == 0 {
		return true
	}
	for _, allowed := range c.AllowFrom {
		if allowed == senderID {
			return true
		}
		// Composite IDs like "id|username" match on either part.
		if strings.Contains(senderID, "|") {
			for _, part := range strings.Split(senderID, "|") {
				if part == allowed {
					return true
				}
			}
		}
	}
	return false
}

// HandleMessage filters and publishes a platform message onto the bus.
func (c *BaseChannel) HandleMessage(channelName, senderID, chatID, content string, media []string, metadata map[string]interface{}) {
	if !c.IsAllowed(senderID) {
		return
	}
	c.Bus.PublishInbound(bus.InboundMessage{
		Channel:  channelName,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
		Media:    media,
		Metadata: metadata,
	})
}
