package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/calicobot/calico/pkg/bus"
)

// processSystemMessage handles delegate reports. The chat id carries
// the origin as "<channel>:<chat_id>", so the reply lands back in the
// human conversation that spawned the work.
func (l *AgentLoop) processSystemMessage(ctx context.Context, msg bus.InboundMessage) error {
	l.log.Infow("processing system message", "sender", msg.SenderID)

	originChannel := "cli"
	originChatID := msg.ChatID
	if idx := strings.Index(msg.ChatID, ":"); idx >= 0 {
		originChannel = msg.ChatID[:idx]
		originChatID = msg.ChatID[idx+1:]
	}

	sessionKey := fmt.Sprintf("%s:%s", originChannel, originChatID)
	lock := l.sessionLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	sess := l.Sessions.GetOrCreate(sessionKey)

	l.setToolContexts(originChannel, originChatID)

	turns := l.Context.BuildTurns(sess.History(0), msg.Content, nil, originChannel, originChatID)
	finalContent, toolsUsed := l.runReactLoop(ctx, turns, l.Tools, l.MaxIterations)
	if finalContent == "" {
		finalContent = "Background task completed."
	}

	sess.AddTurn("user", fmt.Sprintf("[System: %s] %s", msg.SenderID, msg.Content), nil)
	sess.AddTurn("assistant", finalContent, toolsUsed)
	if err := l.Sessions.Save(sess); err != nil {
		l.log.Errorw("failed to save session", "key", sessionKey, "error", err)
	}

	l.Bus.PublishOutbound(bus.OutboundMessage{
		Channel: originChannel,
		ChatID:  originChatID,
		Content: finalContent,
	})
	return nil
}
