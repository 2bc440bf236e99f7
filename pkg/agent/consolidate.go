package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/calicobot/calico/pkg/providers"
	"github.com/calicobot/calico/pkg/session"
)

const consolidationSystemPrompt = "You are a memory consolidation agent. Respond only with valid JSON."

type consolidationResult struct {
	HistoryEntry string `json:"history_entry"`
	MemoryUpdate string `json:"memory_update"`
}

// Consolidate compresses the oldest session turns into the long-term
// memory blob and the history log, then trims the live session. Any
// fault is logged and leaves the session untouched.
func (l *AgentLoop) Consolidate(ctx context.Context, sess *session.Session, archiveAll bool) {
	if len(sess.Entries) == 0 {
		return
	}

	var old []session.Entry
	keepCount := 0
	if archiveAll {
		old = sess.Entries
	} else {
		keepCount = l.MemoryWindow / 2
		if keepCount < 2 {
			keepCount = 2
		}
		if keepCount > 10 {
			keepCount = 10
		}
		if len(sess.Entries) <= keepCount {
			return
		}
		old = sess.Entries[:len(sess.Entries)-keepCount]
	}
	if len(old) == 0 {
		return
	}

	l.log.Infow("memory consolidation started",
		"total", len(sess.Entries), "archiving", len(old), "keeping", keepCount)

	var lines []string
	for _, e := range old {
		if e.Content == "" {
			continue
		}
		toolNote := ""
		if len(e.ToolsUsed) > 0 {
			toolNote = fmt.Sprintf(" [tools: %s]", strings.Join(e.ToolsUsed, ", "))
		}
		lines = append(lines, fmt.Sprintf("[%s] %s%s: %s",
			e.Timestamp.Format("2006-01-02 15:04"), strings.ToUpper(e.Role), toolNote, e.Content))
	}
	conversation := strings.Join(lines, "\n")

	currentMemory, err := l.Memory.ReadLongTerm()
	if err != nil {
		l.log.Errorw("memory consolidation failed", "error", err)
		return
	}
	memoryForPrompt := currentMemory
	if memoryForPrompt == "" {
		memoryForPrompt = "(empty)"
	}

	prompt := fmt.Sprintf(`You are a memory consolidation agent. Process this conversation and return a JSON object with exactly two keys:

1. "history_entry": A paragraph (2-5 sentences) summarizing the key events/decisions/topics. Start with a timestamp like [YYYY-MM-DD HH:MM]. Include enough detail to be useful when found by grep search later.

2. "memory_update": The updated long-term memory content. Add any new facts: user location, preferences, personal info, habits, project context, technical decisions, tools/services used. If nothing new, return the existing content unchanged.

## Current Long-term Memory
%s

## Conversation to Process
%s

Respond with ONLY valid JSON, no markdown fences.`, memoryForPrompt, conversation)

	response, err := l.Provider.Chat(ctx, []providers.Turn{
		{Role: "system", Content: consolidationSystemPrompt},
		{Role: "user", Content: prompt},
	}, nil, l.Model)
	if err != nil {
		l.log.Errorw("memory consolidation failed", "error", err)
		return
	}

	text := strings.TrimSpace(response.Content)
	text = stripCodeFences(text)

	var result consolidationResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		l.log.Errorw("memory consolidation failed", "error", err)
		return
	}

	if result.HistoryEntry != "" {
		if err := l.Memory.AppendHistory(result.HistoryEntry); err != nil {
			l.log.Errorw("memory consolidation failed", "error", err)
			return
		}
	}
	if result.MemoryUpdate != "" && result.MemoryUpdate != currentMemory {
		if err := l.Memory.WriteLongTerm(result.MemoryUpdate); err != nil {
			l.log.Errorw("memory consolidation failed", "error", err)
			return
		}
	}

	if keepCount > 0 {
		sess.Entries = sess.Entries[len(sess.Entries)-keepCount:]
	} else {
		sess.Entries = nil
	}
	if err := l.Sessions.Save(sess); err != nil {
		l.log.Errorw("failed to save consolidated session", "key", sess.Key, "error", err)
		return
	}
	l.log.Infow("memory consolidation done", "remaining", len(sess.Entries))
}

func stripCodeFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
