package session

import (
	"time"

	"github.com/calicobot/calico/pkg/providers"
)

// Entry is one persisted conversation turn plus bookkeeping.
type Entry struct {
	providers.Turn
	Timestamp time.Time `json:"timestamp"`
	ToolsUsed []string  `json:"tools_used,omitempty"`
}

// Session is a per-conversation ordered turn log.
type Session struct {
	Key       string                 `json:"key"`
	Entries   []Entry                `json:"entries"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// NewSession creates an empty session for the given key.
func NewSession(key string) *Session {
	now := time.Now()
	return &Session{
		Key:       key,
		Entries:   make([]Entry, 0),
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  make(map[string]interface{}),
	}
}

// AddTurn appends a turn to the session log.
func (s *Session) AddTurn(role, content string, toolsUsed []string) {
	s.Entries = append(s.Entries, Entry{
		Turn:      providers.Turn{Role: role, Content: content},
		Timestamp: time.Now(),
		ToolsUsed: toolsUsed,
	})
	s.UpdatedAt = time.Now()
}

// History returns the most recent turns for LLM context.
func (s *Session) History(maxTurns int) []providers.Turn {
	entries := s.Entries
	if maxTurns > 0 && len(entries) > maxTurns {
		entries = entries[len(entries)-maxTurns:]
	}

	turns := make([]providers.Turn, 0, len(entries))
	for _, e := range entries {
		turns = append(turns, providers.Turn{Role: e.Role, Content: e.Content})
	}
	return turns
}
