package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is a two-file memory layer: MEMORY.md holds long-term facts
// and is overwritten wholesale, HISTORY.md is an append-only log that
// the agent can grep through later.
type Store struct {
	MemoryDir   string
	MemoryFile  string
	HistoryFile string
}

// NewStore creates a memory store under workspace/memory.
func NewStore(workspace string) (*Store, error) {
	memoryDir := filepath.Join(workspace, "memory")
	if err := os.MkdirAll(memoryDir, 0755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &Store{
		MemoryDir:   memoryDir,
		MemoryFile:  filepath.Join(memoryDir, "MEMORY.md"),
		HistoryFile: filepath.Join(memoryDir, "HISTORY.md"),
	}, nil
}

// ReadLongTerm returns the long-term memory blob, empty if absent.
func (s *Store) ReadLongTerm() (string, error) {
	data, err := os.ReadFile(s.MemoryFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// WriteLongTerm overwrites the long-term memory blob.
func (s *Store) WriteLongTerm(content string) error {
	return os.WriteFile(s.MemoryFile, []byte(content), 0644)
}

// AppendHistory adds one entry to the chronological log. Entries are
// separated by a blank line.
func (s *Store) AppendHistory(entry string) error {
	f, err := os.OpenFile(s.HistoryFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(strings.TrimRight(entry, " \t\r\n") + "\n\n")
	return err
}

// MemoryContext renders long-term memory for system prompt injection,
// empty when there is nothing to inject.
func (s *Store) MemoryContext() string {
	longTerm, err := s.ReadLongTerm()
	if err != nil || longTerm == "" {
		return ""
	}
	return "## Long-term Memory\n" + longTerm
}
