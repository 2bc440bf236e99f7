package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type metadataRecord struct {
	Type      string                 `json:"_type"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// Manager owns the session cache and its file-backed store. Sessions
// are one jsonl file each: a metadata record first, then one record
// per turn, rewritten wholesale on every save.
type Manager struct {
	Workspace   string
	SessionsDir string
	cache       map[string]*Session
	mu          sync.RWMutex
	log         *zap.SugaredLogger
}

// NewManager creates a session manager rooted at workspace/sessions.
func NewManager(workspace string, log *zap.SugaredLogger) *Manager {
	sessionsDir := filepath.Join(workspace, "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		log.Warnw("failed to create sessions dir", "dir", sessionsDir, "error", err)
	}
	return &Manager{
		Workspace:   workspace,
		SessionsDir: sessionsDir,
		cache:       make(map[string]*Session),
		log:         log,
	}
}

func (m *Manager) sessionPath(key string) string {
	safeKey := strings.ReplaceAll(key, ":", "_")
	safeKey = strings.ReplaceAll(safeKey, string(filepath.Separator), "_")
	return filepath.Join(m.SessionsDir, safeKey+".jsonl")
}

// GetOrCreate returns the cached session for key, loading it from disk
// or creating a fresh one as needed.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.cache[key]; ok {
		return session
	}
	session := m.load(key)
	if session == nil {
		session = NewSession(key)
	}
	m.cache[key] = session
	return session
}

func (m *Manager) load(key string) *Session {
	file, err := os.Open(m.sessionPath(key))
	if err != nil {
		return nil
	}
	defer file.Close()

	session := NewSession(key)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if first {
			first = false
			var meta metadataRecord
			if err := json.Unmarshal([]byte(line), &meta); err == nil && meta.Type == "metadata" {
				session.CreatedAt = meta.CreatedAt
				session.UpdatedAt = meta.UpdatedAt
				if meta.Metadata != nil {
					session.Metadata = meta.Metadata
				}
				continue
			}
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			m.log.Warnw("skipping corrupt session record", "key", key, "error", err)
			continue
		}
		session.Entries = append(session.Entries, entry)
	}
	return session
}

// Save rewrites the session file in full.
func (m *Manager) Save(session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache[session.Key] = session
	path := m.sessionPath(session.Key)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	meta := metadataRecord{
		Type:      "metadata",
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
		Metadata:  session.Metadata,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	w.Write(metaJSON)
	w.WriteByte('\n')

	for _, entry := range session.Entries {
		entryJSON, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal session entry: %w", err)
		}
		w.Write(entryJSON)
		w.WriteByte('\n')
	}
	return w.Flush()
}

// Clear drops a session from the cache and removes its file.
func (m *Manager) Clear(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cache, key)
	err := os.Remove(m.sessionPath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
