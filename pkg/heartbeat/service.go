package heartbeat

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Prompt is what the agent receives on every heartbeat tick.
const Prompt = `Read HEARTBEAT.md in your workspace (if it exists).
Follow any instructions or tasks listed there.
If nothing needs attention, reply with just: HEARTBEAT_OK`

// OKToken in a reply means the agent found nothing to do.
const OKToken = "HEARTBEAT_OK"

// Service wakes the agent on a fixed interval so it can work through
// HEARTBEAT.md. Empty files are skipped without an inference call.
type Service struct {
	Workspace   string
	OnHeartbeat func(prompt string) (string, error)
	Interval    time.Duration
	Enabled     bool

	stopChan chan struct{}
	stopOnce sync.Once
	log      *zap.SugaredLogger
}

// NewService creates a heartbeat service over the given workspace.
func NewService(workspace string, intervalSeconds int, enabled bool, onHeartbeat func(string) (string, error), log *zap.SugaredLogger) *Service {
	if intervalSeconds <= 0 {
		intervalSeconds = 1800
	}
	return &Service{
		Workspace:   workspace,
		OnHeartbeat: onHeartbeat,
		Interval:    time.Duration(intervalSeconds) * time.Second,
		Enabled:     enabled,
		stopChan:    make(chan struct{}),
		log:         log,
	}
}

// HeartbeatFile returns the path to HEARTBEAT.md.
func (s *Service) HeartbeatFile() string {
	return filepath.Join(s.Workspace, "HEARTBEAT.md")
}

// Start begins the tick loop. No-op when the service is disabled.
func (s *Service) Start() {
	if !s.Enabled {
		s.log.Info("heartbeat disabled")
		return
	}
	go s.loop()
	s.log.Infow("heartbeat started", "interval", s.Interval)
}

// Stop halts the tick loop.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Service) loop() {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Service) readHeartbeatFile() string {
	data, err := os.ReadFile(s.HeartbeatFile())
	if err != nil {
		return ""
	}
	return string(data)
}

// isHeartbeatEmpty reports whether the file holds anything actionable.
// Blank lines, headings, HTML comments and bare checkboxes don't count.
func isHeartbeatEmpty(content string) bool {
	if content == "" {
		return true
	}
	skip := map[string]bool{"- [ ]": true, "* [ ]": true, "- [x]": true, "* [x]": true}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "<!--") || skip[line] {
			continue
		}
		return false
	}
	return true
}

func (s *Service) tick() {
	content := s.readHeartbeatFile()
	if isHeartbeatEmpty(content) {
		s.log.Debug("heartbeat: no tasks")
		return
	}

	s.log.Info("heartbeat: checking for tasks")
	if s.OnHeartbeat == nil {
		return
	}

	response, err := s.OnHeartbeat(Prompt)
	if err != nil {
		s.log.Errorw("heartbeat execution failed", "error", err)
		return
	}
	normalized := strings.ReplaceAll(strings.ToUpper(response), "_", "")
	if strings.Contains(normalized, strings.ReplaceAll(OKToken, "_", "")) {
		s.log.Info("heartbeat: OK (no action needed)")
	} else {
		s.log.Info("heartbeat: completed task")
	}
}

// TriggerNow runs one heartbeat pass immediately.
func (s *Service) TriggerNow() (string, error) {
	if s.OnHeartbeat == nil {
		return "", nil
	}
	return s.OnHeartbeat(Prompt)
}
