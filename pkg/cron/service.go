package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	cronparser "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Service runs scheduled jobs from a JSON-backed store. Due jobs are
// handed to OnJob; delivery is the callback's problem.
type Service struct {
	StorePath string
	OnJob     func(Job)

	store    *Store
	running  bool
	stopChan chan struct{}
	mu       sync.RWMutex
	log      *zap.SugaredLogger
}

// NewService creates a cron service persisting jobs at storePath.
func NewService(storePath string, onJob func(Job), log *zap.SugaredLogger) *Service {
	return &Service{
		StorePath: storePath,
		OnJob:     onJob,
		stopChan:  make(chan struct{}),
		log:       log,
	}
}

func nowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

func (s *Service) computeNextRun(schedule Schedule, now int64) int64 {
	switch schedule.Kind {
	case "at":
		return schedule.AtMs
	case "every":
		if schedule.EveryMs <= 0 {
			return 0
		}
		return now + schedule.EveryMs
	case "cron":
		if schedule.Expr == "" {
			return 0
		}
		parser := cronparser.NewParser(cronparser.Minute | cronparser.Hour | cronparser.Dom | cronparser.Month | cronparser.Dow)
		sched, err := parser.Parse(schedule.Expr)
		if err != nil {
			s.log.Warnw("invalid cron expression", "expr", schedule.Expr, "error", err)
			return 0
		}
		next := sched.Next(time.Unix(0, now*int64(time.Millisecond)))
		return next.UnixNano() / int64(time.Millisecond)
	}
	return 0
}

func (s *Service) loadStore() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		return
	}
	s.store = &Store{Version: 1, Jobs: []Job{}}

	data, err := os.ReadFile(s.StorePath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnw("failed to load cron store", "path", s.StorePath, "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, s.store); err != nil {
		s.log.Warnw("failed to parse cron store", "path", s.StorePath, "error", err)
	}
}

func (s *Service) saveStore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveStoreLocked()
}

func (s *Service) saveStoreLocked() {
	if s.store == nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.StorePath), 0755); err != nil {
		s.log.Warnw("failed to create cron store dir", "error", err)
		return
	}
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		s.log.Warnw("failed to marshal cron store", "error", err)
		return
	}
	if err := os.WriteFile(s.StorePath, data, 0644); err != nil {
		s.log.Warnw("failed to save cron store", "path", s.StorePath, "error", err)
	}
}

// Start loads the store, recomputes schedules and begins the run loop.
func (s *Service) Start() {
	s.loadStore()
	s.recomputeNextRuns()
	s.saveStore()

	s.mu.Lock()
	s.running = true
	n := len(s.store.Jobs)
	s.mu.Unlock()

	go s.loop()
	s.log.Infow("cron service started", "jobs", n)
}

// Stop halts the run loop.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()
	close(s.stopChan)
}

func (s *Service) recomputeNextRuns() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return
	}
	now := nowMs()
	for i := range s.store.Jobs {
		job := &s.store.Jobs[i]
		if job.Enabled {
			job.State.NextRunAtMs = s.computeNextRun(job.Schedule, now)
		}
	}
}

func (s *Service) getNextWakeMs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.store == nil {
		return 0
	}
	var minNext int64
	for _, job := range s.store.Jobs {
		if job.Enabled && job.State.NextRunAtMs > 0 {
			if minNext == 0 || job.State.NextRunAtMs < minNext {
				minNext = job.State.NextRunAtMs
			}
		}
	}
	return minNext
}

func (s *Service) loop() {
	for {
		s.mu.RLock()
		running := s.running
		s.mu.RUnlock()
		if !running {
			return
		}

		nextWake := s.getNextWakeMs()
		now := nowMs()

		var delay time.Duration
		if nextWake > 0 && nextWake > now {
			delay = time.Duration(nextWake-now) * time.Millisecond
		} else if nextWake == 0 {
			delay = 10 * time.Second
		}
		// Wake at least every 10s so freshly added jobs get noticed.
		if delay > 10*time.Second {
			delay = 10 * time.Second
		}

		select {
		case <-s.stopChan:
			return
		case <-time.After(delay):
			s.processJobs()
		}
	}
}

func (s *Service) processJobs() {
	s.mu.Lock()
	if s.store == nil {
		s.mu.Unlock()
		return
	}
	now := nowMs()
	var due []Job
	for _, job := range s.store.Jobs {
		if job.Enabled && job.State.NextRunAtMs > 0 && now >= job.State.NextRunAtMs {
			due = append(due, job)
		}
	}
	s.mu.Unlock()

	for i := range due {
		job := due[i]
		s.executeJob(&job)

		s.mu.Lock()
		storeIdx := -1
		for j, existing := range s.store.Jobs {
			if existing.ID == job.ID {
				storeIdx = j
				break
			}
		}
		if storeIdx != -1 {
			s.store.Jobs[storeIdx] = job
			if job.Schedule.Kind == "at" {
				if job.DeleteAfterRun {
					s.store.Jobs = append(s.store.Jobs[:storeIdx], s.store.Jobs[storeIdx+1:]...)
				} else {
					s.store.Jobs[storeIdx].Enabled = false
					s.store.Jobs[storeIdx].State.NextRunAtMs = 0
				}
			} else {
				s.store.Jobs[storeIdx].State.NextRunAtMs = s.computeNextRun(job.Schedule, nowMs())
			}
		}
		s.mu.Unlock()
	}

	if len(due) > 0 {
		s.saveStore()
	}
}

func (s *Service) executeJob(job *Job) {
	s.log.Infow("executing cron job", "name", job.Name, "id", job.ID)
	startMs := nowMs()

	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("panic executing cron job", "id", job.ID, "panic", r)
			job.State.LastStatus = "error"
			job.State.LastError = fmt.Sprintf("panic: %v", r)
		}
	}()

	if s.OnJob != nil {
		s.OnJob(*job)
	}

	job.State.LastStatus = "ok"
	job.State.LastError = ""
	job.State.LastRunAtMs = startMs
	job.UpdatedAtMs = nowMs()
}

// ListJobs returns a copy of all jobs sorted by next run time.
func (s *Service) ListJobs() []Job {
	s.loadStore()

	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, len(s.store.Jobs))
	copy(jobs, s.store.Jobs)

	sort.Slice(jobs, func(i, j int) bool {
		n1, n2 := jobs[i].State.NextRunAtMs, jobs[j].State.NextRunAtMs
		if n1 == 0 {
			return false
		}
		if n2 == 0 {
			return true
		}
		return n1 < n2
	})
	return jobs
}

// AddJob creates, persists and schedules a new job. Before the run
// loop starts, the on-disk store is loaded first so earlier jobs
// survive the rewrite.
func (s *Service) AddJob(name string, schedule Schedule, message string, deliver bool, channel, to string, deleteAfterRun bool) Job {
	s.loadStore()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMs()
	job := Job{
		ID:       uuid.New().String()[:8],
		Name:     name,
		Enabled:  true,
		Schedule: schedule,
		Payload: Payload{
			Kind:    "agent_turn",
			Message: message,
			Deliver: deliver,
			Channel: channel,
			To:      to,
		},
		State: JobState{
			NextRunAtMs: s.computeNextRun(schedule, now),
		},
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		DeleteAfterRun: deleteAfterRun,
	}

	s.store.Jobs = append(s.store.Jobs, job)
	s.saveStoreLocked()
	return job
}

// RemoveJob deletes a job by ID. Returns false when no such job exists.
func (s *Service) RemoveJob(jobID string) bool {
	s.loadStore()

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Job, 0, len(s.store.Jobs))
	found := false
	for _, job := range s.store.Jobs {
		if job.ID == jobID {
			found = true
			continue
		}
		kept = append(kept, job)
	}
	if found {
		s.store.Jobs = kept
		s.saveStoreLocked()
	}
	return found
}
