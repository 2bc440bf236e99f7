package cron

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/calicobot/calico/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	storePath := filepath.Join(t.TempDir(), "cron.json")
	return NewService(storePath, nil, logging.Nop())
}

func TestAddJobPersists(t *testing.T) {
	s := newTestService(t)

	job := s.AddJob("remind me", Schedule{Kind: "every", EveryMs: 60000}, "drink water", true, "telegram", "42", false)
	assert.NotEmpty(t, job.ID)
	assert.True(t, job.Enabled)
	assert.Equal(t, "agent_turn", job.Payload.Kind)
	assert.Greater(t, job.State.NextRunAtMs, int64(0))

	data, err := os.ReadFile(s.StorePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "drink water")

	// A fresh service sees the stored job.
	s2 := NewService(s.StorePath, nil, logging.Nop())
	s2.loadStore()
	jobs := s2.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
}

func TestAddJobBeforeStartKeepsStoredJobs(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "cron.json")

	first := NewService(storePath, nil, logging.Nop())
	kept := first.AddJob("earlier", Schedule{Kind: "every", EveryMs: 60000}, "water the plants", false, "", "", false)

	// A new process adds a job without ever calling Start; the job
	// saved by the previous run must survive the rewrite.
	second := NewService(storePath, nil, logging.Nop())
	added := second.AddJob("later", Schedule{Kind: "every", EveryMs: 60000}, "stretch", false, "", "", false)

	jobs := second.ListJobs()
	require.Len(t, jobs, 2)
	ids := []string{jobs[0].ID, jobs[1].ID}
	assert.Contains(t, ids, kept.ID)
	assert.Contains(t, ids, added.ID)

	data, err := os.ReadFile(storePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "water the plants")
	assert.Contains(t, string(data), "stretch")
}

func TestRemoveJob(t *testing.T) {
	s := newTestService(t)
	job := s.AddJob("one", Schedule{Kind: "every", EveryMs: 1000}, "m", false, "", "", false)

	assert.True(t, s.RemoveJob(job.ID))
	assert.False(t, s.RemoveJob(job.ID))
	assert.Empty(t, s.ListJobs())
}

func TestComputeNextRun(t *testing.T) {
	s := newTestService(t)
	now := time.Now().UnixNano() / int64(time.Millisecond)

	at := s.computeNextRun(Schedule{Kind: "at", AtMs: now + 5000}, now)
	assert.Equal(t, now+5000, at)

	every := s.computeNextRun(Schedule{Kind: "every", EveryMs: 2000}, now)
	assert.Equal(t, now+2000, every)

	assert.Zero(t, s.computeNextRun(Schedule{Kind: "every"}, now))
	assert.Zero(t, s.computeNextRun(Schedule{Kind: "cron", Expr: "not a cron expr"}, now))

	next := s.computeNextRun(Schedule{Kind: "cron", Expr: "0 9 * * *"}, now)
	assert.Greater(t, next, now)
}

func TestProcessJobsFiresDueJob(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "cron.json")
	fired := make(chan Job, 1)
	s := NewService(storePath, func(job Job) { fired <- job }, logging.Nop())
	s.loadStore()

	now := time.Now().UnixNano() / int64(time.Millisecond)
	s.AddJob("due now", Schedule{Kind: "at", AtMs: now - 1000}, "go", true, "cli", "direct", true)

	s.processJobs()

	select {
	case job := <-fired:
		assert.Equal(t, "due now", job.Name)
	default:
		t.Fatal("due job did not fire")
	}

	// One-shot with deleteAfterRun is removed after firing.
	assert.Empty(t, s.ListJobs())
}

func TestRecurringJobReschedules(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "cron.json")
	s := NewService(storePath, func(Job) {}, logging.Nop())
	s.loadStore()

	now := time.Now().UnixNano() / int64(time.Millisecond)
	job := s.AddJob("tick", Schedule{Kind: "every", EveryMs: 60000}, "m", false, "", "", false)

	// Force it due, then process.
	s.mu.Lock()
	s.store.Jobs[0].State.NextRunAtMs = now - 1
	s.mu.Unlock()

	s.processJobs()

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
	assert.Greater(t, jobs[0].State.NextRunAtMs, now)
	assert.Equal(t, "ok", jobs[0].State.LastStatus)
}
