package api

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"answergen/internal/models"
	"answergen/internal/services"
)

const (
	JobStatusQueued   = "queued"
	JobStatusRunning  = "running"
	JobStatusComplete = "complete"
	JobStatusFailed   = "failed"
)

const (
	// finishedJobTTL is how long a finished job stays pollable after a
	// client has seen its final state.
	finishedJobTTL = 10 * time.Minute
	// abandonedJobTTL bounds finished jobs that nobody ever read.
	abandonedJobTTL = 24 * time.Hour
	pruneInterval   = time.Minute
)

// ErrQueueFull is returned by Submit and Do when no more runs can wait.
var ErrQueueFull = errors.New("run queue is full")

// RunJob tracks one queued generation run that the frontend polls.
type RunJob struct {
	ID         string             `json:"jobId"`
	Status     string             `json:"status"`
	SourceName string             `json:"sourceName"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
	Step       string             `json:"step,omitempty"`
	Message    string             `json:"message,omitempty"`
	Current    int                `json:"current"`
	Total      int                `json:"total"`
	Percent    int                `json:"percent"`
	Run        *models.RunSummary `json:"run,omitempty"`
	Error      string             `json:"error,omitempty"`
	Guidance   string             `json:"guidance,omitempty"`

	finishedAt time.Time
	seen       bool
}

// JobFunc performs the run behind a job.
type JobFunc func(ctx context.Context, progress services.ProgressCallback) (*models.GenerationRun, error)

type jobResult struct {
	run *models.GenerationRun
	err error
}

type queuedJob struct {
	id string
	fn JobFunc
	// caller and done are set for runs a request waits on through Do.
	caller context.Context
	done   chan<- jobResult
}

// JobManager queues runs for a single worker so that no two runs overlap.
type JobManager struct {
	mu    sync.Mutex
	jobs  map[string]*RunJob
	queue chan queuedJob
	ttl   time.Duration
}

func NewJobManager(queueSize int) *JobManager {
	if queueSize < 1 {
		queueSize = 1
	}
	return &JobManager{
		jobs:  make(map[string]*RunJob),
		queue: make(chan queuedJob, queueSize),
		ttl:   finishedJobTTL,
	}
}

// Run works through queued jobs one at a time until ctx is done.
func (m *JobManager) Run(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.prune(time.Now().UTC()); n > 0 {
				log.Debug().Int("jobs", n).Msg("pruned finished jobs")
			}
		case q := <-m.queue:
			m.process(ctx, q)
		}
	}
}

// Submit queues fn and returns a snapshot of the new job.
func (m *JobManager) Submit(sourceName string, fn JobFunc) (*RunJob, error) {
	return m.enqueue(sourceName, queuedJob{fn: fn})
}

// Do queues fn behind earlier runs and waits for its result. The run is
// canceled when ctx is done.
func (m *JobManager) Do(ctx context.Context, sourceName string, fn JobFunc) (*models.GenerationRun, error) {
	done := make(chan jobResult, 1)
	job, err := m.enqueue(sourceName, queuedJob{fn: fn, caller: ctx, done: done})
	if err != nil {
		return nil, err
	}
	select {
	case res := <-done:
		m.withJob(job.ID, func(j *RunJob) { j.seen = true })
		return res.run, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *JobManager) enqueue(sourceName string, q queuedJob) (*RunJob, error) {
	now := time.Now().UTC()
	job := &RunJob{
		ID:         uuid.NewString(),
		Status:     JobStatusQueued,
		SourceName: sourceName,
		CreatedAt:  now,
		UpdatedAt:  now,
		Message:    "Waiting for earlier runs to finish",
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snapshot := job.clone()
	m.mu.Unlock()

	q.id = job.ID
	select {
	case m.queue <- q:
		return snapshot, nil
	default:
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, ErrQueueFull
	}
}

// GetJob returns a snapshot of the job. Reading a finished job starts its
// retention countdown.
func (m *JobManager) GetJob(id string) (*RunJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	if !job.finishedAt.IsZero() {
		job.seen = true
	}
	return job.clone(), true
}

func (m *JobManager) process(ctx context.Context, q queuedJob) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if q.caller != nil {
		stop := context.AfterFunc(q.caller, cancel)
		defer stop()
	}

	m.withJob(q.id, func(job *RunJob) {
		job.Status = JobStatusRunning
		job.Message = "Starting"
	})

	var (
		run *models.GenerationRun
		err error
	)
	if q.caller != nil && q.caller.Err() != nil {
		err = q.caller.Err()
	} else {
		run, err = q.fn(runCtx, func(step, message string, current, total int) {
			m.UpdateProgress(q.id, step, message, current, total)
		})
	}

	if err != nil {
		_, msg, guidance := errorResponse(err)
		log.Error().Err(err).Str("job_id", q.id).Msg("run job failed")
		m.MarkFailed(q.id, msg, guidance)
	} else {
		m.MarkComplete(q.id, run.Summary())
	}
	if q.done != nil {
		q.done <- jobResult{run: run, err: err}
	}
}

// prune forgets finished jobs that were read more than ttl ago, and any
// finished job older than abandonedJobTTL.
func (m *JobManager) prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, job := range m.jobs {
		if job.finishedAt.IsZero() {
			continue
		}
		age := now.Sub(job.finishedAt)
		if (job.seen && age > m.ttl) || age > abandonedJobTTL {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

func (m *JobManager) UpdateProgress(id, step, message string, current, total int) {
	m.withJob(id, func(job *RunJob) {
		job.Step = step
		job.Message = message
		job.Current = current
		job.Total = total
		job.Percent = percent(current, total)
	})
}

func (m *JobManager) MarkComplete(id string, summary models.RunSummary) {
	m.withJob(id, func(job *RunJob) {
		job.Status = JobStatusComplete
		job.Step = "complete"
		job.Message = "Answer document ready"
		job.Current = 100
		job.Total = 100
		job.Percent = 100
		job.Run = &summary
		job.Error = ""
		job.finishedAt = time.Now().UTC()
	})
}

func (m *JobManager) MarkFailed(id, message, guidance string) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = "processing error"
	}
	m.withJob(id, func(job *RunJob) {
		job.Status = JobStatusFailed
		job.Step = "error"
		job.Message = msg
		job.Error = msg
		job.Guidance = guidance
		job.finishedAt = time.Now().UTC()
	})
}

func (m *JobManager) withJob(id string, fn func(job *RunJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
}

func (job *RunJob) clone() *RunJob {
	if job == nil {
		return nil
	}
	c := *job
	if job.Run != nil {
		run := *job.Run
		c.Run = &run
	}
	return &c
}

func percent(current, total int) int {
	if total <= 0 || current <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	return int((float64(current) / float64(total)) * 100)
}
