package api

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"answergen/internal/models"
	"answergen/internal/services"
)

func TestJobManagerRunsOneAtATime(t *testing.T) {
	m := NewJobManager(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	var active, maxActive int32
	work := func(ctx context.Context, progress services.ProgressCallback) (*models.GenerationRun, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&maxActive)
			if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
				break
			}
		}
		progress("generate", "working", 1, 2)
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &models.GenerationRun{ID: "run", Records: []models.AnswerRecord{{}}}, nil
	}

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := m.Submit("paper.pdf", work)
		require.NoError(t, err)
		assert.Equal(t, JobStatusQueued, job.Status)
		ids = append(ids, job.ID)
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			job, ok := m.GetJob(id)
			if !ok || job.Status != JobStatusComplete {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxActive))

	job, _ := m.GetJob(ids[0])
	require.NotNil(t, job.Run)
	assert.Equal(t, 1, job.Run.QuestionCount)
}

func TestJobManagerRecordsFailure(t *testing.T) {
	m := NewJobManager(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	job, err := m.Submit("paper.pdf", func(ctx context.Context, progress services.ProgressCallback) (*models.GenerationRun, error) {
		return nil, services.ErrNoQuestions
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, _ := m.GetJob(job.ID)
		return j.Status == JobStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	j, _ := m.GetJob(job.ID)
	assert.Equal(t, services.ErrNoQuestions.Error(), j.Error)
	assert.NotEmpty(t, j.Guidance)
}

func TestJobManagerQueueFull(t *testing.T) {
	m := NewJobManager(1)
	noop := func(ctx context.Context, progress services.ProgressCallback) (*models.GenerationRun, error) {
		return nil, errors.New("unused")
	}

	_, err := m.Submit("a.pdf", noop)
	require.NoError(t, err)
	_, err = m.Submit("b.pdf", noop)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, percent(0, 10))
	assert.Equal(t, 50, percent(5, 10))
	assert.Equal(t, 100, percent(12, 10))
	assert.Equal(t, 0, percent(3, 0))
}

func TestJobManagerDoSharesTheWorker(t *testing.T) {
	m := NewJobManager(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var active, maxActive int32
	work := func(ctx context.Context, progress services.ProgressCallback) (*models.GenerationRun, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&maxActive)
			if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &models.GenerationRun{ID: "run"}, nil
	}

	for i := 0; i < 2; i++ {
		_, err := m.Submit("queued.pdf", work)
		require.NoError(t, err)
	}
	go m.Run(ctx)

	run, err := m.Do(ctx, "sync.pdf", work)
	require.NoError(t, err)
	assert.Equal(t, "run", run.ID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxActive))
}

func TestJobManagerDoReturnsRunError(t *testing.T) {
	m := NewJobManager(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	_, err := m.Do(ctx, "paper.pdf", func(ctx context.Context, progress services.ProgressCallback) (*models.GenerationRun, error) {
		return nil, services.ErrNoQuestions
	})
	assert.ErrorIs(t, err, services.ErrNoQuestions)
}

func TestJobManagerDoSkipsCanceledCaller(t *testing.T) {
	m := NewJobManager(1)
	var calls int32
	work := func(ctx context.Context, progress services.ProgressCallback) (*models.GenerationRun, error) {
		atomic.AddInt32(&calls, 1)
		return &models.GenerationRun{}, nil
	}

	caller, stop := context.WithCancel(context.Background())
	stop()
	_, err := m.Do(caller, "paper.pdf", work)
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool { return len(m.queue) == 0 }, 5*time.Second, 10*time.Millisecond)
	next, err := m.Submit("next.pdf", work)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, _ := m.GetJob(next.ID)
		return j.Status == JobStatusComplete
	}, 5*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestJobManagerDoQueueFull(t *testing.T) {
	m := NewJobManager(1)
	noop := func(ctx context.Context, progress services.ProgressCallback) (*models.GenerationRun, error) {
		return nil, nil
	}
	_, err := m.Submit("a.pdf", noop)
	require.NoError(t, err)
	_, err = m.Do(context.Background(), "b.pdf", noop)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestJobManagerPrune(t *testing.T) {
	m := NewJobManager(1)
	now := time.Now().UTC()
	m.jobs = map[string]*RunJob{
		"running":   {ID: "running"},
		"fresh":     {ID: "fresh", finishedAt: now.Add(-time.Minute), seen: true},
		"polled":    {ID: "polled", finishedAt: now.Add(-m.ttl - time.Second), seen: true},
		"unpolled":  {ID: "unpolled", finishedAt: now.Add(-m.ttl - time.Second)},
		"abandoned": {ID: "abandoned", finishedAt: now.Add(-abandonedJobTTL - time.Second)},
	}

	assert.Equal(t, 2, m.prune(now))

	for _, id := range []string{"running", "fresh", "unpolled"} {
		_, ok := m.jobs[id]
		assert.True(t, ok, id)
	}
	_, ok := m.GetJob("polled")
	assert.False(t, ok)
}

func TestGetJobStartsRetentionOnceFinished(t *testing.T) {
	m := NewJobManager(1)
	job, err := m.Submit("paper.pdf", nil)
	require.NoError(t, err)

	_, _ = m.GetJob(job.ID)
	assert.False(t, m.jobs[job.ID].seen, "a queued job is not marked as read")

	m.MarkFailed(job.ID, "boom", "")
	_, _ = m.GetJob(job.ID)
	assert.True(t, m.jobs[job.ID].seen)
	assert.Zero(t, m.prune(time.Now().UTC()))
	assert.Equal(t, 1, m.prune(time.Now().UTC().Add(m.ttl+time.Second)))
}
