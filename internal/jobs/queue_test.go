package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heftcoder/internal/cache"
	"heftcoder/internal/orchestrator"
	"heftcoder/pkg/models"
)

type plannerFunc func(ctx context.Context, message string) (*orchestrator.PlanOutcome, error)

func (f plannerFunc) CreatePlan(ctx context.Context, message string, _ []models.ChatMessage) (*orchestrator.PlanOutcome, error) {
	return f(ctx, message)
}

func newTestQueue(t *testing.T, planner Planner, cfg Config) (*Queue, context.CancelFunc) {
	t.Helper()
	c := cache.New(nil)
	t.Cleanup(func() { c.Close() })

	q := NewQueue(NewCacheStore(c, time.Hour), planner, cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return q, cancel
}

func waitTerminal(t *testing.T, q *Queue, id string) *models.PlanningJob {
	t.Helper()
	var job *models.PlanningJob
	require.Eventually(t, func() bool {
		var err error
		job, err = q.Status(context.Background(), id)
		return err == nil && job.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func TestQueuePlansToAwaitingApproval(t *testing.T) {
	planner := plannerFunc(func(_ context.Context, message string) (*orchestrator.PlanOutcome, error) {
		return &orchestrator.PlanOutcome{Plan: orchestrator.FallbackPlan(message)}, nil
	})
	q, _ := newTestQueue(t, planner, Config{Workers: 2, QueueSize: 4})

	job, err := q.Submit(context.Background(), "a landing page for a cafe")
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.NotEmpty(t, job.ID)

	done := waitTerminal(t, q, job.ID)
	assert.Equal(t, models.JobAwaitingApproval, done.Status)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.Plan)
	assert.Equal(t, models.ProjectLanding, done.Plan.ProjectType)
	assert.Equal(t, "a landing page for a cafe", done.Prompt)
}

func TestQueueClarifying(t *testing.T) {
	planner := plannerFunc(func(context.Context, string) (*orchestrator.PlanOutcome, error) {
		return &orchestrator.PlanOutcome{Questions: []models.ClarifyingQuestion{
			{ID: "q1", Question: "Who is it for?", Type: models.QuestionText},
		}}, nil
	})
	q, _ := newTestQueue(t, planner, Config{Workers: 1})

	job, err := q.Submit(context.Background(), "an app")
	require.NoError(t, err)

	done := waitTerminal(t, q, job.ID)
	assert.Equal(t, models.JobClarifying, done.Status)
	require.Len(t, done.ClarifyingQuestions, 1)
	assert.Nil(t, done.Plan)
}

func TestQueueFailure(t *testing.T) {
	planner := plannerFunc(func(context.Context, string) (*orchestrator.PlanOutcome, error) {
		return nil, errors.New("deadline exceeded")
	})
	q, _ := newTestQueue(t, planner, Config{Workers: 1})

	job, err := q.Submit(context.Background(), "anything")
	require.NoError(t, err)

	done := waitTerminal(t, q, job.ID)
	assert.Equal(t, models.JobFailed, done.Status)
	assert.Contains(t, done.Error, "deadline exceeded")
}

func TestQueueReportsProgressWhileWorking(t *testing.T) {
	release := make(chan struct{})
	planner := plannerFunc(func(ctx context.Context, message string) (*orchestrator.PlanOutcome, error) {
		<-release
		return &orchestrator.PlanOutcome{Plan: orchestrator.FallbackPlan(message)}, nil
	})
	q, _ := newTestQueue(t, planner, Config{Workers: 1, ProgressInterval: 5 * time.Millisecond})

	job, err := q.Submit(context.Background(), "a crm")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := q.Status(context.Background(), job.ID)
		return err == nil && snap.Status == models.JobProcessing && snap.Progress > progressCalling
	}, 5*time.Second, 5*time.Millisecond)

	snap, err := q.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, snap.Progress, progressCeiling)

	close(release)
	assert.Equal(t, 100, waitTerminal(t, q, job.ID).Progress)
}

func TestQueueFull(t *testing.T) {
	c := cache.New(nil)
	defer c.Close()
	q := NewQueue(NewCacheStore(c, time.Hour), nil, Config{Workers: 1, QueueSize: 1}, nil)

	_, err := q.Submit(context.Background(), "first")
	require.NoError(t, err)
	_, err = q.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestQueueClosedAfterRun(t *testing.T) {
	c := cache.New(nil)
	defer c.Close()
	q := NewQueue(NewCacheStore(c, time.Hour), nil, Config{Workers: 1, QueueSize: 2}, nil)

	queued, err := q.Submit(context.Background(), "never runs")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.Run(ctx))

	_, err = q.Submit(context.Background(), "late")
	assert.ErrorIs(t, err, ErrQueueClosed)

	job, err := q.Status(context.Background(), queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
}

func TestStatusUnknownJob(t *testing.T) {
	c := cache.New(nil)
	defer c.Close()
	q := NewQueue(NewCacheStore(c, time.Hour), nil, Config{}, nil)

	_, err := q.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestWatchStreamsUntilTerminal(t *testing.T) {
	release := make(chan struct{})
	planner := plannerFunc(func(_ context.Context, message string) (*orchestrator.PlanOutcome, error) {
		<-release
		return &orchestrator.PlanOutcome{Plan: orchestrator.FallbackPlan(message)}, nil
	})
	q, _ := newTestQueue(t, planner, Config{Workers: 1, ProgressInterval: time.Hour})

	job, err := q.Submit(context.Background(), "a blog")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snaps, err := q.Watch(ctx, job.ID, 2*time.Millisecond)
	require.NoError(t, err)

	first := <-snaps
	assert.Equal(t, job.ID, first.ID)
	close(release)

	var last *models.PlanningJob
	for s := range snaps {
		last = s
	}
	require.NotNil(t, last)
	assert.Equal(t, models.JobAwaitingApproval, last.Status)
}

func TestWatchUnknownJob(t *testing.T) {
	c := cache.New(nil)
	defer c.Close()
	q := NewQueue(NewCacheStore(c, time.Hour), nil, Config{}, nil)

	_, err := q.Watch(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, ErrJobNotFound)
}
