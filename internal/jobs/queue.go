package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"heftcoder/internal/metrics"
	"heftcoder/internal/orchestrator"
	"heftcoder/pkg/models"
)

// ErrQueueFull is returned by Submit when no slot is free.
var ErrQueueFull = errors.New("planning queue is full")

// ErrQueueClosed is returned by Submit after Run has returned.
var ErrQueueClosed = errors.New("planning queue is closed")

// Progress milestones reported while a job runs.
const (
	progressStarted  = 10
	progressCalling  = 40
	progressCeiling  = 85
	progressStep     = 5
	progressFinished = 100
)

// Planner produces a plan or clarifying questions for a prompt.
type Planner interface {
	CreatePlan(ctx context.Context, message string, history []models.ChatMessage) (*orchestrator.PlanOutcome, error)
}

// Config tunes the worker pool.
type Config struct {
	Workers   int
	QueueSize int
	// Timeout bounds one planning call.
	Timeout time.Duration
	// ProgressInterval is how often progress creeps toward the ceiling while
	// the architect is working.
	ProgressInterval time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		QueueSize:        64,
		Timeout:          110 * time.Second,
		ProgressInterval: 2 * time.Second,
	}
}

// Queue accepts planning jobs and runs them on a fixed pool of workers.
type Queue struct {
	store   Store
	planner Planner
	cfg     Config
	log     *zap.Logger

	tasks chan string

	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a queue. Call Run to start the workers.
func NewQueue(store Store, planner Planner, cfg Config, log *zap.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		store:   store,
		planner: planner,
		cfg:     cfg,
		log:     log.Named("jobs"),
		tasks:   make(chan string, cfg.QueueSize),
	}
}

// Submit stores a pending job for prompt and queues it.
func (q *Queue) Submit(ctx context.Context, prompt string) (*models.PlanningJob, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	now := time.Now().UTC()
	job := &models.PlanningJob{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Status:    models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.store.Save(ctx, job); err != nil {
		return nil, err
	}

	select {
	case q.tasks <- job.ID:
	default:
		job.Status = models.JobFailed
		job.Error = ErrQueueFull.Error()
		job.UpdatedAt = time.Now().UTC()
		if err := q.store.Save(ctx, job); err != nil {
			q.log.Warn("failed to record rejected job", zap.String("job_id", job.ID), zap.Error(err))
		}
		return nil, ErrQueueFull
	}

	metrics.Get().JobQueueDepth.Set(float64(len(q.tasks)))
	q.log.Debug("job queued", zap.String("job_id", job.ID))
	return job, nil
}

// Status returns the latest snapshot of a job.
func (q *Queue) Status(ctx context.Context, id string) (*models.PlanningJob, error) {
	return q.store.Load(ctx, id)
}

// Run starts the workers and blocks until ctx is cancelled. Jobs still queued
// at that point are marked failed.
func (q *Queue) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			q.work(gctx, worker)
			return nil
		})
	}
	err := g.Wait()

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.drain()

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return err
}

func (q *Queue) work(ctx context.Context, worker int) {
	log := q.log.With(zap.Int("worker", worker))
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.tasks:
			metrics.Get().JobQueueDepth.Set(float64(len(q.tasks)))
			if ctx.Err() != nil {
				q.fail(id)
				return
			}
			q.process(ctx, id, log)
		}
	}
}

// drain fails every job left in the channel.
func (q *Queue) drain() {
	for {
		select {
		case id := <-q.tasks:
			q.fail(id)
		default:
			metrics.Get().JobQueueDepth.Set(0)
			return
		}
	}
}

// fail marks a job that will never run.
func (q *Queue) fail(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := q.store.Load(ctx, id)
	if err != nil {
		return
	}
	job.Status = models.JobFailed
	job.Error = "server shutting down"
	job.UpdatedAt = time.Now().UTC()
	if err := q.store.Save(ctx, job); err != nil {
		q.log.Warn("failed to save job", zap.String("job_id", id), zap.Error(err))
	}
}

// process runs one job: processing at 10, 40 once the architect is called,
// creeping toward 85 while it works, then 100 on a terminal status.
func (q *Queue) process(ctx context.Context, id string, log *zap.Logger) {
	log = log.With(zap.String("job_id", id))
	started := time.Now()

	job, err := q.store.Load(ctx, id)
	if err != nil {
		log.Warn("queued job vanished", zap.Error(err))
		return
	}

	var mu sync.Mutex
	update := func(mutate func(*models.PlanningJob)) {
		mu.Lock()
		defer mu.Unlock()
		mutate(job)
		job.UpdatedAt = time.Now().UTC()
		if err := q.store.Save(ctx, job); err != nil {
			log.Warn("failed to save job", zap.Error(err))
		}
	}

	update(func(j *models.PlanningJob) {
		j.Status = models.JobProcessing
		j.Progress = progressStarted
	})

	callCtx := ctx
	if q.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, q.cfg.Timeout)
		defer cancel()
	}

	update(func(j *models.PlanningJob) { j.Progress = progressCalling })

	stopTicker := make(chan struct{})
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		t := time.NewTicker(q.cfg.ProgressInterval)
		defer t.Stop()
		for {
			select {
			case <-stopTicker:
				return
			case <-t.C:
				update(func(j *models.PlanningJob) {
					if j.Progress+progressStep <= progressCeiling {
						j.Progress += progressStep
					}
				})
			}
		}
	}()

	outcome, err := q.planner.CreatePlan(callCtx, job.Prompt, nil)
	close(stopTicker)
	<-tickerDone

	switch {
	case err != nil:
		update(func(j *models.PlanningJob) {
			j.Status = models.JobFailed
			j.Error = fmt.Sprintf("planning failed: %v", err)
		})
	case outcome.NeedsClarification():
		update(func(j *models.PlanningJob) {
			j.Status = models.JobClarifying
			j.Progress = progressFinished
			j.ClarifyingQuestions = outcome.Questions
		})
	default:
		update(func(j *models.PlanningJob) {
			j.Status = models.JobAwaitingApproval
			j.Progress = progressFinished
			j.Plan = outcome.Plan
		})
	}

	metrics.Get().RecordJobFinished(string(job.Status), time.Since(started))
	log.Info("job finished",
		zap.String("status", string(job.Status)),
		zap.Duration("duration", time.Since(started)))
}
