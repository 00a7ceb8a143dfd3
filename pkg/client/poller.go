package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"heftcoder/pkg/models"
)

// ErrPollTimeout is returned when a planning job is still running after
// Config.PollTimeout.
var ErrPollTimeout = errors.New("planning took too long, please try again")

// Clock abstracts time for the poller.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// jobFetcher is the part of Transport the poller needs.
type jobFetcher interface {
	JobStatus(ctx context.Context, jobID string) (*models.PlanningJob, error)
}

// poller polls one job at a fixed interval. The ceiling is measured from the
// first poll, not per request. A failed request ends polling; only a job that
// is still running schedules another poll.
type poller struct {
	fetch    jobFetcher
	clock    Clock
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// run polls until the job reaches a terminal status. onSnapshot sees every
// snapshot, including the terminal one.
func (p *poller) run(ctx context.Context, jobID string, onSnapshot func(*models.PlanningJob)) (*models.PlanningJob, error) {
	start := p.clock.Now()
	polls := 0
	for {
		if elapsed := p.clock.Now().Sub(start); elapsed >= p.timeout {
			p.log.Warn("planning job timed out",
				zap.String("job_id", jobID),
				zap.Int("polls", polls),
				zap.Duration("elapsed", elapsed))
			return nil, ErrPollTimeout
		}

		job, err := p.fetch.JobStatus(ctx, jobID)
		polls++
		if err != nil {
			return nil, fmt.Errorf("poll job %s: %w", jobID, err)
		}
		onSnapshot(job)
		if job.Status.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.clock.After(p.interval):
		}
	}
}
