package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"heftcoder/internal/metrics"
	"heftcoder/pkg/models"
)

// Watch streams snapshots of a job whenever its progress, status or update
// time changes. The channel closes after a terminal snapshot, when the job
// disappears, or when ctx ends. The first snapshot is sent immediately.
func (q *Queue) Watch(ctx context.Context, id string, interval time.Duration) (<-chan *models.PlanningJob, error) {
	first, err := q.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	out := make(chan *models.PlanningJob, 1)
	metrics.Get().JobWatchersOpen.Inc()

	go func() {
		defer close(out)
		defer metrics.Get().JobWatchersOpen.Dec()

		last := first
		if !send(ctx, out, first) || first.Status.IsTerminal() {
			return
		}

		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}

			job, err := q.store.Load(ctx, id)
			if err != nil {
				q.log.Debug("watched job gone", zap.String("job_id", id), zap.Error(err))
				return
			}
			if !changed(last, job) {
				continue
			}
			last = job
			if !send(ctx, out, job) || job.Status.IsTerminal() {
				return
			}
		}
	}()
	return out, nil
}

func send(ctx context.Context, out chan<- *models.PlanningJob, job *models.PlanningJob) bool {
	select {
	case out <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

func changed(a, b *models.PlanningJob) bool {
	return a.Status != b.Status || a.Progress != b.Progress || !a.UpdatedAt.Equal(b.UpdatedAt)
}
