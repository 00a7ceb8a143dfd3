// Package jobs runs asynchronous planning. A submitted prompt becomes a
// PlanningJob that workers advance through pending, processing and one of the
// terminal statuses while clients poll its snapshot.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"heftcoder/internal/cache"
	"heftcoder/pkg/models"
)

// ErrJobNotFound is returned for unknown or expired job ids.
var ErrJobNotFound = errors.New("planning job not found")

// Store persists job snapshots.
type Store interface {
	Save(ctx context.Context, job *models.PlanningJob) error
	Load(ctx context.Context, id string) (*models.PlanningJob, error)
}

// CacheStore keeps snapshots in the cache under planning_job:<id>.
type CacheStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewCacheStore creates a store whose entries expire after ttl.
func NewCacheStore(c *cache.Cache, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CacheStore{cache: c, ttl: ttl}
}

// Save writes the snapshot and refreshes its TTL.
func (s *CacheStore) Save(ctx context.Context, job *models.PlanningJob) error {
	if err := s.cache.SetJSON(ctx, cache.JobKey(job.ID), job, s.ttl); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Load reads a snapshot.
func (s *CacheStore) Load(ctx context.Context, id string) (*models.PlanningJob, error) {
	var job models.PlanningJob
	if err := s.cache.GetJSON(ctx, cache.JobKey(id), &job); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return &job, nil
}
