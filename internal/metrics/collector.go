package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StorageCollector periodically refreshes gauges derived from database rows.
type StorageCollector struct {
	db       *gorm.DB
	metrics  *Metrics
	interval time.Duration
	log      *zap.Logger
	stopCh   chan struct{}
}

// NewStorageCollector creates a collector that polls db every interval.
func NewStorageCollector(db *gorm.DB, interval time.Duration, log *zap.Logger) *StorageCollector {
	if log == nil {
		log = zap.NewNop()
	}
	return &StorageCollector{
		db:       db,
		metrics:  Get(),
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic collection until ctx is done or Stop is called.
func (sc *StorageCollector) Start(ctx context.Context) {
	go func() {
		sc.Collect()

		ticker := time.NewTicker(sc.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sc.Collect()
			case <-sc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the collector
func (sc *StorageCollector) Stop() {
	close(sc.stopCh)
}

// Collect performs a single collection cycle.
func (sc *StorageCollector) Collect() {
	if sc.db == nil {
		return
	}
	if n, ok := sc.count("published_pages"); ok {
		sc.metrics.PublishedPages.Set(float64(n))
	}
	if n, ok := sc.count("secrets"); ok {
		sc.metrics.SecretsConfigured.Set(float64(n))
	}
}

func (sc *StorageCollector) count(table string) (int64, bool) {
	var n int64
	if err := sc.db.Table(table).Count(&n).Error; err != nil {
		sc.log.Debug("metrics count failed", zap.String("table", table), zap.Error(err))
		return 0, false
	}
	return n, true
}
