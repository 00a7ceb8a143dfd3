// Package publish stores generated sites under public slugs and renders them
// for visitors.
package publish

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"heftcoder/internal/metrics"
	"heftcoder/pkg/models"
)

var (
	ErrPageNotFound = errors.New("published page not found")
	ErrInvalidSlug  = errors.New("slug must be 1-63 lower-case letters, digits or dashes")
	ErrEmptyHTML    = errors.New("html is required")
)

var slugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// Request is the body of a publish call.
type Request struct {
	Slug        string `json:"slug" binding:"required"`
	Title       string `json:"title"`
	Description string `json:"description"`
	HTML        string `json:"html" binding:"required"`
}

// NormalizeSlug lower-cases and trims a slug and checks its shape.
func NormalizeSlug(slug string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(slug))
	if !slugRe.MatchString(s) {
		return "", ErrInvalidSlug
	}
	return s, nil
}

// Service persists published pages.
type Service struct {
	db  *gorm.DB
	log *zap.Logger

	visits sync.WaitGroup
}

// NewService creates a Service.
func NewService(db *gorm.DB, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, log: log.Named("publish")}
}

// Publish stores a page, replacing any page already under the slug. The visit
// count of a replaced page is kept.
func (s *Service) Publish(ctx context.Context, req Request) (*models.PublishedPage, error) {
	slug, err := NormalizeSlug(req.Slug)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.HTML) == "" {
		return nil, ErrEmptyHTML
	}

	now := time.Now().UTC()
	page := &models.PublishedPage{
		Slug:        slug,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		HTML:        req.HTML,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "html", "updated_at"}),
	}).Create(page).Error
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", slug, err)
	}

	s.log.Info("page published", zap.String("slug", slug), zap.Int("bytes", len(req.HTML)))
	return s.Get(ctx, slug)
}

// Get loads a page by slug.
func (s *Service) Get(ctx context.Context, slug string) (*models.PublishedPage, error) {
	var page models.PublishedPage
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&page).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load page %s: %w", slug, err)
	}
	return &page, nil
}

// RecordVisit increments the visit counter in the background. Failures are
// logged and never reach the visitor.
func (s *Service) RecordVisit(slug string) {
	s.visits.Add(1)
	go func() {
		defer s.visits.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := s.db.WithContext(ctx).Model(&models.PublishedPage{}).
			Where("slug = ?", slug).
			UpdateColumn("visits", gorm.Expr("visits + ?", 1)).Error
		if err != nil {
			s.log.Warn("failed to count visit", zap.String("slug", slug), zap.Error(err))
			return
		}
		metrics.Get().PageVisitsTotal.Inc()
	}()
}

// WaitVisits blocks until pending visit updates finish.
func (s *Service) WaitVisits() {
	s.visits.Wait()
}
