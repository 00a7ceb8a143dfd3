package publish

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"heftcoder/pkg/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.PublishedPage{}))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewService(db, nil)
}

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "my-site", want: "my-site"},
		{in: "  My-Site ", want: "my-site"},
		{in: "a", want: "a"},
		{in: "-leading", wantErr: true},
		{in: "has space", wantErr: true},
		{in: "under_score", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeSlug(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidSlug, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestPublishAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	page, err := svc.Publish(ctx, Request{Slug: "Portfolio", Title: "Jane", HTML: "<h1>Hi</h1>"})
	require.NoError(t, err)
	assert.Equal(t, "portfolio", page.Slug)
	assert.NotZero(t, page.ID)

	got, err := svc.Get(ctx, "portfolio")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hi</h1>", got.HTML)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrPageNotFound)

	_, err = svc.Publish(ctx, Request{Slug: "empty", HTML: "  "})
	assert.ErrorIs(t, err, ErrEmptyHTML)
}

func TestRepublishKeepsVisits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Publish(ctx, Request{Slug: "site", HTML: "<p>v1</p>"})
	require.NoError(t, err)
	svc.RecordVisit("site")
	svc.RecordVisit("site")
	svc.WaitVisits()

	page, err := svc.Publish(ctx, Request{Slug: "site", Title: "v2", HTML: "<p>v2</p>"})
	require.NoError(t, err)
	assert.Equal(t, "<p>v2</p>", page.HTML)
	assert.Equal(t, "v2", page.Title)
	assert.EqualValues(t, 2, page.Visits)
}

func TestRecordVisitUnknownSlugIsHarmless(t *testing.T) {
	svc := newTestService(t)
	svc.RecordVisit("nobody")
	svc.WaitVisits()
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		page models.PublishedPage
		want string
	}{
		{
			name: "own title wins",
			page: models.PublishedPage{Title: "Ignored", HTML: "<html><head><title>Mine</title></head></html>"},
			want: "<html><head><title>Mine</title></head></html>",
		},
		{
			name: "injected after head",
			page: models.PublishedPage{Title: "Tom & Jerry", Description: `say "hi"`, HTML: `<html><head lang="en"><style></style></head></html>`},
			want: `<html><head lang="en"><title>Tom &amp; Jerry</title><meta name="description" content="say &#34;hi&#34;"><style></style></head></html>`,
		},
		{
			name: "head created under html",
			page: models.PublishedPage{Title: "T", HTML: "<html><body>x</body></html>"},
			want: "<html><head><title>T</title></head><body>x</body></html>",
		},
		{
			name: "fragment wrapped",
			page: models.PublishedPage{Title: "T", HTML: "<p>x</p>"},
			want: "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>T</title></head><body><p>x</p></body></html>",
		},
		{
			name: "nothing to inject",
			page: models.PublishedPage{HTML: "<p>x</p>"},
			want: "<p>x</p>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(&tt.page))
		})
	}
}

func TestNotFoundPageEscapesSlug(t *testing.T) {
	page := NotFoundPage("<script>")
	assert.Contains(t, page, "404")
	assert.Contains(t, page, "&lt;script&gt;")
	assert.NotContains(t, page, "/p/<script>")
}
