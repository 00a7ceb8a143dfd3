package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"heftcoder/internal/publish"
)

// PublishHandler publishes generated sites and serves them by slug.
type PublishHandler struct {
	service *publish.Service
	baseURL string
}

// NewPublishHandler creates a handler. baseURL prefixes the returned page
// URLs; empty means relative URLs.
func NewPublishHandler(service *publish.Service, baseURL string) *PublishHandler {
	return &PublishHandler{service: service, baseURL: strings.TrimRight(baseURL, "/")}
}

// Publish stores a page.
// POST /api/publish
func (h *PublishHandler) Publish(c *gin.Context) {
	var req publish.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "slug and html are required")
		return
	}

	page, err := h.service.Publish(c.Request.Context(), req)
	switch {
	case errors.Is(err, publish.ErrInvalidSlug), errors.Is(err, publish.ErrEmptyHTML):
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, "PUBLISH_FAILED", "Failed to publish page")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"url":     h.baseURL + "/p/" + page.Slug,
		"page":    page,
	})
}

// Serve renders a published page and counts the visit.
// GET /p/:slug
func (h *PublishHandler) Serve(c *gin.Context) {
	raw := c.Param("slug")
	slug, err := publish.NormalizeSlug(raw)
	if err != nil {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(publish.NotFoundPage(raw)))
		return
	}

	page, err := h.service.Get(c.Request.Context(), slug)
	switch {
	case errors.Is(err, publish.ErrPageNotFound):
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(publish.NotFoundPage(slug)))
		return
	case err != nil:
		c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("failed to load page"))
		return
	}

	h.service.RecordVisit(slug)
	c.Header("Cache-Control", "public, max-age=60")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(publish.Render(page)))
}
