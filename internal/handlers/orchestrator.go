package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"heftcoder/internal/jobs"
	"heftcoder/internal/metrics"
	"heftcoder/internal/middleware"
	"heftcoder/pkg/events"
	"heftcoder/pkg/models"
)

// Orchestrate is the single orchestrator endpoint. plan_async and job_status
// answer with JSON; every other action answers with an event stream that
// ends with the [DONE] sentinel.
// POST /api/orchestrator
func (h *Handler) Orchestrate(c *gin.Context) {
	var req models.OrchestratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.Get().RecordAction("unknown", "invalid")
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		metrics.Get().RecordAction(string(req.Action), "invalid")
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	log := h.log.With(
		zap.String("request_id", middleware.RequestIDFrom(c)),
		zap.String("action", string(req.Action)))

	switch req.Action {
	case models.ActionPlanAsync:
		h.submitJob(c, &req, log)
	case models.ActionJobStatus:
		h.jobStatus(c, &req)
	default:
		h.stream(c, &req, log)
	}
}

func (h *Handler) submitJob(c *gin.Context, req *models.OrchestratorRequest, log *zap.Logger) {
	if h.Jobs == nil {
		metrics.Get().RecordAction(string(req.Action), "error")
		respondError(c, http.StatusServiceUnavailable, "JOBS_UNAVAILABLE", "Planning jobs are not enabled")
		return
	}

	job, err := h.Jobs.Submit(c.Request.Context(), req.Message)
	switch {
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrQueueClosed):
		metrics.Get().RecordAction(string(req.Action), "rejected")
		c.Header("Retry-After", "5")
		respondError(c, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", err.Error())
		return
	case err != nil:
		metrics.Get().RecordAction(string(req.Action), "error")
		log.Error("failed to submit planning job", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "JOB_SUBMIT_FAILED", "Failed to start planning")
		return
	}

	metrics.Get().RecordAction(string(req.Action), "ok")
	log.Info("planning job submitted", zap.String("job_id", job.ID))
	c.JSON(http.StatusAccepted, models.JobAccepted{JobID: job.ID})
}

func (h *Handler) jobStatus(c *gin.Context, req *models.OrchestratorRequest) {
	if h.Jobs == nil {
		respondError(c, http.StatusServiceUnavailable, "JOBS_UNAVAILABLE", "Planning jobs are not enabled")
		return
	}

	job, err := h.Jobs.Status(c.Request.Context(), req.JobID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		metrics.Get().RecordAction(string(req.Action), "not_found")
		respondError(c, http.StatusNotFound, "JOB_NOT_FOUND", "Planning job not found")
		return
	case err != nil:
		metrics.Get().RecordAction(string(req.Action), "error")
		respondError(c, http.StatusInternalServerError, "JOB_STATUS_FAILED", "Failed to load planning job")
		return
	}

	metrics.Get().RecordAction(string(req.Action), "ok")
	c.JSON(http.StatusOK, job)
}

func (h *Handler) stream(c *gin.Context, req *models.OrchestratorRequest, log *zap.Logger) {
	m := metrics.Get()
	m.StreamsInFlight.Inc()
	defer m.StreamsInFlight.Dec()

	events.SetStreamHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	out := events.NewWriter(c.Writer)

	ctx := c.Request.Context()
	err := h.Orchestrator.Run(ctx, req, out)

	outcome := "ok"
	switch {
	case ctx.Err() != nil:
		outcome = "cancelled"
		log.Info("client disconnected", zap.Int("frames", out.Sent()))
	case err != nil:
		outcome = "error"
		log.Warn("action failed", zap.Error(err))
	}
	m.RecordAction(string(req.Action), outcome)

	if ctx.Err() == nil {
		if err := out.Done(); err != nil {
			log.Debug("failed to finish stream", zap.Error(err))
		}
	}
}
