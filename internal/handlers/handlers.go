// HeftCoder API handlers

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"heftcoder/internal/ai"
	"heftcoder/internal/middleware"
	"heftcoder/internal/orchestrator"
	"heftcoder/pkg/models"
)

// Runner executes a streaming orchestrator action.
type Runner interface {
	Run(ctx context.Context, req *models.OrchestratorRequest, out orchestrator.Emitter) error
}

// JobQueue is the asynchronous planning backend.
type JobQueue interface {
	Submit(ctx context.Context, prompt string) (*models.PlanningJob, error)
	Status(ctx context.Context, id string) (*models.PlanningJob, error)
	Watch(ctx context.Context, id string, interval time.Duration) (<-chan *models.PlanningJob, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker func(ctx context.Context) error

// ProviderHealth reports AI provider reachability.
type ProviderHealth interface {
	GetHealthStatus() map[ai.AIProvider]bool
}

// Handler contains all the dependencies for API handlers
type Handler struct {
	Orchestrator Runner
	Jobs         JobQueue
	Providers    ProviderHealth
	// Checks are run by Health, keyed by dependency name.
	Checks map[string]HealthChecker
	// WatchInterval is how often job sockets poll for changes.
	WatchInterval time.Duration
	// AllowedOrigins restricts which browser origins may open job sockets.
	// Empty or "*" allows any origin. Requests without an Origin header (CLI
	// clients) are always allowed.
	AllowedOrigins []string

	log     *zap.Logger
	started time.Time
}

// NewHandler creates a new handler instance
func NewHandler(orch Runner, jobs JobQueue, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Orchestrator:  orch,
		Jobs:          jobs,
		Checks:        make(map[string]HealthChecker),
		WatchInterval: 500 * time.Millisecond,
		log:           log.Named("handlers"),
		started:       time.Now(),
	}
}

// StandardResponse represents a standard API response
type StandardResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, middleware.NewErrorResponse(c, code, message))
}

// Health reports liveness and the state of each dependency. It answers 503
// when a dependency check fails.
// GET /health
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.Checks))
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	body := gin.H{
		"status":       status,
		"uptime":       time.Since(h.started).Round(time.Second).String(),
		"dependencies": deps,
		"timestamp":    time.Now().UTC(),
	}
	if h.Providers != nil {
		body["providers"] = h.Providers.GetHealthStatus()
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, body)
}
