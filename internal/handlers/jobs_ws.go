package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heftcoder/internal/jobs"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Watchers only send control frames
	maxMessageSize = 512
)

func (h *Handler) upgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 {
				return true
			}
			for _, a := range allowed {
				a = strings.TrimSpace(a)
				if a == "*" || a == origin {
					return true
				}
			}
			h.log.Warn("websocket origin rejected", zap.String("origin", origin))
			return false
		},
	}
}

// WatchJob pushes PlanningJob snapshots over a websocket until the job
// reaches a terminal status.
// GET /api/jobs/:id/ws
func (h *Handler) WatchJob(c *gin.Context) {
	if h.Jobs == nil {
		respondError(c, http.StatusServiceUnavailable, "JOBS_UNAVAILABLE", "Planning jobs are not enabled")
		return
	}

	id := c.Param("id")
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	snapshots, err := h.Jobs.Watch(ctx, id, h.WatchInterval)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		respondError(c, http.StatusNotFound, "JOB_NOT_FOUND", "Planning job not found")
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, "JOB_STATUS_FAILED", "Failed to load planning job")
		return
	}

	conn, err := h.upgrader(h.AllowedOrigins).Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	defer conn.Close()

	// The reader only handles pongs and notices the client going away.
	go func() {
		defer cancel()
		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case job, ok := <-snapshots:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
				return
			}
			if err := conn.WriteJSON(job); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
