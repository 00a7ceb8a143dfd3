package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"heftcoder/internal/secrets"
)

// WorkspaceHeader scopes secrets to a workspace.
const WorkspaceHeader = "X-Workspace-ID"

// SecretsHandler serves the secrets panel.
type SecretsHandler struct {
	service *secrets.Service
}

// NewSecretsHandler creates a new secrets handler
func NewSecretsHandler(service *secrets.Service) *SecretsHandler {
	return &SecretsHandler{service: service}
}

// SaveSecretsRequest is the body of POST /api/secrets.
type SaveSecretsRequest struct {
	Secrets map[string]string `json:"secrets" binding:"required"`
}

func workspaceOf(c *gin.Context) string {
	if ws := c.GetHeader(WorkspaceHeader); ws != "" {
		return ws
	}
	return secrets.DefaultWorkspace
}

// ListSecrets returns names and configuration state, never values.
// GET /api/secrets
func (h *SecretsHandler) ListSecrets(c *gin.Context) {
	statuses, err := h.service.List(c.Request.Context(), workspaceOf(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "SECRETS_UNAVAILABLE", "Failed to fetch secrets")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"secrets":    statuses,
		"grouped":    secrets.Group(statuses),
		"totalCount": len(statuses),
	})
}

// SaveSecrets stores every valid entry and reports the rest per name.
// POST /api/secrets
func (h *SecretsHandler) SaveSecrets(c *gin.Context) {
	var req SaveSecretsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "secrets object is required")
		return
	}
	if len(req.Secrets) == 0 {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "no secrets provided")
		return
	}

	res := h.service.Save(c.Request.Context(), workspaceOf(c), c.ClientIP(), req.Secrets)

	status := http.StatusOK
	if len(res.Saved) == 0 {
		status = http.StatusBadRequest
	}
	body := gin.H{
		"success":      len(res.Saved) > 0,
		"savedSecrets": nonNil(res.Saved),
		"message":      fmt.Sprintf("Saved %d of %d secrets", len(res.Saved), len(req.Secrets)),
	}
	if len(res.Errors) > 0 {
		body["errors"] = res.Errors
	}
	c.JSON(status, body)
}

// DeleteSecret removes one secret.
// DELETE /api/secrets/:name
func (h *SecretsHandler) DeleteSecret(c *gin.Context) {
	name := c.Param("name")
	err := h.service.Delete(c.Request.Context(), workspaceOf(c), name)
	switch {
	case errors.Is(err, secrets.ErrSecretNotFound):
		respondError(c, http.StatusNotFound, "SECRET_NOT_FOUND", "Secret not found")
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, "SECRETS_UNAVAILABLE", "Failed to delete secret")
		return
	}
	c.JSON(http.StatusOK, StandardResponse{Success: true, Message: "Secret deleted"})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
