package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"orgrag/internal/app"
	"orgrag/internal/isolation"
	"orgrag/internal/transport/http/middleware"
	"orgrag/internal/transport/http/response"
)

type identity struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
}

func getIdentityFromContext(c *gin.Context) (identity, bool) {
	id := identity{
		UserID:         c.GetString(middleware.ContextUserIDKey),
		OrganizationID: c.GetString(middleware.ContextOrganizationIDKey),
		Role:           c.GetString(middleware.ContextRoleKey),
	}
	if id.UserID == "" || id.OrganizationID == "" {
		return identity{}, false
	}
	return id, true
}

// writeServiceError maps service sentinels onto status codes. fallback is the
// message used for unexpected errors.
func writeServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrOrganizationNotFound):
		response.Error(c, http.StatusNotFound, response.CodeOrganizationNotFound, err.Error())
	case errors.Is(err, app.ErrOrganizationInactive):
		response.Error(c, http.StatusForbidden, response.CodeOrganizationInactive, err.Error())
	case errors.Is(err, app.ErrDocumentConflict):
		response.Error(c, http.StatusConflict, response.CodeDocumentConflict, err.Error())
	case errors.Is(err, app.ErrOrganizationExists):
		response.Error(c, http.StatusConflict, response.CodeOrganizationExists, err.Error())
	case errors.Is(err, app.ErrServiceDegraded):
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceDegraded, "answering service is temporarily unavailable")
	case errors.Is(err, app.ErrAsyncDisabled), errors.Is(err, app.ErrIngestEnqueue):
		response.Error(c, http.StatusServiceUnavailable, response.CodeAsyncUnavailable, err.Error())
	case errors.Is(err, isolation.ErrViolation):
		response.Error(c, http.StatusInternalServerError, response.CodeIsolationViolation, "internal error")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
