package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"orgrag/internal/pkg/jwtutil"
	"orgrag/internal/transport/http/response"
)

type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Me echoes the verified identity so clients can check which organization
// their token is bound to.
func (h *AuthHandler) Me(c *gin.Context) {
	id, ok := getIdentityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	response.OK(c, gin.H{
		"user_id":         id.UserID,
		"organization_id": id.OrganizationID,
		"role":            id.Role,
		"can_manage":      jwtutil.IsAdmin(id.Role),
	})
}
