package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"orgrag/internal/app"
	"orgrag/internal/transport/http/response"
)

type AskHandler struct {
	ragService *app.RAGService
}

type AskRequest struct {
	Question string `json:"question" binding:"required,max=4000"`
}

func NewAskHandler(ragService *app.RAGService) *AskHandler {
	return &AskHandler{ragService: ragService}
}

// Ask answers from the caller's organization only. A fallback answer is a
// normal 200 response; 503 means the service itself is degraded.
func (h *AskHandler) Ask(c *gin.Context) {
	id, ok := getIdentityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	answer, err := h.ragService.Answer(c.Request.Context(), id.OrganizationID, req.Question)
	if err != nil {
		writeServiceError(c, err, "ask failed")
		return
	}
	response.OK(c, answer)
}
