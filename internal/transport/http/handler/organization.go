package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"orgrag/internal/app"
	"orgrag/internal/transport/http/response"
)

type OrganizationHandler struct {
	orgService *app.OrganizationService
}

type CreateOrganizationRequest struct {
	Name        string `json:"name" binding:"required,max=128"`
	Description string `json:"description" binding:"max=2000"`
}

type UpdateOrganizationRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func NewOrganizationHandler(orgService *app.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{orgService: orgService}
}

func (h *OrganizationHandler) Create(c *gin.Context) {
	var req CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	org, err := h.orgService.Create(c.Request.Context(), app.CreateOrganizationInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(c, err, "create organization failed")
		return
	}
	response.OK(c, org)
}

func (h *OrganizationHandler) List(c *gin.Context) {
	orgs, err := h.orgService.List(c.Request.Context())
	if err != nil {
		writeServiceError(c, err, "list organizations failed")
		return
	}
	response.OK(c, orgs)
}

func (h *OrganizationHandler) Update(c *gin.Context) {
	var req UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	org, err := h.orgService.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		writeServiceError(c, err, "update organization failed")
		return
	}
	response.OK(c, org)
}
