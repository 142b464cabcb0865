package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"orgrag/internal/app"
	"orgrag/internal/model"
	"orgrag/internal/pkg/textextract"
	"orgrag/internal/transport/http/response"
)

type DocumentHandler struct {
	ragService *app.RAGService
	maxUpload  int64
}

type CreateTextDocumentRequest struct {
	DocumentID string `json:"document_id" binding:"max=36"`
	Name       string `json:"name" binding:"max=256"`
	Format     string `json:"format" binding:"omitempty,oneof=txt text md markdown csv"`
	Content    string `json:"content" binding:"required"`
}

// NewDocumentHandler limits uploads to maxUpload bytes; zero means 10 MB.
func NewDocumentHandler(ragService *app.RAGService, maxUpload int64) *DocumentHandler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &DocumentHandler{ragService: ragService, maxUpload: maxUpload}
}

// Upload accepts a multipart form with "file" and optional "name" and
// "document_id". With ?async=true the document is queued instead of processed inline.
func (h *DocumentHandler) Upload(c *gin.Context) {
	id, ok := getIdentityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > h.maxUpload {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, "file too large")
		return
	}
	if _, err := textextract.ParseFormat(file.Filename); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFormat, err.Error())
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	if int64(len(data)) > h.maxUpload {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, "file too large")
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = filepath.Base(file.Filename)
	}

	h.ingest(c, app.IngestInput{
		OrganizationID: id.OrganizationID,
		DocumentID:     strings.TrimSpace(c.PostForm("document_id")),
		Name:           name,
		Format:         file.Filename,
		Data:           data,
		UploadedBy:     id.UserID,
	})
}

// CreateText ingests plain text sent as JSON.
func (h *DocumentHandler) CreateText(c *gin.Context) {
	id, ok := getIdentityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateTextDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if int64(len(req.Content)) > h.maxUpload {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, "content too large")
		return
	}
	format := req.Format
	if format == "" {
		format = "txt"
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Untitled"
	}

	h.ingest(c, app.IngestInput{
		OrganizationID: id.OrganizationID,
		DocumentID:     req.DocumentID,
		Name:           name,
		Format:         format,
		Data:           []byte(req.Content),
		UploadedBy:     id.UserID,
	})
}

func (h *DocumentHandler) ingest(c *gin.Context, input app.IngestInput) {
	if c.Query("async") == "true" {
		result, err := h.ragService.EnqueueIngest(c.Request.Context(), input)
		if err != nil {
			writeServiceError(c, err, "enqueue document failed")
			return
		}
		response.Accepted(c, result)
		return
	}

	result, err := h.ragService.Ingest(c.Request.Context(), input)
	if err != nil {
		writeServiceError(c, err, "ingest failed")
		return
	}
	if result.Status == model.DocumentFailed {
		response.ErrorWithData(c, http.StatusUnprocessableEntity, response.CodeIngestFailed, "document could not be processed", result)
		return
	}
	response.OK(c, result)
}

func (h *DocumentHandler) List(c *gin.Context) {
	id, ok := getIdentityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docs, err := h.ragService.ListDocuments(c.Request.Context(), id.OrganizationID)
	if err != nil {
		writeServiceError(c, err, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := getIdentityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	doc, err := h.ragService.GetDocument(c.Request.Context(), id.OrganizationID, c.Param("id"))
	if err != nil {
		writeServiceError(c, err, "get document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := getIdentityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	result, err := h.ragService.DeleteDocument(c.Request.Context(), id.OrganizationID, c.Param("id"))
	if err != nil {
		writeServiceError(c, err, "delete document failed")
		return
	}
	response.OK(c, result)
}
