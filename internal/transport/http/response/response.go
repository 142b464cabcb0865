package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                   = 0
	CodeBadRequest           = 40000
	CodeUnsupportedFormat    = 40001
	CodeFileTooLarge         = 40002
	CodeUnauthorized         = 40100
	CodeForbidden            = 40300
	CodeOrganizationInactive = 40301
	CodeDocumentNotFound     = 40401
	CodeOrganizationNotFound = 40402
	CodeDocumentConflict     = 40901
	CodeOrganizationExists   = 40902
	CodeIngestFailed         = 42200
	CodeInternalServer       = 50000
	CodeIsolationViolation   = 50001
	CodeServiceDegraded      = 50300
	CodeAsyncUnavailable     = 50301
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

// Accepted is used for work that continues after the response, such as queued ingestion.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(202, APIResponse{
		Code:    CodeOK,
		Message: "accepted",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// ErrorWithData reports a failure together with a payload describing it.
func ErrorWithData(c *gin.Context, httpStatus, code int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}
