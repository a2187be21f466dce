package httputil

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/chat-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page      int  `json:"page"`
	PageSize  int  `json:"page_size"`
	Total     int  `json:"total"`
	TotalPage int  `json:"total_pages"`
	HasMore   bool `json:"has_more"`
}

// PaginatedResponse wraps paginated data
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

var fieldMessages = map[string]string{
	"required":    "Field is required",
	"max":         "Value is too long",
	"min":         "Value is too short",
	"url":         "Invalid URL",
	"uuid":        "Invalid identifier",
	"member_type": "Must be USER or ADMIN",
	"oneof":       "Unsupported value",
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError renders AppErrors with their status and message,
// validation failures as 400 with per-field details and anything else as 500.
func RespondWithError(c *gin.Context, err error, traceID string) {
	body := &Error{TraceID: traceID}

	var appErr *errors.AppError
	var validationErrs validator.ValidationErrors
	switch {
	case stderrors.As(err, &validationErrs):
		body.Code = http.StatusBadRequest
		body.Message = "validation failed"
		for _, fe := range validationErrs {
			msg := fieldMessages[fe.Tag()]
			if msg == "" {
				msg = fe.Error()
			}
			body.Fields = append(body.Fields, FieldError{Field: fe.Field(), Message: msg})
		}
	case stderrors.As(err, &appErr):
		body.Code = appErr.StatusCode()
		body.Message = appErr.Message
		if body.Code == http.StatusInternalServerError {
			body.Message = "Internal server error"
		}
	default:
		body.Code = http.StatusInternalServerError
		body.Message = "Internal server error"
	}

	c.JSON(body.Code, Response{
		Success: false,
		Error:   body,
	})
}

// RespondWithPagination sends a paginated response
func RespondWithPagination(c *gin.Context, data interface{}, page, pageSize, total int, hasMore bool) {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: PaginatedResponse{
			Data: data,
			Pagination: Pagination{
				Page:      page,
				PageSize:  pageSize,
				Total:     total,
				TotalPage: totalPages,
				HasMore:   hasMore,
			},
		},
	})
}
