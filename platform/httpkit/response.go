// Package httpkit provides HTTP response utilities.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"errors"
	"net/http"
	"time"

	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// ContextLoggerKey is the gin context key holding the request logger.
const ContextLoggerKey = "logger"

// Pagination describes a page of a list response.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination computes derived paging fields.
func NewPagination(page, limit, total int) *Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return &Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Meta is attached to every success envelope.
type Meta struct {
	Timestamp  string      `json:"timestamp"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Meta    Meta        `json:"meta"`
}

// ErrorBody is the error object inside the failure envelope.
type ErrorBody struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable *bool       `json:"retryable,omitempty"`
}

// ErrorResponse is the standard failure envelope.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// JSON sends a success envelope with the given status code.
func JSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{Success: true, Data: data, Meta: Meta{Timestamp: now()}})
}

// OK sends a 200 success envelope.
func OK(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data)
}

// Created sends a 201 success envelope.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data)
}

// Paginated sends a 200 success envelope with pagination meta.
func Paginated(c *gin.Context, data interface{}, page *Pagination) {
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    data,
		Meta:    Meta{Timestamp: now(), Pagination: page},
	})
}

// Error sends a failure envelope with the given status code.
func Error(c *gin.Context, status int, code, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Error: ErrorBody{Code: code, Message: message, Details: details}})
}

// BadRequest sends a 400 envelope for malformed input.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, apperr.CodeBadRequest, message, nil)
}

// ValidationFailed sends a 400 envelope with per-field details.
func ValidationFailed(c *gin.Context, err error) {
	var details interface{}
	if fields := validator.FieldErrors(err); fields != nil {
		details = fields
	}
	Error(c, http.StatusBadRequest, apperr.CodeValidation, "validation failed", details)
}

// Abort sends a failure envelope and stops the handler chain.
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// HandleError maps domain errors to HTTP responses.
// Typed *apperr.Error values use their Kind for the status and code.
// Untyped errors are logged and surface as a generic 500 so internals never leak.
// Returns true if an error was handled, false otherwise.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		status := domainErr.HTTPStatus()
		if status >= http.StatusInternalServerError && domainErr.Kind != apperr.KindUnavailable {
			logFromContext(c).Error("request failed", "error", err, "path", c.Request.URL.Path)
		}
		c.JSON(status, ErrorResponse{Error: ErrorBody{
			Code:      domainErr.ErrorCode(),
			Message:   domainErr.Message,
			Details:   domainErr.Details,
			Retryable: domainErr.Retryable,
		}})
		return true
	}

	logFromContext(c).Error("unhandled error", "error", err, "path", c.Request.URL.Path)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
		Code:    apperr.CodeInternal,
		Message: "internal server error",
	}})
	return true
}

func logFromContext(c *gin.Context) *logger.Logger {
	if v, ok := c.Get(ContextLoggerKey); ok {
		if log, ok := v.(*logger.Logger); ok {
			return log
		}
	}
	return fallbackLog
}

var fallbackLog = logger.New("production")
