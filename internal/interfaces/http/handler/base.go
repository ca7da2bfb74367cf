package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/erp/stockengine/internal/infrastructure/logger"
	"github.com/erp/stockengine/internal/interfaces/http/dto"
	"github.com/erp/stockengine/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RetryAfterSeconds is advertised on transient (busy) failures
const RetryAfterSeconds = 1

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := middleware.GetRequestID(c); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response for a binding failure
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// HandleError converts an error into the response envelope. Domain errors
// keep their code; transient ones are marked retryable and carry Retry-After.
// Anything else is logged and reported as an internal error.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := getRequestID(c)
	log := logger.GetGinLogger(c)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		status := dto.GetHTTPStatus(domainErr.Code)
		resp := dto.NewErrorResponseWithRequestID(domainErr.Code, domainErr.Message, requestID)
		if domainErr.Transient {
			resp.Error.Retryable = true
			c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
		}
		if status >= http.StatusInternalServerError {
			log.Warn("Request failed", zap.String("code", domainErr.Code), zap.Error(err))
		}
		c.JSON(status, resp)
		return
	}

	log.Error("Unhandled request error", zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}
