package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/dojo/internal/authorization"
	"github.com/smallbiznis/dojo/internal/errs"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    errs.CodeValidation,
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if vErr, ok := errs.AsValidation(err); ok {
		message := vErr.Message
		if message == "" {
			message = "invalid value"
		}
		return http.StatusBadRequest, errorPayload{
			Type:    errs.CodeValidation,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   vErr.Field,
					Code:    vErr.Code,
					Message: message,
				},
			},
		}
	}

	switch {
	case errors.Is(err, errs.ErrUnauthenticated),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    errs.CodeAuthentication,
			Message: "authentication required",
		}
	case errors.Is(err, errs.ErrPermissionDenied),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    errs.CodePermission,
			Message: "permission denied",
		}
	case errors.Is(err, errs.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    errs.CodeNotFound,
			Message: "not found",
		}
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    errs.CodeConflict,
			Message: "conflict",
		}
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    errs.CodeRateLimited,
			Message: "too many requests",
		}
	}

	if uErr, ok := errs.AsUpstream(err); ok {
		if uErr.Transient {
			return http.StatusServiceUnavailable, errorPayload{
				Type:    errs.CodeUpstream,
				Message: "service temporarily unavailable",
			}
		}
		return http.StatusBadGateway, errorPayload{
			Type:    errs.CodeUpstream,
			Message: "upstream request failed",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// classifyErrorForLog returns the error type and the first field code, if any.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := ""
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
