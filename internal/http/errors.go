package http

import (
	"errors"
	"log/slog"
	"net/http"

	"team-activity-pipeline/internal/apperrors"
	"team-activity-pipeline/internal/validation"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// Error writes an error response to the client
func Error(w http.ResponseWriter, err error, statusCode int) {
	// Parse validation errors
	var validationErr *validation.ValidationErrors
	if errors.As(err, &validationErr) {
		JSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Details: validationErr.Errors,
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	// Parse database errors
	var dbErr *validation.DatabaseError
	if errors.As(err, &dbErr) {
		// Map database errors to appropriate HTTP status codes
		status := mapDatabaseErrorToHTTPStatus(dbErr)
		JSON(w, status, ErrorResponse{
			Error:   dbErr.Message,
			Code:    dbErr.Type,
			Details: map[string]string{"field": dbErr.Field},
		})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		JSON(w, mapAppErrorToHTTPStatus(appErr.Code, statusCode), ErrorResponse{
			Error: appErr.Message,
			Code:  string(appErr.Code),
		})
		return
	}

	if statusCode >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		JSON(w, statusCode, ErrorResponse{Error: "internal server error"})
		return
	}

	// Default error response
	JSON(w, statusCode, ErrorResponse{
		Error: err.Error(),
	})
}

// mapDatabaseErrorToHTTPStatus maps database error types to HTTP status codes
func mapDatabaseErrorToHTTPStatus(dbErr *validation.DatabaseError) int {
	switch dbErr.Type {
	case validation.ErrorTypeUniqueViolation:
		return http.StatusConflict
	case validation.ErrorTypeForeignKeyViolation, validation.ErrorTypeNotNullViolation, validation.ErrorTypeCheckViolation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func mapAppErrorToHTTPStatus(code apperrors.ErrCode, fallback int) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeBadRequest:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return fallback
	}
}
