// Package api provides error handling utilities for the REST API.
package api

import (
	"errors"
	"net/http"

	"github.com/kankou-aliaksei/amazon-ec2-best-instance/pkg/selector"
)

// APIError represents a structured API error.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Common API error codes.
const (
	ErrCodeInvalidJSON   = "INVALID_JSON"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUpstreamError = "UPSTREAM_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Predefined API errors.
var (
	ErrInvalidJSON = &APIError{
		HTTPStatus: http.StatusBadRequest,
		Code:       ErrCodeInvalidJSON,
		Message:    "Invalid JSON body",
	}
	ErrInstanceTypeNotFound = &APIError{
		HTTPStatus: http.StatusNotFound,
		Code:       ErrCodeNotFound,
		Message:    "Instance type not found",
	}
	ErrInternalError = &APIError{
		HTTPStatus: http.StatusInternalServerError,
		Code:       ErrCodeInternalError,
		Message:    "Internal server error",
	}
)

// NewValidationError creates a validation error with a custom message.
func NewValidationError(message string) *APIError {
	return &APIError{
		HTTPStatus: http.StatusBadRequest,
		Code:       ErrCodeValidation,
		Message:    message,
	}
}

// NewUpstreamError creates an upstream error with a custom message.
// Used when an AWS API call behind a request fails.
func NewUpstreamError(message string) *APIError {
	return &APIError{
		HTTPStatus: http.StatusBadGateway,
		Code:       ErrCodeUpstreamError,
		Message:    message,
	}
}

// MapDomainError maps selector errors to API errors.
func MapDomainError(err error) *APIError {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, selector.ErrVCPURequired),
		errors.Is(err, selector.ErrMemoryRequired),
		errors.Is(err, selector.ErrUnsupportedUsageClass),
		errors.Is(err, selector.ErrUnsupportedProductDescription),
		errors.Is(err, selector.ErrMixedOperatingSystems),
		errors.Is(err, selector.ErrUnknownStrategy):
		return NewValidationError(err.Error())
	case errors.Is(err, selector.ErrInstanceTypeNotFound):
		return ErrInstanceTypeNotFound
	case errors.Is(err, selector.ErrUnknownRegion),
		errors.Is(err, selector.ErrNoZonePrices):
		// Upstream data conditions, not client input.
		return NewUpstreamError(err.Error())
	default:
		return &APIError{
			HTTPStatus: http.StatusInternalServerError,
			Code:       ErrCodeInternalError,
			Message:    "An unexpected error occurred",
		}
	}
}

// WriteAPIError writes an API error response.
func (h *Handler) WriteAPIError(w http.ResponseWriter, err *APIError) {
	h.writeJSON(w, err.HTTPStatus, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    err.Code,
			Message: err.Message,
		},
	})
}

// HandleError maps a domain error to an API error and writes the response.
// Returns true if an error was handled, false if err was nil.
func (h *Handler) HandleError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}

	apiErr := MapDomainError(err)
	h.WriteAPIError(w, apiErr)
	return true
}
