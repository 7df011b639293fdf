package http

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

const statusError = "error"

// allocateRequest represents a request to store a value under a new code.
type allocateRequest struct {
	Value string `json:"value" validate:"required"`
	Owner string `json:"owner" validate:"omitempty,max=64"`
}

// recordResponse represents a stored record.
type recordResponse struct {
	Code      string    `json:"code"`
	Value     string    `json:"value"`
	Owner     string    `json:"owner,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toRecordResponse(rec *entity.Record) recordResponse {
	return recordResponse{
		Code:      rec.Code,
		Value:     rec.Value,
		Owner:     rec.Owner,
		CreatedAt: rec.CreatedAt,
	}
}

// recordStatsResponse represents a stored record together with its usage statistics.
type recordStatsResponse struct {
	Code      string      `json:"code"`
	Value     string      `json:"value"`
	Owner     string      `json:"owner,omitempty"`
	Stats     recordStats `json:"stats"`
	CreatedAt time.Time   `json:"created_at"`
}

type recordStats struct {
	VisitCount int64 `json:"visit_count"`
}

func toRecordStatsResponse(rec *entity.Record) recordStatsResponse {
	return recordStatsResponse{
		Code:  rec.Code,
		Value: rec.Value,
		Owner: rec.Owner,
		Stats: recordStats{
			VisitCount: rec.VisitCount,
		},
		CreatedAt: rec.CreatedAt,
	}
}

// validationError represents an individual validation error.
type validationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// errorResponse represents a structured error response.
type errorResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  []validationError `json:"errors,omitempty"`
}

// Predefined error responses for common scenarios.
var (
	emptyRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "empty request body",
	}

	invalidRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "invalid request body",
	}

	recordNotFoundResponse = errorResponse{
		Status:  statusError,
		Message: "record not found",
	}

	codeSpaceExhaustedResponse = errorResponse{
		Status:  statusError,
		Message: "no free short code found, try again later",
	}

	serverErrorResponse = errorResponse{
		Status:  statusError,
		Message: "server error occurred",
	}
)

func messageForTag(tag string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "max":
		return "value is too long"
	default:
		return "invalid value"
	}
}

func getValidationErrors(err error) []validationError {
	var validationErrs []validationError

	errs, ok := err.(validator.ValidationErrors)
	if ok {
		for _, e := range errs {
			validationErrs = append(validationErrs, validationError{
				Field:   e.Field(),
				Message: messageForTag(e.Tag()),
			})
		}
	}

	return validationErrs
}

func validationErrorResponse(err error) errorResponse {
	return errorResponse{
		Status:  statusError,
		Message: "validation error",
		Errors:  getValidationErrors(err),
	}
}
