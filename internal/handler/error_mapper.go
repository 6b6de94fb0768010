package handler

import (
	"errors"

	"github.com/forgo/progression/internal/model"
	"github.com/forgo/progression/internal/service"
)

// MapServiceError converts a service error to a ProblemDetails response.
// This centralizes error handling logic for all handlers, ensuring consistent
// HTTP status codes and error messages across the API.
func MapServiceError(err error) *model.ProblemDetails {
	if err == nil {
		return nil
	}

	switch {
	// ===== Not Found Errors → 404 =====
	case errors.Is(err, model.ErrBadgeNotFound):
		return model.NewNotFoundError("badge")
	case errors.Is(err, model.ErrUnsupportedQuery):
		return model.NewNotFoundError("query type")
	case errors.Is(err, model.ErrNotFound):
		return model.NewNotFoundError("resource")

	// ===== Validation Errors → 422 =====
	case errors.Is(err, service.ErrUserIDRequired):
		return model.NewValidationError([]model.FieldError{{Field: "userId", Message: err.Error()}})
	case errors.Is(err, model.ErrUnknownDimension):
		return model.NewValidationError([]model.FieldError{{Field: "dimension", Message: err.Error()}})
	case errors.Is(err, model.ErrInvalidAmount):
		return model.NewValidationError([]model.FieldError{{Field: "amount", Message: err.Error()}})
	case errors.Is(err, service.ErrUnknownActivityType):
		return model.NewValidationError([]model.FieldError{{Field: "type", Message: err.Error()}})
	case errors.Is(err, model.ErrInsufficientSamples):
		return model.NewValidationError([]model.FieldError{{Field: "samples", Message: err.Error()}})

	// ===== Conflict Errors → 409 =====
	case errors.Is(err, model.ErrInvalidState):
		return model.NewConflictError(err.Error())

	// ===== Stored Record Errors → 500 =====
	case errors.Is(err, model.ErrDataIntegrity):
		return model.NewDataIntegrityError(err.Error())

	// ===== Default → 500 =====
	default:
		return model.NewInternalError("")
	}
}

// MapServiceErrorWithContext converts a service error to a ProblemDetails response
// with additional context about the operation that failed.
func MapServiceErrorWithContext(err error, operation string) *model.ProblemDetails {
	pd := MapServiceError(err)
	if pd != nil && pd.Status == 500 && pd.Code == model.ErrCodeInternal {
		pd.Detail = operation + ": an unexpected error occurred"
	}
	return pd
}
