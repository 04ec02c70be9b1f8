package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/domain/project"
	"github.com/rpggio/biodata/internal/repository"
	"github.com/rpggio/biodata/internal/store"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, project.ErrProjectNotFound):
		return &APIError{Code: "PROJECT_NOT_FOUND", Message: "project not found", RecoveryHint: "Call list_projects for valid ids"}
	case errors.Is(err, observation.ErrObservationNotFound):
		return &APIError{Code: "OBSERVATION_NOT_FOUND", Message: "observation not found", RecoveryHint: "Call list_observations for valid ids"}
	case errors.Is(err, store.ErrProjectInUse):
		return &APIError{Code: "PROJECT_IN_USE", Message: err.Error(), RecoveryHint: "Delete or move its observations first"}
	case errors.Is(err, store.ErrNoCurrentProject):
		return &APIError{Code: "NO_CURRENT_PROJECT", Message: "no current project", RecoveryHint: "Call set_current_project first"}
	case errors.Is(err, store.ErrNothingToExport):
		return &APIError{Code: "NOTHING_TO_EXPORT", Message: "current project has no observations", RecoveryHint: "Add observations before exporting"}
	case errors.Is(err, observation.ErrMissingCoordinates):
		return &APIError{Code: "MISSING_COORDINATES", Message: "coordinates are required", RecoveryHint: "Provide latitude and longitude"}
	case errors.Is(err, observation.ErrMissingProject):
		return &APIError{Code: "MISSING_PROJECT", Message: "no project given and no current project", RecoveryHint: "Pass project_id or set a current project"}
	case errors.Is(err, project.ErrInvalidInput),
		errors.Is(err, observation.ErrInvalidInput),
		errors.Is(err, repository.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	default:
		return nil
	}
}

// toolError returns the coded form of err when it is a known domain error.
func toolError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
