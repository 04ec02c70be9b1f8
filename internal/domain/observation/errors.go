package observation

import "errors"

var (
	// ErrObservationNotFound indicates the observation doesn't exist.
	ErrObservationNotFound = errors.New("observation not found")
	// ErrInvalidInput indicates invalid observation input.
	ErrInvalidInput = errors.New("invalid observation input")
	// ErrMissingCoordinates indicates the location was never resolved.
	ErrMissingCoordinates = errors.New("observation has no coordinates")
	// ErrMissingProject indicates the observation is not attached to a project.
	ErrMissingProject = errors.New("observation has no project")
)
