package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/domain/project"
	"github.com/rpggio/biodata/internal/geo"
	"github.com/rpggio/biodata/internal/offline"
	"github.com/rpggio/biodata/internal/repository"
	"github.com/rpggio/biodata/internal/store"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps domain errors to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	var perr *geo.PositionError
	switch {
	case errors.Is(err, project.ErrProjectNotFound):
		return http.StatusNotFound, "project_not_found"
	case errors.Is(err, observation.ErrObservationNotFound):
		return http.StatusNotFound, "observation_not_found"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrProjectInUse):
		return http.StatusConflict, "project_in_use"
	case errors.Is(err, store.ErrNoCurrentProject):
		return http.StatusPreconditionFailed, "no_current_project"
	case errors.Is(err, store.ErrNothingToExport):
		return http.StatusNotFound, "nothing_to_export"
	case errors.Is(err, offline.ErrNothingWaiting):
		return http.StatusConflict, "nothing_waiting"
	case errors.Is(err, offline.ErrPrecacheFailed):
		return http.StatusBadGateway, "precache_failed"
	case errors.Is(err, observation.ErrMissingCoordinates):
		return http.StatusBadRequest, "missing_coordinates"
	case errors.Is(err, observation.ErrMissingProject):
		return http.StatusBadRequest, "missing_project"
	case errors.Is(err, project.ErrInvalidInput),
		errors.Is(err, observation.ErrInvalidInput),
		errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_input"
	case errors.As(err, &perr):
		if perr.Code == geo.Timeout {
			return http.StatusGatewayTimeout, "location_timeout"
		}
		return http.StatusServiceUnavailable, "location_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeErrorMessage(w, status, code, err.Error())
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

const maxJSONBody = 8 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
