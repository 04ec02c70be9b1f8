package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rpggio/biodata/internal/domain/observation"
)

func (s *Server) handleListObservations(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "current" {
		cur := s.deps.Store.CurrentProject()
		if cur == nil {
			writeJSON(w, http.StatusOK, []observation.Observation{})
			return
		}
		projectID = cur.ID
	}
	writeJSON(w, http.StatusOK, s.deps.Store.Observations(projectID))
}

func (s *Server) handleCreateObservation(w http.ResponseWriter, r *http.Request) {
	var obs observation.Observation
	if err := decodeJSON(w, r, &obs); err != nil {
		s.writeError(w, r, err)
		return
	}
	// New observations join the current project unless told otherwise.
	if obs.ProjectID == "" {
		if cur := s.deps.Store.CurrentProject(); cur != nil {
			obs.ProjectID = cur.ID
		}
	}
	created, err := s.deps.Store.AddObservation(r.Context(), obs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetObservation(w http.ResponseWriter, r *http.Request) {
	obs, err := s.deps.Store.Observation(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handleUpdateObservation(w http.ResponseWriter, r *http.Request) {
	var patch observation.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	obs, err := s.deps.Store.UpdateObservation(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handleDeleteObservation(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteObservation(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
