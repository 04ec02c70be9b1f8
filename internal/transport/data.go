package transport

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/rpggio/biodata/internal/export"
)

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = string(export.FormatJSON)
	}
	format, ok := export.ParseFormat(raw)
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: unsupported format %q", errBadRequest, raw))
		return
	}

	artifact, err := s.deps.Store.Export(r.Context(), format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	res, err := s.deps.Store.Import(r.Context(), data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.deps.Store.Usage(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

type clearResponse struct {
	Removed int `json:"removed"`
}

func (s *Server) handleClearObservations(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Store.ClearObservations(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Removed: n})
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: after must be an integer", errBadRequest))
			return
		}
		after = v
	}
	writeJSON(w, http.StatusOK, s.deps.Notices.Since(after))
}
