package transport

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/geo"
	"github.com/rpggio/biodata/internal/images"
)

const maxUploadBytes = 64 << 20

func (s *Server) handleUploadImages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	var files []images.File
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		files = append(files, images.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	processed, err := s.deps.Images.Process(r.Context(), files)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, processed)
}

func (s *Server) handleCurrentLocation(w http.ResponseWriter, r *http.Request) {
	opts := geo.DefaultOptions()
	q := r.URL.Query()
	if raw := q.Get("high_accuracy"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: high_accuracy must be a boolean", errBadRequest))
			return
		}
		opts.HighAccuracy = v
	}
	if raw := q.Get("timeout_ms"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			s.writeError(w, r, fmt.Errorf("%w: timeout_ms must be a positive integer", errBadRequest))
			return
		}
		opts.Timeout = time.Duration(ms) * time.Millisecond
	}

	c, err := geo.CurrentLocation(r.Context(), s.deps.Locator, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type locationNameResponse struct {
	Location string `json:"location"`
}

func (s *Server) handleLocationName(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		s.writeError(w, r, fmt.Errorf("%w: lat and lon are required numbers", errBadRequest))
		return
	}
	c := observation.Coordinates{Latitude: lat, Longitude: lon}
	if err := observation.ValidateCoordinates(c); err != nil {
		s.writeError(w, r, err)
		return
	}

	name := c.String()
	if s.deps.Geocoder != nil {
		name = s.deps.Geocoder.LocationName(r.Context(), c)
	}
	writeJSON(w, http.StatusOK, locationNameResponse{Location: name})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	writeJSON(w, http.StatusAccepted, s.deps.Notifications.HandlePush(r.Context(), data))
}

type notificationClickRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleNotificationClick(w http.ResponseWriter, r *http.Request) {
	var req notificationClickRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	target, err := s.deps.Notifications.HandleClick(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	writeJSON(w, http.StatusOK, notificationClickRequest{URL: target})
}
