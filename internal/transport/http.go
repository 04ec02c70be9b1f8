package transport

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rpggio/biodata/internal/domain/notice"
	"github.com/rpggio/biodata/internal/geo"
	"github.com/rpggio/biodata/internal/images"
	"github.com/rpggio/biodata/internal/metrics"
	"github.com/rpggio/biodata/internal/offline"
	"github.com/rpggio/biodata/internal/store"
)

// Dependencies are the collaborators served over HTTP. Store is required;
// a nil optional collaborator disables its routes.
type Dependencies struct {
	Store         *store.Store
	Notices       *notice.Buffer
	Images        *images.Processor
	Locator       geo.Locator
	Geocoder      store.Geocoder
	Notifications *offline.Notifications
	Registration  *offline.Registration
	// Shell answers every path not handled by the API, typically an
	// offline.Handler proxying the application shell.
	Shell http.Handler
	// MCP is mounted at /mcp when set.
	MCP    http.Handler
	Logger *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	deps   Dependencies
	logger *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(deps Dependencies) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv := &Server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(metrics.Middleware)

	r.Get("/health", srv.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	if deps.MCP != nil {
		r.Handle("/mcp", deps.MCP)
	}

	r.Route("/api", func(api chi.Router) {
		api.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeErrorMessage(w, http.StatusNotFound, "not_found", "no such endpoint")
		})

		api.Get("/status", srv.handleStatus)
		if deps.Registration != nil {
			api.Post("/cache/activate", srv.handleActivateCache)
		}

		api.Route("/projects", func(pr chi.Router) {
			pr.Get("/", srv.handleListProjects)
			pr.Post("/", srv.handleCreateProject)
			pr.Get("/current", srv.handleGetCurrentProject)
			pr.Put("/current", srv.handleSetCurrentProject)
			pr.Get("/{id}", srv.handleGetProject)
			pr.Patch("/{id}", srv.handleUpdateProject)
			pr.Delete("/{id}", srv.handleDeleteProject)
		})

		api.Route("/observations", func(or chi.Router) {
			or.Get("/", srv.handleListObservations)
			or.Post("/", srv.handleCreateObservation)
			or.Get("/{id}", srv.handleGetObservation)
			or.Patch("/{id}", srv.handleUpdateObservation)
			or.Delete("/{id}", srv.handleDeleteObservation)
		})

		api.Get("/export", srv.handleExport)
		api.Post("/import", srv.handleImport)
		api.Get("/storage", srv.handleUsage)
		api.Delete("/storage/observations", srv.handleClearObservations)

		if deps.Notices != nil {
			api.Get("/notices", srv.handleNotices)
		}
		if deps.Images != nil {
			api.Post("/images", srv.handleUploadImages)
		}
		api.Get("/location/current", srv.handleCurrentLocation)
		api.Get("/location/name", srv.handleLocationName)
		if deps.Notifications != nil {
			api.Post("/push", srv.handlePush)
			api.Post("/notifications/click", srv.handleNotificationClick)
		}
	})

	if deps.Shell != nil {
		r.NotFound(deps.Shell.ServeHTTP)
		r.MethodNotAllowed(deps.Shell.ServeHTTP)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type cacheStatus struct {
	Version string `json:"version"`
	Bucket  string `json:"bucket"`
	State   string `json:"state"`
}

type statusResponse struct {
	SyncStatus store.SyncStatus `json:"syncStatus"`
	Active     *cacheStatus     `json:"activeCache,omitempty"`
	Waiting    *cacheStatus     `json:"waitingCache,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{SyncStatus: s.deps.Store.SyncStatus()}
	if reg := s.deps.Registration; reg != nil {
		resp.Active = workerStatus(reg.Active())
		resp.Waiting = workerStatus(reg.Waiting())
	}
	writeJSON(w, http.StatusOK, resp)
}

func workerStatus(w *offline.Worker) *cacheStatus {
	if w == nil {
		return nil
	}
	return &cacheStatus{Version: w.Version(), Bucket: w.Bucket(), State: string(w.State())}
}

// handleActivateCache hands control to the waiting worker, like a page
// posting skip-waiting to its service worker.
func (s *Server) handleActivateCache(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registration.Activate(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleStatus(w, r)
}
