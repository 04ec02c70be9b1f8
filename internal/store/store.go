// Package store is the local data store: the single source of truth for
// projects and observations. Every mutation updates memory first and then
// rewrites the affected collection to durable storage.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/biodata/internal/domain/notice"
	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/domain/project"
	"github.com/rpggio/biodata/internal/metrics"
	"github.com/rpggio/biodata/internal/repository"
)

// Durable storage keys.
const (
	KeyObservations   = "biodataObservations"
	KeyProjects       = "biodataProjects"
	KeyCurrentProject = "biodataCurrentProject"
)

// SyncStatus is reserved for remote sync. It is always SyncStatusSynced.
type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPending SyncStatus = "pending"
	SyncStatusError   SyncStatus = "error"
)

var (
	// ErrProjectInUse indicates observations still reference the project.
	ErrProjectInUse = errors.New("project has observations")
	// ErrNoCurrentProject indicates an operation needs a current project.
	ErrNoCurrentProject = errors.New("no current project")
	// ErrNothingToExport indicates the current project has no observations.
	ErrNothingToExport = errors.New("no observations to export")
	// ErrExportFailed indicates the export could not be rendered.
	ErrExportFailed = errors.New("export failed")
	// ErrCorruptData indicates a persisted collection could not be decoded.
	ErrCorruptData = errors.New("stored data is unreadable")
)

// Storage is durable key/value storage. Get returns repository.ErrNotFound
// for a missing key.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Geocoder turns coordinates into a place name. It never fails; it falls
// back to the formatted coordinates.
type Geocoder interface {
	LocationName(ctx context.Context, c observation.Coordinates) string
}

// Options configures a Store.
type Options struct {
	Notifier notice.Notifier
	Geocoder Geocoder
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

// Store holds projects and observations in memory, newest first.
type Store struct {
	storage  Storage
	notifier notice.Notifier
	geocoder Geocoder
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	// mu serializes mutations from concurrent request handlers.
	mu           sync.Mutex
	projects     []project.Project
	observations []observation.Observation
	current      *project.Project
}

// New creates an empty store. Call LoadAll to rehydrate persisted state.
func New(storage Storage, opts Options) *Store {
	s := &Store{
		storage:      storage,
		notifier:     opts.Notifier,
		geocoder:     opts.Geocoder,
		logger:       opts.Logger,
		now:          opts.Now,
		newID:        opts.NewID,
		projects:     []project.Project{},
		observations: []observation.Observation{},
	}
	if s.notifier == nil {
		s.notifier = notice.Discard
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = newUUID
	}
	return s
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SyncStatus reports the remote sync state.
func (s *Store) SyncStatus() SyncStatus {
	return SyncStatusSynced
}

// LoadAll replaces in-memory state with the persisted collections. Each key
// is decoded independently: an unreadable key yields an empty collection and
// does not prevent loading the others. The returned error joins every
// per-key failure; state is usable either way.
func (s *Store) LoadAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error

	observations := []observation.Observation{}
	if err := s.load(ctx, KeyObservations, &observations); err != nil {
		errs = append(errs, err)
		observations = []observation.Observation{}
	}

	projects := []project.Project{}
	if err := s.load(ctx, KeyProjects, &projects); err != nil {
		errs = append(errs, err)
		projects = []project.Project{}
	}

	var current *project.Project
	if err := s.load(ctx, KeyCurrentProject, &current); err != nil {
		errs = append(errs, err)
		current = nil
	}

	if observations == nil {
		observations = []observation.Observation{}
	}
	if projects == nil {
		projects = []project.Project{}
	}
	s.observations = observations
	s.projects = projects
	s.current = nil
	if current != nil {
		if i := s.projectIndex(current.ID); i >= 0 {
			p := s.projects[i]
			s.current = &p
		} else {
			s.logger.Warn("current project no longer exists", "project_id", current.ID)
		}
	}
	s.updateGauges()

	if len(errs) > 0 {
		s.notifier.Notify(ctx, notice.Notice{
			Title:       "Error",
			Description: "Failed to load stored data",
			Variant:     notice.VariantDestructive,
		})
		return errors.Join(errs...)
	}

	s.logger.Info("loaded stored data",
		"projects", len(s.projects),
		"observations", len(s.observations),
		"current_project", s.currentID())
	return nil
}

func (s *Store) load(ctx context.Context, key string, dst any) error {
	data, err := s.storage.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Error("failed to read stored data", "key", key, "error", err)
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Error("failed to decode stored data", "key", key, "error", err)
		return fmt.Errorf("%w: %s: %v", ErrCorruptData, key, err)
	}
	return nil
}

// persist rewrites one key. Writes are best-effort: failures are logged and
// counted but do not undo the in-memory change.
func (s *Store) persist(ctx context.Context, key string, v any) {
	ctx = context.WithoutCancel(ctx)

	data, err := json.Marshal(v)
	if err == nil {
		err = s.storage.Set(ctx, key, data)
	}
	if err != nil {
		metrics.StorePersistErrors.WithLabelValues(key).Inc()
		s.logger.Error("failed to persist", "key", key, "error", err)
	}
}

func (s *Store) persistObservations(ctx context.Context) {
	s.persist(ctx, KeyObservations, s.observations)
	s.updateGauges()
}

func (s *Store) persistProjects(ctx context.Context) {
	s.persist(ctx, KeyProjects, s.projects)
	s.updateGauges()
}

// persistCurrent stores the pointer, or removes the key when unset.
func (s *Store) persistCurrent(ctx context.Context) {
	if s.current != nil {
		s.persist(ctx, KeyCurrentProject, s.current)
		return
	}
	if err := s.storage.Delete(context.WithoutCancel(ctx), KeyCurrentProject); err != nil {
		metrics.StorePersistErrors.WithLabelValues(KeyCurrentProject).Inc()
		s.logger.Error("failed to clear current project", "error", err)
	}
}

func (s *Store) updateGauges() {
	metrics.StoreObservations.Set(float64(len(s.observations)))
	metrics.StoreProjects.Set(float64(len(s.projects)))
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

func (s *Store) currentID() string {
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

func recordMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.StoreMutationsTotal.WithLabelValues(op, result).Inc()
}
