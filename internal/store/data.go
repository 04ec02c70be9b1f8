package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rpggio/biodata/internal/domain/notice"
	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/export"
	"github.com/rpggio/biodata/internal/metrics"
	"github.com/rpggio/biodata/internal/repository"
)

// Export renders the current project's observations, in store order. No
// artifact is produced on failure; the reason is returned and surfaced as a
// notice.
func (s *Store) Export(ctx context.Context, format export.Format) (*export.Artifact, error) {
	s.mu.Lock()
	current := s.current
	var observations []observation.Observation
	if current != nil {
		observations = s.filterObservations(current.ID)
	}
	now := s.now()
	s.mu.Unlock()

	fail := func(err error, title, description string) (*export.Artifact, error) {
		metrics.ExportsTotal.WithLabelValues(string(format), "error").Inc()
		s.logger.Warn("export failed", "format", format, "error", err)
		s.notifier.Notify(ctx, notice.Notice{
			Title:       title,
			Description: description,
			Variant:     notice.VariantDestructive,
		})
		return nil, err
	}

	if current == nil {
		return fail(ErrNoCurrentProject, "No project selected", "Select a project before exporting")
	}
	if len(observations) == 0 {
		return fail(fmt.Errorf("%w: project %s", ErrNothingToExport, current.ID),
			"Nothing to export", "The current project has no observations")
	}

	artifact, err := export.Build(current.Name, format, observations, now)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrExportFailed, err),
			"Export failed", "There was an error exporting your data")
	}

	metrics.ExportsTotal.WithLabelValues(string(format), "ok").Inc()
	s.logger.Info("exported observations", "project_id", current.ID, "format", format, "count", artifact.Count)
	s.notifier.Notify(ctx, notice.Notice{
		Title:       "Export successful",
		Description: "Data exported as " + strings.ToUpper(string(format)),
	})
	return artifact, nil
}

// Usage describes how much durable storage observations occupy.
type Usage struct {
	Observations int     `json:"observations"`
	Projects     int     `json:"projects"`
	Bytes        int     `json:"bytes"`
	MegaBytes    float64 `json:"megabytes"`
}

// Usage reports the size of the persisted observations collection.
func (s *Store) Usage(ctx context.Context) (Usage, error) {
	s.mu.Lock()
	u := Usage{Observations: len(s.observations), Projects: len(s.projects)}
	s.mu.Unlock()

	data, err := s.storage.Get(ctx, KeyObservations)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return Usage{}, fmt.Errorf("reading %s: %w", KeyObservations, err)
	}
	u.Bytes = len(data)
	u.MegaBytes = float64(u.Bytes) / (1024 * 1024)
	return u, nil
}

// ClearObservations removes every observation and its persisted key.
// Projects are kept.
func (s *Store) ClearObservations(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(ctx, KeyObservations); err != nil {
		recordMutation("clear_observations", err)
		return 0, fmt.Errorf("clearing observations: %w", err)
	}
	n := len(s.observations)
	s.observations = []observation.Observation{}
	s.updateGauges()
	recordMutation("clear_observations", nil)

	s.logger.Info("observations cleared", "count", n)
	s.notifier.Notify(ctx, notice.Notice{
		Title:       "Data cleared",
		Description: fmt.Sprintf("Removed %d observations", n),
	})
	return n, nil
}

// ImportResult counts what Import did.
type ImportResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Import adds observations from a JSON export. Records whose id already
// exists are skipped. Records whose project is unknown are attached to the
// current project, or skipped when there is none. Each record is validated
// as on creation; invalid records are skipped.
func (s *Store) Import(ctx context.Context, data []byte) (ImportResult, error) {
	var incoming []observation.Observation
	if err := json.Unmarshal(data, &incoming); err != nil {
		recordMutation("import", err)
		return ImportResult{}, fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res ImportResult
	seen := make(map[string]bool, len(s.observations)+len(incoming))
	for _, obs := range s.observations {
		seen[obs.ID] = true
	}

	added := make([]observation.Observation, 0, len(incoming))
	for _, obs := range incoming {
		if obs.ID == "" {
			obs.ID = s.newID()
		}
		if seen[obs.ID] {
			res.Skipped++
			continue
		}
		if s.projectIndex(obs.ProjectID) < 0 {
			if s.current == nil {
				res.Skipped++
				continue
			}
			obs.ProjectID = s.current.ID
		}
		if err := observation.ValidateCreateInput(obs); err != nil {
			s.logger.Debug("skipping invalid observation", "observation_id", obs.ID, "error", err)
			res.Skipped++
			continue
		}
		if obs.Location == "" {
			obs.Location = obs.Coordinates.String()
		}
		if obs.CreatedAt == 0 {
			obs.CreatedAt = s.nowMillis()
		}
		obs.Normalize()
		seen[obs.ID] = true
		added = append(added, cloneObservation(obs))
	}

	res.Added = len(added)
	if res.Added > 0 {
		s.observations = append(added, s.observations...)
		s.persistObservations(ctx)
		s.notifier.Notify(ctx, notice.Notice{
			Title:       "Import successful",
			Description: fmt.Sprintf("Imported %d observations", res.Added),
		})
	}
	recordMutation("import", nil)
	s.logger.Info("imported observations", "added", res.Added, "skipped", res.Skipped)
	return res, nil
}
