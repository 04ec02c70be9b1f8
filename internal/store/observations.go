package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpggio/biodata/internal/domain/notice"
	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/domain/project"
)

// AddObservation stores a new observation, newest first. The referenced
// project must exist and coordinates are required. An empty location is
// resolved from the coordinates.
func (s *Store) AddObservation(ctx context.Context, obs observation.Observation) (observation.Observation, error) {
	if err := observation.ValidateCreateInput(obs); err != nil {
		recordMutation("add_observation", err)
		return observation.Observation{}, err
	}

	// Resolve outside the lock; the geocoder may go to the network.
	if strings.TrimSpace(obs.Location) == "" {
		obs.Location = s.locationName(ctx, *obs.Coordinates)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.projectIndex(obs.ProjectID) < 0 {
		recordMutation("add_observation", project.ErrProjectNotFound)
		return observation.Observation{}, fmt.Errorf("%w: %s", project.ErrProjectNotFound, obs.ProjectID)
	}

	now := s.now()
	obs.ID = s.newID()
	obs.Normalize()
	obs.CreatedAt = now.UnixMilli()
	obs.UpdatedAt = nil
	if obs.Date.IsZero() {
		obs.Date = now.UTC()
	}
	obs = cloneObservation(obs)

	s.observations = append([]observation.Observation{obs}, s.observations...)
	s.persistObservations(ctx)
	recordMutation("add_observation", nil)

	s.logger.Info("observation added", "observation_id", obs.ID, "project_id", obs.ProjectID, "species", obs.Species)
	s.notifier.Notify(ctx, notice.Notice{
		Title:       "Observation added",
		Description: "Your observation has been saved locally",
	})
	return cloneObservation(obs), nil
}

// UpdateObservation merges patch into the observation with id and stamps
// UpdatedAt. Fields absent from the patch keep their values. Moving the
// observation to another project requires that project to exist.
func (s *Store) UpdateObservation(ctx context.Context, id string, patch observation.Patch) (observation.Observation, error) {
	if err := observation.ValidatePatch(patch); err != nil {
		recordMutation("update_observation", err)
		return observation.Observation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.observationIndex(id)
	if i < 0 {
		recordMutation("update_observation", observation.ErrObservationNotFound)
		return observation.Observation{}, fmt.Errorf("%w: %s", observation.ErrObservationNotFound, id)
	}

	obs := cloneObservation(s.observations[i])
	if patch.ProjectID != nil && *patch.ProjectID != obs.ProjectID && s.projectIndex(*patch.ProjectID) < 0 {
		recordMutation("update_observation", project.ErrProjectNotFound)
		return observation.Observation{}, fmt.Errorf("%w: %s", project.ErrProjectNotFound, *patch.ProjectID)
	}

	patch.Apply(&obs)
	updated := s.nowMillis()
	obs.UpdatedAt = &updated
	s.observations[i] = obs
	s.persistObservations(ctx)
	recordMutation("update_observation", nil)

	s.notifier.Notify(ctx, notice.Notice{
		Title:       "Observation updated",
		Description: "Your changes have been saved",
	})
	return cloneObservation(obs), nil
}

// DeleteObservation removes the observation with id.
func (s *Store) DeleteObservation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.observationIndex(id)
	if i < 0 {
		recordMutation("delete_observation", observation.ErrObservationNotFound)
		return fmt.Errorf("%w: %s", observation.ErrObservationNotFound, id)
	}

	s.observations = append(s.observations[:i:i], s.observations[i+1:]...)
	s.persistObservations(ctx)
	recordMutation("delete_observation", nil)

	s.logger.Info("observation deleted", "observation_id", id)
	s.notifier.Notify(ctx, notice.Notice{
		Title:       "Observation deleted",
		Description: "The observation has been removed",
	})
	return nil
}

// Observation returns the observation with id.
func (s *Store) Observation(id string) (observation.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.observationIndex(id)
	if i < 0 {
		return observation.Observation{}, fmt.Errorf("%w: %s", observation.ErrObservationNotFound, id)
	}
	return cloneObservation(s.observations[i]), nil
}

// Observations returns observations newest first, limited to projectID when
// it is not empty.
func (s *Store) Observations(projectID string) []observation.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterObservations(projectID)
}

func (s *Store) filterObservations(projectID string) []observation.Observation {
	out := make([]observation.Observation, 0, len(s.observations))
	for _, obs := range s.observations {
		if projectID == "" || obs.ProjectID == projectID {
			out = append(out, cloneObservation(obs))
		}
	}
	return out
}

func (s *Store) observationIndex(id string) int {
	for i := range s.observations {
		if s.observations[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) locationName(ctx context.Context, c observation.Coordinates) string {
	if s.geocoder == nil {
		return c.String()
	}
	return s.geocoder.LocationName(ctx, c)
}

func cloneObservation(obs observation.Observation) observation.Observation {
	if obs.Coordinates != nil {
		c := *obs.Coordinates
		if c.Accuracy != nil {
			a := *c.Accuracy
			c.Accuracy = &a
		}
		obs.Coordinates = &c
	}
	if obs.UpdatedAt != nil {
		u := *obs.UpdatedAt
		obs.UpdatedAt = &u
	}
	obs.Images = append([]observation.ImageData{}, obs.Images...)
	if len(obs.Tags) > 0 {
		obs.Tags = append([]string{}, obs.Tags...)
	} else {
		obs.Tags = nil
	}
	return obs
}
