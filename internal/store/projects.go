package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpggio/biodata/internal/domain/notice"
	"github.com/rpggio/biodata/internal/domain/project"
)

// AddProject stores a new project, newest first, and makes it current.
func (s *Store) AddProject(ctx context.Context, p project.Project) (project.Project, error) {
	if err := project.ValidateName(p.Name); err != nil {
		recordMutation("add_project", err)
		return project.Project{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p.ID = s.newID()
	p.Name = strings.TrimSpace(p.Name)
	p.CreatedAt = now.UnixMilli()
	p.UpdatedAt = nil
	if p.StartDate.IsZero() {
		p.StartDate = now.UTC()
	}

	s.projects = append([]project.Project{p}, s.projects...)
	current := p
	s.current = &current
	s.persistProjects(ctx)
	s.persistCurrent(ctx)
	recordMutation("add_project", nil)

	s.logger.Info("project created", "project_id", p.ID, "name", p.Name)
	s.notifier.Notify(ctx, notice.Notice{
		Title:       "Project created",
		Description: fmt.Sprintf("%q is now the current project", p.Name),
	})
	return p, nil
}

// UpdateProject merges patch into the project with id. The current project
// pointer is refreshed when it refers to the same project.
func (s *Store) UpdateProject(ctx context.Context, id string, patch project.Patch) (project.Project, error) {
	if err := project.ValidatePatch(patch); err != nil {
		recordMutation("update_project", err)
		return project.Project{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.projectIndex(id)
	if i < 0 {
		recordMutation("update_project", project.ErrProjectNotFound)
		return project.Project{}, fmt.Errorf("%w: %s", project.ErrProjectNotFound, id)
	}

	p := s.projects[i]
	patch.Apply(&p)
	p.Name = strings.TrimSpace(p.Name)
	updated := s.nowMillis()
	p.UpdatedAt = &updated
	s.projects[i] = p
	s.persistProjects(ctx)

	if s.current != nil && s.current.ID == id {
		current := p
		s.current = &current
		s.persistCurrent(ctx)
	}
	recordMutation("update_project", nil)

	s.notifier.Notify(ctx, notice.Notice{
		Title:       "Project updated",
		Description: "Your changes have been saved",
	})
	return p, nil
}

// DeleteProject removes the project with id. It fails with ErrProjectInUse,
// leaving state unchanged, while any observation references the project.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.projectIndex(id)
	if i < 0 {
		recordMutation("delete_project", project.ErrProjectNotFound)
		return fmt.Errorf("%w: %s", project.ErrProjectNotFound, id)
	}

	if n := s.countObservations(id); n > 0 {
		err := fmt.Errorf("%w: %d observations reference %s", ErrProjectInUse, n, id)
		recordMutation("delete_project", err)
		s.notifier.Notify(ctx, notice.Notice{
			Title:       "Cannot delete project",
			Description: fmt.Sprintf("This project still has %d observations. Delete them first.", n),
			Variant:     notice.VariantDestructive,
		})
		return err
	}

	name := s.projects[i].Name
	s.projects = append(s.projects[:i:i], s.projects[i+1:]...)
	s.persistProjects(ctx)

	if s.current != nil && s.current.ID == id {
		s.current = nil
		s.persistCurrent(ctx)
	}
	recordMutation("delete_project", nil)

	s.logger.Info("project deleted", "project_id", id)
	s.notifier.Notify(ctx, notice.Notice{
		Title:       "Project deleted",
		Description: fmt.Sprintf("%q has been removed", name),
	})
	return nil
}

// SetCurrentProject points the store at the project with id. An empty id
// clears the pointer and removes its persisted key.
func (s *Store) SetCurrentProject(ctx context.Context, id string) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		s.current = nil
		s.persistCurrent(ctx)
		recordMutation("set_current_project", nil)
		return nil, nil
	}

	i := s.projectIndex(id)
	if i < 0 {
		recordMutation("set_current_project", project.ErrProjectNotFound)
		return nil, fmt.Errorf("%w: %s", project.ErrProjectNotFound, id)
	}
	current := s.projects[i]
	s.current = &current
	s.persistCurrent(ctx)
	recordMutation("set_current_project", nil)

	out := current
	return &out, nil
}

// CurrentProject returns the current project, or nil.
func (s *Store) CurrentProject() *project.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	p := *s.current
	return &p
}

// Projects returns all projects, newest first.
func (s *Store) Projects() []project.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]project.Project{}, s.projects...)
}

// Summaries returns all projects with their observation counts.
func (s *Store) Summaries() []project.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int, len(s.projects))
	for _, obs := range s.observations {
		counts[obs.ProjectID]++
	}
	out := make([]project.Summary, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, project.Summary{
			Project:          p,
			ObservationCount: counts[p.ID],
			Current:          s.current != nil && s.current.ID == p.ID,
		})
	}
	return out
}

// Project returns the project with id.
func (s *Store) Project(id string) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.projectIndex(id)
	if i < 0 {
		return project.Project{}, fmt.Errorf("%w: %s", project.ErrProjectNotFound, id)
	}
	return s.projects[i], nil
}

func (s *Store) projectIndex(id string) int {
	for i := range s.projects {
		if s.projects[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) countObservations(projectID string) int {
	n := 0
	for i := range s.observations {
		if s.observations[i].ProjectID == projectID {
			n++
		}
	}
	return n
}
