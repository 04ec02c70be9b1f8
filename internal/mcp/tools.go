package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/domain/project"
	"github.com/rpggio/biodata/internal/export"
	"github.com/rpggio/biodata/internal/repository"
	"github.com/rpggio/biodata/internal/store"
)

type emptyInput struct{}

type idInput struct {
	ID string `json:"id" jsonschema:"record id"`
}

type createProjectInput struct {
	Name        string `json:"name" jsonschema:"project name, at least 3 characters"`
	Description string `json:"description,omitempty" jsonschema:"free text description"`
	StartDate   string `json:"start_date,omitempty" jsonschema:"start date as YYYY-MM-DD or RFC 3339; defaults to now"`
}

type updateProjectInput struct {
	ID          string  `json:"id" jsonschema:"project id"`
	Name        *string `json:"name,omitempty" jsonschema:"new name"`
	Description *string `json:"description,omitempty" jsonschema:"new description"`
	StartDate   *string `json:"start_date,omitempty" jsonschema:"new start date as YYYY-MM-DD or RFC 3339"`
}

type setCurrentProjectInput struct {
	ID string `json:"id,omitempty" jsonschema:"project id; empty clears the current project"`
}

type listObservationsInput struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"only observations of this project; 'current' for the current project"`
}

type addObservationInput struct {
	ProjectID string   `json:"project_id,omitempty" jsonschema:"project id; defaults to the current project"`
	Species   string   `json:"species" jsonschema:"species name, at least 2 characters"`
	Latitude  float64  `json:"latitude" jsonschema:"WGS84 latitude"`
	Longitude float64  `json:"longitude" jsonschema:"WGS84 longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty" jsonschema:"position accuracy in meters"`
	Date      string   `json:"date,omitempty" jsonschema:"observation time as YYYY-MM-DD or RFC 3339; defaults to now"`
	Location  string   `json:"location,omitempty" jsonschema:"place name; resolved from the coordinates when empty"`
	Habitat   string   `json:"habitat,omitempty"`
	Weather   string   `json:"weather,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

type updateObservationInput struct {
	ID        string    `json:"id" jsonschema:"observation id"`
	ProjectID *string   `json:"project_id,omitempty" jsonschema:"move to this project"`
	Species   *string   `json:"species,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty" jsonschema:"new latitude; requires longitude"`
	Longitude *float64  `json:"longitude,omitempty" jsonschema:"new longitude; requires latitude"`
	Date      *string   `json:"date,omitempty" jsonschema:"observation time as YYYY-MM-DD or RFC 3339"`
	Location  *string   `json:"location,omitempty"`
	Habitat   *string   `json:"habitat,omitempty"`
	Weather   *string   `json:"weather,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
}

type exportInput struct {
	Format string `json:"format,omitempty" jsonschema:"json (default) or csv"`
}

type locationNameInput struct {
	Latitude  float64 `json:"latitude" jsonschema:"WGS84 latitude"`
	Longitude float64 `json:"longitude" jsonschema:"WGS84 longitude"`
}

type exportOutput struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Count       int    `json:"count"`
	Content     string `json:"content"`
}

type tools struct {
	store    *store.Store
	geocoder store.Geocoder
}

func registerTools(server *sdkmcp.Server, st *store.Store, geocoder store.Geocoder) {
	t := &tools{store: st, geocoder: geocoder}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_projects",
		Description: "List projects, newest first, with observation counts and the current flag",
	}, t.listProjects)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_project",
		Description: "Create a project and make it the current project",
	}, t.createProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "update_project",
		Description: "Change a project's name, description or start date",
	}, t.updateProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_project",
		Description: "Delete a project that has no observations",
	}, t.deleteProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "set_current_project",
		Description: "Select the project new observations and exports use",
	}, t.setCurrentProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_observations",
		Description: "List observations, newest first, optionally for one project",
	}, t.listObservations)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_observation",
		Description: "Get one observation by id",
	}, t.getObservation)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "add_observation",
		Description: "Record a sighting; coordinates are required",
	}, t.addObservation)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "update_observation",
		Description: "Change only the given fields of an observation",
	}, t.updateObservation)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_observation",
		Description: "Delete an observation",
	}, t.deleteObservation)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "export_observations",
		Description: "Export the current project's observations as json or csv",
	}, t.exportObservations)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "storage_usage",
		Description: "Report how much local storage observations use",
	}, t.storageUsage)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "location_name",
		Description: "Resolve coordinates to a place name; falls back to the formatted coordinates",
	}, t.locationName)
}

func (t *tools) listProjects(_ context.Context, _ *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, any, error) {
	return jsonResult(t.store.Summaries())
}

func (t *tools) createProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in createProjectInput) (*sdkmcp.CallToolResult, any, error) {
	p := project.Project{Name: in.Name, Description: in.Description}
	if in.StartDate != "" {
		start, err := parseTime(in.StartDate)
		if err != nil {
			return nil, nil, toolError(err)
		}
		p.StartDate = start
	}
	created, err := t.store.AddProject(ctx, p)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(created)
}

func (t *tools) updateProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in updateProjectInput) (*sdkmcp.CallToolResult, any, error) {
	patch := project.Patch{Name: in.Name, Description: in.Description}
	if in.StartDate != nil {
		start, err := parseTime(*in.StartDate)
		if err != nil {
			return nil, nil, toolError(err)
		}
		patch.StartDate = &start
	}
	updated, err := t.store.UpdateProject(ctx, in.ID, patch)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(updated)
}

func (t *tools) deleteProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in idInput) (*sdkmcp.CallToolResult, any, error) {
	if err := t.store.DeleteProject(ctx, in.ID); err != nil {
		return nil, nil, toolError(err)
	}
	return textResult(fmt.Sprintf("deleted project %s", in.ID))
}

func (t *tools) setCurrentProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in setCurrentProjectInput) (*sdkmcp.CallToolResult, any, error) {
	p, err := t.store.SetCurrentProject(ctx, in.ID)
	if err != nil {
		return nil, nil, toolError(err)
	}
	if p == nil {
		return textResult("current project cleared")
	}
	return jsonResult(p)
}

func (t *tools) listObservations(_ context.Context, _ *sdkmcp.CallToolRequest, in listObservationsInput) (*sdkmcp.CallToolResult, any, error) {
	projectID := in.ProjectID
	if projectID == "current" {
		cur := t.store.CurrentProject()
		if cur == nil {
			return nil, nil, toolError(store.ErrNoCurrentProject)
		}
		projectID = cur.ID
	}
	return jsonResult(t.store.Observations(projectID))
}

func (t *tools) getObservation(_ context.Context, _ *sdkmcp.CallToolRequest, in idInput) (*sdkmcp.CallToolResult, any, error) {
	obs, err := t.store.Observation(in.ID)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(obs)
}

func (t *tools) addObservation(ctx context.Context, _ *sdkmcp.CallToolRequest, in addObservationInput) (*sdkmcp.CallToolResult, any, error) {
	obs := observation.Observation{
		ProjectID: in.ProjectID,
		Species:   in.Species,
		Location:  in.Location,
		Coordinates: &observation.Coordinates{
			Latitude:  in.Latitude,
			Longitude: in.Longitude,
			Accuracy:  in.Accuracy,
		},
		Habitat: in.Habitat,
		Weather: in.Weather,
		Notes:   in.Notes,
		Tags:    in.Tags,
	}
	if obs.ProjectID == "" {
		if cur := t.store.CurrentProject(); cur != nil {
			obs.ProjectID = cur.ID
		}
	}
	if in.Date != "" {
		date, err := parseTime(in.Date)
		if err != nil {
			return nil, nil, toolError(err)
		}
		obs.Date = date
	}

	created, err := t.store.AddObservation(ctx, obs)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(created)
}

func (t *tools) updateObservation(ctx context.Context, _ *sdkmcp.CallToolRequest, in updateObservationInput) (*sdkmcp.CallToolResult, any, error) {
	patch := observation.Patch{
		ProjectID: in.ProjectID,
		Species:   in.Species,
		Location:  in.Location,
		Habitat:   in.Habitat,
		Weather:   in.Weather,
		Notes:     in.Notes,
		Tags:      in.Tags,
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return nil, nil, toolError(fmt.Errorf("%w: latitude and longitude must be given together", observation.ErrInvalidInput))
	}
	if in.Latitude != nil {
		patch.Coordinates = &observation.Coordinates{Latitude: *in.Latitude, Longitude: *in.Longitude}
	}
	if in.Date != nil {
		date, err := parseTime(*in.Date)
		if err != nil {
			return nil, nil, toolError(err)
		}
		patch.Date = &date
	}

	updated, err := t.store.UpdateObservation(ctx, in.ID, patch)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(updated)
}

func (t *tools) deleteObservation(ctx context.Context, _ *sdkmcp.CallToolRequest, in idInput) (*sdkmcp.CallToolResult, any, error) {
	if err := t.store.DeleteObservation(ctx, in.ID); err != nil {
		return nil, nil, toolError(err)
	}
	return textResult(fmt.Sprintf("deleted observation %s", in.ID))
}

func (t *tools) exportObservations(ctx context.Context, _ *sdkmcp.CallToolRequest, in exportInput) (*sdkmcp.CallToolResult, any, error) {
	raw := in.Format
	if raw == "" {
		raw = string(export.FormatJSON)
	}
	format, ok := export.ParseFormat(raw)
	if !ok {
		return nil, nil, toolError(fmt.Errorf("%w: unsupported format %q", repository.ErrInvalidInput, raw))
	}
	artifact, err := t.store.Export(ctx, format)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(exportOutput{
		FileName:    artifact.FileName,
		ContentType: artifact.ContentType,
		Count:       artifact.Count,
		Content:     string(artifact.Data),
	})
}

func (t *tools) storageUsage(ctx context.Context, _ *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, any, error) {
	usage, err := t.store.Usage(ctx)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(usage)
}

func (t *tools) locationName(ctx context.Context, _ *sdkmcp.CallToolRequest, in locationNameInput) (*sdkmcp.CallToolResult, any, error) {
	c := observation.Coordinates{Latitude: in.Latitude, Longitude: in.Longitude}
	if err := observation.ValidateCoordinates(c); err != nil {
		return nil, nil, toolError(err)
	}
	if t.geocoder == nil {
		return textResult(c.String())
	}
	return textResult(t.geocoder.LocationName(ctx, c))
}

func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encoding result: %w", err)
	}
	return textResult(string(data))
}

func textResult(text string) (*sdkmcp.CallToolResult, any, error) {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}},
	}, nil, nil
}

// parseTime accepts a calendar date or an RFC 3339 timestamp.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a date", repository.ErrInvalidInput, s)
}
