package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/domain/project"
	"github.com/rpggio/biodata/internal/sqlite"
	"github.com/rpggio/biodata/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, geocoder store.Geocoder) *sdkmcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	st := store.New(sqlite.NewKVStore(db), store.Options{Geocoder: geocoder})
	server := NewServer(Config{Store: st, Geocoder: geocoder, Version: "test"})

	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *sdkmcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestTools_ProjectAndObservationFlow(t *testing.T) {
	session := newTestSession(t, nil)

	text, isErr := callTool(t, session, "create_project", map[string]any{"name": "Reef Survey", "start_date": "2024-05-01"})
	require.False(t, isErr, text)
	var p project.Project
	require.NoError(t, json.Unmarshal([]byte(text), &p))
	require.Equal(t, 2024, p.StartDate.Year())

	text, isErr = callTool(t, session, "add_observation", map[string]any{
		"species":   "Clownfish",
		"latitude":  1.0,
		"longitude": 2.0,
		"tags":      []string{"fish"},
	})
	require.False(t, isErr, text)
	var obs observation.Observation
	require.NoError(t, json.Unmarshal([]byte(text), &obs))
	require.Equal(t, p.ID, obs.ProjectID)
	require.Equal(t, "1.000000, 2.000000", obs.Location)

	text, isErr = callTool(t, session, "delete_project", map[string]any{"id": p.ID})
	require.True(t, isErr)
	require.Contains(t, text, "PROJECT_IN_USE")

	text, isErr = callTool(t, session, "update_observation", map[string]any{"id": obs.ID, "notes": "x"})
	require.False(t, isErr, text)
	var updated observation.Observation
	require.NoError(t, json.Unmarshal([]byte(text), &updated))
	require.Equal(t, "x", updated.Notes)
	require.Equal(t, obs.Species, updated.Species)

	text, isErr = callTool(t, session, "export_observations", map[string]any{"format": "csv"})
	require.False(t, isErr, text)
	var out exportOutput
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	require.Equal(t, 1, out.Count)
	require.Contains(t, out.Content, "Clownfish")

	_, isErr = callTool(t, session, "delete_observation", map[string]any{"id": obs.ID})
	require.False(t, isErr)
	_, isErr = callTool(t, session, "delete_project", map[string]any{"id": p.ID})
	require.False(t, isErr)

	text, _ = callTool(t, session, "list_projects", map[string]any{})
	require.JSONEq(t, "[]", text)
}

func TestTools_Errors(t *testing.T) {
	session := newTestSession(t, nil)

	text, isErr := callTool(t, session, "export_observations", map[string]any{})
	require.True(t, isErr)
	require.Contains(t, text, "NO_CURRENT_PROJECT")

	text, isErr = callTool(t, session, "add_observation", map[string]any{"species": "Gull", "latitude": 1.0, "longitude": 2.0})
	require.True(t, isErr)
	require.Contains(t, text, "MISSING_PROJECT")

	text, isErr = callTool(t, session, "set_current_project", map[string]any{"id": "nope"})
	require.True(t, isErr)
	require.Contains(t, text, "PROJECT_NOT_FOUND")

	text, isErr = callTool(t, session, "create_project", map[string]any{"name": "ab"})
	require.True(t, isErr)
	require.Contains(t, text, "INVALID_INPUT")
}

func TestDocResources(t *testing.T) {
	session := newTestSession(t, nil)

	res, err := session.ReadResource(context.Background(), &sdkmcp.ReadResourceParams{URI: "biodata://docs/guide"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	require.Contains(t, res.Contents[0].Text, "Integrity rules")
}

func TestMapError(t *testing.T) {
	require.Nil(t, MapError(nil))
	require.Equal(t, "PROJECT_IN_USE", MapError(store.ErrProjectInUse).Code)
	require.Nil(t, MapError(context.Canceled))
}

type placeGeocoder string

func (g placeGeocoder) LocationName(context.Context, observation.Coordinates) string { return string(g) }

func TestTools_LocationName(t *testing.T) {
	session := newTestSession(t, placeGeocoder("Lizard Island"))

	text, isErr := callTool(t, session, "location_name", map[string]any{"latitude": -14.67, "longitude": 145.46})
	require.False(t, isErr, text)
	require.Equal(t, "Lizard Island", text)

	text, isErr = callTool(t, session, "add_observation", map[string]any{
		"species":   "Green turtle",
		"latitude":  -14.67,
		"longitude": 145.46,
	})
	require.True(t, isErr)
	require.Contains(t, text, "MISSING_PROJECT")

	_, isErr = callTool(t, session, "location_name", map[string]any{"latitude": 123.0, "longitude": 0.0})
	require.True(t, isErr)
}

func TestTools_LocationNameWithoutGeocoder(t *testing.T) {
	session := newTestSession(t, nil)

	text, isErr := callTool(t, session, "location_name", map[string]any{"latitude": 1.5, "longitude": -2.25})
	require.False(t, isErr, text)
	require.Equal(t, "1.500000, -2.250000", text)
}

func TestCallOutcome(t *testing.T) {
	require.Equal(t, "ok", callOutcome(&sdkmcp.CallToolResult{}, nil))
	require.Equal(t, "tool_error", callOutcome(&sdkmcp.CallToolResult{IsError: true}, nil))
	require.Equal(t, "error", callOutcome(nil, errors.New("boom")))
	require.Equal(t, "ok", callOutcome(&sdkmcp.ListToolsResult{}, nil))
}
