package testserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/biodata/internal/domain/notice"
	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/domain/project"
	"github.com/rpggio/biodata/internal/offline"
	"github.com/rpggio/biodata/internal/testserver"
	"github.com/stretchr/testify/require"
)

type cacheStatus struct {
	Version string `json:"version"`
	Bucket  string `json:"bucket"`
	State   string `json:"state"`
}

type status struct {
	SyncStatus string       `json:"syncStatus"`
	Active     *cacheStatus `json:"activeCache"`
	Waiting    *cacheStatus `json:"waitingCache"`
}

func request(t *testing.T, method, url, accept string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func navigate(t *testing.T, ts *testserver.TestServer, path string) (int, string) {
	t.Helper()
	code, body := request(t, http.MethodGet, ts.URL(path), "text/html,application/xhtml+xml", nil)
	return code, string(body)
}

func getStatus(t *testing.T, ts *testserver.TestServer) status {
	t.Helper()
	code, body := request(t, http.MethodGet, ts.URL("/api/status"), "", nil)
	require.Equal(t, http.StatusOK, code)
	var st status
	require.NoError(t, json.Unmarshal(body, &st))
	return st
}

func TestOfflineShellScenario(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})
	ctx := context.Background()

	st := getStatus(t, ts)
	require.NotNil(t, st.Active)
	require.Equal(t, "v1", st.Active.Version)
	require.Equal(t, "biodata-cache-v1", st.Active.Bucket)
	require.Equal(t, string(offline.StateActivated), st.Active.State)
	require.Nil(t, st.Waiting)

	// Precached shell answers without reaching the origin again.
	hits := ts.Origin.Hits("/")
	code, body := navigate(t, ts, "/")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "shell v1")
	require.Equal(t, hits, ts.Origin.Hits("/"))

	ts.Origin.SetDown(true)

	code, body = navigate(t, ts, "/projects/abc")
	require.Equal(t, http.StatusOK, code, "navigations fall back to the shell")
	require.Contains(t, body, "shell v1")

	code, raw := request(t, http.MethodGet, ts.URL("/assets/chunk-42.js"), "*/*", nil)
	require.Equal(t, http.StatusRequestTimeout, code)
	require.Equal(t, "Network error", string(raw))

	code, _ = request(t, http.MethodPost, ts.URL("/feedback"), "", map[string]string{"text": "hi"})
	require.Equal(t, http.StatusBadGateway, code, "non-GET requests are never answered from cache")

	// A failed install leaves the active version serving.
	err := ts.Install(ctx, "v2")
	require.ErrorIs(t, err, offline.ErrPrecacheFailed)
	keys, err := ts.Caches.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"biodata-cache-v1"}, keys)
	require.Equal(t, "v1", getStatus(t, ts).Active.Version)

	ts.Origin.SetDown(false)
	ts.Origin.Deploy("v2")
	require.NoError(t, ts.Install(ctx, "v2"))

	st = getStatus(t, ts)
	require.Equal(t, "v1", st.Active.Version)
	require.NotNil(t, st.Waiting)
	require.Equal(t, "v2", st.Waiting.Version)

	_, body = navigate(t, ts, "/")
	require.Contains(t, body, "shell v1", "waiting worker does not serve")

	code, _ = request(t, http.MethodPost, ts.URL("/api/cache/activate"), "", nil)
	require.Equal(t, http.StatusOK, code)

	st = getStatus(t, ts)
	require.Equal(t, "v2", st.Active.Version)
	require.Nil(t, st.Waiting)

	keys, err = ts.Caches.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"biodata-cache-v2"}, keys)

	_, body = navigate(t, ts, "/")
	require.Contains(t, body, "shell v2")

	code, _ = request(t, http.MethodPost, ts.URL("/api/cache/activate"), "", nil)
	require.Equal(t, http.StatusConflict, code)

	code, raw = request(t, http.MethodGet, ts.URL("/api/notices"), "", nil)
	require.Equal(t, http.StatusOK, code)
	var notices []notice.Notice
	require.NoError(t, json.Unmarshal(raw, &notices))
	var updates []string
	for _, n := range notices {
		if n.Title == "App updated" {
			updates = append(updates, n.Description)
		}
	}
	require.Equal(t, []string{"Now running version v1", "Now running version v2"}, updates)
}

func TestRestartWhileOriginDownServesStoredShell(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})
	ctx := context.Background()

	ts.Origin.SetDown(true)
	ts.Restart(t)
	require.Nil(t, getStatus(t, ts).Active)

	code, _ := navigate(t, ts, "/")
	require.Equal(t, http.StatusBadGateway, code, "nothing in control yet")

	ok, err := ts.Restore(ctx, "v1")
	require.NoError(t, err)
	require.True(t, ok)

	err = ts.Install(ctx, "v1")
	require.ErrorIs(t, err, offline.ErrPrecacheFailed)

	st := getStatus(t, ts)
	require.NotNil(t, st.Active)
	require.Equal(t, "v1", st.Active.Version)
	require.Equal(t, string(offline.StateActivated), st.Active.State)

	code, body := navigate(t, ts, "/observations/new")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "shell v1")

	code, raw := request(t, http.MethodGet, ts.URL("/manifest.json"), "*/*", nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(raw), `"version":"v1"`)

	keys, err := ts.Caches.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"biodata-cache-v1"}, keys)
}

func TestSkipWaitingActivatesImmediately(t *testing.T) {
	ts := testserver.New(t, testserver.Options{SkipWaiting: true})
	ctx := context.Background()
	previous := ts.Registration.Active()
	require.NotNil(t, previous)

	ts.Origin.Deploy("v2")
	require.NoError(t, ts.Install(ctx, "v2"))

	st := getStatus(t, ts)
	require.Equal(t, "v2", st.Active.Version)
	require.Nil(t, st.Waiting)
	require.Equal(t, offline.StateRedundant, previous.State())
	require.Equal(t, offline.StateActivated, ts.Registration.Active().State())
}

func TestDataStaysAvailableOffline(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})
	ts.Origin.SetDown(true)

	code, raw := request(t, http.MethodPost, ts.URL("/api/projects"), "", map[string]string{"name": "Harbour Birds"})
	require.Equal(t, http.StatusCreated, code)
	var p project.Project
	require.NoError(t, json.Unmarshal(raw, &p))

	code, raw = request(t, http.MethodGet, ts.URL("/api/location/current"), "", nil)
	require.Equal(t, http.StatusOK, code)
	var pos observation.Coordinates
	require.NoError(t, json.Unmarshal(raw, &pos))
	require.Equal(t, testserver.Position.Latitude, pos.Latitude)

	code, raw = request(t, http.MethodPost, ts.URL("/api/observations"), "", map[string]any{
		"species":     "Silver gull",
		"coordinates": pos,
	})
	require.Equal(t, http.StatusCreated, code)
	var obs observation.Observation
	require.NoError(t, json.Unmarshal(raw, &obs))
	require.Equal(t, p.ID, obs.ProjectID)
	require.Equal(t, testserver.PlaceName, obs.Location)

	code, raw = request(t, http.MethodGet, ts.URL("/api/export?format=csv"), "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(raw), "Silver gull")
}

func TestMCPOverStreamableHTTP(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})
	ctx := context.Background()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, &sdkmcp.StreamableClientTransport{Endpoint: ts.URL("/mcp")}, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "create_project",
		Arguments: map[string]any{"name": "Alpine Flora"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	code, raw := request(t, http.MethodGet, ts.URL("/api/projects/current"), "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(raw), "Alpine Flora")
}
