package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rpggio/biodata/internal/domain/notice"
	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/domain/project"
	"github.com/rpggio/biodata/internal/geo"
	"github.com/rpggio/biodata/internal/images"
	"github.com/rpggio/biodata/internal/offline"
	"github.com/rpggio/biodata/internal/sqlite"
	"github.com/rpggio/biodata/internal/store"
	"github.com/stretchr/testify/require"
)

type staticGeocoder struct{ name string }

func (g staticGeocoder) LocationName(context.Context, observation.Coordinates) string { return g.name }

type testEnv struct {
	server  *httptest.Server
	store   *store.Store
	notices *notice.Buffer
}

func newTestEnv(t *testing.T, shell http.Handler) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	notices := notice.NewBuffer(20, nil)
	geocoder := staticGeocoder{name: "Heron Island"}
	st := store.New(sqlite.NewKVStore(db), store.Options{Notifier: notices, Geocoder: geocoder})

	origin, err := url.Parse("https://biodata.test")
	require.NoError(t, err)
	pos := &observation.Coordinates{Latitude: -23.44, Longitude: 151.91}

	server := httptest.NewServer(NewServer(Dependencies{
		Store:         st,
		Notices:       notices,
		Images:        images.NewProcessor(),
		Locator:       geo.FixedLocator{Position: pos},
		Geocoder:      geocoder,
		Notifications: offline.NewNotifications(origin, notices, nil),
		Shell:         shell,
	}))
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: st, notices: notices}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHTTPServer_Health(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPServer_ProjectLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/projects", map[string]string{"name": "Reef Survey"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	p := decode[project.Project](t, resp)
	require.NotEmpty(t, p.ID)

	resp = env.do(t, http.MethodGet, "/api/projects/current", nil)
	require.Equal(t, p.ID, decode[currentProjectResponse](t, resp).Project.ID)

	resp = env.do(t, http.MethodPost, "/api/observations", map[string]any{
		"species":     "Clownfish",
		"coordinates": map[string]float64{"latitude": 1, "longitude": 2},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	obs := decode[observation.Observation](t, resp)
	require.Equal(t, p.ID, obs.ProjectID, "defaults to the current project")
	require.Equal(t, "Heron Island", obs.Location)

	resp = env.do(t, http.MethodDelete, "/api/projects/"+p.ID, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "project_in_use", decode[errorResponse](t, resp).Code)

	resp = env.do(t, http.MethodDelete, "/api/observations/"+obs.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/projects/"+p.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/projects/current", nil)
	require.Nil(t, decode[currentProjectResponse](t, resp).Project)

	resp = env.do(t, http.MethodGet, "/api/projects/"+p.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPServer_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/projects", map[string]string{"name": "ab"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/observations", map[string]any{"species": "Gull"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env.do(t, http.MethodPost, "/api/projects", map[string]string{"name": "Coast"})
	resp = env.do(t, http.MethodPost, "/api/observations", map[string]any{"species": "Gull"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "missing_coordinates", decode[errorResponse](t, resp).Code)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/projects", strings.NewReader("{"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	require.Equal(t, http.StatusBadRequest, raw.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPServer_UpdateObservation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/projects", map[string]string{"name": "Meadow"})
	resp := env.do(t, http.MethodPost, "/api/observations", map[string]any{
		"species":     "Bee",
		"location":    "Field",
		"coordinates": map[string]float64{"latitude": 1, "longitude": 2},
	})
	obs := decode[observation.Observation](t, resp)

	resp = env.do(t, http.MethodPatch, "/api/observations/"+obs.ID, map[string]string{"notes": "x"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[observation.Observation](t, resp)
	require.Equal(t, "x", updated.Notes)
	require.Equal(t, "Field", updated.Location)
	require.NotNil(t, updated.UpdatedAt)

	resp = env.do(t, http.MethodPatch, "/api/observations/missing", map[string]string{"notes": "x"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPServer_Export(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/export?format=csv", nil)
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	env.do(t, http.MethodPost, "/api/projects", map[string]string{"name": "Reef Survey"})
	resp = env.do(t, http.MethodGet, "/api/export?format=csv", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "nothing_to_export", decode[errorResponse](t, resp).Code)

	env.do(t, http.MethodPost, "/api/observations", map[string]any{
		"species":     "Clownfish",
		"coordinates": map[string]float64{"latitude": 1, "longitude": 2},
		"tags":        []string{"fish", "reef"},
	})
	resp = env.do(t, http.MethodGet, "/api/export?format=csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	require.Contains(t, resp.Header.Get("Content-Disposition"), `attachment; filename=Reef_Survey_`)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `"fish, reef"`)

	resp = env.do(t, http.MethodGet, "/api/export?format=xml", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/notices", nil)
	titles := []string{}
	for _, n := range decode[[]notice.Notice](t, resp) {
		titles = append(titles, n.Title)
	}
	require.Contains(t, titles, "Export successful")
	require.Contains(t, titles, "No project selected")
}

func TestHTTPServer_ImportUsageAndClear(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/projects", map[string]string{"name": "Wetlands"})

	resp := env.do(t, http.MethodPost, "/api/import", []map[string]any{
		{"id": "a", "species": "Heron", "coordinates": map[string]float64{"latitude": 1, "longitude": 2}},
		{"id": "b", "species": "Egret", "coordinates": map[string]float64{"latitude": 3, "longitude": 4}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, store.ImportResult{Added: 2}, decode[store.ImportResult](t, resp))

	resp = env.do(t, http.MethodGet, "/api/storage", nil)
	usage := decode[store.Usage](t, resp)
	require.Equal(t, 2, usage.Observations)
	require.Positive(t, usage.Bytes)

	resp = env.do(t, http.MethodDelete, "/api/storage/observations", nil)
	require.Equal(t, clearResponse{Removed: 2}, decode[clearResponse](t, resp))

	resp = env.do(t, http.MethodGet, "/api/observations", nil)
	require.Empty(t, decode[[]observation.Observation](t, resp))
}

func TestHTTPServer_Location(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/location/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c := decode[observation.Coordinates](t, resp)
	require.Equal(t, -23.44, c.Latitude)

	resp = env.do(t, http.MethodGet, "/api/location/name?lat=-23.44&lon=151.91", nil)
	require.Equal(t, locationNameResponse{Location: "Heron Island"}, decode[locationNameResponse](t, resp))

	resp = env.do(t, http.MethodGet, "/api/location/name?lat=abc", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/location/current?timeout_ms=-5", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPServer_Images(t *testing.T) {
	env := newTestEnv(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("just text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/images", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, decode[[]observation.ImageData](t, resp))
}

func TestHTTPServer_PushAndClick(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/push", map[string]string{"body": "Sync complete"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	n := decode[notice.Notice](t, resp)
	require.Equal(t, offline.DefaultNotificationTitle, n.Title)

	resp = env.do(t, http.MethodPost, "/api/notifications/click", map[string]string{"url": "/observations"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://biodata.test/observations", decode[notificationClickRequest](t, resp).URL)
}

func TestHTTPServer_ShellFallback(t *testing.T) {
	shell := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("shell:" + r.URL.Path))
	})
	env := newTestEnv(t, shell)

	resp := env.do(t, http.MethodGet, "/observations/123", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "shell:/observations/123", string(body))
}

func TestStatusFor(t *testing.T) {
	status, code := statusFor(&geo.PositionError{Code: geo.Timeout})
	require.Equal(t, http.StatusGatewayTimeout, status)
	require.Equal(t, "location_timeout", code)

	status, code = statusFor(fmt.Errorf("activate: %w", offline.ErrNothingWaiting))
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "nothing_waiting", code)

	status, _ = statusFor(store.ErrExportFailed)
	require.Equal(t, http.StatusInternalServerError, status)
}
