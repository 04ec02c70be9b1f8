package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/domain/project"
	"github.com/rpggio/biodata/internal/offline"
	"github.com/rpggio/biodata/internal/store"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	require.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	require.Equal(t, slog.LevelError, parseLogLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestLogFileWriter_KeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "biodata.log")
	w, file, err := newLogFileWriter(path)
	require.NoError(t, err)
	defer file.Close()

	chunk := bytes.Repeat([]byte("a"), 1024*1024)
	for i := 0; i < 6; i++ {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}
	_, err = w.Write([]byte("tail-marker"))
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(keepLogSizeBytes), info.Size())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(data), "tail-marker"))
}

func TestEnsureParentDir(t *testing.T) {
	require.NoError(t, ensureParentDir(":memory:"))
	require.NoError(t, ensureParentDir("biodata.db"))

	path := filepath.Join(t.TempDir(), "nested", "dir", "biodata.db")
	require.NoError(t, ensureParentDir(path))
	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

// seedDB writes one project with one observation into a fresh database file.
func seedDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "data", "biodata.db")
	t.Setenv("BIODATA_CONFIG_PATH", "")
	t.Setenv("BIODATA_DB_PATH", dbPath)
	t.Setenv("BIODATA_CACHE_ORIGIN", "")
	t.Setenv("BIODATA_LOG_LEVEL", "error")

	cfg, err := loadConfig()
	require.NoError(t, err)
	cfg.Geo.Disabled = true
	rt, err := newRuntime(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer rt.Close()

	ctx := context.Background()
	p, err := rt.store.AddProject(ctx, project.Project{Name: "Wetland Birds"})
	require.NoError(t, err)
	_, err = rt.store.AddObservation(ctx, observation.Observation{
		ProjectID:   p.ID,
		Species:     "Black swan",
		Location:    "Lake Monger",
		Coordinates: &observation.Coordinates{Latitude: -31.93, Longitude: 115.83},
	})
	require.NoError(t, err)
	return dbPath
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	// Flag variables are package globals and keep values between runs.
	jsonOutput = false
	exportFormat = "json"
	exportProject = ""
	exportOutput = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestCLI_Version(t *testing.T) {
	require.Equal(t, "biodata dev\n", runCLI(t, "version"))
}

func TestCLI_UsageAndProjects(t *testing.T) {
	seedDB(t)

	var u store.Usage
	require.NoError(t, json.Unmarshal([]byte(runCLI(t, "usage", "--json")), &u))
	require.Equal(t, 1, u.Observations)
	require.Equal(t, 1, u.Projects)
	require.Positive(t, u.Bytes)

	out := runCLI(t, "projects")
	require.Contains(t, out, "Wetland Birds")
	require.Contains(t, out, "OBSERVATIONS")
}

func TestCLI_ExportToStdoutAndFile(t *testing.T) {
	seedDB(t)

	out := runCLI(t, "export", "--format", "csv", "--output", "-")
	require.True(t, strings.HasPrefix(out, "ID,Date,Species,Location,Latitude,Longitude,Habitat,Weather,Notes,Tags\n"))
	require.Contains(t, out, "Black swan")

	path := filepath.Join(t.TempDir(), "out", "birds.json")
	out = runCLI(t, "export", "--output", path)
	require.Contains(t, out, "exported 1 observations")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var exported []observation.Observation
	require.NoError(t, json.Unmarshal(data, &exported))
	require.Len(t, exported, 1)
	require.Equal(t, "Black swan", exported[0].Species)
}

func TestCLI_Import(t *testing.T) {
	seedDB(t)

	file := filepath.Join(t.TempDir(), "import.json")
	payload := `[{"id":"imported-1","projectId":"gone","species":"Pelican","location":"Bay","coordinates":{"latitude":-32,"longitude":115.7},"date":"2024-05-17T08:00:00Z","createdAt":1715932800000}]`
	require.NoError(t, os.WriteFile(file, []byte(payload), 0o644))

	out := runCLI(t, "import", file)
	require.Equal(t, "imported 1 observations, skipped 0\n", out)

	out = runCLI(t, "import", file)
	require.Equal(t, "imported 0 observations, skipped 1\n", out)
}

func TestRuntime_RestoreWorkerAdoptsStoredBucket(t *testing.T) {
	ctx := context.Background()
	t.Setenv("BIODATA_CONFIG_PATH", "")
	t.Setenv("BIODATA_DB_PATH", filepath.Join(t.TempDir(), "biodata.db"))
	t.Setenv("BIODATA_CACHE_ORIGIN", "https://biodata.test")

	cfg, err := loadConfig()
	require.NoError(t, err)
	cfg.Geo.Disabled = true
	rt, err := newRuntime(ctx, cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer rt.Close()

	wc := offline.WorkerConfig{Version: "v4", Origin: "https://biodata.test"}
	restored, err := rt.restoreWorker(ctx, wc)
	require.NoError(t, err)
	require.Empty(t, restored)
	require.Nil(t, rt.registration.Active())

	require.NoError(t, rt.caches.PutAll(ctx, "biodata-cache-v3", map[string]*offline.StoredResponse{
		"https://biodata.test/": {URL: "https://biodata.test/", Status: 200, Body: []byte("shell v3")},
	}))
	restored, err = rt.restoreWorker(ctx, wc)
	require.NoError(t, err)
	require.Equal(t, "v3", restored)
	require.Equal(t, "v3", rt.registration.Active().Version())
}
