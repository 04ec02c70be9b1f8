package offline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.yaml")

	writeManifest(t, path, "version: v7\nassets:\n  - /\n  - /assets/app.js\n")
	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Equal(t, "v7", m.Version)
	require.Equal(t, "/", m.Shell)
	require.Equal(t, []string{"/", "/assets/app.js"}, m.Assets)

	cfg := m.WorkerConfig(testOrigin, "")
	require.Equal(t, "v7", cfg.Version)
	require.Equal(t, testOrigin, cfg.Origin)

	writeManifest(t, path, "version: v8\n")
	m, err = LoadManifest(path)
	require.NoError(t, err)
	require.Equal(t, DefaultAssets, m.Assets)

	writeManifest(t, path, "assets: [/]\n")
	_, err = LoadManifest(path)
	require.ErrorIs(t, err, ErrInvalidManifest)

	_, err = LoadManifest(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestWatchManifest_ReportsNewVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.yaml")
	writeManifest(t, path, "version: v1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Manifest, 4)
	done := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		done <- WatchManifest(ctx, path, "v1", logger, func(_ context.Context, m Manifest) error {
			changes <- m
			return nil
		})
	}()

	// Give the watcher time to register before writing.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("version: v2\n"), 0o644); err != nil {
			return false
		}
		select {
		case m := <-changes:
			return m.Version == "v2"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWatchManifest_RetriesSameVersionAfterFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.yaml")
	writeManifest(t, path, "version: v1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan string, 16)
	applied := make(chan string, 1)
	done := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	calls := 0
	go func() {
		done <- WatchManifest(ctx, path, "v1", logger, func(_ context.Context, m Manifest) error {
			calls++
			attempts <- m.Version
			if calls == 1 {
				return errors.New("origin unreachable")
			}
			applied <- m.Version
			return nil
		})
	}()

	// The same manifest is saved until the failed version is applied.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("version: v2\n"), 0o644); err != nil {
			return false
		}
		select {
		case v := <-applied:
			return v == "v2"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	close(attempts)
	var versions []string
	for v := range attempts {
		versions = append(versions, v)
	}
	require.Equal(t, []string{"v2", "v2"}, versions)
}
