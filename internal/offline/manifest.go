package offline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Manifest lists the shell assets of one deployment.
type Manifest struct {
	Version string   `yaml:"version"`
	Shell   string   `yaml:"shell"`
	Assets  []string `yaml:"assets"`
}

// LoadManifest reads and validates a YAML manifest.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	m.Version = strings.TrimSpace(m.Version)
	if m.Version == "" {
		return Manifest{}, fmt.Errorf("%w: version is required", ErrInvalidManifest)
	}
	if m.Shell == "" {
		m.Shell = DefaultShell
	}
	if len(m.Assets) == 0 {
		m.Assets = DefaultAssets
	}
	return m, nil
}

// WorkerConfig returns the worker configuration for origin and prefix.
func (m Manifest) WorkerConfig(origin, prefix string) WorkerConfig {
	return WorkerConfig{
		Version: m.Version,
		Prefix:  prefix,
		Origin:  origin,
		Shell:   m.Shell,
		Assets:  m.Assets,
	}
}

// WatchManifest calls onChange whenever the manifest at path is rewritten
// with a version label other than the last one onChange accepted. A failed
// onChange leaves the version pending, so saving the manifest again retries.
// It blocks until ctx is done.
func WatchManifest(ctx context.Context, path, version string, logger *slog.Logger, onChange func(context.Context, Manifest) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating manifest watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving manifest path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching manifest directory: %w", err)
	}

	current := version
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			m, err := LoadManifest(abs)
			if err != nil {
				logger.Warn("ignoring manifest change", "path", abs, "error", err)
				continue
			}
			if m.Version == current {
				continue
			}
			logger.Info("manifest version changed", "from", current, "to", m.Version)
			if err := onChange(ctx, m); err != nil {
				logger.Error("applying manifest change", "version", m.Version, "error", err)
				continue
			}
			current = m.Version
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("manifest watcher error", "error", err)
		}
	}
}
