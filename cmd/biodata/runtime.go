package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/biodata/internal/config"
	"github.com/rpggio/biodata/internal/domain/notice"
	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/geo"
	"github.com/rpggio/biodata/internal/images"
	"github.com/rpggio/biodata/internal/mcp"
	"github.com/rpggio/biodata/internal/offline"
	"github.com/rpggio/biodata/internal/sqlite"
	"github.com/rpggio/biodata/internal/store"
	"github.com/rpggio/biodata/internal/transport"
)

const noticeBufferSize = 100

// runtime holds the wired application. Every command builds one; only serve
// installs workers and touches the network.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger

	db       *sqlite.DB
	store    *store.Store
	notices  *notice.Buffer
	geocoder store.Geocoder
	locator  geo.Locator

	// Nil when no cache origin is configured.
	origin       *url.URL
	caches       *sqlite.CacheStorage
	registration *offline.Registration
	network      http.RoundTripper
}

func newRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	if err := ensureParentDir(cfg.DB.Path); err != nil {
		return nil, fmt.Errorf("prepare database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.RunMigrationsContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		notices: notice.NewBuffer(noticeBufferSize, logger.With("component", "notices")),
		network: http.DefaultTransport,
	}

	if cfg.Cache.Origin != "" {
		origin, err := url.Parse(cfg.Cache.Origin)
		if err != nil || origin.Scheme == "" || origin.Host == "" {
			_ = db.Close()
			return nil, fmt.Errorf("invalid cache origin %q", cfg.Cache.Origin)
		}
		rt.origin = origin
		rt.caches = sqlite.NewCacheStorage(db)
		rt.registration = offline.NewRegistration(rt.network, offline.RegistrationOptions{
			SkipWaiting: cfg.Cache.SkipWaiting,
			Logger:      logger.With("component", "offline"),
		})
		rt.registration.OnControllerChange(func(ctx context.Context, w *offline.Worker) {
			rt.notices.Notify(ctx, notice.Notice{
				Title:       "App updated",
				Description: "Now running version " + w.Version(),
			})
		})
	}

	if !cfg.Geo.Disabled {
		// Lookups go through the registration so they share its network
		// path; cross-origin requests are never cached.
		var geoTransport http.RoundTripper = rt.network
		if rt.registration != nil {
			geoTransport = rt.registration
		}
		rt.geocoder = geo.NewNominatim(geo.NominatimConfig{
			Endpoint:          cfg.Geo.Endpoint,
			UserAgent:         cfg.Geo.UserAgent,
			Timeout:           cfg.Geo.Timeout,
			RequestsPerSecond: cfg.Geo.RequestsPerSecond,
			Transport:         geoTransport,
		}, logger.With("component", "geocoder"))
	}

	var position *observation.Coordinates
	if cfg.Geo.Latitude != nil && cfg.Geo.Longitude != nil {
		position = &observation.Coordinates{Latitude: *cfg.Geo.Latitude, Longitude: *cfg.Geo.Longitude}
	}
	rt.locator = geo.FixedLocator{Position: position}

	rt.store = store.New(sqlite.NewKVStore(db), store.Options{
		Notifier: rt.notices,
		Geocoder: rt.geocoder,
		Logger:   logger.With("component", "store"),
	})
	if err := rt.store.LoadAll(ctx); err != nil {
		// Unreadable keys start empty; the rest of the data is still usable.
		logger.Warn("stored data partially loaded", "error", err)
	}
	return rt, nil
}

func (rt *runtime) Close() error {
	return rt.db.Close()
}

// workerConfig describes the shell to precache, from the manifest file when
// one is configured.
func (rt *runtime) workerConfig() (offline.WorkerConfig, error) {
	c := rt.cfg.Cache
	if c.Manifest != "" {
		m, err := offline.LoadManifest(c.Manifest)
		if err != nil {
			return offline.WorkerConfig{}, err
		}
		return m.WorkerConfig(c.Origin, c.Prefix), nil
	}
	return offline.WorkerConfig{
		Version: c.Version,
		Prefix:  c.Prefix,
		Origin:  c.Origin,
		Shell:   c.Shell,
		Assets:  c.Assets,
	}, nil
}

func (rt *runtime) installWorker(ctx context.Context, wc offline.WorkerConfig) error {
	w, err := offline.NewWorker(wc, rt.caches, rt.network, rt.logger.With("component", "offline"))
	if err != nil {
		return err
	}
	return rt.registration.Install(ctx, w)
}

// restoreWorker puts the stored bucket for wc back in control so the shell is
// served before any install completes. When that version was never stored,
// any other stored version under the same prefix is adopted instead.
func (rt *runtime) restoreWorker(ctx context.Context, wc offline.WorkerConfig) (string, error) {
	logger := rt.logger.With("component", "offline")
	w, err := offline.NewWorker(wc, rt.caches, rt.network, logger)
	if err != nil {
		return "", err
	}
	if ok, err := rt.registration.Restore(ctx, w); err != nil {
		return "", err
	} else if ok {
		return w.Version(), nil
	}

	prefix := wc.Prefix
	if prefix == "" {
		prefix = offline.DefaultPrefix
	}
	buckets, err := rt.caches.Keys(ctx)
	if err != nil {
		return "", fmt.Errorf("listing cache buckets: %w", err)
	}
	for _, bucket := range buckets {
		stored, found := strings.CutPrefix(bucket, prefix)
		if !found || stored == "" {
			continue
		}
		other := wc
		other.Version = stored
		w, err := offline.NewWorker(other, rt.caches, rt.network, logger)
		if err != nil {
			return "", err
		}
		if ok, err := rt.registration.Restore(ctx, w); err != nil {
			return "", err
		} else if ok {
			return stored, nil
		}
	}
	return "", nil
}

// watchManifest installs a new worker each time the manifest version changes.
func (rt *runtime) watchManifest(ctx context.Context, version string) error {
	c := rt.cfg.Cache
	return offline.WatchManifest(ctx, c.Manifest, version, rt.logger, func(ctx context.Context, m offline.Manifest) error {
		return rt.installWorker(ctx, m.WorkerConfig(c.Origin, c.Prefix))
	})
}

func (rt *runtime) mcpServer() *sdkmcp.Server {
	return mcp.NewServer(mcp.Config{
		Store:    rt.store,
		Geocoder: rt.geocoder,
		Version:  version,
		Logger:   rt.logger.With("component", "mcp"),
	})
}

func (rt *runtime) httpHandler(mcpHandler http.Handler) http.Handler {
	// There is no window host on the server side, so notification clicks
	// only resolve their target.
	deps := transport.Dependencies{
		Store:         rt.store,
		Notices:       rt.notices,
		Images:        images.NewProcessor(images.WithLogger(rt.logger.With("component", "images"))),
		Locator:       rt.locator,
		Geocoder:      rt.geocoder,
		Notifications: offline.NewNotifications(rt.origin, rt.notices, nil),
		MCP:           mcpHandler,
		Logger:        rt.logger.With("component", "http"),
	}
	if rt.registration != nil {
		deps.Registration = rt.registration
		deps.Shell = offline.NewHandler(rt.registration, rt.origin, rt.logger.With("component", "shell"))
	}
	return transport.NewServer(deps)
}
