// Package offline serves the application shell and previously fetched
// resources when the network is unavailable. A Worker owns one versioned
// cache bucket; a Registration moves workers through install and activation
// and routes fetches to the active one.
package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rpggio/biodata/internal/metrics"
	"github.com/rpggio/biodata/internal/repository"
	"golang.org/x/sync/errgroup"
)

// State is a worker lifecycle state.
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

const (
	// DefaultPrefix is prepended to the version label to name cache buckets.
	DefaultPrefix = "biodata-cache-"
	// DefaultShell is the single-page-app entry point served for offline navigations.
	DefaultShell = "/"

	precacheConcurrency = 4
	offlineStatus       = http.StatusRequestTimeout
	offlineBody         = "Network error"
)

// DefaultAssets is the shell manifest precached at install.
var DefaultAssets = []string{
	"/",
	"/index.html",
	"/manifest.json",
	"/favicon.ico",
	"/icon-192.png",
	"/icon-512.png",
	"/icon-maskable.png",
	"/apple-touch-icon.png",
}

// WorkerConfig describes one deployment of the application shell.
type WorkerConfig struct {
	Version string
	Prefix  string
	Origin  string
	Shell   string
	Assets  []string
}

// Worker intercepts fetches for one version of the application.
type Worker struct {
	version string
	bucket  string
	origin  *url.URL
	shell   string
	assets  []string
	caches  CacheStorage
	network http.RoundTripper
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.RWMutex
	state State
}

// NewWorker creates a worker. network performs real requests.
func NewWorker(cfg WorkerConfig, caches CacheStorage, network http.RoundTripper, logger *slog.Logger) (*Worker, error) {
	if strings.TrimSpace(cfg.Version) == "" {
		return nil, fmt.Errorf("%w: version label is required", ErrInvalidManifest)
	}
	origin, err := url.Parse(cfg.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("%w: origin %q must be an absolute URL", ErrInvalidManifest, cfg.Origin)
	}
	origin = &url.URL{Scheme: strings.ToLower(origin.Scheme), Host: strings.ToLower(origin.Host)}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	shell := cfg.Shell
	if shell == "" {
		shell = DefaultShell
	}
	assets := cfg.Assets
	if len(assets) == 0 {
		assets = DefaultAssets
	}
	if network == nil {
		network = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Worker{
		version: cfg.Version,
		bucket:  prefix + cfg.Version,
		origin:  origin,
		shell:   shell,
		assets:  withShell(assets, shell),
		caches:  caches,
		network: network,
		logger:  logger.With("cache", prefix+cfg.Version),
		now:     time.Now,
		state:   StateParsed,
	}, nil
}

// Version returns the version label.
func (w *Worker) Version() string { return w.version }

// Bucket returns the name of the cache bucket this worker owns.
func (w *Worker) Bucket() string { return w.bucket }

// Origin returns the scheme and host the worker intercepts.
func (w *Worker) Origin() *url.URL {
	u := *w.origin
	return &u
}

// State returns the lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// install fetches every shell asset and stores them in a new bucket. Nothing
// is written unless all assets were fetched successfully.
func (w *Worker) install(ctx context.Context) error {
	w.setState(StateInstalling)

	entries := make(map[string]*StoredResponse, len(w.assets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(precacheConcurrency)
	for _, asset := range w.assets {
		asset := asset
		g.Go(func() error {
			target, err := w.resolve(asset)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrPrecacheFailed, asset, err)
			}
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, target.String(), nil)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrPrecacheFailed, asset, err)
			}
			resp, err := w.network.RoundTrip(req)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrPrecacheFailed, asset, err)
			}
			body, err := readAndClose(resp)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrPrecacheFailed, asset, err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%w: %s returned %d", ErrPrecacheFailed, asset, resp.StatusCode)
			}

			key := cacheKey(target)
			mu.Lock()
			entries[key] = &StoredResponse{
				URL:      key,
				Status:   resp.StatusCode,
				Header:   resp.Header.Clone(),
				Body:     body,
				StoredAt: w.now(),
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		w.setState(StateRedundant)
		metrics.CacheInstallsTotal.WithLabelValues("error").Inc()
		w.logger.Warn("install failed", "error", err)
		return err
	}

	if err := w.caches.PutAll(ctx, w.bucket, entries); err != nil {
		w.setState(StateRedundant)
		metrics.CacheInstallsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("storing shell assets: %w", err)
	}

	w.setState(StateInstalled)
	metrics.CacheInstallsTotal.WithLabelValues("ok").Inc()
	w.logger.Info("installed", "assets", len(entries))
	return nil
}

// activate deletes every bucket except this worker's own.
func (w *Worker) activate(ctx context.Context) error {
	w.setState(StateActivating)

	names, err := w.caches.Keys(ctx)
	if err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("listing cache buckets: %w", err)
	}
	for _, name := range names {
		if name == w.bucket {
			continue
		}
		if _, err := w.caches.Delete(ctx, name); err != nil {
			w.setState(StateInstalled)
			return fmt.Errorf("deleting cache bucket %s: %w", name, err)
		}
		metrics.CacheBucketsDeleted.Inc()
		w.logger.Info("deleted old cache bucket", "bucket", name)
	}

	w.setState(StateActivated)
	return nil
}

// Fetch answers req cache-first. Non-GET and cross-origin requests go to the
// network untouched. Network failures fall back to the cached shell for
// navigations and to a synthetic error response otherwise.
func (w *Worker) Fetch(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || !w.sameOrigin(req.URL) {
		metrics.CacheLookupsTotal.WithLabelValues("passthrough").Inc()
		return w.network.RoundTrip(req)
	}

	ctx := req.Context()
	key := cacheKey(req.URL)

	cached, err := w.caches.Match(ctx, w.bucket, key)
	if err == nil {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return cached.HTTPResponse(req), nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		w.logger.Warn("cache lookup failed", "url", key, "error", err)
	}

	resp, err := w.network.RoundTrip(req)
	if err != nil {
		return w.fallback(req, err), nil
	}
	if resp.StatusCode != http.StatusOK {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return resp, nil
	}

	body, err := readAndClose(resp)
	if err != nil {
		return w.fallback(req, err), nil
	}
	entry := &StoredResponse{
		URL:      key,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: w.now(),
	}
	if err := w.caches.Put(ctx, w.bucket, key, entry); err != nil {
		w.logger.Warn("cache store failed", "url", key, "error", err)
	}

	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

func (w *Worker) fallback(req *http.Request, cause error) *http.Response {
	w.logger.Debug("network unavailable", "url", req.URL.String(), "error", cause)

	if isNavigation(req) {
		shellURL, err := w.resolve(w.shell)
		if err == nil {
			// A canceled request context must not prevent serving the shell.
			shell, err := w.caches.Match(context.WithoutCancel(req.Context()), w.bucket, cacheKey(shellURL))
			if err == nil {
				metrics.CacheLookupsTotal.WithLabelValues("fallback").Inc()
				return shell.HTTPResponse(req)
			}
		}
	}

	metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
	return offlineResponse(req)
}

func (w *Worker) resolve(asset string) (*url.URL, error) {
	ref, err := url.Parse(asset)
	if err != nil {
		return nil, err
	}
	return w.origin.ResolveReference(ref), nil
}

func (w *Worker) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, w.origin.Scheme) && strings.EqualFold(u.Host, w.origin.Host)
}

func cacheKey(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	return c.String()
}

func isNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

func offlineResponse(req *http.Request) *http.Response {
	return (&StoredResponse{
		Status: offlineStatus,
		Header: http.Header{"Content-Type": {"text/plain"}},
		Body:   []byte(offlineBody),
	}).HTTPResponse(req)
}

func readAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func withShell(assets []string, shell string) []string {
	out := make([]string, 0, len(assets)+1)
	seen := make(map[string]bool, len(assets)+1)
	for _, a := range assets {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	if !seen[shell] {
		out = append(out, shell)
	}
	return out
}
