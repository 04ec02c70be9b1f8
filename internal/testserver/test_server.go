// Package testserver runs the whole application over httptest, in front of a
// fake application origin that can be taken offline.
package testserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/biodata/internal/domain/notice"
	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/geo"
	"github.com/rpggio/biodata/internal/images"
	"github.com/rpggio/biodata/internal/mcp"
	"github.com/rpggio/biodata/internal/offline"
	"github.com/rpggio/biodata/internal/sqlite"
	"github.com/rpggio/biodata/internal/store"
	"github.com/rpggio/biodata/internal/transport"
	"github.com/stretchr/testify/require"
)

// Position is the device position reported by the test server.
var Position = observation.Coordinates{Latitude: -33.8688, Longitude: 151.2093}

// PlaceName is what the test geocoder returns for any coordinates.
const PlaceName = "Royal Botanic Garden, Sydney"

type placeGeocoder struct{}

func (placeGeocoder) LocationName(context.Context, observation.Coordinates) string { return PlaceName }

// Origin is a fake deployment of the application shell. Every asset body
// names the deployed version.
type Origin struct {
	Server *httptest.Server

	mu      sync.Mutex
	version string
	down    atomic.Bool
	hits    map[string]int
}

func newOrigin(version string) *Origin {
	o := &Origin{version: version, hits: make(map[string]int)}
	o.Server = httptest.NewServer(http.HandlerFunc(o.serve))
	return o
}

func (o *Origin) serve(w http.ResponseWriter, r *http.Request) {
	if o.down.Load() {
		// Drop the connection so clients see a transport error.
		panic(http.ErrAbortHandler)
	}
	o.mu.Lock()
	o.hits[r.URL.Path]++
	version := o.version
	o.mu.Unlock()

	switch {
	case r.URL.Path == "/" || r.URL.Path == "/index.html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body>shell %s</body></html>", version)
	case r.URL.Path == "/manifest.json":
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name":"BioData Gatherer","version":%q}`, version)
	case strings.HasPrefix(r.URL.Path, "/assets/") || strings.HasSuffix(r.URL.Path, ".png") || strings.HasSuffix(r.URL.Path, ".ico"):
		w.Header().Set("Content-Type", "application/octet-stream")
		fmt.Fprintf(w, "%s %s", r.URL.Path, version)
	default:
		http.NotFound(w, r)
	}
}

// Deploy changes the version served by the origin.
func (o *Origin) Deploy(version string) {
	o.mu.Lock()
	o.version = version
	o.mu.Unlock()
}

// SetDown takes the origin offline or back online.
func (o *Origin) SetDown(down bool) { o.down.Store(down) }

// Hits reports how many requests reached path.
func (o *Origin) Hits(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

// TestServer is the application wired the way serve wires it.
type TestServer struct {
	Server       *httptest.Server
	Origin       *Origin
	DB           *sqlite.DB
	Store        *store.Store
	Notices      *notice.Buffer
	Caches       *sqlite.CacheStorage
	Registration *offline.Registration
	MCP          *sdkmcp.Server

	opts   Options
	logger *slog.Logger
}

// Options adjust the test server.
type Options struct {
	SkipWaiting bool
	// Version is the shell version deployed and installed at start. Empty
	// means "v1".
	Version string
}

// New starts an origin, installs its shell and serves the application.
func New(t *testing.T, opts Options) *TestServer {
	t.Helper()
	ctx := context.Background()
	if opts.Version == "" {
		opts.Version = "v1"
	}
	logger := slog.New(slog.DiscardHandler)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	origin := newOrigin(opts.Version)
	ts := &TestServer{Origin: origin, DB: db, opts: opts, logger: logger}
	ts.start(t)
	t.Cleanup(func() {
		ts.Server.Close()
		origin.Server.Close()
		_ = db.Close()
	})

	require.NoError(t, ts.Install(ctx, opts.Version))
	return ts
}

// start wires the application over the test server's database and origin.
func (ts *TestServer) start(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	logger := ts.logger
	originURL, err := url.Parse(ts.Origin.Server.URL)
	require.NoError(t, err)

	notices := notice.NewBuffer(100, nil)
	caches := sqlite.NewCacheStorage(ts.DB)
	reg := offline.NewRegistration(ts.Origin.Server.Client().Transport, offline.RegistrationOptions{
		SkipWaiting: ts.opts.SkipWaiting,
		Logger:      logger,
	})
	reg.OnControllerChange(func(ctx context.Context, w *offline.Worker) {
		notices.Notify(ctx, notice.Notice{
			Title:       "App updated",
			Description: "Now running version " + w.Version(),
		})
	})

	geocoder := placeGeocoder{}
	st := store.New(sqlite.NewKVStore(ts.DB), store.Options{Notifier: notices, Geocoder: geocoder, Logger: logger})
	require.NoError(t, st.LoadAll(ctx))

	mcpServer := mcp.NewServer(mcp.Config{Store: st, Geocoder: geocoder, Version: "test", Logger: logger})
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{SessionTimeout: time.Minute},
	)

	pos := Position
	ts.Server = httptest.NewServer(transport.NewServer(transport.Dependencies{
		Store:         st,
		Notices:       notices,
		Images:        images.NewProcessor(),
		Locator:       geo.FixedLocator{Position: &pos},
		Geocoder:      geocoder,
		Notifications: offline.NewNotifications(originURL, notices, nil),
		Registration:  reg,
		Shell:         offline.NewHandler(reg, originURL, logger),
		MCP:           mcpHandler,
		Logger:        logger,
	}))
	ts.Store = st
	ts.Notices = notices
	ts.Caches = caches
	ts.Registration = reg
	ts.MCP = mcpServer
}

// Restart stops the application and starts a fresh one over the same
// database, the way a process restart would. No worker is active afterwards
// until Restore or Install succeeds.
func (ts *TestServer) Restart(t *testing.T) {
	t.Helper()
	ts.Server.Close()
	ts.start(t)
}

// Restore puts the stored bucket for version back in control.
func (ts *TestServer) Restore(ctx context.Context, version string) (bool, error) {
	w, err := ts.newWorker(version)
	if err != nil {
		return false, err
	}
	return ts.Registration.Restore(ctx, w)
}

// Install precaches the origin's shell as version and hands it to the
// registration.
func (ts *TestServer) Install(ctx context.Context, version string) error {
	w, err := ts.newWorker(version)
	if err != nil {
		return err
	}
	return ts.Registration.Install(ctx, w)
}

func (ts *TestServer) newWorker(version string) (*offline.Worker, error) {
	return offline.NewWorker(offline.WorkerConfig{
		Version: version,
		Origin:  ts.Origin.Server.URL,
	}, ts.Caches, ts.Origin.Server.Client().Transport, nil)
}

// URL resolves path against the application server.
func (ts *TestServer) URL(path string) string {
	return ts.Server.URL + path
}
