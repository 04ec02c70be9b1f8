package offline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// ControllerChangeFunc is called after a new worker takes control.
type ControllerChangeFunc func(ctx context.Context, w *Worker)

// RegistrationOptions configures a Registration.
type RegistrationOptions struct {
	// SkipWaiting activates an installed worker immediately even when an
	// older one is still in control.
	SkipWaiting bool
	Logger      *slog.Logger
}

// Registration tracks the active and waiting workers for one origin. It is
// an http.RoundTripper: requests go through the active worker, or straight
// to the network when none is active yet.
type Registration struct {
	network     http.RoundTripper
	skipWaiting bool
	logger      *slog.Logger

	mu        sync.RWMutex
	active    *Worker
	waiting   *Worker
	listeners []ControllerChangeFunc
}

// NewRegistration creates a registration with no workers.
func NewRegistration(network http.RoundTripper, opts RegistrationOptions) *Registration {
	if network == nil {
		network = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registration{
		network:     network,
		skipWaiting: opts.SkipWaiting,
		logger:      logger,
	}
}

// Active returns the worker in control, or nil.
func (r *Registration) Active() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Waiting returns the installed worker waiting to take control, or nil.
func (r *Registration) Waiting() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.waiting
}

// OnControllerChange registers fn to run after each activation.
func (r *Registration) OnControllerChange(fn ControllerChangeFunc) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Restore puts w in control without fetching anything when its bucket is
// already stored, as it is after a restart. It reports whether w was adopted.
// A registration that already has an active worker is left unchanged.
func (r *Registration) Restore(ctx context.Context, w *Worker) (bool, error) {
	ok, err := w.caches.Has(ctx, w.bucket)
	if err != nil {
		return false, fmt.Errorf("checking cache bucket %s: %w", w.bucket, err)
	}
	if !ok {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return false, nil
	}
	w.setState(StateActivated)
	r.active = w
	r.logger.Info("worker restored", "version", w.Version(), "bucket", w.Bucket())
	return true, nil
}

// Install precaches w's shell. On failure the previously active worker keeps
// serving and w becomes redundant. On success w waits, or is activated
// immediately when nothing is active, skip-waiting is enabled or w refreshed
// the active worker's own bucket.
func (r *Registration) Install(ctx context.Context, w *Worker) error {
	if err := w.install(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	if r.waiting != nil && r.waiting != w {
		r.waiting.setState(StateRedundant)
	}
	r.waiting = w
	activateNow := r.active == nil || r.skipWaiting || r.active.bucket == w.bucket
	r.mu.Unlock()

	if !activateNow {
		r.logger.Info("worker waiting", "version", w.Version())
		return nil
	}
	return r.Activate(ctx)
}

// Activate hands control to the waiting worker. Old buckets are deleted and
// the previous worker becomes redundant. Fetches block until the cutover is
// complete so no request observes a half-cleaned cache.
func (r *Registration) Activate(ctx context.Context) error {
	r.mu.Lock()
	w := r.waiting
	if w == nil {
		r.mu.Unlock()
		return ErrNothingWaiting
	}
	if err := w.activate(ctx); err != nil {
		r.mu.Unlock()
		return err
	}
	previous := r.active
	r.active = w
	r.waiting = nil
	listeners := append([]ControllerChangeFunc(nil), r.listeners...)
	r.mu.Unlock()

	if previous != nil && previous != w {
		previous.setState(StateRedundant)
	}
	r.logger.Info("worker activated", "version", w.Version(), "bucket", w.Bucket())

	// Refreshing the running version in place is not a controller change.
	if previous != nil && previous.bucket == w.bucket {
		return nil
	}
	for _, fn := range listeners {
		fn(ctx, w)
	}
	return nil
}

// RoundTrip implements http.RoundTripper.
func (r *Registration) RoundTrip(req *http.Request) (*http.Response, error) {
	r.mu.RLock()
	w := r.active
	r.mu.RUnlock()

	if w == nil {
		return r.network.RoundTrip(req)
	}
	return w.Fetch(req)
}
