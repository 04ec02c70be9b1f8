// Package geo provides position acquisition and reverse geocoding. Both are
// best-effort: callers degrade to manual entry or raw coordinates.
package geo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpggio/biodata/internal/domain/observation"
)

// DefaultTimeout bounds a position request.
const DefaultTimeout = 15 * time.Second

// Options tunes a position request.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaximumAge is how old a previously acquired position may be. Zero
	// forces a fresh fix.
	MaximumAge time.Duration
}

// DefaultOptions requests a fresh high-accuracy fix within DefaultTimeout.
func DefaultOptions() Options {
	return Options{HighAccuracy: true, Timeout: DefaultTimeout}
}

// PositionErrorCode classifies a failed position request.
type PositionErrorCode int

const (
	PermissionDenied    PositionErrorCode = 1
	PositionUnavailable PositionErrorCode = 2
	Timeout             PositionErrorCode = 3
)

func (c PositionErrorCode) String() string {
	switch c {
	case PermissionDenied:
		return "permission denied"
	case PositionUnavailable:
		return "position unavailable"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("code %d", int(c))
	}
}

// PositionError is returned when no position could be acquired.
type PositionError struct {
	Code    PositionErrorCode
	Message string
}

func (e *PositionError) Error() string {
	if e.Message == "" {
		return "geolocation: " + e.Code.String()
	}
	return fmt.Sprintf("geolocation: %s: %s", e.Code, e.Message)
}

// Locator acquires the device position.
type Locator interface {
	CurrentLocation(ctx context.Context, opts Options) (observation.Coordinates, error)
}

// CurrentLocation asks l for a position, enforcing opts.Timeout. A missed
// deadline is reported as a Timeout PositionError.
func CurrentLocation(ctx context.Context, l Locator, opts Options) (observation.Coordinates, error) {
	if l == nil {
		return observation.Coordinates{}, &PositionError{Code: PositionUnavailable, Message: "no location provider"}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := l.CurrentLocation(ctx, opts)
	if err != nil {
		var perr *PositionError
		if errors.As(err, &perr) {
			return observation.Coordinates{}, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return observation.Coordinates{}, &PositionError{Code: Timeout, Message: "position not acquired in time"}
		}
		return observation.Coordinates{}, &PositionError{Code: PositionUnavailable, Message: err.Error()}
	}
	if err := observation.ValidateCoordinates(c); err != nil {
		return observation.Coordinates{}, &PositionError{Code: PositionUnavailable, Message: err.Error()}
	}
	return c, nil
}

// FixedLocator reports a configured position, for hosts without a
// positioning device.
type FixedLocator struct {
	Position *observation.Coordinates
}

func (f FixedLocator) CurrentLocation(ctx context.Context, _ Options) (observation.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return observation.Coordinates{}, err
	}
	if f.Position == nil {
		return observation.Coordinates{}, &PositionError{Code: PositionUnavailable, Message: "no fixed position configured"}
	}
	return *f.Position, nil
}
