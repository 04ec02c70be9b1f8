package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint  = "https://nominatim.openstreetmap.org/reverse"
	DefaultUserAgent = "BioDataCollector/1.0"
	UnknownLocation  = "Unknown location"

	maxResponseBytes = 1 << 20
)

// NominatimConfig configures a Nominatim reverse geocoder.
type NominatimConfig struct {
	Endpoint          string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	// Transport overrides the HTTP transport, e.g. to route through the
	// offline controller.
	Transport http.RoundTripper
}

// Nominatim resolves place names from OpenStreetMap. It never returns an
// error: any failure yields the formatted coordinates.
type Nominatim struct {
	endpoint  string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewNominatim creates a reverse geocoder.
func NewNominatim(cfg NominatimConfig, logger *slog.Logger) *Nominatim {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Nominatim{
		endpoint:  cfg.Endpoint,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:    logger,
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
}

// LocationName returns the display name for c.
func (n *Nominatim) LocationName(ctx context.Context, c observation.Coordinates) string {
	name, err := n.lookup(ctx, c)
	if err != nil {
		metrics.GeocodeRequestsTotal.WithLabelValues("error").Inc()
		n.logger.Warn("reverse geocoding failed", "lat", c.Latitude, "lon", c.Longitude, "error", err)
		return c.String()
	}
	if name == "" {
		metrics.GeocodeRequestsTotal.WithLabelValues("unknown").Inc()
		return UnknownLocation
	}
	metrics.GeocodeRequestsTotal.WithLabelValues("ok").Inc()
	return name
}

func (n *Nominatim) lookup(ctx context.Context, c observation.Coordinates) (string, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(c.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(c.Longitude, 'f', -1, 64))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocoder returned %d", resp.StatusCode)
	}
	var out reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding geocoder response: %w", err)
	}
	return out.DisplayName, nil
}
