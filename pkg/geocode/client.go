// Package geocode provides address validation via the Google Geocoding API.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client validates addresses and resolves ZIP codes to city/state.
type Client interface {
	// Geocode looks up a full address. An unmatched address is not an error.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)

	// LookupZip resolves a bare ZIP code to its city/state.
	LookupZip(ctx context.Context, zip string) (*Result, error)
}

// AddressInput represents an address to geocode.
type AddressInput struct {
	Street  string
	City    string
	State   string
	ZipCode string
}

// Result holds the geocoding output for an address.
type Result struct {
	StreetAddress string
	City          string
	State         string
	Zip           string
	Formatted     string
	LocationType  string // "ROOFTOP", "RANGE_INTERPOLATED", "GEOMETRIC_CENTER", "APPROXIMATE"
	PartialMatch  bool
	Matched       bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithTimeout bounds each HTTP call. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(g *geocoder) {
		if d > 0 {
			g.httpClient.Timeout = d
		}
	}
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

// WithBaseURL overrides the API endpoint (used by tests).
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = u
	}
}

type geocoder struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(apiKey string, opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiKey:     apiKey,
		baseURL:    googleGeocodeURL,
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode looks up a full address via Google.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	query := formatOneLine(addr)
	if query == "" {
		return &Result{Matched: false}, nil
	}
	return g.geocodeGoogle(ctx, query)
}

// LookupZip resolves a ZIP code to its city/state by querying the ZIP alone.
func (g *geocoder) LookupZip(ctx context.Context, zip string) (*Result, error) {
	zip = strings.TrimSpace(zip)
	if zip == "" {
		return &Result{Matched: false}, nil
	}
	return g.geocodeGoogle(ctx, zip)
}

// formatOneLine joins the non-empty address components into a single query.
func formatOneLine(addr AddressInput) string {
	var parts []string
	if s := strings.TrimSpace(addr.Street); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(addr.City); s != "" {
		parts = append(parts, s)
	}
	stateZip := strings.TrimSpace(strings.TrimSpace(addr.State) + " " + strings.TrimSpace(addr.ZipCode))
	if stateZip != "" {
		parts = append(parts, stateZip)
	}
	return strings.Join(parts, ", ")
}
