package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/leadforge/lead-processing-pipeline/internal/lead"
	"github.com/leadforge/lead-processing-pipeline/pkg/config"
	apperrors "github.com/leadforge/lead-processing-pipeline/pkg/errors"
	"github.com/leadforge/lead-processing-pipeline/pkg/resilience"
)

// geoResponse is the ip-api.com JSON contract.
type geoResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	ISP        string  `json:"isp"`
}

// GeoClient resolves an IP address to a geolocation via an ip-api-compatible
// HTTP endpoint. A circuit breaker keeps a dead endpoint from costing the
// full lookup timeout on every lead.
type GeoClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewGeoClient creates a geolocation client from the enrichment config.
func NewGeoClient(cfg config.EnrichConfig) *GeoClient {
	return &GeoClient{
		baseURL:    cfg.GeoAPIURL,
		timeout:    cfg.LookupTimeout,
		httpClient: &http.Client{},
		breaker:    resilience.NewCircuitBreaker("geo-api", resilience.CircuitBreakerConfig{}),
	}
}

// Lookup fetches the geolocation for ip. All failures come back wrapped in
// ErrLookupFailed; the caller absorbs them.
func (g *GeoClient) Lookup(ctx context.Context, ip string) (*lead.Geolocation, error) {
	var geo *lead.Geolocation
	err := g.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, g.timeout, "geo-lookup", func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/"+ip, nil)
			if err != nil {
				return fmt.Errorf("%w: building request: %v", apperrors.ErrLookupFailed, err)
			}
			resp, err := g.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("%w: %v", apperrors.ErrLookupFailed, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%w: geo api returned %d", apperrors.ErrLookupFailed, resp.StatusCode)
			}
			var body geoResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("%w: decoding geo response: %v", apperrors.ErrLookupFailed, err)
			}
			if body.Status != "success" {
				return fmt.Errorf("%w: geo api status %q: %s", apperrors.ErrLookupFailed, body.Status, body.Message)
			}
			geo = &lead.Geolocation{
				Country:   body.Country,
				Region:    body.RegionName,
				City:      body.City,
				Latitude:  body.Lat,
				Longitude: body.Lon,
				ISP:       body.ISP,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return geo, nil
}
