// Package asf talks to the ASF Search API and downloads products from the
// ASF distribution endpoints.
package asf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/robert-malhotra/hyp3-srg/internal/granule"
	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

// DefaultBaseURL is the production ASF Search API.
const DefaultBaseURL = "https://api.daac.asf.alaska.edu"

// ErrGranuleNotFound is returned when the catalog has no matching product.
var ErrGranuleNotFound = errors.New("granule not found")

// Client handles communication with the ASF Search API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new ASF API client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// Search performs a search against the ASF API
func (c *Client) Search(ctx context.Context, params SearchParams) (*ASFGeoJSONResponse, error) {
	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build search URL: %w", err)
	}

	c.logger.DebugContext(ctx, "executing ASF search",
		slog.String("url", searchURL),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "ASF API request failed",
			slog.String("error", err.Error()),
			slog.String("url", searchURL),
		)
		return nil, fmt.Errorf("ASF API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "ASF API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("ASF API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result ASFGeoJSONResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode ASF response",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to decode ASF response: %w", err)
	}

	c.logger.DebugContext(ctx, "ASF search completed",
		slog.Int("feature_count", len(result.Features)),
	)

	return &result, nil
}

// GetProduct looks up a raw product by scene name or file id. The name is
// normalised to its -RAW file id and the catalog is queried once.
func (c *Client) GetProduct(ctx context.Context, name string) (*ASFFeature, error) {
	fileID := granule.RawFileID(name)

	c.logger.DebugContext(ctx, "fetching product",
		slog.String("file_id", fileID),
	)

	result, err := c.Search(ctx, SearchParams{ProductList: []string{fileID}})
	if err != nil {
		return nil, fmt.Errorf("failed to search for product: %w", err)
	}

	for i := range result.Features {
		if result.Features[i].Properties.FileID == fileID {
			return &result.Features[i], nil
		}
	}
	if len(result.Features) > 0 {
		return &result.Features[0], nil
	}

	c.logger.WarnContext(ctx, "product not found",
		slog.String("file_id", fileID),
	)
	return nil, fmt.Errorf("%w: %s", ErrGranuleNotFound, fileID)
}

// Lookup returns the download URL and footprint for a raw product.
func (c *Client) Lookup(ctx context.Context, name string) (string, *geojson.Geometry, error) {
	feature, err := c.GetProduct(ctx, name)
	if err != nil {
		return "", nil, err
	}
	if feature.Geometry == nil {
		return "", nil, fmt.Errorf("product %s has no geometry", feature.Properties.FileID)
	}
	if feature.Properties.URL == "" {
		return "", nil, fmt.Errorf("product %s has no download URL", feature.Properties.FileID)
	}
	return feature.Properties.URL, feature.Geometry, nil
}

// GeoQuery selects raw scenes over an area.
type GeoQuery struct {
	RelativeOrbit int
	Intersects    *geojson.Geometry
	Start         time.Time
	End           time.Time
	Polarizations []string
}

// GeoSearch returns the names of Sentinel-1 IW raw scenes matching q.
func (c *Client) GeoSearch(ctx context.Context, q GeoQuery) ([]string, error) {
	params := SearchParams{
		Platform:        []string{"SENTINEL-1"},
		ProcessingLevel: []string{"RAW"},
		BeamMode:        []string{"IW"},
		Polarization:    q.Polarizations,
	}
	if q.RelativeOrbit > 0 {
		params.RelativeOrbit = []int{q.RelativeOrbit}
	}
	if q.Intersects != nil {
		wkt, err := geojson.ToWKT(q.Intersects)
		if err != nil {
			return nil, fmt.Errorf("invalid search geometry: %w", err)
		}
		params.IntersectsWith = wkt
	}
	if !q.Start.IsZero() {
		params.Start = &q.Start
	}
	if !q.End.IsZero() {
		params.End = &q.End
	}

	result, err := c.Search(ctx, params)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(result.Features))
	for _, f := range result.Features {
		names = append(names, f.Properties.SceneName)
	}
	return names, nil
}

// buildSearchURL constructs the full search URL with query parameters
func (c *Client) buildSearchURL(params SearchParams) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	base.Path = "/services/search/param"
	base.RawQuery = params.ToQueryString()

	return base.String(), nil
}
