// Package cmr resolves Sentinel-1 raw scenes through NASA's Common Metadata
// Repository (CMR), an alternative catalog to the ASF Search API.
package cmr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robert-malhotra/hyp3-srg/internal/asf"
	"github.com/robert-malhotra/hyp3-srg/internal/granule"
	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

const (
	// DefaultBaseURL is the default CMR API base URL.
	DefaultBaseURL = "https://cmr.earthdata.nasa.gov/search"

	// DefaultProvider is the default CMR provider for ASF data.
	DefaultProvider = "ASF"

	// DefaultPageSize is the default number of results per page.
	DefaultPageSize = 250

	// CMRSearchAfterHeader is the header used for cursor-based pagination.
	CMRSearchAfterHeader = "CMR-Search-After"
)

// RawCollections are the CMR short names of the Sentinel-1 Level-0 collections.
var RawCollections = []string{"SENTINEL-1A_RAW", "SENTINEL-1B_RAW"}

// Client handles communication with the CMR API.
type Client struct {
	baseURL    string
	provider   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new CMR API client.
func NewClient(baseURL, provider string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if provider == "" {
		provider = DefaultProvider
	}

	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		provider: provider,
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

// WithLogger sets a custom logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// SearchResult contains one page of a CMR search.
type SearchResult struct {
	Granules    []UMMGranule
	Hits        int
	SearchAfter string // Cursor for next page
}

// Search performs a single-page granule search against CMR.
func (c *Client) Search(ctx context.Context, params *SearchParams) (*SearchResult, error) {
	// UMM-G JSON carries the additional attributes and related URLs
	searchURL := c.baseURL + "/granules.umm_json"

	// Build query parameters
	queryParams := params.ToURLValues()
	queryParams.Set("provider", c.provider)

	c.logger.DebugContext(ctx, "executing CMR search",
		slog.String("url", searchURL),
		slog.String("params", queryParams.Encode()),
	)

	// Create the HTTP request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL+"?"+queryParams.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Accept", "application/vnd.nasa.cmr.umm_results+json")
	req.Header.Set("User-Agent", "hyp3-srg/1.0")
	// Continue from the previous page, if any
	if params.SearchAfter != "" {
		req.Header.Set(CMRSearchAfterHeader, params.SearchAfter)
	}

	// Execute the request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "CMR API request failed",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("CMR API request failed: %w", err)
	}
	defer resp.Body.Close()

	// Anything but 200 is an error; keep the body for the message
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "CMR API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("CMR API returned status %d: %s", resp.StatusCode, string(body))
	}

	// Parse the response
	var cmrResp UMMSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&cmrResp); err != nil {
		return nil, fmt.Errorf("failed to decode CMR response: %w", err)
	}

	// Unwrap the UMM records from their meta envelopes
	granules := make([]UMMGranule, 0, len(cmrResp.Items))
	for _, item := range cmrResp.Items {
		granules = append(granules, item.UMM)
	}

	// An empty cursor means this was the last page
	searchAfter := resp.Header.Get(CMRSearchAfterHeader)

	c.logger.DebugContext(ctx, "CMR search completed",
		slog.Int("hits", cmrResp.Hits),
		slog.Int("returned", len(granules)),
		slog.Bool("has_next", searchAfter != ""),
	)

	return &SearchResult{
		Granules:    granules,
		Hits:        cmrResp.Hits,
		SearchAfter: searchAfter,
	}, nil
}

// SearchAll follows CMR-Search-After until every hit has been read.
func (c *Client) SearchAll(ctx context.Context, params SearchParams) ([]UMMGranule, error) {
	var all []UMMGranule
	for {
		page, err := c.Search(ctx, &params)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Granules...)
		if page.SearchAfter == "" || len(page.Granules) == 0 || len(all) >= page.Hits {
			return all, nil
		}
		params.SearchAfter = page.SearchAfter
	}
}

// GetGranule retrieves a single raw granule by scene name or file id.
func (c *Client) GetGranule(ctx context.Context, name string) (*UMMGranule, error) {
	granuleUR := granule.RawFileID(name)
	c.logger.DebugContext(ctx, "fetching granule",
		slog.String("granule_ur", granuleUR),
	)

	// Search by granule_ur
	result, err := c.Search(ctx, &SearchParams{
		GranuleUR: []string{granuleUR},
		PageSize:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search for granule: %w", err)
	}

	if len(result.Granules) == 0 {
		return nil, fmt.Errorf("%w: %s", asf.ErrGranuleNotFound, granuleUR)
	}

	return &result.Granules[0], nil
}

// Lookup returns the download URL and footprint of a raw scene.
func (c *Client) Lookup(ctx context.Context, name string) (string, *geojson.Geometry, error) {
	g, err := c.GetGranule(ctx, name)
	if err != nil {
		return "", nil, err
	}
	dataURL := g.GetDataURL()
	if dataURL == "" {
		return "", nil, fmt.Errorf("granule %s has no download URL", g.GranuleUR)
	}
	footprint, err := g.Footprint()
	if err != nil {
		return "", nil, err
	}
	return dataURL, footprint, nil
}

// GeoSearch returns the names of Sentinel-1 IW raw scenes matching q.
func (c *Client) GeoSearch(ctx context.Context, q asf.GeoQuery) ([]string, error) {
	params := SearchParams{
		ShortName: RawCollections,
		BeamMode:  []string{"IW"},
	}
	if q.RelativeOrbit > 0 {
		params.RelativeOrbit = []int{q.RelativeOrbit}
	}
	if q.Intersects != nil {
		b, err := q.Intersects.Bounds()
		if err != nil {
			return nil, fmt.Errorf("invalid search geometry: %w", err)
		}
		params.BoundingBox = strings.Join([]string{
			strconv.FormatFloat(b.MinLon, 'f', -1, 64),
			strconv.FormatFloat(b.MinLat, 'f', -1, 64),
			strconv.FormatFloat(b.MaxLon, 'f', -1, 64),
			strconv.FormatFloat(b.MaxLat, 'f', -1, 64),
		}, ",")
	}
	if !q.Start.IsZero() || !q.End.IsZero() {
		params.Temporal = temporal(q.Start, q.End)
	}

	granules, err := c.SearchAll(ctx, params)
	if err != nil {
		return nil, err
	}

	// Attribute filters are ANDed by CMR, so alternative polarizations are
	// matched here instead.
	names := make([]string, 0, len(granules))
	for i := range granules {
		if len(q.Polarizations) > 0 && !hasAny(granules[i].GetAdditionalAttribute("POLARIZATION"), q.Polarizations) {
			continue
		}
		names = append(names, granules[i].SceneName())
	}
	return names, nil
}

func hasAny(values, want []string) bool {
	for _, v := range values {
		for _, w := range want {
			if v == w {
				return true
			}
		}
	}
	return false
}

// temporal renders a CMR temporal range; an open end is left empty.
func temporal(start, end time.Time) string {
	var s, e string
	if !start.IsZero() {
		s = start.UTC().Format(time.RFC3339)
	}
	if !end.IsZero() {
		e = end.UTC().Format(time.RFC3339)
	}
	return s + "," + e
}

// SearchParams represents parameters for CMR granule searches.
type SearchParams struct {
	ShortName []string // Collection short names
	GranuleUR []string // Granule unique references (file ids)

	BoundingBox string // west,south,east,north
	Temporal    string // start,end in ISO 8601 format

	// SAR-specific, sent as additional attributes
	Polarization  []string
	BeamMode      []string
	RelativeOrbit []int

	PageSize    int
	SearchAfter string // CMR-Search-After cursor
	SortKey     string // CMR sort key, e.g. "start_date"
}

// ToURLValues converts SearchParams to URL query parameters.
func (p *SearchParams) ToURLValues() url.Values {
	values := url.Values{}

	// Collection identification
	for _, sn := range p.ShortName {
		values.Add("short_name", sn)
	}
	for _, gur := range p.GranuleUR {
		values.Add("granule_ur", gur)
	}

	// Spatial and temporal filters
	if p.BoundingBox != "" {
		values.Set("bounding_box", p.BoundingBox)
	}
	if p.Temporal != "" {
		values.Set("temporal", p.Temporal)
	}

	// CMR filters on additional attributes with attribute[]=type,NAME,value
	for _, pol := range p.Polarization {
		values.Add("attribute[]", fmt.Sprintf("string,POLARIZATION,%s", pol))
	}
	for _, bm := range p.BeamMode {
		values.Add("attribute[]", fmt.Sprintf("string,BEAM_MODE,%s", bm))
	}
	for _, ro := range p.RelativeOrbit {
		values.Add("attribute[]", fmt.Sprintf("int,PATH_NUMBER,%d", ro))
	}

	// Pagination
	if p.PageSize > 0 {
		values.Set("page_size", strconv.Itoa(p.PageSize))
	} else {
		values.Set("page_size", strconv.Itoa(DefaultPageSize))
	}

	// Sorting, oldest acquisition first by default
	if p.SortKey != "" {
		values.Set("sort_key", p.SortKey)
	} else {
		values.Set("sort_key", "start_date")
	}

	return values
}
