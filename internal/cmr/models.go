package cmr

import (
	"fmt"

	"github.com/robert-malhotra/hyp3-srg/internal/granule"
	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

// UMMSearchResponse represents a CMR UMM-G search response.
type UMMSearchResponse struct {
	Hits  int             `json:"hits"`
	Took  int             `json:"took"`
	Items []UMMResultItem `json:"items"`
}

// UMMResultItem wraps a UMM granule with metadata.
type UMMResultItem struct {
	Meta UMMMeta    `json:"meta"`
	UMM  UMMGranule `json:"umm"`
}

// UMMMeta contains metadata about a CMR result item.
type UMMMeta struct {
	ConceptID  string `json:"concept-id"`
	ProviderID string `json:"provider-id"`
}

// UMMGranule is the subset of a UMM-G record needed to fetch a raw scene.
type UMMGranule struct {
	GranuleUR            string                `json:"GranuleUR"`
	RelatedUrls          []RelatedURL          `json:"RelatedUrls,omitempty"`
	TemporalExtent       *TemporalExtent       `json:"TemporalExtent,omitempty"`
	SpatialExtent        *SpatialExtent        `json:"SpatialExtent,omitempty"`
	AdditionalAttributes []AdditionalAttribute `json:"AdditionalAttributes,omitempty"`
}

// RelatedURL represents a URL related to the granule.
type RelatedURL struct {
	URL  string `json:"URL"`
	Type string `json:"Type"` // e.g., "GET DATA", "GET RELATED VISUALIZATION"
}

// TemporalExtent contains temporal information.
type TemporalExtent struct {
	RangeDateTime *RangeDateTime `json:"RangeDateTime,omitempty"`
}

// RangeDateTime represents a time range.
type RangeDateTime struct {
	BeginningDateTime string `json:"BeginningDateTime"`
	EndingDateTime    string `json:"EndingDateTime"`
}

// SpatialExtent contains spatial information.
type SpatialExtent struct {
	HorizontalSpatialDomain *HorizontalSpatialDomain `json:"HorizontalSpatialDomain,omitempty"`
}

// HorizontalSpatialDomain contains horizontal spatial domain information.
type HorizontalSpatialDomain struct {
	Geometry *Geometry `json:"Geometry,omitempty"`
}

// Geometry contains geometry information.
type Geometry struct {
	GPolygons          []GPolygon          `json:"GPolygons,omitempty"`
	BoundingRectangles []BoundingRectangle `json:"BoundingRectangles,omitempty"`
}

// GPolygon represents a polygon geometry.
type GPolygon struct {
	Boundary Boundary `json:"Boundary"`
}

// Boundary contains boundary points.
type Boundary struct {
	Points []Point `json:"Points"`
}

// Point represents a geographic point.
type Point struct {
	Longitude float64 `json:"Longitude"`
	Latitude  float64 `json:"Latitude"`
}

// BoundingRectangle represents a bounding box.
type BoundingRectangle struct {
	WestBoundingCoordinate  float64 `json:"WestBoundingCoordinate"`
	NorthBoundingCoordinate float64 `json:"NorthBoundingCoordinate"`
	EastBoundingCoordinate  float64 `json:"EastBoundingCoordinate"`
	SouthBoundingCoordinate float64 `json:"SouthBoundingCoordinate"`
}

// AdditionalAttribute holds SAR properties such as POLARIZATION and PATH_NUMBER.
type AdditionalAttribute struct {
	Name   string   `json:"Name"`
	Values []string `json:"Values"`
}

// GetAdditionalAttribute retrieves a specific additional attribute by name.
func (g *UMMGranule) GetAdditionalAttribute(name string) []string {
	for _, attr := range g.AdditionalAttributes {
		if attr.Name == name {
			return attr.Values
		}
	}
	return nil
}

// SceneName returns the scene name without the -RAW file id suffix.
func (g *UMMGranule) SceneName() string {
	return granule.SceneName(g.GranuleUR)
}

// GetDataURL returns the primary data download URL.
func (g *UMMGranule) GetDataURL() string {
	for _, u := range g.RelatedUrls {
		if u.Type == "GET DATA" {
			return u.URL
		}
	}
	return ""
}

// Footprint converts the first polygon, or failing that the first bounding
// rectangle, to a GeoJSON polygon.
func (g *UMMGranule) Footprint() (*geojson.Geometry, error) {
	if g.SpatialExtent == nil || g.SpatialExtent.HorizontalSpatialDomain == nil ||
		g.SpatialExtent.HorizontalSpatialDomain.Geometry == nil {
		return nil, fmt.Errorf("granule %s has no spatial extent", g.GranuleUR)
	}
	geom := g.SpatialExtent.HorizontalSpatialDomain.Geometry

	if len(geom.GPolygons) > 0 {
		points := geom.GPolygons[0].Boundary.Points
		if len(points) < 3 {
			return nil, fmt.Errorf("granule %s polygon has %d points", g.GranuleUR, len(points))
		}
		ring := make([][]float64, 0, len(points)+1)
		for _, pt := range points {
			ring = append(ring, []float64{pt.Longitude, pt.Latitude})
		}
		first, last := ring[0], ring[len(ring)-1]
		if first[0] != last[0] || first[1] != last[1] {
			ring = append(ring, first)
		}
		return geojson.NewPolygon([][][]float64{ring})
	}

	if len(geom.BoundingRectangles) > 0 {
		rect := geom.BoundingRectangles[0]
		return geojson.NewPolygonFromBBox(geojson.BBox{
			MinLon: rect.WestBoundingCoordinate,
			MinLat: rect.SouthBoundingCoordinate,
			MaxLon: rect.EastBoundingCoordinate,
			MaxLat: rect.NorthBoundingCoordinate,
		})
	}

	return nil, fmt.Errorf("granule %s has no polygon or bounding rectangle", g.GranuleUR)
}
