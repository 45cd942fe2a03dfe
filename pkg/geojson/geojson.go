// Package geojson provides the GeoJSON footprint geometry used for scene
// extents, along with bounding-box arithmetic and WKT rendering.
package geojson

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Geometry represents a GeoJSON geometry object.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Polygon returns the coordinates as a Polygon [][][lon, lat].
// Returns error if geometry is not a Polygon.
func (g *Geometry) Polygon() ([][][]float64, error) {
	if g.Type != "Polygon" {
		return nil, fmt.Errorf("geometry is not a Polygon, got %s", g.Type)
	}
	var coords [][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Polygon coordinates: %w", err)
	}
	return coords, nil
}

// MultiPolygon returns the coordinates as a MultiPolygon [][][][lon, lat].
// Returns error if geometry is not a MultiPolygon.
func (g *Geometry) MultiPolygon() ([][][][]float64, error) {
	if g.Type != "MultiPolygon" {
		return nil, fmt.Errorf("geometry is not a MultiPolygon, got %s", g.Type)
	}
	var coords [][][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MultiPolygon coordinates: %w", err)
	}
	return coords, nil
}

// Bounds computes the axis-aligned extent of the geometry.
func (g *Geometry) Bounds() (BBox, error) {
	return ComputeBBox(g)
}

// ComputeBBox computes the bounding box of a Polygon or MultiPolygon footprint.
func ComputeBBox(g *Geometry) (BBox, error) {
	if g == nil {
		return BBox{}, fmt.Errorf("geometry is nil")
	}

	var rings [][][]float64
	switch g.Type {
	case "Polygon":
		coords, err := g.Polygon()
		if err != nil {
			return BBox{}, err
		}
		rings = coords

	case "MultiPolygon":
		coords, err := g.MultiPolygon()
		if err != nil {
			return BBox{}, err
		}
		for _, polygon := range coords {
			rings = append(rings, polygon...)
		}

	default:
		return BBox{}, fmt.Errorf("unsupported geometry type: %s", g.Type)
	}

	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)
	for _, ring := range rings {
		for _, point := range ring {
			if len(point) < 2 {
				continue
			}
			minLon = math.Min(minLon, point[0])
			maxLon = math.Max(maxLon, point[0])
			minLat = math.Min(minLat, point[1])
			maxLat = math.Max(maxLat, point[1])
		}
	}

	if math.IsInf(minLon, 0) || math.IsInf(minLat, 0) {
		return BBox{}, fmt.Errorf("failed to compute bounding box: no valid coordinates found")
	}

	return BBox{MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat}, nil
}

// NewPolygonFromBBox creates a closed rectangular polygon covering the box.
func NewPolygonFromBBox(b BBox) (*Geometry, error) {
	return NewPolygon([][][]float64{
		{
			{b.MinLon, b.MinLat},
			{b.MaxLon, b.MinLat},
			{b.MaxLon, b.MaxLat},
			{b.MinLon, b.MaxLat},
			{b.MinLon, b.MinLat},
		},
	})
}

// NewPolygon creates a Polygon geometry from rings of [lon, lat] positions.
func NewPolygon(coords [][][]float64) (*Geometry, error) {
	coordsJSON, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal polygon coordinates: %w", err)
	}

	return &Geometry{
		Type:        "Polygon",
		Coordinates: coordsJSON,
	}, nil
}

// ToWKT converts a Polygon or MultiPolygon geometry to WKT, the form the
// catalog's intersectsWith parameter expects.
func ToWKT(g *Geometry) (string, error) {
	if g == nil {
		return "", fmt.Errorf("geometry is nil")
	}

	switch g.Type {
	case "Polygon":
		coords, err := g.Polygon()
		if err != nil {
			return "", err
		}
		body, err := ringsToWKT(coords)
		if err != nil {
			return "", err
		}
		return "POLYGON" + body, nil

	case "MultiPolygon":
		coords, err := g.MultiPolygon()
		if err != nil {
			return "", err
		}
		polygons := make([]string, 0, len(coords))
		for _, polygon := range coords {
			body, err := ringsToWKT(polygon)
			if err != nil {
				return "", err
			}
			polygons = append(polygons, body)
		}
		return "MULTIPOLYGON(" + strings.Join(polygons, ",") + ")", nil

	default:
		return "", fmt.Errorf("unsupported geometry type for WKT conversion: %s", g.Type)
	}
}

func ringsToWKT(coords [][][]float64) (string, error) {
	rings := make([]string, 0, len(coords))
	for _, ring := range coords {
		points := make([]string, len(ring))
		for i, point := range ring {
			if len(point) < 2 {
				return "", fmt.Errorf("invalid point in polygon ring: expected at least 2 coordinates")
			}
			points[i] = formatFloat(point[0]) + " " + formatFloat(point[1])
		}
		rings = append(rings, "("+strings.Join(points, ",")+")")
	}
	return "(" + strings.Join(rings, ",") + ")", nil
}

// formatFloat formats a float64 for WKT output
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
