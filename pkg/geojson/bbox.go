package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidBoundingBox is returned when a box is not strictly ordered on both axes.
var ErrInvalidBoundingBox = errors.New("invalid bounding box")

// BBox is an axis-aligned extent in EPSG:4326 degrees. It encodes to JSON
// as [min_lon, min_lat, max_lon, max_lat].
type BBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// MarshalJSON implements json.Marshaler.
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Slice())
}

// UnmarshalJSON implements json.Unmarshaler. null leaves the zero box.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("bounds must be an array of numbers: %w", err)
	}
	if values == nil {
		*b = BBox{}
		return nil
	}
	parsed, err := BBoxFromSlice(values)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// BBoxFromSlice builds a box from [min_lon, min_lat, max_lon, max_lat].
func BBoxFromSlice(values []float64) (BBox, error) {
	if len(values) != 4 {
		return BBox{}, fmt.Errorf("bounds must have exactly 4 values [min_lon, min_lat, max_lon, max_lat], got %d", len(values))
	}
	return BBox{MinLon: values[0], MinLat: values[1], MaxLon: values[2], MaxLat: values[3]}, nil
}

// ParseBBox parses four whitespace- or comma-separated numbers, as found
// in a bounds file or on the command line.
func ParseBBox(s string) (BBox, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return BBox{}, fmt.Errorf("invalid bound %q: %w", f, err)
		}
		values = append(values, v)
	}
	return BBoxFromSlice(values)
}

// Slice returns the box as [min_lon, min_lat, max_lon, max_lat].
func (b BBox) Slice() []float64 {
	return []float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
}

// IsZero reports whether every bound is zero, the "not supplied" sentinel.
func (b BBox) IsZero() bool {
	return b == BBox{}
}

// Validate checks min < max on both axes. NaN bounds fail.
func (b BBox) Validate() error {
	if !(b.MinLon < b.MaxLon) || !(b.MinLat < b.MaxLat) {
		return fmt.Errorf("%w: %v, should be [min_lon, min_lat, max_lon, max_lat] with min < max on both axes",
			ErrInvalidBoundingBox, b.Slice())
	}
	return nil
}

// Union returns the smallest box covering both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		MinLon: math.Min(b.MinLon, o.MinLon),
		MinLat: math.Min(b.MinLat, o.MinLat),
		MaxLon: math.Max(b.MaxLon, o.MaxLon),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
	}
}

// Buffer grows the box by margin degrees on every side. This matches the
// envelope of a round-joined polygon buffer of the same distance.
func (b BBox) Buffer(margin float64) BBox {
	return BBox{
		MinLon: b.MinLon - margin,
		MinLat: b.MinLat - margin,
		MaxLon: b.MaxLon + margin,
		MaxLat: b.MaxLat + margin,
	}
}

// String renders the box as the space-separated bounds file content.
func (b BBox) String() string {
	parts := make([]string, 0, 4)
	for _, v := range b.Slice() {
		parts = append(parts, formatFloat(v))
	}
	return strings.Join(parts, " ")
}

// UnionBounds returns the extent covering every footprint.
func UnionBounds(footprints []*Geometry) (BBox, error) {
	if len(footprints) == 0 {
		return BBox{}, fmt.Errorf("no footprints to union")
	}

	var union BBox
	for i, g := range footprints {
		b, err := ComputeBBox(g)
		if err != nil {
			return BBox{}, fmt.Errorf("footprint %d: %w", i, err)
		}
		if i == 0 {
			union = b
			continue
		}
		union = union.Union(b)
	}
	return union, nil
}
