package geojson

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func polygon(t *testing.T, ring [][]float64) *Geometry {
	t.Helper()
	coordsJSON, err := json.Marshal([][][]float64{ring})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &Geometry{Type: "Polygon", Coordinates: coordsJSON}
}

func TestPolygon_WrongType(t *testing.T) {
	g := &Geometry{Type: "Point", Coordinates: json.RawMessage(`[1, 2]`)}
	if _, err := g.Polygon(); err == nil {
		t.Error("Polygon() should return error for non-Polygon geometry")
	}
}

func TestComputeBBox_Polygon(t *testing.T) {
	g := polygon(t, [][]float64{{-122, 37}, {-121, 37}, {-121, 38.5}, {-122, 38.5}, {-122, 37}})

	got, err := ComputeBBox(g)
	if err != nil {
		t.Fatalf("ComputeBBox() error: %v", err)
	}

	want := BBox{MinLon: -122, MinLat: 37, MaxLon: -121, MaxLat: 38.5}
	if got != want {
		t.Errorf("ComputeBBox() = %+v, want %+v", got, want)
	}
}

func TestComputeBBox_MultiPolygon(t *testing.T) {
	g := &Geometry{
		Type:        "MultiPolygon",
		Coordinates: json.RawMessage(`[[[[0,0],[1,0],[1,1],[0,1],[0,0]]],[[[5,-3],[6,-3],[6,2],[5,2],[5,-3]]]]`),
	}

	got, err := g.Bounds()
	if err != nil {
		t.Fatalf("Bounds() error: %v", err)
	}

	want := BBox{MinLon: 0, MinLat: -3, MaxLon: 6, MaxLat: 2}
	if got != want {
		t.Errorf("Bounds() = %+v, want %+v", got, want)
	}
}

func TestComputeBBox_Errors(t *testing.T) {
	if _, err := ComputeBBox(nil); err == nil {
		t.Error("expected error for nil geometry")
	}
	if _, err := ComputeBBox(&Geometry{Type: "Point", Coordinates: json.RawMessage(`[0,0]`)}); err == nil {
		t.Error("expected error for unsupported geometry type")
	}
	if _, err := ComputeBBox(&Geometry{Type: "Polygon", Coordinates: json.RawMessage(`[[]]`)}); err == nil {
		t.Error("expected error for empty polygon")
	}
}

func TestNewPolygonFromBBox_RoundTrip(t *testing.T) {
	b := BBox{MinLon: -100, MinLat: 45, MaxLon: -90, MaxLat: 50}

	g, err := NewPolygonFromBBox(b)
	if err != nil {
		t.Fatalf("NewPolygonFromBBox() error: %v", err)
	}

	got, err := g.Bounds()
	if err != nil {
		t.Fatalf("Bounds() error: %v", err)
	}
	if got != b {
		t.Errorf("Bounds() = %+v, want %+v", got, b)
	}
}

func TestToWKT(t *testing.T) {
	g, err := NewPolygonFromBBox(BBox{MinLon: 14.5, MinLat: 37.4, MaxLon: 15.5, MaxLat: 38.1})
	if err != nil {
		t.Fatalf("NewPolygonFromBBox() error: %v", err)
	}

	wkt, err := ToWKT(g)
	if err != nil {
		t.Fatalf("ToWKT() error: %v", err)
	}

	want := "POLYGON((14.5 37.4,15.5 37.4,15.5 38.1,14.5 38.1,14.5 37.4))"
	if wkt != want {
		t.Errorf("ToWKT() = %q, want %q", wkt, want)
	}
}

func TestToWKT_MultiPolygon(t *testing.T) {
	g := &Geometry{
		Type:        "MultiPolygon",
		Coordinates: json.RawMessage(`[[[[0,0],[1,0],[1,1],[0,0]]],[[[2,2],[3,2],[3,3],[2,2]]]]`),
	}

	wkt, err := ToWKT(g)
	if err != nil {
		t.Fatalf("ToWKT() error: %v", err)
	}
	if !strings.HasPrefix(wkt, "MULTIPOLYGON(((0 0,") {
		t.Errorf("unexpected WKT: %s", wkt)
	}
}

func TestBBox_Validate(t *testing.T) {
	valid := BBox{MinLon: 0, MinLat: 1, MaxLon: 2, MaxLat: 3}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}

	bad := []BBox{
		{MinLon: 0, MinLat: 1, MaxLon: -1, MaxLat: 1},
		{MinLon: 1, MinLat: 1, MaxLon: -1, MaxLat: 2},
		{MinLon: 1, MinLat: 0, MaxLon: 2, MaxLat: -1},
		{MinLon: 1, MinLat: 0, MaxLon: 1, MaxLat: 2},
		{MinLon: math.NaN(), MinLat: 0, MaxLon: 1, MaxLat: 1},
		{MinLon: 0, MinLat: math.NaN(), MaxLon: 1, MaxLat: 1},
		{MinLon: 0, MinLat: 0, MaxLon: math.NaN(), MaxLat: 1},
		{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: math.NaN()},
	}
	for _, b := range bad {
		err := b.Validate()
		if !errors.Is(err, ErrInvalidBoundingBox) {
			t.Errorf("Validate(%v) = %v, want ErrInvalidBoundingBox", b.Slice(), err)
		}
	}
}

func TestUnionBounds_Buffered(t *testing.T) {
	a := polygon(t, [][]float64{{10, 40}, {11, 40}, {11, 41}, {10, 41}, {10, 40}})
	b := polygon(t, [][]float64{{10.5, 40.5}, {12, 40.5}, {12, 42}, {10.5, 42}, {10.5, 40.5}})

	union, err := UnionBounds([]*Geometry{a, b})
	if err != nil {
		t.Fatalf("UnionBounds() error: %v", err)
	}

	want := BBox{MinLon: 10, MinLat: 40, MaxLon: 12, MaxLat: 42}
	if union != want {
		t.Errorf("UnionBounds() = %+v, want %+v", union, want)
	}

	buffered := union.Buffer(0.5)
	wantBuffered := BBox{MinLon: 9.5, MinLat: 39.5, MaxLon: 12.5, MaxLat: 42.5}
	if buffered != wantBuffered {
		t.Errorf("Buffer() = %+v, want %+v", buffered, wantBuffered)
	}

	if _, err := UnionBounds(nil); err == nil {
		t.Error("expected error for empty footprint list")
	}
}

func TestParseBBox(t *testing.T) {
	got, err := ParseBBox("-100 45,-90  50\n")
	if err != nil {
		t.Fatalf("ParseBBox() error: %v", err)
	}
	want := BBox{MinLon: -100, MinLat: 45, MaxLon: -90, MaxLat: 50}
	if got != want {
		t.Errorf("ParseBBox() = %+v, want %+v", got, want)
	}
	if got.String() != "-100 45 -90 50" {
		t.Errorf("String() = %q", got.String())
	}

	if _, err := ParseBBox("1 2 3"); err == nil {
		t.Error("expected error for three values")
	}
	if _, err := ParseBBox("1 2 x 4"); err == nil {
		t.Error("expected error for non-numeric value")
	}
	if !(BBox{}).IsZero() {
		t.Error("zero box should report IsZero")
	}
}

func TestParseBBox_NaN(t *testing.T) {
	b, err := ParseBBox("NaN 0 1 1")
	if err != nil {
		t.Fatalf("ParseBBox() error: %v", err)
	}
	if err := b.Validate(); !errors.Is(err, ErrInvalidBoundingBox) {
		t.Errorf("Validate() = %v, want ErrInvalidBoundingBox", err)
	}
}

func TestBBox_JSON(t *testing.T) {
	type params struct {
		Bounds BBox `json:"bounds"`
	}

	data, err := json.Marshal(params{Bounds: BBox{MinLon: -100, MinLat: 45, MaxLon: -90.5, MaxLat: 50}})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(data) != `{"bounds":[-100,45,-90.5,50]}` {
		t.Errorf("Marshal() = %s", data)
	}

	var got params
	if err := json.Unmarshal([]byte(`{"bounds":[1,2,3,4]}`), &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if want := (BBox{MinLon: 1, MinLat: 2, MaxLon: 3, MaxLat: 4}); got.Bounds != want {
		t.Errorf("Unmarshal() = %+v, want %+v", got.Bounds, want)
	}

	got = params{}
	if err := json.Unmarshal([]byte(`{"bounds":null}`), &got); err != nil {
		t.Fatalf("Unmarshal(null) error: %v", err)
	}
	if !got.Bounds.IsZero() {
		t.Errorf("Unmarshal(null) = %+v, want zero box", got.Bounds)
	}

	for _, bad := range []string{`{"bounds":[1,2,3]}`, `{"bounds":{"min_lon":1}}`, `{"bounds":"1 2 3 4"}`} {
		if err := json.Unmarshal([]byte(bad), &got); err == nil {
			t.Errorf("Unmarshal(%s) expected error", bad)
		}
	}
}
