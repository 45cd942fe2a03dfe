package cmr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robert-malhotra/hyp3-srg/internal/asf"
	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

const testScene = "S1A_IW_RAW__0SDV_20231229T134339_20231229T134411_051870_064437_4F42"

func rawGranule(name, polarization string) UMMGranule {
	return UMMGranule{
		GranuleUR: name + "-RAW",
		RelatedUrls: []RelatedURL{
			{URL: "https://datapool.asf.alaska.edu/RAW/SA/" + name + ".zip", Type: "GET DATA"},
			{URL: "https://datapool.asf.alaska.edu/BROWSE/" + name + ".jpg", Type: "GET RELATED VISUALIZATION"},
		},
		SpatialExtent: &SpatialExtent{HorizontalSpatialDomain: &HorizontalSpatialDomain{
			Geometry: &Geometry{GPolygons: []GPolygon{{Boundary: Boundary{Points: []Point{
				{Longitude: 14.5, Latitude: 37.4},
				{Longitude: 15.5, Latitude: 37.4},
				{Longitude: 15.5, Latitude: 38.1},
				{Longitude: 14.5, Latitude: 38.1},
			}}}}},
		}},
		AdditionalAttributes: []AdditionalAttribute{{Name: "POLARIZATION", Values: []string{polarization}}},
	}
}

func serveGranules(t *testing.T, check func(r *http.Request), granules ...UMMGranule) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/granules.umm_json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if check != nil {
			check(r)
		}
		resp := UMMSearchResponse{Hits: len(granules)}
		for _, g := range granules {
			resp.Items = append(resp.Items, UMMResultItem{UMM: g})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestSearchParams_ToURLValues(t *testing.T) {
	tests := []struct {
		name     string
		params   *SearchParams
		contains []string
	}{
		{
			name: "basic params",
			params: &SearchParams{
				ShortName: []string{"SENTINEL-1A_RAW"},
				PageSize:  100,
			},
			contains: []string{
				"short_name=SENTINEL-1A_RAW",
				"page_size=100",
				"sort_key=start_date",
			},
		},
		{
			name: "spatial params",
			params: &SearchParams{
				BoundingBox: "-180,-90,180,90",
			},
			contains: []string{
				"bounding_box=-180%2C-90%2C180%2C90",
				"page_size=250",
			},
		},
		{
			name: "attribute filters",
			params: &SearchParams{
				Polarization:  []string{"VV"},
				BeamMode:      []string{"IW"},
				RelativeOrbit: []int{124},
			},
			contains: []string{
				"attribute%5B%5D=string%2CPOLARIZATION%2CVV",
				"attribute%5B%5D=string%2CBEAM_MODE%2CIW",
				"attribute%5B%5D=int%2CPATH_NUMBER%2C124",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.params.ToURLValues().Encode()
			for _, want := range tt.contains {
				if !strings.Contains(encoded, want) {
					t.Errorf("ToURLValues() = %s, want to contain %s", encoded, want)
				}
			}
		})
	}
}

func TestClient_Lookup(t *testing.T) {
	server := serveGranules(t, func(r *http.Request) {
		if got := r.URL.Query().Get("granule_ur"); got != testScene+"-RAW" {
			t.Errorf("expected granule_ur %s-RAW, got %s", testScene, got)
		}
		if got := r.URL.Query().Get("provider"); got != "ASF" {
			t.Errorf("expected provider ASF, got %s", got)
		}
	}, rawGranule(testScene, "VV+VH"))
	defer server.Close()

	client := NewClient(server.URL, "", 30*time.Second)

	url, footprint, err := client.Lookup(context.Background(), testScene)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if url != "https://datapool.asf.alaska.edu/RAW/SA/"+testScene+".zip" {
		t.Errorf("Lookup() url = %s", url)
	}

	b, err := footprint.Bounds()
	if err != nil {
		t.Fatalf("Bounds() error = %v", err)
	}
	want := geojson.BBox{MinLon: 14.5, MinLat: 37.4, MaxLon: 15.5, MaxLat: 38.1}
	if b != want {
		t.Errorf("footprint bounds = %v, want %v", b, want)
	}

	rings, err := footprint.Polygon()
	if err != nil {
		t.Fatalf("Polygon() error = %v", err)
	}
	if len(rings[0]) != 5 {
		t.Errorf("expected the ring to be closed with 5 points, got %d", len(rings[0]))
	}
}

func TestClient_Lookup_NotFound(t *testing.T) {
	server := serveGranules(t, nil)
	defer server.Close()

	client := NewClient(server.URL, "ASF", 30*time.Second)

	_, _, err := client.Lookup(context.Background(), testScene)
	if !errors.Is(err, asf.ErrGranuleNotFound) {
		t.Errorf("Lookup() error = %v, want ErrGranuleNotFound", err)
	}
}

func TestClient_Search_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad attribute", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, "ASF", 30*time.Second)
	if _, err := client.Search(context.Background(), &SearchParams{}); err == nil {
		t.Error("Search() expected error for 400 response")
	}
}

func TestClient_SearchAll_FollowsCursor(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		resp := UMMSearchResponse{Hits: 2}
		switch n {
		case 1:
			if r.Header.Get(CMRSearchAfterHeader) != "" {
				t.Errorf("first page sent a cursor")
			}
			w.Header().Set(CMRSearchAfterHeader, "page-2")
			resp.Items = []UMMResultItem{{UMM: UMMGranule{GranuleUR: "A-RAW"}}}
		default:
			if got := r.Header.Get(CMRSearchAfterHeader); got != "page-2" {
				t.Errorf("expected cursor page-2, got %q", got)
			}
			w.Header().Set(CMRSearchAfterHeader, "page-3")
			resp.Items = []UMMResultItem{{UMM: UMMGranule{GranuleUR: "B-RAW"}}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL, "ASF", 30*time.Second)
	granules, err := client.SearchAll(context.Background(), SearchParams{PageSize: 1})
	if err != nil {
		t.Fatalf("SearchAll() error = %v", err)
	}
	if len(granules) != 2 || calls.Load() != 2 {
		t.Errorf("expected 2 granules in 2 calls, got %d in %d", len(granules), calls.Load())
	}
}

func TestClient_GeoSearch(t *testing.T) {
	other := "S1A_IW_RAW__0SSH_20231229T134404_20231229T134436_051870_064437_5F38"
	server := serveGranules(t, func(r *http.Request) {
		q := r.URL.Query()
		if got := q["short_name"]; len(got) != 2 {
			t.Errorf("expected both raw collections, got %v", got)
		}
		if got := q.Get("bounding_box"); got != "14.5,37.4,15.5,38.1" {
			t.Errorf("unexpected bounding_box %s", got)
		}
		if got := q.Get("temporal"); got != "2013-01-01T00:00:00Z,2026-01-01T00:00:00Z" {
			t.Errorf("unexpected temporal %s", got)
		}
		if !strings.Contains(q.Encode(), "int%2CPATH_NUMBER%2C124") {
			t.Errorf("missing path filter in %s", q.Encode())
		}
	}, rawGranule(testScene, "VV+VH"), rawGranule(other, "HH"))
	defer server.Close()

	area, err := geojson.NewPolygonFromBBox(geojson.BBox{MinLon: 14.5, MinLat: 37.4, MaxLon: 15.5, MaxLat: 38.1})
	if err != nil {
		t.Fatalf("NewPolygonFromBBox() error = %v", err)
	}

	client := NewClient(server.URL, "ASF", 30*time.Second)
	names, err := client.GeoSearch(context.Background(), asf.GeoQuery{
		RelativeOrbit: 124,
		Intersects:    area,
		Start:         time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC),
		End:           time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Polarizations: []string{"VV", "VV+VH"},
	})
	if err != nil {
		t.Fatalf("GeoSearch() error = %v", err)
	}
	if len(names) != 1 || names[0] != testScene {
		t.Errorf("GeoSearch() = %v, want [%s]", names, testScene)
	}
}

func TestFootprint_BoundingRectangle(t *testing.T) {
	g := UMMGranule{
		GranuleUR: "X",
		SpatialExtent: &SpatialExtent{HorizontalSpatialDomain: &HorizontalSpatialDomain{
			Geometry: &Geometry{BoundingRectangles: []BoundingRectangle{{
				WestBoundingCoordinate: 1, SouthBoundingCoordinate: 2,
				EastBoundingCoordinate: 3, NorthBoundingCoordinate: 4,
			}}},
		}},
	}
	fp, err := g.Footprint()
	if err != nil {
		t.Fatalf("Footprint() error = %v", err)
	}
	b, _ := fp.Bounds()
	if b != (geojson.BBox{MinLon: 1, MinLat: 2, MaxLon: 3, MaxLat: 4}) {
		t.Errorf("unexpected bounds %v", b)
	}

	if _, err := (&UMMGranule{GranuleUR: "Y"}).Footprint(); err == nil {
		t.Error("Footprint() expected error without spatial extent")
	}
}
