package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

func TestLoadSites(t *testing.T) {
	registry, err := LoadSites()
	require.NoError(t, err)

	assert.Equal(t, []string{"aira", "etna", "kilauea"}, registry.Names())

	etna, ok := registry.Get("etna")
	require.True(t, ok)

	want := Site{
		Name:  "etna",
		Path:  124,
		BBox:  geojson.BBox{MinLon: 14.544568, MinLat: 37.388676, MaxLon: 15.453432, MaxLat: 38.107324},
		Start: time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, etna); diff != "" {
		t.Errorf("etna mismatch (-want +got):\n%s", diff)
	}

	_, ok = registry.Get("vesuvius")
	assert.False(t, ok)
}

func TestParseSites_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "etna: [unclosed"},
		{"short bbox", "etna: {path: 1, bbox: [1, 2, 3], start: 2013-01-01T00:00:00Z, end: 2014-01-01T00:00:00Z}"},
		{"inverted bbox", "etna: {path: 1, bbox: [3, 2, 1, 4], start: 2013-01-01T00:00:00Z, end: 2014-01-01T00:00:00Z}"},
		{"no path", "etna: {bbox: [1, 2, 3, 4], start: 2013-01-01T00:00:00Z, end: 2014-01-01T00:00:00Z}"},
		{"reversed window", "etna: {path: 1, bbox: [1, 2, 3, 4], start: 2014-01-01T00:00:00Z, end: 2013-01-01T00:00:00Z}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSites([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
