package config

import (
	_ "embed"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

//go:embed sites.yaml
var sitesYAML []byte

// Site is a named area of interest with a fixed search window.
type Site struct {
	Name  string
	Path  int
	BBox  geojson.BBox
	Start time.Time
	End   time.Time
}

type siteDoc struct {
	Path  int       `yaml:"path"`
	BBox  []float64 `yaml:"bbox"`
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// SiteRegistry holds the known sites indexed by name.
type SiteRegistry struct {
	sites map[string]Site
}

// LoadSites returns the registry compiled into the binary.
func LoadSites() (*SiteRegistry, error) {
	return ParseSites(sitesYAML)
}

// ParseSites decodes a YAML document mapping site names to
// path, bbox, start and end.
func ParseSites(data []byte) (*SiteRegistry, error) {
	var docs map[string]siteDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse sites: %w", err)
	}

	registry := &SiteRegistry{sites: make(map[string]Site, len(docs))}
	for name, doc := range docs {
		site, err := doc.site(name)
		if err != nil {
			return nil, fmt.Errorf("invalid site %q: %w", name, err)
		}
		registry.sites[name] = site
	}
	return registry, nil
}

func (d siteDoc) site(name string) (Site, error) {
	if d.Path <= 0 {
		return Site{}, fmt.Errorf("path must be positive, got %d", d.Path)
	}
	if len(d.BBox) != 4 {
		return Site{}, fmt.Errorf("bbox must have 4 values, got %d", len(d.BBox))
	}
	bbox := geojson.BBox{MinLon: d.BBox[0], MinLat: d.BBox[1], MaxLon: d.BBox[2], MaxLat: d.BBox[3]}
	if err := bbox.Validate(); err != nil {
		return Site{}, err
	}
	if d.Start.IsZero() || d.End.IsZero() || !d.Start.Before(d.End) {
		return Site{}, fmt.Errorf("start %s must precede end %s", d.Start, d.End)
	}
	return Site{Name: name, Path: d.Path, BBox: bbox, Start: d.Start.UTC(), End: d.End.UTC()}, nil
}

// Get retrieves a site by name.
func (r *SiteRegistry) Get(name string) (Site, bool) {
	site, ok := r.sites[name]
	return site, ok
}

// Names returns the site names in sorted order.
func (r *SiteRegistry) Names() []string {
	names := make([]string, 0, len(r.sites))
	for name := range r.sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
