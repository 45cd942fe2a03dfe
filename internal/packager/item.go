package packager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/planetlabs/go-stac"

	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

// STACVersion is the STAC version written into product items.
const STACVersion = "1.0.0"

// ItemInfo describes a finished product for its STAC sidecar.
type ItemInfo struct {
	ProductName   string
	Collection    string
	Manifest      Manifest
	Bounds        geojson.BBox
	Archive       string
	Href          string // defaults to the archive file name
	Start         time.Time
	End           time.Time
	Created       time.Time
	RelativeOrbit int
	Extra         map[string]any
}

// Item builds the STAC item for a product.
func Item(info ItemInfo) (*stac.Item, error) {
	if info.ProductName == "" {
		return nil, fmt.Errorf("product name is empty")
	}

	geom, err := geojson.NewPolygonFromBBox(info.Bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to build geometry: %w", err)
	}

	item := &stac.Item{
		Version:    STACVersion,
		Id:         info.ProductName,
		Collection: info.Collection,
		Geometry:   geom,
		Bbox:       info.Bounds.Slice(),
		Properties: make(map[string]any),
		Assets:     make(map[string]*stac.Asset),
		Links:      make([]*stac.Link, 0),
	}

	item.Properties["processing:software"] = map[string]string{"srg": info.Manifest.Process}
	item.Properties["srg:process"] = info.Manifest.Process
	item.Properties["srg:input_granules"] = info.Manifest.Granules

	if !info.Start.IsZero() && !info.End.IsZero() {
		item.Properties["datetime"] = nil
		item.Properties["start_datetime"] = info.Start.UTC().Format(time.RFC3339)
		item.Properties["end_datetime"] = info.End.UTC().Format(time.RFC3339)
	} else {
		created := info.Created
		if created.IsZero() {
			created = time.Now()
		}
		item.Properties["datetime"] = created.UTC().Format(time.RFC3339)
	}
	if info.RelativeOrbit > 0 {
		item.Properties["sat:relative_orbit"] = info.RelativeOrbit
	}
	for k, v := range info.Extra {
		item.Properties[k] = v
	}

	href := info.Href
	if href == "" && info.Archive != "" {
		href = filepath.Base(info.Archive)
	}
	if href != "" {
		item.Assets["data"] = &stac.Asset{
			Href:  href,
			Title: info.ProductName,
			Type:  "application/zip",
			Roles: []string{"data"},
		}
	}

	return item, nil
}

// WriteItem writes the item as <dir>/<id>.json and returns the path.
func WriteItem(item *stac.Item, dir string) (string, error) {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode STAC item: %w", err)
	}
	path := filepath.Join(dir, item.Id+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write STAC item: %w", err)
	}
	return path, nil
}
