package timeseries

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robert-malhotra/hyp3-srg/internal/granule"
	"github.com/robert-malhotra/hyp3-srg/internal/packager"
	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

// ProductPrefix starts every time series product name.
const ProductPrefix = "S1_SRG_SBAS"

// ProcessName is recorded in the product manifest.
const ProcessName = "time-series"

// ProductFiles are copied from the sbas directory into the product.
var ProductFiles = []string{
	// metadata
	PairListFile,
	"parameters",
	RefLocationsFile,
	ReducedRSCFile,
	// datasets
	ReducedDEMFile,
	"locs",
	"npts",
	"displacement",
	"stackmht",
	"stacktime",
	"velocity",
}

// NewSuffix returns four random upper-case hex digits.
func NewSuffix() (string, error) {
	b := make([]byte, 2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate product suffix: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// ProductName builds
//
//	S1_SRG_SBAS_<relorbit>_<lon>_<lat>_<lon>_<lat>_<earliest>_<latest>_<suffix>
//
// The relative orbit comes from the first granule; the dates are the
// lexicographic extremes of the start tokens.
func ProductName(granules []string, bounds geojson.BBox, suffix string) (string, error) {
	if len(granules) == 0 {
		return "", fmt.Errorf("no granules to name the product after")
	}

	parsed := make([]granule.Granule, len(granules))
	starts := make([]string, len(granules))
	for i, name := range granules {
		g, err := granule.Parse(name)
		if err != nil {
			return "", err
		}
		parsed[i] = g
		starts[i] = g.Start
	}
	sort.Strings(starts)

	return strings.Join([]string{
		ProductPrefix,
		strconv.Itoa(parsed[0].RelativeOrbit()),
		lonLabel(bounds.MinLon),
		latLabel(bounds.MinLat),
		lonLabel(bounds.MaxLon),
		latLabel(bounds.MaxLat),
		starts[0],
		starts[len(starts)-1],
		suffix,
	}, "_"), nil
}

func latLabel(lat float64) string {
	hemi := "N"
	if lat < 0 {
		hemi = "S"
	}
	return hemi + strings.Replace(fmt.Sprintf("%04.1f", math.Abs(lat)), ".", "_", 1)
}

func lonLabel(lon float64) string {
	hemi := "E"
	if lon < 0 {
		hemi = "W"
	}
	return hemi + strings.Replace(fmt.Sprintf("%05.1f", math.Abs(lon)), ".", "_", 1)
}

// Product is a packaged time series.
type Product struct {
	Name     string
	Archive  string
	Dir      string
	Manifest packager.Manifest
	Start    time.Time
	End      time.Time
	Orbit    int
}

// Package copies ProductFiles from <workDir>/sbas into <workDir>/<name>
// and archives that directory as <workDir>/<name>.zip.
func Package(granules []string, bounds geojson.BBox, workDir string) (*Product, error) {
	suffix, err := NewSuffix()
	if err != nil {
		return nil, err
	}
	name, err := ProductName(granules, bounds, suffix)
	if err != nil {
		return nil, err
	}

	productDir := filepath.Join(workDir, name)
	if err := packager.CopyFiles(filepath.Join(workDir, "sbas"), productDir, ProductFiles...); err != nil {
		return nil, fmt.Errorf("failed to assemble %s: %w", name, err)
	}

	scenes := make([]string, len(granules))
	for i, g := range granules {
		scenes[i] = granule.SceneName(g)
	}
	manifest := packager.Manifest{Process: ProcessName, Granules: scenes}

	archive, err := packager.Package(packager.Files(productDir, ProductFiles...), manifest, name, workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to package %s: %w", name, err)
	}

	product := &Product{Name: name, Archive: archive, Dir: productDir, Manifest: manifest}
	product.Start, product.End, product.Orbit = granule.Span(granules)
	return product, nil
}
