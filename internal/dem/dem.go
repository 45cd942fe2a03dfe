// Package dem provisions the elevation model shared by every scene in a run.
package dem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/robert-malhotra/hyp3-srg/internal/processor"
	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

// Fixed working directory file names the processor reads.
const (
	DEMFile    = "elevation.dem"
	RSCFile    = "elevation.dem.rsc"
	ParamsFile = "params"
	BoundsFile = "bounds"
)

// DefaultGeoidURL is where the EGM2008 geoid grid is fetched from on first use.
const DefaultGeoidURL = "https://ffwilliams2-shenanigans.s3.us-west-2.amazonaws.com/lavas/egm2008_geoid_grid"

// Fetcher downloads a URI to an exact local path.
type Fetcher interface {
	Fetch(ctx context.Context, uri, dest string) error
}

// Artifact is a provisioned DEM with its sidecar and params file.
type Artifact struct {
	DEM    string
	RSC    string
	Params string
	Bounds geojson.BBox
}

// Provisioner creates the DEM for a bounding box.
type Provisioner struct {
	invoker   processor.Invoker
	fetcher   Fetcher
	geoidURL  string
	geoidPath string
	logger    *slog.Logger
}

// NewProvisioner creates a provisioner. The geoid grid lives at
// <procHome>/DEM/egm2008_geoid_grid.
func NewProvisioner(invoker processor.Invoker, fetcher Fetcher, procHome string) *Provisioner {
	return &Provisioner{
		invoker:   invoker,
		fetcher:   fetcher,
		geoidURL:  DefaultGeoidURL,
		geoidPath: filepath.Join(procHome, "DEM", "egm2008_geoid_grid"),
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger for the provisioner
func (p *Provisioner) WithLogger(logger *slog.Logger) *Provisioner {
	p.logger = logger
	return p
}

// WithGeoidURL overrides the geoid source.
func (p *Provisioner) WithGeoidURL(url string) *Provisioner {
	if url != "" {
		p.geoidURL = url
	}
	return p
}

// GeoidPath returns where the geoid grid is kept.
func (p *Provisioner) GeoidPath() string {
	return p.geoidPath
}

// ProcessorOrder reorders [min_lon, min_lat, max_lon, max_lat] into the
// processor's (north, south, west, east).
func ProcessorOrder(b geojson.BBox) [4]float64 {
	s := b.Slice()
	return [4]float64{s[3], s[1], s[0], s[2]}
}

// RSCPath returns the sidecar metadata path for a DEM path.
func RSCPath(demPath string) string {
	return strings.TrimSuffix(demPath, filepath.Ext(demPath)) + ".dem.rsc"
}

// Download validates bounds, records them in the bounds file, makes sure the
// geoid grid exists and runs the DEM module. It returns the DEM path.
func (p *Provisioner) Download(ctx context.Context, bounds geojson.BBox, workDir string) (string, error) {
	if err := bounds.Validate(); err != nil {
		return "", err
	}

	demPath := filepath.Join(workDir, DEMFile)
	rscPath := RSCPath(demPath)

	if err := os.WriteFile(filepath.Join(workDir, BoundsFile), []byte(bounds.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write bounds file: %w", err)
	}

	if err := p.EnsureGeoid(ctx); err != nil {
		return "", err
	}

	order := ProcessorOrder(bounds)
	p.logger.InfoContext(ctx, "creating DEM",
		slog.Any("bounds", bounds.Slice()),
		slog.String("dem", demPath),
	)

	req := processor.CreateDEM{
		DEMPath: demPath,
		RSCPath: rscPath,
		North:   order[0],
		South:   order[1],
		West:    order[2],
		East:    order[3],
	}
	if err := p.invoker.Invoke(ctx, req, workDir); err != nil {
		return "", fmt.Errorf("failed to create DEM: %w", err)
	}

	return demPath, nil
}

// Provision downloads the DEM and writes the params file referencing it.
func (p *Provisioner) Provision(ctx context.Context, bounds geojson.BBox, workDir string) (*Artifact, error) {
	demPath, err := p.Download(ctx, bounds, workDir)
	if err != nil {
		return nil, err
	}

	rscPath := RSCPath(demPath)
	paramsPath, err := WriteParams(demPath, rscPath, workDir)
	if err != nil {
		return nil, err
	}

	return &Artifact{DEM: demPath, RSC: rscPath, Params: paramsPath, Bounds: bounds}, nil
}

// EnsureGeoid fetches the geoid grid unless it is already present.
func (p *Provisioner) EnsureGeoid(ctx context.Context) error {
	if _, err := os.Stat(p.geoidPath); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat geoid grid: %w", err)
	}

	p.logger.InfoContext(ctx, "fetching geoid grid",
		slog.String("url", p.geoidURL),
		slog.String("path", p.geoidPath),
	)

	if err := os.MkdirAll(filepath.Dir(p.geoidPath), 0o755); err != nil {
		return fmt.Errorf("failed to create geoid directory: %w", err)
	}
	if err := p.fetcher.Fetch(ctx, p.geoidURL, p.geoidPath); err != nil {
		return fmt.Errorf("failed to fetch geoid grid: %w", err)
	}
	return nil
}

// WriteParams writes the two-line params file: the DEM path, then the
// metadata path.
func WriteParams(demPath, rscPath, dir string) (string, error) {
	path := filepath.Join(dir, ParamsFile)
	content := strings.Join([]string{demPath, rscPath}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write params file: %w", err)
	}
	return path, nil
}

// ReadBounds reads a bounds file written by Download.
func ReadBounds(path string) (geojson.BBox, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return geojson.BBox{}, fmt.Errorf("failed to read bounds file: %w", err)
	}
	return geojson.ParseBBox(string(data))
}
