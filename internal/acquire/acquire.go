// Package acquire fetches raw Sentinel-1 granules and their orbit files into
// a working directory.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/robert-malhotra/hyp3-srg/internal/creds"
	"github.com/robert-malhotra/hyp3-srg/internal/granule"
	"github.com/robert-malhotra/hyp3-srg/internal/packager"
	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

// Catalog resolves a granule to its download URL and footprint.
type Catalog interface {
	Lookup(ctx context.Context, name string) (string, *geojson.Geometry, error)
}

// Downloader fetches a URL into a local file.
type Downloader interface {
	Download(ctx context.Context, url, dest string, c creds.Credentials) error
}

// OrbitFetcher fetches the orbit file for a scene.
type OrbitFetcher interface {
	FetchForScene(ctx context.Context, scene, destDir string) (string, error)
}

// Product is an acquired granule ready for back-projection.
type Product struct {
	Granule   string
	Path      string
	Orbit     string
	Footprint *geojson.Geometry
}

// Acquirer downloads granules and orbits.
type Acquirer struct {
	catalog    Catalog
	downloader Downloader
	orbits     OrbitFetcher
	creds      creds.Credentials
	logger     *slog.Logger
}

// NewAcquirer creates an acquirer. c is sent with every product download.
func NewAcquirer(catalog Catalog, downloader Downloader, orbits OrbitFetcher, c creds.Credentials) *Acquirer {
	return &Acquirer{
		catalog:    catalog,
		downloader: downloader,
		orbits:     orbits,
		creds:      c,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the acquirer
func (a *Acquirer) WithLogger(logger *slog.Logger) *Acquirer {
	a.logger = logger
	return a
}

// DownloadRawGranule fetches the raw product for id into dest and returns its
// local path and footprint. The catalog is always queried for the footprint.
// Without unzip the archive is fetched unless it is present and its path is
// returned. With unzip it is fetched only when neither it nor the extracted
// SAFE directory is present, the SAFE path is returned and the archive is
// removed after extraction.
func (a *Acquirer) DownloadRawGranule(ctx context.Context, id, dest string, unzip bool) (string, *geojson.Geometry, error) {
	scene := granule.SceneName(id)

	url, footprint, err := a.catalog.Lookup(ctx, granule.RawFileID(id))
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up %s: %w", scene, err)
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create %s: %w", dest, err)
	}

	zipPath := filepath.Join(dest, scene+".zip")
	safePath := filepath.Join(dest, scene+".SAFE")

	// An extracted SAFE only satisfies an unzip request.
	present := exists(zipPath) || (unzip && exists(safePath))
	if !present {
		if err := a.downloader.Download(ctx, url, zipPath, a.creds); err != nil {
			return "", nil, err
		}
	} else {
		a.logger.DebugContext(ctx, "granule already present", slog.String("granule", scene))
	}

	if !unzip {
		return zipPath, footprint, nil
	}

	if !exists(safePath) {
		a.logger.InfoContext(ctx, "extracting granule", slog.String("granule", scene))
		if _, err := packager.Extract(zipPath, dest); err != nil {
			return "", nil, err
		}
		if !exists(safePath) {
			return "", nil, fmt.Errorf("archive %s did not contain %s", zipPath, filepath.Base(safePath))
		}
	}
	if err := os.Remove(zipPath); err != nil && !os.IsNotExist(err) {
		return "", nil, fmt.Errorf("failed to remove %s: %w", zipPath, err)
	}
	return safePath, footprint, nil
}

// DownloadOrbit fetches the orbit file for id into dest.
func (a *Acquirer) DownloadOrbit(ctx context.Context, id, dest string) (string, error) {
	path, err := a.orbits.FetchForScene(ctx, granule.SceneName(id), dest)
	if err != nil {
		return "", fmt.Errorf("failed to fetch orbit for %s: %w", granule.SceneName(id), err)
	}
	return path, nil
}

// Acquire fetches and extracts the granule and its orbit file into dest.
func (a *Acquirer) Acquire(ctx context.Context, id, dest string) (*Product, error) {
	path, footprint, err := a.DownloadRawGranule(ctx, id, dest, true)
	if err != nil {
		return nil, err
	}
	orbit, err := a.DownloadOrbit(ctx, id, dest)
	if err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "granule acquired",
		slog.String("granule", granule.SceneName(id)),
		slog.String("path", path),
		slog.String("orbit", orbit),
	)
	return &Product{
		Granule:   granule.SceneName(id),
		Path:      path,
		Orbit:     orbit,
		Footprint: footprint,
	}, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
