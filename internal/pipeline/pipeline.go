// Package pipeline coordinates whole back-projection and time-series runs
// from input granules to an uploaded product.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/planetlabs/go-stac"

	"github.com/robert-malhotra/hyp3-srg/internal/acquire"
	"github.com/robert-malhotra/hyp3-srg/internal/dem"
	"github.com/robert-malhotra/hyp3-srg/internal/packager"
	"github.com/robert-malhotra/hyp3-srg/internal/processor"
	"github.com/robert-malhotra/hyp3-srg/internal/timeseries"
	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

// FootprintBuffer is added on every side of the granule footprint union
// when no bounds are given.
const FootprintBuffer = 0.1

// GSLCPrefix is the sub-prefix GSLCs are uploaded to and listed from.
const GSLCPrefix = "GSLC_granules"

// ErrInvalidOptions is returned for option combinations a run cannot start with.
var ErrInvalidOptions = errors.New("invalid options")

// Acquirer fetches a granule and its orbit file.
type Acquirer interface {
	Acquire(ctx context.Context, id, dest string) (*acquire.Product, error)
}

// Provisioner creates the DEM and params file for a bounding box.
type Provisioner interface {
	Provision(ctx context.Context, bounds geojson.BBox, workDir string) (*dem.Artifact, error)
}

// Store moves products between the working directory and object storage.
type Store interface {
	Fetch(ctx context.Context, uri, dest string) error
	Upload(ctx context.Context, src, bucket, prefix string) (string, error)
	ListGSLCs(ctx context.Context, bucket, prefix string) ([]string, error)
}

// DeviceSelector picks the GPU for a run; nil means CPU.
type DeviceSelector interface {
	Select(ctx context.Context, workDir string) (*int, error)
}

// Result describes a finished run.
type Result struct {
	ProductName string
	Archive     string
	Item        *stac.Item
	ItemPath    string
	UploadedURI string
	Granules    []string
}

// Coordinator runs pipelines. It holds no per-run state and may be reused.
type Coordinator struct {
	invoker     processor.Invoker
	acquirer    Acquirer
	provisioner Provisioner
	store       Store
	selector    DeviceSelector
	concurrency int
	params      timeseries.Params
	logger      *slog.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(invoker processor.Invoker, acquirer Acquirer, provisioner Provisioner, store Store) *Coordinator {
	return &Coordinator{
		invoker:     invoker,
		acquirer:    acquirer,
		provisioner: provisioner,
		store:       store,
		concurrency: 4,
		params:      timeseries.DefaultParams(),
		logger:      slog.Default(),
	}
}

// WithLogger sets a custom logger for the coordinator
func (c *Coordinator) WithLogger(logger *slog.Logger) *Coordinator {
	c.logger = logger
	return c
}

// WithDeviceSelector sets the GPU selector used by GPU runs.
func (c *Coordinator) WithDeviceSelector(s DeviceSelector) *Coordinator {
	c.selector = s
	return c
}

// WithConcurrency bounds how many granules are acquired at once.
func (c *Coordinator) WithConcurrency(n int) *Coordinator {
	if n > 0 {
		c.concurrency = n
	}
	return c
}

// WithTimeSeriesParams overrides the stacking parameters.
func (c *Coordinator) WithTimeSeriesParams(p timeseries.Params) *Coordinator {
	c.params = p
	return c
}

// upload sends the archive and its STAC item to bucket/prefix.
func (c *Coordinator) upload(ctx context.Context, res *Result, bucket, prefix string) error {
	uri, err := c.store.Upload(ctx, res.Archive, bucket, prefix)
	if err != nil {
		return err
	}
	res.UploadedURI = uri

	if res.ItemPath != "" {
		if _, err := c.store.Upload(ctx, res.ItemPath, bucket, prefix); err != nil {
			return err
		}
	}
	return nil
}

func writeItem(info packager.ItemInfo, dir string) (*stac.Item, string, error) {
	item, err := packager.Item(info)
	if err != nil {
		return nil, "", err
	}
	itemPath, err := packager.WriteItem(item, dir)
	if err != nil {
		return nil, "", err
	}
	return item, itemPath, nil
}

func ensureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: a working directory is required", ErrInvalidOptions)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

func exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func join(prefix, sub string) string {
	if prefix == "" {
		return sub
	}
	return path.Join(prefix, sub)
}
