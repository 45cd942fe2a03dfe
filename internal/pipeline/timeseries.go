package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/robert-malhotra/hyp3-srg/internal/dem"
	"github.com/robert-malhotra/hyp3-srg/internal/packager"
	"github.com/robert-malhotra/hyp3-srg/internal/processor"
	"github.com/robert-malhotra/hyp3-srg/internal/timeseries"
	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

// TimeSeriesCollection is the STAC collection of time-series products.
const TimeSeriesCollection = "srg-time-series"

// SBASDir is the stacking sub-directory of the working directory.
const SBASDir = "sbas"

// TimeSeriesOptions configure a time-series run.
type TimeSeriesOptions struct {
	// Granules are GSLC products: object URIs, http(s) URLs, local paths,
	// or bare names already in the working directory.
	Granules []string `json:"granules"`
	// Bounds is the DEM extent. The zero box means read it from the bounds
	// file shipped in the GSLC products.
	Bounds        geojson.BBox `json:"bounds"`
	Bucket        string       `json:"bucket,omitempty"`
	BucketPrefix  string       `json:"bucket_prefix,omitempty"`
	UseGSLCPrefix bool         `json:"use_gslc_prefix"`
	WorkDir       string       `json:"-"`
}

// Validate checks the option combination.
func (o TimeSeriesOptions) Validate() error {
	if len(o.Granules) == 0 && !o.UseGSLCPrefix {
		return fmt.Errorf("%w: use_gslc_prefix must be set if granules are not provided", ErrInvalidOptions)
	}
	if o.UseGSLCPrefix {
		if len(o.Granules) > 0 {
			return fmt.Errorf("%w: granules must not be provided if use_gslc_prefix is set", ErrInvalidOptions)
		}
		if o.Bucket == "" || o.BucketPrefix == "" {
			return fmt.Errorf("%w: bucket and bucket prefix must be given if use_gslc_prefix is set", ErrInvalidOptions)
		}
	}
	if !o.Bounds.IsZero() {
		if err := o.Bounds.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TimeSeries loads the GSLC stack, provisions the DEM, merges the GSLCs and
// runs the stacking engine, then packages the result.
func (c *Coordinator) TimeSeries(ctx context.Context, opts TimeSeriesOptions) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	workDir := opts.WorkDir
	if err := ensureDir(workDir); err != nil {
		return nil, err
	}
	sbasDir := filepath.Join(workDir, SBASDir)
	if err := os.MkdirAll(sbasDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", sbasDir, err)
	}
	start := time.Now()

	uris := opts.Granules
	if opts.UseGSLCPrefix {
		var err error
		uris, err = c.store.ListGSLCs(ctx, opts.Bucket, join(opts.BucketPrefix, GSLCPrefix))
		if err != nil {
			return nil, err
		}
		if len(uris) == 0 {
			return nil, fmt.Errorf("%w: no GSLCs found under %s/%s", ErrInvalidOptions, opts.Bucket, join(opts.BucketPrefix, GSLCPrefix))
		}
	}

	names, err := c.LoadProducts(ctx, uris, workDir)
	if err != nil {
		return nil, err
	}

	bounds := opts.Bounds
	if bounds.IsZero() {
		bounds, err = dem.ReadBounds(filepath.Join(workDir, dem.BoundsFile))
		if err != nil {
			return nil, fmt.Errorf("%w: no bounds given and none shipped with the GSLCs: %v", ErrInvalidOptions, err)
		}
	}

	artifact, err := c.provisioner.Provision(ctx, bounds, workDir)
	if err != nil {
		return nil, err
	}

	if err := c.invoker.Invoke(ctx, processor.MergeSLCs{}, workDir); err != nil {
		return nil, fmt.Errorf("failed to merge SLCs: %w", err)
	}

	engine := timeseries.NewEngine(c.invoker, c.params).WithLogger(c.logger)
	if err := engine.Run(ctx, sbasDir, artifact.RSC); err != nil {
		return nil, err
	}

	product, err := timeseries.Package(names, bounds, workDir)
	if err != nil {
		return nil, err
	}

	item, itemPath, err := writeItem(packager.ItemInfo{
		ProductName:   product.Name,
		Collection:    TimeSeriesCollection,
		Manifest:      product.Manifest,
		Bounds:        bounds,
		Archive:       product.Archive,
		Start:         product.Start,
		End:           product.End,
		RelativeOrbit: product.Orbit,
	}, workDir)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ProductName: product.Name,
		Archive:     product.Archive,
		Item:        item,
		ItemPath:    itemPath,
		Granules:    names,
	}
	if opts.Bucket != "" {
		if err := c.upload(ctx, res, opts.Bucket, opts.BucketPrefix); err != nil {
			return nil, err
		}
	}

	c.logger.InfoContext(ctx, "time-series processing complete",
		slog.String("product", res.ProductName),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// LoadProducts brings each GSLC product into workDir and unpacks archives
// whose .geo is not already present. Products already in workDir, zipped
// or unpacked, are not fetched again. It returns the product file names.
func (c *Coordinator) LoadProducts(ctx context.Context, uris []string, workDir string) ([]string, error) {
	names := make([]string, 0, len(uris))
	for _, uri := range uris {
		name := path.Base(filepath.ToSlash(uri))
		stem := strings.TrimSuffix(name, path.Ext(name))
		geoPath := filepath.Join(workDir, stem+".geo")
		zipPath := filepath.Join(workDir, stem+".zip")

		if !exists(geoPath) && !exists(zipPath) && !isBareName(uri) {
			c.logger.InfoContext(ctx, "loading GSLC", slog.String("uri", uri))
			if err := c.store.Fetch(ctx, uri, filepath.Join(workDir, name)); err != nil {
				return nil, err
			}
		}

		if !exists(geoPath) {
			if _, err := packager.Extract(zipPath, workDir); err != nil {
				return nil, fmt.Errorf("failed to unpack %s: %w", name, err)
			}
		}
		names = append(names, name)
	}
	return names, nil
}

// isBareName reports whether uri names a file already in the working
// directory rather than a location to fetch from.
func isBareName(uri string) bool {
	return !strings.Contains(uri, "://") && filepath.Base(uri) == uri
}
