package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/hyp3-srg/internal/acquire"
	"github.com/robert-malhotra/hyp3-srg/internal/backproject"
	"github.com/robert-malhotra/hyp3-srg/internal/granule"
	"github.com/robert-malhotra/hyp3-srg/internal/packager"
	"github.com/robert-malhotra/hyp3-srg/internal/processor"
	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

// GSLCCollection is the STAC collection of back-projection products.
const GSLCCollection = "srg-gslc"

// BackProjectionOptions configure a back-projection run.
type BackProjectionOptions struct {
	Granules []string `json:"granules"`
	// Bounds is the DEM extent. The zero box means derive it from the
	// granule footprints.
	Bounds        geojson.BBox `json:"bounds"`
	GPU           bool         `json:"gpu"`
	Bucket        string       `json:"bucket,omitempty"`
	BucketPrefix  string       `json:"bucket_prefix,omitempty"`
	UseGSLCPrefix bool         `json:"use_gslc_prefix"`
	WorkDir       string       `json:"-"`
}

// Validate checks the option combination.
func (o BackProjectionOptions) Validate() error {
	if len(o.Granules) == 0 {
		return fmt.Errorf("%w: at least one granule is required", ErrInvalidOptions)
	}
	// Ids naming the same scene would share one archive and SAFE directory.
	seen := make(map[string]string, len(o.Granules))
	for _, id := range o.Granules {
		scene := granule.SceneName(id)
		if prev, ok := seen[scene]; ok {
			return fmt.Errorf("%w: granules %s and %s are the same scene", ErrInvalidOptions, prev, id)
		}
		seen[scene] = id
	}
	if o.UseGSLCPrefix && (o.Bucket == "" || o.BucketPrefix == "") {
		return fmt.Errorf("%w: bucket and bucket prefix must be given if use_gslc_prefix is set", ErrInvalidOptions)
	}
	if !o.Bounds.IsZero() {
		if err := o.Bounds.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// UploadPrefix is the prefix the product is uploaded under.
func (o BackProjectionOptions) UploadPrefix() string {
	if o.UseGSLCPrefix {
		return join(o.BucketPrefix, GSLCPrefix)
	}
	return o.BucketPrefix
}

// BackProject acquires every granule, provisions one DEM for their combined
// extent, back-projects each scene, merges the results and packages the
// GSLC. Any failure aborts the whole run.
func (c *Coordinator) BackProject(ctx context.Context, opts BackProjectionOptions) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	workDir := opts.WorkDir
	if err := ensureDir(workDir); err != nil {
		return nil, err
	}
	start := time.Now()

	c.logger.InfoContext(ctx, "downloading data",
		slog.Int("granules", len(opts.Granules)),
		slog.String("work_dir", workDir),
	)
	products, err := c.acquireAll(ctx, opts.Granules, workDir)
	if err != nil {
		return nil, err
	}

	bounds := opts.Bounds
	if bounds.IsZero() {
		footprints := make([]*geojson.Geometry, len(products))
		for i, p := range products {
			footprints[i] = p.Footprint
		}
		union, err := geojson.UnionBounds(footprints)
		if err != nil {
			return nil, fmt.Errorf("failed to combine granule footprints: %w", err)
		}
		bounds = union.Buffer(FootprintBuffer)
	}

	if _, err := c.provisioner.Provision(ctx, bounds, workDir); err != nil {
		return nil, err
	}

	device, err := c.device(ctx, opts.GPU, workDir)
	if err != nil {
		return nil, err
	}

	pairs := make([]backproject.Pair, len(products))
	names := make([]string, len(products))
	for i, p := range products {
		pairs[i] = backproject.Pair{Granule: p.Path, Orbit: p.Orbit}
		names[i] = p.Granule
	}
	orchestrator := backproject.NewOrchestrator(c.invoker).WithLogger(c.logger)
	if err := orchestrator.BackProject(ctx, pairs, workDir, device); err != nil {
		return nil, err
	}

	if err := c.invoker.Invoke(ctx, processor.MergeSLCs{}, workDir); err != nil {
		return nil, fmt.Errorf("failed to merge SLCs: %w", err)
	}

	product, err := backproject.CreateProduct(workDir, names)
	if err != nil {
		return nil, err
	}

	first, last, orbit := granule.Span(names)
	item, itemPath, err := writeItem(packager.ItemInfo{
		ProductName:   product.Name,
		Collection:    GSLCCollection,
		Manifest:      product.Manifest,
		Bounds:        bounds,
		Archive:       product.Archive,
		Start:         first,
		End:           last,
		RelativeOrbit: orbit,
		Extra:         map[string]any{"srg:gpu": device != nil},
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
		if err := c.upload(ctx, res, opts.Bucket, opts.UploadPrefix()); err != nil {
			return nil, err
		}
	}

	c.logger.InfoContext(ctx, "back-projection complete",
		slog.String("product", res.ProductName),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// acquireAll fetches every granule concurrently. The first failure cancels
// the rest.
func (c *Coordinator) acquireAll(ctx context.Context, granules []string, workDir string) ([]*acquire.Product, error) {
	products := make([]*acquire.Product, len(granules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, id := range granules {
		i, id := i, id
		g.Go(func() error {
			p, err := c.acquirer.Acquire(gctx, id, workDir)
			if err != nil {
				return err
			}
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("acquisition failed: %w", err)
	}
	return products, nil
}

// device resolves the GPU to pin. Without a selector, GPU runs use device 0.
func (c *Coordinator) device(ctx context.Context, gpu bool, workDir string) (*int, error) {
	if !gpu {
		return nil, nil
	}
	if c.selector == nil {
		zero := 0
		return &zero, nil
	}
	d, err := c.selector.Select(ctx, workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to select GPU: %w", err)
	}
	if d == nil {
		c.logger.WarnContext(ctx, "no GPU available, back-projecting on the CPU")
	}
	return d, nil
}
