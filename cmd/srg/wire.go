package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/hyp3-srg/internal/acquire"
	"github.com/robert-malhotra/hyp3-srg/internal/asf"
	"github.com/robert-malhotra/hyp3-srg/internal/cmr"
	"github.com/robert-malhotra/hyp3-srg/internal/creds"
	"github.com/robert-malhotra/hyp3-srg/internal/dem"
	"github.com/robert-malhotra/hyp3-srg/internal/gpu"
	"github.com/robert-malhotra/hyp3-srg/internal/orbit"
	"github.com/robert-malhotra/hyp3-srg/internal/pipeline"
	"github.com/robert-malhotra/hyp3-srg/internal/processor"
	"github.com/robert-malhotra/hyp3-srg/internal/storage"
	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

// newCoordinator assembles the pipeline from the loaded configuration.
// earthdata is sent with every raw granule download.
func (a *app) newCoordinator(ctx context.Context, earthdata creds.Credentials) (*pipeline.Coordinator, error) {
	cfg := a.cfg
	logger := a.logger

	runner, err := processor.NewRunner(cfg.Processor.Home, cfg.Processor.Timeout)
	if err != nil {
		return nil, err
	}
	runner = runner.WithLogger(logger).WithMaxOutput(cfg.Processor.MaxOutput)

	store, err := a.newStore(ctx)
	if err != nil {
		return nil, err
	}

	orbitClient, err := storage.NewS3Client(ctx, storage.S3Options{Region: cfg.Orbit.Region, Anonymous: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create orbit bucket client: %w", err)
	}
	orbits := orbit.NewClient(storage.NewS3Gateway(orbitClient).WithLogger(logger)).
		WithBucket(cfg.Orbit.Bucket).
		WithLogger(logger)

	scenes := a.newCatalog()
	downloader := asf.NewDownloader(cfg.ASF.DownloadTimeout).WithLogger(logger)
	acquirer := acquire.NewAcquirer(scenes, downloader, orbits, earthdata).WithLogger(logger)

	provisioner := dem.NewProvisioner(runner, store, runner.Home()).
		WithGeoidURL(cfg.DEM.GeoidURL).
		WithLogger(logger)

	selector := gpu.NewSelector(runner).WithLogger(logger)

	coordinator := pipeline.NewCoordinator(runner, acquirer, provisioner, store).
		WithDeviceSelector(selector).
		WithConcurrency(cfg.Work.Concurrency).
		WithLogger(logger)

	logger.DebugContext(ctx, "pipeline ready",
		slog.String("processor_home", runner.Home()),
		slog.String("catalog", cfg.Catalog.Backend),
		slog.String("orbit_bucket", cfg.Orbit.Bucket),
	)
	return coordinator, nil
}

// catalog looks up and searches raw scenes.
type catalog interface {
	Lookup(ctx context.Context, name string) (string, *geojson.Geometry, error)
	GeoSearch(ctx context.Context, q asf.GeoQuery) ([]string, error)
}

// newCatalog returns the ASF Search or CMR client per CATALOG_BACKEND.
func (a *app) newCatalog() catalog {
	cfg := a.cfg
	if cfg.Catalog.Backend == "cmr" {
		return cmr.NewClient(cfg.CMR.BaseURL, cfg.CMR.Provider, cfg.CMR.Timeout).WithLogger(a.logger)
	}
	return asf.NewClient(cfg.ASF.BaseURL, cfg.ASF.Timeout).WithLogger(a.logger)
}

// newStore builds the storage mux. The GCS gateway is optional: without
// application default credentials gs:// targets are simply unavailable.
func (a *app) newStore(ctx context.Context) (*storage.Mux, error) {
	cfg := a.cfg.Storage
	logger := a.logger

	s3Client, err := storage.NewS3Client(ctx, storage.S3Options{Region: cfg.S3Region, Endpoint: cfg.S3Endpoint})
	if err != nil {
		return nil, err
	}
	gateways := map[string]storage.Gateway{
		"s3": storage.NewS3Gateway(s3Client).WithLogger(logger),
	}

	gcs, err := storage.NewGCSGateway(ctx, cfg.GCSCredentialsFile)
	if err != nil {
		logger.DebugContext(ctx, "gs:// storage disabled", slog.String("error", err.Error()))
	} else {
		gateways["gs"] = gcs.WithLogger(logger)
	}

	return storage.NewMux(gateways).WithLogger(logger), nil
}
