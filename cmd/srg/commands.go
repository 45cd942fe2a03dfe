package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/hyp3-srg/internal/api"
	"github.com/robert-malhotra/hyp3-srg/internal/asf"
	"github.com/robert-malhotra/hyp3-srg/internal/config"
	"github.com/robert-malhotra/hyp3-srg/internal/creds"
	"github.com/robert-malhotra/hyp3-srg/internal/jobs"
	"github.com/robert-malhotra/hyp3-srg/internal/pipeline"
	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
	"github.com/robert-malhotra/hyp3-srg/pkg/server"
)

// jobCleanupInterval is how often the job store drops expired jobs.
const jobCleanupInterval = 5 * time.Minute

// app carries what every subcommand needs once the root has loaded it.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

// runFlags are shared by the processing subcommands.
type runFlags struct {
	bucket        string
	bucketPrefix  string
	bounds        string
	useGSLCPrefix bool
	workDir       string
}

func (f *runFlags) register(cmd *cobra.Command, useGSLCHelp string) {
	cmd.Flags().StringVar(&f.bucket, "bucket", "", "Bucket to upload the final product to (s3:// or gs://, s3 when no scheme)")
	cmd.Flags().StringVar(&f.bucketPrefix, "bucket-prefix", "", "Prefix for uploaded products")
	cmd.Flags().StringVar(&f.bounds, "bounds", "", "DEM extent in EPSG:4326: \"min_lon min_lat max_lon max_lat\"")
	cmd.Flags().BoolVar(&f.useGSLCPrefix, "use-gslc-prefix", false, useGSLCHelp)
	cmd.Flags().StringVar(&f.workDir, "work-dir", "", "Working directory (defaults to WORK_DIR)")
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "srg",
		Short:         "Sentinel-1 back-projection and SBAS time-series processing",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.cfg = cfg
			a.logger = setupLogger(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			slog.SetDefault(a.logger)
			return nil
		},
	}

	root.AddCommand(
		newBackProjectionCmd(a),
		newTimeSeriesCmd(a),
		newSearchCmd(a),
		newServeCmd(a),
	)
	return root
}

func newBackProjectionCmd(a *app) *cobra.Command {
	var (
		flags    runFlags
		gpu      bool
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "back-projection GRANULE...",
		Short: "Back-project Level-0 Sentinel-1 granules into a geocoded SLC",
		Example: `  srg back-projection \
    S1A_IW_RAW__0SDV_20231229T134339_20231229T134411_051870_064437_4F42-RAW \
    S1A_IW_RAW__0SDV_20231229T134404_20231229T134436_051870_064437_5F38-RAW`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bounds, err := parseBounds(flags.bounds)
			if err != nil {
				return err
			}
			opts := pipeline.BackProjectionOptions{
				Granules:      splitGranules(args),
				Bounds:        bounds,
				GPU:           gpu,
				Bucket:        flags.bucket,
				BucketPrefix:  flags.bucketPrefix,
				UseGSLCPrefix: flags.useGSLCPrefix,
				WorkDir:       a.workDir(flags.workDir),
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			earthdata, err := a.earthdata(username, password)
			if err != nil {
				return err
			}
			coordinator, err := a.newCoordinator(cmd.Context(), earthdata)
			if err != nil {
				return err
			}

			res, err := coordinator.BackProject(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Finished back-projection for %s!\n", res.ProductName)
			return nil
		},
	}

	flags.register(cmd, "Upload GSLC granules to a sub-prefix within --bucket and --bucket-prefix")
	cmd.Flags().BoolVar(&gpu, "gpu", false, "Use the GPU-based version of the workflow")
	cmd.Flags().StringVar(&username, "earthdata-username", "", "Username for NASA EarthData")
	cmd.Flags().StringVar(&password, "earthdata-password", "", "Password for NASA EarthData")
	return cmd
}

func newTimeSeriesCmd(a *app) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "time-series [GSLC...]",
		Short: "Stack back-projected GSLCs into an SBAS displacement time series",
		Example: `  srg time-series \
    S1A_IW_RAW__0SDV_20231229T134339_20231229T134411_051870_064437_4F42.geo \
    S1A_IW_RAW__0SDV_20231229T134404_20231229T134436_051870_064437_5F38.geo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			bounds, err := parseBounds(flags.bounds)
			if err != nil {
				return err
			}
			opts := pipeline.TimeSeriesOptions{
				Granules:      splitGranules(args),
				Bounds:        bounds,
				Bucket:        flags.bucket,
				BucketPrefix:  flags.bucketPrefix,
				UseGSLCPrefix: flags.useGSLCPrefix,
				WorkDir:       a.workDir(flags.workDir),
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			coordinator, err := a.newCoordinator(cmd.Context(), creds.Credentials{})
			if err != nil {
				return err
			}

			res, err := coordinator.TimeSeries(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Finished time-series processing for %s!\n", strings.Join(res.Granules, ", "))
			return nil
		},
	}

	flags.register(cmd, "Download GSLC inputs from a sub-prefix within --bucket and --bucket-prefix")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		site          string
		bbox          string
		path          int
		start         string
		end           string
		polarizations []string
		asJob         bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "List raw IW scenes over a site or area for a time-series job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, bounds, err := a.searchQuery(site, bbox, path, start, end)
			if err != nil {
				return err
			}
			q.Polarizations = polarizations

			names, err := a.newCatalog().GeoSearch(cmd.Context(), q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !asJob {
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			params, err := json.Marshal(pipeline.TimeSeriesOptions{Granules: names, Bounds: bounds})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(api.SubmitRequest{JobType: jobs.TypeTimeSeries, JobParameters: params})
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "Named site from the built-in registry")
	cmd.Flags().StringVar(&bbox, "bbox", "", "Search area: \"min_lon min_lat max_lon max_lat\"")
	cmd.Flags().IntVar(&path, "path", 0, "Relative orbit")
	cmd.Flags().StringVar(&start, "start", "", "Start of the window (RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "End of the window (RFC 3339)")
	cmd.Flags().StringSliceVar(&polarizations, "polarization", []string{"VV", "VV+VH"}, "Polarizations to include")
	cmd.Flags().BoolVar(&asJob, "job", false, "Print a TIME_SERIES job submission body instead of scene names")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			logger := a.logger

			earthdata, err := a.earthdata(username, password)
			if err != nil {
				logger.WarnContext(ctx, "no Earthdata credentials, back-projection jobs will fail to download",
					slog.String("error", err.Error()))
			}
			coordinator, err := a.newCoordinator(ctx, earthdata)
			if err != nil {
				return err
			}

			worker := server.New(coordinator, server.Options{
				WorkDir:         cfg.Work.Dir,
				JobTTL:          cfg.Server.JobTTL,
				CleanupInterval: jobCleanupInterval,
				QueueDepth:      cfg.Server.QueueDepth,
				Logger:          logger,
			})
			defer worker.Close()
			worker.Start(ctx)

			srv := &http.Server{
				Addr:         cfg.Server.Address(),
				Handler:      worker.Router(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  120 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				logger.Info("server listening", "addr", srv.Addr, "work_dir", cfg.Work.Dir)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case err := <-serverErr:
				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
				logger.Info("received shutdown signal")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			logger.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown error: %w", err)
			}

			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "earthdata-username", "", "Username for NASA EarthData")
	cmd.Flags().StringVar(&password, "earthdata-password", "", "Password for NASA EarthData")
	return cmd
}

// workDir resolves the working directory flag against WORK_DIR.
func (a *app) workDir(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Work.Dir
}

// earthdata resolves Earthdata Login credentials, preferring explicit flags
// over EARTHDATA_USERNAME/PASSWORD and the netrc file.
func (a *app) earthdata(username, password string) (creds.Credentials, error) {
	env := creds.NewOverlay(creds.OSEnvironment{})
	env.SetCreds(creds.Earthdata, username, password)
	return creds.NewResolver(env).ResolveEarthdata()
}

// searchQuery builds the scene query from either a named site or the
// explicit bbox, path and window flags.
func (a *app) searchQuery(site, bbox string, path int, start, end string) (asf.GeoQuery, geojson.BBox, error) {
	explicit := bbox != "" || path != 0 || start != "" || end != ""

	if site != "" {
		if explicit {
			return asf.GeoQuery{}, geojson.BBox{}, errors.New("provide either --site or --bbox, --path, --start, --end")
		}
		registry, err := config.LoadSites()
		if err != nil {
			return asf.GeoQuery{}, geojson.BBox{}, err
		}
		s, ok := registry.Get(site)
		if !ok {
			return asf.GeoQuery{}, geojson.BBox{}, fmt.Errorf("unknown site %q, must be one of: %s", site, strings.Join(registry.Names(), ", "))
		}
		return geoQuery(s.BBox, s.Path, s.Start, s.End)
	}

	if bbox == "" || path == 0 || start == "" || end == "" {
		return asf.GeoQuery{}, geojson.BBox{}, errors.New("must provide all of --bbox, --path, --start, --end if not using --site")
	}
	b, err := geojson.ParseBBox(bbox)
	if err != nil {
		return asf.GeoQuery{}, geojson.BBox{}, err
	}
	startTime, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return asf.GeoQuery{}, geojson.BBox{}, fmt.Errorf("invalid --start: %w", err)
	}
	endTime, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return asf.GeoQuery{}, geojson.BBox{}, fmt.Errorf("invalid --end: %w", err)
	}
	return geoQuery(b, path, startTime, endTime)
}

func geoQuery(b geojson.BBox, path int, start, end time.Time) (asf.GeoQuery, geojson.BBox, error) {
	area, err := geojson.NewPolygonFromBBox(b)
	if err != nil {
		return asf.GeoQuery{}, geojson.BBox{}, err
	}
	return asf.GeoQuery{
		RelativeOrbit: path,
		Intersects:    area,
		Start:         start,
		End:           end,
	}, b, nil
}

// parseBounds parses --bounds. An empty flag is the zero box.
func parseBounds(s string) (geojson.BBox, error) {
	if strings.TrimSpace(s) == "" {
		return geojson.BBox{}, nil
	}
	b, err := geojson.ParseBBox(s)
	if err != nil {
		return geojson.BBox{}, fmt.Errorf("invalid --bounds: %w", err)
	}
	return b, nil
}

// splitGranules accepts granules as separate arguments or space separated
// within one argument.
func splitGranules(args []string) []string {
	var out []string
	for _, arg := range args {
		out = append(out, strings.Fields(arg)...)
	}
	return out
}
