// Package timeseries turns a stack of GSLCs into an SBAS displacement and
// velocity product.
//
// The engine drives the processor through three forward-only stages in an
// sbas working directory: pair selection and interferogram formation,
// DEM decimation and unwrapping, then reference selection and inversion.
// Every stage relies on the files the previous one wrote.
package timeseries

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/robert-malhotra/hyp3-srg/internal/dem"
	"github.com/robert-malhotra/hyp3-srg/internal/processor"
)

// Fixed list files in the sbas directory.
const (
	PairListFile      = "sbas_list"
	SceneListFile     = "geolist"
	InterferogramList = "intlist"
	UnwrappedList     = "unwlist"
	RefLocationsFile  = "ref_locs"
	ReducedDEMFile    = "dem"
	ReducedRSCFile    = "dem.rsc"
)

// ErrAlreadyRun is returned when Run is called on an engine that has started.
var ErrAlreadyRun = errors.New("time series engine has already run")

// Stage is the last completed engine stage.
type Stage int

const (
	StageNone Stage = iota
	StagePairSelection
	StageUnwrap
	StageInversion
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StagePairSelection:
		return "pair-selection"
	case StageUnwrap:
		return "unwrap"
	case StageInversion:
		return "inversion"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Params tune the stacking run.
type Params struct {
	LooksDown       int     `json:"looks_down" yaml:"looks_down"`
	LooksAcross     int     `json:"looks_across" yaml:"looks_across"`
	TimeBaseline    int     `json:"time_baseline" yaml:"time_baseline"`
	SpatialBaseline int     `json:"spatial_baseline" yaml:"spatial_baseline"`
	Threshold       float64 `json:"threshold" yaml:"threshold"`
	TropoCorrection bool    `json:"tropo_correction" yaml:"tropo_correction"`
}

// DefaultParams returns 6x2 looks, 90 day / 1000 m baselines, a 0.5
// correlation threshold and tropospheric correction on.
func DefaultParams() Params {
	return Params{
		LooksDown:       6,
		LooksAcross:     2,
		TimeBaseline:    90,
		SpatialBaseline: 1000,
		Threshold:       0.5,
		TropoCorrection: true,
	}
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	if p.LooksDown <= 0 || p.LooksAcross <= 0 {
		return fmt.Errorf("looks must be positive, got %dx%d", p.LooksDown, p.LooksAcross)
	}
	if p.TimeBaseline <= 0 || p.SpatialBaseline <= 0 {
		return fmt.Errorf("baselines must be positive, got %d days and %d m", p.TimeBaseline, p.SpatialBaseline)
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("correlation threshold must be within [0, 1], got %g", p.Threshold)
	}
	return nil
}

// Engine runs one stacking job. It is not reusable.
type Engine struct {
	invoker processor.Invoker
	params  Params
	logger  *slog.Logger
	stage   Stage
	started bool
}

// NewEngine creates an engine.
func NewEngine(invoker processor.Invoker, params Params) *Engine {
	return &Engine{invoker: invoker, params: params, logger: slog.Default()}
}

// WithLogger sets a custom logger for the engine
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// Stage reports the last completed stage.
func (e *Engine) Stage() Stage {
	return e.stage
}

// Run executes every stage in sbasDir. demRSC is the full resolution DEM
// metadata; the DEM itself sits next to it.
func (e *Engine) Run(ctx context.Context, sbasDir, demRSC string) error {
	if e.started {
		return ErrAlreadyRun
	}
	e.started = true

	if err := e.params.Validate(); err != nil {
		return err
	}

	full, err := dem.ReadRSC(demRSC)
	if err != nil {
		return fmt.Errorf("failed to read DEM size: %w", err)
	}
	demWidth, demLength := full.Size()

	if err := e.selectPairs(ctx, sbasDir, demRSC, demWidth, demLength); err != nil {
		return err
	}
	e.advance(ctx, StagePairSelection)

	reduced, err := dem.ReadRSC(filepath.Join(sbasDir, ReducedRSCFile))
	if err != nil {
		return fmt.Errorf("failed to read interferogram size: %w", err)
	}
	unwWidth, unwLength := reduced.Size()

	demPath := strings.TrimSuffix(demRSC, ".rsc")
	if err := e.unwrap(ctx, sbasDir, demPath, demWidth, demLength, unwWidth, unwLength); err != nil {
		return err
	}
	e.advance(ctx, StageUnwrap)

	if err := e.invert(ctx, sbasDir, unwWidth, unwLength); err != nil {
		return err
	}
	e.advance(ctx, StageInversion)

	return nil
}

func (e *Engine) advance(ctx context.Context, s Stage) {
	e.stage = s
	e.logger.InfoContext(ctx, "time series stage complete", slog.String("stage", s.String()))
}

func (e *Engine) selectPairs(ctx context.Context, sbasDir, demRSC string, width, length int) error {
	if err := e.invoker.Invoke(ctx, processor.SBASList{
		TimeBaseline:    e.params.TimeBaseline,
		SpatialBaseline: e.params.SpatialBaseline,
	}, sbasDir); err != nil {
		return fmt.Errorf("pair selection failed: %w", err)
	}

	if err := e.invoker.Invoke(ctx, processor.SBASInterferograms{
		PairList:    PairListFile,
		DEMRSC:      relativeTo(sbasDir, demRSC),
		DEMWidth:    width,
		DEMLength:   length,
		LooksDown:   e.params.LooksDown,
		LooksAcross: e.params.LooksAcross,
	}, sbasDir); err != nil {
		return fmt.Errorf("interferogram formation failed: %w", err)
	}
	return nil
}

func (e *Engine) unwrap(ctx context.Context, sbasDir, demPath string, demWidth, demLength, unwWidth, unwLength int) error {
	across, err := Decimation(demWidth, unwWidth)
	if err != nil {
		return fmt.Errorf("width: %w", err)
	}
	down, err := Decimation(demLength, unwLength)
	if err != nil {
		return fmt.Errorf("length: %w", err)
	}
	if demWidth%unwWidth != 0 || demLength%unwLength != 0 {
		e.logger.WarnContext(ctx, "DEM size is not a whole multiple of the interferogram size, decimation truncates",
			slog.Int("dem_width", demWidth),
			slog.Int("dem_length", demLength),
			slog.Int("unw_width", unwWidth),
			slog.Int("unw_length", unwLength),
		)
	}

	if err := e.invoker.Invoke(ctx, processor.ReduceDEM{
		Input:        relativeTo(sbasDir, demPath),
		Output:       ReducedDEMFile,
		Width:        demWidth,
		AcrossFactor: across,
		DownFactor:   down,
	}, sbasDir); err != nil {
		return fmt.Errorf("DEM reduction failed: %w", err)
	}

	if err := e.invoker.Invoke(ctx, processor.UnwrapParallel{Width: unwWidth}, sbasDir); err != nil {
		return fmt.Errorf("unwrapping failed: %w", err)
	}
	return nil
}

func (e *Engine) invert(ctx context.Context, sbasDir string, width, length int) error {
	if err := e.invoker.Invoke(ctx, processor.SBASSetup{PairList: PairListFile, SceneList: SceneListFile}, sbasDir); err != nil {
		return fmt.Errorf("SBAS setup failed: %w", err)
	}

	if err := UnwrappedFromInterferograms(filepath.Join(sbasDir, InterferogramList), filepath.Join(sbasDir, UnwrappedList)); err != nil {
		return err
	}

	if err := e.invoker.Invoke(ctx, processor.FindRefPoints{
		UnwrappedList: UnwrappedList,
		Width:         width,
		Length:        length,
		Threshold:     e.params.Threshold,
	}, sbasDir); err != nil {
		return fmt.Errorf("reference point selection failed: %w", err)
	}

	if e.params.TropoCorrection {
		if err := e.invoker.Invoke(ctx, processor.TropoCorrect{
			UnwrappedList: UnwrappedList,
			Width:         width,
			Length:        length,
		}, sbasDir); err != nil {
			return fmt.Errorf("tropospheric correction failed: %w", err)
		}
	}

	numUnwrapped, err := countLines(filepath.Join(sbasDir, UnwrappedList))
	if err != nil {
		return err
	}
	numScenes, err := countLines(filepath.Join(sbasDir, SceneListFile))
	if err != nil {
		return err
	}

	if err := e.invoker.Invoke(ctx, processor.SBASVelocity{
		UnwrappedList: UnwrappedList,
		NumUnwrapped:  numUnwrapped,
		NumScenes:     numScenes,
		Width:         width,
		RefLocations:  RefLocationsFile,
	}, sbasDir); err != nil {
		return fmt.Errorf("velocity inversion failed: %w", err)
	}
	return nil
}

// Decimation returns the integer factor reducing full to reduced pixels.
func Decimation(full, reduced int) (int, error) {
	if reduced <= 0 {
		return 0, fmt.Errorf("reduced size must be positive, got %d", reduced)
	}
	factor := full / reduced
	if factor == 0 {
		return 0, fmt.Errorf("reduced size %d exceeds full size %d", reduced, full)
	}
	return factor, nil
}

// UnwrappedFromInterferograms writes dst as a copy of src with every "int"
// replaced by "unw", naming the unwrapped counterpart of each interferogram.
func UnwrappedFromInterferograms(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read interferogram list: %w", err)
	}
	out := strings.ReplaceAll(string(data), "int", "unw")
	if err := os.WriteFile(dst, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write unwrapped list: %w", err)
	}
	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return n, nil
}

// relativeTo expresses path relative to dir when possible.
func relativeTo(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return path
	}
	return rel
}
