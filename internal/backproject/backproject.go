// Package backproject runs the per-scene back-projection step and assembles
// GSLC products.
package backproject

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/robert-malhotra/hyp3-srg/internal/dem"
	"github.com/robert-malhotra/hyp3-srg/internal/packager"
	"github.com/robert-malhotra/hyp3-srg/internal/processor"
)

// ProcessName is recorded in every GSLC product manifest.
const ProcessName = "back-projection"

// RequiredFiles must be in the working directory before any scene runs.
var RequiredFiles = []string{dem.DEMFile, dem.RSCFile, dem.ParamsFile}

// CleanupPatterns match the per-scene scratch files the processor leaves behind.
var CleanupPatterns = []string{"*hgt*", "dem*", "DEM*", "q*", "*positionburst*"}

// Pair is a raw granule and its orbit file.
type Pair struct {
	Granule string
	Orbit   string
}

// Orchestrator back-projects scenes in a working directory.
type Orchestrator struct {
	invoker processor.Invoker
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(invoker processor.Invoker) *Orchestrator {
	return &Orchestrator{invoker: invoker, logger: slog.Default()}
}

// WithLogger sets a custom logger for the orchestrator
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// CheckRequiredFiles returns an fs.ErrNotExist error naming the first
// missing required file.
func CheckRequiredFiles(workDir string) error {
	for _, name := range RequiredFiles {
		if _, err := os.Stat(filepath.Join(workDir, name)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("missing required file %s: %w", name, fs.ErrNotExist)
			}
			return fmt.Errorf("failed to check required file %s: %w", name, err)
		}
	}
	return nil
}

// Cleanup removes regular files matching CleanupPatterns.
func Cleanup(workDir string) error {
	for _, pattern := range CleanupPatterns {
		matches, err := filepath.Glob(filepath.Join(workDir, pattern))
		if err != nil {
			return fmt.Errorf("invalid cleanup pattern %q: %w", pattern, err)
		}
		for _, path := range matches {
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
			}
		}
	}
	return nil
}

// BackProjectScene runs one scene and sweeps its scratch files. device
// selects the GPU module; nil runs on the CPU.
func (o *Orchestrator) BackProjectScene(ctx context.Context, pair Pair, workDir string, device *int) error {
	if err := CheckRequiredFiles(workDir); err != nil {
		return err
	}
	return o.run(ctx, pair, workDir, device)
}

// BackProject runs every pair in order in the shared working directory.
// Scenes never overlap: the processor's scratch names are fixed.
func (o *Orchestrator) BackProject(ctx context.Context, pairs []Pair, workDir string, device *int) error {
	if err := CheckRequiredFiles(workDir); err != nil {
		return err
	}
	for i, pair := range pairs {
		o.logger.InfoContext(ctx, "back-projecting scene",
			slog.Int("index", i+1),
			slog.Int("total", len(pairs)),
			slog.String("granule", filepath.Base(pair.Granule)),
		)
		if err := o.run(ctx, pair, workDir, device); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, pair Pair, workDir string, device *int) error {
	req := processor.BackProjectScene{Granule: pair.Granule, Orbit: pair.Orbit, Device: device}
	if err := o.invoker.Invoke(ctx, req, workDir); err != nil {
		return fmt.Errorf("back-projection of %s failed: %w", filepath.Base(pair.Granule), err)
	}
	if err := Cleanup(workDir); err != nil {
		return fmt.Errorf("cleanup after %s failed: %w", filepath.Base(pair.Granule), err)
	}
	return nil
}

// FindGSLC returns the merged GSLC (S1*.geo) in workDir.
func FindGSLC(workDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(workDir, "S1*.geo"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no GSLC (S1*.geo) in %s: %w", workDir, fs.ErrNotExist)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// Product is a packaged GSLC.
type Product struct {
	Name     string
	Archive  string
	Manifest packager.Manifest
}

// CreateProduct packages the merged GSLC with its orbit timing, DEM
// metadata, bounds and a manifest naming the input granules.
func CreateProduct(workDir string, granules []string) (*Product, error) {
	gslc, err := FindGSLC(workDir)
	if err != nil {
		return nil, err
	}
	name := trimExt(filepath.Base(gslc))

	manifest := packager.Manifest{Process: ProcessName, Granules: granules}
	entries := packager.Files(workDir,
		filepath.Base(gslc),
		name+".orbtiming",
		dem.RSCFile,
		dem.BoundsFile,
	)

	archive, err := packager.Package(entries, manifest, name, workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to package %s: %w", name, err)
	}
	return &Product{Name: name, Archive: archive, Manifest: manifest}, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
