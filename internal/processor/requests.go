package processor

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Module is the path of an external processor module relative to the
// processor home directory.
type Module string

// Known processor modules.
const (
	ModuleCreateDEM          Module = "DEM/createDEMcop.py"
	ModuleBackProjectCPU     Module = "sentinel/sentinel_scene_cpu.py"
	ModuleBackProjectGPU     Module = "sentinel/sentinel_scene_multigpu.py"
	ModuleHowManyGPUs        Module = "sentinel/howmanygpus"
	ModuleMergeSLCs          Module = "util/merge_slcs.py"
	ModuleSBASList           Module = "sentinel/sbas_list.py"
	ModuleSBASInterferograms Module = "sentinel/ps_sbas_igrams.py"
	ModuleReduceDEM          Module = "util/nbymi2"
	ModuleUnwrapParallel     Module = "util/unwrap_parallel.py"
	ModuleSBASSetup          Module = "sbas/sbas_setup.py"
	ModuleFindRefPoints      Module = "int/findrefpoints"
	ModuleTropoCorrect       Module = "int/tropocorrect.py"
	ModuleSBASVelocity       Module = "sbas/sbas"
)

// Request is one typed invocation of a processor module.
type Request interface {
	Module() Module
	Args() []string
}

// EnvRequest is a Request that adds variables to the child environment.
type EnvRequest interface {
	Request
	Environ() []string
}

// CreateDEM materializes elevation data for a box given in processor axis
// order (north, south, west, east).
type CreateDEM struct {
	DEMPath string
	RSCPath string
	North   float64
	South   float64
	West    float64
	East    float64
}

func (CreateDEM) Module() Module { return ModuleCreateDEM }

func (r CreateDEM) Args() []string {
	return []string{r.DEMPath, r.RSCPath, ftoa(r.North), ftoa(r.South), ftoa(r.West), ftoa(r.East)}
}

// BackProjectScene projects one raw scene. A nil Device selects the CPU module.
type BackProjectScene struct {
	Granule string
	Orbit   string
	Device  *int
}

func (r BackProjectScene) Module() Module {
	if r.Device != nil {
		return ModuleBackProjectGPU
	}
	return ModuleBackProjectCPU
}

// Args passes the granule path without its extension, then the orbit path.
func (r BackProjectScene) Args() []string {
	return []string{strings.TrimSuffix(r.Granule, filepath.Ext(r.Granule)), r.Orbit}
}

// Environ pins the visible CUDA device for GPU runs.
func (r BackProjectScene) Environ() []string {
	if r.Device == nil {
		return nil
	}
	return []string{
		"CUDA_DEVICE_ORDER=PCI_BUS_ID",
		"CUDA_VISIBLE_DEVICES=" + strconv.Itoa(*r.Device),
	}
}

// MergeSLCs combines the per-scene outputs in the working directory.
type MergeSLCs struct{}

func (MergeSLCs) Module() Module { return ModuleMergeSLCs }
func (MergeSLCs) Args() []string { return nil }

// SBASList selects interferogram pairs within the baseline thresholds.
type SBASList struct {
	TimeBaseline    int
	SpatialBaseline int
}

func (SBASList) Module() Module { return ModuleSBASList }

func (r SBASList) Args() []string {
	return []string{strconv.Itoa(r.TimeBaseline), strconv.Itoa(r.SpatialBaseline)}
}

// SBASInterferograms forms wrapped interferograms for the selected pairs.
type SBASInterferograms struct {
	PairList    string
	DEMRSC      string
	DEMWidth    int
	DEMLength   int
	LooksDown   int
	LooksAcross int
}

func (SBASInterferograms) Module() Module { return ModuleSBASInterferograms }

func (r SBASInterferograms) Args() []string {
	return []string{
		r.PairList, r.DEMRSC, "1", "1",
		strconv.Itoa(r.DEMWidth), strconv.Itoa(r.DEMLength),
		strconv.Itoa(r.LooksDown), strconv.Itoa(r.LooksAcross),
	}
}

// ReduceDEM decimates the full resolution DEM to the interferogram grid.
type ReduceDEM struct {
	Input        string
	Output       string
	Width        int
	AcrossFactor int
	DownFactor   int
}

func (ReduceDEM) Module() Module { return ModuleReduceDEM }

func (r ReduceDEM) Args() []string {
	return []string{r.Input, r.Output, strconv.Itoa(r.Width), strconv.Itoa(r.AcrossFactor), strconv.Itoa(r.DownFactor)}
}

// UnwrapParallel unwraps every interferogram in the working directory.
type UnwrapParallel struct {
	Width int
}

func (UnwrapParallel) Module() Module { return ModuleUnwrapParallel }
func (r UnwrapParallel) Args() []string { return []string{strconv.Itoa(r.Width)} }

// SBASSetup builds the SBAS list structure from the pair and scene lists.
type SBASSetup struct {
	PairList  string
	SceneList string
}

func (SBASSetup) Module() Module { return ModuleSBASSetup }
func (r SBASSetup) Args() []string { return []string{r.PairList, r.SceneList} }

// FindRefPoints picks reference locations above a correlation threshold.
type FindRefPoints struct {
	UnwrappedList string
	Width         int
	Length        int
	Threshold     float64
}

func (FindRefPoints) Module() Module { return ModuleFindRefPoints }

func (r FindRefPoints) Args() []string {
	return []string{r.UnwrappedList, strconv.Itoa(r.Width), strconv.Itoa(r.Length), ftoa(r.Threshold)}
}

// TropoCorrect applies the tropospheric correction to unwrapped interferograms.
type TropoCorrect struct {
	UnwrappedList string
	Width         int
	Length        int
}

func (TropoCorrect) Module() Module { return ModuleTropoCorrect }

func (r TropoCorrect) Args() []string {
	return []string{r.UnwrappedList, strconv.Itoa(r.Width), strconv.Itoa(r.Length)}
}

// SBASVelocity inverts the unwrapped stack for displacement and velocity.
type SBASVelocity struct {
	UnwrappedList string
	NumUnwrapped  int
	NumScenes     int
	Width         int
	RefLocations  string
}

func (SBASVelocity) Module() Module { return ModuleSBASVelocity }

func (r SBASVelocity) Args() []string {
	return []string{
		r.UnwrappedList,
		strconv.Itoa(r.NumUnwrapped),
		strconv.Itoa(r.NumScenes),
		strconv.Itoa(r.Width),
		r.RefLocations,
	}
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
