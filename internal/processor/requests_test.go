package processor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRequestArgs(t *testing.T) {
	gpu := 0
	tests := []struct {
		name   string
		req    Request
		module Module
		args   []string
	}{
		{
			name:   "create dem",
			req:    CreateDEM{DEMPath: "/w/elevation.dem", RSCPath: "/w/elevation.dem.rsc", North: 50, South: 45, West: -100, East: -90.5},
			module: ModuleCreateDEM,
			args:   []string{"/w/elevation.dem", "/w/elevation.dem.rsc", "50", "45", "-100", "-90.5"},
		},
		{
			name:   "back projection cpu",
			req:    BackProjectScene{Granule: "/w/S1A_X.SAFE", Orbit: "/w/orbit.EOF"},
			module: ModuleBackProjectCPU,
			args:   []string{"/w/S1A_X", "/w/orbit.EOF"},
		},
		{
			name:   "back projection gpu",
			req:    BackProjectScene{Granule: "/w/S1A_X.zip", Orbit: "/w/orbit.EOF", Device: &gpu},
			module: ModuleBackProjectGPU,
			args:   []string{"/w/S1A_X", "/w/orbit.EOF"},
		},
		{
			name:   "interferograms",
			req:    SBASInterferograms{PairList: "sbas_list", DEMRSC: "../elevation.dem.rsc", DEMWidth: 1000, DEMLength: 800, LooksDown: 6, LooksAcross: 2},
			module: ModuleSBASInterferograms,
			args:   []string{"sbas_list", "../elevation.dem.rsc", "1", "1", "1000", "800", "6", "2"},
		},
		{
			name:   "reduce dem",
			req:    ReduceDEM{Input: "../elevation.dem", Output: "dem", Width: 1000, AcrossFactor: 2, DownFactor: 6},
			module: ModuleReduceDEM,
			args:   []string{"../elevation.dem", "dem", "1000", "2", "6"},
		},
		{
			name:   "find reference points",
			req:    FindRefPoints{UnwrappedList: "unwlist", Width: 500, Length: 133, Threshold: 0.5},
			module: ModuleFindRefPoints,
			args:   []string{"unwlist", "500", "133", "0.5"},
		},
		{
			name:   "velocity",
			req:    SBASVelocity{UnwrappedList: "unwlist", NumUnwrapped: 12, NumScenes: 5, Width: 500, RefLocations: "ref_locs"},
			module: ModuleSBASVelocity,
			args:   []string{"unwlist", "12", "5", "500", "ref_locs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Module(); got != tt.module {
				t.Errorf("Module() = %s, want %s", got, tt.module)
			}
			if diff := cmp.Diff(tt.args, tt.req.Args()); diff != "" {
				t.Errorf("Args() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBackProjectScene_Environ(t *testing.T) {
	if env := (BackProjectScene{}).Environ(); env != nil {
		t.Errorf("CPU request should not set environment, got %v", env)
	}

	device := 2
	want := []string{"CUDA_DEVICE_ORDER=PCI_BUS_ID", "CUDA_VISIBLE_DEVICES=2"}
	if diff := cmp.Diff(want, BackProjectScene{Device: &device}.Environ()); diff != "" {
		t.Errorf("Environ() mismatch (-want +got):\n%s", diff)
	}
}
