package dem

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/hyp3-srg/internal/processor"
	"github.com/robert-malhotra/hyp3-srg/internal/processor/processortest"
	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

type fakeFetcher struct {
	calls []string
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, uri, dest string) error {
	f.calls = append(f.calls, uri)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dest, []byte("geoid"), 0o644)
}

func TestProcessorOrder(t *testing.T) {
	tests := [][4]float64{
		{-100, 45, -90, 50},
		{101.5, -34.3, 156.8, -25.9},
		{0.1, 0.2, 0.3, 0.4},
	}
	for _, in := range tests {
		b := geojson.BBox{MinLon: in[0], MinLat: in[1], MaxLon: in[2], MaxLat: in[3]}
		got := ProcessorOrder(b)
		want := [4]float64{in[3], in[1], in[0], in[2]}
		if got != want {
			t.Errorf("ProcessorOrder(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestDownload(t *testing.T) {
	procHome := t.TempDir()
	work := t.TempDir()
	rec := processortest.NewRecorder()
	fetcher := &fakeFetcher{}
	p := NewProvisioner(rec, fetcher, procHome)

	bounds := geojson.BBox{MinLon: -100, MinLat: 45, MaxLon: -90, MaxLat: 50}
	demPath, err := p.Download(context.Background(), bounds, work)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, DEMFile), demPath)

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, processor.ModuleCreateDEM, calls[0].Module)
	assert.Equal(t, work, calls[0].WorkDir)
	want := []string{filepath.Join(work, DEMFile), filepath.Join(work, RSCFile), "50", "45", "-100", "-90"}
	if diff := cmp.Diff(want, calls[0].Args); diff != "" {
		t.Errorf("CreateDEM args mismatch (-want +got):\n%s", diff)
	}

	written, err := os.ReadFile(filepath.Join(work, BoundsFile))
	require.NoError(t, err)
	assert.Equal(t, "-100 45 -90 50", string(written))

	assert.Equal(t, []string{DefaultGeoidURL}, fetcher.calls)
	assert.FileExists(t, filepath.Join(procHome, "DEM", "egm2008_geoid_grid"))

	// The geoid grid is only fetched once.
	_, err = p.Download(context.Background(), bounds, work)
	require.NoError(t, err)
	assert.Len(t, fetcher.calls, 1)
}

func TestDownload_InvalidBounds(t *testing.T) {
	bad := []geojson.BBox{
		{MinLon: 0, MinLat: 1, MaxLon: -1, MaxLat: 1},
		{MinLon: 1, MinLat: 0, MaxLon: 1, MaxLat: 2},
		{MinLon: 0, MinLat: 2, MaxLon: 1, MaxLat: 1},
		{MinLon: math.NaN(), MinLat: 0, MaxLon: 1, MaxLat: 1},
		{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: math.NaN()},
	}

	for _, b := range bad {
		rec := processortest.NewRecorder()
		fetcher := &fakeFetcher{}
		work := t.TempDir()
		p := NewProvisioner(rec, fetcher, t.TempDir())

		_, err := p.Download(context.Background(), b, work)
		require.Error(t, err)
		assert.True(t, errors.Is(err, geojson.ErrInvalidBoundingBox))
		assert.Empty(t, rec.Calls(), "no processor call for %v", b.Slice())
		assert.Empty(t, fetcher.calls, "no network call for %v", b.Slice())
		assert.NoFileExists(t, filepath.Join(work, BoundsFile))
	}
}

func TestDownload_GeoidFailure(t *testing.T) {
	rec := processortest.NewRecorder()
	p := NewProvisioner(rec, &fakeFetcher{err: errors.New("403")}, t.TempDir())

	_, err := p.Download(context.Background(), geojson.BBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geoid")
	assert.Empty(t, rec.Calls())
}

func TestProvision_WritesParams(t *testing.T) {
	work := t.TempDir()
	p := NewProvisioner(processortest.NewRecorder(), &fakeFetcher{}, t.TempDir())

	artifact, err := p.Provision(context.Background(), geojson.BBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}, work)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, ParamsFile), artifact.Params)
	assert.Equal(t, filepath.Join(work, RSCFile), artifact.RSC)
}

func TestWriteParams(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteParams("/data/elevation.dem", "/data/elevation.dem.rsc", dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	assert.Equal(t, []string{"/data/elevation.dem", "/data/elevation.dem.rsc"}, lines)
}

func TestReadBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), BoundsFile)
	require.NoError(t, os.WriteFile(path, []byte("-100.0 45.0 -90.0 50.0"), 0o644))

	b, err := ReadBounds(path)
	require.NoError(t, err)
	assert.Equal(t, geojson.BBox{MinLon: -100, MinLat: 45, MaxLon: -90, MaxLat: 50}, b)
}

func TestReadRSC(t *testing.T) {
	path := filepath.Join(t.TempDir(), RSCFile)
	content := `WIDTH         3601
FILE_LENGTH   1801
X_FIRST       -100.0
Y_FIRST       50.0
X_STEP        0.000277777777
Y_STEP        -0.000277777777
X_UNIT        degrees
Y_UNIT        degrees
Z_OFFSET      0
Z_SCALE       1
PROJECTION    LL
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rsc, err := ReadRSC(path)
	require.NoError(t, err)
	w, l := rsc.Size()
	assert.Equal(t, 3601, w)
	assert.Equal(t, 1801, l)
	assert.Equal(t, -100.0, rsc.XFirst)
	assert.Equal(t, "degrees", rsc.XUnit)
	assert.Equal(t, "LL", rsc.Projection)
	assert.Equal(t, "1", rsc.Values["Z_SCALE"])
}

func TestReadRSC_MissingWidth(t *testing.T) {
	path := filepath.Join(t.TempDir(), RSCFile)
	require.NoError(t, os.WriteFile(path, []byte("FILE_LENGTH 10\n"), 0o644))

	_, err := ReadRSC(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WIDTH")
}
