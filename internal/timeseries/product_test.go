package timeseries

import (
	"archive/zip"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

var testGranules = []string{
	"S1A_IW_RAW__0SDV_001_003_054532_06A2F8_8276.zip",
	"S1A_IW_RAW__0SDV_004_005_054882_06AF26_2CE5.zip",
	"S1A_IW_RAW__0SDV_010_020_055057_06B527_1346.zip",
}

func TestProductName(t *testing.T) {
	tests := []struct {
		name   string
		bounds geojson.BBox
		prefix string
	}{
		{
			name:   "western northern",
			bounds: geojson.BBox{MinLon: -100, MinLat: 45, MaxLon: -90, MaxLat: 50},
			prefix: "S1_SRG_SBAS_35_W100_0_N45_0_W090_0_N50_0_001_010",
		},
		{
			name:   "eastern southern",
			bounds: geojson.BBox{MinLon: 101.5123, MinLat: -34.333, MaxLon: 56.866, MaxLat: -25.8897},
			prefix: "S1_SRG_SBAS_35_E101_5_S34_3_E056_9_S25_9_001_010",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, err := ProductName(testGranules, tt.bounds, "AB12")
			require.NoError(t, err)
			assert.Equal(t, tt.prefix+"_AB12", name)
		})
	}
}

func TestProductName_OtherPlatform(t *testing.T) {
	name, err := ProductName([]string{"S1B_IW_RAW__0SDV_002_003_000027_06A2F8_8276"}, geojson.BBox{MinLon: 1, MinLat: 2, MaxLon: 3, MaxLat: 4}, "0000")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "S1_SRG_SBAS_1_E001_0_N02_0_E003_0_N04_0_002_002_"), name)
}

func TestProductName_Errors(t *testing.T) {
	_, err := ProductName(nil, geojson.BBox{}, "0000")
	assert.Error(t, err)
	_, err = ProductName([]string{"not_a_granule"}, geojson.BBox{}, "0000")
	assert.Error(t, err)
}

func TestNewSuffix(t *testing.T) {
	s, err := NewSuffix()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{4}$`), s)
}

func TestPackage(t *testing.T) {
	work := t.TempDir()
	sbas := filepath.Join(work, "sbas")
	require.NoError(t, os.Mkdir(sbas, 0o755))
	for _, f := range ProductFiles {
		writeFile(t, filepath.Join(sbas, f), f)
	}

	bounds := geojson.BBox{MinLon: -100, MinLat: 45, MaxLon: -90, MaxLat: 50}
	product, err := Package(testGranules, bounds, work)
	require.NoError(t, err)

	assert.Regexp(t, `^S1_SRG_SBAS_35_W100_0_N45_0_W090_0_N50_0_001_010_[0-9A-F]{4}$`, product.Name)
	assert.Equal(t, filepath.Join(work, product.Name+".zip"), product.Archive)
	assert.DirExists(t, product.Dir)
	assert.Equal(t, 35, product.Orbit)
	assert.Equal(t, "S1A_IW_RAW__0SDV_001_003_054532_06A2F8_8276", product.Manifest.Granules[0])

	zr, err := zip.OpenReader(product.Archive)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, append(append([]string{}, ProductFiles...), product.Name+".txt"), names)
}

func TestPackage_MissingOutput(t *testing.T) {
	work := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(work, "sbas"), 0o755))

	_, err := Package(testGranules, geojson.BBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}, work)
	assert.Error(t, err)
}
