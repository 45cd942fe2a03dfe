package dem

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// RSC is the geospatial metadata sidecar of a processor raster. Values are
// "KEY VALUE" lines.
type RSC struct {
	Width      int
	FileLength int
	XFirst     float64
	YFirst     float64
	XStep      float64
	YStep      float64
	XUnit      string
	YUnit      string
	Projection string

	// Values holds every key as written, including ones without a field.
	Values map[string]string
}

// ReadRSC parses an .rsc file. WIDTH and FILE_LENGTH are required.
func ReadRSC(path string) (*RSC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer f.Close()

	rsc := &RSC{Values: make(map[string]string)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		rsc.Values[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metadata file %s: %w", path, err)
	}

	if rsc.Width, err = rsc.intValue("WIDTH"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if rsc.FileLength, err = rsc.intValue("FILE_LENGTH"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	rsc.XFirst = rsc.floatValue("X_FIRST")
	rsc.YFirst = rsc.floatValue("Y_FIRST")
	rsc.XStep = rsc.floatValue("X_STEP")
	rsc.YStep = rsc.floatValue("Y_STEP")
	rsc.XUnit = rsc.Values["X_UNIT"]
	rsc.YUnit = rsc.Values["Y_UNIT"]
	rsc.Projection = rsc.Values["PROJECTION"]

	return rsc, nil
}

// Size returns (width, length) in pixels.
func (r *RSC) Size() (int, int) {
	return r.Width, r.FileLength
}

func (r *RSC) intValue(key string) (int, error) {
	raw, ok := r.Values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func (r *RSC) floatValue(key string) float64 {
	v, _ := strconv.ParseFloat(r.Values[key], 64)
	return v
}
