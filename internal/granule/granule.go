// Package granule parses Sentinel-1 scene identifiers.
//
// A scene name such as
//
//	S1A_IW_RAW__0SDV_20231229T134404_20231229T134436_051870_064437_4F42
//
// is split on underscores and read positionally: platform, beam mode,
// product type, an empty token, processing/polarisation class, start,
// stop, absolute orbit, mission data-take id and product id.
package granule

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidName is returned when a scene name lacks the positional tokens.
var ErrInvalidName = errors.New("invalid granule name")

// TimeLayout is the layout of the start and stop tokens.
const TimeLayout = "20060102T150405"

// RawSuffix is the processing-level suffix the catalog expects on raw product ids.
const RawSuffix = "-RAW"

// Cycle is the Sentinel-1 repeat cycle in orbits.
const Cycle = 175

const (
	tokenPlatform      = 0
	tokenBeamMode      = 1
	tokenProductType   = 2
	tokenStart         = 5
	tokenStop          = 6
	tokenAbsoluteOrbit = 7
	minTokens          = 10
)

var extensions = []string{".zip", ".geo", ".SAFE"}

// Granule is a parsed scene reference.
type Granule struct {
	Name          string
	Platform      string
	BeamMode      string
	ProductType   string
	Start         string
	Stop          string
	AbsoluteOrbit int
}

// SceneName strips directories, known product extensions and the -RAW suffix.
func SceneName(name string) string {
	base := filepath.Base(name)
	for _, ext := range extensions {
		if strings.HasSuffix(base, ext) {
			base = strings.TrimSuffix(base, ext)
			break
		}
	}
	return strings.TrimSuffix(base, RawSuffix)
}

// Parse extracts the positional fields from a scene name, file name or path.
func Parse(name string) (Granule, error) {
	scene := SceneName(name)
	tokens := strings.Split(scene, "_")
	if len(tokens) < minTokens {
		return Granule{}, fmt.Errorf("%w: %q has %d fields, expected at least %d", ErrInvalidName, name, len(tokens), minTokens)
	}

	orbit, err := strconv.Atoi(tokens[tokenAbsoluteOrbit])
	if err != nil {
		return Granule{}, fmt.Errorf("%w: absolute orbit %q: %v", ErrInvalidName, tokens[tokenAbsoluteOrbit], err)
	}

	return Granule{
		Name:          scene,
		Platform:      tokens[tokenPlatform],
		BeamMode:      tokens[tokenBeamMode],
		ProductType:   tokens[tokenProductType],
		Start:         tokens[tokenStart],
		Stop:          tokens[tokenStop],
		AbsoluteOrbit: orbit,
	}, nil
}

// RawFileID returns the catalog file id for a scene, adding -RAW when missing.
func RawFileID(name string) string {
	base := filepath.Base(name)
	for _, ext := range extensions {
		base = strings.TrimSuffix(base, ext)
	}
	if strings.HasSuffix(base, RawSuffix) {
		return base
	}
	return base + RawSuffix
}

// RelativeOrbit maps the absolute orbit onto the repeat cycle. S1A counts
// from an offset of 73, every other platform from 27.
func (g Granule) RelativeOrbit() int {
	offset := 27
	if g.Platform == "S1A" {
		offset = 73
	}
	rel := (g.AbsoluteOrbit - offset) % Cycle
	if rel < 0 {
		rel += Cycle
	}
	return rel + 1
}

// StartDate returns the date portion (YYYYMMDD) of the start token.
func (g Granule) StartDate() string {
	if len(g.Start) >= 8 {
		return g.Start[:8]
	}
	return g.Start
}

// StartTime parses the start token.
func (g Granule) StartTime() (time.Time, error) {
	return time.Parse(TimeLayout, g.Start)
}

// Span returns the earliest and latest start times across names and the
// relative orbit of the first parseable one. Unparseable names are skipped.
func Span(names []string) (start, end time.Time, relativeOrbit int) {
	for _, name := range names {
		g, err := Parse(name)
		if err != nil {
			continue
		}
		if relativeOrbit == 0 {
			relativeOrbit = g.RelativeOrbit()
		}
		t, err := g.StartTime()
		if err != nil {
			continue
		}
		if start.IsZero() || t.Before(start) {
			start = t
		}
		if end.IsZero() || t.After(end) {
			end = t
		}
	}
	return start, end, relativeOrbit
}

func (g Granule) String() string {
	return g.Name
}
