package asf

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// asfTimeFormat is the timestamp layout the search API accepts.
const asfTimeFormat = "2006-01-02T15:04:05Z"

// SearchParams are the search API filters used to find raw scenes.
type SearchParams struct {
	Platform        []string // e.g. "SENTINEL-1"
	ProcessingLevel []string // e.g. "RAW"
	BeamMode        []string
	Polarization    []string // e.g. "VV", "VV+VH"
	RelativeOrbit   []int

	// ProductList holds file ids ("<scene>-RAW").
	ProductList []string

	// IntersectsWith is a WKT geometry.
	IntersectsWith string
	Start          *time.Time
	End            *time.Time

	MaxResults int
	Output     string // default "geojson"
}

// ToQueryString encodes the parameters as a query string.
func (p *SearchParams) ToQueryString() string {
	return p.ToURLValues().Encode()
}

// ToURLValues converts the parameters to url.Values. List filters are comma
// joined except polarizations, whose '+' forces one parameter per value.
func (p *SearchParams) ToURLValues() url.Values {
	values := url.Values{}

	setList(values, "platform", p.Platform)
	setList(values, "processingLevel", p.ProcessingLevel)
	setList(values, "beamMode", p.BeamMode)
	setList(values, "product_list", p.ProductList)
	for _, pol := range p.Polarization {
		values.Add("polarization", pol)
	}
	if len(p.RelativeOrbit) > 0 {
		orbits := make([]string, len(p.RelativeOrbit))
		for i, ro := range p.RelativeOrbit {
			orbits[i] = strconv.Itoa(ro)
		}
		setList(values, "relativeOrbit", orbits)
	}

	if p.IntersectsWith != "" {
		values.Set("intersectsWith", p.IntersectsWith)
	}
	if p.Start != nil {
		values.Set("start", p.Start.UTC().Format(asfTimeFormat))
	}
	if p.End != nil {
		values.Set("end", p.End.UTC().Format(asfTimeFormat))
	}

	if p.MaxResults > 0 {
		values.Set("maxResults", strconv.Itoa(p.MaxResults))
	}
	output := p.Output
	if output == "" {
		output = "geojson"
	}
	values.Set("output", output)

	return values
}

func setList(values url.Values, key string, list []string) {
	if len(list) > 0 {
		values.Set(key, strings.Join(list, ","))
	}
}
