package asf

import (
	"encoding/json"

	"github.com/robert-malhotra/hyp3-srg/pkg/geojson"
)

// ASFGeoJSONResponse represents ASF's GeoJSON FeatureCollection response
type ASFGeoJSONResponse struct {
	Type     string       `json:"type"` // "FeatureCollection"
	Features []ASFFeature `json:"features"`
}

// ASFFeature represents a single ASF search result feature
type ASFFeature struct {
	Type       string            `json:"type"` // "Feature"
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties ASFProperties     `json:"properties"`
}

// ASFProperties contains the ASF metadata the pipeline reads.
type ASFProperties struct {
	SceneName string `json:"sceneName"`
	FileID    string `json:"fileID"`
	Platform  string `json:"platform"`

	BeamModeType string `json:"beamModeType"`
	Polarization string `json:"polarization"`

	FlightDirection string `json:"flightDirection"`
	FrameNumber     *int   `json:"frameNumber"`
	AbsoluteOrbit   *int   `json:"absoluteOrbit"`
	PathNumber      *int   `json:"pathNumber"`

	ProcessingLevel string `json:"processingLevel"`

	StartTime string `json:"startTime"`
	StopTime  string `json:"stopTime"`

	URL      string          `json:"url"`
	FileName string          `json:"fileName"`
	Bytes    json.RawMessage `json:"bytes"` // Can be int64 or string depending on ASF response
	MD5Sum   string          `json:"md5sum"`
}
