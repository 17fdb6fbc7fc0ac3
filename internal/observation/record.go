// Package observation reads citizen-science sky-brightness observations and
// finds the ones recorded near a point.
package observation

import (
	"strconv"
	"strings"
)

// Record is one row of a Globe-at-Night style observation export.
type Record struct {
	ID              string     `csv:"ID,omitempty"`
	ObsType         string     `csv:"ObsType,omitempty"`
	Latitude        float64    `csv:"Latitude"`
	Longitude       float64    `csv:"Longitude"`
	Elevation       string     `csv:"Elevation,omitempty"`
	UTDate          string     `csv:"UTDate,omitempty"`
	UTTime          string     `csv:"UTTime,omitempty"`
	LimitingMag     *float64   `csv:"LimitingMag,omitempty"`
	SQMReading      string     `csv:"SQMReading,omitempty"`
	CloudCover      CloudCover `csv:"CloudCover"`
	Constellation   string     `csv:"Constellation,omitempty"`
	SkyComment      string     `csv:"SkyComment,omitempty"`
	LocationComment string     `csv:"LocationComment,omitempty"`
	Country         string     `csv:"Country,omitempty"`
}

// Annotated is a Record extended with the pollution reading of the raster
// pixel under it. Missing values mean the point was not covered.
type Annotated struct {
	Record
	LightPollutionIndex *float64 `csv:"LightPollutionIndex,omitempty"`
	MinMPSAS            *float64 `csv:"min_mpsa,omitempty"`
	AvgMPSAS            *float64 `csv:"avg_mpsa,omitempty"`
	MinLPI              *float64 `csv:"min_lpi,omitempty"`
	AvgLPI              *float64 `csv:"avg_lpi,omitempty"`
}

// cloudFractions maps the descriptive cloud cover values of raw exports to
// the fraction of sky covered.
var cloudFractions = map[string]float64{
	"clear":           0,
	"1/4 of sky":      0.25,
	"1/2 of sky":      0.5,
	"over 1/2 of sky": 0.75,
}

// CloudCover is the fraction of sky covered by cloud. It accepts either the
// descriptive form or a number; anything else decodes as unknown.
type CloudCover struct {
	Fraction float64
	Known    bool
}

func (c *CloudCover) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if f, ok := cloudFractions[strings.ToLower(s)]; ok {
		*c = CloudCover{Fraction: f, Known: true}
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		*c = CloudCover{}
		return nil
	}
	*c = CloudCover{Fraction: f, Known: true}
	return nil
}

func (c CloudCover) MarshalText() ([]byte, error) {
	if !c.Known {
		return []byte{}, nil
	}
	return []byte(strconv.FormatFloat(c.Fraction, 'f', -1, 64)), nil
}

// Value returns the fraction or nil when unknown.
func (c CloudCover) Value() *float64 {
	if !c.Known {
		return nil
	}
	f := c.Fraction
	return &f
}
