package domain

import (
	"fmt"
	"time"
)

const (
	siteConditions = "Lower light pollution compared to center"
)

// Outcome statuses carried by search responses.
const (
	StatusComputed  = "computed"
	StatusUncovered = "uncovered"
	StatusFailed    = "failed"
)

// SearchResult is one ranked candidate site.
type SearchResult struct {
	Name                string  `json:"name"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	DistanceKm          float64 `json:"distance_km"`
	LightPollutionIndex float64 `json:"light_pollution_index"`
	SkyBrightnessMPSAS  float64 `json:"sky_brightness_mpsas,omitempty"`
	Conditions          string  `json:"conditions"`
	PlaceName           string  `json:"place_name,omitempty"`
}

// NewSearchResult builds the record for the site ranked at position rank (1-based).
func NewSearchResult(rank int, lat, lon, distanceKm, level float64) SearchResult {
	r := SearchResult{
		Name:                fmt.Sprintf("Low-light spot #%d", rank),
		Latitude:            lat,
		Longitude:           lon,
		DistanceKm:          distanceKm,
		LightPollutionIndex: RoundTo(level, 2),
		Conditions:          siteConditions,
	}
	if e, ok := ScaleEntryForLevel(level); ok {
		r.SkyBrightnessMPSAS = e.AvgMPSAS
	}
	return r
}

// SiteQuery asks for the darkest sites around a point.
type SiteQuery struct {
	ID       string  `json:"id,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusKm float64 `json:"radius_km"`
	TopN     int     `json:"top_n"`
}

// SearchOutcome is the result of a site search that did not fail.
type SearchOutcome struct {
	Status        string         `json:"status"`
	Region        string         `json:"region,omitempty"`
	BaselineLevel float64        `json:"baseline_level"`
	Results       []SearchResult `json:"results"`
}

// Uncovered builds the outcome for a point outside every region.
func Uncovered() SearchOutcome {
	return SearchOutcome{Status: StatusUncovered, Results: []SearchResult{}}
}

// SearchResponse is the published answer to a SiteQuery.
type SearchResponse struct {
	QueryID string    `json:"query_id,omitempty"`
	Query   SiteQuery `json:"query"`
	SearchOutcome
	Error      string    `json:"error,omitempty"`
	ComputedAt time.Time `json:"computed_at"`
}

// NewSearchResponse stamps an outcome for the given query with the current time.
func NewSearchResponse(q SiteQuery, outcome SearchOutcome) SearchResponse {
	if outcome.Results == nil {
		outcome.Results = []SearchResult{}
	}
	return SearchResponse{
		QueryID:       q.ID,
		Query:         q,
		SearchOutcome: outcome,
		ComputedAt:    clock.Now().UTC(),
	}
}

// FailedResponse builds the response for a query the engine could not answer.
func FailedResponse(q SiteQuery, err error) SearchResponse {
	resp := NewSearchResponse(q, SearchOutcome{Status: StatusFailed})
	resp.Error = err.Error()
	return resp
}
