package http

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observation"
)

type regionsResponse struct {
	Regions  []domain.Region  `json:"regions"`
	Overlaps []domain.Overlap `json:"overlaps"`
}

type optimalResponse struct {
	domain.SearchResponse
	Place string `json:"place,omitempty"`
}

type levelResponse struct {
	Status             string   `json:"status"`
	Region             string   `json:"region,omitempty"`
	Latitude           float64  `json:"latitude"`
	Longitude          float64  `json:"longitude"`
	Level              *float64 `json:"level,omitempty"`
	SkyBrightnessMPSAS *float64 `json:"sky_brightness_mpsas,omitempty"`
	ArtificialRatio    *float64 `json:"artificial_brightness_ratio,omitempty"`
}

type nearbyResponse struct {
	Query   domain.SiteQuery     `json:"query"`
	Results []observation.Nearby `json:"results"`
}

func (s *Server) handleRegions(w http.ResponseWriter, _ *http.Request) {
	overlaps := s.deps.Catalog.Overlaps()
	if overlaps == nil {
		overlaps = []domain.Overlap{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, regionsResponse{
		Regions:  s.deps.Catalog.Regions(),
		Overlaps: overlaps,
	})
}

// handleOptimal answers GET /v1/sites/optimal?lat=&lon=&radius_km=&top_n=
// or, with geocoding enabled, ?q=<place>&radius_km=. names=true attaches
// place names to the returned sites.
func (s *Server) handleOptimal(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	q, place, status, err := s.siteQuery(r.Context(), params)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.SearchTimeout)
	defer cancel()

	outcome, err := s.deps.Searcher.Search(ctx, q)
	if err != nil {
		s.logger.Error("site search failed", "lat", q.Lat, "lon", q.Lon, "radius_km", q.RadiusKm, "error", err)
		code := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
		sharedobs.WriteJSON(w, code, optimalResponse{SearchResponse: domain.FailedResponse(q, err), Place: place})
		return
	}

	if params.Get("names") == "true" {
		outcome.Results = domain.EnrichWithPlaceNames(r.Context(), outcome.Results, s.deps.Geocoder, s.logger)
	}

	sharedobs.WriteJSON(w, http.StatusOK, optimalResponse{
		SearchResponse: domain.NewSearchResponse(q, outcome),
		Place:          place,
	})
}

// siteQuery builds a normalized query from request parameters, resolving q=
// through the geocoder. The returned status applies when err is non-nil.
func (s *Server) siteQuery(ctx context.Context, params url.Values) (domain.SiteQuery, string, int, error) {
	var q domain.SiteQuery
	var place string

	if text := strings.TrimSpace(params.Get("q")); text != "" {
		if s.deps.Geocoder == nil {
			return q, "", http.StatusBadRequest, errors.New("place search requires geocoding to be enabled")
		}
		result, err := domain.LocatePlace(ctx, text, s.deps.Geocoder)
		if err != nil {
			if errors.Is(err, domain.ErrPlaceNotFound) {
				return q, "", http.StatusNotFound, err
			}
			s.logger.Warn("forward geocoding failed", "query", text, "error", err)
			return q, "", http.StatusBadGateway, errors.New("geocoding service unavailable")
		}
		q.Lat, q.Lon = result.Lat, result.Lon
		place = result.FormattedAddress
	} else {
		lat, lon, err := coordinates(params)
		if err != nil {
			return q, "", http.StatusBadRequest, err
		}
		q.Lat, q.Lon = lat, lon
	}

	var err error
	if q.RadiusKm, err = floatParam(params, "radius_km"); err != nil {
		return q, "", http.StatusBadRequest, err
	}
	if q.TopN, err = optionalIntParam(params, "top_n"); err != nil {
		return q, "", http.StatusBadRequest, err
	}

	q, err = s.deps.Limits.Normalize(q)
	if err != nil {
		return q, "", http.StatusBadRequest, err
	}
	return q, place, 0, nil
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := coordinates(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.SearchTimeout)
	defer cancel()

	level, err := s.deps.Searcher.LevelAt(ctx, lat, lon)
	if err != nil {
		s.logger.Error("level lookup failed", "lat", lat, "lon", lon, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"status": domain.StatusFailed,
			"error":  err.Error(),
		})
		return
	}

	resp := levelResponse{Status: domain.StatusUncovered, Latitude: lat, Longitude: lon}
	if level.Covered {
		resp.Status = domain.StatusComputed
		resp.Region = level.Region
		resp.Level = &level.Value
		if level.Entry.AvgMPSAS > 0 {
			resp.SkyBrightnessMPSAS = &level.Entry.AvgMPSAS
			resp.ArtificialRatio = &level.Entry.AvgLPI
		}
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	if s.deps.Observations == nil {
		writeError(w, http.StatusNotFound, "observation dataset is not configured")
		return
	}

	params := r.URL.Query()
	lat, lon, err := coordinates(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := domain.SiteQuery{Lat: lat, Lon: lon}
	if q.RadiusKm, err = floatParam(params, "radius_km"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.TopN, err = optionalIntParam(params, "top_n"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q, err = s.deps.Limits.Normalize(q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sharedobs.WriteJSON(w, http.StatusOK, nearbyResponse{
		Query:   q,
		Results: s.deps.Observations.FindNearby(q.Lat, q.Lon, q.RadiusKm, q.TopN),
	})
}

func coordinates(params url.Values) (lat, lon float64, err error) {
	if lat, err = floatParam(params, "lat"); err != nil {
		return 0, 0, err
	}
	if lon, err = floatParam(params, "lon"); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

func floatParam(params url.Values, name string) (float64, error) {
	raw := params.Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrInvalidQuery, name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidQuery, name)
	}
	return v, nil
}

func optionalIntParam(params url.Values, name string) (int, error) {
	raw := params.Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidQuery, name)
	}
	return v, nil
}
