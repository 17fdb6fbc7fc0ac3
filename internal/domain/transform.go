package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// QueryLimits bounds what a caller may ask of the search engine.
type QueryLimits struct {
	DefaultTopN int
	MaxTopN     int
	MaxRadiusKm float64
}

// DefaultQueryLimits mirrors the service defaults.
func DefaultQueryLimits() QueryLimits {
	return QueryLimits{DefaultTopN: 10, MaxTopN: 100, MaxRadiusKm: 500}
}

// Normalize validates a query and fills in the default result count.
// A top_n above the maximum is clamped rather than rejected.
func (l QueryLimits) Normalize(q SiteQuery) (SiteQuery, error) {
	if math.IsNaN(q.Lat) || q.Lat < -90 || q.Lat > 90 {
		return q, fmt.Errorf("%w: lat %v out of range [-90, 90]", ErrInvalidQuery, q.Lat)
	}
	if math.IsNaN(q.Lon) || q.Lon < -180 || q.Lon > 180 {
		return q, fmt.Errorf("%w: lon %v out of range [-180, 180]", ErrInvalidQuery, q.Lon)
	}
	if math.IsNaN(q.RadiusKm) || q.RadiusKm <= 0 {
		return q, fmt.Errorf("%w: radius_km must be positive", ErrInvalidQuery)
	}
	if l.MaxRadiusKm > 0 && q.RadiusKm > l.MaxRadiusKm {
		return q, fmt.Errorf("%w: radius_km %v exceeds maximum %v", ErrInvalidQuery, q.RadiusKm, l.MaxRadiusKm)
	}
	if q.TopN < 0 {
		return q, fmt.Errorf("%w: top_n must not be negative", ErrInvalidQuery)
	}
	if q.TopN == 0 {
		q.TopN = l.DefaultTopN
	}
	if l.MaxTopN > 0 && q.TopN > l.MaxTopN {
		q.TopN = l.MaxTopN
	}
	return q, nil
}

// ParseRawEvent deserializes a request message into a SiteQuery. Queries
// without an ID take the message key, or a deterministic hash of their fields.
func ParseRawEvent(raw RawEvent) (SiteQuery, error) {
	var q SiteQuery
	if err := json.Unmarshal(raw.Value, &q); err != nil {
		return SiteQuery{}, fmt.Errorf("parse site query: %w", err)
	}
	if q.ID == "" {
		q.ID = string(raw.Key)
	}
	if q.ID == "" {
		q.ID = generateID(q)
	}
	return q, nil
}

// generateID produces a deterministic ID from the query's fields so replays of
// the same request land on the same response key.
func generateID(q SiteQuery) string {
	input := fmt.Sprintf("%.6f|%.6f|%g|%d", q.Lat, q.Lon, q.RadiusKm, q.TopN)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:8])
}

// SerializeResponse marshals a SearchResponse into an OutputEvent keyed by query ID.
func SerializeResponse(resp SearchResponse) (OutputEvent, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize search response: %w", err)
	}
	return OutputEvent{
		Key:   []byte(resp.QueryID),
		Value: data,
		Headers: map[string]string{
			"status":      resp.Status,
			"computed_at": resp.ComputedAt.Format(time.RFC3339),
		},
	}, nil
}
