package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/search"
)

// SiteTransformer implements Transformer by running each query through the
// search engine, with optional place-name enrichment of the results.
type SiteTransformer struct {
	searcher search.Searcher
	limits   domain.QueryLimits
	timeout  time.Duration
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewTransformer creates a SiteTransformer. Pass a nil geocoder to disable
// enrichment and a zero timeout to let searches run unbounded.
func NewTransformer(searcher search.Searcher, limits domain.QueryLimits, timeout time.Duration, geocoder domain.Geocoder, logger *slog.Logger) *SiteTransformer {
	return &SiteTransformer{
		searcher: searcher,
		limits:   limits,
		timeout:  timeout,
		geocoder: geocoder,
		logger:   logger,
	}
}

// Transform parses the query and serializes its answer. Only unparseable
// messages are errors; invalid queries and engine failures are answered with
// a failed response.
func (t *SiteTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	q, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	return domain.SerializeResponse(t.answer(ctx, q))
}

func (t *SiteTransformer) answer(ctx context.Context, q domain.SiteQuery) domain.SearchResponse {
	normalized, err := t.limits.Normalize(q)
	if err != nil {
		t.logger.Warn("rejecting invalid query", "query_id", q.ID, "error", err)
		return domain.FailedResponse(q, err)
	}

	searchCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	outcome, err := t.searcher.Search(searchCtx, normalized)
	if err != nil {
		t.logger.Error("site search failed", "query_id", normalized.ID, "error", err)
		return domain.FailedResponse(normalized, err)
	}

	outcome.Results = domain.EnrichWithPlaceNames(ctx, outcome.Results, t.geocoder, t.logger)
	return domain.NewSearchResponse(normalized, outcome)
}
