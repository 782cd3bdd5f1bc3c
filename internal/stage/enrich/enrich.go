// Package enrich implements the third pipeline stage: best-effort
// geolocation and company lookups, memoized in a TTL cache, followed by a
// deterministic lead score. A lookup failure leaves its field absent but
// never aborts the stage.
package enrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/leadforge/lead-processing-pipeline/internal/lead"
	"github.com/leadforge/lead-processing-pipeline/internal/pipeline"
	"github.com/leadforge/lead-processing-pipeline/pkg/logger"
	"github.com/leadforge/lead-processing-pipeline/pkg/metrics"
)

// Enricher holds the stage's lookup clients and cache.
type Enricher struct {
	route   pipeline.Route
	geo     *GeoClient
	cache   Cache
	group   singleflight.Group
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates the enrichment stage around a geolocation client and a cache.
func New(geo *GeoClient, cache Cache, m *metrics.Metrics) (*Enricher, error) {
	route, err := pipeline.RouteFor(pipeline.StageEnrich)
	if err != nil {
		return nil, err
	}
	return &Enricher{
		route:   route,
		geo:     geo,
		cache:   cache,
		now:     time.Now,
		metrics: m,
		logger:  logger.WithStage(string(route.Stage), route.Input),
	}, nil
}

// Route returns the stage's queue routing.
func (e *Enricher) Route() pipeline.Route {
	return e.route
}

// Handle augments the lead with geolocation and company info, stamps
// enrichedAt, computes the score, and forwards to the storage queue.
func (e *Enricher) Handle(ctx context.Context, l *lead.Lead, pub pipeline.Publisher) error {
	if l.IP != "" && l.Geolocation == nil {
		geo, err := cachedLookup(ctx, e, "geo:"+l.IP, func(ctx context.Context) (*lead.Geolocation, error) {
			return e.geo.Lookup(ctx, l.IP)
		})
		if err != nil {
			e.logger.Warn("geolocation lookup failed", "ip", l.IP, "error", err)
		} else {
			l.Geolocation = geo
		}
	}

	if domain := l.EmailDomain(); domain != "" && l.CompanyInfo == nil {
		company, err := cachedLookup(ctx, e, "company:"+domain, func(context.Context) (*lead.CompanyInfo, error) {
			return CompanyFromDomain(domain), nil
		})
		if err != nil {
			e.logger.Warn("company lookup failed", "domain", domain, "error", err)
		} else if company != nil {
			l.CompanyInfo = company
		}
	}

	now := e.now().UTC()
	l.EnrichedAt = &now
	l.Score = Score(l)
	if e.metrics != nil {
		e.metrics.LeadScore.Observe(float64(l.Score))
	}

	if err := pub.PublishLead(ctx, e.route.Output, l); err != nil {
		return err
	}
	e.logger.Info("lead enriched", "email", l.Email, "score", l.Score)
	return nil
}

// cachedLookup memoizes fetch under key with singleflight so concurrent
// leads sharing an IP or domain trigger a single upstream call.
func cachedLookup[T any](ctx context.Context, e *Enricher, key string, fetch func(ctx context.Context) (*T, error)) (*T, error) {
	if data, ok := e.cache.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			if e.metrics != nil {
				e.metrics.CacheHitsTotal.Inc()
			}
			return &v, nil
		}
	}
	if e.metrics != nil {
		e.metrics.CacheMissesTotal.Inc()
	}

	val, err, _ := e.group.Do(key, func() (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if v != nil {
			if data, merr := json.Marshal(v); merr == nil {
				e.cache.Set(ctx, key, data)
			}
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*T), nil
}
