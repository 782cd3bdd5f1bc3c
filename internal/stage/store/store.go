// Package store implements the terminal pipeline stage: an upsert keyed by
// email. The upsert is the pipeline's sole idempotency mechanism — a
// redelivered lead converges to the same stored document instead of
// creating a duplicate.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/leadforge/lead-processing-pipeline/internal/lead"
	"github.com/leadforge/lead-processing-pipeline/internal/pipeline"
	"github.com/leadforge/lead-processing-pipeline/pkg/logger"
	"github.com/leadforge/lead-processing-pipeline/pkg/metrics"
)

// Upserter is the persistence contract the stage depends on.
type Upserter interface {
	Upsert(ctx context.Context, l *lead.Lead) (bool, error)
}

// Store holds the stage's repository and clock.
type Store struct {
	route   pipeline.Route
	repo    Upserter
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates the storage stage.
func New(repo Upserter, m *metrics.Metrics) (*Store, error) {
	route, err := pipeline.RouteFor(pipeline.StageStore)
	if err != nil {
		return nil, err
	}
	return &Store{
		route:   route,
		repo:    repo,
		now:     time.Now,
		metrics: m,
		logger:  logger.WithStage(string(route.Stage), route.Input),
	}, nil
}

// Route returns the stage's queue routing.
func (s *Store) Route() pipeline.Route {
	return s.route
}

// Handle persists the lead. createdAt is stamped here as a fallback when the
// ingress boundary did not set it. Terminal stage: nothing is published.
func (s *Store) Handle(ctx context.Context, l *lead.Lead, _ pipeline.Publisher) error {
	if l.CreatedAt == nil {
		now := s.now().UTC()
		l.CreatedAt = &now
	}

	inserted, err := s.repo.Upsert(ctx, l)
	if err != nil {
		return err
	}

	result := "updated"
	if inserted {
		result = "inserted"
	}
	if s.metrics != nil {
		s.metrics.LeadsStored.WithLabelValues(result).Inc()
	}
	s.logger.Info("lead stored", "email", l.Email, "result", result, "score", l.Score)
	return nil
}
