// Package query answers the dashboard's read requests from committed store
// state.
package query

import (
	"context"
	"fmt"
	"time"

	"labjobs/common/telemetry"
	"labjobs/internal/errors"
	"labjobs/internal/models"
)

var tracer = telemetry.GetTracer("labjobs/query")

const (
	DefaultNewWindowDays     = 7
	DefaultRemovedWindowDays = 30
	MaxWindowDays            = 3650
)

type Store interface {
	ActivePostings(ctx context.Context) ([]models.Posting, error)
	ActivePostingsSince(ctx context.Context, since time.Time) ([]models.Posting, error)
	InactivePostingsSince(ctx context.Context, since time.Time) ([]models.Posting, error)
	History(ctx context.Context) ([]models.HistoryRecord, error)
	CountActiveByField(ctx context.Context, field string) ([]models.FieldCount, error)
	ListSources(ctx context.Context) ([]models.Source, error)
}

type TrendCalculator interface {
	ComputeTrends(ctx context.Context) ([]models.TrendRecord, error)
}

type Service struct {
	store  Store
	trends TrendCalculator
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(st Store, trends TrendCalculator, opts ...Option) *Service {
	s := &Service{
		store:  st,
		trends: trends,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActivePostings lists every active posting, newest first.
func (s *Service) ActivePostings(ctx context.Context) ([]models.Posting, error) {
	ctx, span := tracer.Start(ctx, "Service.ActivePostings")
	defer span.End()
	return s.store.ActivePostings(ctx)
}

// NewPostings lists active postings first seen within the last windowDays.
func (s *Service) NewPostings(ctx context.Context, windowDays int) ([]models.Posting, error) {
	ctx, span := tracer.Start(ctx, "Service.NewPostings")
	defer span.End()
	span.SetAttributes(telemetry.Int("window.days", windowDays))

	since, err := s.windowStart(windowDays)
	if err != nil {
		return nil, err
	}
	return s.store.ActivePostingsSince(ctx, since)
}

// RemovedPostings lists deactivated postings last seen within the last
// windowDays, most recently seen first.
func (s *Service) RemovedPostings(ctx context.Context, windowDays int) ([]models.Posting, error) {
	ctx, span := tracer.Start(ctx, "Service.RemovedPostings")
	defer span.End()
	span.SetAttributes(telemetry.Int("window.days", windowDays))

	since, err := s.windowStart(windowDays)
	if err != nil {
		return nil, err
	}
	return s.store.InactivePostingsSince(ctx, since)
}

func (s *Service) HistorySeries(ctx context.Context) ([]models.HistoryRecord, error) {
	ctx, span := tracer.Start(ctx, "Service.HistorySeries")
	defer span.End()
	return s.store.History(ctx)
}

// CountsByField groups active postings by "team" or "location".
func (s *Service) CountsByField(ctx context.Context, field string) ([]models.FieldCount, error) {
	ctx, span := tracer.Start(ctx, "Service.CountsByField")
	defer span.End()
	span.SetAttributes(telemetry.String("field", field))
	return s.store.CountActiveByField(ctx, field)
}

func (s *Service) Sources(ctx context.Context) ([]models.Source, error) {
	ctx, span := tracer.Start(ctx, "Service.Sources")
	defer span.End()

	labs, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	if labs == nil {
		labs = []models.Source{}
	}
	return labs, nil
}

func (s *Service) Trends(ctx context.Context) ([]models.TrendRecord, error) {
	return s.trends.ComputeTrends(ctx)
}

func (s *Service) windowStart(days int) (time.Time, error) {
	if days <= 0 || days > MaxWindowDays {
		return time.Time{}, errors.InvalidInput(fmt.Sprintf("window must be between 1 and %d days, got %d", MaxWindowDays, days), nil)
	}
	return s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour), nil
}
