// Package trends compares each lab's current active count with its count a
// week earlier.
package trends

import (
	"context"
	"math"
	"time"

	"labjobs/common/telemetry"
	"labjobs/internal/models"
	"labjobs/internal/store"
)

var tracer = telemetry.GetTracer("labjobs/trends")

const lookback = 7 * 24 * time.Hour

// Reader is the read side of store.Store.
type Reader interface {
	View(ctx context.Context, fn func(tx *store.Tx) error) error
}

type Calculator struct {
	store Reader
	now   func() time.Time
}

type Option func(*Calculator)

func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		c.now = now
	}
}

func NewCalculator(st Reader, opts ...Option) *Calculator {
	c := &Calculator{store: st, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ComputeTrends returns one record per registered lab ordered by id. The
// week-ago count is the latest history entry dated at least seven days
// before today (UTC).
func (c *Calculator) ComputeTrends(ctx context.Context) ([]models.TrendRecord, error) {
	ctx, span := tracer.Start(ctx, "Calculator.ComputeTrends")
	defer span.End()

	cutoff := c.now().UTC().Add(-lookback).Format(models.HistoryDateLayout)

	var (
		labs    []models.Source
		current map[string]int
		weekAgo map[string]int
	)
	err := c.store.View(ctx, func(tx *store.Tx) error {
		var err error
		if labs, err = tx.ListSources(ctx); err != nil {
			return err
		}
		if current, err = tx.ActiveCountsBySource(ctx); err != nil {
			return err
		}
		weekAgo, err = tx.LatestCountsOnOrBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	records := make([]models.TrendRecord, 0, len(labs))
	for _, lab := range labs {
		var before *int
		if n, ok := weekAgo[lab.ID]; ok {
			before = &n
		}
		records = append(records, Compare(lab, current[lab.ID], before))
	}
	span.SetAttributes(telemetry.Int("trends.count", len(records)))
	return records, nil
}

// Compare builds the trend of one lab. weekAgo is nil when the lab has no
// history old enough.
func Compare(lab models.Source, current int, weekAgo *int) models.TrendRecord {
	rec := models.TrendRecord{
		SourceID:     lab.ID,
		SourceName:   lab.Name,
		SourceColor:  lab.Color,
		CurrentCount: current,
		Difference:   current,
	}

	if weekAgo == nil {
		return rec
	}
	before := *weekAgo
	rec.WeekAgoCount = &before
	rec.Difference = current - before
	if before > 0 {
		pct := percentChange(current, before)
		rec.PercentageChange = &pct
	}
	return rec
}

// percentChange is rounded to one decimal place.
func percentChange(current, before int) float64 {
	return math.Round(float64(current-before)/float64(before)*1000) / 10
}
