// Package reconcile runs sync cycles: every registered source is fetched,
// normalized and reconciled against the store in its own transaction.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"labjobs/common/telemetry"
	"labjobs/internal/config"
	"labjobs/internal/errors"
	"labjobs/internal/messaging"
	"labjobs/internal/models"
	"labjobs/internal/sources"
	"labjobs/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Store is the write side of store.Store.
type Store interface {
	Update(ctx context.Context, fn func(tx *store.Tx) error) error
}

type Engine struct {
	store        Store
	registry     *sources.Registry
	publisher    messaging.Publisher
	logger       *zap.Logger
	tracer       trace.Tracer
	fetchTimeout time.Duration
	now          func() time.Time

	mutex    sync.Mutex
	isActive bool
}

type Option func(*Engine)

// WithClock replaces time.Now as the source of cycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(st Store, registry *sources.Registry, publisher messaging.Publisher, logger *zap.Logger, config *config.Config, opts ...Option) *Engine {
	e := &Engine{
		store:        st,
		registry:     registry,
		publisher:    publisher,
		logger:       logger,
		tracer:       telemetry.GetTracer("labjobs/reconcile"),
		fetchTimeout: config.FetchTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Running reports whether a cycle is in progress.
func (e *Engine) Running() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.isActive
}

// RunSyncCycle reconciles every registered source once. A failing source is
// recorded in the report and leaves its stored data untouched; the other
// sources still commit. Only one cycle may run at a time.
func (e *Engine) RunSyncCycle(ctx context.Context) (*models.CycleReport, error) {
	e.mutex.Lock()
	if e.isActive {
		e.mutex.Unlock()
		return nil, errors.Unavailable("sync cycle already running", nil)
	}
	e.isActive = true
	e.mutex.Unlock()

	defer func() {
		e.mutex.Lock()
		e.isActive = false
		e.mutex.Unlock()
	}()

	ctx, span := e.tracer.Start(ctx, "Engine.RunSyncCycle")
	defer span.End()

	at := e.now().UTC()
	report := &models.CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: at,
	}
	span.SetAttributes(telemetry.String("cycle.id", report.CycleID))

	logger := e.logger.With(zap.String("cycle_id", report.CycleID))
	logger.Info("sync cycle started", zap.Int("sources", len(e.registry.Entries())))

	for _, entry := range e.registry.Entries() {
		if err := ctx.Err(); err != nil {
			report.Sources = append(report.Sources, failure(entry.ID, errors.Unavailable("sync cycle cancelled", err)))
			continue
		}
		report.Sources = append(report.Sources, e.syncSource(ctx, logger, entry, at))
	}
	report.FinishedAt = e.now().UTC()

	failed := len(report.Failed())
	span.SetAttributes(
		telemetry.Int("cycle.sources", len(report.Sources)),
		telemetry.Int("cycle.failed", failed),
	)
	logger.Info("sync cycle finished",
		zap.Int("succeeded", len(report.Sources)-failed),
		zap.Int("failed", failed),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))

	if e.publisher != nil {
		if err := e.publisher.PublishCycleReport(ctx, report); err != nil {
			logger.Warn("cycle report not published", zap.Error(err))
		}
	}

	return report, nil
}

func (e *Engine) syncSource(ctx context.Context, logger *zap.Logger, entry sources.Entry, at time.Time) models.SourceReport {
	ctx, span := e.tracer.Start(ctx, "Engine.syncSource")
	defer span.End()
	span.SetAttributes(telemetry.String("source.id", entry.ID))

	logger = logger.With(zap.String("source", entry.ID))

	postings, err := e.collect(ctx, entry)
	if err != nil {
		telemetry.Fail(span, err)
		logger.Warn("source fetch failed", zap.Error(err))
		return failure(entry.ID, err)
	}

	result, err := e.apply(ctx, entry.ID, postings, at)
	if err != nil {
		telemetry.Fail(span, err)
		logger.Error("source reconcile failed", zap.Error(err))
		report := failure(entry.ID, err)
		report.Fetched = len(postings)
		return report
	}

	span.SetAttributes(
		telemetry.Int("postings.fetched", len(postings)),
		telemetry.Int("postings.inserted", result.inserted),
		telemetry.Int("postings.deactivated", result.deactivated),
	)
	logger.Info("source reconciled",
		zap.Int("fetched", len(postings)),
		zap.Int("inserted", result.inserted),
		zap.Int("updated", result.updated),
		zap.Int("deactivated", result.deactivated))

	return models.SourceReport{
		SourceID:    entry.ID,
		Success:     true,
		Fetched:     len(postings),
		Inserted:    result.inserted,
		Updated:     result.updated,
		Deactivated: result.deactivated,
	}
}

// collect fetches and normalizes one source. Every returned posting has an
// id and a title, and ids are unique.
func (e *Engine) collect(ctx context.Context, entry sources.Entry) ([]models.NormalizedPosting, error) {
	fetchCtx := ctx
	if e.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
	}

	payload, err := entry.Adapter.Fetch(fetchCtx)
	if err != nil {
		if !errors.Is(err, errors.ErrTypeFetch) {
			err = errors.Fetch("fetching "+entry.ID, err)
		}
		return nil, err
	}

	raw, err := transform(entry.Adapter, payload)
	if err != nil {
		if !errors.Is(err, errors.ErrTypeParse) {
			err = errors.Parse("transforming "+entry.ID, err)
		}
		return nil, err
	}

	postings := make([]models.NormalizedPosting, 0, len(raw))
	index := make(map[string]int, len(raw))
	for i, p := range raw {
		p = p.WithDefaults()
		if p.ExternalID == "" {
			return nil, errors.Parse(fmt.Sprintf("posting %d from %s has no id", i, entry.ID), nil)
		}
		if p.Title == "" {
			return nil, errors.Parse(fmt.Sprintf("posting %q from %s has no title", p.ExternalID, entry.ID), nil)
		}
		// A repeated id keeps its last version.
		if j, ok := index[p.ExternalID]; ok {
			postings[j] = p
			continue
		}
		index[p.ExternalID] = len(postings)
		postings = append(postings, p)
	}
	return postings, nil
}

func transform(adapter sources.Adapter, payload models.RawPayload) (postings []models.NormalizedPosting, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Parse(fmt.Sprintf("transform panicked: %v", r), nil)
		}
	}()
	return adapter.Transform(payload)
}

type applyResult struct {
	inserted    int
	updated     int
	deactivated int
}

// apply writes one source's postings, deactivates the ones that
// disappeared, records today's count and stamps the source, all in one
// transaction.
func (e *Engine) apply(ctx context.Context, sourceID string, postings []models.NormalizedPosting, at time.Time) (applyResult, error) {
	var result applyResult

	err := e.store.Update(ctx, func(tx *store.Tx) error {
		result = applyResult{}

		previous, err := tx.ActivePostingIDs(ctx, sourceID)
		if err != nil {
			return err
		}

		seen := make(map[string]struct{}, len(postings))
		for _, p := range postings {
			inserted, err := tx.UpsertPosting(ctx, sourceID, p, at)
			if err != nil {
				return err
			}
			if inserted {
				result.inserted++
			} else {
				result.updated++
			}
			seen[p.ExternalID] = struct{}{}
		}

		var gone []string
		for id := range previous {
			if _, ok := seen[id]; !ok {
				gone = append(gone, id)
			}
		}
		sort.Strings(gone)
		if err := tx.DeactivatePostings(ctx, sourceID, gone); err != nil {
			return err
		}
		result.deactivated = len(gone)

		if err := tx.PutHistory(ctx, models.HistoryRecord{
			Date:     at.Format(models.HistoryDateLayout),
			SourceID: sourceID,
			JobCount: len(seen),
		}); err != nil {
			return err
		}

		return tx.TouchSource(ctx, sourceID, at)
	})

	return result, err
}

func failure(sourceID string, err error) models.SourceReport {
	return models.SourceReport{
		SourceID:  sourceID,
		ErrorType: string(errors.TypeOf(err)),
		Error:     err.Error(),
	}
}
