package sources

import (
	"context"
	"fmt"
	"time"

	"labjobs/common/cache"
	"labjobs/common/telemetry"
	"labjobs/internal/models"

	"go.uber.org/zap"
)

// cachedAdapter serves Fetch from the cache while the last payload is fresh.
// Cache failures are logged and fall through to the source.
type cachedAdapter struct {
	Adapter
	sourceID string
	cache    cache.Cache
	ttl      time.Duration
	logger   *zap.Logger
}

// WithCache wraps a so fetched payloads are kept in c for ttl.
func WithCache(a Adapter, sourceID string, c cache.Cache, ttl time.Duration, logger *zap.Logger) Adapter {
	return &cachedAdapter{
		Adapter:  a,
		sourceID: sourceID,
		cache:    c,
		ttl:      ttl,
		logger:   logger,
	}
}

func payloadKey(sourceID string) string {
	return fmt.Sprintf("labjobs:payload:%s", sourceID)
}

func (c *cachedAdapter) Fetch(ctx context.Context) (models.RawPayload, error) {
	ctx, span := tracer.Start(ctx, "cachedAdapter.Fetch")
	defer span.End()
	span.SetAttributes(telemetry.String("source.id", c.sourceID))

	key := payloadKey(c.sourceID)

	var cached models.RawPayload
	err := c.cache.Get(ctx, key, &cached)
	if err == nil {
		span.SetAttributes(telemetry.String("cache.result", "hit"))
		c.logger.Debug("cache hit for source payload", zap.String("source", c.sourceID))
		return cached, nil
	} else if err != cache.ErrNotFound {
		span.SetAttributes(telemetry.String("cache.result", "error"))
		span.RecordError(err)
		c.logger.Warn("cache error for source payload", zap.String("source", c.sourceID), zap.Error(err))
	} else {
		span.SetAttributes(telemetry.String("cache.result", "miss"))
	}

	payload, err := c.Adapter.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, payload, c.ttl); err != nil {
		c.logger.Warn("failed to cache source payload", zap.String("source", c.sourceID), zap.Error(err))
	}
	return payload, nil
}
