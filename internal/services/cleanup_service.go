package services

import (
	"context"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// CleanupService discards drafts nobody has touched for longer than the
// configured TTL, so an abandoned conversation does not greet the user days
// later with a half-finished report.
type CleanupService struct {
	store  IdleDraftPurger
	ttl    time.Duration
	logger *observability.Logger
	now    func() time.Time
}

// NewCleanupServiceWithLogger creates a cleanup service. A non-positive ttl
// falls back to the default.
func NewCleanupServiceWithLogger(store IdleDraftPurger, ttl time.Duration, logger *observability.Logger) *CleanupService {
	if ttl <= 0 {
		ttl = config.DefaultDraftTTL
	}
	return &CleanupService{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// TTL returns the idle time after which drafts are discarded
func (c *CleanupService) TTL() time.Duration {
	return c.ttl
}

// CleanupIdleDrafts removes idle drafts and returns how many were removed
func (c *CleanupService) CleanupIdleDrafts(ctx context.Context) (purged int, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "cleanup_idle_drafts",
		attribute.String("cleanup.ttl", c.ttl.String()),
	)
	defer observability.FinishSpan(span, &err)

	if c.store == nil {
		return 0, contextutils.NewAppError(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError, "draft store not available", "")
	}

	cutoff := c.now().Add(-c.ttl)
	purged, err = c.store.PurgeIdle(ctx, cutoff)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to purge idle drafts")
	}
	span.SetAttributes(attribute.Int("cleanup.purged", purged))

	if purged > 0 {
		c.logger.Info(ctx, "Discarded idle drafts", map[string]interface{}{
			"count":  purged,
			"cutoff": cutoff.Format(time.RFC3339),
		})
	}
	return purged, nil
}

// GetCleanupStats reports what a cleanup run would remove right now
func (c *CleanupService) GetCleanupStats(ctx context.Context) (result map[string]int, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "get_cleanup_stats")
	defer observability.FinishSpan(span, &err)

	if c.store == nil {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError, "draft store not available", "")
	}

	idle, err := c.store.CountIdle(ctx, c.now().Add(-c.ttl))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to count idle drafts")
	}
	return map[string]int{"idle_drafts": idle}, nil
}
