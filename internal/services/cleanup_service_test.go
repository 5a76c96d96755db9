package services

import (
	"context"
	"testing"
	"time"

	"helpcy/internal/models"
	"helpcy/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupService_PurgesIdleDrafts(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	backends := map[string]func(t *testing.T) (DraftStore, IdleDraftPurger, func(time.Time)){
		"memory": func(t *testing.T) (DraftStore, IdleDraftPurger, func(time.Time)) {
			s := NewMemoryDraftStore(NewDefaultCatalog(), observability.NewNopLogger())
			return s, s, func(now time.Time) { s.now = func() time.Time { return now } }
		},
		"sql": func(t *testing.T) (DraftStore, IdleDraftPurger, func(time.Time)) {
			s, _ := newTestSQLStore(t, observability.NewConversationMetrics())
			return s, s, func(now time.Time) { s.now = func() time.Time { return now } }
		},
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			store, purger, setNow := newStore(t)

			setNow(base)
			_, err := store.ApplyMerge(ctx, 1, models.NewDraftUpdate().WithLocation(models.Location{Latitude: 35, Longitude: 33}))
			require.NoError(t, err)
			setNow(base.Add(20 * time.Hour))
			_, err = store.ApplyMerge(ctx, 2, models.NewDraftUpdate().WithLocation(models.Location{Latitude: 35, Longitude: 33}))
			require.NoError(t, err)

			cleanup := NewCleanupServiceWithLogger(purger, 24*time.Hour, observability.NewNopLogger())
			cleanup.now = func() time.Time { return base.Add(30 * time.Hour) }

			stats, err := cleanup.GetCleanupStats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats["idle_drafts"])

			purged, err := cleanup.CleanupIdleDrafts(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, purged)

			_, err = store.Get(ctx, 1)
			assert.Error(t, err, "the idle draft is gone")
			_, err = store.Get(ctx, 2)
			assert.NoError(t, err, "the recent draft survives")

			purged, err = cleanup.CleanupIdleDrafts(ctx)
			require.NoError(t, err)
			assert.Zero(t, purged)
		})
	}
}

func TestCleanupService_DefaultsAndMissingStore(t *testing.T) {
	cleanup := NewCleanupServiceWithLogger(nil, 0, observability.NewNopLogger())
	assert.Equal(t, 24*time.Hour, cleanup.TTL())

	_, err := cleanup.CleanupIdleDrafts(context.Background())
	assert.Error(t, err)
	_, err = cleanup.GetCleanupStats(context.Background())
	assert.Error(t, err)
}
