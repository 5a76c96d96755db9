package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/database"
	"helpcy/internal/models"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLStore(t *testing.T, metrics *observability.ConversationMetrics) (*SQLDraftStore, *SQLReportRepository) {
	t.Helper()
	dm := database.NewManager(observability.NewNopLogger())
	db, dialect, err := dm.InitDB(context.Background(), config.DatabaseConfig{
		Driver:          "sqlite",
		URL:             "file:" + filepath.Join(t.TempDir(), "drafts.db") + "?_pragma=busy_timeout(5000)",
		ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := observability.NewNopLogger()
	store := NewSQLDraftStore(db, dialect, NewDefaultCatalog(), config.StoreConfig{MaxRetries: 5}, metrics, logger)
	return store, NewSQLReportRepository(db, dialect, logger)
}

// draftStoreContract runs the behaviour every DraftStore backend must share.
func draftStoreContract(t *testing.T, newStore func(t *testing.T) DraftStore) {
	ctx := context.Background()

	t.Run("get absent", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, 1)
		require.Error(t, err)
		assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound))
	})

	t.Run("create and merge", func(t *testing.T) {
		s := newStore(t)
		d, err := s.ApplyMerge(ctx, 7, models.NewDraftUpdate().WithLocation(models.Location{Latitude: 35.1, Longitude: 33.3}))
		require.NoError(t, err)
		assert.Equal(t, int64(1), d.Revision)
		assert.Equal(t, models.StageAwaitingLocation, d.Stage)
		assert.NotEmpty(t, d.DraftID)
		require.NotNil(t, d.Location)

		d2, err := s.ApplyMerge(ctx, 7, models.NewDraftUpdate().
			WithStage(models.StageReviewing).
			WithPair("Damage", "Road").
			WithDescription("Pothole", models.DescriptionFromAI))
		require.NoError(t, err)
		assert.Equal(t, int64(2), d2.Revision)
		assert.True(t, d2.UpdatedAt.After(d.UpdatedAt))
		assert.Equal(t, d.DraftID, d2.DraftID)
		assert.Equal(t, "Pothole", d2.Description)
		require.NotNil(t, d2.Location)
		assert.InDelta(t, 35.1, d2.Location.Latitude, 1e-9)

		got, err := s.Get(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, d2.Revision, got.Revision)
		assert.Equal(t, "Road", got.Subcategory)
		assert.Equal(t, models.DescriptionFromAI, got.DescriptionSource)
	})

	t.Run("noop merge keeps revision", func(t *testing.T) {
		s := newStore(t)
		d, err := s.ApplyMerge(ctx, 3, models.NewDraftUpdate().WithPair("Flood", "Sewer"))
		require.NoError(t, err)
		again, err := s.ApplyMerge(ctx, 3, models.NewDraftUpdate().WithPair("Flood", "Sewer"))
		require.NoError(t, err)
		assert.Equal(t, d.Revision, again.Revision)
		assert.True(t, d.UpdatedAt.Equal(again.UpdatedAt))
	})

	t.Run("invalid pair rejected and draft untouched", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ApplyMerge(ctx, 4, models.NewDraftUpdate().WithPair("Damage", "Road"))
		require.NoError(t, err)

		_, err = s.ApplyMerge(ctx, 4, models.NewDraftUpdate().WithPair("Blockage", "Road").WithDescription("x", models.DescriptionFromUser))
		require.Error(t, err)
		assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidTaxonomyPair))

		got, err := s.Get(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, "Damage", got.Category)
		assert.Equal(t, "Road", got.Subcategory)
		assert.Empty(t, got.Description)
		assert.Equal(t, int64(1), got.Revision)
	})

	t.Run("invalid pair on create stores nothing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ApplyMerge(ctx, 5, models.NewDraftUpdate().WithPair("Nope", "Road"))
		require.Error(t, err)
		_, err = s.Get(ctx, 5)
		assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound))
	})

	t.Run("expect revision", func(t *testing.T) {
		s := newStore(t)
		d, err := s.ApplyMerge(ctx, 6, models.NewDraftUpdate().WithStage(models.StageAwaitingMedia))
		require.NoError(t, err)

		_, err = s.ApplyMerge(ctx, 6, models.NewDraftUpdate().WithStage(models.StageReviewing).ExpectingRevision(d.Revision+1))
		require.Error(t, err)
		assert.True(t, contextutils.IsError(err, contextutils.ErrStaleDraft))

		d2, err := s.ApplyMerge(ctx, 6, models.NewDraftUpdate().WithStage(models.StageReviewing).ExpectingRevision(d.Revision))
		require.NoError(t, err)
		assert.Equal(t, models.StageReviewing, d2.Stage)

		// Revision 0 means "must not exist yet".
		_, err = s.ApplyMerge(ctx, 6, models.NewDraftUpdate().WithStage(models.StageAwaitingMedia).ExpectingRevision(0))
		assert.True(t, contextutils.IsError(err, contextutils.ErrStaleDraft))
	})

	t.Run("expect draft survives clear and recreate", func(t *testing.T) {
		s := newStore(t)
		old, err := s.ApplyMerge(ctx, 9, models.NewDraftUpdate().WithStage(models.StageAwaitingMedia))
		require.NoError(t, err)
		require.NoError(t, s.Clear(ctx, 9))
		fresh, err := s.ApplyMerge(ctx, 9, models.NewDraftUpdate().WithStage(models.StageAwaitingMedia))
		require.NoError(t, err)
		require.Equal(t, old.Revision, fresh.Revision)
		require.NotEqual(t, old.DraftID, fresh.DraftID)

		_, err = s.ApplyMerge(ctx, 9, models.NewDraftUpdate().WithStage(models.StageReviewing).ExpectingDraft(old))
		assert.True(t, contextutils.IsError(err, contextutils.ErrStaleDraft))
		got, err := s.Get(ctx, 9)
		require.NoError(t, err)
		assert.Equal(t, models.StageAwaitingMedia, got.Stage)

		got, err = s.ApplyMerge(ctx, 9, models.NewDraftUpdate().WithStage(models.StageReviewing).ExpectingDraft(fresh))
		require.NoError(t, err)
		assert.Equal(t, models.StageReviewing, got.Stage)

		_, err = s.ApplyMerge(ctx, 9, models.NewDraftUpdate().WithStage(models.StageAwaitingMedia).ExpectingDraft(nil))
		assert.True(t, contextutils.IsError(err, contextutils.ErrStaleDraft))
	})

	t.Run("clear", func(t *testing.T) {
		s := newStore(t)
		first, err := s.ApplyMerge(ctx, 8, models.NewDraftUpdate().WithStage(models.StageAwaitingMedia))
		require.NoError(t, err)
		require.NoError(t, s.Clear(ctx, 8))
		require.NoError(t, s.Clear(ctx, 8))

		_, err = s.Get(ctx, 8)
		assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound))

		fresh, err := s.ApplyMerge(ctx, 8, models.NewDraftUpdate().WithStage(models.StageAwaitingMedia))
		require.NoError(t, err)
		assert.NotEqual(t, first.DraftID, fresh.DraftID)
		assert.Equal(t, int64(1), fresh.Revision)
	})

	t.Run("users are independent", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ApplyMerge(ctx, 10, models.NewDraftUpdate().WithPair("Damage", "Road"))
		require.NoError(t, err)
		_, err = s.ApplyMerge(ctx, 11, models.NewDraftUpdate().WithPair("Flood", "Bridge"))
		require.NoError(t, err)
		require.NoError(t, s.Clear(ctx, 10))

		got, err := s.Get(ctx, 11)
		require.NoError(t, err)
		assert.Equal(t, "Flood", got.Category)
	})

	t.Run("concurrent merges lose nothing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ApplyMerge(ctx, 20, models.NewDraftUpdate().WithStage(models.StageReviewing))
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.ApplyMerge(ctx, 20, models.NewDraftUpdate().WithDescription("from chat", models.DescriptionFromUser))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := s.ApplyMerge(ctx, 20, models.NewDraftUpdate().WithMedia(models.MediaPhoto, "photo/20/a.jpg"))
			assert.NoError(t, err)
		}()
		wg.Wait()

		got, err := s.Get(ctx, 20)
		require.NoError(t, err)
		assert.Equal(t, "from chat", got.Description)
		assert.Equal(t, "photo/20/a.jpg", got.MediaRef)
		assert.Equal(t, int64(3), got.Revision)
	})
}

func TestMemoryDraftStore(t *testing.T) {
	draftStoreContract(t, func(t *testing.T) DraftStore {
		return NewMemoryDraftStore(NewDefaultCatalog(), observability.NewNopLogger())
	})
}

func TestSQLDraftStore(t *testing.T) {
	draftStoreContract(t, func(t *testing.T) DraftStore {
		s, _ := newTestSQLStore(t, nil)
		return s
	})
}

func TestMemoryDraftStore_SnapshotsDoNotAlias(t *testing.T) {
	s := NewMemoryDraftStore(NewDefaultCatalog(), observability.NewNopLogger())
	ctx := context.Background()
	d, err := s.ApplyMerge(ctx, 1, models.NewDraftUpdate().WithLocation(models.Location{Latitude: 1, Longitude: 2}))
	require.NoError(t, err)

	d.Location.Latitude = 50
	d.Description = "mutated"

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got.Location.Latitude, 1e-9)
	assert.Empty(t, got.Description)
}

func TestMemoryDraftStore_ManyConcurrentWriters(t *testing.T) {
	s := NewMemoryDraftStore(NewDefaultCatalog(), observability.NewNopLogger())
	ctx := context.Background()

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			desc := "desc"
			if i%2 == 0 {
				desc = "other"
			}
			_, err := s.ApplyMerge(ctx, 99, &models.DraftUpdate{Description: &desc, MediaRef: &desc})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, got.Description, got.MediaRef, "fields of one merge must land together")
}

func TestSQLDraftStore_ContentionExhausted(t *testing.T) {
	metrics := observability.NewConversationMetrics()
	s, _ := newTestSQLStore(t, metrics)
	ctx := context.Background()

	_, err := s.ApplyMerge(ctx, 1, models.NewDraftUpdate().WithStage(models.StageAwaitingMedia))
	require.NoError(t, err)

	// A clock that bumps the stored revision behind the store's back on every read
	// forces every compare-and-swap to miss.
	s.now = func() time.Time {
		_, execErr := s.db.ExecContext(ctx, `UPDATE report_drafts SET revision = revision + 1 WHERE user_id = 1`)
		require.NoError(t, execErr)
		return time.Now().UTC()
	}

	_, err = s.ApplyMerge(ctx, 1, models.NewDraftUpdate().WithStage(models.StageReviewing))
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrStoreContention))
	assert.True(t, contextutils.IsRetryable(err))
	assert.Equal(t, float64(s.maxRetries+1), testutil.ToFloat64(metrics.StoreConflicts().WithLabelValues("retried")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StoreConflicts().WithLabelValues("exhausted")))
}

func TestMergeDraft_PendingCategory(t *testing.T) {
	catalog := NewDefaultCatalog()
	now := time.Now()

	d, changed, err := mergeDraft(nil, 1, models.NewDraftUpdate().WithPendingCategory("Flood"), catalog, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Flood", d.PendingCategory)

	_, _, err = mergeDraft(d, 1, models.NewDraftUpdate().WithPendingCategory("Nope"), catalog, now)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidTaxonomyPair))

	cleared, changed, err := mergeDraft(d, 1, models.NewDraftUpdate().WithPendingCategory(""), catalog, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, cleared.PendingCategory)
	assert.True(t, cleared.UpdatedAt.After(d.UpdatedAt), "updatedAt strictly increases even with a frozen clock")
}
