package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/database"
	"helpcy/internal/models"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

const draftColumns = `user_id, draft_id, stage, latitude, longitude, category, subcategory, pending_category,
	description, description_source, media_kind, media_ref, revision, created_at, updated_at`

// SQLDraftStore keeps drafts in the report_drafts table. Merges are optimistic:
// read, merge, then write conditioned on the revision that was read.
type SQLDraftStore struct {
	db         *sql.DB
	dialect    database.Dialect
	catalog    CatalogServiceInterface
	logger     *observability.Logger
	metrics    *observability.ConversationMetrics
	maxRetries int
	now        func() time.Time
}

// NewSQLDraftStore creates a draft store on an open, migrated database
func NewSQLDraftStore(db *sql.DB, dialect database.Dialect, catalog CatalogServiceInterface, cfg config.StoreConfig, metrics *observability.ConversationMetrics, logger *observability.Logger) *SQLDraftStore {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = config.DefaultStoreMaxRetries
	}
	return &SQLDraftStore{
		db:         db,
		dialect:    dialect,
		catalog:    catalog,
		logger:     logger,
		metrics:    metrics,
		maxRetries: retries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the user's draft
func (s *SQLDraftStore) Get(ctx context.Context, userID int64) (result *models.ReportDraft, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "sql.Get", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	d, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, notFoundDraft(userID)
	}
	return d, nil
}

// ApplyMerge merges update with a bounded compare-and-swap loop
func (s *SQLDraftStore) ApplyMerge(ctx context.Context, userID int64, update *models.DraftUpdate) (result *models.ReportDraft, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "sql.ApplyMerge", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeTimeout, contextutils.SeverityWarn, "draft merge cancelled", "", err)
		}

		current, err := s.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		next, changed, err := mergeDraft(current, userID, update, s.catalog, s.now())
		if err != nil {
			return nil, err
		}
		if !changed {
			return next, nil
		}

		var ok bool
		if current == nil {
			ok, err = s.insert(ctx, next)
		} else {
			ok, err = s.compareAndSwap(ctx, next, current.Revision)
		}
		if err != nil {
			return nil, err
		}
		if ok {
			span.SetAttributes(
				attribute.Int("store.attempts", attempt+1),
				observability.AttributeRevision(next.Revision),
				observability.AttributeStage(string(next.Stage)),
			)
			return next, nil
		}
		s.metrics.IncStoreConflict("retried")
		s.logger.Debug(ctx, "Draft revision conflict, retrying", map[string]interface{}{
			"user_id": userID,
			"attempt": attempt + 1,
		})
	}

	s.metrics.IncStoreConflict("exhausted")
	return nil, contextutils.NewAppError(contextutils.ErrorCodeStoreContention, contextutils.SeverityError,
		"draft store contention", "retry budget exhausted")
}

// Clear deletes the user's draft
func (s *SQLDraftStore) Clear(ctx context.Context, userID int64) (err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "sql.Clear", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM report_drafts WHERE user_id = ?`), userID); err != nil {
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "failed to clear draft", "", err)
	}
	return nil
}

// CountIdle counts drafts last updated before the cutoff
func (s *SQLDraftStore) CountIdle(ctx context.Context, before time.Time) (count int, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "sql.CountIdle")
	defer observability.FinishSpan(span, &err)

	err = s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT COUNT(*) FROM report_drafts WHERE updated_at < ?`), before.UnixNano()).Scan(&count)
	if err != nil {
		return 0, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "failed to count idle drafts", "", err)
	}
	return count, nil
}

// PurgeIdle deletes drafts last updated before the cutoff. A merge racing the
// delete either lands first and keeps the row, or recreates the draft.
func (s *SQLDraftStore) PurgeIdle(ctx context.Context, before time.Time) (purged int, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "sql.PurgeIdle")
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM report_drafts WHERE updated_at < ?`), before.UnixNano())
	if err != nil {
		return 0, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "failed to purge idle drafts", "", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "failed to read affected rows", "", err)
	}
	span.SetAttributes(attribute.Int64("store.purged", n))
	return int(n), nil
}

func (s *SQLDraftStore) load(ctx context.Context, userID int64) (*models.ReportDraft, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT `+draftColumns+` FROM report_drafts WHERE user_id = ?`), userID)

	var (
		d                   models.ReportDraft
		stage, source, kind string
		lat, lng            sql.NullFloat64
		createdAt, updated  int64
	)
	err := row.Scan(&d.UserID, &d.DraftID, &stage, &lat, &lng, &d.Category, &d.Subcategory, &d.PendingCategory,
		&d.Description, &source, &kind, &d.MediaRef, &d.Revision, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "failed to load draft", "", err)
	}

	d.Stage = models.Stage(stage)
	d.DescriptionSource = models.DescriptionSource(source)
	d.MediaKind = models.MediaKind(kind)
	if lat.Valid && lng.Valid {
		d.Location = &models.Location{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	d.CreatedAt = time.Unix(0, createdAt).UTC()
	d.UpdatedAt = time.Unix(0, updated).UTC()
	return &d, nil
}

func (s *SQLDraftStore) insert(ctx context.Context, d *models.ReportDraft) (bool, error) {
	lat, lng := nullLocation(d.Location)
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`INSERT INTO report_drafts (`+draftColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`),
		d.UserID, d.DraftID, string(d.Stage), lat, lng, d.Category, d.Subcategory, d.PendingCategory,
		d.Description, string(d.DescriptionSource), string(d.MediaKind), d.MediaRef, d.Revision,
		d.CreatedAt.UnixNano(), d.UpdatedAt.UnixNano())
	if err != nil {
		return false, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "failed to insert draft", "", err)
	}
	return affectedOne(res)
}

func (s *SQLDraftStore) compareAndSwap(ctx context.Context, d *models.ReportDraft, expected int64) (bool, error) {
	lat, lng := nullLocation(d.Location)
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`UPDATE report_drafts SET
		stage = ?, latitude = ?, longitude = ?, category = ?, subcategory = ?, pending_category = ?,
		description = ?, description_source = ?, media_kind = ?, media_ref = ?, revision = ?, updated_at = ?
		WHERE user_id = ? AND draft_id = ? AND revision = ?`),
		string(d.Stage), lat, lng, d.Category, d.Subcategory, d.PendingCategory,
		d.Description, string(d.DescriptionSource), string(d.MediaKind), d.MediaRef, d.Revision, d.UpdatedAt.UnixNano(),
		d.UserID, d.DraftID, expected)
	if err != nil {
		return false, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "failed to update draft", "", err)
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "failed to read affected rows", "", err)
	}
	return n == 1, nil
}

func nullLocation(l *models.Location) (sql.NullFloat64, sql.NullFloat64) {
	if l == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: l.Latitude, Valid: true}, sql.NullFloat64{Float64: l.Longitude, Valid: true}
}
