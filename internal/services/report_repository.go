package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"helpcy/internal/database"
	"helpcy/internal/models"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// ReportRepository is the sink for submitted reports. Save is idempotent by report id.
type ReportRepository interface {
	Save(ctx context.Context, report *models.SubmittedReport) error
	Get(ctx context.Context, id string) (*models.SubmittedReport, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.SubmittedReport, error)
}

// MemoryReportRepository keeps submitted reports in process memory
type MemoryReportRepository struct {
	mu      sync.RWMutex
	reports map[string]*models.SubmittedReport
}

// NewMemoryReportRepository creates an empty in-memory repository
func NewMemoryReportRepository() *MemoryReportRepository {
	return &MemoryReportRepository{reports: make(map[string]*models.SubmittedReport)}
}

// Save stores the report unless one with the same id exists
func (r *MemoryReportRepository) Save(ctx context.Context, report *models.SubmittedReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reports[report.ID]; ok {
		return nil
	}
	cp := *report
	r.reports[report.ID] = &cp
	return nil
}

// Get returns the report with the given id
func (r *MemoryReportRepository) Get(ctx context.Context, id string) (*models.SubmittedReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[id]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "report %s not found", id)
	}
	cp := *rep
	return &cp, nil
}

// ListByUser returns the user's reports, newest first
func (r *MemoryReportRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.SubmittedReport, error) {
	r.mu.RLock()
	var out []*models.SubmittedReport
	for _, rep := range r.reports {
		if rep.UserID == userID {
			cp := *rep
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SQLReportRepository stores submitted reports in the submitted_reports table
type SQLReportRepository struct {
	db      *sql.DB
	dialect database.Dialect
	logger  *observability.Logger
}

// NewSQLReportRepository creates a repository on an open, migrated database
func NewSQLReportRepository(db *sql.DB, dialect database.Dialect, logger *observability.Logger) *SQLReportRepository {
	return &SQLReportRepository{db: db, dialect: dialect, logger: logger}
}

// Save inserts the report; a second save of the same id is a no-op
func (r *SQLReportRepository) Save(ctx context.Context, report *models.SubmittedReport) (err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "reports.Save",
		observability.AttributeUserID(report.UserID),
		attribute.String("report.id", report.ID),
	)
	defer observability.FinishSpan(span, &err)

	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`INSERT INTO submitted_reports
		(id, user_id, latitude, longitude, category, subcategory, description, media_kind, media_ref, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		report.ID, report.UserID, report.Location.Latitude, report.Location.Longitude,
		report.Category, report.Subcategory, report.Description,
		string(report.MediaKind), report.MediaRef, report.SubmittedAt.UnixNano())
	if err != nil {
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "failed to save report", report.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		r.logger.Info(ctx, "Report already stored", map[string]interface{}{"report_id": report.ID})
	}
	return nil
}

const reportColumns = `id, user_id, latitude, longitude, category, subcategory, description, media_kind, media_ref, submitted_at`

// Get returns the report with the given id
func (r *SQLReportRepository) Get(ctx context.Context, id string) (result *models.SubmittedReport, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "reports.Get", attribute.String("report.id", id))
	defer observability.FinishSpan(span, &err)

	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+reportColumns+` FROM submitted_reports WHERE id = ?`), id)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "report %s not found", id)
	}
	if err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "failed to load report", id, err)
	}
	return rep, nil
}

// ListByUser returns the user's reports, newest first
func (r *SQLReportRepository) ListByUser(ctx context.Context, userID int64, limit int) (result []*models.SubmittedReport, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "reports.ListByUser", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`SELECT `+reportColumns+`
		FROM submitted_reports WHERE user_id = ? ORDER BY submitted_at DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "failed to list reports", "", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.Warn(ctx, "Failed to close report rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "failed to scan report", "", err)
		}
		result = append(result, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "failed to iterate reports", "", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*models.SubmittedReport, error) {
	var (
		rep         models.SubmittedReport
		kind        string
		submittedAt int64
	)
	if err := row.Scan(&rep.ID, &rep.UserID, &rep.Location.Latitude, &rep.Location.Longitude,
		&rep.Category, &rep.Subcategory, &rep.Description, &kind, &rep.MediaRef, &submittedAt); err != nil {
		return nil, err
	}
	rep.MediaKind = models.MediaKind(kind)
	rep.SubmittedAt = time.Unix(0, submittedAt).UTC()
	return &rep, nil
}
