// Package database provides database connection and migration functionality.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"helpcy/internal/config"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	// Import PostgreSQL driver for database/sql
	_ "github.com/lib/pq"
	// Import the pure-Go SQLite driver for database/sql
	_ "modernc.org/sqlite"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// OpenTelemetry SQL instrumentation
	"go.nhat.io/otelsql"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Dialect is the SQL flavour of an open connection
type Dialect string

const (
	// DialectPostgres is PostgreSQL through lib/pq
	DialectPostgres Dialect = "postgres"
	// DialectSQLite is SQLite through modernc.org/sqlite
	DialectSQLite Dialect = "sqlite"
)

// ParseDialect maps a configured driver name to a Dialect
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return "", contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityError, "unsupported database driver", driver)
}

// Rebind rewrites '?' placeholders into the dialect's form. Queries must not
// contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Manager handles database operations with proper logging
type Manager struct {
	logger *observability.Logger
}

var (
	otelDriverMu    sync.Mutex
	otelDriverNames = map[Dialect]string{}
)

// NewManager creates a new database manager with the provided logger
func NewManager(logger *observability.Logger) *Manager {
	return &Manager{
		logger: logger,
	}
}

// InitDB opens the configured database and applies pending migrations
func (dm *Manager) InitDB(ctx context.Context, cfg config.DatabaseConfig) (result0 *sql.DB, result1 Dialect, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "InitDB",
		attribute.String("db.driver", cfg.Driver),
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
		attribute.Bool("migrations.enabled", true),
	)
	defer observability.FinishSpan(span, &err)

	db, dialect, err := dm.InitDBWithoutMigrations(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	if err := dm.RunMigrations(ctx, db, dialect); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database after migration failure", closeErr)
		}
		return nil, "", err
	}
	return db, dialect, nil
}

// InitDBWithoutMigrations opens the configured database through the otelsql driver
func (dm *Manager) InitDBWithoutMigrations(ctx context.Context, cfg config.DatabaseConfig) (result0 *sql.DB, result1 Dialect, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "InitDBWithoutMigrations",
		attribute.String("db.driver", cfg.Driver),
	)
	defer observability.FinishSpan(span, &err)

	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}
	if cfg.URL == "" {
		return nil, "", contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityError, "database url is required", string(dialect))
	}

	driverName, err := registerOtelDriver(dialect, extractDatabaseName(cfg.URL))
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(driverName, cfg.URL)
	if err != nil {
		return nil, "", contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseConnection, contextutils.SeverityError, "failed to open database connection", string(dialect), err)
	}

	if dialect == DialectSQLite {
		// SQLite allows one writer; a single connection also keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database connection after ping failure", closeErr)
		}
		return nil, "", contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseConnection, contextutils.SeverityError, "failed to ping database", string(dialect), err)
	}

	dm.logger.Info(ctx, "Database connection established", map[string]interface{}{
		"driver":            string(dialect),
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime.String(),
	})

	return db, dialect, nil
}

func registerOtelDriver(dialect Dialect, dbName string) (string, error) {
	otelDriverMu.Lock()
	defer otelDriverMu.Unlock()

	if name, ok := otelDriverNames[dialect]; ok {
		return name, nil
	}

	system := semconv.DBSystemPostgreSQL
	if dialect == DialectSQLite {
		system = semconv.DBSystemSqlite
	}
	name, err := otelsql.Register(string(dialect),
		otelsql.WithDatabaseName(dbName),
		otelsql.TraceQueryWithArgs(),
		otelsql.WithSystem(system),
		otelsql.TraceRowsAffected(),
	)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to register otelsql driver")
	}
	otelDriverNames[dialect] = name
	return name, nil
}

// RunMigrations applies the embedded migrations with golang-migrate
func (dm *Manager) RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "RunMigrations",
		attribute.String("db.system", string(dialect)),
		attribute.String("migration.type", "golang_migrate"),
	)
	defer observability.FinishSpan(span, &err)
	dm.logger.Info(ctx, "Starting database migrations...", map[string]interface{}{"driver": string(dialect)})

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return contextutils.WrapError(err, "failed to open embedded migrations")
	}

	m, err := newMigrator(db, dialect, src)
	if err != nil {
		_ = src.Close()
		return contextutils.WrapError(err, "failed to initialize golang-migrate")
	}
	// m.Close would also close db, which the caller still owns
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Error closing migration source", closeErr)
		}
	}()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "golang-migrate up failed", string(dialect), err)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		dm.logger.Info(ctx, "No new golang-migrate migrations to apply.")
		return nil
	}

	version, dirty, _ := m.Version()
	span.SetAttributes(attribute.Int("migration.version", int(version)))
	dm.logger.Info(ctx, "golang-migrate migrations applied successfully.", map[string]interface{}{
		"version": version,
		"dirty":   dirty,
	})
	return nil
}

func newMigrator(db *sql.DB, dialect Dialect, src source.Driver) (*migrate.Migrate, error) {
	switch dialect {
	case DialectSQLite:
		drv, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
		if err != nil {
			return nil, err
		}
		return migrate.NewWithInstance("iofs", src, "sqlite", drv)
	default:
		drv, err := migratepostgres.WithInstance(db, &migratepostgres.Config{})
		if err != nil {
			return nil, err
		}
		return migrate.NewWithInstance("iofs", src, "postgres", drv)
	}
}

// extractDatabaseName extracts the database name from a connection string
func extractDatabaseName(databaseURL string) string {
	if u, err := url.Parse(databaseURL); err == nil {
		if p := strings.TrimSuffix(u.Path, "/"); p != "" {
			return path.Base(p)
		}
		if u.Opaque != "" {
			return strings.SplitN(u.Opaque, "?", 2)[0]
		}
	}
	if idx := strings.LastIndex(databaseURL, "/"); idx != -1 {
		dbPart := databaseURL[idx+1:]
		if q := strings.Index(dbPart, "?"); q != -1 {
			dbPart = dbPart[:q]
		}
		if dbPart != "" {
			return dbPart
		}
	}
	return "helpcy"
}
