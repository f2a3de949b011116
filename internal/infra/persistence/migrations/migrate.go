// Package migrations wires golang-migrate execution for the storefront's persistence layer.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migrations loader
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	dbmigrations "github.com/maisonlune/storefront/db/migrations"
	"github.com/maisonlune/storefront/internal/infra/telemetry"
)

// Embedded selects the SQL files compiled into the binary instead of a directory.
const Embedded = ""

var (
	errNotDirectory = errors.New("migrations path must be a directory")

	migrationsCounter   metric.Int64Counter
	migrationsCounterMu sync.Once
)

// Apply ensures the migrations located at migrationsDir are applied to the Postgres
// instance reachable via dsn. An empty migrationsDir applies the embedded set.
// A nil logger disables informational logging.
func Apply(ctx context.Context, dsn, migrationsDir string, logger *log.Logger) error {
	m, source, closeFn, err := open(ctx, dsn, migrationsDir, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	if logger != nil {
		logger.Printf("running database migrations: source=%s", source)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			recordMigrationMetric(ctx, "noop", source)
			if logger != nil {
				logger.Printf("database migrations up-to-date")
			}
			return nil
		}
		recordMigrationMetric(ctx, "failed", source)
		return fmt.Errorf("apply migrations: %w", err)
	}

	if logger != nil {
		logger.Printf("database migrations applied successfully")
	}
	recordMigrationMetric(ctx, "applied", source)
	return nil
}

// Rollback reverts the most recent steps migrations. steps must be positive.
func Rollback(ctx context.Context, dsn, migrationsDir string, steps int, logger *log.Logger) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be >0")
	}
	m, source, closeFn, err := open(ctx, dsn, migrationsDir, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	if logger != nil {
		logger.Printf("rolling back database migrations: source=%s steps=%d", source, steps)
	}
	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			recordMigrationMetric(ctx, "noop", source)
			return nil
		}
		recordMigrationMetric(ctx, "failed", source)
		return fmt.Errorf("rollback migrations: %w", err)
	}
	recordMigrationMetric(ctx, "rolled_back", source)
	return nil
}

// SchemaStatus describes the schema version recorded by golang-migrate.
type SchemaStatus struct {
	Version uint
	Dirty   bool
	// Latest is the newest version available in the migration source.
	Latest uint
}

// Pending reports whether the source holds migrations newer than Version.
func (s SchemaStatus) Pending() bool {
	return s.Latest > s.Version
}

// Status reports the applied schema version. Version is zero when no
// migration has run.
func Status(ctx context.Context, dsn, migrationsDir string, logger *log.Logger) (SchemaStatus, error) {
	var status SchemaStatus
	latest, err := latestVersion(migrationsDir)
	if err != nil {
		return status, err
	}
	status.Latest = latest

	m, _, closeFn, err := open(ctx, dsn, migrationsDir, logger)
	if err != nil {
		return status, err
	}
	defer closeFn()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return status, nil
		}
		return status, fmt.Errorf("read schema version: %w", err)
	}
	status.Version = version
	status.Dirty = dirty
	return status, nil
}

// latestVersion scans the migration filenames for the highest version prefix.
func latestVersion(migrationsDir string) (uint, error) {
	var (
		entries []fs.DirEntry
		err     error
	)
	if strings.TrimSpace(migrationsDir) == Embedded {
		entries, err = fs.ReadDir(dbmigrations.Files, ".")
	} else {
		var dir string
		dir, err = resolveDir(migrationsDir)
		if err == nil {
			entries, err = os.ReadDir(dir)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("list migrations: %w", err)
	}
	var latest uint
	for _, entry := range entries {
		prefix, _, found := strings.Cut(entry.Name(), "_")
		if !found || entry.IsDir() {
			continue
		}
		version, perr := strconv.ParseUint(prefix, 10, 64)
		if perr != nil {
			continue
		}
		if uint(version) > latest {
			latest = uint(version)
		}
	}
	return latest, nil
}

func open(ctx context.Context, dsn, migrationsDir string, logger *log.Logger) (*migrate.Migrate, string, func(), error) {
	var (
		sourceName = "embedded"
		sourceURL  string
	)
	if strings.TrimSpace(migrationsDir) != Embedded {
		resolvedDir, err := resolveDir(migrationsDir)
		if err != nil {
			return nil, "", nil, err
		}
		sourceName = resolvedDir
		sourceURL = fileURL(resolvedDir)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, "", nil, fmt.Errorf("open migrations connection: %w", err)
	}
	closeDB := func() {
		if cerr := db.Close(); cerr != nil && logger != nil {
			logger.Printf("database migrations close: %v", cerr)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		closeDB()
		return nil, "", nil, fmt.Errorf("ping migrations database: %w", err)
	}

	var driverConfig pgxv5.Config
	driver, err := pgxv5.WithInstance(db, &driverConfig)
	if err != nil {
		closeDB()
		return nil, "", nil, fmt.Errorf("initialise pgx v5 driver: %w", err)
	}

	var m *migrate.Migrate
	if sourceURL != "" {
		m, err = migrate.NewWithDatabaseInstance(sourceURL, "pgx5", driver)
	} else {
		src, srcErr := iofs.New(dbmigrations.Files, ".")
		if srcErr != nil {
			closeDB()
			return nil, "", nil, fmt.Errorf("load embedded migrations: %w", srcErr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "pgx5", driver)
	}
	if err != nil {
		closeDB()
		return nil, "", nil, fmt.Errorf("initialise migrate instance: %w", err)
	}

	closeFn := func() {
		sourceErr, dbErr := m.Close()
		if logger == nil {
			return
		}
		if sourceErr != nil {
			logger.Printf("database migrations source close: %v", sourceErr)
		}
		if dbErr != nil {
			logger.Printf("database migrations db close: %v", dbErr)
		}
	}
	return m, sourceName, closeFn, nil
}

func resolveDir(dir string) (string, error) {
	clean := strings.TrimSpace(dir)
	if clean == "" {
		return "", fmt.Errorf("migrations path required")
	}

	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("migrations directory: %w", err)
		}
		return "", fmt.Errorf("stat migrations directory: %w", err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("migrations directory: %w", errNotDirectory)
	}

	return abs, nil
}

func fileURL(path string) string {
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := new(url.URL)
	u.Scheme = "file"
	u.Path = slashed
	return u.String()
}

func recordMigrationMetric(ctx context.Context, result, source string) {
	migrationsCounterMu.Do(func() {
		meter := otel.Meter("persistence.migrations")
		counter, err := meter.Int64Counter("storefront_db_migrations_total",
			metric.WithDescription("Total migrations executed via golang-migrate"),
			metric.WithUnit("{migration}"))
		if err == nil {
			migrationsCounter = counter
		}
	})
	if migrationsCounter == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("environment", telemetry.Environment()),
		attribute.String("result", result),
	}
	if source != "" {
		attrs = append(attrs, attribute.String("migrations_source", source))
	}
	migrationsCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
