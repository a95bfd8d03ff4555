package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"
)

// ErrNoSnapshot is returned when the history holds no snapshot yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Database wraps the sql handle together with the normalized driver name
// so query builders can pick the right dialect.
type Database struct {
	DB     *sql.DB
	Driver string
}

// Config holds the configuration details for initializing the database.
type Config struct {
	DBType    string // sqlite, chai, genji, duckdb or pgx (PostgreSQL)
	DBPath    string // File path for the embedded engines
	DBConn    string // Raw DSN for pgx, overrides the discrete fields below
	DBHost    string
	DBPort    int
	DBUser    string
	DBPass    string
	DBName    string
	PGSSLMode string
	Port      int // HTTP port, used to name the default database file
}

// normalizeDBType trims and lowercases driver names so the dialect switches
// do not miss a match because of incidental case or whitespace.
func normalizeDBType(dbType string) string {
	return strings.ToLower(strings.TrimSpace(dbType))
}

// DSN renders the data source name NewDatabase opens for cfg.
func DSN(cfg Config) (string, error) {
	driverName := normalizeDBType(cfg.DBType)
	switch driverName {
	case "sqlite", "chai", "genji", "duckdb":
		if cfg.DBPath != "" {
			return cfg.DBPath, nil
		}
		return fmt.Sprintf("pocos-%d.%s", cfg.Port, driverName), nil
	case "pgx":
		if strings.TrimSpace(cfg.DBConn) != "" {
			return cfg.DBConn, nil
		}
		sslMode := cfg.PGSSLMode
		if sslMode == "" {
			sslMode = "prefer"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, sslMode), nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}
}

// NewDatabase opens the database and configures connection pooling.
// Embedded engines run over a single connection so writes never contend.
func NewDatabase(config Config) (*Database, error) {
	driverName := normalizeDBType(config.DBType)
	dsn, err := DSN(config)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening the database: %w", err)
	}

	switch driverName {
	case "sqlite", "chai", "genji":
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if driverName == "sqlite" {
			tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := tuneSQLiteLikeConnection(tuneCtx, db, log.Printf); err != nil {
				log.Printf("sqlite tuning skipped: %v", err)
			}
			cancel()
		}
	case "duckdb":
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := tuneDuckDBConnection(tuneCtx, db, log.Printf); err != nil {
			log.Printf("duckdb tuning skipped: %v", err)
		}
		cancel()
	case "pgx":
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	log.Printf("Using database driver: %s", driverName)
	return &Database{DB: db, Driver: driverName}, nil
}

// Close releases the underlying handle.
func (db *Database) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// tuneSQLiteLikeConnection applies WAL/synchronous/busy pragmas. The steps
// flow through a small channel pipeline so the caller only waits for the
// final verdict.
func tuneSQLiteLikeConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	type pragma struct {
		label     string
		query     string
		expectRow bool
	}

	steps := []pragma{
		{label: "journal_mode", query: "PRAGMA journal_mode=WAL;", expectRow: true},
		{label: "synchronous", query: "PRAGMA synchronous=NORMAL;"},
		{label: "busy_timeout", query: "PRAGMA busy_timeout=5000;"},
	}

	jobs := make(chan pragma)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		for step := range jobs {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}

			if step.expectRow {
				var mode string
				if err := db.QueryRowContext(ctx, step.query).Scan(&mode); err != nil {
					errs <- fmt.Errorf("apply %s: %w", step.label, err)
					return
				}
				logf("SQLite tuning %s -> %s", step.label, mode)
				continue
			}
			if _, err := db.ExecContext(ctx, step.query); err != nil {
				errs <- fmt.Errorf("apply %s: %w", step.label, err)
				return
			}
		}
		errs <- nil
	}()

	go func() {
		defer close(jobs)
		for _, step := range steps {
			select {
			case jobs <- step:
			case <-ctx.Done():
				return
			}
		}
	}()

	return <-errs
}

// tuneDuckDBConnection lets DuckDB use every CPU the container grants.
func tuneDuckDBConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA threads=%d;", threads)); err != nil {
		return fmt.Errorf("apply threads: %w", err)
	}
	logf("DuckDB tuning threads=%d applied", threads)
	return nil
}

// InitSchema creates the snapshot tables synchronously. Secondary indexes
// are built later by EnsureIndexesAsync.
func (db *Database) InitSchema(cfg Config) error {
	var statements []string

	switch normalizeDBType(cfg.DBType) {
	case "pgx":
		statements = []string{
			`CREATE TABLE IF NOT EXISTS snapshots (
  id         TEXT PRIMARY KEY,
  source     TEXT NOT NULL,
  fetched_at BIGINT NOT NULL,
  row_count  INTEGER NOT NULL,
  header     TEXT NOT NULL,
  digest     TEXT NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS snapshot_rows (
  snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
  row_index   INTEGER NOT NULL,
  cells       TEXT NOT NULL,
  PRIMARY KEY (snapshot_id, row_index)
)`,
		}

	case "sqlite", "chai", "duckdb":
		statements = []string{
			`CREATE TABLE IF NOT EXISTS snapshots (
  id         TEXT PRIMARY KEY,
  source     TEXT NOT NULL,
  fetched_at BIGINT NOT NULL,
  row_count  INTEGER NOT NULL,
  header     TEXT NOT NULL,
  digest     TEXT NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS snapshot_rows (
  snapshot_id TEXT NOT NULL,
  row_index   INTEGER NOT NULL,
  cells       TEXT NOT NULL,
  PRIMARY KEY (snapshot_id, row_index)
)`,
		}

	case "genji":
		// Genji has no composite primary keys; uniqueness comes from an index.
		statements = []string{
			`CREATE TABLE IF NOT EXISTS snapshots (
  id         TEXT PRIMARY KEY,
  source     TEXT NOT NULL,
  fetched_at INTEGER NOT NULL,
  row_count  INTEGER NOT NULL,
  header     TEXT NOT NULL,
  digest     TEXT NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS snapshot_rows (
  snapshot_id TEXT NOT NULL,
  row_index   INTEGER NOT NULL,
  cells       TEXT NOT NULL
)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshot_rows_unique ON snapshot_rows (snapshot_id, row_index)`,
		}

	default:
		return fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}

	if err := execStatements(db.DB, statements); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// execStatements runs DDL one statement at a time; not every engine accepts
// several statements per Exec.
func execStatements(db *sql.DB, stmts []string) error {
	for _, raw := range stmts {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// EnsureIndexesAsync builds the history indexes in the background.
// A single worker retries with exponential backoff while SQLite reports the
// database as locked, and treats "already exists" as success.
func (db *Database) EnsureIndexesAsync(ctx context.Context, cfg Config, logf func(string, ...any)) <-chan struct{} {
	done := make(chan struct{})
	indexes := desiredIndexes(cfg.DBType)
	if len(indexes) == 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		for _, it := range indexes {
			start := time.Now()
			backoff := 50 * time.Millisecond
			for {
				select {
				case <-ctx.Done():
					logf("index builder stopped: %v", ctx.Err())
					return
				default:
				}

				_, err := db.DB.ExecContext(ctx, it.sql)
				if err == nil {
					logf("index %s ready in %s", it.name, time.Since(start).Truncate(time.Millisecond))
					break
				}

				msg := strings.ToLower(err.Error())
				if strings.Contains(msg, "already exists") {
					break
				}
				if strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy") || strings.Contains(msg, "locked") {
					time.Sleep(backoff)
					if backoff < time.Second {
						backoff *= 2
					}
					continue
				}
				logf("index %s failed after %s: %v", it.name, time.Since(start).Truncate(time.Millisecond), err)
				break
			}
		}
	}()
	return done
}

// desiredIndexes lists the history indexes per engine. Only plain
// CREATE INDEX IF NOT EXISTS statements are used so every dialect accepts them.
func desiredIndexes(dbType string) []struct{ name, sql string } {
	switch normalizeDBType(dbType) {
	case "pgx", "sqlite", "chai", "duckdb", "genji":
		return []struct{ name, sql string }{
			{"idx_snapshots_fetched_at",
				`CREATE INDEX IF NOT EXISTS idx_snapshots_fetched_at ON snapshots (fetched_at)`},
			{"idx_snapshots_digest",
				`CREATE INDEX IF NOT EXISTS idx_snapshots_digest ON snapshots (digest)`},
		}
	default:
		return nil
	}
}

// newPlaceholderGenerator returns a closure producing the placeholder syntax
// of the configured driver: $1, $2 … for PostgreSQL, ? elsewhere.
func newPlaceholderGenerator(dbType string) func() string {
	if normalizeDBType(dbType) == "pgx" {
		counter := 0
		return func() string {
			counter++
			return fmt.Sprintf("$%d", counter)
		}
	}
	return func() string { return "?" }
}
