package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver names a supported metadata backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

const (
	busyTimeoutMS        = 5000
	postgresMaxOpenConns = 10
	postgresMaxIdleConns = 5
	connMaxLifetime      = 5 * time.Minute

	maxOpenConnsEnvKey    = "MEDIASTORE_DB_MAX_OPEN_CONNS"
	maxIdleConnsEnvKey    = "MEDIASTORE_DB_MAX_IDLE_CONNS"
	connMaxLifetimeEnvKey = "MEDIASTORE_DB_CONN_MAX_LIFETIME"
)

// Options selects and configures the metadata backend.
type Options struct {
	Driver Driver
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN string
	// SkipMigrations opens the database as it is, for inspection.
	SkipMigrations bool
}

// Store wraps the metadata database.
type Store struct {
	db      *sql.DB
	driver  Driver
	builder sq.StatementBuilderType
}

// Open opens the database and applies pending migrations.
func Open(opts Options) (*Store, error) {
	driver, err := ParseDriver(string(opts.Driver))
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch driver {
	case DriverSQLite:
		dsn, err := sqliteDSN(opts.DSN)
		if err != nil {
			return nil, err
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
	case DriverPostgres:
		if strings.TrimSpace(opts.DSN) == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		db, err = sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("sql.Open pgx: %w", err)
		}
	}

	s := &Store{db: db, driver: driver, builder: newBuilder(driver)}
	s.configurePool()
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if opts.SkipMigrations {
		return s, nil
	}
	if err := runMigrations(db, s.builder); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLite is a convenience for the default backend.
func OpenSQLite(path string) (*Store, error) {
	return Open(Options{Driver: DriverSQLite, DSN: path})
}

// ParseDriver normalizes a driver name. Empty selects sqlite.
func ParseDriver(raw string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", raw)
	}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Driver returns the backend in use.
func (s *Store) Driver() Driver { return s.driver }

// Begin opens a metadata transaction.
func (s *Store) Begin(ctx context.Context) (MetaTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, b: s.builder}, nil
}

// MigrationPlan reports migration status without applying anything.
func (s *Store) MigrationPlan(ctx context.Context) (*MigrationStatus, error) {
	return migrationPlan(ctx, s.db)
}

// poolConfig sizes the database/sql pool.
type poolConfig struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

// poolSettings reads the pool size for driver from the environment. A
// sqlite store always runs on one connection: the media service issues its
// reads inside the open write transaction.
func poolSettings(driver Driver) poolConfig {
	cfg := poolConfig{
		maxOpen:     1,
		maxIdle:     1,
		maxLifetime: durationFromEnv(connMaxLifetimeEnvKey, connMaxLifetime),
	}
	if driver != DriverPostgres {
		return cfg
	}
	cfg.maxOpen = intFromEnv(maxOpenConnsEnvKey, postgresMaxOpenConns)
	cfg.maxIdle = min(intFromEnv(maxIdleConnsEnvKey, postgresMaxIdleConns), cfg.maxOpen)
	return cfg
}

func (s *Store) configurePool() {
	cfg := poolSettings(s.driver)
	s.db.SetMaxOpenConns(cfg.maxOpen)
	s.db.SetMaxIdleConns(cfg.maxIdle)
	s.db.SetConnMaxLifetime(cfg.maxLifetime)
}

func newBuilder(driver Driver) sq.StatementBuilderType {
	if driver == DriverPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// sqliteDSN carries pragmas in the DSN so every pooled connection gets them.
func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	u := url.URL{Scheme: "file", Path: path, RawQuery: q.Encode()}
	return u.String(), nil
}

func intFromEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
