// Package database opens the relational store shared by the API and the worker.
// SQLite (modernc.org/sqlite) serves local runs and tests, Postgres (pgx) serves production.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver
	_ "modernc.org/sqlite"             // SQLite driver

	"rag-document-platform/internal/config"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// DB wraps *sql.DB with the dialect its queries must be rebound for
type DB struct {
	*sql.DB
	Dialect string
}

// Open connects using DB_DRIVER and applies pending migrations.
// password overrides cfg.DBPassword when non-empty.
func Open(ctx context.Context, cfg *config.Config, password string) (*DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.DBDriver {
	case DialectSQLite, "":
		db, err = openSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return finishOpen(ctx, &DB{DB: db, Dialect: DialectSQLite})

	case DialectPostgres:
		if password == "" {
			password = cfg.DBPassword
		}
		db, err = sql.Open("pgx", postgresDSN(cfg, password))
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		return finishOpen(ctx, &DB{DB: db, Dialect: DialectPostgres})

	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.DBDriver)
	}
}

// OpenSQLite opens (and migrates) a SQLite database file
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	return finishOpen(ctx, &DB{DB: db, Dialect: DialectSQLite})
}

func openSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	// WAL for concurrent readers, foreign keys for chunk cascade
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func finishOpen(ctx context.Context, db *DB) (*DB, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", db.Dialect, err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func postgresDSN(cfg *config.Config, password string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.DBUser, password),
		Host:     cfg.DBHost + ":" + strconv.Itoa(cfg.DBPort),
		Path:     "/" + cfg.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Rebind rewrites ? placeholders to $1..$n for Postgres
func (db *DB) Rebind(query string) string {
	if db.Dialect != DialectPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Placeholders returns n comma separated ? markers
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
