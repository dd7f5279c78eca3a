package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical/verbatim/internal/domain"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS unit_cache (
	artifact_id TEXT NOT NULL,
	unit_kind   TEXT NOT NULL,
	unit_id     TEXT NOT NULL,
	text        TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (artifact_id, unit_kind, unit_id)
)`

// SQLStore keeps entries in a relational table. It serves both SQLite and Postgres.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQLite opens (and creates) a SQLite cache database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, domain.IOError("create sqlite directory", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, "sqlite3")
}

// OpenPostgres connects to a Postgres cache database.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return newSQLStore(ctx, db, "postgres")
}

func newSQLStore(ctx context.Context, db *sql.DB, driver string) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create unit_cache table: %w", err)
	}
	return &SQLStore{db: db, driver: driver}, nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Get implements domain.UnitCache.
func (s *SQLStore) Get(ctx context.Context, key domain.UnitKey) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	var text string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT text FROM unit_cache WHERE artifact_id = ? AND unit_kind = ? AND unit_id = ?`),
		key.ArtifactID, string(key.Kind), key.UnitID,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.IOError("query cache entry "+key.String(), err)
	}
	return text, true, nil
}

// Put implements domain.UnitCache. The insert commits before Put returns.
func (s *SQLStore) Put(ctx context.Context, key domain.UnitKey, text string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	trimmed, err := normalize(key, text)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO unit_cache (artifact_id, unit_kind, unit_id, text) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`),
		key.ArtifactID, string(key.Kind), key.UnitID, trimmed,
	)
	if err != nil {
		return domain.IOError("insert cache entry "+key.String(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.IOError("insert cache entry "+key.String(), err)
	}
	if n == 0 {
		return domain.CacheConflictError(key)
	}
	return nil
}

// Close implements domain.UnitCache.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

var _ domain.UnitCache = (*SQLStore)(nil)
