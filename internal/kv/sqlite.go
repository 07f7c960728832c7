package kv

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key     TEXT PRIMARY KEY,
	value   BLOB NOT NULL,
	expires INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS kv_by_expires ON kv(expires) WHERE expires > 0;
`

// SQLite keeps values in a single table with an indexed expiration column.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := "file:" + path + "?_journal_mode=wal&_sync=1&_busy_timeout=20000"
	if path == ":memory:" {
		dsn = "file::memory:?mode=memory"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return value, err
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte, expires time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO kv (key, value, expires) VALUES (?, ?, ?) "+
			"ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires = excluded.expires",
		key, value, expiresNano(expires))
	return err
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	return err
}

func (s *SQLite) ScanExpired(ctx context.Context, now time.Time, fn func(key string, value []byte) error) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM kv WHERE expires > 0 AND expires <= ? ORDER BY expires", now.UnixNano())
	if err != nil {
		return err
	}
	var expired []entry
	for rows.Next() {
		var e entry
		if err = rows.Scan(&e.key, &e.value); err != nil {
			rows.Close()
			return err
		}
		expired = append(expired, e)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}
	// the single connection is free again, fn may write
	for _, e := range expired {
		if err = fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Count(ctx context.Context, prefix string) (int, error) {
	var count int
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv WHERE key LIKE ? ESCAPE '\'`, escaped+"%").Scan(&count)
	return count, err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
