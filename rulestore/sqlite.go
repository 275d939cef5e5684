package rulestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aquamarinepk/warden/redirect"
	"github.com/aquamarinepk/warden/subject"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS notfound_rules (
	subject    TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
)`

// SQLite stores rules in an embedded database. Rows keep the option-map shape
// (type plus one payload column) and are decoded on read.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens path, creating the file and schema when missing. Use
// ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return NewSQLite(db), nil
}

// NewSQLite wraps an open database whose schema is already in place.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

// DB exposes the handle for seed tracking and health checks.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Get(ctx context.Context, key subject.Key) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT subject, type, payload, updated_at FROM notfound_rules WHERE subject = ?`, key.String())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (s *SQLite) Save(ctx context.Context, key subject.Key, rule redirect.Rule) (Record, error) {
	rec, err := newRecord(key, rule, s.now())
	if err != nil {
		return Record{}, err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO notfound_rules (subject, type, payload, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(subject) DO UPDATE SET type = excluded.type, payload = excluded.payload, updated_at = excluded.updated_at`,
		rec.Key, string(rec.Rule.Type), rec.Rule.Payload(), rec.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Record{}, fmt.Errorf("sqlite save rule: %w", err)
	}
	return rec, nil
}

func (s *SQLite) Delete(ctx context.Context, key subject.Key) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notfound_rules WHERE subject = ?`, key.String())
	if err != nil {
		return fmt.Errorf("sqlite delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite delete rule: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject, type, payload, updated_at FROM notfound_rules ORDER BY subject`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list rules: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite list rules: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var key, typ, payload, updated string
	if err := row.Scan(&key, &typ, &payload, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("sqlite scan rule: %w", err)
	}
	rule, err := redirect.Decode(map[string]string{
		redirect.OptionType:         typ,
		redirect.OptionPrefix + typ: payload,
	})
	if err != nil {
		return Record{}, fmt.Errorf("rulestore: stored rule %s: %w", key, err)
	}
	at, _ := time.Parse(time.RFC3339Nano, updated)
	return Record{Key: key, Rule: rule, UpdatedAt: at}, nil
}
