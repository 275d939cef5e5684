package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS _seeds (
	application TEXT NOT NULL,
	id          TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	digest      TEXT NOT NULL DEFAULT '',
	applied_at  TEXT NOT NULL,
	PRIMARY KEY (application, id)
)`

// SQLTracker stores seed records in a SQL table, used with the SQLite rule store.
type SQLTracker struct {
	db *sql.DB
}

// NewSQLTracker creates the _seeds table when missing.
func NewSQLTracker(ctx context.Context, db *sql.DB) (*SQLTracker, error) {
	if db == nil {
		return nil, errors.New("sql tracker requires a database")
	}
	if _, err := db.ExecContext(ctx, sqlSchema); err != nil {
		return nil, fmt.Errorf("create seed table: %w", err)
	}
	return &SQLTracker{db: db}, nil
}

func (t *SQLTracker) Lookup(ctx context.Context, application, id string) (Record, bool, error) {
	rec := Record{Application: application, ID: id}
	var appliedAt string
	err := t.db.QueryRowContext(ctx,
		`SELECT description, digest, applied_at FROM _seeds WHERE application = ? AND id = ?`,
		application, id).Scan(&rec.Description, &rec.Digest, &appliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("query seed %s: %w", rec.Key(), err)
	}
	rec.AppliedAt, err = time.Parse(time.RFC3339Nano, appliedAt)
	if err != nil {
		return Record{}, false, fmt.Errorf("seed %s applied_at: %w", rec.Key(), err)
	}
	return rec, true, nil
}

func (t *SQLTracker) MarkRun(ctx context.Context, record Record) error {
	if err := record.validate(); err != nil {
		return err
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO _seeds (application, id, description, digest, applied_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (application, id) DO UPDATE SET
			description = excluded.description,
			digest = excluded.digest,
			applied_at = excluded.applied_at`,
		record.Application, record.ID, record.Description, record.Digest,
		record.AppliedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store seed record %s: %w", record.Key(), err)
	}
	return nil
}
