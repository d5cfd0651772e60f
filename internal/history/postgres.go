package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the transcript history table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS transcript_history (
    id          TEXT         PRIMARY KEY,
    session_id  TEXT         NOT NULL DEFAULT '',
    provider    TEXT         NOT NULL DEFAULT '',
    mode        TEXT         NOT NULL DEFAULT '',
    text        TEXT         NOT NULL,
    duration_ns BIGINT       NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transcript_history_created_at ON transcript_history(created_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL table.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store using db. Call [PostgresStore.Migrate]
// before the first query.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Record implements [Store].
func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	e = prepare(e)
	const q = `
		INSERT INTO transcript_history (id, session_id, provider, mode, text, duration_ns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.Exec(ctx, q,
		e.ID, e.SessionID, e.Provider, e.Mode, e.Text, e.Duration.Nanoseconds(), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	q := `
		SELECT id, session_id, provider, mode, text, duration_ns, created_at
		FROM   transcript_history
		ORDER  BY created_at DESC`
	var args []any
	if limit > 0 {
		q += "\nLIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e          Entry
			durationNS int64
		)
		if err := row.Scan(&e.ID, &e.SessionID, &e.Provider, &e.Mode, &e.Text, &durationNS, &e.CreatedAt); err != nil {
			return Entry{}, err
		}
		e.Duration = time.Duration(durationNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: scan rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
