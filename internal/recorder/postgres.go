package recorder

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codex-k8s/command-router/internal/protocol"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS interaction_history (
	id          BIGSERIAL PRIMARY KEY,
	session     TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	raw_text    TEXT NOT NULL,
	capability  TEXT NOT NULL DEFAULT '',
	arguments   TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
)`

// Postgres is a Store backed by the interaction_history table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the table exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create interaction_history: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Append implements Store.
func (p *Postgres) Append(ctx context.Context, rec protocol.Record) (uint64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO interaction_history
			(session, recorded_at, raw_text, capability, arguments, status, reason, summary, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		rec.Session, rec.Timestamp, rec.RawText, rec.Capability, rec.Arguments,
		rec.Status, rec.Reason, rec.Summary, rec.StartedAt, rec.FinishedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert interaction: %w", err)
	}
	return uint64(id), nil
}

// History implements Store.
func (p *Postgres) History(ctx context.Context, limit int) ([]protocol.Record, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, session, recorded_at, raw_text, capability, arguments, status, reason, summary, started_at, finished_at
		FROM interaction_history ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []protocol.Record
	for rows.Next() {
		var (
			rec protocol.Record
			id  int64
		)
		if err := rows.Scan(&id, &rec.Session, &rec.Timestamp, &rec.RawText, &rec.Capability,
			&rec.Arguments, &rec.Status, &rec.Reason, &rec.Summary, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Sequence = uint64(id)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close implements Store.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
