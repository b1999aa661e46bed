package observation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcleai/statusboard/internal/status"
)

const schema = `
CREATE TABLE IF NOT EXISTS service_observations (
	service_id        TEXT PRIMARY KEY,
	last_status       TEXT NOT NULL,
	last_changed_at   TIMESTAMPTZ,
	last_seen_at      TIMESTAMPTZ,
	change_timestamps TIMESTAMPTZ[] NOT NULL DEFAULT '{}',
	flapping          BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS observation_incidents (
	seq         BIGSERIAL PRIMARY KEY,
	service_id  TEXT NOT NULL,
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS observation_incidents_service_idx
	ON observation_incidents (service_id, seq DESC);
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL observations repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating observation schema: %w", err)
	}
	return nil
}

// Load reads every observation and the incident history in insertion order.
func (r *PostgresRepository) Load(ctx context.Context) (State, error) {
	s := NewState()

	rows, err := r.pool.Query(ctx, `
		SELECT service_id, last_status, last_changed_at, last_seen_at, change_timestamps, flapping
		FROM service_observations
	`)
	if err != nil {
		return State{}, fmt.Errorf("querying observations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id            string
			last          string
			changed, seen *time.Time
			ts            []time.Time
			flapping      bool
		)
		if err := rows.Scan(&id, &last, &changed, &seen, &ts, &flapping); err != nil {
			return State{}, fmt.Errorf("scanning observation: %w", err)
		}
		o := Observation{LastStatus: status.Status(last), ChangeTimestamps: ts, Flapping: flapping}
		if changed != nil {
			o.LastChangedAt = changed.UTC()
		}
		if seen != nil {
			o.LastSeenAt = seen.UTC()
		}
		s.Services[id] = o
	}
	if err := rows.Err(); err != nil {
		return State{}, fmt.Errorf("iterating observations: %w", err)
	}

	incRows, err := r.pool.Query(ctx, `
		SELECT service_id, from_status, to_status, at
		FROM observation_incidents
		ORDER BY seq
	`)
	if err != nil {
		return State{}, fmt.Errorf("querying incidents: %w", err)
	}
	defer incRows.Close()

	for incRows.Next() {
		var (
			inc      status.Incident
			from, to string
		)
		if err := incRows.Scan(&inc.ServiceID, &from, &to, &inc.At); err != nil {
			return State{}, fmt.Errorf("scanning incident: %w", err)
		}
		inc.From, inc.To, inc.At = status.Status(from), status.Status(to), inc.At.UTC()
		s.History = append(s.History, inc)
	}
	if err := incRows.Err(); err != nil {
		return State{}, fmt.Errorf("iterating incidents: %w", err)
	}

	if n := len(s.History); n > 0 {
		last := s.History[n-1]
		s.LastIncident = &last
	}
	return s, nil
}

// Save replaces both tables inside one transaction.
func (r *PostgresRepository) Save(ctx context.Context, state State) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM service_observations`); err != nil {
		return fmt.Errorf("clearing observations: %w", err)
	}

	obsRows := make([][]any, 0, len(state.Services))
	for id, o := range state.Services {
		ts := o.ChangeTimestamps
		if ts == nil {
			ts = []time.Time{}
		}
		obsRows = append(obsRows, []any{id, string(o.LastStatus), nullTime(o.LastChangedAt), nullTime(o.LastSeenAt), ts, o.Flapping})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"service_observations"},
		[]string{"service_id", "last_status", "last_changed_at", "last_seen_at", "change_timestamps", "flapping"},
		pgx.CopyFromRows(obsRows),
	); err != nil {
		return fmt.Errorf("writing observations: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM observation_incidents`); err != nil {
		return fmt.Errorf("clearing incidents: %w", err)
	}
	incRows := make([][]any, 0, len(state.History))
	for _, inc := range state.History {
		incRows = append(incRows, []any{inc.ServiceID, string(inc.From), string(inc.To), inc.At})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"observation_incidents"},
		[]string{"service_id", "from_status", "to_status", "at"},
		pgx.CopyFromRows(incRows),
	); err != nil {
		return fmt.Errorf("writing incidents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit observations: %w", err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
