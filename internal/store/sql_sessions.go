package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/learnintake/internal/assessment"
)

const sessionsTable = "sessions"

// SQLSessions is a SessionStore on the sessions table. Each session is one
// row holding the JSON document plus a few indexed summary columns.
type SQLSessions struct {
	db *sql.DB
}

func builder() *entsql.DialectBuilder { return entsql.Dialect(dialect.SQLite) }

func (r *SQLSessions) Load(ctx context.Context, id string) (*assessment.Session, error) {
	query, args := builder().
		Select("version", "data").
		From(entsql.Table(sessionsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	var (
		version int64
		data    string
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return assessment.NewSession(id, clock()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var s assessment.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	// The column is authoritative for the concurrency check.
	s.Version = version
	return &s, nil
}

func (r *SQLSessions) Save(ctx context.Context, s *assessment.Session) error {
	next := *s
	next.Version = s.Version + 1
	raw, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}

	var (
		query string
		args  []any
	)
	if s.Version == 0 {
		query, args = builder().
			Insert(sessionsTable).
			Columns("id", "version", "stage", "completed", "terminated", "data", "created_at", "updated_at").
			Values(s.ID, next.Version, s.Cursor.String(), s.Completed, s.Terminated, string(raw), s.CreatedAt, s.UpdatedAt).
			OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
			Query()
	} else {
		query, args = builder().
			Update(sessionsTable).
			Set("version", next.Version).
			Set("stage", s.Cursor.String()).
			Set("completed", s.Completed).
			Set("terminated", s.Terminated).
			Set("data", string(raw)).
			Set("updated_at", s.UpdatedAt).
			Where(entsql.And(entsql.EQ("id", s.ID), entsql.EQ("version", s.Version))).
			Query()
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	s.Version = next.Version
	return nil
}

func (r *SQLSessions) Exists(ctx context.Context, id string) (bool, error) {
	query, args := builder().
		Select(entsql.Count("*")).
		From(entsql.Table(sessionsTable)).
		Where(entsql.EQ("id", id)).
		Query()
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check session %s: %w", id, err)
	}
	return n > 0, nil
}

// SessionSummary is one row of List.
type SessionSummary struct {
	ID         string
	Stage      string
	Completed  bool
	Terminated bool
	UpdatedAt  time.Time
}

// List returns the most recently updated sessions.
func (r *SQLSessions) List(ctx context.Context, limit int) ([]SessionSummary, error) {
	sel := builder().
		Select("id", "stage", "completed", "terminated", "updated_at").
		From(entsql.Table(sessionsTable)).
		OrderBy(entsql.Desc("updated_at"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.ID, &s.Stage, &s.Completed, &s.Terminated, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
