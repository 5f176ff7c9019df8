package store

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

const stageEventsTable = "stage_events"

// StageEvent is a stored stage transition.
type StageEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	StageEventData
}

func (l *EventLog) AppendStageEvent(ctx context.Context, d StageEventData) error {
	seq, err := l.seq.Next(ctx)
	if err != nil {
		return err
	}
	query, args := builder().
		Insert(stageEventsTable).
		Columns("sequence", "timestamp", "session_id", "stage", "kind", "value", "confidence", "attempts").
		Values(seq, clock(), d.SessionID, d.Stage, string(d.Kind), d.Value, d.Confidence, d.Attempts).
		Query()
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save stage event: %w", err)
	}
	return nil
}

// QueryStageEvents returns the transitions of one session, newest first.
func (l *EventLog) QueryStageEvents(ctx context.Context, sessionID string, opts QueryOpts) ([]StageEvent, error) {
	sel := builder().
		Select("id", "sequence", "timestamp", "session_id", "stage", "kind", "value", "confidence", "attempts").
		From(entsql.Table(stageEventsTable)).
		Where(entsql.EQ("session_id", sessionID))
	query, args := applyOpts(sel, opts).Query()

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stage events: %w", err)
	}
	defer rows.Close()

	var out []StageEvent
	for rows.Next() {
		var (
			e    StageEvent
			kind string
		)
		if err := rows.Scan(&e.ID, &e.Sequence, &e.Timestamp, &e.SessionID, &e.Stage, &kind,
			&e.Value, &e.Confidence, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		e.Kind = StageEventKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
