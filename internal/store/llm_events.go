package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

const llmEventsTable = "llm_request_events"

// LLMEvent is a stored model call.
type LLMEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// UsageStat aggregates calls per purpose or per model.
type UsageStat struct {
	Key          string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

func (l *EventLog) AppendLLMRequest(ctx context.Context, d LLMRequestEventData) error {
	seq, err := l.seq.Next(ctx)
	if err != nil {
		return err
	}
	query, args := builder().
		Insert(llmEventsTable).
		Columns("sequence", "timestamp", "provider", "model", "purpose", "input_tokens", "output_tokens",
			"latency_ms", "success", "error_message", "request_body", "response_body").
		Values(seq, clock(), d.Provider, d.Model, d.Purpose, d.InputTokens, d.OutputTokens,
			d.LatencyMs, d.Success, d.ErrorMessage, d.RequestBody, d.ResponseBody).
		Query()
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save llm request event: %w", err)
	}
	return nil
}

var llmEventColumns = []string{
	"id", "sequence", "timestamp", "provider", "model", "purpose", "input_tokens", "output_tokens",
	"latency_ms", "success", "error_message", "request_body", "response_body",
}

func scanLLMEvent(scan func(dest ...any) error) (*LLMEvent, error) {
	var e LLMEvent
	err := scan(&e.ID, &e.Sequence, &e.Timestamp, &e.Provider, &e.Model, &e.Purpose, &e.InputTokens,
		&e.OutputTokens, &e.LatencyMs, &e.Success, &e.ErrorMessage, &e.RequestBody, &e.ResponseBody)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// applyOpts adds the QueryOpts filters, newest first.
func applyOpts(sel *entsql.Selector, opts QueryOpts) *entsql.Selector {
	var preds []*entsql.Predicate
	if opts.After > 0 {
		preds = append(preds, entsql.GT("sequence", opts.After))
	}
	if opts.Before > 0 {
		preds = append(preds, entsql.LT("sequence", opts.Before))
	}
	if !opts.From.IsZero() {
		preds = append(preds, entsql.GTE("timestamp", opts.From))
	}
	if !opts.To.IsZero() {
		preds = append(preds, entsql.LTE("timestamp", opts.To))
	}
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	sel = sel.OrderBy(entsql.Desc("sequence"))
	if opts.Limit > 0 {
		sel = sel.Limit(opts.Limit)
	}
	return sel
}

// QueryLLMEvents returns model calls, newest first. An empty purpose
// matches every call.
func (l *EventLog) QueryLLMEvents(ctx context.Context, purpose string, opts QueryOpts) ([]LLMEvent, error) {
	sel := builder().Select(llmEventColumns...).From(entsql.Table(llmEventsTable))
	if purpose != "" {
		sel = sel.Where(entsql.EQ("purpose", purpose))
	}
	query, args := applyOpts(sel, opts).Query()

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query llm events: %w", err)
	}
	defer rows.Close()

	var out []LLMEvent
	for rows.Next() {
		e, err := scanLLMEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan llm event: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetLLMEvent returns one model call, or nil when id is unknown.
func (l *EventLog) GetLLMEvent(ctx context.Context, id int) (*LLMEvent, error) {
	query, args := builder().
		Select(llmEventColumns...).
		From(entsql.Table(llmEventsTable)).
		Where(entsql.EQ("id", id)).
		Query()
	e, err := scanLLMEvent(l.db.QueryRowContext(ctx, query, args...).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get llm event %d: %w", id, err)
	}
	return e, nil
}

// LLMUsageByPurpose aggregates token usage per purpose label.
func (l *EventLog) LLMUsageByPurpose(ctx context.Context) ([]UsageStat, error) {
	return l.usageBy(ctx, "purpose")
}

// LLMUsageByModel aggregates token usage per model id.
func (l *EventLog) LLMUsageByModel(ctx context.Context) ([]UsageStat, error) {
	return l.usageBy(ctx, "model")
}

func (l *EventLog) usageBy(ctx context.Context, column string) ([]UsageStat, error) {
	query, args := builder().
		Select(
			column,
			entsql.Count("*"),
			"COALESCE(SUM(`input_tokens`), 0)",
			"COALESCE(SUM(`output_tokens`), 0)",
			"CAST(COALESCE(AVG(`latency_ms`), 0) AS INTEGER)",
		).
		From(entsql.Table(llmEventsTable)).
		GroupBy(column).
		OrderBy(column).
		Query()

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate llm usage by %s: %w", column, err)
	}
	defer rows.Close()

	var out []UsageStat
	for rows.Next() {
		var s UsageStat
		if err := rows.Scan(&s.Key, &s.Calls, &s.InputTokens, &s.OutputTokens, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
