package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// sequenceCounter hands out one monotonic sequence shared by every event
// table, so LLM calls and stage transitions can be interleaved in the order
// they happened. The mutex serializes within the process; UPDATE ...
// RETURNING makes the increment atomic in the database.
type sequenceCounter struct {
	mu sync.Mutex
	db *sql.DB
}

func newSequenceCounter(db *sql.DB) (*sequenceCounter, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS global_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_val INTEGER NOT NULL DEFAULT 1
	)`)
	if err != nil {
		return nil, fmt.Errorf("create sequence table: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO global_sequence (id, next_val) VALUES (1, 1)`); err != nil {
		return nil, fmt.Errorf("seed sequence: %w", err)
	}
	return &sequenceCounter{db: db}, nil
}

// Next returns the next sequence number.
func (sc *sequenceCounter) Next(ctx context.Context) (int64, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var seq int64
	err := sc.db.QueryRowContext(ctx,
		`UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}

// LLMRequestEventData describes one model call.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// StageEventKind names what happened to a stage record.
type StageEventKind string

const (
	StageEventClarify           StageEventKind = "clarify"
	StageEventProposed          StageEventKind = "proposed"
	StageEventForced            StageEventKind = "forced"
	StageEventConfirmed         StageEventKind = "confirmed"
	StageEventDeclined          StageEventKind = "declined"
	StageEventRejectAffirmation StageEventKind = "reject_affirmation"
	StageEventAbandoned         StageEventKind = "abandoned"
	StageEventGatewayFailure    StageEventKind = "gateway_failure"
	StageEventTerminated        StageEventKind = "terminated"
)

// StageEventData describes one gate decision applied to a session.
type StageEventData struct {
	SessionID  string
	Stage      string
	Kind       StageEventKind
	Value      string
	Confidence float64
	Attempts   int
}

// EventRepo appends domain events.
type EventRepo interface {
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error
	AppendStageEvent(ctx context.Context, data StageEventData) error
}

// NopEventRepo discards every event. It is used when the session backend
// has no SQLite database attached.
type NopEventRepo struct{}

func (NopEventRepo) AppendLLMRequest(context.Context, LLMRequestEventData) error { return nil }
func (NopEventRepo) AppendStageEvent(context.Context, StageEventData) error      { return nil }

// QueryOpts filters and paginates event queries.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// EventLog is the SQLite-backed EventRepo with query support for the CLI.
type EventLog struct {
	db  *sql.DB
	seq *sequenceCounter
}

var _ EventRepo = (*EventLog)(nil)
