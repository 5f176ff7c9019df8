package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/learnintake/internal/assessment"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPragmasApplied(t *testing.T) {
	db := openTestStore(t).DB()
	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
	}
	for _, tt := range tests {
		var got string
		if err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got); err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestMigrationCreatesTables(t *testing.T) {
	db := openTestStore(t).DB()
	for _, table := range []string{"sessions", "llm_request_events", "stage_events", "global_sequence"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	for i := 0; i < 2; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		s.Close()
	}
}

// sessionStores returns every backend available in this environment.
func sessionStores(t *testing.T) map[string]SessionStore {
	t.Helper()
	stores := map[string]SessionStore{
		"memory": NewMemorySessions(),
		"sqlite": openTestStore(t).Sessions(),
	}
	if addr := os.Getenv("LEARNINTAKE_TEST_REDIS_ADDR"); addr != "" {
		rs, err := NewRedisSessions(context.Background(), RedisConfig{
			Addr:   addr,
			Prefix: "learnintake-test:" + t.Name() + ":" + time.Now().Format("150405.000000") + ":",
			TTL:    time.Minute,
		})
		if err != nil {
			t.Fatalf("redis: %v", err)
		}
		t.Cleanup(func() { rs.Close() })
		stores["redis"] = rs
	}
	return stores
}

func TestSessionStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, ss := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := ss.Exists(ctx, "s1")
			if err != nil || ok {
				t.Fatalf("Exists before save = %v, %v", ok, err)
			}

			fresh, err := ss.Load(ctx, "s1")
			if err != nil {
				t.Fatalf("load fresh: %v", err)
			}
			if fresh.Version != 0 || fresh.Cursor != assessment.StageTopic || len(fresh.Records) != assessment.StageCount {
				t.Fatalf("fresh session = %+v", fresh)
			}
			if ok, _ := ss.Exists(ctx, "s1"); ok {
				t.Fatal("Load must not create the session")
			}

			fresh.Records[assessment.StageTopic].Value = "파이썬 웹 개발"
			fresh.Records[assessment.StageTopic].Status = assessment.StatusAwaitingConfirmation
			fresh.AppendMessage(assessment.RoleUser, "파이썬 웹 개발", assessment.StageTopic, time.Now().UTC())
			if err := ss.Save(ctx, fresh); err != nil {
				t.Fatalf("save: %v", err)
			}
			if fresh.Version != 1 {
				t.Errorf("version after save = %d, want 1", fresh.Version)
			}

			loaded, err := ss.Load(ctx, "s1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if loaded.Version != 1 || loaded.Records[assessment.StageTopic].Value != "파이썬 웹 개발" || len(loaded.History) != 1 {
				t.Errorf("loaded = %+v", loaded)
			}
			if ok, _ := ss.Exists(ctx, "s1"); !ok {
				t.Error("Exists after save = false")
			}

			// A writer holding the version-0 copy lost the race.
			stale := assessment.NewSession("s1", time.Now().UTC())
			if err := ss.Save(ctx, stale); !errors.Is(err, ErrVersionConflict) {
				t.Errorf("stale insert err = %v, want ErrVersionConflict", err)
			}

			loaded.Records[assessment.StageTopic].Status = assessment.StatusConfirmed
			loaded.Cursor = assessment.StageGoal
			if err := ss.Save(ctx, loaded); err != nil {
				t.Fatalf("second save: %v", err)
			}
			old := loaded.Clone()
			old.Version = 1
			if err := ss.Save(ctx, old); !errors.Is(err, ErrVersionConflict) {
				t.Errorf("stale update err = %v, want ErrVersionConflict", err)
			}

			final, _ := ss.Load(ctx, "s1")
			if final.Version != 2 || final.Cursor != assessment.StageGoal {
				t.Errorf("final = version %d cursor %s", final.Version, final.Cursor)
			}
		})
	}
}

func TestSQLSessionsList(t *testing.T) {
	ctx := context.Background()
	ss := openTestStore(t).Sessions()
	for _, id := range []string{"a", "b", "c"} {
		s, _ := ss.Load(ctx, id)
		if err := ss.Save(ctx, s); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	got, err := ss.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Stage != "topic" {
		t.Errorf("stage = %q", got[0].Stage)
	}
}

func TestUpdaterNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	for name, ss := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			// Two updaters with separate locks behave like two processes
			// sharing a backend, so only the version check protects them.
			a, b := NewUpdater(ss), NewUpdater(ss)
			a.MaxRetries, b.MaxRetries = 100, 100

			const writers = 20
			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for i := range writers {
				u := a
				if i%2 == 1 {
					u = b
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := u.Update(ctx, "shared", func(_ context.Context, s *assessment.Session) (bool, error) {
						s.AppendMessage(assessment.RoleUser, "hi", s.Cursor, time.Now().UTC())
						return true, nil
					})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					t.Fatalf("update: %v", err)
				}
			}

			s, _ := ss.Load(ctx, "shared")
			if len(s.History) != writers {
				t.Errorf("history = %d entries, want %d", len(s.History), writers)
			}
			if s.Version != writers {
				t.Errorf("version = %d, want %d", s.Version, writers)
			}
		})
	}
}

type alwaysConflict struct{ *MemorySessions }

func (alwaysConflict) Save(context.Context, *assessment.Session) error { return ErrVersionConflict }

func TestUpdaterGivesUpAfterRetries(t *testing.T) {
	u := NewUpdater(alwaysConflict{NewMemorySessions()})
	calls := 0
	_, err := u.Update(context.Background(), "x", func(context.Context, *assessment.Session) (bool, error) {
		calls++
		return true, nil
	})
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("err = %v, want ErrConcurrentUpdate", err)
	}
	if calls != DefaultMaxConflictRetries+1 {
		t.Errorf("mutation ran %d times, want %d", calls, DefaultMaxConflictRetries+1)
	}
}

func TestUpdaterSkipsWrite(t *testing.T) {
	ss := NewMemorySessions()
	u := NewUpdater(ss)
	_, err := u.Update(context.Background(), "x", func(context.Context, *assessment.Session) (bool, error) {
		return false, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if ok, _ := ss.Exists(context.Background(), "x"); ok {
		t.Error("skipped mutation must not persist")
	}
}

func TestUpdaterPropagatesMutationError(t *testing.T) {
	boom := errors.New("boom")
	u := NewUpdater(NewMemorySessions())
	_, err := u.Update(context.Background(), "x", func(context.Context, *assessment.Session) (bool, error) {
		return true, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := NewKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("k")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if km.Len() != 0 {
		t.Errorf("tracked keys = %d, want 0", km.Len())
	}
}

func TestSequenceCounter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		seq, err := s.seq.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if seq != i {
			t.Errorf("seq = %d, want %d", seq, i)
		}
	}
}

func TestEventLog(t *testing.T) {
	ctx := context.Background()
	events := openTestStore(t).Events()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(events.AppendLLMRequest(ctx, LLMRequestEventData{
		Provider: "mock", Model: "mock", Purpose: "extract:topic",
		InputTokens: 100, OutputTokens: 20, LatencyMs: 40, Success: true,
		RequestBody: "[user]\n파이썬", ResponseBody: `{"value":"파이썬"}`,
	}))
	must(events.AppendStageEvent(ctx, StageEventData{
		SessionID: "s1", Stage: "topic", Kind: StageEventProposed, Value: "파이썬", Confidence: 0.9,
	}))
	must(events.AppendLLMRequest(ctx, LLMRequestEventData{
		Provider: "mock", Model: "mock", Purpose: "extract:goal",
		InputTokens: 50, OutputTokens: 10, LatencyMs: 20, Success: false, ErrorMessage: "timeout",
	}))

	llmEvents, err := events.QueryLLMEvents(ctx, "", QueryOpts{})
	must(err)
	if len(llmEvents) != 2 {
		t.Fatalf("llm events = %d, want 2", len(llmEvents))
	}
	if llmEvents[0].Sequence != 3 || llmEvents[1].Sequence != 1 {
		t.Errorf("sequences = %d,%d, want 3,1 (shared counter, newest first)", llmEvents[0].Sequence, llmEvents[1].Sequence)
	}

	filtered, err := events.QueryLLMEvents(ctx, "extract:topic", QueryOpts{Limit: 5})
	must(err)
	if len(filtered) != 1 || filtered[0].ResponseBody != `{"value":"파이썬"}` {
		t.Errorf("filtered = %+v", filtered)
	}

	got, err := events.GetLLMEvent(ctx, llmEvents[0].ID)
	must(err)
	if got == nil || got.ErrorMessage != "timeout" || got.Success {
		t.Errorf("get = %+v", got)
	}
	missing, err := events.GetLLMEvent(ctx, 999)
	must(err)
	if missing != nil {
		t.Error("unknown id should return nil")
	}

	usage, err := events.LLMUsageByPurpose(ctx)
	must(err)
	if len(usage) != 2 || usage[1].Key != "extract:topic" || usage[1].InputTokens != 100 || usage[1].AvgLatencyMs != 40 {
		t.Errorf("usage = %+v", usage)
	}
	byModel, err := events.LLMUsageByModel(ctx)
	must(err)
	if len(byModel) != 1 || byModel[0].Calls != 2 {
		t.Errorf("by model = %+v", byModel)
	}

	stageEvents, err := events.QueryStageEvents(ctx, "s1", QueryOpts{})
	must(err)
	if len(stageEvents) != 1 || stageEvents[0].Kind != StageEventProposed || stageEvents[0].Sequence != 2 {
		t.Errorf("stage events = %+v", stageEvents)
	}
	after, err := events.QueryStageEvents(ctx, "s1", QueryOpts{After: 2})
	must(err)
	if len(after) != 0 {
		t.Errorf("events after seq 2 = %d, want 0", len(after))
	}
}

func TestNopEventRepo(t *testing.T) {
	var repo EventRepo = NopEventRepo{}
	if err := repo.AppendStageEvent(context.Background(), StageEventData{}); err != nil {
		t.Errorf("nop append: %v", err)
	}
}
