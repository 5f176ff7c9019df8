package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/learnintake/internal/config"
	"github.com/abhisek/learnintake/internal/dialog"
	"github.com/abhisek/learnintake/internal/extractor"
	"github.com/abhisek/learnintake/internal/llm"
	"github.com/abhisek/learnintake/internal/logger"
	"github.com/abhisek/learnintake/internal/store"
	"github.com/abhisek/learnintake/internal/telemetry"
)

// deps is the set of dependencies a command works with.
type deps struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *store.Store // nil unless a SQLite database is open
	sessions store.SessionStore
	events   store.EventRepo
	orch     *dialog.Orchestrator

	closers []func(context.Context) error
}

// newDeps loads the config and opens the session backend. With withLLM
// the model provider is built and the orchestrator can process turns;
// without it only read-only and terminate operations are usable.
func newDeps(cmd *cobra.Command, withLLM bool) (*deps, error) {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Options{Mode: cfg.Log.Mode, Level: cfg.Log.Level, Redact: cfg.Log.Redact})
	if err != nil {
		return nil, err
	}
	rt := &deps{cfg: cfg, log: log, events: store.NopEventRepo{}}
	rt.closers = append(rt.closers, func(context.Context) error { log.Sync(); return nil })

	shutdown, err := telemetry.Init(ctx, log, cfg.Telemetry, version)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	rt.closers = append(rt.closers, shutdown)

	if err := rt.openSessions(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	var ext dialog.Extractor
	if withLLM {
		if err := cfg.ValidateLLM(); err != nil {
			rt.Close()
			return nil, fmt.Errorf("LLM provider not configured: %w", err)
		}
		provider, err := llm.NewProvider(ctx, cfg.LLM, rt.events, log)
		if err != nil {
			rt.Close()
			return nil, err
		}
		gw := extractor.NewLLMGateway(provider, cfg.LLM.MaxTokens, cfg.LLM.Temperature)
		ext = extractor.New(gw, cfg.Assessment.Extractor())
	}

	updater := store.NewUpdater(rt.sessions)
	updater.MaxRetries = cfg.Store.MaxConflictRetries
	rt.orch = dialog.New(updater, ext, cfg.Assessment.Dialog(), rt.events, log)
	return rt, nil
}

func (rt *deps) openSessions(ctx context.Context) error {
	switch rt.cfg.Store.Backend {
	case config.BackendSQLite:
		db, err := store.Open(rt.cfg.Store.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		rt.db = db
		rt.sessions = db.Sessions()
		rt.events = db.Events()
		rt.closers = append(rt.closers, func(context.Context) error { return db.Close() })
	case config.BackendRedis:
		rs, err := store.NewRedisSessions(ctx, rt.cfg.Store.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		rt.sessions = rs
		rt.closers = append(rt.closers, func(context.Context) error { return rs.Close() })
	default:
		rt.sessions = store.NewMemorySessions()
	}
	rt.log.Debug("session store ready", "backend", rt.cfg.Store.Backend)
	return nil
}

// eventLog returns the SQLite event log, which the inspection commands need.
func (rt *deps) eventLog() (*store.EventLog, error) {
	if rt.db == nil {
		return nil, fmt.Errorf("events are only recorded by the %s backend", config.BackendSQLite)
	}
	return rt.db.Events(), nil
}

// Close releases everything in reverse order of acquisition.
func (rt *deps) Close() error {
	ctx := context.Background()
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// withDeps runs fn with deps that is closed afterwards.
func withDeps(cmd *cobra.Command, withLLM bool, fn func(ctx context.Context, rt *deps) error) error {
	rt, err := newDeps(cmd, withLLM)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(cmd.Context(), rt)
}
