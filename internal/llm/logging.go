package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/learnintake/internal/logger"
	"github.com/abhisek/learnintake/internal/store"
)

// LoggingProvider records every request to the event log and the process
// logger.
type LoggingProvider struct {
	inner  Provider
	name   string
	events store.EventRepo
	log    *logger.Logger
}

// WithLogging wraps p. name identifies the provider backend in events.
func WithLogging(p Provider, name string, events store.EventRepo, log *logger.Logger) Provider {
	if events == nil {
		events = store.NopEventRepo{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LoggingProvider{inner: p, name: name, events: events, log: log}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	latency := time.Since(start)

	data := store.LLMRequestEventData{
		Provider:    l.name,
		Model:       l.inner.ModelID(),
		Purpose:     PurposeFrom(ctx),
		LatencyMs:   latency.Milliseconds(),
		Success:     err == nil,
		RequestBody: describeRequest(req),
	}
	if resp != nil {
		data.Model = resp.Model
		data.InputTokens = resp.Usage.InputTokens
		data.OutputTokens = resp.Usage.OutputTokens
		data.ResponseBody = string(resp.Content)
	}
	if err != nil {
		data.ErrorMessage = err.Error()
		l.log.Warn("llm request failed", "purpose", data.Purpose, "model", data.Model,
			"latency_ms", data.LatencyMs, "error", err)
	} else {
		l.log.Debug("llm request", "purpose", data.Purpose, "model", data.Model,
			"latency_ms", data.LatencyMs, "input_tokens", data.InputTokens, "output_tokens", data.OutputTokens)
	}

	// A lost event must not fail the request. The write is detached from
	// ctx so a cancelled turn still leaves a trace.
	if logErr := l.events.AppendLLMRequest(context.WithoutCancel(ctx), data); logErr != nil {
		l.log.Warn("record llm request event", "error", logErr)
	}
	return resp, err
}

func (l *LoggingProvider) ModelID() string { return l.inner.ModelID() }

// describeRequest renders req in a readable form for `llm view`.
func describeRequest(req Request) string {
	var b strings.Builder
	if req.System != "" {
		fmt.Fprintf(&b, "[system]\n%s\n\n", req.System)
	}
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", m.Role, m.Content)
	}
	if req.Schema != nil {
		if def, err := json.Marshal(req.Schema.Definition); err == nil {
			fmt.Fprintf(&b, "[schema: %s]\n%s\n", req.Schema.Name, def)
		}
	}
	return b.String()
}
