// Package server exposes the assessment conversation over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/learnintake/internal/assessment"
	"github.com/abhisek/learnintake/internal/dialog"
	"github.com/abhisek/learnintake/internal/logger"
	"github.com/abhisek/learnintake/internal/store"
)

// Service is the conversation API the handlers call.
type Service interface {
	Start(ctx context.Context, sessionID string) (*dialog.Response, error)
	HandleUtterance(ctx context.Context, sessionID, text string) (*dialog.Response, error)
	GetProgress(ctx context.Context, sessionID string) (*assessment.Progress, error)
	Terminate(ctx context.Context, sessionID, reason string) (*dialog.Response, error)
	Profile(ctx context.Context, sessionID string) (*assessment.Profile, error)
}

// Config for the HTTP API handler.
type Config struct {
	Service  Service
	BasePath string
	Version  string
	Log      *logger.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"session_busy"`
	Message string         `json:"message" example:"잠시 후 다시 말씀해 주세요."`
	Details map[string]any `json:"details,omitempty"`
}

// apiError is the error envelope {"error": {...}}.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

const notCompleteMessage = "아직 평가가 완료되지 않았습니다. 남은 단계를 먼저 진행해 주세요."

// New returns the HTTP handler.
func New(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("server: service is required")
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(log))

	hcfg := huma.DefaultConfig("learnintake API", version)
	hcfg.OpenAPIPath = basePath + "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := &handlers{svc: cfg.Service, log: log}
	registerHealth(group)
	h.register(group)
	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// handleError maps service errors to natural-language API errors.
func (h *handlers) handleError(ctx context.Context, op string, err error) huma.StatusError {
	switch {
	case errors.Is(err, store.ErrConcurrentUpdate):
		return newAPIError(http.StatusConflict, "session_busy", dialog.UserMessage(err), nil)
	case errors.Is(err, assessment.ErrNotComplete):
		return newAPIError(http.StatusConflict, "assessment_incomplete", notCompleteMessage, nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusServiceUnavailable, "cancelled", dialog.UserMessage(err), nil)
	}
	h.log.Error("request failed", "op", op, "request_id", middleware.GetReqID(ctx), "error", err)
	return newAPIError(http.StatusInternalServerError, "internal_error", dialog.UserMessage(err), nil)
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type handlers struct {
	svc Service
	log *logger.Logger
}

type turnOutput struct {
	Body TurnResponse `json:"body"`
}

var turnErrors = []int{http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError}

func (h *handlers) register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Start an assessment session",
		DefaultStatus: http.StatusCreated,
		Errors:        turnErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateSessionRequest `json:"body"`
	}) (*turnOutput, error) {
		id := input.Body.SessionID
		if id == "" {
			id = uuid.NewString()
		}
		resp, err := h.svc.Start(ctx, id)
		if err != nil {
			return nil, h.handleError(ctx, "create-session", err)
		}
		return &turnOutput{Body: toTurn(resp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-message",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/messages",
		Summary:     "Send a learner utterance",
		Errors:      turnErrors,
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id" minLength:"1" maxLength:"128" pattern:"^[A-Za-z0-9_-]+$"`
		Body      MessageRequest `json:"body"`
	}) (*turnOutput, error) {
		resp, err := h.svc.HandleUtterance(ctx, input.SessionID, input.Body.Text)
		if err != nil {
			return nil, h.handleError(ctx, "send-message", err)
		}
		return &turnOutput{Body: toTurn(resp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-progress",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}/progress",
		Summary:     "Session progress",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id" minLength:"1" maxLength:"128" pattern:"^[A-Za-z0-9_-]+$"`
	}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		p, err := h.svc.GetProgress(ctx, input.SessionID)
		if err != nil {
			return nil, h.handleError(ctx, "get-progress", err)
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: toProgress(*p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "terminate-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/terminate",
		Summary:     "Close a session",
		Errors:      turnErrors,
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id" minLength:"1" maxLength:"128" pattern:"^[A-Za-z0-9_-]+$"`
		Body      *TerminateRequest `json:"body,omitempty" required:"false"`
	}) (*turnOutput, error) {
		reason := ""
		if input.Body != nil {
			reason = input.Body.Reason
		}
		resp, err := h.svc.Terminate(ctx, input.SessionID, reason)
		if err != nil {
			return nil, h.handleError(ctx, "terminate-session", err)
		}
		return &turnOutput{Body: toTurn(resp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}/profile",
		Summary:     "Completed learner profile",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id" minLength:"1" maxLength:"128" pattern:"^[A-Za-z0-9_-]+$"`
	}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		p, err := h.svc.Profile(ctx, input.SessionID)
		if err != nil {
			return nil, h.handleError(ctx, "get-profile", err)
		}
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: toProfile(p)}, nil
	})
}

// Run serves handler on addr until ctx is cancelled, then shuts down
// within shutdownTimeout.
func Run(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, log *logger.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		log.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
