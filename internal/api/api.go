// Package api exposes scripts as HTTP calls.
//
// Each Call binds a method and a chi route pattern to one script. The
// script's parameters are looked up in the route parameters, then the JSON
// request body, then the query string. A "value" call answers with the
// response object; a "table" call answers with the report of the last
// statement that returned rows.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/sqlscript/internal/executor"
	"github.com/roach88/sqlscript/internal/script"
	"github.com/roach88/sqlscript/internal/sqlerr"
	"github.com/roach88/sqlscript/internal/value"
)

// Response types.
const (
	ResponseValue = "value"
	ResponseTable = "table"
)

// maxBody bounds the JSON request body.
const maxBody = 1 << 20

// Call maps a route to a script.
type Call struct {
	Method       string
	Path         string
	ResponseType string
	Script       *script.Script
}

// Server routes calls to the executor.
type Server struct {
	exec   *executor.Executor
	router chi.Router
	logger *slog.Logger
	mounts []func(chi.Router)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New registers calls on a fresh router. An unknown method or response
// type is a configuration error.
func New(exec *executor.Executor, calls []Call, opts ...Option) (*Server, error) {
	s := &Server{
		exec:   exec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestSize(maxBody))

	for _, call := range calls {
		method := strings.ToUpper(call.Method)
		if method == "" {
			method = http.MethodGet
		}
		switch method {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		default:
			return nil, sqlerr.New(sqlerr.KindConfig, "call %s: unsupported method %q", call.Path, call.Method)
		}

		var h http.HandlerFunc
		switch call.ResponseType {
		case "", ResponseValue:
			h = s.valueHandler(call.Script)
		case ResponseTable:
			h = s.tableHandler(call.Script)
		default:
			return nil, sqlerr.New(sqlerr.KindConfig, "call %s: unsupported response type %q", call.Path, call.ResponseType)
		}

		r.Method(method, call.Path, h)
		s.logger.Debug("registered call", "method", method, "path", call.Path)
	}

	r.Get(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	for _, mount := range s.mounts {
		mount(r)
	}

	s.router = r
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func (s *Server) valueHandler(sc *script.Script) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		request, err := requestSource(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		response := value.NewObject()
		if err := s.exec.Exec(r.Context(), sc, request, response); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) tableHandler(sc *script.Script) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		request, err := requestSource(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		report, err := s.exec.ExecTable(r.Context(), sc, request)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// requestSource builds the parameter lookup for r.
func requestSource(r *http.Request) (value.Source, error) {
	route := value.NewObject()
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if key == "*" {
				continue
			}
			route.Set(key, value.String(rctx.URLParams.Values[i]))
		}
	}

	body := value.NewObject()
	if r.Body != nil && r.ContentLength != 0 {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, sqlerr.Wrap(sqlerr.KindBind, err, "request body exceeds %d bytes", tooLarge.Limit)
			}
			return nil, sqlerr.Wrap(sqlerr.KindBind, err, "read request body")
		}
		if len(strings.TrimSpace(string(data))) > 0 {
			if body, err = value.ParseJSON(data); err != nil {
				return nil, sqlerr.Wrap(sqlerr.KindBind, err, "decode request body")
			}
		}
	}

	query := r.URL.Query()

	return value.SourceFunc(func(key string) (value.Value, bool) {
		if v, ok := route.Lookup(key); ok {
			return v, true
		}
		if v, ok := body.Lookup(key); ok {
			return v, true
		}
		if query.Has(key) {
			return value.String(query.Get(key)), true
		}
		return nil, false
	}), nil
}

// StatusOf maps an execution error to an HTTP status.
func StatusOf(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch sqlerr.KindOf(err) {
	case sqlerr.KindMissingParameter, sqlerr.KindBind, sqlerr.KindUnsupportedType,
		sqlerr.KindParse, sqlerr.KindSyntax:
		return http.StatusBadRequest
	case sqlerr.KindConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	body := errorBody{Kind: string(sqlerr.KindDriver), Message: err.Error()}

	var se *sqlerr.Error
	if errors.As(err, &se) {
		body.Kind = string(se.Kind)
		body.Message = se.Message
		body.Param = se.Param
	}

	s.logger.Warn("call failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", chimw.GetReqID(r.Context()),
		"status", status,
		"error", err,
	)
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
