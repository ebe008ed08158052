package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/synx"
	"github.com/aretw0/synx/pkg/domain"
)

// Service is the part of synx.Service exposed over HTTP.
type Service interface {
	Query(ctx context.Context, q synx.QueryOptions) ([]domain.ObjectInfo, error)
	ReadEntry(ctx context.Context, id uint32) (domain.Entry, error)
	Recover(ctx context.Context, d domain.DomainID) (synx.RecoveryReport, error)
	Sessions() []synx.SessionInfo
}

var _ Service = (*synx.Service)(nil)

// Server serves the introspection and recovery API.
type Server struct {
	Service      Service
	Streams      *StreamManager
	logger       *slog.Logger
	metrics      http.Handler
	allowRecover bool
}

// Option configures a Server.
type Option func(*Server)

// WithStreams shares a StreamManager whose Hooks feed the service.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithRecover mounts the recovery endpoint. Without it POST
// /domains/{domain}/recover is not routed.
func WithRecover(enabled bool) Option {
	return func(s *Server) {
		s.allowRecover = enabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for svc.
func NewHandler(svc Service, opts ...Option) http.Handler {
	server := &Server{
		Service: svc,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(server)
	}
	if server.Streams == nil {
		server.Streams = NewStreamManager(server.logger)
	}

	r := chi.NewRouter()
	r.Get("/healthz", server.GetHealth)
	r.Get("/info", server.GetInfo)
	r.Get("/objects", server.ListObjects)
	r.Get("/directory/{id}", server.GetEntry)
	r.Get("/sessions", server.ListSessions)
	if server.allowRecover {
		r.Post("/domains/{domain}/recover", server.RecoverDomain)
	}
	r.Get("/events", server.SubscribeEvents)
	if server.metrics != nil {
		r.Handle("/metrics", server.metrics)
	}
	return enableCORS(r)
}

// enableCORS opens the read-only routes to any origin. Mutating requests get
// no CORS headers, so browsers refuse cross-origin preflights for them.
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case domain.CodeInvalid:
		status = http.StatusBadRequest
	case domain.CodeNoEnt:
		status = http.StatusNotFound
	case domain.CodeNoMem:
		status = http.StatusServiceUnavailable
	case domain.CodeAlready:
		status = http.StatusConflict
	case domain.CodeTimeout:
		status = http.StatusGatewayTimeout
	}
	s.writeJSON(w, status, errorBody{Error: err.Error(), Code: code.String()})
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "synx-http",
		"version": strings.TrimSpace(synx.Version),
	})
}

func parseID(raw string) (uint32, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad id %q: %w", raw, domain.ErrInvalid)
	}
	return uint32(n), nil
}

// ListObjects handles GET /objects?from=&to=&columns=&directory=.
func (s *Server) ListObjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var opts synx.QueryOptions
	var err error
	if opts.From, err = parseID(q.Get("from")); err != nil {
		s.writeError(w, err)
		return
	}
	if opts.To, err = parseID(q.Get("to")); err != nil {
		s.writeError(w, err)
		return
	}
	if opts.Columns, err = domain.ParseColumns(q.Get("columns")); err != nil {
		s.writeError(w, err)
		return
	}
	if v := q.Get("directory"); v != "" {
		if opts.IncludeDirectory, err = strconv.ParseBool(v); err != nil {
			s.writeError(w, fmt.Errorf("bad directory flag %q: %w", v, domain.ErrInvalid))
			return
		}
	}

	rows, err := s.Service.Query(r.Context(), opts)
	if err != nil {
		s.logger.Warn("query failed", "error", err)
		s.writeError(w, err)
		return
	}
	if rows == nil {
		rows = []domain.ObjectInfo{}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

// GetEntry handles GET /directory/{id}. Entries that are not live are 404.
func (s *Server) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	e, err := s.Service.ReadEntry(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !e.IsLive(id) {
		s.writeError(w, fmt.Errorf("directory entry %d: %w", id, domain.ErrNoEnt))
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.Service.Sessions()
	if sessions == nil {
		sessions = []synx.SessionInfo{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

// RecoverDomain handles POST /domains/{domain}/recover. The request must
// carry Content-Type application/json, which a plain form post cannot.
func (s *Server) RecoverDomain(w http.ResponseWriter, r *http.Request) {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		s.writeJSON(w, http.StatusUnsupportedMediaType, errorBody{
			Error: "recover requires Content-Type application/json",
			Code:  domain.CodeInvalid.String(),
		})
		return
	}
	raw := chi.URLParam(r, "domain")
	d, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || d == 0 {
		s.writeError(w, fmt.Errorf("bad domain %q: %w", raw, domain.ErrInvalid))
		return
	}
	rep, err := s.Service.Recover(r.Context(), domain.DomainID(d))
	if err != nil {
		s.logger.Error("recover failed", "domain", d, "error", err)
		s.writeError(w, err)
		return
	}
	s.logger.Info("domain recovered over http", "domain", d, "local", rep.Local, "directory", rep.Directory)
	s.writeJSON(w, http.StatusOK, rep)
}
