// Package http exposes the Orchestrator over HTTP: a JSON turn endpoint, an
// SMS gateway webhook answering with TwiML, session administration, graph
// introspection, health and Prometheus metrics. Requests are validated
// against the embedded OpenAPI document.
package http

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/internal/presentation/graph"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/dsl"
	"github.com/aretw0/switchboard/pkg/runner"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes int64 = 64 << 10

// Orchestrator is the part of *switchboard.Orchestrator the server needs.
type Orchestrator interface {
	Turn(ctx context.Context, userID, message string) (*switchboard.Reply, error)
	Inspect(ctx context.Context, userID string) (*domain.State, error)
	Reset(ctx context.Context, userID string) error
	Sessions(ctx context.Context) ([]string, error)
	Graph() *dsl.Graph
}

// Server serves one Orchestrator.
type Server struct {
	orc          Orchestrator
	logger       *slog.Logger
	limiter      *Limiter
	maxBodyBytes int64
	maxInputSize int
	gatherer     prometheus.Gatherer
	apiVersion   string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRateLimit allows perMinute turns per user with bursts of burst.
func WithRateLimit(perMinute, burst int) Option {
	return func(s *Server) {
		s.limiter = NewLimiter(perMinute, burst)
	}
}

// WithLimiter sets a prepared limiter.
func WithLimiter(l *Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithMaxInputSize bounds the message of a turn in bytes.
func WithMaxInputSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxInputSize = n
		}
	}
}

// WithGatherer selects the registry served on /metrics (default: the global one).
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler creates the HTTP handler for orc.
func NewHandler(orc Orchestrator, opts ...Option) (http.Handler, error) {
	s := &Server{
		orc:          orc,
		logger:       logging.NewNop(),
		maxBodyBytes: DefaultMaxBodyBytes,
		maxInputSize: runner.MaxInputSize(),
		gatherer:     prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	router, doc, err := newRouter(context.Background())
	if err != nil {
		return nil, err
	}
	s.apiVersion = doc.Info.Version

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)
	r.Use(s.limitBody)
	r.Use(s.validateRequests(router))

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", s.getHealth)
	r.Get("/info", s.getInfo)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/turns", s.postTurn)
		r.Post("/webhooks/sms", s.postSMS)
		r.Get("/sessions", s.listSessions)
		r.Get("/sessions/{id}", s.getSession)
		r.Delete("/sessions/{id}", s.deleteSession)
		r.Get("/graph", s.getGraph)
	})
	return r, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// TurnRequest is the body of POST /v1/turns.
type TurnRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type turnError struct {
	status int
	msg    string
}

func (e *turnError) Error() string { return e.msg }

// runTurn applies rate limiting and input sanitization, then runs the turn.
func (s *Server) runTurn(ctx context.Context, userID, message string) (*switchboard.Reply, *turnError) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &turnError{http.StatusBadRequest, "user id is required"}
	}
	if !s.limiter.Allow(userID) {
		s.logger.Warn("rate limited", "user_id", userID)
		return nil, &turnError{http.StatusTooManyRequests, "rate limit exceeded"}
	}
	clean, err := runner.SanitizeInputLimit(message, s.maxInputSize)
	if err != nil {
		s.logger.Warn("input rejected", "user_id", userID, "err", err, "size", len(message))
		return nil, &turnError{http.StatusBadRequest, err.Error()}
	}

	reply, err := s.orc.Turn(ctx, userID, clean)
	if err != nil {
		s.logger.Error("turn failed", "user_id", userID, "err", err)
		if errors.Is(err, domain.ErrLockTimeout) {
			return nil, &turnError{http.StatusServiceUnavailable, "session busy, try again"}
		}
		return nil, &turnError{http.StatusInternalServerError, "turn failed"}
	}
	return reply, nil
}

func (s *Server) postTurn(w http.ResponseWriter, r *http.Request) {
	var body TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reply, terr := s.runTurn(r.Context(), body.UserID, body.Message)
	if terr != nil {
		s.writeError(w, terr.status, terr.msg)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// postSMS answers an SMS gateway webhook (From, Body form fields) with TwiML.
func (s *Server) postSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	reply, terr := s.runTurn(r.Context(), r.PostForm.Get("From"), r.PostForm.Get("Body"))
	if terr != nil {
		s.writeError(w, terr.status, terr.msg)
		return
	}

	out, err := xml.Marshal(twimlResponse{Message: reply.Message})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to encode reply")
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.orc.Sessions(r.Context())
	if err != nil {
		s.logger.Error("list sessions failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.orc.Inspect(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", id))
			return
		}
		s.logger.Error("inspect failed", "user_id", id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orc.Reset(r.Context(), id); err != nil {
		s.logger.Error("reset failed", "user_id", id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GraphNode is the JSON description of one graph node.
type GraphNode struct {
	Name       string   `json:"name"`
	Successors []string `json:"successors,omitempty"`
	Default    string   `json:"default,omitempty"`
	OnError    string   `json:"on_error,omitempty"`
	Always     string   `json:"always,omitempty"`
	Sink       bool     `json:"sink,omitempty"`
}

// GraphDescription is the JSON description of a graph.
type GraphDescription struct {
	Entry string      `json:"entry"`
	Nodes []GraphNode `json:"nodes"`
}

// DescribeGraph flattens g in declaration order.
func DescribeGraph(g *dsl.Graph) GraphDescription {
	out := GraphDescription{Entry: g.Entry, Nodes: []GraphNode{}}
	for _, name := range g.Order {
		spec, ok := g.Node(name)
		if !ok {
			continue
		}
		out.Nodes = append(out.Nodes, GraphNode{
			Name:       spec.Name,
			Successors: spec.Successors,
			Default:    spec.Default,
			OnError:    spec.OnError,
			Always:     spec.Always,
			Sink:       spec.Sink,
		})
	}
	return out
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	g := s.orc.Graph()
	if r.URL.Query().Get("format") == "mermaid" {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(graph.GenerateMermaid(g, nil)))
		return
	}
	s.writeJSON(w, http.StatusOK, DescribeGraph(g))
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "switchboard-http",
		"version":     strings.TrimSpace(switchboard.Version),
		"api_version": s.apiVersion,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
