// Package http exposes the agent, the provider tools and the presets over a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dengzhuofu/foodai-agent/internal/logging"
	"github.com/dengzhuofu/foodai-agent/pkg/agent"
	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/dengzhuofu/foodai-agent/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CallerHeader carries the identity of the caller. Authentication happens upstream.
const CallerHeader = "X-User-ID"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Agent runs chat requests.
type Agent interface {
	Run(ctx context.Context, req agent.Request) agent.Response
}

// Providers gives direct access to remote provider tools.
type Providers interface {
	Providers() []string
	ListTools(ctx context.Context, caller, provider string) ([]domain.ToolDescriptor, error)
	Invoke(ctx context.Context, caller, provider, tool string, args map[string]any) domain.ToolResult
	Evict(caller, provider string)
}

// Presets manages presets on behalf of a caller.
type Presets interface {
	List(ctx context.Context, caller string) ([]domain.Preset, error)
	Get(ctx context.Context, caller, agentID string) (*domain.Preset, error)
	Save(ctx context.Context, caller string, p domain.Preset) error
	Delete(ctx context.Context, caller, agentID string) error
}

// Sessions reads and clears chat transcripts.
type Sessions interface {
	History(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
	Delete(ctx context.Context, sessionID string) error
}

// Deps are the collaborators of the API. Agent is required; the rest may be nil,
// in which case the matching routes are not mounted.
type Deps struct {
	Agent         Agent
	Providers     Providers
	Credentials   ports.CredentialStore
	Presets       Presets
	Sessions      Sessions
	// MaxInputBytes rejects larger chat messages. Zero disables the check.
	MaxInputBytes int
	// Gatherer serves /metrics. Defaults to the prometheus default gatherer.
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
	CORSOrigins []string
	Version     string
}

// Server holds the handlers.
type Server struct {
	deps    Deps
	logger  *slog.Logger
	Streams *StreamManager
}

// NewHandler creates the HTTP handler.
func NewHandler(deps Deps) http.Handler {
	h, _ := newServer(deps)
	return h
}

func newServer(deps Deps) (http.Handler, *Server) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		deps:    deps,
		logger:  logger,
		Streams: NewStreamManager(logger),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS(deps.CORSOrigins))

	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/agent/chat", s.Chat)
		r.Get("/sessions/{sessionID}/events", s.SubscribeEvents)
		if deps.Sessions != nil {
			r.Get("/sessions/{sessionID}/history", s.GetHistory)
			r.Delete("/sessions/{sessionID}", s.DeleteSession)
		}

		if deps.Providers != nil {
			r.Get("/providers", s.ListProviders)
			r.Get("/providers/{provider}/tools", s.ListProviderTools)
			r.Post("/providers/{provider}/tools/{tool}", s.InvokeProviderTool)
			if deps.Credentials != nil {
				r.Put("/providers/{provider}/credential", s.PutCredential)
			}
		}

		if deps.Presets != nil {
			r.Get("/presets", s.ListPresets)
			r.Get("/presets/{agentID}", s.GetPreset)
			r.Put("/presets/{agentID}", s.PutPreset)
			r.Delete("/presets/{agentID}", s.DeletePreset)
		}
	})
	return r, s
}

// enableCORS allows every origin when none are configured. Otherwise the request
// origin is echoed back only when it is in the list.
func enableCORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowed) == 0 {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Add("Vary", "Origin")
				if origin := r.Header.Get("Origin"); allowed[origin] {
					w.Header().Set("Access-Control-Allow-Origin", origin)
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+CallerHeader)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ChatRequest is the body of POST /v1/agent/chat.
type ChatRequest struct {
	Message   string           `json:"message"`
	History   []domain.Message `json:"history,omitempty"`
	AgentID   string           `json:"agent_id,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
}

// Chat handles POST /v1/agent/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var body ChatRequest
	if !s.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	message, err := agent.SanitizeInput(body.Message, s.deps.MaxInputBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := s.deps.Agent.Run(r.Context(), agent.Request{
		Caller:    caller,
		SessionID: body.SessionID,
		Message:   message,
		History:   body.History,
		AgentID:   body.AgentID,
	})

	if body.SessionID != "" {
		if data, err := json.Marshal(resp); err == nil {
			s.Streams.Broadcast(domain.SessionKey(caller, body.SessionID), string(data))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHistory handles GET /v1/sessions/{sessionID}/history?limit=N.
// Sessions are scoped to the caller: another caller's id reads as empty.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	msgs, err := s.deps.Sessions.History(r.Context(), domain.SessionKey(caller, chi.URLParam(r, "sessionID")), limit)
	if err != nil {
		s.writeDomainError(w, "GetHistory", err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// DeleteSession handles DELETE /v1/sessions/{sessionID}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := s.deps.Sessions.Delete(r.Context(), domain.SessionKey(caller, chi.URLParam(r, "sessionID"))); err != nil {
		s.writeDomainError(w, "DeleteSession", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListProviders handles GET /v1/providers.
func (s *Server) ListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"providers": s.deps.Providers.Providers()})
}

// ListProviderTools handles GET /v1/providers/{provider}/tools.
func (s *Server) ListProviderTools(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	tools, err := s.deps.Providers.ListTools(r.Context(), caller, chi.URLParam(r, "provider"))
	if err != nil {
		s.writeDomainError(w, "ListProviderTools", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

// InvokeProviderTool handles POST /v1/providers/{provider}/tools/{tool}.
// The body is the argument object. Tool failures are reported with status 200 and ok=false.
func (s *Server) InvokeProviderTool(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	provider := chi.URLParam(r, "provider")
	if !s.knownProvider(provider) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s: %s", domain.ErrProviderNotFound, provider))
		return
	}

	args := map[string]any{}
	if r.ContentLength != 0 && !s.decode(w, r, &args) {
		return
	}
	res := s.deps.Providers.Invoke(r.Context(), caller, provider, chi.URLParam(r, "tool"), args)
	writeJSON(w, http.StatusOK, res)
}

// PutCredential handles PUT /v1/providers/{provider}/credential.
// The caller's live session is dropped so the next call uses the new token.
func (s *Server) PutCredential(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	provider := chi.URLParam(r, "provider")
	if !s.knownProvider(provider) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s: %s", domain.ErrProviderNotFound, provider))
		return
	}
	var body struct {
		Token string `json:"token"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := s.deps.Credentials.SetCredential(r.Context(), caller, provider, body.Token); err != nil {
		s.writeDomainError(w, "PutCredential", err)
		return
	}
	s.deps.Providers.Evict(caller, provider)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) knownProvider(name string) bool {
	for _, p := range s.deps.Providers.Providers() {
		if p == name {
			return true
		}
	}
	return false
}

// ListPresets handles GET /v1/presets.
func (s *Server) ListPresets(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	presets, err := s.deps.Presets.List(r.Context(), caller)
	if err != nil {
		s.writeDomainError(w, "ListPresets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": presets})
}

// GetPreset handles GET /v1/presets/{agentID}.
func (s *Server) GetPreset(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	p, err := s.deps.Presets.Get(r.Context(), caller, chi.URLParam(r, "agentID"))
	if err != nil {
		s.writeDomainError(w, "GetPreset", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PutPreset handles PUT /v1/presets/{agentID}.
func (s *Server) PutPreset(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var p domain.Preset
	if !s.decode(w, r, &p) {
		return
	}
	p.AgentID = chi.URLParam(r, "agentID")

	if err := s.deps.Presets.Save(r.Context(), caller, p); err != nil {
		s.writeDomainError(w, "PutPreset", err)
		return
	}
	saved, err := s.deps.Presets.Get(r.Context(), caller, p.AgentID)
	if err != nil {
		s.writeDomainError(w, "PutPreset", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DeletePreset handles DELETE /v1/presets/{agentID}.
func (s *Server) DeletePreset(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := s.deps.Presets.Delete(r.Context(), caller, chi.URLParam(r, "agentID")); err != nil {
		s.writeDomainError(w, "DeletePreset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	version := strings.TrimSpace(s.deps.Version)
	if version == "" {
		version = "unknown"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "foodai-agent",
		"version": version,
	})
}

// -- Helpers --

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := strings.TrimSpace(r.Header.Get(CallerHeader))
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "missing "+CallerHeader+" header")
		return "", false
	}
	return caller, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		s.logger.Warn("Invalid request body", "path", r.URL.Path, "err", err)
		return false
	}
	return true
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrPresetNotFound),
		errors.Is(err, domain.ErrProviderNotFound),
		errors.Is(err, domain.ErrToolNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPresetForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidPreset),
		errors.Is(err, domain.ErrCredentialNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConnection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
