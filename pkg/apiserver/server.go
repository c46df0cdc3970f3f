// Package apiserver is the HTTP surface of the gateway: the chat endpoint,
// CORS preflight handling, and the health check. It translates wire
// requests into pipeline calls and pipeline errors into the caller-facing
// error taxonomy; callers never see internal detail.
package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gsbdarc/survey-chat-gateway/pkg/admission/store"
	"github.com/gsbdarc/survey-chat-gateway/pkg/authz"
	"github.com/gsbdarc/survey-chat-gateway/pkg/config"
	"github.com/gsbdarc/survey-chat-gateway/pkg/gateway"
	"github.com/gsbdarc/survey-chat-gateway/pkg/headers"
	"github.com/gsbdarc/survey-chat-gateway/pkg/identity"
	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/logging"
	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/metrics"
	"github.com/gsbdarc/survey-chat-gateway/pkg/upstream"
)

// ChatRequest is the inbound JSON body of POST /v1/chat.
type ChatRequest struct {
	Prompt      string             `json:"prompt"`
	System      string             `json:"system,omitempty"`
	History     []upstream.Message `json:"history,omitempty"`
	Model       string             `json:"model,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   *int64             `json:"max_tokens,omitempty"`
}

// ChatResponse is the success body of POST /v1/chat.
type ChatResponse struct {
	Text string `json:"text"`
}

// Server serves the gateway's HTTP endpoints.
type Server struct {
	cfg      *config.GatewayConfig
	pipeline *gateway.Pipeline
	resolver identity.Resolver
	store    store.CounterStore
}

// New creates the HTTP server over an assembled pipeline.
func New(cfg *config.GatewayConfig, pipeline *gateway.Pipeline, resolver identity.Resolver, counterStore store.CounterStore) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: pipeline,
		resolver: resolver,
		store:    counterStore,
	}
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("OPTIONS /v1/chat", s.handlePreflight)
	mux.HandleFunc("/v1/chat", s.handleMethodNotAllowed)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// HTTPServer builds the configured *http.Server so the caller owns startup
// and graceful shutdown. The write timeout must cover the upstream timeout
// or slow completions are cut off mid-response; the config default keeps a
// comfortable margin.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.Server.ListenAddress,
		Handler:      s.setupRoutes(),
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSeconds) * time.Second,
	}
}

// handleChat handles one chat completion request.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set(headers.RequestID, requestID)
	s.setCORSHeaders(w, r)

	req, err := s.parseChatRequest(w, r)
	if err != nil {
		metrics.RecordRequest("bad_request")
		s.writeErrorResponse(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	caller := gateway.Caller{
		RequestID: requestID,
		Identity:  s.resolver.Resolve(r),
		Authz: authz.Request{
			Origin:      r.Header.Get(headers.Origin),
			Referer:     r.Header.Get(headers.Referer),
			SecretToken: r.Header.Get(headers.SurveyToken),
		},
	}

	text, err := s.pipeline.Handle(r.Context(), caller, upstream.CompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		History:     req.History,
		Prompt:      req.Prompt,
	})
	if err != nil {
		s.writeRejection(w, requestID, err)
		return
	}

	metrics.RecordRequest("admitted")
	s.writeJSONResponse(w, http.StatusOK, ChatResponse{Text: text})
}

// parseChatRequest decodes and validates the request body. The body reader
// is capped so an oversized payload fails decoding instead of being read.
func (s *Server) parseChatRequest(w http.ResponseWriter, r *http.Request) (*ChatRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	defer r.Body.Close()

	var req ChatRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, fmt.Errorf("request body exceeds %d bytes", s.cfg.Server.MaxBodyBytes)
		}
		return nil, fmt.Errorf("invalid JSON body")
	}

	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	if max := s.cfg.Server.MaxHistoryMessages; max > 0 && len(req.History) > max {
		return nil, fmt.Errorf("history exceeds %d messages", max)
	}
	for i, m := range req.History {
		if m.Role != upstream.RoleUser && m.Role != upstream.RoleAssistant {
			return nil, fmt.Errorf("history[%d] has unsupported role %q", i, m.Role)
		}
	}
	return &req, nil
}

// writeRejection maps a pipeline error to the caller-facing taxonomy. The
// three rate-related rejections share status 429 but carry distinct codes
// so the widget can render precise messages.
func (s *Server) writeRejection(w http.ResponseWriter, requestID string, err error) {
	var tooFast *gateway.TooFastError

	switch {
	case errors.Is(err, gateway.ErrServiceDisabled):
		metrics.RecordRequest("service_disabled")
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "service_disabled",
			"The service is currently disabled.")

	case errors.Is(err, authz.ErrUnauthorized):
		metrics.RecordRequest("unauthorized")
		s.writeErrorResponse(w, http.StatusUnauthorized, "unauthorized",
			"Request origin or credentials were rejected.")

	case errors.As(err, &tooFast):
		metrics.RecordRequest("too_fast")
		w.Header().Set(headers.RetryAfter, strconv.Itoa(retryAfterSeconds(tooFast.RetryAfter)))
		s.writeErrorResponse(w, http.StatusTooManyRequests, "too_fast",
			"Too many requests. Please wait before trying again.")

	case errors.Is(err, gateway.ErrRateLimitExceeded):
		metrics.RecordRequest("rate_limit_exceeded")
		s.writeErrorResponse(w, http.StatusTooManyRequests, "rate_limit_exceeded",
			"Request limit exceeded.")

	case errors.Is(err, gateway.ErrVolumeCapExceeded):
		metrics.RecordRequest("volume_cap_exceeded")
		s.writeErrorResponse(w, http.StatusTooManyRequests, "volume_cap_exceeded",
			"Total call limit reached.")

	case errors.Is(err, upstream.ErrUpstream):
		metrics.RecordRequest("upstream_error")
		s.writeErrorResponse(w, http.StatusBadGateway, "upstream_error",
			"The completion service is temporarily unavailable.")

	default:
		// Internal failures: store unavailable, missing upstream key,
		// exhausted conflict retries. Detail stays in the logs.
		metrics.RecordRequest("internal_error")
		logging.Errorf("Internal error serving request %s: %v", requestID, err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			"An internal error occurred.")
	}
}

// retryAfterSeconds rounds a wait up to whole seconds; Retry-After does not
// carry fractions and rounding down would invite an immediate retry that
// burns error budget.
func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// handlePreflight answers CORS preflight requests. Preflights never touch
// the counter store: the browser sends them before the widget's real call
// and charging quota for them would double-bill every chat turn.
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST, OPTIONS")
	s.writeErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed",
		fmt.Sprintf("Method %s is not allowed.", r.Method))
}

// setCORSHeaders emits CORS headers when the declared origin is acceptable:
// any origin while the origin check is disabled, allow-list members
// otherwise. Origins that would fail validation get no CORS headers, so the
// browser blocks the response before the widget sees the 401.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get(headers.Origin)
	if origin == "" {
		return
	}
	if s.cfg.Origin.CheckEnabled && !s.originAllowed(origin) {
		return
	}

	allowHeaders := "Content-Type"
	if s.cfg.Origin.EndpointKeyEnabled {
		allowHeaders += ", " + headers.SurveyToken
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", allowHeaders)
	h.Set("Access-Control-Max-Age", "3600")
}

func (s *Server) originAllowed(origin string) bool {
	origin = config.NormalizeOrigin(origin)
	for _, allowed := range s.cfg.Origin.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// handleHealth reports liveness plus counter store connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.CheckConnection(ctx); err != nil {
		logging.Warnf("Health check failed: %v", err)
		s.writeJSONResponse(w, http.StatusServiceUnavailable,
			map[string]string{"status": "unhealthy", "reason": "store unreachable"})
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Helper methods for JSON handling
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Errorf("Failed to encode JSON response: %v", err)
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    errorCode,
			"message": message,
		},
	}

	s.writeJSONResponse(w, statusCode, errorResponse)
}
