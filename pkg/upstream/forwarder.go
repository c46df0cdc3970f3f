// Package upstream forwards admitted chat requests to the completion API
// the gateway fronts. The server-held API key is attached here and is never
// visible to callers; upstream failure detail is logged server-side and
// reduced to a generic error for the wire.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/gsbdarc/survey-chat-gateway/pkg/config"
	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/logging"
	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/metrics"
)

var (
	// ErrUpstream is returned for any upstream failure: timeout, non-2xx
	// status, or a well-formed response with no usable completion. The
	// wrapped detail is for logs only, never for callers.
	ErrUpstream = errors.New("upstream completion failed")

	// ErrNotConfigured is returned when the upstream API key is missing.
	// The process boots without it so the kill switch and health endpoint
	// stay reachable, but completions cannot be served.
	ErrNotConfigured = errors.New("upstream api key is not configured")
)

// Message is one turn of prior conversation supplied by the caller.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Caller-suppliable roles. The system prompt travels in its own field, not
// in history, so "system" is deliberately absent.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest is one upstream call: system prompt first, history in
// order, then the new prompt. Nil Temperature or MaxTokens means the caller
// left the field unset and the configured default applies; an explicit zero
// is honored as-is.
type CompletionRequest struct {
	Model       string
	Temperature *float64
	MaxTokens   *int64
	System      string
	History     []Message
	Prompt      string
}

// Forwarder issues completion calls against a single configured endpoint.
// Retries are disabled: a retry after an admitted request would spend the
// caller's quota twice with no caller benefit.
type Forwarder struct {
	client     openai.Client
	cfg        config.UpstreamConfig
	timeout    time.Duration
	configured bool
}

// NewForwarder builds a forwarder from the upstream configuration.
func NewForwarder(cfg config.UpstreamConfig) *Forwarder {
	opts := []option.RequestOption{
		option.WithBaseURL(cfg.Endpoint),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	return &Forwarder{
		client:     openai.NewClient(opts...),
		cfg:        cfg,
		timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		configured: cfg.APIKey != "",
	}
}

// resolve fills a request's unset fields from the configured defaults.
func (f *Forwarder) resolve(req CompletionRequest) (model string, temperature float64, maxTokens int64) {
	model = req.Model
	if model == "" {
		model = f.cfg.DefaultModel
	}
	temperature = f.cfg.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens = f.cfg.DefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	return model, temperature, maxTokens
}

// Complete issues one completion call bounded by the configured timeout and
// returns the generated text verbatim. Every failure mode maps to
// ErrUpstream except a missing API key, which is ErrNotConfigured.
func (f *Forwarder) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !f.configured {
		return "", ErrNotConfigured
	}

	model, temperature, maxTokens := f.resolve(req)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.History {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxTokens),
	}

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	resp, err := f.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		metrics.RecordUpstreamCall("error", time.Since(start).Seconds())
		logging.Errorf("Upstream completion call failed (model=%s): %v", model, err)
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if len(resp.Choices) == 0 {
		metrics.RecordUpstreamCall("empty", time.Since(start).Seconds())
		logging.Errorf("Upstream returned no choices (model=%s)", model)
		return "", fmt.Errorf("%w: no choices returned", ErrUpstream)
	}

	metrics.RecordUpstreamCall("ok", time.Since(start).Seconds())
	return resp.Choices[0].Message.Content, nil
}
