// Package llm implements the generation backend behind the intent resolver:
// an OpenAI-compatible chat-completions client. Any endpoint speaking the
// /v1/chat/completions dialect works, which covers the hosted proxies the
// studio can afford.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

const defaultBaseURL = "https://api.openai.com"

// requestTimeout caps every completion call; matches the CRM side so no
// outbound dependency can hold a webhook worker longer than 30 s.
const requestTimeout = 30 * time.Second

// Client calls a chat-completions endpoint. It implements intent.Generator.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// NewClient returns a generation client for the given model.
func NewClient(apiKey, model string, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger.With().Str("component", "llm").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat any           `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate sends the dialogue to the model and returns the raw reply text.
// The resolver owns all parsing; malformed replies are its problem, not an
// error here.
func (c *Client) Generate(ctx context.Context, messages []domain.HistoryEntry) (string, error) {
	wire := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != "system" && role != "assistant" {
			role = "user"
		}
		wire = append(wire, chatMessage{Role: role, Content: m.Content})
	}

	body := chatCompletionRequest{
		Model:       c.model,
		Messages:    wire,
		Temperature: 0.3,
		// The prompt demands a JSON reply; ask the endpoint to enforce it.
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("llm: unexpected response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := ""
		if out.Error != nil {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("llm: status %d: %s", resp.StatusCode, msg)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm: empty choices")
	}

	c.logger.Debug().
		Int("input_tokens", out.Usage.PromptTokens).
		Int("output_tokens", out.Usage.CompletionTokens).
		Dur("duration", time.Since(start)).
		Msg("completion")

	return out.Choices[0].Message.Content, nil
}
