package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	requestTimeout  = 30 * time.Second
	maxAttempts     = 3
	backoffBase     = 1 * time.Second
	backoffCap      = 10 * time.Second
	defaultPageSize = 1000
)

// ListRequest is the wire body of a list call. Columns carries the filter
// values, Fields the projection.
type ListRequest struct {
	Limit   int               `json:"limit"`
	Page    int               `json:"page"`
	Fields  []string          `json:"fields,omitempty"`
	Columns map[string]any    `json:"columns,omitempty"`
	Sort    map[string]string `json:"sort,omitempty"`
}

// HTTPClient speaks the CRM wire protocol: every call is a POST to
// /{entity}/{action} with Basic auth (the API key as username, empty
// password). Creates go through the "update" action, deletes through
// "delete". Transport failures are retried with exponential backoff; HTTP
// status errors are not. The circuit breaker sees one outcome per logical
// call, after retries are exhausted.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *Breaker
	logger  zerolog.Logger
	sleep   func(time.Duration)
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithSleep overrides the backoff sleeper. Used by tests.
func WithSleep(sleep func(time.Duration)) ClientOption {
	return func(c *HTTPClient) { c.sleep = sleep }
}

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *HTTPClient) { c.http = h }
}

// NewHTTPClient returns a client for the given CRM endpoint.
func NewHTTPClient(baseURL, apiKey string, breaker *Breaker, logger zerolog.Logger, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
		breaker: breaker,
		logger:  logger,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func backoff(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffCap {
		return backoffCap
	}
	return d
}

// do performs one logical call: breaker admission, up to maxAttempts
// transport tries, one breaker outcome. Status errors surface immediately;
// they are the CRM answering, not the transport failing.
func (c *HTTPClient) do(ctx context.Context, entity, action string, body any) ([]byte, error) {
	if !c.breaker.Allow() {
		return nil, ErrBreakerOpen
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s/%s body: %w", entity, action, err)
	}
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, entity, action)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		data, err := c.once(ctx, url, payload)
		if err == nil {
			c.breaker.RecordSuccess()
			return data, nil
		}
		if _, ok := err.(*StatusError); ok {
			c.breaker.RecordFailure()
			return nil, err
		}
		lastErr = err
		c.logger.Warn().Err(err).
			Str("entity", entity).
			Str("action", action).
			Int("attempt", attempt).
			Msg("crm transport error")
		if attempt < maxAttempts {
			c.sleep(backoff(attempt))
		}
	}
	c.breaker.RecordFailure()
	return nil, fmt.Errorf("crm %s/%s after %d attempts: %w", entity, action, maxAttempts, lastErr)
}

func (c *HTTPClient) once(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// List fetches entity records into out (a pointer to a slice). The CRM
// answers either with a bare array or with {"data": [...]}; both are
// accepted.
func (c *HTTPClient) List(ctx context.Context, entity string, req ListRequest, out any) error {
	if req.Limit == 0 {
		req.Limit = defaultPageSize
	}
	if req.Page == 0 {
		req.Page = 1
	}
	data, err := c.do(ctx, entity, "list", req)
	if err != nil {
		return err
	}
	return decodeList(data, out)
}

func decodeList(data []byte, out any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return fmt.Errorf("decode list wrapper: %w", err)
		}
		if wrapper.Data == nil {
			return nil
		}
		trimmed = wrapper.Data
	}
	if len(trimmed) == 0 {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	return nil
}

// Create stores a new record (wire action "update") and decodes the reply
// into out.
func (c *HTTPClient) Create(ctx context.Context, entity string, record any, out any) error {
	data, err := c.do(ctx, entity, "update", record)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode create reply: %w", err)
	}
	return nil
}

// Delete removes a record by id.
func (c *HTTPClient) Delete(ctx context.Context, entity string, id int64) error {
	_, err := c.do(ctx, entity, "delete", map[string]any{"id": id})
	return err
}

// Health probes the CRM with a minimal group listing.
func (c *HTTPClient) Health(ctx context.Context) error {
	var groups []Group
	return c.List(ctx, "group", ListRequest{Limit: 1}, &groups)
}

// BreakerState exposes the breaker state for metrics.
func (c *HTTPClient) BreakerState() string { return c.breaker.State() }
