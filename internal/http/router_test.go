package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-booking-backend/internal/config"
	"github.com/tbourn/go-booking-backend/internal/domain"
)

// --- tiny fakes for the handler interfaces ---

type fakeChannel struct {
	sent []string
}

func (f *fakeChannel) VerifySecret(header string) bool { return header == "hook-secret" }

func (f *fakeChannel) ParseUpdate(body []byte) (domain.InboundMessage, error) {
	return domain.InboundMessage{
		Channel:     domain.ChannelTelegram,
		ChatID:      "42",
		MessageID:   "1",
		Text:        "привет",
		MessageType: domain.MessageText,
		TraceID:     "trace-router",
	}, nil
}

func (f *fakeChannel) SendMessage(ctx context.Context, chatID, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeChannel) SendTyping(ctx context.Context, chatID string) {}

type fakeDedup struct{}

func (fakeDedup) IsDuplicate(ctx context.Context, msg domain.InboundMessage) bool { return false }

type fakeFlow struct{}

func (fakeFlow) ProcessMessage(ctx context.Context, msg domain.InboundMessage) (string, error) {
	return "Чем могу помочь?", nil
}

type fakePinger struct{}

func (fakePinger) Ping(ctx context.Context) error { return nil }

type fakeCRM struct{}

func (fakeCRM) HealthCheck(ctx context.Context) error { return nil }

func newTestRouter(t *testing.T, cfg config.Config) (*gin.Engine, *fakeChannel) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	ch := &fakeChannel{}
	RegisterRoutes(r, Deps{
		Channel: ch,
		Deduper: fakeDedup{},
		Flow:    fakeFlow{},
		Store:   fakePinger{},
		CRM:     fakeCRM{},
	}, cfg)
	return r, ch
}

func baseConfig() config.Config {
	return config.Config{
		RateRPS:   100,
		RateBurst: 10,
		OTEL:      config.OTELConfig{ServiceName: "test-svc"},
	}
}

func TestRegisterRoutes_ProbesMetricsAndFallbacks(t *testing.T) {
	r, _ := newTestRouter(t, baseConfig())

	// Liveness
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/healthz -> %d", w.Code)
	}

	// Readiness with healthy fakes
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ready"`) {
		t.Fatalf("/readyz -> %d %s", w.Code, w.Body.String())
	}

	// Prometheus endpoint is mounted
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("/metrics -> %d", w.Code)
	}

	// NoRoute fallback uses the error envelope
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Fatalf("/nope -> %d %s", w.Code, w.Body.String())
	}

	// NoMethod fallback
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook/telegram", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET webhook -> %d; want 405", w.Code)
	}

	// Every response carries a request id
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestRegisterRoutes_WebhookWiredThroughStack(t *testing.T) {
	r, ch := newTestRouter(t, baseConfig())

	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{"update_id":1}`))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "hook-secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("webhook -> %d %s", w.Code, w.Body.String())
	}
	if len(ch.sent) != 1 || ch.sent[0] != "Чем могу помочь?" {
		t.Fatalf("sent = %v", ch.sent)
	}

	// Missing secret is rejected before any processing
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{}`)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated webhook -> %d; want 401", w.Code)
	}
}

func TestRegisterRoutes_DebugGatedByTestMode(t *testing.T) {
	off, _ := newTestRouter(t, baseConfig())
	w := httptest.NewRecorder()
	off.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/debug", strings.NewReader(`{}`)))
	if w.Code != http.StatusNotFound {
		t.Fatalf("debug with test mode off -> %d; want 404", w.Code)
	}

	cfg := baseConfig()
	cfg.TestMode = true
	on, _ := newTestRouter(t, cfg)
	w = httptest.NewRecorder()
	on.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/debug", strings.NewReader(`{}`)))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Чем могу помочь?") {
		t.Fatalf("debug with test mode on -> %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_RateLimit(t *testing.T) {
	cfg := baseConfig()
	cfg.RateRPS = 1
	cfg.RateBurst = 1
	r, _ := newTestRouter(t, cfg)

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("first request -> %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request -> %d; want 429", w2.Code)
	}
}
