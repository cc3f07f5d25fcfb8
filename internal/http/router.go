// Package httpapi wires the HTTP transport (Gin) to the booking bot. It
// centralizes cross-cutting concerns such as tracing, correlation IDs,
// logging/redaction, panic recovery, metrics, and rate limiting, and mounts
// the webhook, health, and debug endpoints.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-booking-backend/internal/config"
	"github.com/tbourn/go-booking-backend/internal/crm"
	"github.com/tbourn/go-booking-backend/internal/http/handlers"
	"github.com/tbourn/go-booking-backend/internal/http/middleware"
)

// Deps carries the injected components the routes need. Fields are the
// handler-level interfaces, so tests can register the full router with fakes.
type Deps struct {
	Channel handlers.Channel
	Deduper handlers.Deduper
	Flow    handlers.Processor
	Store   handlers.Pinger
	CRM     handlers.CRMHealth
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing (webhook bodies
//     carry names and phone numbers, so bodies are never logged)
//  4. Recovery: capture panics after logger
//  5. Body size limiter (Telegram updates are small; 1 MiB is generous)
//  6. Metrics
//  7. Rate limiter per client IP
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// Compress larger responses (/metrics mostly; webhook replies are tiny)
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Probes
	hh := handlers.NewHealth(deps.Store, deps.CRM)
	r.GET("/healthz", hh.Live)
	r.GET("/readyz", hh.Ready)

	// Webhook ingress + test-mode debug
	wh := handlers.NewWebhook(deps.Channel, deps.Deduper, deps.Flow, cfg.TestMode)
	r.POST("/webhook/telegram", wh.Telegram)
	r.POST("/debug", wh.Debug)
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// WatchCRM refreshes the circuit breaker and fallback queue gauges until ctx
// is cancelled. A failed queue-size probe reports -1, which keeps the last
// good gauge value.
func WatchCRM(ctx context.Context, adapter *crm.Adapter, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			depth, err := adapter.Fallback().Size(probeCtx)
			cancel()
			if err != nil {
				depth = -1
			}
			middleware.ObserveCRM(adapter.BreakerState(), depth)
		}
	}
}
