// Command server runs the booking bot: Telegram webhook in, one committed
// reservation out. Dependencies are wired here and nowhere else.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-booking-backend/internal/audit"
	"github.com/tbourn/go-booking-backend/internal/budget"
	"github.com/tbourn/go-booking-backend/internal/channel"
	"github.com/tbourn/go-booking-backend/internal/config"
	"github.com/tbourn/go-booking-backend/internal/crm"
	httpapi "github.com/tbourn/go-booking-backend/internal/http"
	"github.com/tbourn/go-booking-backend/internal/idempotency"
	"github.com/tbourn/go-booking-backend/internal/intent"
	"github.com/tbourn/go-booking-backend/internal/knowledge"
	"github.com/tbourn/go-booking-backend/internal/llm"
	"github.com/tbourn/go-booking-backend/internal/observability"
	"github.com/tbourn/go-booking-backend/internal/orchestrator"
	"github.com/tbourn/go-booking-backend/internal/session"
	"github.com/tbourn/go-booking-backend/internal/store"
	"github.com/tbourn/go-booking-backend/internal/temporal"
)

var version = "dev"

const (
	breakerThreshold = 5
	breakerReset     = 60 * time.Second
	crmWatchInterval = 15 * time.Second
	shutdownTimeout  = 10 * time.Second
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	setupLogging(cfg)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing first, so every later init is observable.
	shutdownOTel, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	// Knowledge base is validated fail-fast: a bot that hallucinates the
	// schedule is worse than one that does not start.
	kb, err := knowledge.Load(cfg.KnowledgePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.KnowledgePath).Msg("knowledge base load failed")
	}

	st, err := store.New(store.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer func() { _ = st.Close() }()

	db, err := audit.OpenSQLite(cfg.AuditDBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.AuditDBPath).Msg("audit db open failed")
	}
	if err := audit.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("audit db migration failed")
	}
	sink := audit.NewSink(db, log.Logger)

	parser, err := temporal.NewParser(cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("timezone load failed")
	}

	tg := channel.NewTelegram(
		cfg.Telegram.BotToken,
		cfg.Telegram.WebhookSecret,
		cfg.Telegram.AdminChatID,
		log.Logger,
	)

	breaker := crm.NewBreaker(breakerThreshold, breakerReset)
	crmClient := crm.NewHTTPClient(cfg.CRM.BaseURL, cfg.CRM.APIKey, breaker, log.Logger)
	adapter := crm.NewAdapter(crmClient, st, tg, log.Logger)

	llmOpts := []llm.Option{}
	if cfg.LLM.BaseURL != "" {
		llmOpts = append(llmOpts, llm.WithBaseURL(cfg.LLM.BaseURL))
	}
	generator := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, log.Logger, llmOpts...)
	resolver := intent.NewResolver(generator, kb, log.Logger)

	guard := budget.NewGuard(st, budget.Limits{
		RequestsPerMinute: cfg.Budget.RequestsPerMinute,
		TokensPerHour:     cfg.Budget.TokensPerHour,
		CostPerDayUSD:     cfg.Budget.CostPerDayUSD,
		ErrorsPerHour:     cfg.Budget.ErrorsPerHour,
	}, log.Logger)

	flow := orchestrator.NewFlow(orchestrator.Config{
		Sessions:      session.NewManager(st, log.Logger),
		Budget:        guard,
		Intent:        resolver,
		CRM:           adapter,
		Locks:         idempotency.NewGuard(st, log.Logger),
		Audit:         sink,
		Temporal:      parser,
		StudioAddress: kb.Studio.Address,
		TestMode:      cfg.TestMode,
		Logger:        log.Logger,
	})

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Channel: tg,
		Deduper: channel.NewDeduper(st, log.Logger),
		Flow:    flow,
		Store:   st,
		CRM:     adapter,
	}, cfg)

	go httpapi.WatchCRM(ctx, adapter, crmWatchInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("version", version).
			Str("addr", srv.Addr).
			Str("studio", kb.Studio.Name).
			Bool("test_mode", cfg.TestMode).
			Msg("starting booking bot")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// setupLogging configures the global zerolog logger from config.
func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.NewConsoleWriter())
	}
}
