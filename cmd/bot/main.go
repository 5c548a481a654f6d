// Package main is the entry point for the triplog Telegram bot.
// Its sole responsibility is wiring dependencies together and starting the
// update loop. No business logic belongs here.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/avoronkov/triplog-bot/internal/bot"
	"github.com/avoronkov/triplog-bot/internal/config"
	"github.com/avoronkov/triplog-bot/internal/handler"
	"github.com/avoronkov/triplog-bot/internal/ledger"
	"github.com/avoronkov/triplog-bot/internal/middleware"
	"github.com/avoronkov/triplog-bot/internal/panel"
	"github.com/avoronkov/triplog-bot/internal/registry"
	"github.com/avoronkov/triplog-bot/internal/session"
	"github.com/avoronkov/triplog-bot/internal/timeutil"
	"github.com/avoronkov/triplog-bot/migrations"
)

// menuSendDelay is the pause before re-sending the main menu after a
// terminal reply, so the confirmation message stays visible for a moment.
const menuSendDelay = 3 * time.Second

func main() {
	// --- Config -----------------------------------------------------------
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	// log/slog is the stdlib structured logger introduced in Go 1.21.
	// JSON handler writes machine-readable output suitable for log aggregators.
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Database ---------------------------------------------------------
	// pgxpool manages a pool of Postgres connections.
	// New() does not open connections immediately — the first query does.
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(context.Background()); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	// --- Migrations -------------------------------------------------------
	// The bot is the only writer, so it applies its own schema on startup.
	if err := runMigrations(cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied")

	// --- Wiring -----------------------------------------------------------
	clock, err := timeutil.New(cfg.Timezone)
	if err != nil {
		slog.Error("invalid timezone", "tz", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	trips := ledger.NewPGStore(pool, "trips")
	measurements := ledger.NewPGStore(pool, "measurements")
	led := ledger.New(trips, measurements, clock,
		ledger.WithDuplicateWindow(cfg.DuplicateWindow),
		ledger.WithScanRows(cfg.DuplicateScanRows),
	)
	users := registry.NewPGRegistry(pool)

	machine := session.NewMachine(clock, led, users, logger, session.Config{
		AdminIDs:   cfg.AdminIDs,
		EditWindow: cfg.EditWindow,
	})

	// The panel OCR extractor is optional; without it photos still get a
	// manual-entry offer.
	var extractor panel.Extractor
	if cfg.VisionURL != "" {
		extractor = panel.NewHTTPExtractor(cfg.VisionURL)
	}
	flow := panel.NewFlow(extractor, led, users, clock, logger, panel.Config{
		FuelBars:      cfg.FuelBars,
		LitersPerBar:  cfg.LitersPerBar,
		MinConfidence: cfg.MinConfidence,
	})

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		slog.Error("failed to create telegram client", "error", err)
		os.Exit(1)
	}
	slog.Info("authorized on telegram", "username", api.Self.UserName)

	b := bot.New(api, machine, flow, logger, menuSendDelay)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Update loop ------------------------------------------------------
	// With WEBHOOK_URL set Telegram pushes updates to our HTTP server;
	// otherwise we long-poll, which needs no public endpoint.
	if cfg.WebhookURL == "" {
		slog.Info("starting long polling")
		b.RunPolling(ctx)
		slog.Info("bot stopped")
		return
	}

	wh, err := tgbotapi.NewWebhook(cfg.WebhookURL + "/webhook")
	if err != nil {
		slog.Error("invalid webhook url", "error", err)
		os.Exit(1)
	}
	if _, err := api.Request(wh); err != nil {
		slog.Error("failed to register webhook", "error", err)
		os.Exit(1)
	}

	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)

	srv := handler.NewServer(b, logger)
	srv.Routes(r)

	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("webhook server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// runMigrations applies all pending migrations embedded in the binary.
// goose needs database/sql, not a pgx pool, so it gets its own connection.
func runMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return err
	}
	_, err = provider.Up(context.Background())
	return err
}
