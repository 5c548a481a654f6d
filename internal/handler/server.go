// Package handler implements the HTTP surface of the bot: the Telegram
// webhook endpoint and a health check. The webhook acknowledges
// immediately and processes the update in the background so Telegram
// never waits on the dialogue or the store.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateHandler processes one Telegram update to completion.
// Defining the interface here lets webhook tests inject a recorder instead
// of the real transport.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd tgbotapi.Update)
}

// Server holds the webhook dependencies.
type Server struct {
	bot UpdateHandler
	log *slog.Logger
}

// NewServer constructs the Server.
func NewServer(bot UpdateHandler, log *slog.Logger) *Server {
	return &Server{bot: bot, log: log}
}

// Routes registers the webhook and health endpoints on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/webhook", s.handleWebhook)
	r.Get("/healthz", s.handleHealth)
}

// handleWebhook decodes the update, acknowledges, and hands the update to
// the bot in a goroutine. Context is detached from the request on purpose:
// the work outlives the HTTP exchange.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var upd tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.log.Error("webhook decode failed", "error", err)
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	go s.bot.HandleUpdate(context.WithoutCancel(r.Context()), upd)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"ok": true}) //nolint:errcheck
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"}) //nolint:errcheck
}
