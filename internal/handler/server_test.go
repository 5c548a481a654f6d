package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/triplog-bot/internal/handler"
)

// recordingBot captures updates handed over by the webhook.
type recordingBot struct {
	mu      sync.Mutex
	updates []tgbotapi.Update
	got     chan struct{}
}

func newRecordingBot() *recordingBot {
	return &recordingBot{got: make(chan struct{}, 1)}
}

func (b *recordingBot) HandleUpdate(_ context.Context, upd tgbotapi.Update) {
	b.mu.Lock()
	b.updates = append(b.updates, upd)
	b.mu.Unlock()
	b.got <- struct{}{}
}

var _ handler.UpdateHandler = (*recordingBot)(nil)

func newTestRouter(bot *recordingBot) chi.Router {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	handler.NewServer(bot, log).Routes(r)
	return r
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(newRecordingBot())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWebhook_AcknowledgesAndDispatches(t *testing.T) {
	bot := newRecordingBot()
	r := newTestRouter(bot)

	body := `{"update_id": 100, "message": {"message_id": 1, "text": "/start", "chat": {"id": 42}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	// The update is processed asynchronously after the response.
	select {
	case <-bot.got:
	case <-time.After(time.Second):
		t.Fatal("update never reached the bot")
	}

	bot.mu.Lock()
	defer bot.mu.Unlock()
	require.Len(t, bot.updates, 1)
	assert.Equal(t, 100, bot.updates[0].UpdateID)
	require.NotNil(t, bot.updates[0].Message)
	assert.Equal(t, "/start", bot.updates[0].Message.Text)
}

func TestWebhook_BadJSON(t *testing.T) {
	bot := newRecordingBot()
	r := newTestRouter(bot)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	select {
	case <-bot.got:
		t.Fatal("malformed update must not reach the bot")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebhook_GetMethodNotAllowed(t *testing.T) {
	r := newTestRouter(newRecordingBot())

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
