// Package bot is the Telegram transport: it maps inbound updates onto
// session and panel events and renders their replies back into messages
// with inline keyboards. No dialogue logic lives here.
package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/avoronkov/triplog-bot/internal/domain"
	"github.com/avoronkov/triplog-bot/internal/panel"
	"github.com/avoronkov/triplog-bot/internal/session"
)

// API is the slice of *tgbotapi.BotAPI the transport uses. Tests inject a
// fake; production passes the real client.
type API interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot glues the Telegram API to the dialogue machines.
type Bot struct {
	api     API
	machine *session.Machine
	panel   *panel.Flow
	log     *slog.Logger

	// users serializes handling per user id: the dialogue machines mutate
	// per-user session state and rely on one-event-at-a-time delivery.
	users *userLocks

	// menuDelay is the cosmetic pause before the main menu follow-up
	// after a commit or cancellation. Zero is fine and changes nothing
	// behaviorally.
	menuDelay time.Duration
}

// New constructs the transport.
func New(api API, machine *session.Machine, flow *panel.Flow, log *slog.Logger, menuDelay time.Duration) *Bot {
	return &Bot{api: api, machine: machine, panel: flow, log: log, users: newUserLocks(), menuDelay: menuDelay}
}

// HandleUpdate processes one Telegram update to completion. Webhook
// requests arrive concurrently, so updates are serialized per user here;
// updates for different users interleave freely.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	userID, ok := updateUserID(upd)
	if !ok {
		return
	}

	b.users.lock(userID)
	defer b.users.unlock(userID)

	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	}
}

// updateUserID extracts the acting user. Updates without one (channel
// posts, service messages) are not part of any dialogue and are dropped.
func updateUserID(upd tgbotapi.Update) (int64, bool) {
	switch {
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		return upd.CallbackQuery.From.ID, true
	case upd.Message != nil && upd.Message.From != nil:
		return upd.Message.From.ID, true
	}
	return 0, false
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Acknowledge first so the client stops its spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("answer callback failed", "error", err)
	}

	userID := cb.From.ID
	var chatID int64
	var messageID int
	if cb.Message != nil {
		chatID = cb.Message.Chat.ID
		messageID = cb.Message.MessageID
	}

	var reply domain.Reply
	var err error
	if isPanelCallback(cb.Data) {
		reply, err = b.panel.HandleButton(ctx, userID, cb.Data)
	} else {
		reply, err = b.machine.Handle(ctx, userID, session.ButtonEvent(cb.Data))
	}
	if err != nil {
		b.log.Error("callback handling failed", "user_id", userID, "data", cb.Data, "error", err)
	}
	b.send(ctx, userID, chatID, messageID, reply)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	var reply domain.Reply
	var err error
	switch {
	case len(msg.Photo) > 0:
		reply, err = b.handlePhoto(ctx, msg)
	case msg.IsCommand():
		reply, err = b.machine.Handle(ctx, userID, session.CommandEvent(msg.Command()))
	case b.panel.AwaitingManual(userID):
		reply, err = b.panel.HandleManualInput(ctx, userID, msg.Text)
	default:
		reply, err = b.machine.Handle(ctx, userID, session.TextEvent(msg.Text))
	}
	if err != nil {
		b.log.Error("message handling failed", "user_id", userID, "error", err)
	}
	b.send(ctx, userID, chatID, 0, reply)
}

// handlePhoto downloads the largest size of the received photo and feeds
// it to the panel flow.
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) (domain.Reply, error) {
	largest := msg.Photo[len(msg.Photo)-1]

	image, err := b.downloadFile(ctx, largest.FileID)
	if err != nil {
		return domain.Reply{Text: "❌ Ошибка обработки фото. Попробуйте ещё раз или введите вручную."},
			fmt.Errorf("bot.Bot.handlePhoto: %w", err)
	}

	return b.panel.HandlePhoto(ctx, msg.From.ID, image, largest.FileID)
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// send renders a Reply into a Telegram message, editing the originating
// message when asked, and follows up with the main menu when the reply
// requests it.
func (b *Bot) send(ctx context.Context, userID, chatID int64, messageID int, reply domain.Reply) {
	if reply.Text == "" && !reply.ShowMenu {
		return
	}

	if reply.Text != "" {
		var msg tgbotapi.Chattable
		if reply.Edit && messageID != 0 {
			edit := tgbotapi.NewEditMessageText(chatID, messageID, reply.Text)
			edit.ParseMode = tgbotapi.ModeHTML
			if kb := toInlineKeyboard(reply.Keyboard); kb != nil {
				edit.ReplyMarkup = kb
			}
			msg = edit
		} else {
			out := tgbotapi.NewMessage(chatID, reply.Text)
			out.ParseMode = tgbotapi.ModeHTML
			if kb := toInlineKeyboard(reply.Keyboard); kb != nil {
				out.ReplyMarkup = *kb
			}
			msg = out
		}
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send message failed", "chat_id", chatID, "error", err)
		}
	}

	if reply.ShowMenu {
		if b.menuDelay > 0 {
			select {
			case <-time.After(b.menuDelay):
			case <-ctx.Done():
				return
			}
		}
		menu := b.machine.MainMenu(ctx, userID)
		out := tgbotapi.NewMessage(chatID, menu.Text)
		out.ParseMode = tgbotapi.ModeHTML
		if kb := toInlineKeyboard(menu.Keyboard); kb != nil {
			out.ReplyMarkup = *kb
		}
		if _, err := b.api.Send(out); err != nil {
			b.log.Error("send menu failed", "chat_id", chatID, "error", err)
		}
	}
}

// RunPolling consumes updates via long polling until ctx is cancelled.
// Used when no webhook URL is configured.
func (b *Bot) RunPolling(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.log.Info("polling started")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}

// isPanelCallback routes photo-flow keyboards to the panel machine.
func isPanelCallback(data string) bool {
	return strings.HasPrefix(data, panel.ConfirmPrefix) ||
		strings.HasPrefix(data, panel.ManualPrefix) ||
		strings.HasPrefix(data, panel.RetakePrefix)
}

// toInlineKeyboard converts the reply keyboard rows. Nil when empty so
// messages without buttons carry no markup at all.
func toInlineKeyboard(rows [][]domain.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]tgbotapi.InlineKeyboardButton, len(rows))
	for i, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, len(row))
		for j, btn := range row {
			buttons[j] = tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data)
		}
		out[i] = buttons
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(out...)
	return &kb
}
