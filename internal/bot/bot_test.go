package bot_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/triplog-bot/internal/bot"
	"github.com/avoronkov/triplog-bot/internal/domain"
	"github.com/avoronkov/triplog-bot/internal/panel"
	"github.com/avoronkov/triplog-bot/internal/session"
	"github.com/avoronkov/triplog-bot/internal/timeutil"
)

// fakeAPI records everything the transport pushes to Telegram. Safe for
// concurrent use because the transport may answer callbacks from several
// goroutines.
type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) { return "", nil }

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	ch := make(chan tgbotapi.Update)
	close(ch)
	return ch
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent, f.requests = nil, nil
}

var _ bot.API = (*fakeAPI)(nil)

// memLedger backs both the trip dialogue and the photo flow. Access is not
// synchronized on purpose: the transport serializes updates per user, so
// the race detector flags any regression of that guarantee here.
type memLedger struct {
	entries      []domain.TripEntry
	measurements []domain.Measurement
}

func (l *memLedger) Append(_ context.Context, e domain.TripEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

func (l *memLedger) FindByUID(_ context.Context, rowUID string, authorID int64) (int, domain.TripEntry, error) {
	for i, e := range l.entries {
		if e.RowUID == rowUID && e.AuthorID == authorID {
			return i + 1, e, nil
		}
	}
	return 0, domain.TripEntry{}, domain.ErrNotFound
}

func (l *memLedger) Update(_ context.Context, position int, e domain.TripEntry) error {
	if position < 1 || position > len(l.entries) {
		return domain.ErrNotFound
	}
	l.entries[position-1] = e
	return nil
}

func (l *memLedger) LastForUser(_ context.Context, authorID int64) (domain.TripEntry, error) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].AuthorID == authorID {
			return l.entries[i], nil
		}
	}
	return domain.TripEntry{}, domain.ErrNotFound
}

func (l *memLedger) ListRecent(_ context.Context, limit int) ([]domain.TripEntry, error) {
	var out []domain.TripEntry
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}

func (l *memLedger) AppendMeasurement(_ context.Context, m domain.Measurement) error {
	l.measurements = append(l.measurements, m)
	return nil
}

var (
	_ session.Ledger = (*memLedger)(nil)
	_ panel.Ledger   = (*memLedger)(nil)
)

type memRegistry struct {
	users map[int64]domain.Registration
}

func (r *memRegistry) IsRegistered(_ context.Context, userID int64) (bool, error) {
	_, ok := r.users[userID]
	return ok, nil
}

func (r *memRegistry) Get(_ context.Context, userID int64) (domain.Registration, error) {
	reg, ok := r.users[userID]
	if !ok {
		return domain.Registration{}, domain.ErrNotFound
	}
	return reg, nil
}

func (r *memRegistry) Register(_ context.Context, userID int64, fullName string) (domain.Registration, error) {
	reg := domain.Registration{UserID: userID, FullName: fullName, CreatedAt: time.Now()}
	r.users[userID] = reg
	return reg, nil
}

func (r *memRegistry) List(_ context.Context) ([]domain.Registration, error) {
	out := make([]domain.Registration, 0, len(r.users))
	for _, reg := range r.users {
		out = append(out, reg)
	}
	return out, nil
}

var (
	_ session.Registry = (*memRegistry)(nil)
	_ panel.Registry   = (*memRegistry)(nil)
)

// ---- harness ---------------------------------------------------------------

const testUserID = int64(42)

type botHarness struct {
	bot     *bot.Bot
	api     *fakeAPI
	machine *session.Machine
	ledger  *memLedger
}

func newBotHarness(t *testing.T) *botHarness {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, loc)
	clock := timeutil.NewWithNow(loc, func() time.Time { return now })

	led := &memLedger{}
	reg := &memRegistry{users: map[int64]domain.Registration{
		testUserID: {UserID: testUserID, FullName: "Иван Петров", CreatedAt: now.Add(-24 * time.Hour)},
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	machine := session.NewMachine(clock, led, reg, log, session.Config{})
	flow := panel.NewFlow(nil, led, reg, clock, log, panel.Config{})
	api := &fakeAPI{}
	return &botHarness{
		bot:     bot.New(api, machine, flow, log, 0),
		api:     api,
		machine: machine,
		ledger:  led,
	}
}

func textUpdate(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: testUserID},
		Chat:      &tgbotapi.Chat{ID: testUserID},
		Text:      text,
	}}
}

func commandUpdate(cmd string) tgbotapi.Update {
	upd := textUpdate("/" + cmd)
	upd.Message.Entities = []tgbotapi.MessageEntity{
		{Type: "bot_command", Offset: 0, Length: len(cmd) + 1},
	}
	return upd
}

func callbackUpdate(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: testUserID},
		Message: &tgbotapi.Message{
			MessageID: 5,
			Chat:      &tgbotapi.Chat{ID: testUserID},
		},
		Data: data,
	}}
}

// ---- per-user serialization ------------------------------------------------

// Webhook requests deliver updates on independent goroutines. The dialogue
// machine mutates per-user session state without locking, so the transport
// must hand it one update at a time per user. Run with -race.
func TestHandleUpdate_SameUserUpdatesRunOneAtATime(t *testing.T) {
	h := newBotHarness(t)
	ctx := context.Background()

	// Walk to the odometer-start question.
	h.bot.HandleUpdate(ctx, commandUpdate("new"))
	h.bot.HandleUpdate(ctx, textUpdate("сейчас"))
	require.Equal(t, session.StateWaitingOdometerStart, h.machine.StateOf(testUserID))
	h.api.reset()

	const burst = 8
	var wg sync.WaitGroup
	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.bot.HandleUpdate(ctx, textUpdate("55698"))
		}()
	}
	wg.Wait()

	// Exactly one of the bursts advanced the dialogue; the rest arrived in
	// the end-time step, where "55698" is not a valid time and re-prompts.
	assert.Equal(t, session.StateWaitingEndTime, h.machine.StateOf(testUserID))
	assert.Equal(t, burst, h.api.sentCount(), "every update gets exactly one reply")
	assert.Empty(t, h.ledger.entries)
}

// ---- routing ---------------------------------------------------------------

func TestHandleUpdate_CallbackIsAnswered(t *testing.T) {
	h := newBotHarness(t)

	h.bot.HandleUpdate(context.Background(), callbackUpdate(session.BtnNewEntry))

	require.Len(t, h.api.requests, 1)
	cb, ok := h.api.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "cb-1", cb.CallbackQueryID)
}

func TestHandleUpdate_PanelCallbackRoutedToPhotoFlow(t *testing.T) {
	h := newBotHarness(t)
	ctx := context.Background()

	// The manual-entry button arms the photo flow; the next text message
	// must land there, not in the trip dialogue.
	h.bot.HandleUpdate(ctx, callbackUpdate(panel.ManualPrefix))
	h.bot.HandleUpdate(ctx, textUpdate("55698 6"))

	require.Len(t, h.ledger.measurements, 1)
	m := h.ledger.measurements[0]
	assert.Equal(t, 55698, m.OdometerKm)
	assert.Equal(t, 6, m.FuelBars)
	assert.Equal(t, "manual", m.Source)
	assert.Equal(t, session.StateIdle, h.machine.StateOf(testUserID))
}

func TestHandleUpdate_WithoutActingUserIsDropped(t *testing.T) {
	h := newBotHarness(t)

	// Channel posts carry no From; nothing to route, nothing to answer.
	h.bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 9,
		Chat:      &tgbotapi.Chat{ID: -100},
		Text:      "55698",
	}})

	assert.Zero(t, h.api.sentCount())
	assert.Empty(t, h.api.requests)
}
