package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/avoronkov/triplog-bot/internal/domain"
	"github.com/avoronkov/triplog-bot/internal/timeutil"
)

// Ledger defines the commit operations the machine depends on.
// Defining the interface here (in the consumer package) keeps the machine
// testable with a fake instead of a live store.
type Ledger interface {
	Append(ctx context.Context, e domain.TripEntry) error
	FindByUID(ctx context.Context, rowUID string, authorID int64) (int, domain.TripEntry, error)
	Update(ctx context.Context, position int, e domain.TripEntry) error
	LastForUser(ctx context.Context, authorID int64) (domain.TripEntry, error)
	ListRecent(ctx context.Context, limit int) ([]domain.TripEntry, error)
}

// Registry defines the user registry operations the machine depends on.
type Registry interface {
	IsRegistered(ctx context.Context, userID int64) (bool, error)
	Get(ctx context.Context, userID int64) (domain.Registration, error)
	Register(ctx context.Context, userID int64, fullName string) (domain.Registration, error)
	List(ctx context.Context) ([]domain.Registration, error)
}

// Machine holds all in-flight dialogue sessions, keyed by user id.
// Events for the same user are handled to completion one at a time (the
// transport delivers them sequentially per user); sessions of different
// users share no mutable state beyond the map itself.
type Machine struct {
	clock    *timeutil.Clock
	ledger   Ledger
	registry Registry
	log      *slog.Logger

	admins     map[int64]bool
	editWindow time.Duration

	mu       sync.Mutex
	sessions map[int64]*Session
}

// Config carries the tunables the machine needs.
type Config struct {
	AdminIDs   []int64
	EditWindow time.Duration
}

// NewMachine constructs the conversation state machine.
func NewMachine(clock *timeutil.Clock, ledger Ledger, registry Registry, log *slog.Logger, cfg Config) *Machine {
	admins := make(map[int64]bool, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = true
	}
	if cfg.EditWindow == 0 {
		cfg.EditWindow = 15 * time.Minute
	}
	return &Machine{
		clock:      clock,
		ledger:     ledger,
		registry:   registry,
		log:        log,
		admins:     admins,
		editWindow: cfg.EditWindow,
		sessions:   make(map[int64]*Session),
	}
}

// session returns the user's session, creating an idle one on first use.
func (m *Machine) session(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		s = &Session{State: StateIdle}
		m.sessions[userID] = s
	}
	return s
}

// clearSession drops the user's in-flight state.
func (m *Machine) clearSession(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// StateOf reports the user's current step. Used by the transport to decide
// whether a photo-flow text input should bypass the trip dialogue, and by
// tests.
func (m *Machine) StateOf(userID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s.State
	}
	return StateIdle
}

// Handle processes one inbound event and returns the outbound reply.
// The returned error is for logging; every failure path also yields a
// user-facing Reply, and no failure leaves the session unrecoverable —
// each either re-prompts the same step or clears back to idle.
func (m *Machine) Handle(ctx context.Context, userID int64, ev Event) (domain.Reply, error) {
	registered, err := m.registry.IsRegistered(ctx, userID)
	if err != nil {
		return storeFailureReply(), err
	}
	if !registered {
		return m.handleUnregistered(ctx, userID, ev)
	}

	switch ev.Kind {
	case EventCommand:
		return m.handleCommand(ctx, userID, ev.Text)
	case EventButton:
		return m.handleButton(ctx, userID, ev.Button)
	default:
		return m.handleText(ctx, userID, ev.Text)
	}
}

// handleCommand dispatches slash commands for registered users.
func (m *Machine) handleCommand(ctx context.Context, userID int64, cmd string) (domain.Reply, error) {
	switch cmd {
	case "start":
		return m.greet(ctx, userID)
	case "new":
		return m.startNewEntry(userID, false), nil
	case "last":
		return m.showLastEntries(ctx, false)
	case "edit_last":
		return m.startEditLast(ctx, userID, false)
	case "help":
		return helpReply(false), nil
	case "export":
		return m.showAdminPanel(ctx, userID, false)
	default:
		return domain.Reply{}, nil
	}
}

// handleButton dispatches inline keyboard presses.
func (m *Machine) handleButton(ctx context.Context, userID int64, data string) (domain.Reply, error) {
	// Global signals, legal from every state.
	switch data {
	case BtnCancel:
		m.clearSession(userID)
		return domain.Reply{Text: "❌ Действие отменено.", Edit: true, ShowMenu: true}, nil
	case BtnMainMenu:
		m.clearSession(userID)
		return domain.Reply{Text: "🏠 Главное меню", Edit: true, ShowMenu: true}, nil
	case BtnNewEntry:
		return m.startNewEntry(userID, true), nil
	case BtnLastEntries:
		return m.showLastEntries(ctx, true)
	case BtnEditLast:
		return m.startEditLast(ctx, userID, true)
	case BtnHelp:
		return helpReply(true), nil
	case BtnExport:
		return m.showAdminPanel(ctx, userID, true)
	}

	sess := m.session(userID)
	switch sess.State {
	case StateWaitingStartTime:
		return m.handleStartTimeButton(sess, data)
	case StateWaitingEndTime:
		return m.handleEndTimeButton(sess, data)
	case StateWaitingProject:
		if data == BtnSkipProject {
			sess.Project = ""
			return askAddress(sess, true), nil
		}
	case StateWaitingAddress:
		if data == BtnSkipAddress {
			sess.Address = ""
			return askComment(sess, true), nil
		}
	case StateWaitingConfirmation:
		switch data {
		case BtnConfirmSave:
			return m.commit(ctx, userID, sess)
		case BtnGoBack:
			return askComment(sess, true), nil
		}
	case StateEditFieldChoice:
		return m.handleEditFieldChoice(sess, data)
	}

	// A stale button from an old message; ignore silently.
	return domain.Reply{}, nil
}

// handleText dispatches typed input by the current step.
func (m *Machine) handleText(ctx context.Context, userID int64, text string) (domain.Reply, error) {
	sess := m.session(userID)
	switch sess.State {
	case StateWaitingStartTime:
		return m.handleStartTimeInput(sess, text), nil
	case StateWaitingOdometerStart:
		return handleOdometerStart(sess, text), nil
	case StateWaitingEndTime:
		return m.handleEndTimeInput(sess, text), nil
	case StateWaitingOdometerEnd:
		return handleOdometerEnd(sess, text), nil
	case StateWaitingProject:
		sess.Project = trimmed(text)
		return askAddress(sess, false), nil
	case StateWaitingAddress:
		sess.Address = trimmed(text)
		return askComment(sess, false), nil
	case StateWaitingComment:
		sess.Comment = trimmed(text)
		return m.showConfirmation(ctx, userID, sess)
	case StateEditNewValue:
		return m.applyEdit(ctx, userID, sess, text)
	default:
		// Idle text from a registered user: just surface the menu.
		return m.mainMenuReply(ctx, userID, false), nil
	}
}

// MainMenu renders the main menu for the transport's post-commit follow-up.
func (m *Machine) MainMenu(ctx context.Context, userID int64) domain.Reply {
	return m.mainMenuReply(ctx, userID, false)
}

// storeFailureReply is the generic store-error message with the retry hint.
func storeFailureReply() domain.Reply {
	return domain.Reply{Text: "❌ <b>Произошла ошибка при сохранении!</b>\n\nПожалуйста, попробуйте еще раз или обратитесь к администратору."}
}
