// Package panel implements the instrument-panel photo flow: an extraction
// step proposes an odometer value and a fuel-bar count, the user confirms,
// corrects manually, or retakes the photo, and the confirmed reading is
// committed through the ledger as a reduced-field measurement row.
package panel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/avoronkov/triplog-bot/internal/domain"
	"github.com/avoronkov/triplog-bot/internal/timeutil"
)

// Callback data prefixes for the photo keyboards. The payload after the
// prefix carries the proposed values so confirmation needs no server-side
// pending state.
const (
	ConfirmPrefix = "confirm_photo"
	ManualPrefix  = "manual_photo"
	RetakePrefix  = "retake_photo"
)

// Extractor is the external image-recognition collaborator.
type Extractor interface {
	// Extract reads an instrument panel photo. Fields of the reading are
	// nil when the extractor could not find them.
	Extract(ctx context.Context, image []byte) (domain.PanelReading, error)
}

// Ledger is the commit operation the flow depends on.
type Ledger interface {
	AppendMeasurement(ctx context.Context, m domain.Measurement) error
}

// Registry gates the flow to registered users.
type Registry interface {
	IsRegistered(ctx context.Context, userID int64) (bool, error)
}

// Config carries the panel tunables.
type Config struct {
	// FuelBars is the gauge's maximum bar count.
	FuelBars int
	// LitersPerBar converts a bar count to liters.
	LitersPerBar float64
	// MinConfidence is the threshold below which the confirmation message
	// carries a low-confidence caveat. Low confidence never blocks the
	// flow, it only warns.
	MinConfidence float64
}

// Flow is the photo confirmation state machine. Its only per-user state is
// whether a manual input is pending and which photo reference to attach.
type Flow struct {
	extractor Extractor
	ledger    Ledger
	registry  Registry
	clock     *timeutil.Clock
	log       *slog.Logger
	cfg       Config

	mu       sync.Mutex
	pending  map[int64]bool   // user ids awaiting one-line manual input
	photoRef map[int64]string // last photo file reference per user
}

// NewFlow constructs the panel flow. extractor may be nil when no
// recognition backend is configured; photos then get a module-inactive
// reply and only manual entry is possible.
func NewFlow(extractor Extractor, ledger Ledger, registry Registry, clock *timeutil.Clock, log *slog.Logger, cfg Config) *Flow {
	if cfg.FuelBars == 0 {
		cfg.FuelBars = 8
	}
	if cfg.LitersPerBar == 0 {
		cfg.LitersPerBar = 6.25
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = 0.6
	}
	return &Flow{
		extractor: extractor,
		ledger:    ledger,
		registry:  registry,
		clock:     clock,
		log:       log,
		cfg:       cfg,
		pending:   make(map[int64]bool),
		photoRef:  make(map[int64]string),
	}
}

// AwaitingManual reports whether the next text from this user belongs to
// the photo flow rather than the trip dialogue.
func (f *Flow) AwaitingManual(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[userID]
}

// HandlePhoto runs extraction on a received photo and proposes the result.
// Extraction being unavailable or unsure is never fatal: the reply degrades
// to a warning plus the manual-entry offer.
func (f *Flow) HandlePhoto(ctx context.Context, userID int64, image []byte, photoRef string) (domain.Reply, error) {
	registered, err := f.registry.IsRegistered(ctx, userID)
	if err != nil {
		return domain.Reply{Text: "❌ Ошибка обработки фото. Попробуйте ещё раз или введите вручную."}, err
	}
	if !registered {
		return domain.Reply{Text: "❌ Сначала зарегистрируйтесь: /start"}, nil
	}

	if f.extractor == nil {
		return domain.Reply{Text: "OCR модуль не активен. Сообщите администратору."}, nil
	}

	f.mu.Lock()
	f.photoRef[userID] = photoRef
	f.mu.Unlock()

	reading, err := f.extractor.Extract(ctx, image)
	if err != nil {
		f.log.Error("panel extraction failed", "user_id", userID, "error", err)
		return domain.Reply{
			Text:     "Не смог разобрать показания. Можем перейти на ручной ввод?",
			Keyboard: f.confirmKeyboard(0, 0),
		}, nil
	}

	if reading.OdometerKm == nil || reading.FuelBars == nil {
		return domain.Reply{
			Text:     "Не смог разобрать показания. Можем перейти на ручной ввод?",
			Keyboard: f.confirmKeyboard(0, 0),
		}, nil
	}

	odo, bars := *reading.OdometerKm, *reading.FuelBars
	liters := f.liters(bars)

	text := fmt.Sprintf("Нашёл:\n"+
		"• Пробег: <b>%d</b> км\n"+
		"• Остаток: <b>%d</b> × %v = <b>%v</b> л\n\n"+
		"Всё верно?", odo, bars, f.cfg.LitersPerBar, liters)
	if reading.Confidence < f.cfg.MinConfidence {
		text = "<i>Низкая уверенность распознавания.</i>\n" + text
	}

	return domain.Reply{Text: text, Keyboard: f.confirmKeyboard(odo, bars)}, nil
}

// HandleButton processes one of the photo keyboard presses. The transport
// routes any callback whose data starts with one of the package prefixes
// here.
func (f *Flow) HandleButton(ctx context.Context, userID int64, data string) (domain.Reply, error) {
	switch {
	case strings.HasPrefix(data, ConfirmPrefix+":"):
		odo, bars, ok := parseConfirmData(data)
		if !ok {
			return domain.Reply{Text: "❌ Ошибка сохранения.", Edit: true}, nil
		}
		return f.commit(ctx, userID, odo, bars, "photo")
	case strings.HasPrefix(data, ManualPrefix):
		f.mu.Lock()
		f.pending[userID] = true
		f.mu.Unlock()
		return domain.Reply{
			Text: fmt.Sprintf("Введите одометр (км) и число делений (0–%d) одной строкой, напр.: 55698 6",
				f.cfg.FuelBars),
			Edit: true,
		}, nil
	case strings.HasPrefix(data, RetakePrefix):
		return domain.Reply{
			Text: "📷 Пришлите новое фото приборной панели (без бликов, не под углом).",
			Edit: true,
		}, nil
	}
	return domain.Reply{}, nil
}

// HandleManualInput parses the one-line "<odometer> <bars>" override.
// The bar count is bounds-checked against the configured gauge size.
func (f *Flow) HandleManualInput(ctx context.Context, userID int64, text string) (domain.Reply, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) != 2 {
		return f.manualFormatError(), nil
	}
	odo, err1 := strconv.Atoi(fields[0])
	bars, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || odo < 0 || bars < 0 || bars > f.cfg.FuelBars {
		return f.manualFormatError(), nil
	}

	f.mu.Lock()
	delete(f.pending, userID)
	delete(f.photoRef, userID) // manual entries carry no photo reference
	f.mu.Unlock()

	return f.commit(ctx, userID, odo, bars, "manual")
}

// commit writes the measurement row through the ledger.
func (f *Flow) commit(ctx context.Context, userID int64, odo, bars int, source string) (domain.Reply, error) {
	f.mu.Lock()
	photoRef := f.photoRef[userID]
	delete(f.photoRef, userID)
	f.mu.Unlock()
	if source == "manual" {
		photoRef = ""
	}

	liters := f.liters(bars)
	m := domain.NewMeasurement(domain.Measurement{
		OdometerKm: odo,
		FuelBars:   bars,
		Liters:     liters,
		Source:     source,
		PhotoRef:   photoRef,
		CreatedAt:  f.clock.NowUTCString(),
		AuthorID:   userID,
	})

	if err := f.ledger.AppendMeasurement(ctx, m); err != nil {
		return domain.Reply{Text: "❌ Не удалось сохранить запись. Попробуйте позже.", Edit: source == "photo"}, err
	}

	return domain.Reply{
		Text: fmt.Sprintf("✅ Записал. Одометр: <b>%d</b> км. Остаток: <b>%v</b> л.", odo, liters),
		Edit: source == "photo",
	}, nil
}

// liters converts a bar count, rounded to two decimals the way the gauge
// is read out to the user.
func (f *Flow) liters(bars int) float64 {
	v := float64(bars) * f.cfg.LitersPerBar
	return float64(int(v*100+0.5)) / 100
}

func (f *Flow) manualFormatError() domain.Reply {
	return domain.Reply{
		Text: fmt.Sprintf("❌ Формат: 55698 6 (одометр и деления 0–%d)", f.cfg.FuelBars),
	}
}

func (f *Flow) confirmKeyboard(odo, bars int) [][]domain.Button {
	return [][]domain.Button{
		domain.Row(domain.Button{
			Label: "✅ Верно",
			Data:  fmt.Sprintf("%s:%d:%d", ConfirmPrefix, odo, bars),
		}),
		domain.Row(
			domain.Button{Label: "✏️ Ввести вручную", Data: ManualPrefix},
			domain.Button{Label: "📷 Перефото", Data: RetakePrefix},
		),
	}
}

// parseConfirmData unpacks "confirm_photo:<odo>:<bars>".
func parseConfirmData(data string) (odo, bars int, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return 0, 0, false
	}
	odo, err1 := strconv.Atoi(parts[1])
	bars, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return odo, bars, true
}
