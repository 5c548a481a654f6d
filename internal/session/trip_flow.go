package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/avoronkov/triplog-bot/internal/domain"
)

const timeFormatHint = "Используйте один из форматов:\n" +
	"• <code>ДД.ММ.ГГГГ ЧЧ:ММ</code>\n" +
	"• <code>ЧЧ:ММ</code>\n" +
	"• <code>сейчас</code>"

// startNewEntry resets the session and asks for the start time.
func (m *Machine) startNewEntry(userID int64, edit bool) domain.Reply {
	m.clearSession(userID)
	sess := m.session(userID)
	sess.State = StateWaitingStartTime

	return domain.Reply{
		Text: "🕐 <b>Время начала поездки</b>\n\n" +
			"Выберите время начала:\n" +
			"• <b>Сейчас</b> - текущее время\n" +
			"• <b>Ввести вручную</b> - в формате ДД.ММ.ГГГГ ЧЧ:ММ или ЧЧ:ММ",
		Keyboard: [][]domain.Button{
			domain.Row(
				domain.Button{Label: "⏰ Сейчас", Data: BtnTimeNow},
				domain.Button{Label: "✏️ Ввести вручную", Data: BtnTimeManual},
			),
			domain.Row(domain.Button{Label: "❌ Отмена", Data: BtnCancel}),
		},
		Edit: edit,
	}
}

func (m *Machine) handleStartTimeButton(sess *Session, data string) (domain.Reply, error) {
	switch data {
	case BtnTimeNow:
		sess.StartTime = m.clock.Now()
		sess.State = StateWaitingOdometerStart
		return m.askOdometerStart(sess, true), nil
	case BtnTimeManual:
		return domain.Reply{
			Text: "🕐 <b>Ввод времени начала</b>\n\n" +
				"Введите время начала в одном из форматов:\n" +
				"• <code>ДД.ММ.ГГГГ ЧЧ:ММ</code> (например: 21.09.2024 14:30)\n" +
				"• <code>ЧЧ:ММ</code> (например: 14:30) - для сегодняшней даты\n" +
				"• <code>сейчас</code> - текущее время",
			Keyboard: cancelKeyboard(),
			Edit:     true,
		}, nil
	}
	return domain.Reply{}, nil
}

func (m *Machine) handleStartTimeInput(sess *Session, text string) domain.Reply {
	start, ok := m.clock.ParseInput(text)
	if !ok {
		return domain.Reply{Text: "❌ Неправильный формат времени!\n\n" + timeFormatHint}
	}
	sess.StartTime = start
	sess.State = StateWaitingOdometerStart
	return m.askOdometerStart(sess, false)
}

func (m *Machine) askOdometerStart(sess *Session, edit bool) domain.Reply {
	return domain.Reply{
		Text: fmt.Sprintf("✅ Время начала: <b>%s</b>\n\n"+
			"🛣️ Введите показания одометра на <b>начало</b> поездки (в километрах):",
			m.clock.ToDisplay(sess.StartTime)),
		Keyboard: cancelKeyboard(),
		Edit:     edit,
	}
}

func handleOdometerStart(sess *Session, text string) domain.Reply {
	value, ok := parseOdometer(text)
	if !ok {
		return domain.Reply{Text: "❌ Введите корректное число километров (целое положительное число):"}
	}
	sess.OdometerStart = value
	sess.State = StateWaitingEndTime

	return domain.Reply{
		Text: fmt.Sprintf("✅ Одометр начала: <b>%s км</b>\n\n"+
			"🕐 <b>Время окончания поездки</b>\n\n"+
			"Выберите время окончания:", groupedInt(value)),
		Keyboard: [][]domain.Button{
			domain.Row(
				domain.Button{Label: "⏰ Сейчас", Data: BtnEndTimeNow},
				domain.Button{Label: "✏️ Ввести вручную", Data: BtnEndTimeManual},
			),
			domain.Row(domain.Button{Label: "❌ Отмена", Data: BtnCancel}),
		},
	}
}

func (m *Machine) handleEndTimeButton(sess *Session, data string) (domain.Reply, error) {
	switch data {
	case BtnEndTimeNow:
		now := m.clock.Now()
		if !m.clock.ValidateSequence(sess.StartTime, now) {
			return domain.Reply{
				Text: "❌ Время окончания не может быть раньше времени начала!\n\n" +
					"Пожалуйста, выберите корректное время окончания или измените время начала.",
				Edit: true,
			}, nil
		}
		sess.EndTime = now
		sess.State = StateWaitingOdometerEnd
		return m.askOdometerEnd(sess, true), nil
	case BtnEndTimeManual:
		return domain.Reply{
			Text: "🕐 <b>Ввод времени окончания</b>\n\n" +
				"Введите время окончания в одном из форматов:\n" +
				"• <code>ДД.ММ.ГГГГ ЧЧ:ММ</code> (например: 21.09.2024 16:30)\n" +
				"• <code>ЧЧ:ММ</code> (например: 16:30) - для сегодняшней даты\n" +
				"• <code>сейчас</code> - текущее время",
			Keyboard: cancelKeyboard(),
			Edit:     true,
		}, nil
	}
	return domain.Reply{}, nil
}

func (m *Machine) handleEndTimeInput(sess *Session, text string) domain.Reply {
	end, ok := m.clock.ParseInput(text)
	if !ok {
		return domain.Reply{Text: "❌ Неправильный формат времени!\n\n" + timeFormatHint}
	}

	// A sequence conflict is distinct from a parse failure: the input was
	// understood, it just contradicts the collected start time.
	if !m.clock.ValidateSequence(sess.StartTime, end) {
		return domain.Reply{
			Text: fmt.Sprintf("❌ Время окончания не может быть раньше времени начала!\n\n"+
				"Время начала: <b>%s</b>\n"+
				"Время окончания: <b>%s</b>\n\n"+
				"Пожалуйста, введите корректное время окончания:",
				m.clock.ToDisplay(sess.StartTime), m.clock.ToDisplay(end)),
		}
	}

	sess.EndTime = end
	sess.State = StateWaitingOdometerEnd
	return m.askOdometerEnd(sess, false)
}

func (m *Machine) askOdometerEnd(sess *Session, edit bool) domain.Reply {
	return domain.Reply{
		Text: fmt.Sprintf("✅ Время окончания: <b>%s</b>\n"+
			"⏱️ Продолжительность: <b>%s</b>\n\n"+
			"🛣️ Введите показания одометра на <b>конец</b> поездки (в километрах):",
			m.clock.ToDisplay(sess.EndTime),
			m.clock.FormatDuration(sess.StartTime, sess.EndTime)),
		Keyboard: cancelKeyboard(),
		Edit:     edit,
	}
}

func handleOdometerEnd(sess *Session, text string) domain.Reply {
	value, ok := parseOdometer(text)
	if !ok {
		return domain.Reply{Text: "❌ Введите корректное число километров (целое положительное число):"}
	}
	if value < sess.OdometerStart {
		return domain.Reply{
			Text: fmt.Sprintf("❌ Конечный одометр (%s км) не может быть меньше начального (%s км)!\n\n"+
				"Введите корректное значение:", groupedInt(value), groupedInt(sess.OdometerStart)),
		}
	}

	sess.OdometerEnd = value
	sess.State = StateWaitingProject

	return domain.Reply{
		Text: fmt.Sprintf("✅ Одометр окончания: <b>%s км</b>\n"+
			"📏 Пробег: <b>%s км</b>\n\n"+
			"🏗️ Введите название проекта (необязательно):",
			groupedInt(value), groupedInt(value-sess.OdometerStart)),
		Keyboard: [][]domain.Button{
			domain.Row(domain.Button{Label: "⏭️ Пропустить", Data: BtnSkipProject}),
			domain.Row(domain.Button{Label: "❌ Отмена", Data: BtnCancel}),
		},
	}
}

func askAddress(sess *Session, edit bool) domain.Reply {
	sess.State = StateWaitingAddress
	return domain.Reply{
		Text: "📍 Введите адрес назначения (необязательно):",
		Keyboard: [][]domain.Button{
			domain.Row(domain.Button{Label: "⏭️ Пропустить", Data: BtnSkipAddress}),
			domain.Row(domain.Button{Label: "❌ Отмена", Data: BtnCancel}),
		},
		Edit: edit,
	}
}

// askComment is also the landing point of the "back" edge from the
// confirmation screen; previously collected fields stay untouched.
func askComment(sess *Session, edit bool) domain.Reply {
	sess.State = StateWaitingComment
	return domain.Reply{
		Text: "💬 <b>Комментарий</b>\n\n" +
			"Введите комментарий к поездке.\n" +
			"Можно вставить текст из письма или добавить дополнительную информацию:",
		Keyboard: cancelKeyboard(),
		Edit:     edit,
	}
}

// showConfirmation renders the full collected entry for a final check.
func (m *Machine) showConfirmation(ctx context.Context, userID int64, sess *Session) (domain.Reply, error) {
	reg, err := m.registry.Get(ctx, userID)
	if err != nil {
		return storeFailureReply(), err
	}

	distance := sess.OdometerEnd - sess.OdometerStart
	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>Подтверждение записи</b>\n\n")
	fmt.Fprintf(&b, "👤 <b>Инженер:</b> %s\n", reg.FullName)
	fmt.Fprintf(&b, "🕐 <b>Начало:</b> %s\n", m.clock.ToDisplay(sess.StartTime))
	fmt.Fprintf(&b, "🕑 <b>Окончание:</b> %s\n", m.clock.ToDisplay(sess.EndTime))
	fmt.Fprintf(&b, "⏱️ <b>Продолжительность:</b> %s\n", m.clock.FormatDuration(sess.StartTime, sess.EndTime))
	fmt.Fprintf(&b, "🛣️ <b>Одометр начало:</b> %s км\n", groupedInt(sess.OdometerStart))
	fmt.Fprintf(&b, "🛣️ <b>Одометр окончание:</b> %s км\n", groupedInt(sess.OdometerEnd))
	fmt.Fprintf(&b, "📏 <b>Пробег:</b> %s км\n", groupedInt(distance))
	if sess.Project != "" {
		fmt.Fprintf(&b, "🏗️ <b>Проект:</b> %s\n", sess.Project)
	}
	if sess.Address != "" {
		fmt.Fprintf(&b, "📍 <b>Адрес:</b> %s\n", sess.Address)
	}
	if sess.Comment != "" {
		fmt.Fprintf(&b, "💬 <b>Комментарий:</b> %s\n", truncate(sess.Comment, 100))
	}
	b.WriteString("\n<i>Все данные корректны?</i>")

	sess.State = StateWaitingConfirmation
	return domain.Reply{
		Text: b.String(),
		Keyboard: [][]domain.Button{
			domain.Row(domain.Button{Label: "✅ Сохранить", Data: BtnConfirmSave}),
			domain.Row(
				domain.Button{Label: "🔙 Назад", Data: BtnGoBack},
				domain.Button{Label: "❌ Отмена", Data: BtnCancel},
			),
		},
	}, nil
}

// commit builds the trip entry and hands it to the ledger. The session is
// cleared only after a successful append, so a store failure or duplicate
// rejection leaves the user on the confirmation screen to retry.
func (m *Machine) commit(ctx context.Context, userID int64, sess *Session) (domain.Reply, error) {
	reg, err := m.registry.Get(ctx, userID)
	if err != nil {
		return storeFailureReply(), err
	}

	date, timeStart := m.clock.ToStorage(sess.StartTime)
	_, timeEnd := m.clock.ToStorage(sess.EndTime)

	entry, err := domain.NewTripEntry(domain.TripEntry{
		Date:          date,
		TimeStart:     timeStart,
		TimeEnd:       timeEnd,
		OdometerStart: sess.OdometerStart,
		OdometerEnd:   sess.OdometerEnd,
		Engineer:      reg.FullName,
		Project:       sess.Project,
		Address:       sess.Address,
		Comment:       sess.Comment,
		CreatedAt:     m.clock.NowUTCString(),
		AuthorID:      userID,
	})
	if err != nil {
		// Per-step validation makes this unreachable; fail safe anyway.
		return domain.Reply{Text: "❌ Некорректные данные записи.", Edit: true}, err
	}

	switch err := m.ledger.Append(ctx, entry); {
	case errors.Is(err, domain.ErrDuplicate):
		return domain.Reply{
			Text: "❌ <b>Запись не сохранена!</b>\n\n" +
				"Похоже, такая запись была добавлена только что.\n" +
				"Если это действительно новая поездка, попробуйте еще раз через несколько секунд.",
			Edit: true,
		}, err
	case err != nil:
		return domain.Reply{
			Text: "❌ <b>Ошибка при сохранении!</b>\n\n" +
				"Проблемы с доступом к хранилищу.\n" +
				"Попробуйте еще раз через несколько секунд.",
			Edit: true,
		}, err
	}

	m.clearSession(userID)
	return domain.Reply{
		Text: fmt.Sprintf("✅ <b>Запись успешно добавлена!</b>\n\n"+
			"📏 Пробег: <b>%s км</b>\n"+
			"🕐 %s - %s\n\n"+
			"Запись добавлена в журнал.",
			groupedInt(entry.DistanceKm),
			m.clock.ToDisplay(sess.StartTime),
			m.clock.ToDisplay(sess.EndTime)),
		Edit:     true,
		ShowMenu: true,
	}, nil
}

// parseOdometer accepts only a non-negative integer token. Decimals and
// other non-integer input are rejected the same way as negatives.
func parseOdometer(text string) (int, bool) {
	value, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

func cancelKeyboard() [][]domain.Button {
	return [][]domain.Button{domain.Row(domain.Button{Label: "❌ Отмена", Data: BtnCancel})}
}

func trimmed(s string) string { return strings.TrimSpace(s) }

// truncate shortens s to at most n runes, appending an ellipsis marker.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// groupedInt renders n with thousands separators, e.g. 55698 → "55,698".
func groupedInt(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, digit := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
