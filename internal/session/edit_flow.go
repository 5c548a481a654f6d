package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/avoronkov/triplog-bot/internal/domain"
)

var editFieldNames = map[string]string{
	"project": "🏗️ Проект",
	"address": "📍 Адрес",
	"comment": "💬 Комментарий",
}

// startEditLast opens the post-creation correction flow for the user's
// latest entry. Only project, address and comment may change, and only
// while the entry is inside the edit window.
func (m *Machine) startEditLast(ctx context.Context, userID int64, edit bool) (domain.Reply, error) {
	last, err := m.ledger.LastForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Reply{Text: "❌ У вас нет записей для редактирования.", Edit: edit}, nil
		}
		return domain.Reply{Text: "❌ Ошибка при получении данных из журнала.", Edit: edit}, err
	}

	if !m.clock.WithinEditWindow(last.CreatedAt, m.editWindow) {
		return domain.Reply{
			Text: "❌ <b>Время редактирования истекло!</b>\n\n" +
				fmt.Sprintf("Редактировать записи можно только в течение %d минут после создания.",
					int(m.editWindow.Minutes())),
			Edit: edit,
		}, nil
	}

	sess := m.session(userID)
	sess.EditEntry = last
	sess.State = StateEditFieldChoice

	orDash := func(s string) string {
		if s == "" {
			return "(не указан)"
		}
		return s
	}

	return domain.Reply{
		Text: fmt.Sprintf("✏️ <b>Редактирование записи</b>\n\n"+
			"👤 <b>Инженер:</b> %s\n"+
			"📅 <b>Дата:</b> %s\n"+
			"🕐 <b>Время:</b> %s - %s\n"+
			"📏 <b>Пробег:</b> %d км\n"+
			"🏗️ <b>Проект:</b> %s\n"+
			"📍 <b>Адрес:</b> %s\n"+
			"💬 <b>Комментарий:</b> %s\n\n"+
			"Что хотите изменить?",
			last.Engineer, last.Date, last.TimeStart, last.TimeEnd, last.DistanceKm,
			orDash(last.Project), orDash(last.Address), truncate(last.Comment, 50)),
		Keyboard: [][]domain.Button{
			domain.Row(
				domain.Button{Label: "🏗️ Проект", Data: BtnEditProject},
				domain.Button{Label: "📍 Адрес", Data: BtnEditAddress},
			),
			domain.Row(domain.Button{Label: "💬 Комментарий", Data: BtnEditComment}),
			domain.Row(domain.Button{Label: "❌ Отмена", Data: BtnCancel}),
		},
		Edit: edit,
	}, nil
}

// handleEditFieldChoice records which field the user picked.
func (m *Machine) handleEditFieldChoice(sess *Session, data string) (domain.Reply, error) {
	var field string
	switch data {
	case BtnEditProject:
		field = "project"
	case BtnEditAddress:
		field = "address"
	case BtnEditComment:
		field = "comment"
	default:
		return domain.Reply{}, nil
	}

	sess.EditField = field
	sess.State = StateEditNewValue
	return domain.Reply{
		Text: fmt.Sprintf("✏️ <b>Редактирование поля: %s</b>\n\nВведите новое значение:",
			editFieldNames[field]),
		Keyboard: cancelKeyboard(),
		Edit:     true,
	}, nil
}

// applyEdit rewrites the full row keyed by row UID. The position is looked
// up fresh because concurrent appends may have shifted it since the entry
// was loaded; the author check in FindByUID keeps the rewrite scoped to the
// requesting user's own row.
func (m *Machine) applyEdit(ctx context.Context, userID int64, sess *Session, text string) (domain.Reply, error) {
	entry := sess.EditEntry
	newValue := trimmed(text)

	switch sess.EditField {
	case "project":
		entry.Project = newValue
	case "address":
		entry.Address = newValue
	case "comment":
		entry.Comment = newValue
	default:
		m.clearSession(userID)
		return domain.Reply{Text: "❌ Не удалось найти запись для редактирования."}, nil
	}

	if entry.RowUID == "" {
		m.clearSession(userID)
		return domain.Reply{Text: "❌ Не удалось найти запись для редактирования."}, nil
	}

	position, _, err := m.ledger.FindByUID(ctx, entry.RowUID, userID)
	if err != nil {
		m.clearSession(userID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Reply{Text: "❌ Запись не найдена или у вас нет прав на её редактирование."}, nil
		}
		return domain.Reply{Text: "❌ Произошла ошибка при редактировании записи."}, err
	}

	// The engineer column tracks the registry, not the stored row.
	if reg, err := m.registry.Get(ctx, userID); err == nil {
		entry.Engineer = reg.FullName
	}

	if err := m.ledger.Update(ctx, position, entry); err != nil {
		m.clearSession(userID)
		return domain.Reply{Text: "❌ Ошибка при обновлении записи в журнале."}, err
	}

	field := sess.EditField
	m.clearSession(userID)
	return domain.Reply{
		Text: fmt.Sprintf("✅ <b>Запись обновлена!</b>\n\n%s изменен на:\n<code>%s</code>",
			editFieldNames[field], newValue),
	}, nil
}
