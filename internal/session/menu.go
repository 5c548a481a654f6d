package session

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/avoronkov/triplog-bot/internal/domain"
)

// handleUnregistered runs the registration dialogue: any command prompts
// for the full name, and the next text message is taken as the name.
func (m *Machine) handleUnregistered(ctx context.Context, userID int64, ev Event) (domain.Reply, error) {
	if ev.Kind == EventText {
		return m.register(ctx, userID, ev.Text)
	}
	return domain.Reply{
		Text: "👋 Добро пожаловать!\n\n" +
			"Для начала работы необходимо пройти регистрацию.\n" +
			"📝 Введите ваше ФИО (Фамилия Имя Отчество):",
	}, nil
}

// register validates and stores the user's full name.
func (m *Machine) register(ctx context.Context, userID int64, text string) (domain.Reply, error) {
	fullName := strings.TrimSpace(text)
	if utf8.RuneCountInString(fullName) < 3 || len(strings.Fields(fullName)) < 2 {
		return domain.Reply{Text: "❌ Пожалуйста, введите корректное ФИО (минимум Имя Фамилия):"}, nil
	}

	reg, err := m.registry.Register(ctx, userID, fullName)
	if err != nil {
		return storeFailureReply(), err
	}

	m.log.Info("user registered", "user_id", userID, "name", reg.FullName)
	return domain.Reply{
		Text: fmt.Sprintf("✅ <b>Регистрация завершена!</b>\n\n"+
			"👤 %s\n"+
			"🆔 Ваш ID: %d\n\n"+
			"Теперь вы можете пользоваться ботом!", reg.FullName, userID),
		ShowMenu: true,
	}, nil
}

// greet welcomes a registered user and shows the menu.
func (m *Machine) greet(ctx context.Context, userID int64) (domain.Reply, error) {
	reg, err := m.registry.Get(ctx, userID)
	if err != nil {
		return storeFailureReply(), err
	}

	registeredDate := reg.CreatedAt.In(m.clock.Location()).Format("02.01.2006")
	return domain.Reply{
		Text: fmt.Sprintf("👋 Добро пожаловать, <b>%s</b>!\n\nВы зарегистрированы с %s",
			reg.FullName, registeredDate),
		ShowMenu: true,
	}, nil
}

// mainMenuReply renders the action menu; admins get the export entry.
func (m *Machine) mainMenuReply(_ context.Context, userID int64, edit bool) domain.Reply {
	keyboard := [][]domain.Button{
		domain.Row(domain.Button{Label: "🆕 Новая запись", Data: BtnNewEntry}),
		domain.Row(
			domain.Button{Label: "📋 Последние записи", Data: BtnLastEntries},
			domain.Button{Label: "✏️ Редактировать последнюю", Data: BtnEditLast},
		),
		domain.Row(domain.Button{Label: "ℹ️ Помощь", Data: BtnHelp}),
	}
	if m.admins[userID] {
		keyboard = append(keyboard, domain.Row(domain.Button{Label: "👑 Экспорт (Админ)", Data: BtnExport}))
	}

	return domain.Reply{
		Text:     "🚗 <b>Журнал поездок инженера</b>\n\nВыберите действие:",
		Keyboard: keyboard,
		Edit:     edit,
	}
}

// showLastEntries lists the most recent ledger rows, newest first.
func (m *Machine) showLastEntries(ctx context.Context, edit bool) (domain.Reply, error) {
	entries, err := m.ledger.ListRecent(ctx, 5)
	if err != nil {
		return domain.Reply{Text: "❌ Ошибка при получении данных из журнала.", Edit: edit}, err
	}

	var b strings.Builder
	if len(entries) == 0 {
		b.WriteString("📋 <b>Последние записи</b>\n\nЗаписи не найдены.")
	} else {
		fmt.Fprintf(&b, "📋 <b>Последние %d записей</b>\n\n", len(entries))
		for i, e := range entries {
			engineer := e.Engineer
			if engineer == "" {
				engineer = "Не указан"
			}
			fmt.Fprintf(&b, "<b>%d. %s</b>\n", i+1, engineer)
			fmt.Fprintf(&b, "📅 %s | ⏱️ %s-%s\n", e.Date, e.TimeStart, e.TimeEnd)
			fmt.Fprintf(&b, "📏 %d км", e.DistanceKm)
			if e.Project != "" {
				fmt.Fprintf(&b, " | 🏗️ %s", truncate(e.Project, 20))
			}
			if e.Address != "" {
				fmt.Fprintf(&b, " | 📍 %s", truncate(e.Address, 20))
			}
			b.WriteString("\n\n")
		}
	}

	return domain.Reply{
		Text: b.String(),
		Keyboard: [][]domain.Button{
			domain.Row(domain.Button{Label: "🔄 Обновить", Data: BtnLastEntries}),
			domain.Row(domain.Button{Label: "🏠 Главное меню", Data: BtnMainMenu}),
		},
		Edit: edit,
	}, nil
}

// showAdminPanel is gated on the configured admin set.
func (m *Machine) showAdminPanel(ctx context.Context, userID int64, edit bool) (domain.Reply, error) {
	if !m.admins[userID] {
		return domain.Reply{Text: "❌ У вас нет прав для выполнения этой команды."}, nil
	}

	users, err := m.registry.List(ctx)
	if err != nil {
		return domain.Reply{Text: "❌ Ошибка при получении данных.", Edit: edit}, err
	}
	recent, err := m.ledger.ListRecent(ctx, 10)
	if err != nil {
		return domain.Reply{Text: "❌ Ошибка при получении данных.", Edit: edit}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👑 <b>Панель администратора</b>\n\n")
	fmt.Fprintf(&b, "📊 <b>Статистика:</b>\n")
	fmt.Fprintf(&b, "👥 Зарегистрированных пользователей: %d\n", len(users))
	fmt.Fprintf(&b, "📝 Последних записей в журнале: %d\n", len(recent))
	if len(users) > 0 {
		b.WriteString("\n<b>Пользователи:</b>\n")
		for _, u := range users {
			fmt.Fprintf(&b, "• %s (ID: %d)\n", u.FullName, u.UserID)
		}
	}

	return domain.Reply{
		Text: b.String(),
		Keyboard: [][]domain.Button{
			domain.Row(domain.Button{Label: "📋 Последние записи", Data: BtnLastEntries}),
			domain.Row(domain.Button{Label: "🏠 Главное меню", Data: BtnMainMenu}),
		},
		Edit: edit,
	}, nil
}

// helpReply is the static help screen.
func helpReply(edit bool) domain.Reply {
	return domain.Reply{
		Text: "ℹ️ <b>Справка по боту</b>\n\n" +
			"<b>Команды:</b>\n" +
			"/start - Регистрация и главное меню\n" +
			"/new - Создать новую запись поездки\n" +
			"/last - Показать последние записи\n" +
			"/edit_last - Редактировать последнюю запись\n" +
			"/help - Показать эту справку\n\n" +
			"<b>Создание записи:</b>\n" +
			"1. Время начала (сейчас/ручной ввод)\n" +
			"2. Показания одометра начала\n" +
			"3. Время окончания\n" +
			"4. Показания одометра окончания\n" +
			"5. Проект (необязательно)\n" +
			"6. Адрес (необязательно)\n" +
			"7. Комментарий\n" +
			"8. Подтверждение и сохранение\n\n" +
			"<b>Форматы времени:</b>\n" +
			"• <code>сейчас</code> - текущее время\n" +
			"• <code>14:30</code> - время сегодня\n" +
			"• <code>21.09.2024 14:30</code> - полная дата\n\n" +
			"<b>Редактирование:</b>\n" +
			"Можно редактировать проект, адрес и комментарий в течение 15 минут после создания записи.",
		Keyboard: [][]domain.Button{
			domain.Row(domain.Button{Label: "🏠 Главное меню", Data: BtnMainMenu}),
		},
		Edit: edit,
	}
}
