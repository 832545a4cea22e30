package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/maynagashev/pawnvault/models"
)

const hiddenSecret = "********"

// selectedEntry возвращает выбранную в списке запись.
func (m *model) selectedEntry() (models.PasswordEntry, bool) {
	item, ok := m.entryList.SelectedItem().(entryItem)
	if !ok {
		return models.PasswordEntry{}, false
	}
	return item.entry, true
}

func (m *model) updateEntryListScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.updateSearch(msg)
	}

	keyMsg, isKey := msg.(tea.KeyMsg)
	if !isKey {
		var cmd tea.Cmd
		m.entryList, cmd = m.entryList.Update(msg)
		return m, cmd
	}

	switch keyMsg.String() {
	case keySearch:
		m.searching = true
		m.searchInput.Focus()
		return m, textinput.Blink
	case keyReload:
		if m.pending {
			return m.setStatusMessage("Операция уже выполняется, подождите")
		}
		return m, m.startOp("Перечитывание записей", refreshEntriesCmd(m.ctrl))
	case keyAdd:
		m.errText = ""
		m.state = entryAddScreen
		return m, m.setForm(newSecretInput(""), newTextInput("Заметки", initNotesCharLimit))
	case keyEdit, keyDelete, keyEnter:
		e, ok := m.selectedEntry()
		if !ok {
			return m.setStatusMessage("Записей нет")
		}
		m.targetEntry = e
		return m, m.openEntryAction(keyMsg.String())
	case keyEsc:
		// Сначала сбрасываем поиск, затем уходим
		if m.searchInput.Value() != "" {
			m.searchInput.Reset()
			m.refreshEntryItems()
			return m, nil
		}
		return m.lockAndLeave()
	case keyBack:
		return m.lockAndLeave()
	case keyQuit:
		if m.pending {
			return m.setStatusMessage("Дождитесь завершения операции")
		}
		m.ctrl.Lock()
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.entryList, cmd = m.entryList.Update(msg)
	return m, cmd
}

// updateSearch обрабатывает ввод строки поиска. Список фильтруется на каждое нажатие.
func (m *model) updateSearch(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyEsc:
			m.searching = false
			m.searchInput.Blur()
			m.searchInput.Reset()
			m.refreshEntryItems()
			return m, nil
		case keyEnter:
			m.searching = false
			m.searchInput.Blur()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	m.refreshEntryItems()
	return m, cmd
}

func (m *model) lockAndLeave() (tea.Model, tea.Cmd) {
	if m.pending {
		return m.setStatusMessage("Дождитесь завершения операции")
	}
	name := m.ctrl.State().Vault.Name
	m.leaveEntries()
	m.errText = ""
	m.desync = false
	// Время последнего открытия изменилось, перечитываем реестр
	return m, tea.Batch(
		m.startOp("Загрузка списка хранилищ", loadVaultsCmd(m.ctrl)),
		m.statusCmd(fmt.Sprintf("Хранилище '%s' заблокировано", name)),
	)
}

// openEntryAction переходит на экран действия над выбранной записью.
func (m *model) openEntryAction(key string) tea.Cmd {
	m.errText = ""
	switch key {
	case keyEnter:
		m.revealSecret = false
		m.state = entryDetailScreen
	case keyEdit:
		m.state = entryEditScreen
		notes := newTextInput("Заметки", initNotesCharLimit)
		notes.SetValue(m.targetEntry.Notes)
		secret := newSecretInput(m.targetEntry.SecretValue)
		secret.Placeholder = "Секрет"
		return m.setForm(secret, notes)
	case keyDelete:
		m.state = deleteEntryScreen
	}
	return nil
}

func (m *model) viewEntryListScreen() string {
	search := ""
	if m.searching || m.searchInput.Value() != "" {
		search = m.searchInput.View() + "\n"
	}
	return search + m.entryList.View()
}

func (m *model) updateEntryDetailScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case keyReveal:
		m.revealSecret = !m.revealSecret
	case keyEdit, keyDelete:
		return m, m.openEntryAction(keyMsg.String())
	case keyEsc, keyBack:
		m.revealSecret = false
		m.state = entryListScreen
	}
	return m, nil
}

func (m *model) viewEntryDetailScreen() string {
	secret := hiddenSecret
	if m.revealSecret {
		secret = m.targetEntry.SecretValue
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Запись") + "\n\n")
	b.WriteString(fmt.Sprintf("ID:      %s\n", m.targetEntry.ID))
	b.WriteString(fmt.Sprintf("Секрет:  %s  (s: показать/скрыть)\n", secret))
	b.WriteString("Заметки:\n")
	b.WriteString(m.targetEntry.Notes + "\n")
	return b.String()
}

// updateEntryFormScreen обслуживает добавление и редактирование записи.
func (m *model) updateEntryFormScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	return m.handleFormInput(msg, entryListScreen, func() (tea.Model, tea.Cmd) {
		secret := m.inputs[0].Value()
		notes := m.inputs[1].Value()
		if m.state == entryAddScreen {
			return m, m.startOp("Добавление записи", addEntryCmd(m.ctrl, notes, secret))
		}
		return m, m.startOp("Сохранение записи", updateEntryCmd(m.ctrl, m.targetEntry.ID, secret, notes))
	})
}

func (m *model) viewEntryFormScreen() string {
	title := "Новая запись"
	if m.state == entryEditScreen {
		title = "Редактирование записи " + shortID(m.targetEntry.ID)
	}
	return m.viewForm(title, "Секрет:", "Заметки:")
}

func (m *model) updateDeleteEntryScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case keyYes:
		if m.pending {
			return m.setStatusMessage("Операция уже выполняется, подождите")
		}
		return m, m.startOp("Удаление записи", deleteEntryCmd(m.ctrl, m.targetEntry.ID))
	case keyNo, keyEsc:
		if !m.pending {
			m.state = entryListScreen
		}
	}
	return m, nil
}

func (m *model) viewDeleteEntryScreen() string {
	return titleStyle.Render("Удаление записи") + "\n\n" +
		fmt.Sprintf("Удалить запись '%s'?\n", entryItem{entry: m.targetEntry}.Title())
}

// newSecretInput создает поле секрета. Пустое значение при добавлении
// означает, что секрет сгенерирует движок.
func newSecretInput(value string) textinput.Model {
	ti := newKeyInput("Секрет (пусто - сгенерировать)")
	ti.SetValue(value)
	return ti
}
