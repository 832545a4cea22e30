package tui

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/maynagashev/pawnvault/internal/vault"
	"github.com/maynagashev/pawnvault/models"
)

// Update обрабатывает входящие сообщения.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	// == Глобальные сообщения (не зависят от экрана) ==
	case tea.WindowSizeMsg:
		h, v := m.docStyle.GetFrameSize()
		listWidth := msg.Width - h
		listHeight := msg.Height - v - helpStatusHeightOffset

		m.vaultList.SetSize(listWidth, listHeight)
		// Под списком записей остается строка поиска
		m.entryList.SetSize(listWidth, listHeight-1)
		m.searchInput.Width = listWidth - inputOffset
		for i := range m.inputs {
			m.inputs[i].Width = listWidth - inputOffset
		}
		return m, nil

	case spinner.TickMsg:
		// Когда операция завершена, перестаем крутить индикатор
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case vaultsLoadedMsg:
		return m.handleVaultsLoaded(msg)

	case vaultChangedMsg:
		return m.handleVaultChanged(msg)

	case unlockedMsg:
		return m.handleUnlocked(msg)

	case entriesChangedMsg:
		return m.handleEntriesChanged(msg)

	case clearStatusMsg:
		m.status = ""
		return m, nil

	case tea.KeyMsg:
		if msg.String() == keyCtrlC {
			m.ctrl.Lock()
			return m, tea.Quit
		}
	}

	// == Обработка в зависимости от экрана ==
	switch m.state {
	case vaultListScreen:
		return m.updateVaultListScreen(msg)
	case createVaultScreen:
		return m.updateCreateVaultScreen(msg)
	case renameVaultScreen:
		return m.updateRenameVaultScreen(msg)
	case changeKeyScreen:
		return m.updateChangeKeyScreen(msg)
	case deleteVaultScreen:
		return m.updateDeleteVaultScreen(msg)
	case unlockScreen:
		return m.updateUnlockScreen(msg)
	case entryListScreen:
		return m.updateEntryListScreen(msg)
	case entryDetailScreen:
		return m.updateEntryDetailScreen(msg)
	case entryAddScreen, entryEditScreen:
		return m.updateEntryFormScreen(msg)
	case deleteEntryScreen:
		return m.updateDeleteEntryScreen(msg)
	default:
		slog.Warn("Неизвестный экран", "state", m.state.String())
		return m, nil
	}
}

// startOp помечает операцию как выполняющуюся и запускает ее вместе с индикатором.
func (m *model) startOp(label string, cmd tea.Cmd) tea.Cmd {
	m.pending = true
	m.pendingOp = label
	m.errText = ""
	m.desync = false
	return tea.Batch(cmd, m.spinner.Tick)
}

func (m *model) finishOp() {
	m.pending = false
	m.pendingOp = ""
}

// showError показывает ошибку операции. Busy выводится как обычный статус.
func (m *model) showError(err error) tea.Cmd {
	text, soft := describeError(err)
	if soft {
		_, cmd := m.setStatusMessage(text)
		return cmd
	}
	m.errText = text
	m.desync = errors.Is(err, vault.ErrDesync)
	return nil
}

func (m *model) handleVaultsLoaded(msg vaultsLoadedMsg) (tea.Model, tea.Cmd) {
	m.finishOp()
	m.setVaultItems(m.ctrl.Vaults())
	if msg.err != nil {
		return m, m.showError(msg.err)
	}
	return m, nil
}

func (m *model) handleVaultChanged(msg vaultChangedMsg) (tea.Model, tea.Cmd) {
	m.finishOp()
	m.setVaultItems(m.ctrl.Vaults())
	if msg.err != nil {
		slog.Debug("Изменение хранилища не выполнено", "op", msg.op, "error", msg.err)
		if msg.op == vault.OpDeleteVault {
			m.state = vaultListScreen
		}
		return m, m.showError(msg.err)
	}
	m.clearForm()
	m.state = vaultListScreen
	return m.setStatusMessage(msg.status)
}

func (m *model) handleUnlocked(msg unlockedMsg) (tea.Model, tea.Cmd) {
	m.finishOp()
	if m.state != unlockScreen {
		// Пользователь ушел с экрана, пока шла проверка ключа
		if msg.err == nil {
			m.ctrl.Lock()
		}
		return m, nil
	}
	if msg.err != nil {
		return m, m.showError(msg.err)
	}

	m.clearForm()
	m.searchInput.Reset()
	m.searching = false
	m.state = entryListScreen
	m.refreshEntryItems()
	return m.setStatusMessage(fmt.Sprintf("Хранилище '%s' открыто", msg.name))
}

func (m *model) handleEntriesChanged(msg entriesChangedMsg) (tea.Model, tea.Cmd) {
	m.finishOp()
	if !m.onEntryScreen() {
		// Хранилище уже заблокировано, результат не нужен
		return m, nil
	}
	m.refreshEntryItems()

	if msg.err == nil {
		m.clearForm()
		m.desync = false
		m.state = entryListScreen
		return m.setStatusMessage(msg.status)
	}

	slog.Debug("Операция с записями не выполнена", "op", msg.op, "error", msg.err)
	switch {
	case errors.Is(msg.err, vault.ErrDesync):
		// Изменение применено, форма больше не нужна
		m.clearForm()
		m.state = entryListScreen
	case errors.Is(msg.err, vault.ErrInvalidState):
		m.leaveEntries()
	case msg.op == vault.OpDeleteEntry:
		m.state = entryListScreen
	}
	return m, m.showError(msg.err)
}

func (m *model) onEntryScreen() bool {
	switch m.state {
	case entryListScreen, entryDetailScreen, entryAddScreen, entryEditScreen, deleteEntryScreen:
		return true
	default:
		return false
	}
}

func (m *model) setVaultItems(vaults []models.Vault) {
	items := make([]list.Item, len(vaults))
	for i, v := range vaults {
		items[i] = vaultItem{vault: v}
	}
	m.vaultList.SetItems(items)
	m.vaultList.Title = fmt.Sprintf("Хранилища (%d)", len(vaults))
}

// refreshEntryItems заново строит список записей с учетом строки поиска.
func (m *model) refreshEntryItems() {
	entries, err := m.ctrl.SearchEntries(m.searchInput.Value())
	if err != nil {
		entries = nil
	}
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = entryItem{entry: e}
	}
	m.entryList.SetItems(items)

	status := m.ctrl.State()
	title := fmt.Sprintf("Записи в '%s' (%d)", status.Vault.Name, len(entries))
	if status.Stale {
		title += " [не синхронизировано]"
	}
	m.entryList.Title = title
}

// leaveEntries блокирует хранилище и возвращает к списку хранилищ.
func (m *model) leaveEntries() {
	m.ctrl.Lock()
	m.clearForm()
	m.entryList.SetItems(nil)
	m.searchInput.Reset()
	m.searching = false
	m.targetEntry = models.PasswordEntry{}
	m.revealSecret = false
	m.state = vaultListScreen
	m.setVaultItems(m.ctrl.Vaults())
}
