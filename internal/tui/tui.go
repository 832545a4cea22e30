// Package tui реализует терминальный интерфейс менеджера паролей
// поверх контроллера хранилищ.
package tui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/maynagashev/pawnvault/internal/vault"
)

const (
	statusMessageTimeout     = 2 * time.Second // Время отображения статусных сообщений
	helpStatusHeightOffset   = 2               // Высота строки помощи и статуса
	docStyleMarginVertical   = 1
	docStyleMarginHorizontal = 2
)

// Init загружает список хранилищ при запуске.
func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.startOp("Загрузка списка хранилищ", loadVaultsCmd(m.ctrl)))
}

// statusCmd устанавливает статусное сообщение и возвращает команду его очистки.
func (m *model) statusCmd(status string) tea.Cmd {
	m.status = status
	return clearStatusCmd(statusMessageTimeout)
}

// setStatusMessage устанавливает статусное сообщение и запускает таймер для его очистки.
func (m *model) setStatusMessage(status string) (tea.Model, tea.Cmd) {
	return m, m.statusCmd(status)
}

// getMainContentView возвращает основное содержимое для текущего состояния.
func (m *model) getMainContentView() string {
	switch m.state {
	case vaultListScreen:
		return m.vaultList.View()
	case createVaultScreen:
		return m.viewCreateVaultScreen()
	case renameVaultScreen:
		return m.viewRenameVaultScreen()
	case changeKeyScreen:
		return m.viewChangeKeyScreen()
	case deleteVaultScreen:
		return m.viewDeleteVaultScreen()
	case unlockScreen:
		return m.viewUnlockScreen()
	case entryListScreen:
		return m.viewEntryListScreen()
	case entryDetailScreen:
		return m.viewEntryDetailScreen()
	case entryAddScreen, entryEditScreen:
		return m.viewEntryFormScreen()
	case deleteEntryScreen:
		return m.viewDeleteEntryScreen()
	default:
		return "Неизвестное состояние!"
	}
}

// getDebugInfoString собирает отладочную информацию. Ключи сюда не попадают.
func (m *model) getDebugInfoString() string {
	status := m.ctrl.State()
	var debugInfo strings.Builder
	debugInfo.WriteString(fmt.Sprintf(" [State: %s]\n", m.state.String()))
	debugInfo.WriteString(fmt.Sprintf(" [Vault: %s (%s)]\n", status.Vault.Name, status.State))
	debugInfo.WriteString(fmt.Sprintf(" [Stale: %t, Mutating: %t, Registry: %t]\n",
		status.Stale, status.Mutating, status.Registry))
	debugInfo.WriteString(fmt.Sprintf(" [Pending: %t %s]\n", m.pending, m.pendingOp))
	return debugInfo.String()
}

// View отрисовывает пользовательский интерфейс.
func (m *model) View() string {
	mainContent := m.getMainContentView()
	help, ok := m.helpTextMap[m.state]
	if !ok {
		help = fmt.Sprintf("State: %s", m.state.String())
	}

	// --- Подвал: ход операции, ошибка, статус, отладка --- //
	var footer strings.Builder
	if m.pending {
		footer.WriteString("\n" + m.spinner.View() + " " + m.pendingOp + "...")
	}
	if m.errText != "" {
		footer.WriteString("\n" + errorStyle.Render(m.errText))
	}
	if m.status != "" {
		footer.WriteString("\n" + statusStyle.Render(m.status))
	}
	if m.debugMode {
		footer.WriteString("\n\n---\nОтладка:\n")
		footer.WriteString(m.getDebugInfoString())
	}

	styledContent := m.docStyle.Render(mainContent)
	return fmt.Sprintf("%s\n%s%s", styledContent, help, footer.String())
}

// Start запускает TUI приложение и блокируется до выхода из него.
// При выходе открытая сессия блокируется.
func Start(ctrl *vault.Controller, debugMode bool) error {
	m := initModel(ctrl, debugMode)
	defer ctrl.Lock()

	slog.Info("Запуск TUI", "debug", debugMode)
	if _, err := tea.NewProgram(&m, tea.WithAltScreen()).Run(); err != nil {
		slog.Error("Ошибка при запуске TUI", "error", err)
		return fmt.Errorf("ошибка TUI: %w", err)
	}
	slog.Info("TUI завершен")
	return nil
}
