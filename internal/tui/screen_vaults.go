package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/maynagashev/pawnvault/models"
)

// selectedVault возвращает выбранное в списке хранилище.
func (m *model) selectedVault() (models.Vault, bool) {
	item, ok := m.vaultList.SelectedItem().(vaultItem)
	if !ok {
		return models.Vault{}, false
	}
	return item.vault, true
}

func (m *model) updateVaultListScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, isKey := msg.(tea.KeyMsg)
	if !isKey {
		var cmd tea.Cmd
		m.vaultList, cmd = m.vaultList.Update(msg)
		return m, cmd
	}

	switch keyMsg.String() {
	case keyQuit:
		return m, tea.Quit
	case keyReload:
		if m.pending {
			return m.setStatusMessage("Операция уже выполняется, подождите")
		}
		return m, m.startOp("Загрузка списка хранилищ", loadVaultsCmd(m.ctrl))
	case keyNew:
		m.errText = ""
		m.state = createVaultScreen
		return m, m.setForm(
			newTextInput("Имя хранилища", initNameCharLimit),
			newKeyInput("Мастер-ключ"),
			newKeyInput("Повторите мастер-ключ"),
		)
	case keyEnter, keyRename, keyChange, keyDelete:
		v, ok := m.selectedVault()
		if !ok {
			return m.setStatusMessage("Хранилищ пока нет, создайте новое (n)")
		}
		m.errText = ""
		m.target = v
		return m, m.openVaultAction(keyMsg.String())
	}

	var cmd tea.Cmd
	m.vaultList, cmd = m.vaultList.Update(msg)
	return m, cmd
}

// openVaultAction переходит на экран действия над выбранным хранилищем.
func (m *model) openVaultAction(key string) tea.Cmd {
	switch key {
	case keyEnter:
		m.state = unlockScreen
		return m.setForm(newKeyInput("Мастер-ключ"))
	case keyRename:
		m.state = renameVaultScreen
		name := newTextInput("Новое имя", initNameCharLimit)
		name.SetValue(m.target.Name)
		return m.setForm(name)
	case keyChange:
		m.state = changeKeyScreen
		return m.setForm(
			newKeyInput("Текущий мастер-ключ"),
			newKeyInput("Новый мастер-ключ"),
			newKeyInput("Повторите новый мастер-ключ"),
		)
	case keyDelete:
		m.state = deleteVaultScreen
	}
	return nil
}

func (m *model) updateCreateVaultScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	return m.handleFormInput(msg, vaultListScreen, func() (tea.Model, tea.Cmd) {
		name := strings.TrimSpace(m.inputs[0].Value())
		key := takeKey(&m.inputs[1])
		confirm := takeKey(&m.inputs[2])
		return m, m.startOp("Создание хранилища", createVaultCmd(m.ctrl, name, key, confirm))
	})
}

func (m *model) viewCreateVaultScreen() string {
	return m.viewForm("Новое хранилище", "Имя:", "Мастер-ключ:", "Подтверждение:")
}

func (m *model) updateRenameVaultScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	return m.handleFormInput(msg, vaultListScreen, func() (tea.Model, tea.Cmd) {
		newName := strings.TrimSpace(m.inputs[0].Value())
		return m, m.startOp("Переименование", renameVaultCmd(m.ctrl, m.target.Name, newName))
	})
}

func (m *model) viewRenameVaultScreen() string {
	return m.viewForm(fmt.Sprintf("Переименование хранилища '%s'", m.target.Name), "Новое имя:")
}

func (m *model) updateChangeKeyScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	return m.handleFormInput(msg, vaultListScreen, func() (tea.Model, tea.Cmd) {
		oldKey := takeKey(&m.inputs[0])
		newKey := takeKey(&m.inputs[1])
		confirm := takeKey(&m.inputs[2])
		// После ошибки ключи вводятся заново с первого поля
		m.moveFocus(-m.focusIndex)
		return m, m.startOp("Смена мастер-ключа", changeKeyCmd(m.ctrl, m.target.Name, oldKey, newKey, confirm))
	})
}

func (m *model) viewChangeKeyScreen() string {
	return m.viewForm(
		fmt.Sprintf("Смена мастер-ключа хранилища '%s'", m.target.Name),
		"Текущий ключ:", "Новый ключ:", "Подтверждение:",
	)
}

func (m *model) updateDeleteVaultScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case keyYes:
		if m.pending {
			return m.setStatusMessage("Операция уже выполняется, подождите")
		}
		return m, m.startOp("Удаление хранилища", deleteVaultCmd(m.ctrl, m.target.Name))
	case keyNo, keyEsc:
		if !m.pending {
			m.state = vaultListScreen
		}
	}
	return m, nil
}

func (m *model) viewDeleteVaultScreen() string {
	return titleStyle.Render("Удаление хранилища") + "\n\n" +
		fmt.Sprintf("Удалить хранилище '%s' вместе со всеми записями?\n", m.target.Name) +
		"Это действие нельзя отменить.\n"
}

func (m *model) updateUnlockScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	return m.handleFormInput(msg, vaultListScreen, func() (tea.Model, tea.Cmd) {
		key := takeKey(&m.inputs[0])
		return m, m.startOp("Открытие хранилища", unlockCmd(m.ctrl, m.target.Name, key))
	})
}

func (m *model) viewUnlockScreen() string {
	return m.viewForm(fmt.Sprintf("Открытие хранилища '%s'", m.target.Name), "Мастер-ключ:")
}
