package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"

	"github.com/maynagashev/pawnvault/internal/vault"
	"github.com/maynagashev/pawnvault/models"
)

// Состояния (экраны) приложения.
type screenState int

const (
	vaultListScreen   screenState = iota // Список хранилищ
	createVaultScreen                    // Создание хранилища
	renameVaultScreen                    // Переименование хранилища
	changeKeyScreen                      // Смена мастер-ключа
	deleteVaultScreen                    // Подтверждение удаления хранилища
	unlockScreen                         // Ввод мастер-ключа
	entryListScreen                      // Записи открытого хранилища
	entryDetailScreen                    // Просмотр записи
	entryAddScreen                       // Добавление записи
	entryEditScreen                      // Редактирование записи
	deleteEntryScreen                    // Подтверждение удаления записи
)

func (s screenState) String() string {
	switch s {
	case vaultListScreen:
		return "vaultListScreen"
	case createVaultScreen:
		return "createVaultScreen"
	case renameVaultScreen:
		return "renameVaultScreen"
	case changeKeyScreen:
		return "changeKeyScreen"
	case deleteVaultScreen:
		return "deleteVaultScreen"
	case unlockScreen:
		return "unlockScreen"
	case entryListScreen:
		return "entryListScreen"
	case entryDetailScreen:
		return "entryDetailScreen"
	case entryAddScreen:
		return "entryAddScreen"
	case entryEditScreen:
		return "entryEditScreen"
	case deleteEntryScreen:
		return "deleteEntryScreen"
	default:
		return fmt.Sprintf("unknownScreen(%d)", s)
	}
}

// Клавиши.
const (
	keyEnter    = "enter"
	keyQuit     = "q"
	keyBack     = "b"
	keyEsc      = "esc"
	keyTab      = "tab"
	keyShiftTab = "shift+tab"
	keyAdd      = "a"
	keyEdit     = "e"
	keyDelete   = "d"
	keyNew      = "n"
	keyRename   = "r"
	keyChange   = "k"
	keySearch   = "/"
	keyReveal   = "s"
	keyYes      = "y"
	keyNo       = "n"
	keyReload   = "ctrl+r"
	keyCtrlC    = "ctrl+c"
)

// vaultItem - элемент списка хранилищ.
type vaultItem struct {
	vault models.Vault
}

func (i vaultItem) Title() string { return i.vault.Name }

func (i vaultItem) Description() string {
	if i.vault.LastAccessedAt.IsZero() {
		return "Создано " + i.vault.CreatedAt.Local().Format(timeLayout)
	}
	return "Открыто " + i.vault.LastAccessedAt.Local().Format(timeLayout)
}

func (i vaultItem) FilterValue() string { return i.vault.Name }

// entryItem - элемент списка записей. Секрет в списке не показывается.
type entryItem struct {
	entry models.PasswordEntry
}

func (i entryItem) Title() string {
	notes := strings.TrimSpace(i.entry.Notes)
	if notes == "" {
		return "(без заметок)"
	}
	if line, _, found := strings.Cut(notes, "\n"); found {
		return line + " ..."
	}
	return notes
}

func (i entryItem) Description() string {
	return "ID: " + shortID(i.entry.ID)
}

func (i entryItem) FilterValue() string { return i.entry.Notes }

// Результаты асинхронных команд.

// vaultsLoadedMsg - список хранилищ перечитан.
type vaultsLoadedMsg struct {
	vaults []models.Vault
	err    error
}

// vaultChangedMsg - завершилось изменение реестра.
type vaultChangedMsg struct {
	op     string
	status string
	err    error
}

// unlockedMsg - завершилась попытка открыть хранилище.
type unlockedMsg struct {
	name string
	err  error
}

// entriesChangedMsg - завершилось изменение записей или их перечитывание.
type entriesChangedMsg struct {
	op     string
	status string
	err    error
}

// clearStatusMsg - пора убрать статусное сообщение.
type clearStatusMsg struct{}

// model хранит состояние интерфейса. Данные хранилищ и записей живут
// в контроллере, модель держит только их отображение.
type model struct {
	ctrl      *vault.Controller
	state     screenState
	debugMode bool
	docStyle  lipgloss.Style

	vaultList list.Model
	entryList list.Model
	spinner   spinner.Model

	// Поля текущей формы и индекс активного поля.
	inputs     []textinput.Model
	focusIndex int

	searchInput textinput.Model
	searching   bool

	// Выбранные хранилище и запись, над которыми выполняется действие.
	target       models.Vault
	targetEntry  models.PasswordEntry
	revealSecret bool // Показывать секрет на экране просмотра

	pending   bool   // Ожидается ответ на операцию
	pendingOp string // Что именно выполняется, для статуса

	status  string // Временное сообщение
	errText string // Ошибка последней операции
	desync  bool   // Последняя ошибка требует перечитать записи

	helpTextMap map[screenState]string
}
