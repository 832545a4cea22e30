package tui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"

	"github.com/maynagashev/pawnvault/internal/vault"
)

// Константы, используемые при инициализации.
const (
	initKeyCharLimit   = 156
	initNameCharLimit  = 64
	initNotesCharLimit = 1024
	initInputWidth     = 40
)

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// newKeyInput создает поле ввода мастер-ключа со скрытым вводом.
func newKeyInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = initKeyCharLimit
	ti.Width = initInputWidth
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	return ti
}

func newTextInput(placeholder string, limit int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = limit
	ti.Width = initInputWidth
	return ti
}

// newListDelegate настраивает цвета элементов списка.
func newListDelegate() list.DefaultDelegate {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.
		Foreground(lipgloss.Color("252")).
		Background(lipgloss.Color("235"))
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.
		Foreground(lipgloss.Color("245")).
		Background(lipgloss.Color("235"))
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("212")).
		Background(lipgloss.Color("237")).
		BorderLeftForeground(lipgloss.Color("212"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("240")).
		Background(lipgloss.Color("237")).
		BorderLeftForeground(lipgloss.Color("212"))
	return delegate
}

func initVaultList() list.Model {
	l := list.New([]list.Item{}, newListDelegate(), defaultListWidth, defaultListHeight)
	l.Title = "Хранилища"
	l.SetShowHelp(false)
	l.SetShowStatusBar(true)
	// Фильтр списка перехватывает буквенные клавиши, а хранилищ обычно немного
	l.SetFilteringEnabled(false)
	l.Styles.Title = list.DefaultStyles().Title.Bold(true)
	return l
}

// initEntryList создает список записей. Поиск по заметкам выполняет контроллер,
// поэтому встроенный фильтр списка отключен.
func initEntryList() list.Model {
	l := list.New([]list.Item{}, newListDelegate(), defaultListWidth, defaultListHeight)
	l.Title = "Записи"
	l.SetShowHelp(false)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(false)
	l.Styles.Title = list.DefaultStyles().Title.Bold(true)
	return l
}

func initSearchInput() textinput.Model {
	ti := newTextInput("Поиск по заметкам", initNotesCharLimit)
	ti.Prompt = "/ "
	return ti
}

func initSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	return s
}

func initDocStyle() lipgloss.Style {
	return lipgloss.NewStyle().Margin(docStyleMarginVertical, docStyleMarginHorizontal)
}

func initHelpTextMap() map[screenState]string {
	return map[screenState]string{
		vaultListScreen: "(enter: открыть, n: создать, r: переименовать, k: сменить ключ, " +
			"d: удалить, ctrl+r: обновить, q: выход)",
		createVaultScreen: "(tab: следующее поле, enter: создать, esc: назад)",
		renameVaultScreen: "(enter: переименовать, esc: назад)",
		changeKeyScreen:   "(tab: следующее поле, enter: сменить ключ, esc: назад)",
		deleteVaultScreen: "(y: удалить, n/esc: отмена)",
		unlockScreen:      "(enter: открыть, esc: назад)",
		entryListScreen: "(enter: просмотр, a: добавить, e: изменить, d: удалить, /: поиск, " +
			"ctrl+r: перечитать, b: заблокировать, q: выход)",
		entryDetailScreen: "(e: изменить, d: удалить, esc/b: назад)",
		entryAddScreen:    "(tab: следующее поле, enter: сохранить, esc: отмена)",
		entryEditScreen:   "(tab: следующее поле, enter: сохранить, esc: отмена)",
		deleteEntryScreen: "(y: удалить, n/esc: отмена)",
	}
}

// initModel создает начальную модель.
func initModel(ctrl *vault.Controller, debugMode bool) model {
	return model{
		ctrl:        ctrl,
		state:       vaultListScreen,
		debugMode:   debugMode,
		docStyle:    initDocStyle(),
		vaultList:   initVaultList(),
		entryList:   initEntryList(),
		spinner:     initSpinner(),
		searchInput: initSearchInput(),
		helpTextMap: initHelpTextMap(),
	}
}
