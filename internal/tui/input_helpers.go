package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// setForm заменяет поля текущей формы и ставит фокус на первое.
func (m *model) setForm(inputs ...textinput.Model) tea.Cmd {
	m.inputs = inputs
	m.focusIndex = 0
	for i := range m.inputs {
		m.inputs[i].Blur()
	}
	if len(m.inputs) > 0 {
		m.inputs[0].Focus()
	}
	return textinput.Blink
}

// clearForm очищает поля, чтобы введенные ключи не оставались в модели.
func (m *model) clearForm() {
	for i := range m.inputs {
		m.inputs[i].Reset()
	}
	m.inputs = nil
	m.focusIndex = 0
}

// moveFocus переводит фокус на delta полей вперед или назад по кругу.
func (m *model) moveFocus(delta int) tea.Cmd {
	n := len(m.inputs)
	if n == 0 {
		return nil
	}
	m.inputs[m.focusIndex].Blur()
	m.focusIndex = (m.focusIndex + delta + n) % n
	m.inputs[m.focusIndex].Focus()
	return textinput.Blink
}

// handleFormInput обрабатывает ввод в полях формы: Tab и Shift+Tab переключают
// поле, Enter переходит к следующему полю, а на последнем вызывает submit.
// Esc очищает форму и возвращает на экран back.
func (m *model) handleFormInput(
	msg tea.Msg,
	back screenState,
	submit func() (tea.Model, tea.Cmd),
) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyEsc:
			m.clearForm()
			m.errText = ""
			m.state = back
			return m, tea.ClearScreen
		case keyTab:
			return m, m.moveFocus(1)
		case keyShiftTab:
			return m, m.moveFocus(-1)
		case keyEnter:
			if m.focusIndex < len(m.inputs)-1 {
				return m, m.moveFocus(1)
			}
			if m.pending {
				return m.setStatusMessage("Операция уже выполняется, подождите")
			}
			return submit()
		}
	}

	if len(m.inputs) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focusIndex], cmd = m.inputs[m.focusIndex].Update(msg)
	return m, cmd
}

// viewForm отрисовывает поля формы под заголовком.
func (m *model) viewForm(title string, labels ...string) string {
	s := titleStyle.Render(title) + "\n\n"
	for i := range m.inputs {
		if i < len(labels) {
			s += labels[i] + "\n"
		}
		s += m.inputs[i].View() + "\n\n"
	}
	return s
}
