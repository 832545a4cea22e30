package tui

import (
	"errors"

	"github.com/charmbracelet/bubbles/textinput"

	"github.com/maynagashev/pawnvault/internal/vault"
)

const (
	defaultListWidth  = 80
	defaultListHeight = 24
	inputOffset       = 4 // Отступ поля ввода от края окна
	shortIDLength     = 8
	timeLayout        = "02.01.2006 15:04"
)

func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

// takeKey забирает значение поля ключа и очищает поле.
func takeKey(ti *textinput.Model) []byte {
	key := []byte(ti.Value())
	ti.Reset()
	return key
}

// wipe затирает копии ключей после вызова.
func wipe(keys ...[]byte) {
	for _, k := range keys {
		clear(k)
	}
}

// describeError переводит ошибку операции в текст для пользователя.
// soft означает, что ошибка не требует внимания и показывается как статус.
func describeError(err error) (string, bool) {
	var desync *vault.DesyncError
	switch {
	case errors.Is(err, vault.ErrBusy):
		return "Операция уже выполняется, подождите", true
	case errors.As(err, &desync):
		return "Изменение сохранено, но записи не перечитаны: " +
			desync.Err.Error() + ". Нажмите ctrl+r", false
	case errors.Is(err, vault.ErrInvalidState):
		return "Хранилище заблокировано, откройте его заново", false
	default:
		return "Ошибка: " + err.Error(), false
	}
}
