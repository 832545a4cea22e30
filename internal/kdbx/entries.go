package kdbx

import (
	"strings"
	"time"

	"github.com/tobischo/gokeepasslib/v3"
	w "github.com/tobischo/gokeepasslib/v3/wrappers"

	"github.com/maynagashev/pawnvault/models"
)

// Имена полей записи KDBX.
const (
	fieldNameTitle    = "Title"
	fieldNamePassword = "Password"
	fieldNameNotes    = "Notes"
)

// titleMaxLen ограничивает заголовок, который видят другие KeePass-клиенты.
const titleMaxLen = 64

// ToPasswordEntry преобразует запись KDBX в запись хранилища.
func ToPasswordEntry(entry gokeepasslib.Entry) models.PasswordEntry {
	return models.PasswordEntry{
		ID:          EntryID(entry),
		SecretValue: entry.GetContent(fieldNamePassword),
		Notes:       entry.GetContent(fieldNameNotes),
	}
}

// NewEntry создает запись KDBX с секретом и заметками.
func NewEntry(secret, notes string) gokeepasslib.Entry {
	entry := gokeepasslib.NewEntry()
	applyEntryValues(&entry, secret, notes)
	return entry
}

// UpdateEntry заменяет секрет и заметки существующей записи.
func UpdateEntry(entry *gokeepasslib.Entry, secret, notes string) {
	applyEntryValues(entry, secret, notes)
	modTimeWrapper := w.TimeWrapper{Time: time.Now().UTC()}
	entry.Times.LastModificationTime = &modTimeWrapper
}

func applyEntryValues(entry *gokeepasslib.Entry, secret, notes string) {
	setEntryValue(entry, fieldNameTitle, entryTitle(notes), false)
	setEntryValue(entry, fieldNamePassword, secret, true)
	setEntryValue(entry, fieldNameNotes, notes, false)
}

// setEntryValue обновляет или добавляет значение поля записи.
func setEntryValue(entry *gokeepasslib.Entry, key, value string, protected bool) {
	for i := range entry.Values {
		if entry.Values[i].Key == key {
			entry.Values[i].Value.Content = value
			entry.Values[i].Value.Protected = w.NewBoolWrapper(protected)
			return
		}
	}
	entry.Values = append(entry.Values, gokeepasslib.ValueData{
		Key:   key,
		Value: gokeepasslib.V{Content: value, Protected: w.NewBoolWrapper(protected)},
	})
}

// entryTitle берет первую строку заметок как заголовок записи.
func entryTitle(notes string) string {
	title, _, _ := strings.Cut(notes, "\n")
	title = strings.TrimSpace(title)
	if len([]rune(title)) > titleMaxLen {
		title = string([]rune(title)[:titleMaxLen])
	}
	return title
}
