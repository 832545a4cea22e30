package models

import "strings"

// PasswordEntry представляет расшифрованную запись хранилища.
// ID назначается бэкендом и не меняется при редактировании.
type PasswordEntry struct {
	ID          string `json:"id"`
	SecretValue string `json:"-"` // Секрет не сериализуем
	Notes       string `json:"notes"`
}

// MatchesNotes сообщает, содержит ли поле Notes подстроку term без учета регистра.
// Пустая подстрока совпадает с любой записью.
func (e PasswordEntry) MatchesNotes(term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Notes), strings.ToLower(term))
}
