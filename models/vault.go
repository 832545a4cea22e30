package models

import "time"

// Vault представляет запись реестра хранилищ.
// Name используется бэкендом как адрес хранилища во всех операциях,
// ID остается неизменным при переименовании.
type Vault struct {
	ID             string    `json:"id"`               // Стабильный идентификатор (UUID)
	Name           string    `json:"name"`             // Имя, выбранное пользователем
	CreatedAt      time.Time `json:"created_at"`       // Время создания хранилища
	LastAccessedAt time.Time `json:"last_accessed_at"` // Время последнего успешного открытия
}
