package kdbx

import (
	"errors"
	"log/slog"

	"github.com/tobischo/gokeepasslib/v3"
)

// CustomDataKeyVaultID - ключ для хранения стабильного ID хранилища в KDBX.
const CustomDataKeyVaultID = "PawnVaultID"

// setCustomDataValue обновляет или добавляет значение в слайс CustomData.
// Возвращает обновленный слайс.
func setCustomDataValue(customDataSlice []gokeepasslib.CustomData, key, value string) []gokeepasslib.CustomData {
	for i := range customDataSlice {
		if customDataSlice[i].Key == key {
			customDataSlice[i].Value = value
			slog.Debug("Обновлено значение CustomData", "key", key)
			return customDataSlice
		}
	}
	slog.Debug("Добавлено новое значение CustomData", "key", key)
	return append(customDataSlice, gokeepasslib.CustomData{
		Key:   key,
		Value: value,
	})
}

// lookupCustomDataValue возвращает значение из CustomData по ключу.
func lookupCustomDataValue(customDataSlice []gokeepasslib.CustomData, key string) (string, bool) {
	for _, item := range customDataSlice {
		if item.Key == key {
			return item.Value, true
		}
	}
	return "", false
}

// SaveVaultID сохраняет ID хранилища в метаданных базы KDBX.
func SaveVaultID(db *gokeepasslib.Database, id string) error {
	if db == nil || db.Content == nil || db.Content.Meta == nil {
		return errors.New("база данных, ее содержимое или метаданные не инициализированы")
	}
	meta := db.Content.Meta
	meta.CustomData = setCustomDataValue(meta.CustomData, CustomDataKeyVaultID, id)
	return nil
}

// LoadVaultID извлекает ID хранилища из метаданных базы KDBX.
// Возвращает пустую строку, если ID не записан (файл создан другой программой).
func LoadVaultID(db *gokeepasslib.Database) string {
	if db == nil || db.Content == nil || db.Content.Meta == nil {
		return ""
	}
	id, found := lookupCustomDataValue(db.Content.Meta.CustomData, CustomDataKeyVaultID)
	if !found {
		slog.Debug("ID хранилища не найден в CustomData KDBX")
	}
	return id
}
