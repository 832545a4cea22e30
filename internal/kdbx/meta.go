package kdbx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// vaultMeta - содержимое файла-спутника <name>.meta.
// Хранится открыто, чтобы список хранилищ строился без мастер-ключа.
type vaultMeta struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

func newVaultMeta(now time.Time) vaultMeta {
	return vaultMeta{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastAccessed: now,
	}
}

// readMeta читает файл метаданных. Возвращает os.ErrNotExist, если его нет.
func readMeta(path string) (vaultMeta, error) {
	var meta vaultMeta
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err = json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("ошибка разбора метаданных '%s': %w", path, err)
	}
	if _, err = uuid.Parse(meta.ID); err != nil {
		return meta, fmt.Errorf("некорректный ID в метаданных '%s': %w", path, err)
	}
	return meta, nil
}

// writeMeta атомарно записывает файл метаданных.
func writeMeta(path string, meta vaultMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка кодирования метаданных: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("ошибка создания файла метаданных '%s': %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи метаданных '%s': %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла метаданных '%s': %w", path, err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка замены файла метаданных '%s': %w", path, err)
	}
	return nil
}

// loadOrRebuildMeta читает метаданные хранилища, а если файла нет или он поврежден,
// восстанавливает их по времени модификации файла хранилища и сохраняет.
func loadOrRebuildMeta(metaPath, vaultPath string) (vaultMeta, error) {
	meta, err := readMeta(metaPath)
	if err == nil {
		return meta, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		// ID поврежденного файла восстановится из KDBX при следующем открытии
		slog.Warn("Метаданные хранилища повреждены, восстанавливаем", "path", metaPath, "error", err)
	}

	info, statErr := os.Stat(vaultPath)
	if statErr != nil {
		return meta, statErr
	}
	meta = newVaultMeta(info.ModTime().UTC())
	if writeErr := writeMeta(metaPath, meta); writeErr != nil {
		return meta, writeErr
	}
	return meta, nil
}
