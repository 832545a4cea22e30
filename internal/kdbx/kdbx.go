package kdbx

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	gokeepasslib "github.com/tobischo/gokeepasslib/v3"
)

// ErrDecrypt сигнализирует, что файл не удалось расшифровать переданным паролем.
var ErrDecrypt = errors.New("ошибка дешифрования файла")

// rootGroupName - имя корневой группы, в которую складываются записи.
const rootGroupName = "PawnVault"

// OpenFile открывает и дешифрует KDBX файл по указанному пути и паролю.
// Возвращает объект базы данных или ошибку.
func OpenFile(filePath string, password string) (*gokeepasslib.Database, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла '%s': %w", filePath, err)
	}
	defer file.Close()

	db := gokeepasslib.NewDatabase()
	db.Credentials = gokeepasslib.NewPasswordCredentials(password)

	if err = gokeepasslib.NewDecoder(file).Decode(db); err != nil {
		return nil, fmt.Errorf("%w '%s': %w", ErrDecrypt, filePath, err)
	}

	// Разблокируем защищенные значения (пароли и т.д.)
	if err = db.UnlockProtectedEntries(); err != nil {
		return nil, fmt.Errorf("ошибка разблокировки защищенных полей: %w", err)
	}

	return db, nil
}

// CreateDatabase создает новую пустую базу данных KDBX 4 с указанным паролем.
func CreateDatabase(password string) (*gokeepasslib.Database, error) {
	if password == "" {
		return nil, errors.New("пароль не может быть пустым")
	}

	db := gokeepasslib.NewDatabase(gokeepasslib.WithDatabaseKDBXVersion4())
	db.Credentials = gokeepasslib.NewPasswordCredentials(password)
	if db.Content == nil {
		db.Content = gokeepasslib.NewContent()
	}
	if db.Content.Meta == nil {
		db.Content.Meta = gokeepasslib.NewMetaData()
	}
	db.Content.Root = gokeepasslib.NewRootData()
	rootGroup := gokeepasslib.NewGroup()
	rootGroup.Name = rootGroupName
	db.Content.Root.Groups = []gokeepasslib.Group{rootGroup}

	return db, nil
}

// GetAllEntries рекурсивно обходит все группы и возвращает плоский список всех записей.
func GetAllEntries(db *gokeepasslib.Database) []gokeepasslib.Entry {
	var entries []gokeepasslib.Entry
	if db == nil || db.Content == nil || db.Content.Root == nil {
		return entries
	}
	collectEntries(&entries, db.Content.Root.Groups)
	return entries
}

// collectEntries - вспомогательная рекурсивная функция для сбора записей.
func collectEntries(entries *[]gokeepasslib.Entry, groups []gokeepasslib.Group) {
	for _, group := range groups {
		*entries = append(*entries, group.Entries...)
		collectEntries(entries, group.Groups)
	}
}

// FindEntry ищет запись по UUID во всех группах.
func FindEntry(db *gokeepasslib.Database, uuid gokeepasslib.UUID) *gokeepasslib.Entry {
	if db == nil || db.Content == nil || db.Content.Root == nil {
		return nil
	}
	return findEntryInGroups(db.Content.Root.Groups, uuid)
}

func findEntryInGroups(groups []gokeepasslib.Group, uuid gokeepasslib.UUID) *gokeepasslib.Entry {
	for i := range groups {
		group := &groups[i]
		for j := range group.Entries {
			if group.Entries[j].UUID == uuid {
				return &group.Entries[j]
			}
		}
		if entry := findEntryInGroups(group.Groups, uuid); entry != nil {
			return entry
		}
	}
	return nil
}

// RemoveEntry удаляет запись по UUID. Возвращает false, если запись не найдена.
func RemoveEntry(db *gokeepasslib.Database, uuid gokeepasslib.UUID) bool {
	if db == nil || db.Content == nil || db.Content.Root == nil {
		return false
	}
	return removeEntryFromGroups(db.Content.Root.Groups, uuid)
}

func removeEntryFromGroups(groups []gokeepasslib.Group, uuid gokeepasslib.UUID) bool {
	for i := range groups {
		group := &groups[i]
		for j := range group.Entries {
			if group.Entries[j].UUID == uuid {
				group.Entries = append(group.Entries[:j], group.Entries[j+1:]...)
				return true
			}
		}
		if removeEntryFromGroups(group.Groups, uuid) {
			return true
		}
	}
	return false
}

// AppendEntry добавляет запись в первую группу корня, создавая ее при необходимости.
func AppendEntry(db *gokeepasslib.Database, entry gokeepasslib.Entry) error {
	if db == nil || db.Content == nil {
		return errors.New("база данных не инициализирована (nil)")
	}
	if db.Content.Root == nil {
		db.Content.Root = gokeepasslib.NewRootData()
	}
	if len(db.Content.Root.Groups) == 0 {
		rootGroup := gokeepasslib.NewGroup()
		rootGroup.Name = rootGroupName
		db.Content.Root.Groups = []gokeepasslib.Group{rootGroup}
	}
	group := &db.Content.Root.Groups[0]
	group.Entries = append(group.Entries, entry)
	return nil
}

// ParseEntryID разбирает шестнадцатеричное представление UUID записи.
func ParseEntryID(id string) (gokeepasslib.UUID, bool) {
	var uuid gokeepasslib.UUID
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) != len(uuid) {
		return uuid, false
	}
	copy(uuid[:], raw)
	return uuid, true
}

// EntryID возвращает шестнадцатеричное представление UUID записи.
func EntryID(entry gokeepasslib.Entry) string {
	return hex.EncodeToString(entry.UUID[:])
}

// SaveFile кодирует и атомарно сохраняет базу данных KDBX в указанный файл:
// сначала во временный файл рядом, затем переименованием.
func SaveFile(db *gokeepasslib.Database, filePath string, password string) error {
	if db == nil {
		return errors.New("база данных не инициализирована (nil)")
	}

	// Устанавливаем учетные данные, если их нет (нужны для сохранения)
	if db.Credentials == nil {
		if password == "" {
			return errors.New("пароль не может быть пустым при сохранении")
		}
		db.Credentials = gokeepasslib.NewPasswordCredentials(password)
	}

	// Перед сохранением нужно заблокировать защищенные поля
	if err := db.LockProtectedEntries(); err != nil {
		slog.Warn("Не удалось заблокировать поля перед сохранением", "error", err)
	}
	defer func() {
		if err := db.UnlockProtectedEntries(); err != nil {
			slog.Warn("Не удалось разблокировать поля после сохранения", "error", err)
		}
	}()

	tmp, err := os.CreateTemp(filepath.Dir(filePath), filepath.Base(filePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("ошибка создания/открытия файла '%s' для записи: %w", filePath, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if encodeErr := gokeepasslib.NewEncoder(tmp).Encode(db); encodeErr != nil {
		cleanup()
		return fmt.Errorf("ошибка кодирования и записи БД в файл '%s': %w", filePath, encodeErr)
	}
	if syncErr := tmp.Sync(); syncErr != nil {
		cleanup()
		return fmt.Errorf("ошибка сброса файла '%s' на диск: %w", filePath, syncErr)
	}
	if closeErr := tmp.Close(); closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла '%s': %w", filePath, closeErr)
	}
	if renameErr := os.Rename(tmpPath, filePath); renameErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка замены файла '%s': %w", filePath, renameErr)
	}

	return nil
}
