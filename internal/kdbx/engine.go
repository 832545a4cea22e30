package kdbx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/tobischo/gokeepasslib/v3"

	"github.com/maynagashev/pawnvault/internal/gateway"
	"github.com/maynagashev/pawnvault/models"
)

// Расширения файлов в каталоге хранилищ.
const (
	vaultExt = ".kdbx"
	metaExt  = ".meta"
	lockExt  = ".lock"
	dirPerm  = 0o700
)

// Engine - локальный движок хранилищ: один KDBX файл на хранилище
// плюс файл метаданных и файл блокировки рядом с ним.
type Engine struct {
	dir string
	mu  sync.Mutex // Сериализует операции внутри процесса
	now func() time.Time
}

var _ gateway.Gateway = (*Engine)(nil)

// NewEngine создает движок, работающий в каталоге dir. Каталог создается при необходимости.
func NewEngine(dir string) (*Engine, error) {
	if dir == "" {
		return nil, errors.New("каталог хранилищ не может быть пустым")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога хранилищ '%s': %w", dir, err)
	}
	return &Engine{dir: dir, now: time.Now}, nil
}

// Dir возвращает каталог хранилищ.
func (e *Engine) Dir() string {
	return e.dir
}

func (e *Engine) vaultPath(name string) string { return filepath.Join(e.dir, name+vaultExt) }
func (e *Engine) metaPath(name string) string  { return filepath.Join(e.dir, name+metaExt) }
func (e *Engine) lockPath(name string) string  { return e.vaultPath(name) + lockExt }

// ListVaults возвращает хранилища в порядке создания.
func (e *Engine) ListVaults(ctx context.Context) ([]models.Vault, error) {
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	dirEntries, err := os.ReadDir(e.dir)
	if err != nil {
		slog.Error("Ошибка чтения каталога хранилищ", "dir", e.dir, "error", err)
		return nil, gateway.Errorf(gateway.CodeIO, "ошибка чтения каталога хранилищ")
	}

	vaults := make([]models.Vault, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		fileName := dirEntry.Name()
		if dirEntry.IsDir() || !strings.HasSuffix(fileName, vaultExt) {
			continue
		}
		name := strings.TrimSuffix(fileName, vaultExt)
		meta, metaErr := loadOrRebuildMeta(e.metaPath(name), e.vaultPath(name))
		if metaErr != nil {
			slog.Warn("Пропускаем хранилище с нечитаемыми метаданными", "name", name, "error", metaErr)
			continue
		}
		vaults = append(vaults, toVault(name, meta))
	}

	// По возрастанию времени создания: новое хранилище оказывается в конце,
	// как и в кэше реестра после CreateVault.
	sort.SliceStable(vaults, func(i, j int) bool {
		if vaults[i].CreatedAt.Equal(vaults[j].CreatedAt) {
			return vaults[i].Name < vaults[j].Name
		}
		return vaults[i].CreatedAt.Before(vaults[j].CreatedAt)
	})
	return vaults, nil
}

// CreateVault создает пустое хранилище.
func (e *Engine) CreateVault(ctx context.Context, args gateway.CreateVaultArgs) (models.Vault, error) {
	if err := ctx.Err(); err != nil {
		return models.Vault{}, canceled(err)
	}
	name := strings.TrimSpace(args.Name)
	if err := validateName(name); err != nil {
		return models.Vault{}, err
	}
	if err := validateMasterKey(args.MasterKey, args.ConfirmMasterKey); err != nil {
		return models.Vault{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.exists(name) {
		return models.Vault{}, gateway.Errorf(gateway.CodeAlreadyExists, "хранилище '%s' уже существует", name)
	}

	meta := newVaultMeta(e.now().UTC())
	err := e.withLock(name, func() error {
		db, err := CreateDatabase(string(args.MasterKey))
		if err != nil {
			return err
		}
		if err = SaveVaultID(db, meta.ID); err != nil {
			return err
		}
		if err = SaveFile(db, e.vaultPath(name), string(args.MasterKey)); err != nil {
			return err
		}
		if err = writeMeta(e.metaPath(name), meta); err != nil {
			_ = os.Remove(e.vaultPath(name))
			return err
		}
		return nil
	})
	if err != nil {
		return models.Vault{}, ioError("ошибка создания хранилища", name, err)
	}

	slog.Info("Хранилище создано", "name", name, "id", meta.ID)
	return toVault(name, meta), nil
}

// RenameVault переименовывает файлы хранилища, сохраняя ID и время создания.
func (e *Engine) RenameVault(ctx context.Context, args gateway.RenameVaultArgs) (models.Vault, error) {
	if err := ctx.Err(); err != nil {
		return models.Vault{}, canceled(err)
	}
	newName := strings.TrimSpace(args.NewName)
	if err := validateName(newName); err != nil {
		return models.Vault{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.exists(args.Name) {
		return models.Vault{}, notFound(args.Name)
	}
	if e.exists(newName) {
		return models.Vault{}, gateway.Errorf(gateway.CodeAlreadyExists,
			"нельзя переименовать в '%s': хранилище уже существует", newName)
	}

	var meta vaultMeta
	err := e.withLock(args.Name, func() error {
		var err error
		meta, err = loadOrRebuildMeta(e.metaPath(args.Name), e.vaultPath(args.Name))
		if err != nil {
			return err
		}
		if err = os.Rename(e.vaultPath(args.Name), e.vaultPath(newName)); err != nil {
			return err
		}
		if err = os.Rename(e.metaPath(args.Name), e.metaPath(newName)); err != nil {
			// Возвращаем файл хранилища на место, чтобы пара не разошлась
			_ = os.Rename(e.vaultPath(newName), e.vaultPath(args.Name))
			return err
		}
		return nil
	})
	if err != nil {
		return models.Vault{}, e.lockOrIO(err, "ошибка переименования хранилища", args.Name)
	}
	e.removeLockFile(args.Name)

	slog.Info("Хранилище переименовано", "old_name", args.Name, "new_name", newName)
	return toVault(newName, meta), nil
}

// DeleteVault удаляет файлы хранилища. Занятое другим процессом хранилище не удаляется.
func (e *Engine) DeleteVault(ctx context.Context, args gateway.DeleteVaultArgs) error {
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.exists(args.Name) {
		return notFound(args.Name)
	}
	err := e.withLock(args.Name, func() error {
		if err := os.Remove(e.vaultPath(args.Name)); err != nil {
			return err
		}
		if err := os.Remove(e.metaPath(args.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Не удалось удалить метаданные хранилища", "name", args.Name, "error", err)
		}
		return nil
	})
	if err != nil {
		return e.lockOrIO(err, "ошибка удаления хранилища", args.Name)
	}
	e.removeLockFile(args.Name)

	slog.Info("Хранилище удалено", "name", args.Name)
	return nil
}

// UpdateVault проверяет старый мастер-ключ и перешифровывает хранилище новым.
func (e *Engine) UpdateVault(ctx context.Context, args gateway.UpdateVaultArgs) error {
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}
	if err := validateNewMasterKey(args.OldMasterKey, args.NewMasterKey, args.ConfirmNewMasterKey); err != nil {
		return err
	}

	err := e.mutate(ctx, args.Name, args.OldMasterKey, func(db *gokeepasslib.Database) error {
		db.Credentials = gokeepasslib.NewPasswordCredentials(string(args.NewMasterKey))
		return nil
	}, args.NewMasterKey)
	if err != nil {
		return err
	}
	slog.Info("Мастер-ключ хранилища обновлен", "name", args.Name)
	return nil
}

// GetPasswords расшифровывает хранилище и возвращает его записи.
func (e *Engine) GetPasswords(ctx context.Context, args gateway.GetPasswordsArgs) ([]models.PasswordEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.exists(args.VaultName) {
		return nil, notFound(args.VaultName)
	}

	var result []models.PasswordEntry
	err := e.withLock(args.VaultName, func() error {
		db, err := OpenFile(e.vaultPath(args.VaultName), string(args.MasterKey))
		if err != nil {
			return err
		}
		entries := GetAllEntries(db)
		result = make([]models.PasswordEntry, 0, len(entries))
		for _, entry := range entries {
			result = append(result, ToPasswordEntry(entry))
		}
		e.touchMeta(args.VaultName, LoadVaultID(db))
		return nil
	})
	if err != nil {
		return nil, e.openError(err, args.VaultName)
	}
	return result, nil
}

// AddPassword добавляет запись. Пустой секрет заменяется сгенерированным.
func (e *Engine) AddPassword(ctx context.Context, args gateway.AddPasswordArgs) error {
	secret := args.SecretValue
	if secret == "" {
		generated, err := GeneratePassword()
		if err != nil {
			return gateway.Errorf(gateway.CodeInternal, "не удалось сгенерировать пароль")
		}
		secret = generated
	}
	return e.mutate(ctx, args.VaultName, args.MasterKey, func(db *gokeepasslib.Database) error {
		return AppendEntry(db, NewEntry(secret, args.Notes))
	}, nil)
}

// UpdatePassword заменяет секрет и заметки записи.
func (e *Engine) UpdatePassword(ctx context.Context, args gateway.UpdatePasswordArgs) error {
	return e.mutate(ctx, args.VaultName, args.MasterKey, func(db *gokeepasslib.Database) error {
		entry := e.findEntry(db, args.ID)
		if entry == nil {
			return entryNotFound(args.ID)
		}
		UpdateEntry(entry, args.SecretValue, args.Notes)
		return nil
	}, nil)
}

// DeletePassword удаляет запись.
func (e *Engine) DeletePassword(ctx context.Context, args gateway.DeletePasswordArgs) error {
	return e.mutate(ctx, args.VaultName, args.MasterKey, func(db *gokeepasslib.Database) error {
		uuid, ok := ParseEntryID(args.ID)
		if !ok || !RemoveEntry(db, uuid) {
			return entryNotFound(args.ID)
		}
		return nil
	}, nil)
}

// mutate открывает хранилище ключом masterKey, применяет изменение и сохраняет файл.
// Если saveKey не nil, файл сохраняется с ним (смена ключа).
func (e *Engine) mutate(
	ctx context.Context,
	name string,
	masterKey []byte,
	apply func(db *gokeepasslib.Database) error,
	saveKey []byte,
) error {
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.exists(name) {
		return notFound(name)
	}
	if saveKey == nil {
		saveKey = masterKey
	}

	err := e.withLock(name, func() error {
		db, err := OpenFile(e.vaultPath(name), string(masterKey))
		if err != nil {
			return err
		}
		if err = apply(db); err != nil {
			return err
		}
		return SaveFile(db, e.vaultPath(name), string(saveKey))
	})
	if err != nil {
		return e.openError(err, name)
	}
	return nil
}

// withLock выполняет fn под эксклюзивной файловой блокировкой хранилища.
// Блокировка живет только на время одной операции, открытая сессия ее не держит.
func (e *Engine) withLock(name string, fn func() error) error {
	fileLock := flock.New(e.lockPath(name))
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("ошибка блокировки файла '%s': %w", e.lockPath(name), err)
	}
	if !locked {
		return gateway.Errorf(gateway.CodeInUse, "хранилище '%s' используется другим процессом", name)
	}
	defer func() {
		if unlockErr := fileLock.Unlock(); unlockErr != nil {
			slog.Error("Ошибка при снятии блокировки файла", "lockPath", e.lockPath(name), "error", unlockErr)
		}
	}()
	return fn()
}

func (e *Engine) removeLockFile(name string) {
	if err := os.Remove(e.lockPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("Не удалось удалить файл блокировки", "path", e.lockPath(name), "error", err)
	}
}

func (e *Engine) exists(name string) bool {
	if validateName(name) != nil {
		return false
	}
	info, err := os.Stat(e.vaultPath(name))
	return err == nil && !info.IsDir()
}

func (e *Engine) findEntry(db *gokeepasslib.Database, id string) *gokeepasslib.Entry {
	uuid, ok := ParseEntryID(id)
	if !ok {
		return nil
	}
	return FindEntry(db, uuid)
}

// touchMeta обновляет время последнего доступа и сверяет ID с записанным в KDBX.
func (e *Engine) touchMeta(name, kdbxID string) {
	meta, err := loadOrRebuildMeta(e.metaPath(name), e.vaultPath(name))
	if err != nil {
		slog.Warn("Не удалось прочитать метаданные хранилища", "name", name, "error", err)
		return
	}
	if kdbxID != "" && kdbxID != meta.ID {
		slog.Info("ID в метаданных восстановлен из KDBX", "name", name)
		meta.ID = kdbxID
	}
	meta.LastAccessed = e.now().UTC()
	if err = writeMeta(e.metaPath(name), meta); err != nil {
		slog.Warn("Не удалось обновить метаданные хранилища", "name", name, "error", err)
	}
}

// openError переводит ошибку работы с файлом хранилища в ошибку движка.
func (e *Engine) openError(err error, name string) error {
	if errors.Is(err, ErrDecrypt) {
		return &gateway.Error{Code: gateway.CodeWrongKey, Message: gateway.MsgWrongKey}
	}
	return e.lockOrIO(err, "ошибка работы с хранилищем", name)
}

// lockOrIO пропускает ошибки движка как есть, остальное считает ошибкой ввода-вывода.
func (e *Engine) lockOrIO(err error, msg, name string) error {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	if errors.Is(err, os.ErrNotExist) {
		return notFound(name)
	}
	return ioError(msg, name, err)
}

func ioError(msg, name string, err error) error {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	slog.Error(msg, "name", name, "error", err)
	return gateway.Errorf(gateway.CodeIO, "%s '%s'", msg, name)
}

func notFound(name string) error {
	return gateway.Errorf(gateway.CodeNotFound, "хранилище '%s' не существует", name)
}

func entryNotFound(id string) error {
	return gateway.Errorf(gateway.CodeEntryNotFound, "запись '%s' не найдена", id)
}

func canceled(err error) error {
	return gateway.Errorf(gateway.CodeIO, "операция прервана: %v", err)
}

func toVault(name string, meta vaultMeta) models.Vault {
	return models.Vault{
		ID:             meta.ID,
		Name:           name,
		CreatedAt:      meta.CreatedAt,
		LastAccessedAt: meta.LastAccessed,
	}
}
