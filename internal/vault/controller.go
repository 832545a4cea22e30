// Package vault содержит ядро клиента: реестр хранилищ, сессию открытого
// хранилища и контроллер, который их связывает и упорядочивает изменения.
package vault

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maynagashev/pawnvault/internal/gateway"
	"github.com/maynagashev/pawnvault/models"
)

// Status - снимок состояния контроллера для слоя представления.
type Status struct {
	Vault    models.Vault // Хранилище текущей сессии (пусто, если сессии нет)
	State    State
	Stale    bool // Кэш записей мог разойтись с бэкендом, нужен Refresh
	Mutating bool // Выполняется изменение записей
	Registry bool // Выполняется изменение реестра
}

// Controller - единая точка входа для слоя представления.
//
// Держит не более одной сессии. Изменения реестра и изменения записей
// сессии проходят через отдельные шлюзы: второй вызов, пока первый
// не завершился, получает ErrBusy и не доходит до бэкенда.
type Controller struct {
	registry *Registry
	gw       gateway.Gateway

	mu      sync.Mutex
	session *Session

	registryBusy atomic.Bool
}

// NewController создает контроллер поверх бэкенда.
func NewController(gw gateway.Gateway) *Controller {
	return &Controller{
		registry: NewRegistry(gw),
		gw:       gw,
	}
}

// Vaults возвращает кэш реестра.
func (c *Controller) Vaults() []models.Vault {
	return c.registry.Vaults()
}

// ListVaults перечитывает список хранилищ.
func (c *Controller) ListVaults(ctx context.Context) ([]models.Vault, error) {
	start := time.Now()
	vaults, err := c.registry.List(ctx)
	logOutcome(OpListVaults, "", start, err, "count", len(vaults))
	return vaults, err
}

// CreateVault создает хранилище.
func (c *Controller) CreateVault(ctx context.Context, name string, masterKey, confirmMasterKey []byte) (models.Vault, error) {
	start := time.Now()
	var created models.Vault
	err := c.withRegistryGate(OpCreateVault, func() error {
		var err error
		created, err = c.registry.Create(ctx, name, masterKey, confirmMasterKey)
		return err
	})
	logOutcome(OpCreateVault, name, start, err)
	return created, err
}

// RenameVault переименовывает хранилище. Открытая сессия этого хранилища
// продолжает работать под новым именем.
func (c *Controller) RenameVault(ctx context.Context, oldName, newName string) (models.Vault, error) {
	start := time.Now()
	var renamed models.Vault
	err := c.withRegistryGate(OpRenameVault, func() error {
		return c.withVaultSessionGate(OpRenameVault, oldName, func(s *Session) error {
			var err error
			renamed, err = c.registry.Rename(ctx, oldName, newName)
			if err != nil {
				return err
			}
			if s != nil && sameVault(s.Vault(), oldName, renamed.ID) {
				s.rename(renamed)
				slog.Debug("Сессия перенесена на новое имя хранилища", "old_name", oldName, "new_name", renamed.Name)
			}
			return nil
		})
	})
	logOutcome(OpRenameVault, oldName, start, err, "new_name", newName)
	return renamed, err
}

// DeleteVault удаляет хранилище. Сессия удаленного хранилища блокируется.
func (c *Controller) DeleteVault(ctx context.Context, name string) error {
	start := time.Now()
	err := c.withRegistryGate(OpDeleteVault, func() error {
		known, _ := c.registry.Find(name)
		return c.withVaultSessionGate(OpDeleteVault, name, func(s *Session) error {
			if err := c.registry.Delete(ctx, name); err != nil {
				return err
			}
			c.closeVaultSessions(s, name, known.ID)
			return nil
		})
	})
	logOutcome(OpDeleteVault, name, start, err)
	return err
}

// UpdateVaultKey меняет мастер-ключ. Сессия этого хранилища блокируется:
// ключ в ней больше не действителен.
func (c *Controller) UpdateVaultKey(
	ctx context.Context,
	name string,
	oldMasterKey, newMasterKey, confirmNewMasterKey []byte,
) error {
	start := time.Now()
	err := c.withRegistryGate(OpUpdateVault, func() error {
		known, _ := c.registry.Find(name)
		return c.withVaultSessionGate(OpUpdateVault, name, func(s *Session) error {
			err := c.registry.UpdateMasterKey(ctx, name, oldMasterKey, newMasterKey, confirmNewMasterKey)
			if err != nil {
				return err
			}
			c.closeVaultSessions(s, name, known.ID)
			return nil
		})
	})
	logOutcome(OpUpdateVault, name, start, err)
	return err
}

// Unlock закрывает текущую сессию и открывает хранилище name.
// При неверном ключе новая сессия остается заблокированной.
func (c *Controller) Unlock(ctx context.Context, name string, masterKey []byte) error {
	start := time.Now()
	v, ok := c.registry.Find(name)
	if !ok {
		v = models.Vault{Name: name}
	}
	s := NewSession(c.gw, v)

	c.mu.Lock()
	previous := c.session
	c.session = s
	c.mu.Unlock()
	if previous != nil {
		previous.Lock()
	}

	err := s.Unlock(ctx, masterKey)
	logOutcome(OpUnlock, name, start, err, "entries", len(s.Entries()))
	return err
}

// AddEntry добавляет запись в открытое хранилище.
func (c *Controller) AddEntry(ctx context.Context, notes, secret string) error {
	return c.entryOp(OpAddEntry, func(s *Session) error { return s.Add(ctx, notes, secret) })
}

// UpdateEntry изменяет запись открытого хранилища.
func (c *Controller) UpdateEntry(ctx context.Context, id, secret, notes string) error {
	return c.entryOp(OpUpdateEntry, func(s *Session) error { return s.Update(ctx, id, secret, notes) })
}

// DeleteEntry удаляет запись открытого хранилища.
func (c *Controller) DeleteEntry(ctx context.Context, id string) error {
	return c.entryOp(OpDeleteEntry, func(s *Session) error { return s.Delete(ctx, id) })
}

// Refresh перечитывает записи открытого хранилища. Используется для выхода из ErrDesync.
func (c *Controller) Refresh(ctx context.Context) ([]models.PasswordEntry, error) {
	var entries []models.PasswordEntry
	err := c.entryOp(OpGetPasswords, func(s *Session) error {
		var err error
		entries, err = s.Refresh(ctx)
		return err
	})
	return entries, err
}

// SearchEntries фильтрует записи открытого хранилища по заметкам.
func (c *Controller) SearchEntries(term string) ([]models.PasswordEntry, error) {
	s := c.current()
	if s == nil {
		return nil, &InvalidStateError{Op: OpSearch, State: StateLocked}
	}
	return s.Search(term)
}

// Entries возвращает кэш записей открытого хранилища.
func (c *Controller) Entries() []models.PasswordEntry {
	s := c.current()
	if s == nil {
		return nil
	}
	return s.Entries()
}

// State возвращает снимок состояния.
func (c *Controller) State() Status {
	status := Status{State: StateLocked, Registry: c.registryBusy.Load()}
	s := c.current()
	if s == nil {
		return status
	}
	status.Vault = s.Vault()
	status.State = s.State()
	status.Stale = s.Stale()
	status.Mutating = s.Mutating()
	return status
}

// Lock закрывает текущую сессию и стирает ключ.
func (c *Controller) Lock() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()
	if s != nil {
		s.Lock()
		slog.Info("Хранилище заблокировано", "vault", s.Vault().Name)
	}
}

func (c *Controller) current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// closeSession блокирует s и убирает ее, если она все еще текущая.
func (c *Controller) closeSession(s *Session) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
	s.Lock()
	slog.Info("Сессия закрыта после изменения хранилища", "vault", s.Vault().Name)
}

// closeVaultSessions закрывает сессию s, захваченную до вызова бэкенда, и
// текущую сессию, если она открыта для того же хранилища. Текущая могла
// смениться, пока шел вызов: Unlock не ждет изменений реестра.
func (c *Controller) closeVaultSessions(s *Session, name, id string) {
	if s != nil {
		c.closeSession(s)
	}
	if cur := c.current(); cur != nil && cur != s && sameVault(cur.Vault(), name, id) {
		c.closeSession(cur)
	}
}

func (c *Controller) entryOp(op string, fn func(s *Session) error) error {
	start := time.Now()
	s := c.current()
	var err error
	name := ""
	if s == nil {
		err = &InvalidStateError{Op: op, State: StateLocked}
	} else {
		name = s.Vault().Name
		err = fn(s)
	}
	logOutcome(op, name, start, err)
	return err
}

// withRegistryGate пропускает не более одного изменения реестра одновременно.
func (c *Controller) withRegistryGate(op string, fn func() error) error {
	if !c.registryBusy.CompareAndSwap(false, true) {
		return &BusyError{Op: op}
	}
	defer c.registryBusy.Store(false)
	return fn()
}

// withVaultSessionGate занимает шлюз изменений сессии, если она открыта для
// хранилища name, чтобы изменение реестра не пересеклось с изменением записей.
// fn получает эту сессию или nil.
func (c *Controller) withVaultSessionGate(op, name string, fn func(s *Session) error) error {
	s := c.current()
	if s == nil || s.Vault().Name != name {
		return fn(nil)
	}
	if !s.tryAcquire() {
		return &BusyError{Op: op}
	}
	defer s.release()
	return fn(s)
}

// sameVault сопоставляет хранилище сессии с переименованным по ID,
// а если ID неизвестен - по прежнему имени.
func sameVault(v models.Vault, oldName, id string) bool {
	if v.ID != "" && id != "" {
		return v.ID == id
	}
	return v.Name == oldName
}

// logOutcome пишет в лог итог операции. Ключи и секреты сюда не попадают.
func logOutcome(op, vaultName string, start time.Time, err error, attrs ...any) {
	args := append([]any{"op", op, "vault", vaultName, "duration", time.Since(start)}, attrs...)
	if err == nil {
		slog.Info("Операция выполнена", args...)
		return
	}
	args = append(args, "error", err)
	switch Kind(err) {
	case ErrBusy, ErrValidation:
		slog.Debug("Операция отклонена", args...)
	case ErrDesync:
		slog.Error("Изменение применено, но записи не перечитаны", args...)
	default:
		slog.Warn("Операция завершилась ошибкой", args...)
	}
}
