package vault

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/maynagashev/pawnvault/internal/gateway"
	"github.com/maynagashev/pawnvault/models"
)

// State - состояние сессии хранилища.
type State int

const (
	// StateLocked - ключа нет, записи недоступны. Начальное состояние.
	StateLocked State = iota
	// StateUnlocking - выполняется запрос разблокировки.
	StateUnlocking
	// StateUnlocked - ключ в памяти, записи загружены.
	StateUnlocked
	// StateClosed - сессия заблокирована пользователем или инвалидирована. Конечное состояние.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLocked:
		return "заблокировано"
	case StateUnlocking:
		return "разблокируется"
	case StateUnlocked:
		return "разблокировано"
	case StateClosed:
		return "закрыто"
	default:
		return "неизвестно"
	}
}

// Session - сессия одного хранилища: мастер-ключ и кэш записей.
//
// Кэш записей никогда не правится по месту: после каждого изменения
// список целиком перечитывается у бэкенда. Одновременно допускается
// только одно изменение, параллельные вызовы получают ErrBusy.
type Session struct {
	gw gateway.Gateway

	mu      sync.Mutex
	vault   models.Vault
	state   State
	key     *masterKey
	entries []models.PasswordEntry
	stale   bool
	epoch   uint64 // Меняется при блокировке, ответы прошлых эпох отбрасываются
	issued  uint64
	applied uint64

	mutating atomic.Bool
}

// NewSession создает заблокированную сессию для хранилища.
func NewSession(gw gateway.Gateway, v models.Vault) *Session {
	return &Session{gw: gw, vault: v, state: StateLocked}
}

// Vault возвращает хранилище, к которому привязана сессия.
func (s *Session) Vault() models.Vault {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault
}

// State возвращает текущее состояние.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stale сообщает, что последнее перечитывание после изменения не удалось
// и кэш записей может расходиться с бэкендом.
func (s *Session) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// Mutating сообщает, выполняется ли сейчас изменение записей.
func (s *Session) Mutating() bool {
	return s.mutating.Load()
}

// Entries возвращает копию кэша записей. Для незаблокированной сессии - nil.
func (s *Session) Entries() []models.PasswordEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnlocked {
		return nil
	}
	return cloneEntries(s.entries)
}

// Unlock проверяет ключ, загружая записи. При ошибке ключ не сохраняется
// и сессия остается заблокированной.
func (s *Session) Unlock(ctx context.Context, masterKey []byte) error {
	if len(masterKey) == 0 {
		return validationError("master_key", "мастер-ключ не может быть пустым")
	}

	s.mu.Lock()
	switch s.state {
	case StateUnlocking:
		s.mu.Unlock()
		return &BusyError{Op: OpUnlock}
	case StateUnlocked, StateClosed:
		state := s.state
		s.mu.Unlock()
		return &InvalidStateError{Op: OpUnlock, State: state}
	}
	s.state = StateUnlocking
	epoch := s.epoch
	name := s.vault.Name
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	key := newMasterKey(masterKey)
	keyCopy := key.Copy()
	entries, err := callGateway(OpUnlock, func() ([]models.PasswordEntry, error) {
		return s.gw.GetPasswords(ctx, gateway.GetPasswordsArgs{VaultName: name, MasterKey: keyCopy})
	})
	wipe(keyCopy)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		key.Destroy()
		return &InvalidStateError{Op: OpUnlock, State: s.state}
	}
	if err != nil {
		key.Destroy()
		s.state = StateLocked
		return err
	}
	s.key = key
	s.state = StateUnlocked
	s.entries = cloneEntries(entries)
	s.applied = seq
	s.stale = false
	return nil
}

// Add добавляет запись. Пустой secret означает, что пароль сгенерирует бэкенд.
func (s *Session) Add(ctx context.Context, notes, secret string) error {
	return s.mutate(ctx, OpAddEntry, func(name string, key []byte) error {
		return s.gw.AddPassword(ctx, gateway.AddPasswordArgs{
			VaultName: name, MasterKey: key, Notes: notes, SecretValue: secret,
		})
	})
}

// Update заменяет секрет и заметки записи.
func (s *Session) Update(ctx context.Context, id, secret, notes string) error {
	if id == "" {
		return validationError("id", "не указана запись")
	}
	return s.mutate(ctx, OpUpdateEntry, func(name string, key []byte) error {
		return s.gw.UpdatePassword(ctx, gateway.UpdatePasswordArgs{
			VaultName: name, MasterKey: key, ID: id, SecretValue: secret, Notes: notes,
		})
	})
}

// Delete удаляет запись.
func (s *Session) Delete(ctx context.Context, id string) error {
	if id == "" {
		return validationError("id", "не указана запись")
	}
	return s.mutate(ctx, OpDeleteEntry, func(name string, key []byte) error {
		return s.gw.DeletePassword(ctx, gateway.DeletePasswordArgs{VaultName: name, MasterKey: key, ID: id})
	})
}

// Refresh перечитывает записи у бэкенда. Не блокируется текущими изменениями.
// Успешное перечитывание снимает признак Stale.
func (s *Session) Refresh(ctx context.Context) ([]models.PasswordEntry, error) {
	if err := s.fetch(ctx, OpGetPasswords); err != nil {
		return nil, err
	}
	return s.Entries(), nil
}

// Search фильтрует кэш по подстроке в заметках без учета регистра.
// Бэкенд не вызывается, кэш не меняется.
func (s *Session) Search(term string) ([]models.PasswordEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnlocked {
		return nil, &InvalidStateError{Op: OpSearch, State: s.state}
	}
	found := make([]models.PasswordEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.MatchesNotes(term) {
			found = append(found, e)
		}
	}
	return found, nil
}

// Lock стирает ключ и записи. Сессия переходит в конечное состояние,
// ответы на запросы, начатые до блокировки, отбрасываются.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.state = StateClosed
	s.entries = nil
	s.stale = false
	if s.key != nil {
		s.key.Destroy()
		s.key = nil
	}
}

// rename привязывает сессию к новому имени того же хранилища.
func (s *Session) rename(v models.Vault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vault = v
}

// tryAcquire занимает шлюз изменений. Возвращает false, если он уже занят.
func (s *Session) tryAcquire() bool {
	return s.mutating.CompareAndSwap(false, true)
}

func (s *Session) release() {
	s.mutating.Store(false)
}

// mutate выполняет изменение и обязательное перечитывание записей.
func (s *Session) mutate(ctx context.Context, op string, call func(name string, key []byte) error) error {
	name, key, epoch, err := s.credentials(op)
	if err != nil {
		return err
	}
	defer wipe(key)

	if !s.tryAcquire() {
		return &BusyError{Op: op}
	}
	defer s.release()

	if err = callGatewayErr(op, func() error { return call(name, key) }); err != nil {
		return err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		state := s.state
		s.mu.Unlock()
		return &InvalidStateError{Op: op, State: state}
	}
	s.mu.Unlock()

	if err = s.fetch(ctx, op); err != nil {
		if Kind(err) == ErrGateway {
			s.markStale()
			return &DesyncError{Op: op, Err: err}
		}
		return err
	}
	return nil
}

// fetch запрашивает записи и применяет ответ, если он самый свежий из выданных.
func (s *Session) fetch(ctx context.Context, op string) error {
	name, key, epoch, err := s.credentials(op)
	if err != nil {
		return err
	}
	defer wipe(key)

	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	entries, err := callGateway(OpGetPasswords, func() ([]models.PasswordEntry, error) {
		return s.gw.GetPasswords(ctx, gateway.GetPasswordsArgs{VaultName: name, MasterKey: key})
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return &InvalidStateError{Op: op, State: s.state}
	}
	if seq > s.applied {
		s.entries = cloneEntries(entries)
		s.applied = seq
		s.stale = false
	}
	return nil
}

// credentials проверяет состояние и возвращает имя, копию ключа и эпоху.
func (s *Session) credentials(op string) (string, []byte, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnlocked || s.key == nil {
		return "", nil, 0, &InvalidStateError{Op: op, State: s.state}
	}
	return s.vault.Name, s.key.Copy(), s.epoch, nil
}

func (s *Session) markStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
}

func cloneEntries(entries []models.PasswordEntry) []models.PasswordEntry {
	out := make([]models.PasswordEntry, len(entries))
	copy(out, entries)
	return out
}
