//nolint:testpackage // Тесты в том же пакете для доступа к состоянию сессии.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/maynagashev/pawnvault/internal/gateway"
	"github.com/maynagashev/pawnvault/models"
)

// MockGateway реализует gateway.Gateway через testify/mock.
type MockGateway struct {
	mock.Mock
}

var _ gateway.Gateway = (*MockGateway)(nil)

func (m *MockGateway) ListVaults(ctx context.Context) ([]models.Vault, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	result, ok := args.Get(0).([]models.Vault)
	if !ok {
		return nil, errors.New("неверный тип результата")
	}
	return result, args.Error(1)
}

func (m *MockGateway) CreateVault(ctx context.Context, a gateway.CreateVaultArgs) (models.Vault, error) {
	args := m.Called(ctx, a)
	result, _ := args.Get(0).(models.Vault)
	return result, args.Error(1)
}

func (m *MockGateway) RenameVault(ctx context.Context, a gateway.RenameVaultArgs) (models.Vault, error) {
	args := m.Called(ctx, a)
	result, _ := args.Get(0).(models.Vault)
	return result, args.Error(1)
}

func (m *MockGateway) DeleteVault(ctx context.Context, a gateway.DeleteVaultArgs) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockGateway) UpdateVault(ctx context.Context, a gateway.UpdateVaultArgs) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockGateway) GetPasswords(ctx context.Context, a gateway.GetPasswordsArgs) ([]models.PasswordEntry, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	result, ok := args.Get(0).([]models.PasswordEntry)
	if !ok {
		return nil, errors.New("неверный тип результата")
	}
	return result, args.Error(1)
}

func (m *MockGateway) AddPassword(ctx context.Context, a gateway.AddPasswordArgs) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockGateway) UpdatePassword(ctx context.Context, a gateway.UpdatePasswordArgs) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockGateway) DeletePassword(ctx context.Context, a gateway.DeletePasswordArgs) error {
	return m.Called(ctx, a).Error(0)
}

// fakeGateway - бэкенд в памяти. Операция выполняется сразу, а ответ
// на вызов, помеченный через hold, задерживается до release.
type fakeGateway struct {
	mu      sync.Mutex
	vaults  []models.Vault
	keys    map[string]string
	entries map[string][]models.PasswordEntry
	nextID  int
	calls   map[string]int
	inCall  map[string]int
	maxIn   map[string]int
	failOps map[string]error

	pause   map[string]chan struct{} // Пауза для следующего вызова операции
	held    map[string]chan struct{} // Последняя выданная пауза операции
	started chan string
}

var _ gateway.Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		keys:    map[string]string{},
		entries: map[string][]models.PasswordEntry{},
		calls:   map[string]int{},
		inCall:  map[string]int{},
		maxIn:   map[string]int{},
		failOps: map[string]error{},
		pause:   map[string]chan struct{}{},
		held:    map[string]chan struct{}{},
		started: make(chan string, 64),
	}
}

// hold задерживает ответ на следующий вызов op до release.
func (f *fakeGateway) hold(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.pause[op] = ch
	f.held[op] = ch
}

// release отпускает задержанный вызов op.
func (f *fakeGateway) release(op string) {
	f.mu.Lock()
	ch := f.held[op]
	delete(f.held, op)
	delete(f.pause, op)
	f.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// waitStarted ждет, пока вызов op выполнит работу и встанет на паузу.
func (f *fakeGateway) waitStarted(op string) error {
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-f.started:
			if got == op {
				return nil
			}
		case <-timeout:
			return fmt.Errorf("вызов %s не начался", op)
		}
	}
}

func (f *fakeGateway) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failOps, op)
		return
	}
	f.failOps[op] = err
}

func (f *fakeGateway) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeGateway) maxConcurrent(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxIn[op]
}

// begin отмечает начало вызова и забирает паузу и подготовленную ошибку.
func (f *fakeGateway) begin(op string) (chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	f.inCall[op]++
	if f.inCall[op] > f.maxIn[op] {
		f.maxIn[op] = f.inCall[op]
	}
	ch := f.pause[op]
	delete(f.pause, op)
	return ch, f.failOps[op]
}

// finish сообщает о вызове и ждет release, если вызов был задержан.
func (f *fakeGateway) finish(op string, ch chan struct{}) {
	if ch != nil {
		f.started <- op
		<-ch
	}
	f.mu.Lock()
	f.inCall[op]--
	f.mu.Unlock()
}

func (f *fakeGateway) checkKey(name string, key []byte) error {
	stored, ok := f.keys[name]
	if !ok {
		return gateway.Errorf(gateway.CodeNotFound, "хранилище '%s' не существует", name)
	}
	if stored != string(key) {
		return &gateway.Error{Code: gateway.CodeWrongKey, Message: gateway.MsgWrongKey}
	}
	return nil
}

func (f *fakeGateway) ListVaults(_ context.Context) ([]models.Vault, error) {
	ch, err := f.begin(OpListVaults)
	defer f.finish(OpListVaults, ch)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneVaults(f.vaults), nil
}

func (f *fakeGateway) CreateVault(_ context.Context, a gateway.CreateVaultArgs) (models.Vault, error) {
	ch, err := f.begin(OpCreateVault)
	defer f.finish(OpCreateVault, ch)
	if err != nil {
		return models.Vault{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.keys[a.Name]; exists {
		return models.Vault{}, gateway.Errorf(gateway.CodeAlreadyExists, "хранилище '%s' уже существует", a.Name)
	}
	f.nextID++
	now := time.Now().UTC()
	v := models.Vault{ID: fmt.Sprintf("vault-%d", f.nextID), Name: a.Name, CreatedAt: now, LastAccessedAt: now}
	f.vaults = append(f.vaults, v)
	f.keys[a.Name] = string(a.MasterKey)
	f.entries[a.Name] = nil
	return v, nil
}

func (f *fakeGateway) RenameVault(_ context.Context, a gateway.RenameVaultArgs) (models.Vault, error) {
	ch, err := f.begin(OpRenameVault)
	defer f.finish(OpRenameVault, ch)
	if err != nil {
		return models.Vault{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.keys[a.Name]; !exists {
		return models.Vault{}, gateway.Errorf(gateway.CodeNotFound, "хранилище '%s' не существует", a.Name)
	}
	if _, exists := f.keys[a.NewName]; exists {
		return models.Vault{}, gateway.Errorf(gateway.CodeAlreadyExists, "хранилище '%s' уже существует", a.NewName)
	}
	f.keys[a.NewName] = f.keys[a.Name]
	f.entries[a.NewName] = f.entries[a.Name]
	delete(f.keys, a.Name)
	delete(f.entries, a.Name)
	for i := range f.vaults {
		if f.vaults[i].Name == a.Name {
			f.vaults[i].Name = a.NewName
			return f.vaults[i], nil
		}
	}
	return models.Vault{}, errors.New("реестр поврежден")
}

func (f *fakeGateway) DeleteVault(_ context.Context, a gateway.DeleteVaultArgs) error {
	ch, err := f.begin(OpDeleteVault)
	defer f.finish(OpDeleteVault, ch)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.keys[a.Name]; !exists {
		return gateway.Errorf(gateway.CodeNotFound, "хранилище '%s' не существует", a.Name)
	}
	delete(f.keys, a.Name)
	delete(f.entries, a.Name)
	kept := f.vaults[:0]
	for _, v := range f.vaults {
		if v.Name != a.Name {
			kept = append(kept, v)
		}
	}
	f.vaults = kept
	return nil
}

func (f *fakeGateway) UpdateVault(_ context.Context, a gateway.UpdateVaultArgs) error {
	ch, err := f.begin(OpUpdateVault)
	defer f.finish(OpUpdateVault, ch)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err = f.checkKey(a.Name, a.OldMasterKey); err != nil {
		return err
	}
	f.keys[a.Name] = string(a.NewMasterKey)
	return nil
}

func (f *fakeGateway) GetPasswords(_ context.Context, a gateway.GetPasswordsArgs) ([]models.PasswordEntry, error) {
	ch, err := f.begin(OpGetPasswords)
	defer f.finish(OpGetPasswords, ch)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err = f.checkKey(a.VaultName, a.MasterKey); err != nil {
		return nil, err
	}
	return cloneEntries(f.entries[a.VaultName]), nil
}

func (f *fakeGateway) AddPassword(_ context.Context, a gateway.AddPasswordArgs) error {
	ch, err := f.begin(OpAddEntry)
	defer f.finish(OpAddEntry, ch)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err = f.checkKey(a.VaultName, a.MasterKey); err != nil {
		return err
	}
	f.nextID++
	secret := a.SecretValue
	if secret == "" {
		secret = "generated-secret"
	}
	f.entries[a.VaultName] = append(f.entries[a.VaultName], models.PasswordEntry{
		ID: fmt.Sprintf("entry-%d", f.nextID), SecretValue: secret, Notes: a.Notes,
	})
	return nil
}

func (f *fakeGateway) UpdatePassword(_ context.Context, a gateway.UpdatePasswordArgs) error {
	ch, err := f.begin(OpUpdateEntry)
	defer f.finish(OpUpdateEntry, ch)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err = f.checkKey(a.VaultName, a.MasterKey); err != nil {
		return err
	}
	for i, e := range f.entries[a.VaultName] {
		if e.ID == a.ID {
			f.entries[a.VaultName][i] = models.PasswordEntry{ID: e.ID, SecretValue: a.SecretValue, Notes: a.Notes}
			return nil
		}
	}
	return gateway.Errorf(gateway.CodeEntryNotFound, "запись '%s' не найдена", a.ID)
}

func (f *fakeGateway) DeletePassword(_ context.Context, a gateway.DeletePasswordArgs) error {
	ch, err := f.begin(OpDeleteEntry)
	defer f.finish(OpDeleteEntry, ch)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err = f.checkKey(a.VaultName, a.MasterKey); err != nil {
		return err
	}
	list := f.entries[a.VaultName]
	for i, e := range list {
		if e.ID == a.ID {
			f.entries[a.VaultName] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return gateway.Errorf(gateway.CodeEntryNotFound, "запись '%s' не найдена", a.ID)
}
